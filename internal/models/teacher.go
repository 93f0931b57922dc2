package models

import (
	"fmt"
	"strings"
	"time"
)

// Teacher represents an instructor on the surveillance roster.
type Teacher struct {
	ID           int       `db:"id" json:"id"`
	LastName     string    `db:"last_name" json:"last_name"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	Grade        string    `db:"grade" json:"grade"`
	Participates bool      `db:"participates" json:"participates"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`

	// Availability is loaded from its own table; nil means no declared
	// unavailability at all.
	Availability *AvailabilityProfile `db:"-" json:"availability,omitempty"`
}

// FullName renders "LASTNAME Firstname" for display and reports.
func (t Teacher) FullName() string {
	return strings.TrimSpace(fmt.Sprintf("%s %s", strings.ToUpper(t.LastName), t.FirstName))
}

// ShortLabel renders the "P.NOM" form used by availability spreadsheets.
func (t Teacher) ShortLabel() string {
	initial := ""
	if t.FirstName != "" {
		initial = strings.ToUpper(t.FirstName[:1])
	}
	return fmt.Sprintf("%s.%s", initial, strings.ToUpper(t.LastName))
}

// AvailabilityProfile records the sessions a teacher declared unavailable.
// Absence of a slot means the teacher is available for it.
type AvailabilityProfile struct {
	Semester    string               `json:"semester"`
	Session     string               `json:"session"`
	Unavailable map[SlotRef]struct{} `json:"-"`
}

// Available reports whether the teacher can take the given slot.
func (p *AvailabilityProfile) Available(ref SlotRef) bool {
	if p == nil {
		return true
	}
	_, unavailable := p.Unavailable[ref]
	return !unavailable
}

// UnavailableSlots returns the declared slots in deterministic order.
func (p *AvailabilityProfile) UnavailableSlots() []SlotRef {
	if p == nil {
		return nil
	}
	refs := make([]SlotRef, 0, len(p.Unavailable))
	for ref := range p.Unavailable {
		refs = append(refs, ref)
	}
	SortSlotRefs(refs)
	return refs
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search       string
	Grade        string
	Participates *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
