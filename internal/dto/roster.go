package dto

// TeacherRequest creates or updates one roster entry. A zero ID on create
// requests the next free code.
type TeacherRequest struct {
	ID           int    `json:"id" validate:"min=0"`
	LastName     string `json:"last_name" validate:"required"`
	FirstName    string `json:"first_name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	Grade        string `json:"grade" validate:"required"`
	Participates bool   `json:"participates"`
}

// RowError reports one rejected import row.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// RosterImportReport summarises a roster file import.
type RosterImportReport struct {
	Created int        `json:"created"`
	Skipped int        `json:"skipped"`
	Errors  []RowError `json:"errors,omitempty"`
}

// WishImportReport summarises an availability file import. Errors are keyed
// by the raw teacher label found in the file.
type WishImportReport struct {
	Applied int                 `json:"applied"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

// SlotRequest addresses one (day, session) pair, both 1-based.
type SlotRequest struct {
	Day     int `json:"day" validate:"required,min=1"`
	Session int `json:"session" validate:"required,min=1"`
}

// AvailabilityRequest replaces a teacher's declared unavailability.
type AvailabilityRequest struct {
	Semester string        `json:"semester"`
	Session  string        `json:"session"`
	Slots    []SlotRequest `json:"slots" validate:"dive"`
}
