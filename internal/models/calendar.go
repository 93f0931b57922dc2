package models

import "time"

// ExamType distinguishes the kinds of supervised assessments.
type ExamType string

const (
	ExamTypeExamen ExamType = "Examen"
	ExamTypeDevoir ExamType = "Devoir surveillé"
)

// SessionRound distinguishes the main round from the retake round.
type SessionRound string

const (
	RoundPrincipale SessionRound = "Principale"
	RoundControle   SessionRound = "Contrôle"
)

// ExamSession is one supervised time block within an exam day.
type ExamSession struct {
	ID         int                 `json:"id"`
	StartTime  string              `json:"start_time"`
	EndTime    string              `json:"end_time"`
	Rooms      map[string]struct{} `json:"-"`
	ProctorIDs map[int]struct{}    `json:"-"`
}

// RoomCount returns the number of distinct rooms used by the session.
func (s ExamSession) RoomCount() int {
	return len(s.Rooms)
}

// IsResponsible reports whether the teacher supervises one of the session's
// own exams.
func (s ExamSession) IsResponsible(teacherID int) bool {
	_, ok := s.ProctorIDs[teacherID]
	return ok
}

// ExamDay groups the sessions held on one calendar date.
type ExamDay struct {
	Date     time.Time     `json:"date"`
	Sessions []ExamSession `json:"sessions"`
}

// ExamCalendar is the ordered set of exam days for one exam round.
type ExamCalendar struct {
	Semester string       `json:"semester"`
	ExamType ExamType     `json:"exam_type"`
	Round    SessionRound `json:"round"`
	Days     []ExamDay    `json:"days"`
}

// Slots returns every SlotRef in calendar order.
func (c *ExamCalendar) Slots() []SlotRef {
	if c == nil {
		return nil
	}
	refs := make([]SlotRef, 0)
	for dayIdx, day := range c.Days {
		for sessIdx := range day.Sessions {
			refs = append(refs, SlotRefFromIndex(dayIdx, sessIdx))
		}
	}
	return refs
}

// SessionAt resolves a SlotRef to its day and session.
func (c *ExamCalendar) SessionAt(ref SlotRef) (ExamDay, ExamSession, bool) {
	if c == nil || !ref.Valid() {
		return ExamDay{}, ExamSession{}, false
	}
	dayIdx, sessIdx := ref.Indexes()
	if dayIdx >= len(c.Days) {
		return ExamDay{}, ExamSession{}, false
	}
	day := c.Days[dayIdx]
	if sessIdx >= len(day.Sessions) {
		return ExamDay{}, ExamSession{}, false
	}
	return day, day.Sessions[sessIdx], true
}

// SlotCount returns the total number of sessions across all days.
func (c *ExamCalendar) SlotCount() int {
	if c == nil {
		return 0
	}
	count := 0
	for _, day := range c.Days {
		count += len(day.Sessions)
	}
	return count
}
