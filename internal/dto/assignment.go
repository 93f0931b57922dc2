package dto

// AssignRequest places one teacher on one session.
type AssignRequest struct {
	TeacherID int  `json:"teacher_id" validate:"required,min=1"`
	Day       int  `json:"day" validate:"required,min=1"`
	Session   int  `json:"session" validate:"required,min=1"`
	Force     bool `json:"force"`
}

// ReplaceSlotRequest swaps the full teacher list of one session. The slot
// itself is addressed by the URL path.
type ReplaceSlotRequest struct {
	TeacherIDs []int `json:"teacher_ids" validate:"required"`
	Force      bool  `json:"force"`
}
