package models

import "time"

// AssignmentRecord is one persisted teacher-to-session placement.
type AssignmentRecord struct {
	TeacherID int       `db:"teacher_id" json:"teacher_id"`
	Day       int       `db:"day" json:"day"`
	Session   int       `db:"session" json:"session"`
	Forced    bool      `db:"forced" json:"forced"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Slot returns the record's slot key.
func (r AssignmentRecord) Slot() SlotRef {
	return SlotRef{Day: r.Day, Session: r.Session}
}

// AssignResult reports the outcome of a successful placement.
type AssignResult struct {
	TeacherID int     `json:"teacher_id"`
	Slot      SlotRef `json:"slot"`
	// IsConflict marks a forced placement over a declared unavailability.
	IsConflict bool `json:"is_conflict"`
}

// Conflict is an active assignment that contradicts a declared
// unavailability, denormalized for direct display.
type Conflict struct {
	TeacherID int     `json:"teacher_id"`
	FullName  string  `json:"full_name"`
	Grade     string  `json:"grade"`
	Email     string  `json:"email"`
	Slot      SlotRef `json:"slot"`
	Date      string  `json:"date"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
}

// SlotStatus describes the staffing state of one session.
type SlotStatus struct {
	Slot         SlotRef `json:"slot"`
	Date         string  `json:"date"`
	StartTime    string  `json:"start_time"`
	EndTime      string  `json:"end_time"`
	RoomCount    int     `json:"room_count"`
	Required     int     `json:"required"`
	Assigned     int     `json:"assigned"`
	AssignedIDs  []int   `json:"assigned_ids"`
	OverAssigned bool    `json:"over_assigned"`
	HasConflict  bool    `json:"has_conflict"`
}

// TeacherLoad summarizes how much of a teacher's quota is consumed.
// UtilizationPct is Assigned over Quota in percent, zero when the quota is
// zero.
type TeacherLoad struct {
	TeacherID      int     `json:"teacher_id"`
	FullName       string  `json:"full_name"`
	Grade          string  `json:"grade"`
	Quota          int     `json:"quota"`
	Assigned       int     `json:"assigned"`
	UtilizationPct float64 `json:"utilization_pct"`
}

// Summary aggregates the whole assignment board. Every session falls in
// exactly one of the three staffing buckets.
type Summary struct {
	TotalRequired    int           `json:"total_required"`
	TotalAssigned    int           `json:"total_assigned"`
	FullyStaffed     int           `json:"fully_staffed"`
	PartiallyStaffed int           `json:"partially_staffed"`
	Unstaffed        int           `json:"unstaffed"`
	ConflictCount    int           `json:"conflict_count"`
	Slots            []SlotStatus  `json:"slots"`
	Teachers         []TeacherLoad `json:"teachers"`
	GeneratedAtUTC   time.Time     `json:"generated_at_utc"`
}

// Auto-assignment run statuses.
const (
	AutoAssignCompleteSuccess = "complete_success"
	AutoAssignPartialSuccess  = "partial_success"
)

// Solver outcome labels surfaced in auto-assignment reports.
const (
	SolverStatusOptimal    = "OPTIMAL"
	SolverStatusFeasible   = "FEASIBLE"
	SolverStatusInfeasible = "INFEASIBLE"
	SolverStatusTrivial    = "TRIVIAL"
)

// AutoAssignReport is the outcome of one auto-assignment run.
type AutoAssignReport struct {
	Status          string         `json:"status"`
	SolverStatus    string         `json:"solver_status"`
	AssignmentsMade int            `json:"assignments_made"`
	Remaining       int            `json:"remaining"`
	GradeTargets    map[string]int `json:"grade_targets"`
	Duration        time.Duration  `json:"duration_ns"`
	Message         string         `json:"message,omitempty"`
}
