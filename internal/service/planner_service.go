package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/invigilo/exam-duty-api/internal/models"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
)

type rosterProvider interface {
	ListParticipants(ctx context.Context) ([]models.Teacher, error)
}

type calendarProvider interface {
	Current(ctx context.Context) (*models.ExamCalendar, error)
}

type dutyConfigProvider interface {
	Current(ctx context.Context) (*models.DutyConfig, error)
}

type assignmentStore interface {
	ListAll(ctx context.Context) ([]models.AssignmentRecord, error)
	Save(ctx context.Context, record models.AssignmentRecord) error
	Delete(ctx context.Context, teacherID, day, session int) error
	ReplaceSlot(ctx context.Context, day, session int, records []models.AssignmentRecord) error
	SaveBatch(ctx context.Context, records []models.AssignmentRecord) error
}

type boardCache interface {
	InvalidateBoard(ctx context.Context)
}

type solverObserver interface {
	ObserveSolve(status string, duration time.Duration)
	AddAssignments(count int)
}

// PlannerService owns the in-memory assignment board. All board access goes
// through its mutex; the only long-running operation, the auto-assignment
// solve, runs on an immutable snapshot outside the lock.
type PlannerService struct {
	roster   rosterProvider
	calendar calendarProvider
	config   dutyConfigProvider
	store    assignmentStore
	cache    boardCache
	observer solverObserver

	solverTimeout time.Duration
	logger        *zap.Logger

	mu    sync.Mutex
	board *dutyBoard
}

// PlannerConfig tunes the planner.
type PlannerConfig struct {
	SolverTimeout time.Duration
}

// NewPlannerService wires the planner dependencies.
func NewPlannerService(
	roster rosterProvider,
	calendar calendarProvider,
	config dutyConfigProvider,
	store assignmentStore,
	cache boardCache,
	observer solverObserver,
	logger *zap.Logger,
	cfg PlannerConfig,
) *PlannerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SolverTimeout <= 0 {
		cfg.SolverTimeout = 30 * time.Second
	}
	return &PlannerService{
		roster:        roster,
		calendar:      calendar,
		config:        config,
		store:         store,
		cache:         cache,
		observer:      observer,
		solverTimeout: cfg.SolverTimeout,
		logger:        logger,
	}
}

// dutyBoard is the mutable assignment state for one calendar+roster+config
// snapshot.
type dutyBoard struct {
	calendar *models.ExamCalendar
	config   *models.DutyConfig
	teachers map[int]*models.Teacher
	order    []int

	required map[models.SlotRef]int
	assigned map[models.SlotRef][]int
}

// requiredFor computes the staffing requirement of a session.
func requiredFor(roomCount int, cfg *models.DutyConfig) int {
	if roomCount <= 0 {
		return 0
	}
	perRoom := float64(cfg.TeachersPerRoom) + cfg.SurplusPerRoom
	return int(math.Ceil(float64(roomCount) * perRoom))
}

func (b *dutyBoard) slotExists(ref models.SlotRef) bool {
	_, ok := b.required[ref]
	return ok
}

func (b *dutyBoard) isAssigned(teacherID int, ref models.SlotRef) bool {
	for _, id := range b.assigned[ref] {
		if id == teacherID {
			return true
		}
	}
	return false
}

func (b *dutyBoard) assignmentCount(teacherID int) int {
	count := 0
	for _, ids := range b.assigned {
		for _, id := range ids {
			if id == teacherID {
				count++
			}
		}
	}
	return count
}

func (b *dutyBoard) place(teacherID int, ref models.SlotRef) {
	b.assigned[ref] = append(b.assigned[ref], teacherID)
}

func (b *dutyBoard) remove(teacherID int, ref models.SlotRef) bool {
	ids := b.assigned[ref]
	for i, id := range ids {
		if id == teacherID {
			b.assigned[ref] = append(ids[:i], ids[i+1:]...)
			return true
		}
	}
	return false
}

func (b *dutyBoard) outstanding(ref models.SlotRef) int {
	gap := b.required[ref] - len(b.assigned[ref])
	if gap < 0 {
		return 0
	}
	return gap
}

func (b *dutyBoard) totalOutstanding() int {
	total := 0
	for ref := range b.required {
		total += b.outstanding(ref)
	}
	return total
}

// Reload rebuilds the board from the providers. Assignments survive for
// slots that still exist and teachers still on the roster; requirements are
// always recomputed.
func (s *PlannerService) Reload(ctx context.Context) error {
	board, err := s.buildBoard(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.board != nil {
		carryAssignments(s.board, board)
	} else if s.store != nil {
		records, err := s.store.ListAll(ctx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load persisted assignments")
		}
		seedAssignments(board, records)
	}

	s.board = board
	s.invalidate(ctx)
	return nil
}

func (s *PlannerService) buildBoard(ctx context.Context) (*dutyBoard, error) {
	calendar, err := s.calendar.Current(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam calendar")
	}
	cfg, err := s.config.Current(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load duty configuration")
	}
	if cfg == nil {
		cfg = models.NewDutyConfig()
	}
	participants, err := s.roster.ListParticipants(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load surveillance roster")
	}

	board := &dutyBoard{
		calendar: calendar,
		config:   cfg.Clone(),
		teachers: make(map[int]*models.Teacher, len(participants)),
		required: make(map[models.SlotRef]int),
		assigned: make(map[models.SlotRef][]int),
	}
	for i := range participants {
		teacher := participants[i]
		board.teachers[teacher.ID] = &teacher
		board.order = append(board.order, teacher.ID)
	}
	sort.Ints(board.order)

	if calendar != nil {
		for dayIdx, day := range calendar.Days {
			for sessIdx, session := range day.Sessions {
				ref := models.SlotRefFromIndex(dayIdx, sessIdx)
				board.required[ref] = requiredFor(session.RoomCount(), board.config)
				board.assigned[ref] = nil
			}
		}
	}
	return board, nil
}

func carryAssignments(old, next *dutyBoard) {
	for ref, ids := range old.assigned {
		if !next.slotExists(ref) {
			continue
		}
		for _, id := range ids {
			if _, ok := next.teachers[id]; !ok {
				continue
			}
			next.place(id, ref)
		}
	}
}

func seedAssignments(board *dutyBoard, records []models.AssignmentRecord) {
	for _, record := range records {
		ref := record.Slot()
		if !board.slotExists(ref) {
			continue
		}
		if _, ok := board.teachers[record.TeacherID]; !ok {
			continue
		}
		if board.isAssigned(record.TeacherID, ref) {
			continue
		}
		board.place(record.TeacherID, ref)
	}
}

func (s *PlannerService) ensureBoard(ctx context.Context) error {
	s.mu.Lock()
	loaded := s.board != nil
	s.mu.Unlock()
	if loaded {
		return nil
	}
	return s.Reload(ctx)
}

// Assign places a teacher on a session after running the validation chain:
// session exists, teacher participates, not already assigned, quota not
// exhausted, declared availability. Force placement bypasses only the
// availability check; a forced placement over an unavailability is flagged
// as a conflict but still succeeds. The quota always binds.
func (s *PlannerService) Assign(ctx context.Context, teacherID int, ref models.SlotRef, force bool) (*models.AssignResult, error) {
	if err := s.ensureBoard(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	board := s.board
	result, err := s.validatePlacement(board, teacherID, ref, force)
	if err != nil {
		return nil, err
	}

	board.place(teacherID, ref)

	if s.store != nil {
		record := models.AssignmentRecord{TeacherID: teacherID, Day: ref.Day, Session: ref.Session, Forced: force}
		if err := s.store.Save(ctx, record); err != nil {
			board.remove(teacherID, ref)
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist assignment")
		}
	}

	s.invalidate(ctx)
	return result, nil
}

func (s *PlannerService) validatePlacement(board *dutyBoard, teacherID int, ref models.SlotRef, force bool) (*models.AssignResult, error) {
	if !board.slotExists(ref) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("session %s not found", ref))
	}
	teacher, ok := board.teachers[teacherID]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidPerson, fmt.Sprintf("teacher %d is not on the surveillance roster", teacherID))
	}
	if board.isAssigned(teacherID, ref) {
		return nil, appErrors.ErrAlreadyAssigned
	}
	quota := board.config.QuotaFor(teacher.Grade)
	if board.assignmentCount(teacherID) >= quota {
		return nil, appErrors.Clone(appErrors.ErrQuotaExceeded, fmt.Sprintf("teacher %d reached the %s quota of %d duties", teacherID, teacher.Grade, quota))
	}

	result := &models.AssignResult{TeacherID: teacherID, Slot: ref}
	if !teacher.Availability.Available(ref) {
		if !force {
			return nil, appErrors.ErrAvailabilityConflict
		}
		result.IsConflict = true
	}
	return result, nil
}

// Remove withdraws a teacher from a session.
func (s *PlannerService) Remove(ctx context.Context, teacherID int, ref models.SlotRef) error {
	if err := s.ensureBoard(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	board := s.board
	if !board.slotExists(ref) {
		return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("session %s not found", ref))
	}
	if !board.remove(teacherID, ref) {
		return appErrors.ErrNotAssigned
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, teacherID, ref.Day, ref.Session); err != nil {
			board.place(teacherID, ref)
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment")
		}
	}

	s.invalidate(ctx)
	return nil
}

// ReplaceSlot swaps the full teacher list of a session. Every incoming id is
// validated against the board state without the current slot occupants; on
// any failure the board is untouched.
func (s *PlannerService) ReplaceSlot(ctx context.Context, ref models.SlotRef, teacherIDs []int, force bool) ([]models.AssignResult, error) {
	if err := s.ensureBoard(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	board := s.board
	if !board.slotExists(ref) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("session %s not found", ref))
	}

	seen := make(map[int]struct{}, len(teacherIDs))
	results := make([]models.AssignResult, 0, len(teacherIDs))
	previous := append([]int(nil), board.assigned[ref]...)

	// Validate against the board as if the slot were empty.
	board.assigned[ref] = nil
	for _, id := range teacherIDs {
		if _, dup := seen[id]; dup {
			board.assigned[ref] = previous
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("teacher %d listed twice", id))
		}
		seen[id] = struct{}{}

		result, err := s.validatePlacement(board, id, ref, force)
		if err != nil {
			board.assigned[ref] = previous
			return nil, err
		}
		board.place(id, ref)
		results = append(results, *result)
	}

	if s.store != nil {
		records := make([]models.AssignmentRecord, 0, len(teacherIDs))
		for _, id := range teacherIDs {
			records = append(records, models.AssignmentRecord{TeacherID: id, Day: ref.Day, Session: ref.Session, Forced: force})
		}
		if err := s.store.ReplaceSlot(ctx, ref.Day, ref.Session, records); err != nil {
			board.assigned[ref] = previous
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist slot replacement")
		}
	}

	s.invalidate(ctx)
	return results, nil
}

// Conflicts scans the board for active assignments that contradict declared
// unavailability. The result is computed fresh on every call; availability
// edits surface immediately.
func (s *PlannerService) Conflicts(ctx context.Context) ([]models.Conflict, error) {
	if err := s.ensureBoard(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	board := s.board
	conflicts := make([]models.Conflict, 0)
	refs := make([]models.SlotRef, 0, len(board.assigned))
	for ref := range board.assigned {
		refs = append(refs, ref)
	}
	models.SortSlotRefs(refs)

	for _, ref := range refs {
		day, session, ok := board.calendar.SessionAt(ref)
		if !ok {
			continue
		}
		for _, id := range board.assigned[ref] {
			teacher, ok := board.teachers[id]
			if !ok || teacher.Availability.Available(ref) {
				continue
			}
			conflicts = append(conflicts, models.Conflict{
				TeacherID: id,
				FullName:  teacher.FullName(),
				Grade:     teacher.Grade,
				Email:     teacher.Email,
				Slot:      ref,
				Date:      day.Date.Format("2006-01-02"),
				StartTime: session.StartTime,
				EndTime:   session.EndTime,
			})
		}
	}
	return conflicts, nil
}

// Summary aggregates the whole board: totals, per-session staffing and
// per-teacher quota consumption.
func (s *PlannerService) Summary(ctx context.Context) (*models.Summary, error) {
	if err := s.ensureBoard(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	board := s.board
	summary := &models.Summary{
		Slots:          make([]models.SlotStatus, 0, len(board.required)),
		Teachers:       make([]models.TeacherLoad, 0, len(board.order)),
		GeneratedAtUTC: time.Now().UTC(),
	}

	refs := make([]models.SlotRef, 0, len(board.required))
	for ref := range board.required {
		refs = append(refs, ref)
	}
	models.SortSlotRefs(refs)

	for _, ref := range refs {
		day, session, ok := board.calendar.SessionAt(ref)
		if !ok {
			continue
		}
		ids := append([]int(nil), board.assigned[ref]...)
		sort.Ints(ids)

		status := models.SlotStatus{
			Slot:         ref,
			Date:         day.Date.Format("2006-01-02"),
			StartTime:    session.StartTime,
			EndTime:      session.EndTime,
			RoomCount:    session.RoomCount(),
			Required:     board.required[ref],
			Assigned:     len(ids),
			AssignedIDs:  ids,
			OverAssigned: len(ids) > board.required[ref],
		}
		for _, id := range ids {
			if teacher, ok := board.teachers[id]; ok && !teacher.Availability.Available(ref) {
				status.HasConflict = true
				summary.ConflictCount++
			}
		}

		summary.TotalRequired += status.Required
		summary.TotalAssigned += status.Assigned
		switch {
		case status.Assigned >= status.Required:
			summary.FullyStaffed++
		case status.Assigned == 0:
			summary.Unstaffed++
		default:
			summary.PartiallyStaffed++
		}
		summary.Slots = append(summary.Slots, status)
	}

	for _, id := range board.order {
		teacher := board.teachers[id]
		load := models.TeacherLoad{
			TeacherID: id,
			FullName:  teacher.FullName(),
			Grade:     teacher.Grade,
			Quota:     board.config.QuotaFor(teacher.Grade),
			Assigned:  board.assignmentCount(id),
		}
		if load.Quota > 0 {
			load.UtilizationPct = float64(load.Assigned) / float64(load.Quota) * 100
		}
		summary.Teachers = append(summary.Teachers, load)
	}

	return summary, nil
}

func (s *PlannerService) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateBoard(ctx)
	}
}
