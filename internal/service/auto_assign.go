package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/invigilo/exam-duty-api/internal/models"
	"github.com/invigilo/exam-duty-api/internal/solver"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
)

// Objective weights of the placement model. Responsibility for a session's
// own exams dominates, then plain availability; declared unavailability is
// penalized but not forbidden, and back-to-back duties on the same day earn
// a small bonus.
const (
	weightResponsible = 100000
	weightAvailable   = 10000
	weightUnavailable = -5000
	weightConsecutive = 1000
)

// placementCandidate ties a solver variable back to a concrete placement.
type placementCandidate struct {
	teacherID   int
	ref         models.SlotRef
	unavailable bool
}

// placementModel is the immutable solver input built under the board lock.
type placementModel struct {
	model      *solver.Model
	candidates map[int]placementCandidate
	targets    map[string]int
	need       int
}

// AutoAssign fills the outstanding staffing need in two phases: a greedy
// per-grade fair-share spread decides how many new duties each teacher
// should take, then a pseudo-boolean model places them. The solve runs
// outside the board lock on a snapshot; the solution is applied as forced
// placements afterwards.
func (s *PlannerService) AutoAssign(ctx context.Context) (*models.AutoAssignReport, error) {
	if err := s.ensureBoard(ctx); err != nil {
		return nil, err
	}

	start := time.Now()

	s.mu.Lock()
	need := s.board.totalOutstanding()
	if need == 0 || len(s.board.teachers) == 0 {
		s.mu.Unlock()
		report := &models.AutoAssignReport{
			Status:       models.AutoAssignCompleteSuccess,
			SolverStatus: models.SolverStatusTrivial,
			Remaining:    need,
			GradeTargets: map[string]int{},
			Duration:     time.Since(start),
		}
		if need > 0 {
			report.Message = "no teachers on the surveillance roster"
		}
		s.observeSolve(report.SolverStatus, report.Duration)
		return report, nil
	}

	pm := s.buildPlacementModel()
	s.mu.Unlock()

	if len(pm.candidates) == 0 {
		report := &models.AutoAssignReport{
			Status:       models.AutoAssignPartialSuccess,
			SolverStatus: models.SolverStatusInfeasible,
			Remaining:    need,
			GradeTargets: pm.targets,
			Duration:     time.Since(start),
			Message:      "no teacher has quota headroom left",
		}
		s.observeSolve(report.SolverStatus, report.Duration)
		return report, nil
	}

	solveCtx, cancel := context.WithTimeout(ctx, s.solverTimeout)
	defer cancel()

	result, err := solver.Maximize(solveCtx, pm.model)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "placement solve failed")
	}

	report := &models.AutoAssignReport{
		SolverStatus: string(result.Status),
		GradeTargets: pm.targets,
	}

	switch result.Status {
	case solver.StatusInfeasible, solver.StatusUnknown:
		report.Status = models.AutoAssignPartialSuccess
		report.Remaining = need
		report.Duration = time.Since(start)
		report.Message = "no placement satisfies the per-teacher targets and session needs"
		s.observeSolve(report.SolverStatus, report.Duration)
		s.logger.Warn("auto-assign found no placement",
			zap.String("solver_status", report.SolverStatus),
			zap.Int("outstanding", need))
		return report, nil
	}

	made, remaining, err := s.applySolution(ctx, pm, result)
	if err != nil {
		return nil, err
	}

	report.AssignmentsMade = made
	report.Remaining = remaining
	report.Duration = time.Since(start)
	if remaining == 0 {
		report.Status = models.AutoAssignCompleteSuccess
	} else {
		report.Status = models.AutoAssignPartialSuccess
		report.Message = fmt.Sprintf("%d duties remain unfilled", remaining)
	}

	s.observeSolve(report.SolverStatus, report.Duration)
	if s.observer != nil {
		s.observer.AddAssignments(made)
	}
	s.logger.Info("auto-assign finished",
		zap.String("status", report.Status),
		zap.String("solver_status", report.SolverStatus),
		zap.Int("assignments_made", made),
		zap.Int("remaining", remaining),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// buildPlacementModel snapshots the board into a pseudo-boolean model.
// Caller must hold the board lock.
func (s *PlannerService) buildPlacementModel() *placementModel {
	board := s.board
	need := board.totalOutstanding()
	targets := spreadFairShare(s.gradePools(), need)

	pm := &placementModel{
		model:      solver.NewModel(),
		candidates: make(map[int]placementCandidate),
		targets:    targets,
		need:       need,
	}

	refs := make([]models.SlotRef, 0, len(board.required))
	for ref := range board.required {
		refs = append(refs, ref)
	}
	models.SortSlotRefs(refs)

	slotVars := make(map[models.SlotRef][]int)
	personVars := make(map[int][]int)
	varAt := make(map[int]map[models.SlotRef]int)

	for _, id := range board.order {
		teacher := board.teachers[id]
		quota := board.config.QuotaFor(teacher.Grade)
		target := targets[teacher.Grade]
		if headroom := quota - board.assignmentCount(id); headroom < target {
			target = headroom
		}
		if target <= 0 {
			continue
		}

		varAt[id] = make(map[models.SlotRef]int)
		for _, ref := range refs {
			if board.isAssigned(id, ref) {
				continue
			}
			v := pm.model.NewVar()
			pm.candidates[v] = placementCandidate{
				teacherID:   id,
				ref:         ref,
				unavailable: !teacher.Availability.Available(ref),
			}
			slotVars[ref] = append(slotVars[ref], v)
			personVars[id] = append(personVars[id], v)
			varAt[id][ref] = v

			weight := weightAvailable
			if pm.candidates[v].unavailable {
				weight = weightUnavailable
			}
			if _, session, ok := board.calendar.SessionAt(ref); ok && session.IsResponsible(id) {
				weight += weightResponsible
			}
			pm.model.AddObjectiveTerm(v, weight)
		}

		pm.model.Exactly(personVars[id], target)
	}

	for _, ref := range refs {
		gap := board.outstanding(ref)
		if gap <= 0 {
			continue
		}
		// A slot with no candidates left stays under-covered and reports as
		// unsatisfied; constraining it would sink the whole model.
		if len(slotVars[ref]) == 0 {
			continue
		}
		pm.model.AtLeast(slotVars[ref], gap)
	}

	s.addConsecutiveBonuses(pm, varAt)
	return pm
}

// addConsecutiveBonuses rewards a pair of back-to-back sessions of the same
// day both newly assigned to one teacher, through an AND-linked auxiliary
// variable per pair.
func (s *PlannerService) addConsecutiveBonuses(pm *placementModel, varAt map[int]map[models.SlotRef]int) {
	board := s.board
	if board.calendar == nil {
		return
	}

	ids := make([]int, 0, len(varAt))
	for id := range varAt {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		for dayIdx, day := range board.calendar.Days {
			for sessIdx := 0; sessIdx+1 < len(day.Sessions); sessIdx++ {
				left := models.SlotRefFromIndex(dayIdx, sessIdx)
				right := models.SlotRefFromIndex(dayIdx, sessIdx+1)

				lv, hasLeft := varAt[id][left]
				rv, hasRight := varAt[id][right]
				if hasLeft && hasRight {
					pair := pm.model.And(lv, rv)
					pm.model.AddObjectiveTerm(pair, weightConsecutive)
				}
			}
		}
	}
}

// gradePools groups every participating teacher by grade, carrying the
// grade's head count and mean existing load. Teachers already at quota stay
// in the pool; the spread's eligibility test accounts for them through the
// average. Caller must hold the lock.
func (s *PlannerService) gradePools() []gradePool {
	board := s.board
	type acc struct {
		size  int
		total int
	}
	byGrade := make(map[string]*acc)
	for _, id := range board.order {
		teacher := board.teachers[id]
		a := byGrade[teacher.Grade]
		if a == nil {
			a = &acc{}
			byGrade[teacher.Grade] = a
		}
		a.size++
		a.total += board.assignmentCount(id)
	}

	pools := make([]gradePool, 0, len(byGrade))
	for grade, a := range byGrade {
		pools = append(pools, gradePool{
			Grade:       grade,
			Size:        a.size,
			Quota:       board.config.QuotaFor(grade),
			AvgAssigned: float64(a.total) / float64(a.size),
		})
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Grade < pools[j].Grade })
	return pools
}

// applySolution places every selected candidate back on the live board. The
// board may have moved while the solver ran; stale candidates (teacher gone,
// slot gone, already assigned) are skipped silently.
func (s *PlannerService) applySolution(ctx context.Context, pm *placementModel, result solver.Result) (made, remaining int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	board := s.board
	records := make([]models.AssignmentRecord, 0)

	vars := make([]int, 0, len(pm.candidates))
	for v := range pm.candidates {
		vars = append(vars, v)
	}
	sort.Ints(vars)

	for _, v := range vars {
		if !result.Value(v) {
			continue
		}
		candidate := pm.candidates[v]
		if _, ok := board.teachers[candidate.teacherID]; !ok {
			continue
		}
		if !board.slotExists(candidate.ref) {
			continue
		}
		if board.isAssigned(candidate.teacherID, candidate.ref) {
			continue
		}
		board.place(candidate.teacherID, candidate.ref)
		records = append(records, models.AssignmentRecord{
			TeacherID: candidate.teacherID,
			Day:       candidate.ref.Day,
			Session:   candidate.ref.Session,
			Forced:    candidate.unavailable,
		})
		made++
	}

	if s.store != nil && len(records) > 0 {
		if err := s.store.SaveBatch(ctx, records); err != nil {
			for _, record := range records {
				board.remove(record.TeacherID, record.Slot())
			}
			return 0, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist auto-assignment")
		}
	}

	s.invalidate(ctx)
	return made, board.totalOutstanding(), nil
}

func (s *PlannerService) observeSolve(status string, duration time.Duration) {
	if s.observer != nil {
		s.observer.ObserveSolve(status, duration)
	}
}
