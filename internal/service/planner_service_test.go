package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/exam-duty-api/internal/models"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
)

type stubRoster struct {
	teachers []models.Teacher
}

func (s *stubRoster) ListParticipants(context.Context) ([]models.Teacher, error) {
	return s.teachers, nil
}

type stubCalendar struct {
	calendar *models.ExamCalendar
}

func (s *stubCalendar) Current(context.Context) (*models.ExamCalendar, error) {
	return s.calendar, nil
}

type stubConfig struct {
	config *models.DutyConfig
}

func (s *stubConfig) Current(context.Context) (*models.DutyConfig, error) {
	return s.config, nil
}

type memStore struct {
	records []models.AssignmentRecord
	fail    bool
}

func (m *memStore) ListAll(context.Context) ([]models.AssignmentRecord, error) {
	return append([]models.AssignmentRecord(nil), m.records...), nil
}

func (m *memStore) Save(_ context.Context, record models.AssignmentRecord) error {
	if m.fail {
		return errors.New("store down")
	}
	m.records = append(m.records, record)
	return nil
}

func (m *memStore) Delete(_ context.Context, teacherID, day, session int) error {
	if m.fail {
		return errors.New("store down")
	}
	for i, record := range m.records {
		if record.TeacherID == teacherID && record.Day == day && record.Session == session {
			m.records = append(m.records[:i], m.records[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memStore) ReplaceSlot(_ context.Context, day, session int, records []models.AssignmentRecord) error {
	if m.fail {
		return errors.New("store down")
	}
	kept := m.records[:0]
	for _, record := range m.records {
		if record.Day != day || record.Session != session {
			kept = append(kept, record)
		}
	}
	m.records = append(kept, records...)
	return nil
}

func (m *memStore) SaveBatch(_ context.Context, records []models.AssignmentRecord) error {
	if m.fail {
		return errors.New("store down")
	}
	m.records = append(m.records, records...)
	return nil
}

func sessionsOf(times ...string) []models.ExamSession {
	sessions := make([]models.ExamSession, 0, len(times)/2)
	for i := 0; i+1 < len(times); i += 2 {
		sessions = append(sessions, models.ExamSession{
			StartTime:  times[i],
			EndTime:    times[i+1],
			Rooms:      map[string]struct{}{"A101": {}},
			ProctorIDs: map[int]struct{}{},
		})
	}
	return sessions
}

func testCalendar() *models.ExamCalendar {
	return &models.ExamCalendar{
		Semester: "S1",
		ExamType: models.ExamTypeExamen,
		Round:    models.RoundPrincipale,
		Days: []models.ExamDay{
			{Date: time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC), Sessions: sessionsOf("08:30", "10:00", "10:30", "12:00")},
			{Date: time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC), Sessions: sessionsOf("08:30", "10:00", "10:30", "12:00")},
		},
	}
}

func testTeacher(id int, lastName, grade string, unavailableSlots ...models.SlotRef) models.Teacher {
	teacher := models.Teacher{
		ID:           id,
		LastName:     lastName,
		FirstName:    "Alex",
		Email:        lastName + "@univ.example",
		Grade:        grade,
		Participates: true,
	}
	if len(unavailableSlots) > 0 {
		unavailable := make(map[models.SlotRef]struct{}, len(unavailableSlots))
		for _, ref := range unavailableSlots {
			unavailable[ref] = struct{}{}
		}
		teacher.Availability = &models.AvailabilityProfile{Semester: "S1", Session: "Principale", Unavailable: unavailable}
	}
	return teacher
}

func newTestPlanner(t *testing.T, teachers []models.Teacher, calendar *models.ExamCalendar, cfg *models.DutyConfig) (*PlannerService, *memStore) {
	t.Helper()
	store := &memStore{}
	planner := NewPlannerService(
		&stubRoster{teachers: teachers},
		&stubCalendar{calendar: calendar},
		&stubConfig{config: cfg},
		store,
		nil,
		nil,
		nil,
		PlannerConfig{SolverTimeout: 10 * time.Second},
	)
	require.NoError(t, planner.Reload(context.Background()))
	return planner, store
}

func baseConfig(quotas map[string]int) *models.DutyConfig {
	cfg := models.NewDutyConfig()
	cfg.GradeQuotas = quotas
	return cfg
}

func TestRequiredForUsesCeiling(t *testing.T) {
	cfg := models.NewDutyConfig()
	assert.Equal(t, 8, requiredFor(3, cfg))
	assert.Equal(t, 3, requiredFor(1, cfg))
	assert.Equal(t, 0, requiredFor(0, cfg))

	cfg.TeachersPerRoom = 1
	cfg.SurplusPerRoom = 0
	assert.Equal(t, 4, requiredFor(4, cfg))
}

func TestAssignValidationChain(t *testing.T) {
	ctx := context.Background()
	slot := models.SlotRef{Day: 1, Session: 1}
	teachers := []models.Teacher{
		testTeacher(1, "Martin", "PR"),
		testTeacher(2, "Bernard", "PR", slot),
	}
	planner, _ := newTestPlanner(t, teachers, testCalendar(), baseConfig(map[string]int{"PR": 1}))

	_, err := planner.Assign(ctx, 99, slot, false)
	assertCode(t, err, appErrors.ErrInvalidPerson.Code)

	_, err = planner.Assign(ctx, 1, models.SlotRef{Day: 9, Session: 1}, false)
	assertCode(t, err, appErrors.ErrNotFound.Code)

	_, err = planner.Assign(ctx, 1, slot, false)
	require.NoError(t, err)

	_, err = planner.Assign(ctx, 1, slot, false)
	assertCode(t, err, appErrors.ErrAlreadyAssigned.Code)

	// Quota of 1 is consumed.
	_, err = planner.Assign(ctx, 1, models.SlotRef{Day: 1, Session: 2}, false)
	assertCode(t, err, appErrors.ErrQuotaExceeded.Code)

	// Teacher 2 declared this slot unavailable.
	_, err = planner.Assign(ctx, 2, slot, false)
	assertCode(t, err, appErrors.ErrAvailabilityConflict.Code)

	result, err := planner.Assign(ctx, 2, slot, true)
	require.NoError(t, err)
	assert.True(t, result.IsConflict)
}

func TestAssignForceStillEnforcesQuota(t *testing.T) {
	ctx := context.Background()
	planner, _ := newTestPlanner(t,
		[]models.Teacher{testTeacher(1, "Martin", "PR")},
		testCalendar(),
		baseConfig(map[string]int{"PR": 1}),
	)

	_, err := planner.Assign(ctx, 1, models.SlotRef{Day: 1, Session: 1}, false)
	require.NoError(t, err)

	// Force only overrides declared unavailability, never the quota.
	_, err = planner.Assign(ctx, 1, models.SlotRef{Day: 1, Session: 2}, true)
	assertCode(t, err, appErrors.ErrQuotaExceeded.Code)

	summary, err := planner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalAssigned)
}

func TestAssignChecksSessionBeforeTeacher(t *testing.T) {
	ctx := context.Background()
	planner, _ := newTestPlanner(t,
		[]models.Teacher{testTeacher(1, "Martin", "PR")},
		testCalendar(),
		baseConfig(map[string]int{"PR": 4}),
	)

	// Both the teacher and the session are unknown; the session wins.
	_, err := planner.Assign(ctx, 99, models.SlotRef{Day: 9, Session: 1}, false)
	assertCode(t, err, appErrors.ErrNotFound.Code)
}

func TestAssignRemoveRoundTrip(t *testing.T) {
	ctx := context.Background()
	slot := models.SlotRef{Day: 2, Session: 1}
	planner, store := newTestPlanner(t,
		[]models.Teacher{testTeacher(1, "Martin", "PR")},
		testCalendar(),
		baseConfig(map[string]int{"PR": 4}),
	)

	result, err := planner.Assign(ctx, 1, slot, false)
	require.NoError(t, err)
	assert.False(t, result.IsConflict)
	assert.Len(t, store.records, 1)

	require.NoError(t, planner.Remove(ctx, 1, slot))
	assert.Empty(t, store.records)

	err = planner.Remove(ctx, 1, slot)
	assertCode(t, err, appErrors.ErrNotAssigned.Code)

	summary, err := planner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalAssigned)
}

func TestAssignRollsBackWhenStoreFails(t *testing.T) {
	ctx := context.Background()
	slot := models.SlotRef{Day: 1, Session: 1}
	planner, store := newTestPlanner(t,
		[]models.Teacher{testTeacher(1, "Martin", "PR")},
		testCalendar(),
		baseConfig(map[string]int{"PR": 4}),
	)
	store.fail = true

	_, err := planner.Assign(ctx, 1, slot, false)
	assertCode(t, err, appErrors.ErrInternal.Code)

	store.fail = false
	summary, err := planner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.TotalAssigned)
}

func TestReplaceSlotIsAtomic(t *testing.T) {
	ctx := context.Background()
	slot := models.SlotRef{Day: 1, Session: 1}
	planner, _ := newTestPlanner(t,
		[]models.Teacher{testTeacher(1, "Martin", "PR"), testTeacher(2, "Bernard", "PR")},
		testCalendar(),
		baseConfig(map[string]int{"PR": 4}),
	)

	_, err := planner.Assign(ctx, 1, slot, false)
	require.NoError(t, err)

	// Unknown id 99 fails the batch; teacher 1 must stay in place.
	_, err = planner.ReplaceSlot(ctx, slot, []int{2, 99}, false)
	assertCode(t, err, appErrors.ErrInvalidPerson.Code)

	summary, err := planner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, summary.Slots[0].AssignedIDs)

	// Duplicate ids are rejected before any mutation.
	_, err = planner.ReplaceSlot(ctx, slot, []int{2, 2}, false)
	assertCode(t, err, appErrors.ErrValidation.Code)

	results, err := planner.ReplaceSlot(ctx, slot, []int{2}, false)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	summary, err = planner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, summary.Slots[0].AssignedIDs)
}

func TestConflictsTrackForcedPlacements(t *testing.T) {
	ctx := context.Background()
	slot := models.SlotRef{Day: 1, Session: 2}
	planner, _ := newTestPlanner(t,
		[]models.Teacher{testTeacher(1, "Martin", "PR", slot)},
		testCalendar(),
		baseConfig(map[string]int{"PR": 4}),
	)

	conflicts, err := planner.Conflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	_, err = planner.Assign(ctx, 1, slot, true)
	require.NoError(t, err)

	conflicts, err = planner.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, 1, conflicts[0].TeacherID)
	assert.Equal(t, slot, conflicts[0].Slot)
	assert.Equal(t, "2026-01-12", conflicts[0].Date)
	assert.Equal(t, "10:30", conflicts[0].StartTime)

	require.NoError(t, planner.Remove(ctx, 1, slot))
	conflicts, err = planner.Conflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestSummaryAggregates(t *testing.T) {
	ctx := context.Background()
	planner, _ := newTestPlanner(t,
		[]models.Teacher{testTeacher(1, "Martin", "PR"), testTeacher(2, "Bernard", "MC")},
		testCalendar(),
		baseConfig(map[string]int{"PR": 4, "MC": 2}),
	)

	_, err := planner.Assign(ctx, 1, models.SlotRef{Day: 1, Session: 1}, false)
	require.NoError(t, err)

	summary, err := planner.Summary(ctx)
	require.NoError(t, err)

	// 4 sessions, 1 room each, ceil(1*(2+0.5)) = 3 required per session.
	assert.Equal(t, 12, summary.TotalRequired)
	assert.Equal(t, 1, summary.TotalAssigned)
	assert.Equal(t, 0, summary.FullyStaffed)
	assert.Equal(t, 1, summary.PartiallyStaffed)
	assert.Equal(t, 3, summary.Unstaffed)
	assert.Len(t, summary.Slots, 4)
	assert.Len(t, summary.Teachers, 2)
	assert.Equal(t, 1, summary.Teachers[0].Assigned)
	assert.Equal(t, 4, summary.Teachers[0].Quota)
	assert.InDelta(t, 25.0, summary.Teachers[0].UtilizationPct, 1e-9)
	assert.Equal(t, 0, summary.Teachers[1].Assigned)
	assert.Zero(t, summary.Teachers[1].UtilizationPct)
}

func TestReloadPreservesSurvivingAssignments(t *testing.T) {
	ctx := context.Background()
	calendar := testCalendar()
	planner, _ := newTestPlanner(t,
		[]models.Teacher{testTeacher(1, "Martin", "PR")},
		calendar,
		baseConfig(map[string]int{"PR": 4}),
	)

	_, err := planner.Assign(ctx, 1, models.SlotRef{Day: 2, Session: 1}, false)
	require.NoError(t, err)
	_, err = planner.Assign(ctx, 1, models.SlotRef{Day: 1, Session: 1}, false)
	require.NoError(t, err)

	// Drop day 2 from the calendar and reload.
	calendar.Days = calendar.Days[:1]
	require.NoError(t, planner.Reload(ctx))

	summary, err := planner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.TotalAssigned)
	assert.Equal(t, []int{1}, summary.Slots[0].AssignedIDs)
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, code, appErr.Code)
}
