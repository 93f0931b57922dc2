package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/exam-duty-api/internal/models"
)

func smallCalendar(sessionsPerDay int, days int) *models.ExamCalendar {
	calendar := &models.ExamCalendar{
		Semester: "S1",
		ExamType: models.ExamTypeExamen,
		Round:    models.RoundPrincipale,
	}
	base := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	starts := []string{"08:30", "10:30", "14:00", "16:00"}
	ends := []string{"10:00", "12:00", "15:30", "17:30"}
	for d := 0; d < days; d++ {
		day := models.ExamDay{Date: base.AddDate(0, 0, d)}
		for s := 0; s < sessionsPerDay; s++ {
			day.Sessions = append(day.Sessions, models.ExamSession{
				StartTime:  starts[s],
				EndTime:    ends[s],
				Rooms:      map[string]struct{}{"A101": {}},
				ProctorIDs: map[int]struct{}{},
			})
		}
		calendar.Days = append(calendar.Days, day)
	}
	return calendar
}

func lightConfig(quotas map[string]int) *models.DutyConfig {
	cfg := models.NewDutyConfig()
	cfg.GradeQuotas = quotas
	cfg.TeachersPerRoom = 1
	cfg.SurplusPerRoom = 0
	return cfg
}

func TestAutoAssignTrivialWhenNothingToDo(t *testing.T) {
	planner, _ := newTestPlanner(t, nil, &models.ExamCalendar{}, lightConfig(nil))

	report, err := planner.AutoAssign(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AutoAssignCompleteSuccess, report.Status)
	assert.Equal(t, models.SolverStatusTrivial, report.SolverStatus)
	assert.Equal(t, 0, report.AssignmentsMade)
}

func TestAutoAssignReportsMissingRoster(t *testing.T) {
	planner, _ := newTestPlanner(t, nil, smallCalendar(1, 1), lightConfig(nil))

	report, err := planner.AutoAssign(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.AutoAssignCompleteSuccess, report.Status)
	assert.Equal(t, models.SolverStatusTrivial, report.SolverStatus)
	assert.Equal(t, 0, report.AssignmentsMade)
	assert.NotEmpty(t, report.Message)
}

func TestAutoAssignFillsAllSessions(t *testing.T) {
	ctx := context.Background()
	teachers := []models.Teacher{
		testTeacher(1, "Martin", "PR"),
		testTeacher(2, "Bernard", "PR"),
	}
	planner, store := newTestPlanner(t, teachers, smallCalendar(1, 2), lightConfig(map[string]int{"PR": 1}))

	report, err := planner.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AutoAssignCompleteSuccess, report.Status)
	assert.Equal(t, 2, report.AssignmentsMade)
	assert.Equal(t, 0, report.Remaining)
	assert.Equal(t, 1, report.GradeTargets["PR"])
	assert.Len(t, store.records, 2)

	summary, err := planner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary.TotalRequired, summary.TotalAssigned)
	for _, load := range summary.Teachers {
		assert.LessOrEqual(t, load.Assigned, load.Quota)
	}
}

func TestAutoAssignSecondRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	teachers := []models.Teacher{
		testTeacher(1, "Martin", "PR"),
		testTeacher(2, "Bernard", "PR"),
	}
	planner, _ := newTestPlanner(t, teachers, smallCalendar(1, 2), lightConfig(map[string]int{"PR": 1}))

	first, err := planner.AutoAssign(ctx)
	require.NoError(t, err)
	require.Equal(t, models.AutoAssignCompleteSuccess, first.Status)

	second, err := planner.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AutoAssignCompleteSuccess, second.Status)
	assert.Equal(t, models.SolverStatusTrivial, second.SolverStatus)
	assert.Equal(t, 0, second.AssignmentsMade)
}

func TestAutoAssignNeverReducesCoverage(t *testing.T) {
	ctx := context.Background()
	teachers := []models.Teacher{
		testTeacher(1, "Martin", "PR"),
		testTeacher(2, "Bernard", "MC"),
		testTeacher(3, "Petit", "MC"),
	}
	planner, _ := newTestPlanner(t, teachers, smallCalendar(2, 2), lightConfig(map[string]int{"PR": 2, "MC": 2}))

	_, err := planner.Assign(ctx, 1, models.SlotRef{Day: 1, Session: 1}, false)
	require.NoError(t, err)

	before, err := planner.Summary(ctx)
	require.NoError(t, err)

	_, err = planner.AutoAssign(ctx)
	require.NoError(t, err)

	after, err := planner.Summary(ctx)
	require.NoError(t, err)
	for i, slot := range after.Slots {
		assert.GreaterOrEqual(t, slot.Assigned, before.Slots[i].Assigned)
	}
	// The manual placement survives.
	assert.Contains(t, after.Slots[0].AssignedIDs, 1)
}

func TestAutoAssignPrefersAvailableTeachers(t *testing.T) {
	ctx := context.Background()
	blocked := models.SlotRef{Day: 1, Session: 1}
	teachers := []models.Teacher{
		testTeacher(1, "Martin", "PR", blocked),
		testTeacher(2, "Bernard", "PR"),
	}
	planner, _ := newTestPlanner(t, teachers, smallCalendar(2, 1), lightConfig(map[string]int{"PR": 1}))

	report, err := planner.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AutoAssignCompleteSuccess, report.Status)

	summary, err := planner.Summary(ctx)
	require.NoError(t, err)
	// Teacher 1 is unavailable on day 1 session 1, so the solver should put
	// them on the other session.
	assert.Equal(t, []int{2}, summary.Slots[0].AssignedIDs)
	assert.Equal(t, []int{1}, summary.Slots[1].AssignedIDs)

	conflicts, err := planner.Conflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestAutoAssignSkipsUnfillableSessions(t *testing.T) {
	ctx := context.Background()
	calendar := smallCalendar(1, 2)
	calendar.Days[0].Sessions[0].Rooms = map[string]struct{}{"A101": {}, "A102": {}, "A103": {}}
	teachers := []models.Teacher{
		testTeacher(1, "Martin", "PR"),
		testTeacher(2, "Bernard", "PR"),
	}
	planner, _ := newTestPlanner(t, teachers, calendar, lightConfig(map[string]int{"PR": 5}))

	// Day 1 needs 3 teachers but the whole roster already holds it; the last
	// duty there has no candidate left and must not block day 2.
	_, err := planner.Assign(ctx, 1, models.SlotRef{Day: 1, Session: 1}, false)
	require.NoError(t, err)
	_, err = planner.Assign(ctx, 2, models.SlotRef{Day: 1, Session: 1}, false)
	require.NoError(t, err)

	report, err := planner.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AutoAssignPartialSuccess, report.Status)
	assert.Equal(t, 2, report.AssignmentsMade)
	assert.Equal(t, 1, report.Remaining)

	summary, err := planner.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, summary.Slots[1].AssignedIDs)
	assert.True(t, summary.Slots[1].OverAssigned)
}

func TestAutoAssignPartialWhenQuotaTooSmall(t *testing.T) {
	ctx := context.Background()
	teachers := []models.Teacher{testTeacher(1, "Martin", "PR")}
	// 4 sessions needing 1 teacher each, but the only teacher may take 2.
	planner, _ := newTestPlanner(t, teachers, smallCalendar(2, 2), lightConfig(map[string]int{"PR": 2}))

	report, err := planner.AutoAssign(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.AutoAssignPartialSuccess, report.Status)

	summary, err := planner.Summary(ctx)
	require.NoError(t, err)
	assert.LessOrEqual(t, summary.TotalAssigned, 2)
}
