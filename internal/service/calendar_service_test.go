package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/exam-duty-api/internal/models"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
)

type memCalendarStore struct {
	calendar *models.ExamCalendar
}

func (m *memCalendarStore) Replace(_ context.Context, calendar *models.ExamCalendar) error {
	m.calendar = calendar
	return nil
}

func (m *memCalendarStore) Current(context.Context) (*models.ExamCalendar, error) {
	return m.calendar, nil
}

func TestCalendarImportSessionsGroupsAndSorts(t *testing.T) {
	store := &memCalendarStore{}
	svc := NewCalendarService(store, nil)

	// Rows arrive out of date order and with the dummy time prefix some
	// exports carry. Two rows share a window on 12/01 and must merge.
	csv := strings.Join([]string{
		"dateExam,h_debut,h_fin,session,type ex,semestre,enseignant,cod_salle",
		"12/01/2026,30/12/1999 10:30:00,30/12/1999 12:00:00,P,E,S1,7,A101",
		"05/01/2026,08:30:00,10:00:00,P,E,S1,3,B202",
		"12/01/2026,10:30:00,12:00:00,P,E,S1,9,A102",
		"12/01/2026,08:30:00,10:00:00,P,E,S1,7,A101",
	}, "\n")

	calendar, err := svc.ImportSessions(context.Background(), "seances.csv", strings.NewReader(csv))
	require.NoError(t, err)
	require.NotNil(t, calendar)
	assert.Same(t, calendar, store.calendar)

	assert.Equal(t, "S1", calendar.Semester)
	assert.Equal(t, models.RoundPrincipale, calendar.Round)
	assert.Equal(t, models.ExamTypeExamen, calendar.ExamType)

	require.Len(t, calendar.Days, 2)
	assert.Equal(t, "2026-01-05", calendar.Days[0].Date.Format("2006-01-02"))
	assert.Equal(t, "2026-01-12", calendar.Days[1].Date.Format("2006-01-02"))

	require.Len(t, calendar.Days[1].Sessions, 2)
	first := calendar.Days[1].Sessions[0]
	second := calendar.Days[1].Sessions[1]
	assert.Equal(t, "08:30:00", first.StartTime)
	assert.Equal(t, "10:30:00", second.StartTime)

	// The two 10:30 rows merged into one session with both rooms.
	assert.Equal(t, 2, second.RoomCount())
	assert.True(t, second.IsResponsible(7))
	assert.True(t, second.IsResponsible(9))
	assert.False(t, second.IsResponsible(3))
}

func TestCalendarImportSessionsAcceptsISODates(t *testing.T) {
	svc := NewCalendarService(&memCalendarStore{}, nil)

	csv := "dateExam,h_debut,h_fin,session,type ex,semestre,enseignant,cod_salle\n" +
		"2026-01-05,08:30:00,10:00:00,C,DS,S2,4,C303\n"

	calendar, err := svc.ImportSessions(context.Background(), "seances.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, models.RoundControle, calendar.Round)
	assert.Equal(t, models.ExamTypeDevoir, calendar.ExamType)
	require.Len(t, calendar.Days, 1)
	assert.Equal(t, 1, calendar.SlotCount())
}

func TestCalendarImportSessionsRejectsBadDate(t *testing.T) {
	svc := NewCalendarService(&memCalendarStore{}, nil)

	csv := "dateExam,h_debut,h_fin,session,type ex,semestre,enseignant,cod_salle\n" +
		"not-a-date,08:30:00,10:00:00,P,E,S1,4,A101\n"

	_, err := svc.ImportSessions(context.Background(), "seances.csv", strings.NewReader(csv))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "line 2")
}

func TestCalendarImportSessionsRejectsEmptyFile(t *testing.T) {
	svc := NewCalendarService(&memCalendarStore{}, nil)

	_, err := svc.ImportSessions(context.Background(), "seances.csv",
		strings.NewReader("dateExam,h_debut,h_fin\n"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestCalendarImportSessionsReloadsBoard(t *testing.T) {
	svc := NewCalendarService(&memCalendarStore{}, nil)
	reloader := &countingReloader{}
	svc.AttachPlanner(reloader)

	csv := "dateExam,h_debut,h_fin,session,type ex,semestre,enseignant,cod_salle\n" +
		"05/01/2026,08:30:00,10:00:00,P,E,S1,4,A101\n"

	_, err := svc.ImportSessions(context.Background(), "seances.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, reloader.count)
}
