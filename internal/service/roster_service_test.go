package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/invigilo/exam-duty-api/internal/dto"
	"github.com/invigilo/exam-duty-api/internal/models"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
)

type memTeachers struct {
	teachers map[int]*models.Teacher
}

func newMemTeachers(teachers ...models.Teacher) *memTeachers {
	store := &memTeachers{teachers: make(map[int]*models.Teacher)}
	for i := range teachers {
		t := teachers[i]
		store.teachers[t.ID] = &t
	}
	return store
}

func (m *memTeachers) List(_ context.Context, _ models.TeacherFilter) ([]models.Teacher, int, error) {
	all, _ := m.ListAll(context.Background())
	return all, len(all), nil
}

func (m *memTeachers) ListAll(context.Context) ([]models.Teacher, error) {
	result := make([]models.Teacher, 0, len(m.teachers))
	for _, t := range m.teachers {
		result = append(result, *t)
	}
	return result, nil
}

func (m *memTeachers) ListParticipating(context.Context) ([]models.Teacher, error) {
	result := make([]models.Teacher, 0, len(m.teachers))
	for _, t := range m.teachers {
		if t.Participates {
			result = append(result, *t)
		}
	}
	return result, nil
}

func (m *memTeachers) FindByID(_ context.Context, id int) (*models.Teacher, error) {
	t, ok := m.teachers[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *t
	return &copied, nil
}

func (m *memTeachers) ExistsByEmail(_ context.Context, email string, excludeID int) (bool, error) {
	for _, t := range m.teachers {
		if strings.EqualFold(t.Email, email) && t.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memTeachers) NextFreeID(context.Context) (int, error) {
	max := 0
	for id := range m.teachers {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

func (m *memTeachers) Create(_ context.Context, teacher *models.Teacher) error {
	copied := *teacher
	m.teachers[teacher.ID] = &copied
	return nil
}

func (m *memTeachers) Update(_ context.Context, teacher *models.Teacher) error {
	copied := *teacher
	m.teachers[teacher.ID] = &copied
	return nil
}

func (m *memTeachers) Delete(_ context.Context, id int) error {
	delete(m.teachers, id)
	return nil
}

func (m *memTeachers) ListGrades(context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var grades []string
	for _, t := range m.teachers {
		if _, ok := seen[t.Grade]; !ok {
			seen[t.Grade] = struct{}{}
			grades = append(grades, t.Grade)
		}
	}
	return grades, nil
}

type memAvailability struct {
	profiles map[int]*models.AvailabilityProfile
}

func newMemAvailability() *memAvailability {
	return &memAvailability{profiles: make(map[int]*models.AvailabilityProfile)}
}

func (m *memAvailability) ReplaceForTeacher(_ context.Context, teacherID int, profile *models.AvailabilityProfile) error {
	if profile == nil {
		delete(m.profiles, teacherID)
		return nil
	}
	m.profiles[teacherID] = profile
	return nil
}

func (m *memAvailability) GetByTeacher(_ context.Context, teacherID int) (*models.AvailabilityProfile, error) {
	return m.profiles[teacherID], nil
}

func (m *memAvailability) ListAll(context.Context) (map[int]*models.AvailabilityProfile, error) {
	return m.profiles, nil
}

func (m *memAvailability) DeleteForTeacher(_ context.Context, teacherID int) error {
	delete(m.profiles, teacherID)
	return nil
}

func (m *memAvailability) DeleteAll(context.Context) error {
	m.profiles = make(map[int]*models.AvailabilityProfile)
	return nil
}

type countingReloader struct {
	count int
}

func (c *countingReloader) Reload(context.Context) error {
	c.count++
	return nil
}

func wishCalendar() *models.ExamCalendar {
	// Mon 5 Jan, Tue 6 Jan, Mon 12 Jan 2026.
	day := func(date string) models.ExamDay {
		parsed, _ := time.Parse("2006-01-02", date)
		return models.ExamDay{Date: parsed, Sessions: []models.ExamSession{
			{StartTime: "08:30:00", EndTime: "10:00:00"},
			{StartTime: "10:30:00", EndTime: "12:00:00"},
			{StartTime: "14:00:00", EndTime: "15:30:00"},
		}}
	}
	return &models.ExamCalendar{
		Semester: "S1",
		Days:     []models.ExamDay{day("2026-01-05"), day("2026-01-06"), day("2026-01-12")},
	}
}

func TestRosterCreateAssignsNextFreeCodeWhenTaken(t *testing.T) {
	store := newMemTeachers(models.Teacher{ID: 7, LastName: "HADDAD", FirstName: "Ali", Email: "ali@uni.tn", Grade: "MA"})
	svc := NewRosterService(store, newMemAvailability(), &stubCalendar{}, nil, nil)

	created, err := svc.Create(context.Background(), dto.TeacherRequest{
		ID:        7,
		LastName:  "TRABELSI",
		FirstName: "Mouna",
		Email:     "mouna@uni.tn",
		Grade:     "PR",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, created.ID)
}

func TestRosterCreateRejectsDuplicateEmail(t *testing.T) {
	store := newMemTeachers(models.Teacher{ID: 1, LastName: "HADDAD", FirstName: "Ali", Email: "ali@uni.tn", Grade: "MA"})
	svc := NewRosterService(store, newMemAvailability(), &stubCalendar{}, nil, nil)

	_, err := svc.Create(context.Background(), dto.TeacherRequest{
		LastName:  "OTHER",
		FirstName: "Sami",
		Email:     "ali@uni.tn",
		Grade:     "AS",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErr.Code)
}

func TestRosterDeleteRemovesAvailability(t *testing.T) {
	store := newMemTeachers(models.Teacher{ID: 3, LastName: "HADDAD", FirstName: "Ali", Email: "ali@uni.tn", Grade: "MA"})
	availability := newMemAvailability()
	availability.profiles[3] = &models.AvailabilityProfile{
		Unavailable: map[models.SlotRef]struct{}{{Day: 1, Session: 1}: {}},
	}
	reloader := &countingReloader{}
	svc := NewRosterService(store, availability, &stubCalendar{}, nil, nil)
	svc.AttachPlanner(reloader)

	require.NoError(t, svc.Delete(context.Background(), 3))
	assert.Empty(t, availability.profiles)
	assert.Empty(t, store.teachers)
	assert.Equal(t, 1, reloader.count)
}

func TestRosterImportRoster(t *testing.T) {
	store := newMemTeachers(models.Teacher{ID: 1, LastName: "EXISTING", FirstName: "Old", Email: "taken@uni.tn", Grade: "MA"})
	svc := NewRosterService(store, newMemAvailability(), &stubCalendar{}, nil, nil)

	csv := strings.Join([]string{
		"nom_ens,prenom_ens,email_ens,grade_code_ens,code_smartex_ens,participe_surveillance",
		"HADDAD,Ali,ali@uni.tn,MA,12,OUI",
		"TRABELSI,Mouna,mouna@uni.tn,PR,,TRUE",
		",Sami,sami@uni.tn,AS,,1",
		"GHARBI,Nour,taken@uni.tn,MC,,NON",
	}, "\n")

	report, err := svc.ImportRoster(context.Background(), "enseignants.csv", strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 2, report.Created)
	assert.Equal(t, 2, report.Skipped)
	require.Len(t, report.Errors, 2)
	assert.Equal(t, 4, report.Errors[0].Line)
	assert.Equal(t, 5, report.Errors[1].Line)

	haddad, err := store.FindByID(context.Background(), 12)
	require.NoError(t, err)
	assert.True(t, haddad.Participates)
	assert.Equal(t, "MA", haddad.Grade)

	// Missing code falls back to the next free one.
	mouna, err := store.FindByID(context.Background(), 13)
	require.NoError(t, err)
	assert.Equal(t, "TRABELSI", mouna.LastName)
	assert.Equal(t, "mouna@uni.tn", mouna.Email)
	assert.True(t, mouna.Participates)
}

func TestRosterImportRosterReassignsTakenCode(t *testing.T) {
	store := newMemTeachers(models.Teacher{ID: 5, LastName: "EXISTING", FirstName: "Old", Email: "old@uni.tn", Grade: "MA"})
	svc := NewRosterService(store, newMemAvailability(), &stubCalendar{}, nil, nil)

	csv := "nom_ens,prenom_ens,email_ens,grade_code_ens,code_smartex_ens,participe_surveillance\n" +
		"HADDAD,Ali,ali@uni.tn,MA,5,OUI\n"

	report, err := svc.ImportRoster(context.Background(), "enseignants.csv", strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	imported, err := store.FindByID(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, "HADDAD", imported.LastName)
}

func TestRosterImportWishes(t *testing.T) {
	store := newMemTeachers(
		models.Teacher{ID: 1, LastName: "HADDAD", FirstName: "Ali", Email: "ali@uni.tn", Grade: "MA", Participates: true},
		models.Teacher{ID: 2, LastName: "TRABELSI", FirstName: "Mouna", Email: "mouna@uni.tn", Grade: "PR", Participates: true},
	)
	availability := newMemAvailability()
	// A stale declaration that the import must wipe.
	availability.profiles[2] = &models.AvailabilityProfile{
		Unavailable: map[models.SlotRef]struct{}{{Day: 2, Session: 2}: {}},
	}
	svc := NewRosterService(store, availability, &stubCalendar{calendar: wishCalendar()}, nil, nil)

	csv := strings.Join([]string{
		"Enseignant,Semestre,Session,Jour,Séances",
		"A.HADDAD,S1,Principale,Lundi,\"S1,S3\"",
		"A.HADDAD,S1,Principale,Mardi,S2",
		"X.UNKNOWN,S1,Principale,Lundi,S1",
		"A.HADDAD,S1,Principale,Fooday,S1",
		"A.HADDAD,S1,Principale,Lundi,X9",
	}, "\n")

	report, err := svc.ImportWishes(context.Background(), "souhaits.csv", strings.NewReader(csv))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Applied)
	require.NotNil(t, report.Errors)
	assert.Len(t, report.Errors["X.UNKNOWN"], 1)
	require.Len(t, report.Errors["A.HADDAD"], 2)
	assert.Contains(t, report.Errors["A.HADDAD"][0], "unknown weekday")
	assert.Contains(t, report.Errors["A.HADDAD"][1], "invalid session format")

	// Monday expands to both Mondays of the calendar (days 1 and 3).
	profile := availability.profiles[1]
	require.NotNil(t, profile)
	expected := []models.SlotRef{
		{Day: 1, Session: 1}, {Day: 1, Session: 3},
		{Day: 2, Session: 2},
		{Day: 3, Session: 1}, {Day: 3, Session: 3},
	}
	assert.ElementsMatch(t, expected, profile.UnavailableSlots())

	// Replace-existing semantics: the stale profile is gone.
	assert.Nil(t, availability.profiles[2])
}

func TestRosterImportWishesRequiresCalendar(t *testing.T) {
	svc := NewRosterService(newMemTeachers(), newMemAvailability(), &stubCalendar{}, nil, nil)

	_, err := svc.ImportWishes(context.Background(), "souhaits.csv", strings.NewReader("Enseignant,Jour,Séances\n"))
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestMatchTeacherLabel(t *testing.T) {
	teachers := []models.Teacher{
		{ID: 1, LastName: "HADDAD", FirstName: "Ali"},
		{ID: 2, LastName: "BEN SALAH", FirstName: "Mouna"},
	}

	matched, ok := matchTeacherLabel(teachers, "A.HADDAD")
	require.True(t, ok)
	assert.Equal(t, 1, matched.ID)

	matched, ok = matchTeacherLabel(teachers, "M.BEN SALAH")
	require.True(t, ok)
	assert.Equal(t, 2, matched.ID)

	matched, ok = matchTeacherLabel(teachers, "Ali HADDAD")
	require.True(t, ok)
	assert.Equal(t, 1, matched.ID)

	_, ok = matchTeacherLabel(teachers, "Z.HADDAD")
	assert.False(t, ok)

	_, ok = matchTeacherLabel(teachers, "HADDAD")
	assert.False(t, ok)
}

func TestRosterSetAvailability(t *testing.T) {
	store := newMemTeachers(models.Teacher{ID: 4, LastName: "HADDAD", FirstName: "Ali", Email: "ali@uni.tn", Grade: "MA"})
	availability := newMemAvailability()
	svc := NewRosterService(store, availability, &stubCalendar{}, nil, nil)

	err := svc.SetAvailability(context.Background(), 4, dto.AvailabilityRequest{
		Semester: "S1",
		Session:  "Principale",
		Slots:    []dto.SlotRequest{{Day: 1, Session: 2}},
	})
	require.NoError(t, err)
	require.NotNil(t, availability.profiles[4])
	assert.False(t, availability.profiles[4].Available(models.SlotRef{Day: 1, Session: 2}))

	// Empty slot list clears the declaration.
	require.NoError(t, svc.SetAvailability(context.Background(), 4, dto.AvailabilityRequest{}))
	assert.Nil(t, availability.profiles[4])
}
