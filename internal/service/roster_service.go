package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/invigilo/exam-duty-api/internal/dto"
	"github.com/invigilo/exam-duty-api/internal/models"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
)

type teacherStore interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	ListAll(ctx context.Context) ([]models.Teacher, error)
	ListParticipating(ctx context.Context) ([]models.Teacher, error)
	FindByID(ctx context.Context, id int) (*models.Teacher, error)
	ExistsByEmail(ctx context.Context, email string, excludeID int) (bool, error)
	NextFreeID(ctx context.Context) (int, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	Delete(ctx context.Context, id int) error
	ListGrades(ctx context.Context) ([]string, error)
}

type availabilityStore interface {
	ReplaceForTeacher(ctx context.Context, teacherID int, profile *models.AvailabilityProfile) error
	GetByTeacher(ctx context.Context, teacherID int) (*models.AvailabilityProfile, error)
	ListAll(ctx context.Context) (map[int]*models.AvailabilityProfile, error)
	DeleteForTeacher(ctx context.Context, teacherID int) error
	DeleteAll(ctx context.Context) error
}

type boardReloader interface {
	Reload(ctx context.Context) error
}

// RosterService manages the surveillance roster and declared availability.
type RosterService struct {
	teachers     teacherStore
	availability availabilityStore
	calendar     calendarProvider
	planner      boardReloader
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewRosterService constructs a RosterService.
func NewRosterService(teachers teacherStore, availability availabilityStore, calendar calendarProvider, validate *validator.Validate, logger *zap.Logger) *RosterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RosterService{
		teachers:     teachers,
		availability: availability,
		calendar:     calendar,
		validator:    validate,
		logger:       logger,
	}
}

// AttachPlanner binds the board reloader invoked after roster mutations.
// Set once during wiring, before the service handles requests.
func (s *RosterService) AttachPlanner(planner boardReloader) {
	s.planner = planner
}

// List returns teachers matching the filter with pagination metadata.
func (s *RosterService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, models.Pagination, error) {
	teachers, total, err := s.teachers.List(ctx, filter)
	if err != nil {
		return nil, models.Pagination{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return teachers, models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get loads one teacher with the declared availability attached.
func (s *RosterService) Get(ctx context.Context, id int) (*models.Teacher, error) {
	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	profile, err := s.availability.GetByTeacher(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	teacher.Availability = profile
	return teacher, nil
}

// Create adds one teacher. A zero id receives the next free code; a taken id
// is replaced by the next free code the way the original roster behaved.
func (s *RosterService) Create(ctx context.Context, req dto.TeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	exists, err := s.teachers.ExistsByEmail(ctx, req.Email, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s already exists", req.Email))
	}

	id := req.ID
	if id > 0 {
		if _, err := s.teachers.FindByID(ctx, id); err == nil {
			s.logger.Warn("teacher code already in use, assigning next free", zap.Int("requested_id", id))
			id = 0
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher code")
		}
	}
	if id == 0 {
		next, err := s.teachers.NextFreeID(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate teacher code")
		}
		id = next
	}

	teacher := &models.Teacher{
		ID:           id,
		LastName:     req.LastName,
		FirstName:    req.FirstName,
		Email:        req.Email,
		Grade:        req.Grade,
		Participates: req.Participates,
	}
	if err := s.teachers.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}

	s.reloadBoard(ctx)
	return teacher, nil
}

// Update modifies one teacher.
func (s *RosterService) Update(ctx context.Context, id int, req dto.TeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}

	teacher, err := s.teachers.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %d not found", id))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	exists, err := s.teachers.ExistsByEmail(ctx, req.Email, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("email %s already exists", req.Email))
	}

	teacher.LastName = req.LastName
	teacher.FirstName = req.FirstName
	teacher.Email = req.Email
	teacher.Grade = req.Grade
	teacher.Participates = req.Participates

	if err := s.teachers.Update(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}

	s.reloadBoard(ctx)
	return teacher, nil
}

// Delete removes one teacher and the attached availability.
func (s *RosterService) Delete(ctx context.Context, id int) error {
	if _, err := s.teachers.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %d not found", id))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if err := s.availability.DeleteForTeacher(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete availability")
	}
	if err := s.teachers.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete teacher")
	}

	s.reloadBoard(ctx)
	return nil
}

// ListParticipants returns the participating roster with availability
// attached. This feeds the planner board.
func (s *RosterService) ListParticipants(ctx context.Context) ([]models.Teacher, error) {
	teachers, err := s.teachers.ListParticipating(ctx)
	if err != nil {
		return nil, err
	}
	profiles, err := s.availability.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range teachers {
		teachers[i].Availability = profiles[teachers[i].ID]
	}
	return teachers, nil
}

// ListGrades returns the distinct grades present on the roster.
func (s *RosterService) ListGrades(ctx context.Context) ([]string, error) {
	grades, err := s.teachers.ListGrades(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, nil
}

// SetAvailability replaces one teacher's declared unavailability.
func (s *RosterService) SetAvailability(ctx context.Context, teacherID int, req dto.AvailabilityRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid availability payload")
	}
	if _, err := s.teachers.FindByID(ctx, teacherID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("teacher %d not found", teacherID))
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	var profile *models.AvailabilityProfile
	if len(req.Slots) > 0 {
		profile = &models.AvailabilityProfile{
			Semester:    req.Semester,
			Session:     req.Session,
			Unavailable: make(map[models.SlotRef]struct{}, len(req.Slots)),
		}
		for _, slot := range req.Slots {
			profile.Unavailable[models.SlotRef{Day: slot.Day, Session: slot.Session}] = struct{}{}
		}
	}

	if err := s.availability.ReplaceForTeacher(ctx, teacherID, profile); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store availability")
	}

	s.reloadBoard(ctx)
	return nil
}

// ImportRoster loads teachers from an uploaded CSV or XLSX file. Rows with
// problems are reported individually; valid rows are still applied.
func (s *RosterService) ImportRoster(ctx context.Context, filename string, r io.Reader) (*dto.RosterImportReport, error) {
	rows, err := readTabular(filename, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable roster file")
	}

	report := &dto.RosterImportReport{}
	for i, row := range rows {
		line := i + 2
		lastName := row["nom_ens"]
		firstName := row["prenom_ens"]
		email := row["email_ens"]
		grade := row["grade_code_ens"]
		codeStr := row["code_smartex_ens"]
		participates := parseImportBool(row["participe_surveillance"])

		if lastName == "" || firstName == "" || email == "" || grade == "" {
			report.Skipped++
			report.Errors = append(report.Errors, dto.RowError{Line: line, Message: "missing required field (nom_ens, prenom_ens, email_ens, grade_code_ens)"})
			continue
		}

		exists, err := s.teachers.ExistsByEmail(ctx, email, 0)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
		}
		if exists {
			report.Skipped++
			report.Errors = append(report.Errors, dto.RowError{Line: line, Message: fmt.Sprintf("email %s already exists", email)})
			continue
		}

		id := 0
		if codeStr != "" {
			parsed, err := strconv.Atoi(codeStr)
			if err == nil && parsed > 0 {
				id = parsed
			}
		}
		if id > 0 {
			if _, err := s.teachers.FindByID(ctx, id); err == nil {
				s.logger.Warn("imported teacher code already in use, assigning next free",
					zap.Int("line", line), zap.Int("requested_id", id))
				id = 0
			} else if !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher code")
			}
		}
		if id == 0 {
			next, err := s.teachers.NextFreeID(ctx)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to allocate teacher code")
			}
			id = next
		}

		teacher := &models.Teacher{
			ID:           id,
			LastName:     lastName,
			FirstName:    firstName,
			Email:        email,
			Grade:        grade,
			Participates: participates,
		}
		if err := s.teachers.Create(ctx, teacher); err != nil {
			report.Skipped++
			report.Errors = append(report.Errors, dto.RowError{Line: line, Message: "insert failed"})
			s.logger.Warn("roster import insert failed", zap.Int("line", line), zap.Error(err))
			continue
		}
		report.Created++
	}

	s.reloadBoard(ctx)
	return report, nil
}

// frenchWeekdays maps the weekday labels used by the availability
// spreadsheets onto time.Weekday.
var frenchWeekdays = map[string]time.Weekday{
	"lundi":    time.Monday,
	"mardi":    time.Tuesday,
	"mercredi": time.Wednesday,
	"jeudi":    time.Thursday,
	"vendredi": time.Friday,
	"samedi":   time.Saturday,
	"dimanche": time.Sunday,
}

// ImportWishes loads declared unavailability from an uploaded file. Each row
// names a teacher as "P.NOM", a French weekday and a comma list of sessions
// ("S1,S3"); a weekday expands to every exam day falling on it. Existing
// declarations are replaced wholesale.
func (s *RosterService) ImportWishes(ctx context.Context, filename string, r io.Reader) (*dto.WishImportReport, error) {
	rows, err := readTabular(filename, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable availability file")
	}

	calendar, err := s.calendar.Current(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam calendar")
	}
	if calendar == nil || len(calendar.Days) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "no exam calendar loaded, import sessions first")
	}

	weekdayDays := make(map[time.Weekday][]int)
	for dayIdx, day := range calendar.Days {
		wd := day.Date.Weekday()
		weekdayDays[wd] = append(weekdayDays[wd], dayIdx+1)
	}

	teachers, err := s.teachers.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load roster")
	}

	report := &dto.WishImportReport{Errors: make(map[string][]string)}
	type wishAccumulator struct {
		semester string
		session  string
		slots    map[models.SlotRef]struct{}
	}
	wishes := make(map[int]*wishAccumulator)

	for _, row := range rows {
		label := row["Enseignant"]
		if label == "" {
			continue
		}

		teacher, ok := matchTeacherLabel(teachers, label)
		if !ok {
			report.Errors[label] = append(report.Errors[label], fmt.Sprintf("teacher not found: no match for %q", label))
			continue
		}

		wd, ok := frenchWeekdays[strings.ToLower(row["Jour"])]
		if !ok {
			report.Errors[label] = append(report.Errors[label], fmt.Sprintf("unknown weekday: %s", row["Jour"]))
			continue
		}
		days := weekdayDays[wd]
		if len(days) == 0 {
			report.Errors[label] = append(report.Errors[label], fmt.Sprintf("no exam dates found for %s", row["Jour"]))
			continue
		}

		sessions := make([]int, 0, 4)
		for _, token := range strings.Split(row["Séances"], ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			if !strings.HasPrefix(strings.ToUpper(token), "S") || len(token) < 2 {
				report.Errors[label] = append(report.Errors[label], fmt.Sprintf("invalid session format: %s", token))
				continue
			}
			num, err := strconv.Atoi(token[1:])
			if err != nil || num < 1 {
				report.Errors[label] = append(report.Errors[label], fmt.Sprintf("invalid session format: %s", token))
				continue
			}
			sessions = append(sessions, num)
		}

		acc := wishes[teacher.ID]
		if acc == nil {
			acc = &wishAccumulator{
				semester: row["Semestre"],
				session:  row["Session"],
				slots:    make(map[models.SlotRef]struct{}),
			}
			wishes[teacher.ID] = acc
		}
		for _, day := range days {
			for _, session := range sessions {
				acc.slots[models.SlotRef{Day: day, Session: session}] = struct{}{}
			}
		}
	}

	// Replace-existing semantics: wipe every declaration, then write the
	// accumulated profiles.
	if err := s.availability.DeleteAll(ctx); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear availability")
	}
	for teacherID, acc := range wishes {
		profile := &models.AvailabilityProfile{
			Semester:    acc.semester,
			Session:     acc.session,
			Unavailable: acc.slots,
		}
		if err := s.availability.ReplaceForTeacher(ctx, teacherID, profile); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store availability")
		}
		report.Applied++
	}

	if len(report.Errors) == 0 {
		report.Errors = nil
	}
	s.reloadBoard(ctx)
	return report, nil
}

// matchTeacherLabel resolves the "P.NOM" label form, falling back to
// "Firstname LASTNAME" with spaces.
func matchTeacherLabel(teachers []models.Teacher, label string) (*models.Teacher, bool) {
	if initial, lastName, ok := strings.Cut(label, "."); ok {
		initial = strings.TrimSpace(initial)
		lastName = strings.TrimSpace(lastName)
		for i := range teachers {
			teacher := &teachers[i]
			if !strings.EqualFold(teacher.LastName, lastName) {
				continue
			}
			if teacher.FirstName != "" && initial != "" &&
				strings.EqualFold(teacher.FirstName[:1], initial[:1]) {
				return teacher, true
			}
		}
		return nil, false
	}

	parts := strings.Fields(label)
	if len(parts) < 2 {
		return nil, false
	}
	firstName := strings.Join(parts[:len(parts)-1], " ")
	lastName := parts[len(parts)-1]
	for i := range teachers {
		teacher := &teachers[i]
		if strings.EqualFold(teacher.LastName, lastName) && strings.EqualFold(teacher.FirstName, firstName) {
			return teacher, true
		}
	}
	return nil, false
}

func parseImportBool(raw string) bool {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "TRUE", "1", "OUI", "YES":
		return true
	default:
		return false
	}
}

func (s *RosterService) reloadBoard(ctx context.Context) {
	if s.planner == nil {
		return
	}
	if err := s.planner.Reload(ctx); err != nil {
		s.logger.Warn("board reload failed", zap.Error(err))
	}
}
