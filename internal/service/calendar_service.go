package service

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/invigilo/exam-duty-api/internal/models"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
)

type calendarStore interface {
	Replace(ctx context.Context, calendar *models.ExamCalendar) error
	Current(ctx context.Context) (*models.ExamCalendar, error)
}

// CalendarService manages the active exam calendar. It feeds the planner
// board through the Current accessor.
type CalendarService struct {
	repo    calendarStore
	planner boardReloader
	logger  *zap.Logger
}

// NewCalendarService constructs a CalendarService.
func NewCalendarService(repo calendarStore, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{repo: repo, logger: logger}
}

// AttachPlanner binds the board reloader invoked after calendar swaps.
func (s *CalendarService) AttachPlanner(planner boardReloader) {
	s.planner = planner
}

// Current returns the active calendar, nil when none is loaded.
func (s *CalendarService) Current(ctx context.Context) (*models.ExamCalendar, error) {
	return s.repo.Current(ctx)
}

// ImportSessions replaces the calendar from an uploaded session catalog.
// Rows carry one (room, responsible) pair each; rows sharing a date and time
// window merge into one session. Days come out date sorted, sessions time
// sorted, so S1 is always the earliest session of the day.
func (s *CalendarService) ImportSessions(ctx context.Context, filename string, r io.Reader) (*models.ExamCalendar, error) {
	rows, err := readTabular(filename, r)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "unreadable session file")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session file has no data rows")
	}

	calendar := &models.ExamCalendar{}
	type sessionKey struct {
		date  time.Time
		start string
		end   string
	}
	sessions := make(map[sessionKey]*models.ExamSession)
	dayDates := make(map[time.Time]struct{})

	for i, row := range rows {
		line := i + 2
		date, err := parseExamDate(row["dateExam"])
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: %v", line, err))
		}
		start := extractTime(row["h_debut"])
		end := extractTime(row["h_fin"])
		if start == "" || end == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("line %d: missing session times", line))
		}

		if calendar.Semester == "" {
			calendar.Semester = row["semestre"]
			calendar.Round = mapSessionRound(row["session"])
			calendar.ExamType = mapExamType(row["type ex"])
		}

		key := sessionKey{date: date, start: start, end: end}
		session := sessions[key]
		if session == nil {
			session = &models.ExamSession{
				StartTime:  start,
				EndTime:    end,
				Rooms:      make(map[string]struct{}),
				ProctorIDs: make(map[int]struct{}),
			}
			sessions[key] = session
			dayDates[date] = struct{}{}
		}
		if room := row["cod_salle"]; room != "" {
			session.Rooms[room] = struct{}{}
		}
		if teacherID, err := strconv.Atoi(row["enseignant"]); err == nil && teacherID > 0 {
			session.ProctorIDs[teacherID] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(dayDates))
	for date := range dayDates {
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, date := range dates {
		day := models.ExamDay{Date: date}
		for key, session := range sessions {
			if key.date.Equal(date) {
				day.Sessions = append(day.Sessions, *session)
			}
		}
		sort.Slice(day.Sessions, func(i, j int) bool { return day.Sessions[i].StartTime < day.Sessions[j].StartTime })
		calendar.Days = append(calendar.Days, day)
	}

	if err := s.repo.Replace(ctx, calendar); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store calendar")
	}

	s.logger.Info("calendar replaced",
		zap.String("semester", calendar.Semester),
		zap.Int("days", len(calendar.Days)),
		zap.Int("sessions", calendar.SlotCount()))

	if s.planner != nil {
		if err := s.planner.Reload(ctx); err != nil {
			s.logger.Warn("board reload failed", zap.Error(err))
		}
	}
	return calendar, nil
}

func parseExamDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"02/01/2006", "2006-01-02"} {
		if date, err := time.Parse(layout, raw); err == nil {
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid exam date %q", raw)
}

// extractTime strips the dummy date prefix some exports carry
// ("30/12/1999 08:30:00" becomes "08:30:00").
func extractTime(raw string) string {
	raw = strings.TrimSpace(raw)
	if idx := strings.IndexByte(raw, ' '); idx >= 0 {
		return raw[idx+1:]
	}
	return raw
}

func mapSessionRound(code string) models.SessionRound {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "P":
		return models.RoundPrincipale
	case "C":
		return models.RoundControle
	default:
		return models.SessionRound(code)
	}
}

func mapExamType(code string) models.ExamType {
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "E":
		return models.ExamTypeExamen
	case "DS":
		return models.ExamTypeDevoir
	default:
		return models.ExamType(code)
	}
}
