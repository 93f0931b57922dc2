package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/invigilo/exam-duty-api/internal/models"
)

// CalendarRepository persists the active exam calendar. The application
// works on a single calendar at a time; replacing it swaps all rows.
type CalendarRepository struct {
	db *sqlx.DB
}

// NewCalendarRepository constructs a CalendarRepository.
func NewCalendarRepository(db *sqlx.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

type calendarMetaRow struct {
	Semester string `db:"semester"`
	ExamType string `db:"exam_type"`
	Round    string `db:"round"`
}

type examDayRow struct {
	DayNo int       `db:"day_no"`
	Date  time.Time `db:"date"`
}

type examSessionRow struct {
	DayNo     int    `db:"day_no"`
	SessionNo int    `db:"session_no"`
	StartTime string `db:"start_time"`
	EndTime   string `db:"end_time"`
}

type examRoomRow struct {
	DayNo     int    `db:"day_no"`
	SessionNo int    `db:"session_no"`
	Room      string `db:"room"`
}

type examProctorRow struct {
	DayNo     int `db:"day_no"`
	SessionNo int `db:"session_no"`
	TeacherID int `db:"teacher_id"`
}

// Replace swaps the persisted calendar for the given one.
func (r *CalendarRepository) Replace(ctx context.Context, calendar *models.ExamCalendar) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin calendar tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, table := range []string{"exam_session_proctors", "exam_session_rooms", "exam_sessions", "exam_days", "exam_calendar_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if calendar == nil {
		return tx.Commit()
	}

	meta := calendarMetaRow{Semester: calendar.Semester, ExamType: string(calendar.ExamType), Round: string(calendar.Round)}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO exam_calendar_meta (semester, exam_type, round) VALUES (:semester, :exam_type, :round)`, meta); err != nil {
		return fmt.Errorf("insert calendar meta: %w", err)
	}

	for dayIdx, day := range calendar.Days {
		dayNo := dayIdx + 1
		if _, err := tx.ExecContext(ctx, `INSERT INTO exam_days (day_no, date) VALUES ($1, $2)`, dayNo, day.Date); err != nil {
			return fmt.Errorf("insert exam day: %w", err)
		}
		for sessIdx, session := range day.Sessions {
			sessNo := sessIdx + 1
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO exam_sessions (day_no, session_no, start_time, end_time) VALUES ($1, $2, $3, $4)`,
				dayNo, sessNo, session.StartTime, session.EndTime); err != nil {
				return fmt.Errorf("insert exam session: %w", err)
			}
			for room := range session.Rooms {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO exam_session_rooms (day_no, session_no, room) VALUES ($1, $2, $3)`,
					dayNo, sessNo, room); err != nil {
					return fmt.Errorf("insert exam room: %w", err)
				}
			}
			for teacherID := range session.ProctorIDs {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO exam_session_proctors (day_no, session_no, teacher_id) VALUES ($1, $2, $3)`,
					dayNo, sessNo, teacherID); err != nil {
					return fmt.Errorf("insert exam proctor: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit calendar: %w", err)
	}
	return nil
}

// Current loads the persisted calendar, nil when none is stored.
func (r *CalendarRepository) Current(ctx context.Context) (*models.ExamCalendar, error) {
	var metas []calendarMetaRow
	if err := r.db.SelectContext(ctx, &metas, `SELECT semester, exam_type, round FROM exam_calendar_meta LIMIT 1`); err != nil {
		return nil, fmt.Errorf("load calendar meta: %w", err)
	}
	if len(metas) == 0 {
		return nil, nil
	}

	var days []examDayRow
	if err := r.db.SelectContext(ctx, &days, `SELECT day_no, date FROM exam_days ORDER BY day_no`); err != nil {
		return nil, fmt.Errorf("load exam days: %w", err)
	}
	var sessions []examSessionRow
	if err := r.db.SelectContext(ctx, &sessions, `SELECT day_no, session_no, start_time, end_time FROM exam_sessions ORDER BY day_no, session_no`); err != nil {
		return nil, fmt.Errorf("load exam sessions: %w", err)
	}
	var rooms []examRoomRow
	if err := r.db.SelectContext(ctx, &rooms, `SELECT day_no, session_no, room FROM exam_session_rooms`); err != nil {
		return nil, fmt.Errorf("load exam rooms: %w", err)
	}
	var proctors []examProctorRow
	if err := r.db.SelectContext(ctx, &proctors, `SELECT day_no, session_no, teacher_id FROM exam_session_proctors`); err != nil {
		return nil, fmt.Errorf("load exam proctors: %w", err)
	}

	calendar := &models.ExamCalendar{
		Semester: metas[0].Semester,
		ExamType: models.ExamType(metas[0].ExamType),
		Round:    models.SessionRound(metas[0].Round),
	}

	for _, dayRow := range days {
		calendar.Days = append(calendar.Days, models.ExamDay{Date: dayRow.Date})
	}
	for _, sessRow := range sessions {
		if sessRow.DayNo < 1 || sessRow.DayNo > len(calendar.Days) {
			continue
		}
		day := &calendar.Days[sessRow.DayNo-1]
		day.Sessions = append(day.Sessions, models.ExamSession{
			StartTime:  sessRow.StartTime,
			EndTime:    sessRow.EndTime,
			Rooms:      make(map[string]struct{}),
			ProctorIDs: make(map[int]struct{}),
		})
	}

	// Index after all appends so slice growth cannot invalidate pointers.
	sessionIndex := make(map[models.SlotRef]*models.ExamSession)
	for dayIdx := range calendar.Days {
		for sessIdx := range calendar.Days[dayIdx].Sessions {
			sessionIndex[models.SlotRefFromIndex(dayIdx, sessIdx)] = &calendar.Days[dayIdx].Sessions[sessIdx]
		}
	}
	for _, roomRow := range rooms {
		if session, ok := sessionIndex[models.SlotRef{Day: roomRow.DayNo, Session: roomRow.SessionNo}]; ok {
			session.Rooms[roomRow.Room] = struct{}{}
		}
	}
	for _, proctorRow := range proctors {
		if session, ok := sessionIndex[models.SlotRef{Day: proctorRow.DayNo, Session: proctorRow.SessionNo}]; ok {
			session.ProctorIDs[proctorRow.TeacherID] = struct{}{}
		}
	}

	return calendar, nil
}
