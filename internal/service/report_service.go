package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/invigilo/exam-duty-api/internal/dto"
	"github.com/invigilo/exam-duty-api/internal/models"
	appErrors "github.com/invigilo/exam-duty-api/pkg/errors"
	"github.com/invigilo/exam-duty-api/pkg/export"
	"github.com/invigilo/exam-duty-api/pkg/jobs"
)

type reportJobStore interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ReportStatus, progress int) error
	MarkFinished(ctx context.Context, id, resultURL string) error
	MarkFailed(ctx context.Context, id, message string) error
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type boardReporter interface {
	Summary(ctx context.Context) (*models.Summary, error)
	Conflicts(ctx context.Context) ([]models.Conflict, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type urlSigner interface {
	Generate(jobID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error)
}

// downloadPathPrefix is the route the signed token is appended to.
const downloadPathPrefix = "/api/v1/reports/download/"

// ReportService orchestrates asynchronous export jobs: queueing, status,
// signed downloads and expired file cleanup.
type ReportService struct {
	repo    reportJobStore
	queue   jobDispatcher
	storage reportStorage
	signer  urlSigner
	logger  *zap.Logger
	cfg     ReportServiceConfig
}

// ReportServiceConfig governs result retention.
type ReportServiceConfig struct {
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ReportDownload aggregates resolved download data.
type ReportDownload struct {
	File      *os.File
	Filename  string
	Format    models.ReportFormat
	ExpiresAt time.Time
}

// NewReportService constructs the report service.
func NewReportService(repo reportJobStore, queue jobDispatcher, storage reportStorage, signer urlSigner, logger *zap.Logger, cfg ReportServiceConfig) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{repo: repo, queue: queue, storage: storage, signer: signer, logger: logger, cfg: cfg}
}

// CreateJob validates the request, persists the job and enqueues processing.
func (s *ReportService) CreateJob(ctx context.Context, req dto.ReportRequest, actorID string) (*dto.ReportJobResponse, error) {
	if !isValidReportType(req.Type) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report type")
	}
	if !isValidReportFormat(req.Format) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported report format")
	}

	job := &models.ReportJob{
		Type:      req.Type,
		Params:    models.ReportJobParams{Format: req.Format, Title: req.Title},
		Status:    models.ReportStatusQueued,
		CreatedBy: actorID,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		if markErr := s.repo.MarkFailed(ctx, job.ID, "failed to enqueue job"); markErr != nil {
			s.logger.Warn("failed to mark unqueued job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue report job")
	}
	return &dto.ReportJobResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}, nil
}

// GetStatus exposes job metadata to clients.
func (s *ReportService) GetStatus(ctx context.Context, id string) (*dto.ReportStatusResponse, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	resp := &dto.ReportStatusResponse{ID: job.ID, Status: job.Status, Progress: job.Progress}
	if job.ResultURL != nil {
		resp.ResultURL = job.ResultURL
	}
	if job.ErrorMessage != nil && *job.ErrorMessage != "" {
		resp.Error = job.ErrorMessage
	}
	return resp, nil
}

// ResolveDownload validates the signed token and opens the stored file.
func (s *ReportService) ResolveDownload(ctx context.Context, token string) (*ReportDownload, error) {
	jobID, relPath, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	job, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	if job.ResultURL == nil || !strings.HasSuffix(*job.ResultURL, token) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	if job.Status != models.ReportStatusFinished {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "report not ready")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export file")
	}
	return &ReportDownload{
		File:      file,
		Filename:  filepath.Base(relPath),
		Format:    job.Params.Format,
		ExpiresAt: expiresAt,
	}, nil
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ReportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
				if err != nil {
					s.logger.Warn("report cleanup failed", zap.Error(err))
					continue
				}
				if len(deleted) > 0 {
					s.logger.Info("expired reports removed", zap.Int("count", len(deleted)))
				}
			}
		}
	}()
}

func isValidReportType(t models.ReportType) bool {
	switch t {
	case models.ReportTypeDuties, models.ReportTypeConflicts, models.ReportTypeSummary:
		return true
	default:
		return false
	}
}

func isValidReportFormat(f models.ReportFormat) bool {
	switch f {
	case models.ReportFormatCSV, models.ReportFormatPDF, models.ReportFormatXLSX:
		return true
	default:
		return false
	}
}

// ReportWorker renders queued reports from the live board and stores the
// result behind a signed URL.
type ReportWorker struct {
	repo     reportJobStore
	board    boardReporter
	calendar calendarProvider
	storage  reportStorage
	signer   urlSigner
	logger   *zap.Logger

	csv  *export.CSVExporter
	pdf  *export.PDFExporter
	xlsx *export.XLSXExporter
}

// NewReportWorker constructs a worker.
func NewReportWorker(repo reportJobStore, board boardReporter, calendar calendarProvider, storage reportStorage, signer urlSigner, logger *zap.Logger) *ReportWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportWorker{
		repo:     repo,
		board:    board,
		calendar: calendar,
		storage:  storage,
		signer:   signer,
		logger:   logger,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		xlsx:     export.NewXLSXExporter(),
	}
}

// Handle processes one queue job. Returning an error lets the queue retry;
// the final attempt marks the job failed.
func (w *ReportWorker) Handle(ctx context.Context, job jobs.Job) error {
	record, err := w.repo.FindByID(ctx, job.ID)
	if err != nil {
		return err
	}
	if err := w.repo.UpdateStatus(ctx, job.ID, models.ReportStatusProcessing, 10); err != nil {
		return err
	}

	payload, filename, err := w.render(ctx, record)
	if err != nil {
		if markErr := w.repo.MarkFailed(ctx, job.ID, err.Error()); markErr != nil {
			w.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return err
	}

	relPath, err := w.storage.Save(filepath.Join(record.ID, filename), payload)
	if err != nil {
		if markErr := w.repo.MarkFailed(ctx, job.ID, "failed to store export"); markErr != nil {
			w.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return err
	}

	token, _, err := w.signer.Generate(record.ID, relPath)
	if err != nil {
		if markErr := w.repo.MarkFailed(ctx, job.ID, "failed to sign download url"); markErr != nil {
			w.logger.Warn("failed to mark job failed", zap.String("job_id", job.ID), zap.Error(markErr))
		}
		return err
	}

	if err := w.repo.MarkFinished(ctx, job.ID, downloadPathPrefix+token); err != nil {
		return err
	}
	w.logger.Info("report generated",
		zap.String("job_id", job.ID),
		zap.String("type", string(record.Type)),
		zap.String("format", string(record.Params.Format)))
	return nil
}

func (w *ReportWorker) render(ctx context.Context, job *models.ReportJob) ([]byte, string, error) {
	summary, err := w.board.Summary(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("load board summary: %w", err)
	}
	names := make(map[int]string, len(summary.Teachers))
	for _, load := range summary.Teachers {
		names[load.TeacherID] = load.FullName
	}

	title := job.Params.Title
	if title == "" {
		title = w.defaultTitle(ctx, job.Type)
	}

	var dataset export.Dataset
	var sections []export.Section
	var headerLines []string

	switch job.Type {
	case models.ReportTypeDuties:
		dataset = dutiesDataset(summary, names)
		sections = dutiesSections(summary, names)
		headerLines = summaryHeaderLines(summary)
	case models.ReportTypeConflicts:
		conflicts, err := w.board.Conflicts(ctx)
		if err != nil {
			return nil, "", fmt.Errorf("load board conflicts: %w", err)
		}
		dataset = conflictsDataset(conflicts)
		sections = []export.Section{{Heading: "Availability conflicts", Table: dataset}}
		headerLines = []string{fmt.Sprintf("Conflicts: %d", len(conflicts))}
	case models.ReportTypeSummary:
		dataset = teacherLoadDataset(summary)
		sections = []export.Section{{Heading: "Teacher utilization", Table: dataset}}
		headerLines = summaryHeaderLines(summary)
	default:
		return nil, "", fmt.Errorf("unsupported report type %q", job.Type)
	}

	base := fmt.Sprintf("%s-%s", job.Type, time.Now().UTC().Format("20060102-150405"))
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err := w.csv.Render(dataset)
		return payload, base + ".csv", err
	case models.ReportFormatXLSX:
		sheet := string(job.Type)
		if sheet != "" {
			sheet = strings.ToUpper(sheet[:1]) + sheet[1:]
		}
		payload, err := w.xlsx.Render(dataset, sheet)
		return payload, base + ".xlsx", err
	case models.ReportFormatPDF:
		payload, err := w.pdf.RenderSections(title, headerLines, sections)
		return payload, base + ".pdf", err
	default:
		return nil, "", fmt.Errorf("unsupported report format %q", job.Params.Format)
	}
}

func (w *ReportWorker) defaultTitle(ctx context.Context, reportType models.ReportType) string {
	title := "Exam surveillance"
	if calendar, err := w.calendar.Current(ctx); err == nil && calendar != nil {
		title = fmt.Sprintf("%s %s (%s, %s)", title, calendar.Semester, calendar.ExamType, calendar.Round)
	}
	switch reportType {
	case models.ReportTypeConflicts:
		return title + " - conflicts"
	case models.ReportTypeSummary:
		return title + " - summary"
	default:
		return title + " - duties"
	}
}

func summaryHeaderLines(summary *models.Summary) []string {
	return []string{
		fmt.Sprintf("Required: %d", summary.TotalRequired),
		fmt.Sprintf("Assigned: %d", summary.TotalAssigned),
		fmt.Sprintf("Fully staffed sessions: %d / %d", summary.FullyStaffed, len(summary.Slots)),
		fmt.Sprintf("Partially staffed: %d, unstaffed: %d", summary.PartiallyStaffed, summary.Unstaffed),
		fmt.Sprintf("Conflicts: %d", summary.ConflictCount),
	}
}

func dutiesDataset(summary *models.Summary, names map[int]string) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"date", "session", "start", "end", "rooms", "required", "assigned", "teachers"},
	}
	for _, slot := range summary.Slots {
		assigned := make([]string, 0, len(slot.AssignedIDs))
		for _, id := range slot.AssignedIDs {
			if name, ok := names[id]; ok {
				assigned = append(assigned, name)
			} else {
				assigned = append(assigned, fmt.Sprintf("#%d", id))
			}
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"date":     slot.Date,
			"session":  fmt.Sprintf("S%d", slot.Slot.Session),
			"start":    slot.StartTime,
			"end":      slot.EndTime,
			"rooms":    fmt.Sprintf("%d", slot.RoomCount),
			"required": fmt.Sprintf("%d", slot.Required),
			"assigned": fmt.Sprintf("%d", slot.Assigned),
			"teachers": strings.Join(assigned, "; "),
		})
	}
	return dataset
}

// dutiesSections lays one table per exam day: session columns, one assigned
// teacher per cell row, the layout of the printed surveillance sheet.
func dutiesSections(summary *models.Summary, names map[int]string) []export.Section {
	type dayTable struct {
		date  string
		slots []models.SlotStatus
	}
	var days []dayTable
	byDate := make(map[string]int)
	for _, slot := range summary.Slots {
		idx, ok := byDate[slot.Date]
		if !ok {
			idx = len(days)
			byDate[slot.Date] = idx
			days = append(days, dayTable{date: slot.Date})
		}
		days[idx].slots = append(days[idx].slots, slot)
	}

	sections := make([]export.Section, 0, len(days))
	for _, day := range days {
		table := export.Dataset{}
		depth := 0
		for _, slot := range day.slots {
			table.Headers = append(table.Headers, fmt.Sprintf("S%d %s-%s", slot.Slot.Session, slot.StartTime, slot.EndTime))
			if len(slot.AssignedIDs) > depth {
				depth = len(slot.AssignedIDs)
			}
		}
		for row := 0; row < depth; row++ {
			cells := make(map[string]string, len(day.slots))
			for i, slot := range day.slots {
				value := ""
				if row < len(slot.AssignedIDs) {
					id := slot.AssignedIDs[row]
					if name, ok := names[id]; ok {
						value = name
					} else {
						value = fmt.Sprintf("#%d", id)
					}
				}
				cells[table.Headers[i]] = value
			}
			table.Rows = append(table.Rows, cells)
		}
		sections = append(sections, export.Section{Heading: day.date, Table: table})
	}
	return sections
}

func conflictsDataset(conflicts []models.Conflict) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"teacher", "grade", "email", "date", "session", "start", "end"},
	}
	for _, c := range conflicts {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"teacher": c.FullName,
			"grade":   c.Grade,
			"email":   c.Email,
			"date":    c.Date,
			"session": fmt.Sprintf("S%d", c.Slot.Session),
			"start":   c.StartTime,
			"end":     c.EndTime,
		})
	}
	return dataset
}

func teacherLoadDataset(summary *models.Summary) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"id", "teacher", "grade", "quota", "assigned", "utilization"},
	}
	for _, load := range summary.Teachers {
		dataset.Rows = append(dataset.Rows, map[string]string{
			"id":          fmt.Sprintf("%d", load.TeacherID),
			"teacher":     load.FullName,
			"grade":       load.Grade,
			"quota":       fmt.Sprintf("%d", load.Quota),
			"assigned":    fmt.Sprintf("%d", load.Assigned),
			"utilization": fmt.Sprintf("%.0f%%", load.UtilizationPct),
		})
	}
	return dataset
}
