package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/dto"
	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/satisfaction"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
	"github.com/noah-isme/exam-proctor-api/pkg/export"
	"github.com/noah-isme/exam-proctor-api/pkg/storage"
)

type assignmentReader interface {
	Assignments(ctx context.Context, sessionID string) (*dto.AssignmentsResponse, error)
}

type satisfactionReader interface {
	Report(ctx context.Context, sessionID string) (*satisfaction.Report, error)
}

type fileStorage interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

type xlsxRenderer interface {
	Render(data export.Dataset, sheet string) ([]byte, error)
}

type calendarRenderer interface {
	Render(name string, events []export.Event) ([]byte, error)
	Location() *time.Location
}

// defaultSlotLength applies to slots imported without an end time.
const defaultSlotLength = 90 * time.Minute

var contentTypes = map[string]string{
	".csv":  "text/csv",
	".pdf":  "application/pdf",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ics":  "text/calendar; charset=utf-8",
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
	Timezone        string
}

// ExportDownload is an opened export ready to stream.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders session views to files and hands out signed download links.
type ExportService struct {
	assignments assignmentReader
	reports     satisfactionReader
	storage     fileStorage
	signer      *storage.SignedURLSigner
	csv         csvRenderer
	pdf         pdfRenderer
	xlsx        xlsxRenderer
	ics         calendarRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ExportConfig
	now         func() time.Time
}

// NewExportService constructs an ExportService with the pkg/export renderers.
func NewExportService(assignments assignmentReader, reports satisfactionReader, files fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	return &ExportService{
		assignments: assignments,
		reports:     reports,
		storage:     files,
		signer:      signer,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		xlsx:        export.NewXLSXExporter(),
		ics:         export.NewICSExporter(cfg.Timezone),
		validator:   validator.New(),
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Generate renders one view of the session, stores it and returns a signed link.
func (s *ExportService) Generate(ctx context.Context, sessionID string, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrValidation, "invalid export request")
	}
	var payload []byte
	var err error
	if req.Format == models.ExportFormatICS {
		payload, err = s.renderCalendar(ctx, sessionID, req.Kind)
	} else {
		payload, err = s.renderTable(ctx, sessionID, req)
	}
	if err != nil {
		return nil, err
	}

	name := path.Join(sanitizeFilename(sessionID), fmt.Sprintf("%s_%s.%s", req.Kind, s.now().UTC().Format("20060102_150405"), req.Format))
	stored, err := s.storage.Save(name, payload)
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(sessionID, stored)
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to sign export link")
	}
	s.logger.Info("export generated",
		zap.String("session_id", sessionID),
		zap.String("kind", string(req.Kind)),
		zap.String("format", string(req.Format)),
		zap.Int("bytes", len(payload)),
	)
	return &dto.ExportResponse{
		URL:       strings.TrimRight(s.cfg.APIPrefix, "/") + "/exports/" + token,
		Format:    req.Format,
		ExpiresAt: expiresAt,
	}, nil
}

func (s *ExportService) renderTable(ctx context.Context, sessionID string, req dto.ExportRequest) ([]byte, error) {
	dataset, title, err := s.dataset(ctx, sessionID, req.Kind)
	if err != nil {
		return nil, err
	}
	var payload []byte
	switch req.Format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	case models.ExportFormatXLSX:
		payload, err = s.xlsx.Render(dataset, string(req.Kind))
	}
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to render export")
	}
	return payload, nil
}

// renderCalendar turns duties into calendar events: one per slot for assignments, one per
// teacher and slot for teacher schedules.
func (s *ExportService) renderCalendar(ctx context.Context, sessionID string, kind models.ExportKind) ([]byte, error) {
	if kind == models.ExportSatisfaction {
		return nil, appErrors.Clone(appErrors.ErrValidation, "satisfaction reports have no calendar form").WithDetail("format", string(models.ExportFormatICS))
	}
	resp, err := s.assignments.Assignments(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := dutyEvents(sessionID, resp, kind, s.ics.Location())
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrDataFormat, "slot times cannot be placed on a calendar")
	}
	if len(events) == 0 {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "session has no supervision duties to export")
	}
	payload, err := s.ics.Render("Exam supervision "+sessionID, events)
	if err != nil {
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to render export")
	}
	return payload, nil
}

// ResolveDownload validates a token and opens the file it points to.
func (s *ExportService) ResolveDownload(ctx context.Context, token string) (*ExportDownload, error) {
	_, name, expiresAt, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	file, err := s.storage.Open(name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to open export file")
	}
	contentType, ok := contentTypes[path.Ext(name)]
	if !ok {
		contentType = "application/octet-stream"
	}
	return &ExportDownload{File: file, Filename: path.Base(name), ContentType: contentType, ExpiresAt: expiresAt}, nil
}

// StartCleanup purges exports older than the result TTL until ctx is done.
func (s *ExportService) StartCleanup(ctx context.Context) {
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
				s.Cleanup()
			}
		}
	}()
}

// Cleanup removes exports older than the result TTL.
func (s *ExportService) Cleanup() {
	removed, err := s.storage.CleanupOlderThan(s.cfg.ResultTTL)
	if err != nil {
		s.logger.Warn("export cleanup failed", zap.Error(err))
		return
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
}

func (s *ExportService) dataset(ctx context.Context, sessionID string, kind models.ExportKind) (export.Dataset, string, error) {
	switch kind {
	case models.ExportAssignments:
		resp, err := s.assignments.Assignments(ctx, sessionID)
		if err != nil {
			return export.Dataset{}, "", err
		}
		return assignmentDataset(resp), "Supervision assignments", nil
	case models.ExportTeacherSchedule:
		resp, err := s.assignments.Assignments(ctx, sessionID)
		if err != nil {
			return export.Dataset{}, "", err
		}
		return teacherScheduleDataset(resp), "Teacher schedules", nil
	case models.ExportSatisfaction:
		report, err := s.reports.Report(ctx, sessionID)
		if err != nil {
			return export.Dataset{}, "", err
		}
		return satisfactionDataset(report), "Teacher satisfaction", nil
	}
	return export.Dataset{}, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export kind")
}

type slotSupervisors struct {
	slot  dto.DutySlot
	names []string
}

// supervisorsBySlot inverts the per-teacher listing into chronological slots.
func supervisorsBySlot(resp *dto.AssignmentsResponse) []*slotSupervisors {
	var out []*slotSupervisors
	bySlot := map[string]*slotSupervisors{}
	for _, t := range resp.Teachers {
		for _, slot := range t.Slots {
			row, ok := bySlot[slot.SlotID]
			if !ok {
				row = &slotSupervisors{slot: slot}
				bySlot[slot.SlotID] = row
				out = append(out, row)
			}
			row.names = append(row.names, t.Name)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].slot, out[j].slot
		if a.Day != b.Day {
			return a.Day < b.Day
		}
		return a.StartTime < b.StartTime
	})
	return out
}

// assignmentDataset lists one row per slot with its supervisors.
func assignmentDataset(resp *dto.AssignmentsResponse) export.Dataset {
	headers := []string{"Date", "Day", "Session", "Start", "End", "Supervisors", "Count"}
	slots := supervisorsBySlot(resp)
	rows := make([]map[string]string, 0, len(slots))
	for _, row := range slots {
		rows = append(rows, map[string]string{
			"Date":        row.slot.Date,
			"Day":         strconv.Itoa(row.slot.Day),
			"Session":     row.slot.Session,
			"Start":       row.slot.StartTime,
			"End":         row.slot.EndTime,
			"Supervisors": strings.Join(row.names, "; "),
			"Count":       strconv.Itoa(len(row.names)),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func dutyEvents(sessionID string, resp *dto.AssignmentsResponse, kind models.ExportKind, loc *time.Location) ([]export.Event, error) {
	var events []export.Event
	if kind == models.ExportTeacherSchedule {
		for _, t := range resp.Teachers {
			for i, slot := range t.Slots {
				start, end, err := slotWindow(slot, loc)
				if err != nil {
					return nil, err
				}
				events = append(events, export.Event{
					UID:         fmt.Sprintf("%s-%s-%s@exam-proctor", sessionID, t.TeacherID, slot.SlotID),
					Summary:     "Exam supervision: " + t.Name,
					Description: fmt.Sprintf("Session %s, duty %d of %d", slot.Session, i+1, len(t.Slots)),
					Location:    strings.Join(slot.Rooms, ", "),
					Start:       start,
					End:         end,
				})
			}
		}
		return events, nil
	}

	for _, row := range supervisorsBySlot(resp) {
		start, end, err := slotWindow(row.slot, loc)
		if err != nil {
			return nil, err
		}
		events = append(events, export.Event{
			UID:         fmt.Sprintf("%s-%s@exam-proctor", sessionID, row.slot.SlotID),
			Summary:     fmt.Sprintf("Exams %s (%d supervisors)", row.slot.Session, len(row.names)),
			Description: strings.Join(row.names, "\n"),
			Location:    strings.Join(row.slot.Rooms, ", "),
			Start:       start,
			End:         end,
		})
	}
	return events, nil
}

func slotWindow(slot dto.DutySlot, loc *time.Location) (time.Time, time.Time, error) {
	const layout = "2006-01-02 15:04"
	start, err := time.ParseInLocation(layout, slot.Date+" "+slot.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("slot %s: %w", slot.SlotID, err)
	}
	end := start.Add(defaultSlotLength)
	if slot.EndTime != "" {
		if parsed, err := time.ParseInLocation(layout, slot.Date+" "+slot.EndTime, loc); err == nil && parsed.After(start) {
			end = parsed
		}
	}
	return start, end, nil
}

func teacherScheduleDataset(resp *dto.AssignmentsResponse) export.Dataset {
	headers := []string{"Teacher ID", "Name", "Grade", "Quota", "Assigned", "Duties"}
	rows := make([]map[string]string, 0, len(resp.Teachers))
	for _, t := range resp.Teachers {
		duties := make([]string, len(t.Slots))
		for i, slot := range t.Slots {
			duties[i] = fmt.Sprintf("%s %s %s", slot.Date, slot.Session, slot.StartTime)
		}
		rows = append(rows, map[string]string{
			"Teacher ID": t.TeacherID,
			"Name":       t.Name,
			"Grade":      t.Grade,
			"Quota":      strconv.Itoa(t.Quota),
			"Assigned":   strconv.Itoa(t.Assigned),
			"Duties":     strings.Join(duties, "; "),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func satisfactionDataset(report *satisfaction.Report) export.Dataset {
	headers := []string{"Teacher ID", "Name", "Grade", "Assigned", "Quota", "Working Days", "Isolated Days", "Gap Days", "Preference Respect", "Score", "Pattern", "Issues"}
	rows := make([]map[string]string, 0, len(report.Records))
	for _, rec := range report.Records {
		rows = append(rows, map[string]string{
			"Teacher ID":         rec.TeacherID,
			"Name":               rec.Name,
			"Grade":              rec.Grade,
			"Assigned":           strconv.Itoa(rec.Assigned),
			"Quota":              strconv.Itoa(rec.Quota),
			"Working Days":       strconv.Itoa(rec.WorkingDays),
			"Isolated Days":      strconv.Itoa(rec.IsolatedDays),
			"Gap Days":           strconv.Itoa(rec.GapDays),
			"Preference Respect": fmt.Sprintf("%.0f%%", rec.PreferenceRespect*100),
			"Score":              fmt.Sprintf("%.1f", rec.Score),
			"Pattern":            rec.Pattern,
			"Issues":             strings.Join(rec.Issues, "; "),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", "-")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
