package service

import (
	"context"
	"database/sql"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/dto"
	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/roster"
	"github.com/noah-isme/exam-proctor-api/internal/scheduler"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

type rosterStore interface {
	Replace(ctx context.Context, sessionID string, teachers []models.Teacher, slots []models.ExamSlot, wishes []models.Wish) error
	Teachers(ctx context.Context, sessionID string) ([]models.Teacher, error)
	Slots(ctx context.Context, sessionID string) ([]models.ExamSlot, error)
	Wishes(ctx context.Context, sessionID string) ([]models.Wish, error)
}

type sessionFinder interface {
	GetByID(ctx context.Context, id string) (*models.PlanningSession, error)
}

// RosterFile is one uploaded table; the filename extension selects the reader.
type RosterFile struct {
	Filename string
	Reader   io.Reader
}

// RosterFiles groups the uploads of an import. Wishes is optional.
type RosterFiles struct {
	Teachers *RosterFile
	Slots    *RosterFile
	Wishes   *RosterFile
}

// RosterSnapshot is the persisted roster of a session in engine form.
type RosterSnapshot struct {
	Session *models.PlanningSession
	Input   scheduler.Input
}

// RosterOptions carries the import-time planner settings.
type RosterOptions struct {
	QuotaPerGrade      exam.GradeQuotas
	SupervisorsPerRoom int
}

// RosterImportService turns uploaded tables into a session's teachers, slots and wishes.
type RosterImportService struct {
	sessions sessionFinder
	repo     rosterStore
	cache    *CacheService
	opts     RosterOptions
	logger   *zap.Logger
}

// NewRosterImportService constructs the import service.
func NewRosterImportService(sessions sessionFinder, repo rosterStore, cache *CacheService, opts RosterOptions, logger *zap.Logger) *RosterImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RosterImportService{sessions: sessions, repo: repo, cache: cache, opts: opts, logger: logger}
}

// Import normalises the uploads and replaces the session's roster. Earlier assignments of
// the session are discarded.
func (s *RosterImportService) Import(ctx context.Context, sessionID string, files RosterFiles) (*dto.RosterImportResponse, error) {
	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}
	if files.Teachers == nil || files.Slots == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "teachers and slots files are required")
	}

	var raw roster.RawRoster
	var err error
	if raw.Teachers, err = readRosterFile(files.Teachers); err != nil {
		return nil, err
	}
	if raw.Slots, err = readRosterFile(files.Slots); err != nil {
		return nil, err
	}
	if files.Wishes != nil {
		if raw.Preferences, err = readRosterFile(files.Wishes); err != nil {
			return nil, err
		}
	}

	normalized, err := roster.Normalize(raw, roster.Options{
		QuotaPerGrade:      s.opts.QuotaPerGrade,
		SupervisorsPerRoom: s.opts.SupervisorsPerRoom,
		Logger:             s.logger,
	})
	if err != nil {
		return nil, dataFormatError(err)
	}

	teachers := make([]models.Teacher, len(normalized.Teachers))
	for i, t := range normalized.Teachers {
		teachers[i] = models.NewTeacher(sessionID, t)
	}
	slots := make([]models.ExamSlot, len(normalized.Slots))
	for i, slot := range normalized.Slots {
		slots[i] = models.NewExamSlot(sessionID, slot)
	}
	wishes := make([]models.Wish, len(normalized.Preferences))
	for i, p := range normalized.Preferences {
		wishes[i] = models.Wish{SessionID: sessionID, TeacherID: p.TeacherID, Day: p.Day, Session: p.Session}
	}

	if err := s.repo.Replace(ctx, sessionID, teachers, slots, wishes); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store roster")
	}
	s.cache.InvalidateSession(ctx, sessionID)

	resp := &dto.RosterImportResponse{
		SessionID:   sessionID,
		Teachers:    len(teachers),
		Slots:       len(slots),
		Preferences: len(wishes),
		Demand:      exam.Demand(normalized.Slots),
		Dropped:     normalized.Dropped,
	}
	s.logger.Info("roster imported",
		zap.String("session_id", sessionID),
		zap.Int("teachers", resp.Teachers),
		zap.Int("slots", resp.Slots),
		zap.Int("preferences", resp.Preferences),
		zap.Int("dropped", len(resp.Dropped)),
	)
	return resp, nil
}

// Snapshot loads the session's roster. Sessions without an imported roster are rejected.
func (s *RosterImportService) Snapshot(ctx context.Context, sessionID string) (*RosterSnapshot, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.SessionStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "session has no imported roster")
	}

	teacherRows, err := s.repo.Teachers(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teachers")
	}
	slotRows, err := s.repo.Slots(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slots")
	}
	wishRows, err := s.repo.Wishes(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load wishes")
	}

	in := scheduler.Input{
		Teachers:    make([]exam.Teacher, len(teacherRows)),
		Slots:       make([]exam.Slot, len(slotRows)),
		Preferences: make([]exam.Preference, len(wishRows)),
	}
	for i, row := range teacherRows {
		in.Teachers[i] = row.Exam()
	}
	for i, row := range slotRows {
		in.Slots[i] = row.Exam()
	}
	for i, row := range wishRows {
		in.Preferences[i] = row.Exam()
	}
	return &RosterSnapshot{Session: session, Input: in}, nil
}

func (s *RosterImportService) session(ctx context.Context, id string) (*models.PlanningSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func readRosterFile(f *RosterFile) (roster.Table, error) {
	table, err := roster.ReadTable(f.Filename, f.Reader)
	if err != nil {
		return roster.Table{}, dataFormatError(err)
	}
	return table, nil
}

func dataFormatError(err error) error {
	var formatErr *roster.DataFormatError
	if errors.As(err, &formatErr) {
		wrapped := appErrors.Wrap(err, appErrors.ErrDataFormat.Code, appErrors.ErrDataFormat.Status, formatErr.Error()).
			WithDetail("table", formatErr.Table)
		if len(formatErr.Missing) > 0 {
			wrapped = wrapped.WithDetail("missing", formatErr.Missing)
		}
		return wrapped
	}
	return appErrors.Wrap(err, appErrors.ErrDataFormat.Code, appErrors.ErrDataFormat.Status, "unreadable roster file")
}
