package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/satisfaction"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

type satisfactionSource interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.Assignment, error)
	ListSatisfaction(ctx context.Context, sessionID string) ([]models.SatisfactionRecord, error)
}

// SatisfactionService reports how well the published assignment suits each teacher.
type SatisfactionService struct {
	rosters snapshotLoader
	store   satisfactionSource
	cache   *CacheService
	logger  *zap.Logger
}

// NewSatisfactionService constructs the service.
func NewSatisfactionService(rosters snapshotLoader, store satisfactionSource, cache *CacheService, logger *zap.Logger) *SatisfactionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SatisfactionService{rosters: rosters, store: store, cache: cache, logger: logger}
}

// Report returns the satisfaction report of the session's published assignment, worst
// first. Stored records are used when present; otherwise the report is rescored from the
// stored assignment.
func (s *SatisfactionService) Report(ctx context.Context, sessionID string) (*satisfaction.Report, error) {
	return loadThrough(ctx, s.cache, SessionKey(sessionID, "satisfaction"), func(ctx context.Context) (*satisfaction.Report, error) {
		rows, err := s.store.ListSatisfaction(ctx, sessionID)
		if err != nil {
			return nil, appErrors.Wrapf(err, appErrors.ErrInternal, "failed to load satisfaction records")
		}
		if len(rows) == 0 {
			return s.rescore(ctx, sessionID)
		}
		records := make([]satisfaction.Record, len(rows))
		for i, row := range rows {
			records[i] = row.Detail.Record
		}
		report := satisfaction.NewReport(records)
		return &report, nil
	})
}

func (s *SatisfactionService) rescore(ctx context.Context, sessionID string) (*satisfaction.Report, error) {
	snap, err := s.rosters.Snapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignments")
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session has no published assignment")
	}
	pairs := make([]exam.Pair, len(rows))
	for i, row := range rows {
		pairs[i] = exam.Pair{TeacherID: row.TeacherID, SlotID: row.SlotID}
	}
	in := snap.Input
	report := satisfaction.Score(exam.FromPairs(pairs), in.Teachers, in.Slots, in.Preferences, satisfaction.Rubric{})
	s.logger.Debug("satisfaction rescored", zap.String("session_id", sessionID), zap.Int("records", len(report.Records)))
	return &report, nil
}
