package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	"github.com/noah-isme/exam-proctor-api/internal/quota"
	"github.com/noah-isme/exam-proctor-api/pkg/config"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

// QuotaService offers the advisory quota tools on an imported roster.
type QuotaService struct {
	rosters snapshotLoader
	cache   *CacheService
	planner config.PlannerConfig
	logger  *zap.Logger
}

// NewQuotaService constructs the service.
func NewQuotaService(rosters snapshotLoader, cache *CacheService, planner config.PlannerConfig, logger *zap.Logger) *QuotaService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QuotaService{rosters: rosters, cache: cache, planner: planner, logger: logger}
}

// Recommend proposes per-grade quotas covering the session's demand times rate. A
// non-positive rate uses the configured overprovisioning rate.
func (s *QuotaService) Recommend(ctx context.Context, sessionID string, rate float64) (*quota.Recommendation, error) {
	if rate < 0 || rate > 3 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "rate must be between 0 and 3")
	}
	if rate == 0 {
		rate = s.planner.OverprovisioningRate
	}
	key := SessionKey(sessionID, "quota", strconv.FormatFloat(rate, 'f', -1, 64))
	return loadThrough(ctx, s.cache, key, func(ctx context.Context) (*quota.Recommendation, error) {
		snap, err := s.rosters.Snapshot(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		rec := quota.Recommend(quota.Request{
			Demand:      exam.Demand(snap.Input.Slots),
			GradeCounts: quota.GradeCounts(snap.Input.Teachers),
			Rate:        rate,
			Current:     GradeQuotas(s.planner),
		})
		return &rec, nil
	})
}

// Analyze runs the pre-solve feasibility analysis. Nil quotas use the teachers' stored
// quotas.
func (s *QuotaService) Analyze(ctx context.Context, sessionID string, quotas exam.GradeQuotas) (*quota.FeasibilityReport, error) {
	for grade, q := range quotas {
		if q < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "quota for "+grade+" must not be negative")
		}
	}
	key := SessionKey(sessionID, "feasibility", quotaFingerprint(quotas))
	return loadThrough(ctx, s.cache, key, func(ctx context.Context) (*quota.FeasibilityReport, error) {
		snap, err := s.rosters.Snapshot(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		report := quota.Analyze(snap.Input.Teachers, snap.Input.Slots, snap.Input.Preferences, quotas)
		s.logger.Debug("feasibility analysed",
			zap.String("session_id", sessionID),
			zap.String("status", report.Status),
			zap.Int("score", report.Score),
		)
		return &report, nil
	})
}

// ParseQuotaQuery reads "PR=4,MA=7" into a quota table. Empty input yields nil.
func ParseQuotaQuery(raw string) (exam.GradeQuotas, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	out := exam.GradeQuotas{}
	for _, entry := range strings.Split(raw, ",") {
		grade, value, ok := strings.Cut(entry, "=")
		grade = strings.ToUpper(strings.TrimSpace(grade))
		if !ok || grade == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "malformed quota entry "+strconv.Quote(entry))
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid quota for "+grade)
		}
		out[grade] = n
	}
	return out, nil
}

func quotaFingerprint(quotas exam.GradeQuotas) string {
	if len(quotas) == 0 {
		return "stored"
	}
	grades := make([]string, 0, len(quotas))
	for g := range quotas {
		grades = append(grades, g)
	}
	sort.Strings(grades)
	var b strings.Builder
	for i, g := range grades {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(g)
		b.WriteByte('-')
		b.WriteString(strconv.Itoa(quotas[g]))
	}
	return b.String()
}
