package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/exam"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

type countingSnapshots struct {
	snapshotStub
	calls int
}

func (c *countingSnapshots) Snapshot(ctx context.Context, sessionID string) (*RosterSnapshot, error) {
	c.calls++
	return c.snapshotStub.Snapshot(ctx, sessionID)
}

func newQuotaFixture() (*QuotaService, *countingSnapshots) {
	snaps := &countingSnapshots{snapshotStub: snapshotStub{input: forcedInput()}}
	planner := testPlannerConfig()
	planner.OverprovisioningRate = 1.15
	planner.QuotaPerGrade = map[string]int{"MA": 1}
	cache := NewCacheService(newMemoryCache(), nil, 0, nil, true)
	return NewQuotaService(snaps, cache, planner, nil), snaps
}

func TestQuotaRecommendUsesConfiguredRateAndCaches(t *testing.T) {
	svc, snaps := newQuotaFixture()

	rec, err := svc.Recommend(context.Background(), "s-1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.15, rec.Rate)
	assert.Equal(t, 2, rec.Demand)
	assert.Contains(t, rec.Quotas, "MA")

	again, err := svc.Recommend(context.Background(), "s-1", 1.15)
	require.NoError(t, err)
	assert.Equal(t, rec.Quotas, again.Quotas)
	assert.Equal(t, 1, snaps.calls)
}

func TestQuotaRecommendRejectsRate(t *testing.T) {
	svc, _ := newQuotaFixture()
	for _, rate := range []float64{-0.5, 3.5} {
		_, err := svc.Recommend(context.Background(), "s-1", rate)
		require.Error(t, err)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestQuotaAnalyzeCachesPerQuotaTable(t *testing.T) {
	svc, snaps := newQuotaFixture()
	ctx := context.Background()

	report, err := svc.Analyze(ctx, "s-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Capacity.Demand)

	_, err = svc.Analyze(ctx, "s-1", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, snaps.calls)

	_, err = svc.Analyze(ctx, "s-1", exam.GradeQuotas{"MA": 3})
	require.NoError(t, err)
	assert.Equal(t, 2, snaps.calls)

	_, err = svc.Analyze(ctx, "s-1", exam.GradeQuotas{"MA": -1})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestParseQuotaQuery(t *testing.T) {
	quotas, err := ParseQuotaQuery(" pr=4, MA = 7 ")
	require.NoError(t, err)
	assert.Equal(t, exam.GradeQuotas{"PR": 4, "MA": 7}, quotas)

	quotas, err = ParseQuotaQuery("")
	require.NoError(t, err)
	assert.Nil(t, quotas)

	for _, raw := range []string{"PR", "PR=x", "=4", "PR=-2"} {
		_, err := ParseQuotaQuery(raw)
		assert.Error(t, err, raw)
	}
}

func TestQuotaFingerprintIsOrderIndependent(t *testing.T) {
	assert.Equal(t, "stored", quotaFingerprint(nil))
	assert.Equal(t, "MA-7.PR-4", quotaFingerprint(exam.GradeQuotas{"PR": 4, "MA": 7}))
}
