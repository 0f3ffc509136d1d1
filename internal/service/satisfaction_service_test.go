package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/exam-proctor-api/internal/models"
	"github.com/noah-isme/exam-proctor-api/internal/satisfaction"
	appErrors "github.com/noah-isme/exam-proctor-api/pkg/errors"
)

func TestSatisfactionReportFromStoredRecords(t *testing.T) {
	snaps := &countingSnapshots{snapshotStub: snapshotStub{input: forcedInput()}}
	store := &assignmentStoreStub{records: []models.SatisfactionRecord{
		{TeacherID: "T1", Score: 95, Detail: models.SatisfactionDetail{Record: satisfaction.Record{TeacherID: "T1", Score: 95}}},
		{TeacherID: "T2", Score: 60, Detail: models.SatisfactionDetail{Record: satisfaction.Record{TeacherID: "T2", Score: 60}}},
	}}
	cache := newMemoryCache()
	svc := NewSatisfactionService(snaps, store, NewCacheService(cache, nil, 0, nil, true), nil)

	report, err := svc.Report(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, report.Records, 2)
	assert.Equal(t, "T2", report.Records[0].TeacherID)
	assert.Equal(t, 2, report.Summary.Teachers)
	assert.Equal(t, 60.0, report.Summary.Min)
	assert.Zero(t, snaps.calls)
	assert.True(t, cache.has(SessionKey("s-1", "satisfaction")))

	store.records = nil
	cached, err := svc.Report(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, report.Summary, cached.Summary)
}

func TestSatisfactionReportRescoresAssignment(t *testing.T) {
	snaps := &countingSnapshots{snapshotStub: snapshotStub{input: forcedInput()}}
	store := &assignmentStoreStub{duties: []models.Assignment{
		{TeacherID: "T1", SlotID: "2025-01-06T08:30"},
		{TeacherID: "T2", SlotID: "2025-01-06T08:30"},
	}}
	svc := NewSatisfactionService(snaps, store, nil, nil)

	report, err := svc.Report(context.Background(), "s-1")
	require.NoError(t, err)
	require.Len(t, report.Records, 2)
	for _, rec := range report.Records {
		assert.Equal(t, 1, rec.Assigned)
		assert.Equal(t, 1, rec.WorkingDays)
	}
	assert.Equal(t, 1, snaps.calls)
}

func TestSatisfactionReportWithoutAssignment(t *testing.T) {
	snaps := &countingSnapshots{snapshotStub: snapshotStub{input: forcedInput()}}
	svc := NewSatisfactionService(snaps, &assignmentStoreStub{}, nil, nil)

	_, err := svc.Report(context.Background(), "s-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
