package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sector-strength-sentry/internal/metrics"
	"sector-strength-sentry/pkg/types"
)

type staticSource struct {
	records []types.ClassificationRecord
	err     error
}

func (s *staticSource) ListAllClassifications(ctx context.Context) ([]types.ClassificationRecord, error) {
	return s.records, s.err
}

type memorySaver struct {
	mu    sync.Mutex
	saved map[string][]types.ClassificationRecord
}

func (m *memorySaver) SaveClassificationSnapshot(ctx context.Context, date string, records []types.ClassificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saved == nil {
		m.saved = make(map[string][]types.ClassificationRecord)
	}
	m.saved[date] = records
	return nil
}

func (m *memorySaver) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

type distributionRecorder struct {
	date string
	dist [10]int
}

func (d *distributionRecorder) SaveLevelDistribution(date string, distribution [10]int) error {
	d.date = date
	d.dist = distribution
	return nil
}

func TestScheduler_RunSnapshot(t *testing.T) {
	t.Parallel()

	source := &staticSource{records: []types.ClassificationRecord{
		{SectorID: "1", Date: "2025-03-03", Level: 9},
		{SectorID: "2", Date: "2025-03-04", Level: 9},
		{SectorID: "3", Date: "2025-03-04", Level: 2},
	}}
	saver := &memorySaver{}
	recorder := &distributionRecorder{}

	s := NewScheduler(source, saver, recorder, metrics.NewRegistry(), types.ScheduleConfig{SnapshotCron: "0 30 15 * * 1-5"})

	result, err := s.RunSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2025-03-04", result.Date)
	assert.Equal(t, 3, result.Records)
	assert.Equal(t, 2, result.Distribution[9])
	assert.Equal(t, 1, result.Distribution[2])

	assert.Len(t, saver.saved["2025-03-04"], 3)
	assert.Equal(t, "2025-03-04", recorder.date)
	assert.Equal(t, result.Distribution, recorder.dist)
}

func TestScheduler_RunSnapshotEmptyUsesToday(t *testing.T) {
	t.Parallel()

	saver := &memorySaver{}
	s := NewScheduler(&staticSource{}, saver, nil, nil, types.ScheduleConfig{})
	s.now = func() time.Time { return time.Date(2025, 3, 5, 15, 30, 0, 0, time.UTC) }

	result, err := s.RunSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-03-05", result.Date)
	assert.Zero(t, result.Records)
}

func TestScheduler_RunSnapshotSourceError(t *testing.T) {
	t.Parallel()

	saver := &memorySaver{}
	s := NewScheduler(&staticSource{err: errors.New("后端不可用")}, saver, nil, nil, types.ScheduleConfig{})

	_, err := s.RunSnapshot(context.Background())
	assert.Error(t, err)
	assert.Zero(t, saver.count())
}

func TestScheduler_Start(t *testing.T) {
	t.Parallel()

	source := &staticSource{records: []types.ClassificationRecord{{SectorID: "1", Date: "2025-03-03", Level: 5}}}
	saver := &memorySaver{}

	s := NewScheduler(source, saver, nil, nil, types.ScheduleConfig{SnapshotCron: "0 0 0 1 1 *", RunOnStart: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.Start(ctx))

	assert.Eventually(t, func() bool {
		return saver.count() == 1
	}, time.Second, 5*time.Millisecond)

	invalid := NewScheduler(source, saver, nil, nil, types.ScheduleConfig{SnapshotCron: "not a cron"})
	assert.Error(t, invalid.Start(ctx))

	missing := NewScheduler(source, saver, nil, nil, types.ScheduleConfig{})
	assert.Error(t, missing.Start(ctx))
}
