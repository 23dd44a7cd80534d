package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sector-strength-sentry/pkg/types"
)

type result struct {
	status *types.MonitoringStatus
	err    error
}

// scriptedFetcher 按顺序返回预设结果，用尽后重复最后一个
type scriptedFetcher struct {
	mu      sync.Mutex
	results []result
	calls   int
	release chan struct{}
	entered chan struct{}
}

func (f *scriptedFetcher) GetMonitoringStatus(ctx context.Context) (*types.MonitoringStatus, error) {
	f.mu.Lock()
	i := f.calls
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	f.calls++
	r := f.results[i]
	f.mu.Unlock()

	if f.entered != nil {
		select {
		case f.entered <- struct{}{}:
		default:
		}
	}
	if f.release != nil {
		<-f.release
	}
	return r.status, r.err
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func status(s types.CalculationStatus) *types.MonitoringStatus {
	return &types.MonitoringStatus{CalculationStatus: s}
}

func TestPoller_FetchesImmediately(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{results: []result{{status: status(types.CalculationNormal)}}}
	p := NewPoller(fetcher, types.MonitorConfig{Interval: time.Hour}, nil)

	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool {
		return p.Snapshot().Fetches == 1
	}, time.Second, 5*time.Millisecond)

	snap := p.Snapshot()
	require.NotNil(t, snap.Status)
	assert.Equal(t, types.CalculationNormal, snap.Status.CalculationStatus)
	assert.Empty(t, snap.Error)

	assert.Error(t, p.Start(context.Background()))
}

func TestPoller_TicksOnInterval(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{results: []result{{status: status(types.CalculationNormal)}}}
	p := NewPoller(fetcher, types.MonitorConfig{Interval: 10 * time.Millisecond}, nil)

	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)

	assert.Eventually(t, func() bool {
		return fetcher.callCount() >= 3
	}, time.Second, 5*time.Millisecond)
}

func TestPoller_FailureKeepsLastStatus(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{results: []result{
		{status: status(types.CalculationAbnormal)},
		{err: errors.New("后端超时")},
		{status: status(types.CalculationNormal)},
	}}
	p := NewPoller(fetcher, types.MonitorConfig{Interval: time.Hour}, nil)

	var mu sync.Mutex
	var updates []Snapshot
	p.OnUpdate(func(s Snapshot) {
		mu.Lock()
		updates = append(updates, s)
		mu.Unlock()
	})

	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)

	waitFetches := func(n int) {
		require.Eventually(t, func() bool {
			return p.Snapshot().Fetches == n
		}, time.Second, 5*time.Millisecond)
	}

	waitFetches(1)
	p.Refresh()
	waitFetches(2)

	snap := p.Snapshot()
	require.NotNil(t, snap.Status)
	assert.Equal(t, types.CalculationAbnormal, snap.Status.CalculationStatus)
	assert.Equal(t, "后端超时", snap.Error)

	p.Refresh()
	waitFetches(3)

	snap = p.Snapshot()
	assert.Equal(t, types.CalculationNormal, snap.Status.CalculationStatus)
	assert.Empty(t, snap.Error)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, updates, 3)
}

func TestPoller_SeedShownUntilFirstSuccess(t *testing.T) {
	t.Parallel()

	seed := status(types.CalculationFailed)
	fetcher := &scriptedFetcher{results: []result{{err: errors.New("连接失败")}}}
	p := NewPoller(fetcher, types.MonitorConfig{Interval: time.Hour}, seed)

	assert.Same(t, seed, p.Snapshot().Status)

	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool {
		return p.Snapshot().Fetches == 1
	}, time.Second, 5*time.Millisecond)
	assert.Same(t, seed, p.Snapshot().Status)
	assert.Equal(t, "连接失败", p.Snapshot().Error)
}

func TestPoller_StopDiscardsInFlightResult(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{
		results: []result{{status: status(types.CalculationNormal)}},
		release: make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	p := NewPoller(fetcher, types.MonitorConfig{Interval: time.Hour, StopTimeout: 10 * time.Millisecond}, nil)

	require.NoError(t, p.Start(context.Background()))

	select {
	case <-fetcher.entered:
	case <-time.After(time.Second):
		t.Fatal("fetch was not issued")
	}

	p.Stop()
	close(fetcher.release)

	select {
	case <-p.done:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not exit")
	}

	snap := p.Snapshot()
	assert.Nil(t, snap.Status)
	assert.Zero(t, snap.Fetches)
	assert.Equal(t, 1, fetcher.callCount())

	p.Refresh()
	assert.Equal(t, 1, fetcher.callCount())
	assert.Error(t, p.Start(context.Background()))
}

func TestPoller_StopBeforeStart(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{results: []result{{status: status(types.CalculationNormal)}}}
	p := NewPoller(fetcher, types.MonitorConfig{}, nil)

	p.Stop()
	p.Stop()

	assert.Error(t, p.Start(context.Background()))
	assert.Zero(t, fetcher.callCount())
}

// blockingFetcher 第一次正常返回，之后的调用阻塞到 ctx 结束
type blockingFetcher struct {
	mu       sync.Mutex
	calls    int
	inFlight chan struct{}
}

func (f *blockingFetcher) GetMonitoringStatus(ctx context.Context) (*types.MonitoringStatus, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()

	if n == 1 {
		return status(types.CalculationNormal), nil
	}

	select {
	case f.inFlight <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *blockingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestPoller_NoFetchAfterStop(t *testing.T) {
	t.Parallel()

	// 停止时定时器几乎总是已就绪，多跑几轮覆盖 select 的随机选择
	for run := 0; run < 50; run++ {
		fetcher := &blockingFetcher{inFlight: make(chan struct{}, 1)}
		p := NewPoller(fetcher, types.MonitorConfig{Interval: time.Millisecond, StopTimeout: time.Second}, nil)

		require.NoError(t, p.Start(context.Background()))

		select {
		case <-fetcher.inFlight:
		case <-time.After(time.Second):
			t.Fatal("second fetch was not issued")
		}
		// 让定时器在阻塞期间就绪
		time.Sleep(3 * time.Millisecond)

		p.Stop()

		select {
		case <-p.done:
		case <-time.After(time.Second):
			t.Fatal("poll loop did not exit")
		}

		require.Equal(t, 2, fetcher.callCount(), "run %d", run)
		assert.Equal(t, 1, p.Snapshot().Fetches)
	}
}

func TestPoller_RefreshKeepsTickerPhase(t *testing.T) {
	t.Parallel()

	const interval = 400 * time.Millisecond

	fetcher := &scriptedFetcher{results: []result{{status: status(types.CalculationNormal)}}}
	p := NewPoller(fetcher, types.MonitorConfig{Interval: interval}, nil)

	var mu sync.Mutex
	var times []time.Time
	p.OnUpdate(func(Snapshot) {
		mu.Lock()
		times = append(times, time.Now())
		mu.Unlock()
	})

	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)

	require.Eventually(t, func() bool { return p.Snapshot().Fetches == 1 }, time.Second, time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	p.Refresh()
	require.Eventually(t, func() bool { return p.Snapshot().Fetches == 2 }, time.Second, time.Millisecond)

	require.Eventually(t, func() bool { return p.Snapshot().Fetches == 3 }, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, times, 3)

	// 刷新后定时器未重置：第三次拉取在首次拉取后约一个周期，而不是刷新后一个周期
	sinceFirst := times[2].Sub(times[0])
	assert.GreaterOrEqual(t, sinceFirst, interval-50*time.Millisecond)
	assert.Less(t, sinceFirst, interval+120*time.Millisecond)
	assert.Less(t, times[2].Sub(times[1]), interval-50*time.Millisecond)
}
