// Package monitor 轮询后端分类计算的监控状态
package monitor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"sector-strength-sentry/pkg/types"
)

const (
	defaultInterval    = 30 * time.Second
	defaultStopTimeout = 5 * time.Second
)

// StatusFetcher 监控状态数据源
type StatusFetcher interface {
	GetMonitoringStatus(ctx context.Context) (*types.MonitoringStatus, error)
}

// Snapshot 轮询器对外展示的状态
// 拉取失败时 Status 保留上一次成功的结果，Error 记录失败原因
type Snapshot struct {
	Status    *types.MonitoringStatus
	Error     string
	UpdatedAt time.Time
	Fetches   int
}

// Poller 监控状态轮询器，所有拉取都在同一个协程中串行执行
type Poller struct {
	fetcher     StatusFetcher
	interval    time.Duration
	stopTimeout time.Duration

	mu         sync.RWMutex
	snapshot   Snapshot
	generation uint64
	started    bool
	stopped    bool
	cancel     context.CancelFunc
	done       chan struct{}
	listeners  []func(Snapshot)

	refreshCh chan struct{}
}

// NewPoller 创建轮询器，seed 为首次拉取成功前展示的缓存状态，可为空
func NewPoller(fetcher StatusFetcher, config types.MonitorConfig, seed *types.MonitoringStatus) *Poller {
	interval := config.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	stopTimeout := config.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = defaultStopTimeout
	}

	return &Poller{
		fetcher:     fetcher,
		interval:    interval,
		stopTimeout: stopTimeout,
		snapshot:    Snapshot{Status: seed},
		done:        make(chan struct{}),
		refreshCh:   make(chan struct{}, 1),
	}
}

// OnUpdate 注册每次拉取结果生效后的回调
func (p *Poller) OnUpdate(listener func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listeners = append(p.listeners, listener)
}

// Start 立即拉取一次，之后按固定间隔拉取直到 Stop
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return errors.New("轮询器已停止")
	}
	if p.started {
		return errors.New("轮询器已启动")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true

	zap.L().Info("📊 启动监控状态轮询", zap.Duration("interval", p.interval))

	go p.loop(loopCtx, p.generation)
	return nil
}

// Refresh 触发一次额外拉取，不影响定时器节奏；已有待执行的刷新时合并
func (p *Poller) Refresh() {
	p.mu.RLock()
	active := p.started && !p.stopped
	p.mu.RUnlock()

	if !active {
		return
	}

	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Stop 停止轮询，停止后在途请求的结果不会再生效
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.generation++
	started := p.started
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()

	if !started {
		return
	}

	select {
	case <-p.done:
		zap.L().Info("✅ 监控状态轮询已停止")
	case <-time.After(p.stopTimeout):
		zap.L().Warn("⚠️ 等待监控轮询退出超时，迟到的结果将被丢弃", zap.Duration("timeout", p.stopTimeout))
	}
}

// Snapshot 当前状态
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.snapshot
}

// loop 轮询循环
func (p *Poller) loop(ctx context.Context, generation uint64) {
	defer close(p.done)

	// 立即执行一次
	p.fetch(ctx, generation)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.refreshCh:
		}

		// 定时与刷新可能和停止同时就绪，select 随机选择，停止后不再发起请求
		if ctx.Err() != nil {
			return
		}
		p.fetch(ctx, generation)
	}
}

// active 轮询器未停止且会话代次未变
func (p *Poller) active(generation uint64) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return !p.stopped && generation == p.generation
}

// fetch 拉取并应用一次监控状态，停止后不再发起请求
func (p *Poller) fetch(ctx context.Context, generation uint64) {
	if ctx.Err() != nil || !p.active(generation) {
		return
	}

	status, err := p.fetcher.GetMonitoringStatus(ctx)

	p.mu.Lock()
	if p.stopped || generation != p.generation {
		p.mu.Unlock()
		zap.L().Debug("🗑️ 轮询器已停止，丢弃监控状态结果")
		return
	}

	p.snapshot.Fetches++
	p.snapshot.UpdatedAt = time.Now()
	if err != nil {
		p.snapshot.Error = err.Error()
	} else {
		p.snapshot.Status = status
		p.snapshot.Error = ""
	}
	snapshot := p.snapshot
	listeners := p.listeners
	p.mu.Unlock()

	if err != nil {
		zap.L().Warn("⚠️ 获取监控状态失败，保留上次结果", zap.Error(err))
	} else {
		zap.L().Debug("📊 监控状态已更新",
			zap.String("calculation_status", string(status.CalculationStatus)),
			zap.Int("missing_sectors", len(status.DataIntegrity.MissingSectors)))
	}

	for _, listener := range listeners {
		listener(snapshot)
	}
}
