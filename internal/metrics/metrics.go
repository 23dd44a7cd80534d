package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

// Registry 哨兵进程的 Prometheus 指标
type Registry struct {
	registry *prometheus.Registry

	FixSessions      *prometheus.CounterVec
	FixSectors       *prometheus.CounterVec
	MonitoringPolls  *prometheus.CounterVec
	CalculationOK    prometheus.Gauge
	MissingSectors   prometheus.Gauge
	SnapshotRecords  prometheus.Gauge
	SnapshotLevels   *prometheus.GaugeVec
	SnapshotDuration prometheus.Histogram
}

// NewRegistry 创建并注册全部指标
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		FixSessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sector_sentry_fix_sessions_total",
				Help: "Terminal fix sessions by phase",
			},
			[]string{"phase"},
		),

		FixSectors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sector_sentry_fix_sectors_total",
				Help: "Sectors processed by fix sessions by result",
			},
			[]string{"result"},
		),

		MonitoringPolls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sector_sentry_monitoring_polls_total",
				Help: "Monitoring status fetches by result",
			},
			[]string{"result"},
		),

		CalculationOK: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sector_sentry_calculation_healthy",
				Help: "1 when the last known calculation status is normal with no missing sectors",
			},
		),

		MissingSectors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sector_sentry_missing_sectors",
				Help: "Sectors without classification data in the last known status",
			},
		),

		SnapshotRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sector_sentry_snapshot_records",
				Help: "Classification records in the latest snapshot",
			},
		),

		SnapshotLevels: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sector_sentry_snapshot_level_sectors",
				Help: "Sectors per classification level in the latest snapshot",
			},
			[]string{"level"},
		),

		SnapshotDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sector_sentry_snapshot_duration_seconds",
				Help:    "Duration of the classification snapshot job",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),
	}

	r.registry.MustRegister(
		r.FixSessions,
		r.FixSectors,
		r.MonitoringPolls,
		r.CalculationOK,
		r.MissingSectors,
		r.SnapshotRecords,
		r.SnapshotLevels,
		r.SnapshotDuration,
	)
	return r
}

// RecordFix 记录一次终态修复会话
func (r *Registry) RecordFix(phase string, successCount, failedCount int) {
	r.FixSessions.WithLabelValues(phase).Inc()
	r.FixSectors.WithLabelValues("success").Add(float64(successCount))
	r.FixSectors.WithLabelValues("failed").Add(float64(failedCount))
}

// RecordPoll 记录一次监控状态拉取，失败时只累计次数
func (r *Registry) RecordPoll(failed, healthy bool, missing int) {
	if failed {
		r.MonitoringPolls.WithLabelValues("error").Inc()
		return
	}

	r.MonitoringPolls.WithLabelValues("success").Inc()
	r.MissingSectors.Set(float64(missing))
	if healthy {
		r.CalculationOK.Set(1)
	} else {
		r.CalculationOK.Set(0)
	}
}

// RecordSnapshot 记录一次分类快照
func (r *Registry) RecordSnapshot(records int, distribution [10]int, elapsed time.Duration) {
	r.SnapshotRecords.Set(float64(records))
	for level := 1; level <= 9; level++ {
		r.SnapshotLevels.WithLabelValues(strconv.Itoa(level)).Set(float64(distribution[level]))
	}
	r.SnapshotDuration.Observe(elapsed.Seconds())
}

// Handler /metrics 处理器
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics，直到 ctx 结束
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	zap.L().Info("📈 指标服务已启动", zap.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Push 把当前指标推送到 Pushgateway
func (r *Registry) Push(ctx context.Context, url, job string) error {
	return push.New(url, job).Gatherer(r.registry).PushContext(ctx)
}
