package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"sector-strength-sentry/internal/metrics"
	"sector-strength-sentry/internal/resultset"
	"sector-strength-sentry/pkg/types"
)

// ClassificationSource 分类数据来源
type ClassificationSource interface {
	ListAllClassifications(ctx context.Context) ([]types.ClassificationRecord, error)
}

// SnapshotSaver 分类快照存储
type SnapshotSaver interface {
	SaveClassificationSnapshot(ctx context.Context, date string, records []types.ClassificationRecord) error
}

// DistributionRecorder 级别分布历史
type DistributionRecorder interface {
	SaveLevelDistribution(date string, distribution [10]int) error
}

// SnapshotResult 一次快照任务的结果
type SnapshotResult struct {
	Date         string
	Records      int
	Distribution [10]int
}

// Scheduler 调度器，按cron表达式定时保存板块分类快照
type Scheduler struct {
	cron     *cron.Cron
	source   ClassificationSource
	store    SnapshotSaver
	recorder DistributionRecorder
	metrics  *metrics.Registry
	config   types.ScheduleConfig
	now      func() time.Time
}

// NewScheduler 创建调度器，recorder 和 registry 可为空
func NewScheduler(source ClassificationSource, store SnapshotSaver, recorder DistributionRecorder, registry *metrics.Registry, config types.ScheduleConfig) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		source:   source,
		store:    store,
		recorder: recorder,
		metrics:  registry,
		config:   config,
		now:      time.Now,
	}
}

// Start 注册快照任务并启动调度，ctx 结束时停止
func (s *Scheduler) Start(ctx context.Context) error {
	if s.config.SnapshotCron == "" {
		return errors.New("未配置快照任务的cron表达式")
	}

	if _, err := s.cron.AddFunc(s.config.SnapshotCron, func() {
		if _, err := s.RunSnapshot(ctx); err != nil {
			zap.L().Error("❌ 分类快照任务失败", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("注册快照任务失败: %w", err)
	}

	zap.L().Info("🚀 调度器启动", zap.String("snapshot_cron", s.config.SnapshotCron))
	s.cron.Start()

	if s.config.RunOnStart {
		go func() {
			if _, err := s.RunSnapshot(ctx); err != nil {
				zap.L().Error("❌ 启动时快照任务失败", zap.Error(err))
			}
		}()
	}

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("📴 调度器已停止")
}

// RunSnapshot 拉取全部分类数据并保存快照
func (s *Scheduler) RunSnapshot(ctx context.Context) (*SnapshotResult, error) {
	start := s.now()
	zap.L().Info("📸 开始保存分类快照")

	records, err := s.source.ListAllClassifications(ctx)
	if err != nil {
		return nil, fmt.Errorf("拉取分类数据失败: %w", err)
	}

	result := &SnapshotResult{
		Date:         snapshotDate(records, start),
		Records:      len(records),
		Distribution: resultset.LevelDistribution(records),
	}

	if err := s.store.SaveClassificationSnapshot(ctx, result.Date, records); err != nil {
		return nil, fmt.Errorf("保存分类快照失败: %w", err)
	}

	if s.recorder != nil {
		if err := s.recorder.SaveLevelDistribution(result.Date, result.Distribution); err != nil {
			zap.L().Warn("⚠️ 保存级别分布失败", zap.Error(err))
		}
	}

	elapsed := s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.RecordSnapshot(result.Records, result.Distribution, elapsed)
	}

	zap.L().Info("✅ 分类快照已保存",
		zap.String("date", result.Date),
		zap.Int("records", result.Records),
		zap.Ints("distribution", result.Distribution[1:]),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// snapshotDate 取记录中最新的交易日，没有记录时使用当天日期
func snapshotDate(records []types.ClassificationRecord, now time.Time) string {
	latest := ""
	for _, record := range records {
		if record.Date > latest {
			latest = record.Date
		}
	}
	if latest == "" {
		latest = now.Format("2006-01-02")
	}
	return latest
}
