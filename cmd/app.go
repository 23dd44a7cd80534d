package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"sector-strength-sentry/internal/database"
	"sector-strength-sentry/internal/fetcher"
	"sector-strength-sentry/internal/metrics"
	"sector-strength-sentry/internal/monitor"
	"sector-strength-sentry/internal/notifier"
	"sector-strength-sentry/internal/scheduler"
	"sector-strength-sentry/internal/storage"
	"sector-strength-sentry/pkg/types"
)

// App 应用程序管理器
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	client    *fetcher.APIClient
	store     *storage.SnapshotStore
	dbManager *database.Manager
	registry  *metrics.Registry
	notifier  notifier.Interface
	poller    *monitor.Poller
	scheduler *scheduler.Scheduler

	alertMutex sync.Mutex
	alerting   bool
}

// NewApp 创建应用程序实例
func NewApp(config *types.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		client:   fetcher.NewAPIClient(config.API, config.Breaker, config.Network),
		store:    storage.NewSnapshotStore(config.Redis),
		registry: metrics.NewRegistry(),
		notifier: notifier.NewNotifier(config.DingTalk),
	}

	// 修复历史和级别分布只在配置了数据库时记录
	var recorder scheduler.DistributionRecorder
	if config.Database.Driver != "" {
		dbManager, err := database.NewManager(config.Database)
		switch {
		case err != nil:
			zap.L().Warn("⚠️ 数据库不可用，不记录级别分布", zap.Error(err))
		case dbManager.Health() != nil:
			zap.L().Warn("⚠️ 数据库健康检查失败，不记录级别分布")
			_ = dbManager.Close()
		default:
			app.dbManager = dbManager
			recorder = dbManager
		}
	}

	// 首次拉取成功前展示缓存的监控状态
	seed, err := app.store.LoadMonitoringStatus(ctx)
	if err != nil {
		zap.L().Warn("⚠️ 读取缓存的监控状态失败", zap.Error(err))
	}

	app.poller = monitor.NewPoller(app.client, config.Monitor, seed)
	app.poller.OnUpdate(app.handleMonitoringUpdate)
	app.scheduler = scheduler.NewScheduler(app.client, app.store, recorder, app.registry, config.Schedule)

	return app, nil
}

// Start 启动应用程序
func (app *App) Start() error {
	zap.L().Info("🚀 Sector Strength Sentry 启动中...")

	if err := app.poller.Start(app.ctx); err != nil {
		return err
	}

	if err := app.scheduler.Start(app.ctx); err != nil {
		return err
	}

	if app.config.Metrics.Addr != "" {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.registry.Serve(app.ctx, app.config.Metrics.Addr); err != nil {
				zap.L().Error("❌ 指标服务异常退出", zap.Error(err))
			}
		}()
	}

	zap.L().Info("✅ Sector Strength Sentry 已启动", zap.Any("storage", app.store.GetStats()))
	return nil
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()
	app.poller.Stop()

	last := app.poller.Snapshot()
	zap.L().Info("📊 监控轮询统计", zap.Int("fetches", last.Fetches), zap.String("last_error", last.Error))

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ Sector Strength Sentry 已安全关闭")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	if err := app.store.Close(); err != nil {
		zap.L().Warn("⚠️ 关闭Redis连接失败", zap.Error(err))
	}
	if app.dbManager != nil {
		if err := app.dbManager.Close(); err != nil {
			zap.L().Warn("⚠️ 关闭数据库连接失败", zap.Error(err))
		}
	}
}

// WaitForShutdown 等待关闭信号，SIGHUP 触发一次监控状态刷新
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			zap.L().Info("🔄 收到SIGHUP，刷新监控状态")
			app.poller.Refresh()
			continue
		}
		return
	}
}

// handleMonitoringUpdate 处理每次监控状态拉取结果：更新指标、写缓存、必要时预警
func (app *App) handleMonitoringUpdate(snapshot monitor.Snapshot) {
	failed := snapshot.Error != ""
	status := snapshot.Status

	if failed || status == nil {
		app.registry.RecordPoll(true, false, 0)
		return
	}

	app.registry.RecordPoll(false, status.Healthy(), len(status.DataIntegrity.MissingSectors))

	if err := app.store.SaveMonitoringStatus(app.ctx, status); err != nil {
		zap.L().Warn("⚠️ 缓存监控状态失败", zap.Error(err))
	}

	if app.shouldAlert(status) {
		if err := app.notifier.SendMonitoringAlert(status); err != nil {
			zap.L().Error("❌ 发送监控预警失败", zap.Error(err))
		}
	}
}

// shouldAlert 状态由正常变为异常时预警一次，恢复正常后重新允许预警
func (app *App) shouldAlert(status *types.MonitoringStatus) bool {
	app.alertMutex.Lock()
	defer app.alertMutex.Unlock()

	if !notifier.NeedsAlert(status) {
		if app.alerting {
			zap.L().Info("✅ 板块分类计算已恢复正常")
		}
		app.alerting = false
		return false
	}

	if app.alerting {
		return false
	}
	app.alerting = true
	return true
}
