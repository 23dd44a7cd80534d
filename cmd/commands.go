package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"sector-strength-sentry/internal/analyzer"
	"sector-strength-sentry/internal/database"
	"sector-strength-sentry/internal/fetcher"
	"sector-strength-sentry/internal/fixer"
	"sector-strength-sentry/internal/metrics"
	"sector-strength-sentry/internal/notifier"
	"sector-strength-sentry/internal/resultset"
	"sector-strength-sentry/internal/storage"
	"sector-strength-sentry/internal/strategy/indicators"
	"sector-strength-sentry/internal/strategy/signals"
	"sector-strength-sentry/pkg/types"
)

func newFixCmd(cfg *types.Config) *cobra.Command {
	var req types.FixRequest

	cmd := &cobra.Command{
		Use:   "fix",
		Short: "按板块ID或名称修复最近N天的分类数据",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFix(cmd.Context(), cmd.OutOrStdout(), cfg, req)
		},
	}

	cmd.Flags().StringVar(&req.SectorID, "sector-id", "", "板块ID")
	cmd.Flags().StringVar(&req.SectorName, "sector-name", "", "板块名称")
	cmd.Flags().IntVar(&req.Days, "days", 30, "修复天数")
	cmd.Flags().BoolVar(&req.Overwrite, "overwrite", false, "覆盖已有数据")

	return cmd
}

func runFix(ctx context.Context, out io.Writer, cfg *types.Config, req types.FixRequest) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := fetcher.NewAPIClient(cfg.API, cfg.Breaker, cfg.Network)
	orchestrator := fixer.NewOrchestrator(client)
	orchestrator.OnStateChange(func(prev, next fixer.State) {
		zap.L().Debug("修复状态变更",
			zap.String("from", string(prev.Phase)),
			zap.String("to", string(next.Phase)))
	})

	final := orchestrator.Fix(ctx, req)
	report := final.Report(time.Now())
	if report == nil {
		return fmt.Errorf("修复未完成: %s", final.Phase)
	}

	// 一次性命令的指标推送到 Pushgateway
	if cfg.Metrics.PushGateway != "" {
		registry := metrics.NewRegistry()
		if report.Outcome != nil {
			registry.RecordFix(string(final.Phase), report.Outcome.SuccessCount, report.Outcome.FailedCount)
		} else {
			registry.RecordFix(string(final.Phase), 0, 0)
		}
		if err := registry.Push(ctx, cfg.Metrics.PushGateway, "sector_sentry_fix"); err != nil {
			zap.L().Warn("⚠️ 推送修复指标失败", zap.Error(err))
		}
	}

	if cfg.DingTalk.WebhookURL != "" {
		if err := notifier.NewNotifier(cfg.DingTalk).SendFixReport(report); err != nil {
			zap.L().Warn("⚠️ 发送修复通知失败", zap.Error(err))
		}
	}

	if cfg.Database.Driver != "" {
		dbManager, err := database.NewManager(cfg.Database)
		if err != nil {
			zap.L().Warn("⚠️ 数据库不可用，修复历史未保存", zap.Error(err))
		} else {
			defer dbManager.Close()
			if _, err := dbManager.SaveFixReport(report); err != nil {
				zap.L().Warn("⚠️ 保存修复历史失败", zap.Error(err))
			}
		}
	}

	printFixReport(out, report)
	if !report.Success {
		return errors.New(report.Message)
	}
	return nil
}

func printFixReport(out io.Writer, report *types.FixReport) {
	if !report.Success {
		fmt.Fprintf(out, "❌ 修复失败: %s\n", report.Message)
		return
	}

	outcome := report.Outcome
	if outcome == nil {
		fmt.Fprintln(out, "✅ 修复完成")
		return
	}
	fmt.Fprintf(out, "✅ 修复完成: 成功 %d 个，失败 %d 个，耗时 %.2f 秒\n",
		outcome.SuccessCount, outcome.FailedCount, outcome.DurationSeconds)

	if len(outcome.Sectors) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "板块ID\t板块名称\t结果\t错误")
	for _, sector := range outcome.Sectors {
		result := "成功"
		if !sector.Success {
			result = "失败"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", sector.SectorID, sector.SectorName, result, sector.Error)
	}
	_ = w.Flush()
}

type listOptions struct {
	search string
	column string
	order  string
	cached bool
}

func newListCmd(cfg *types.Config) *cobra.Command {
	opts := listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "查看板块分类结果，支持搜索与排序",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.search, "search", "", "按板块名称搜索，忽略大小写")
	cmd.Flags().StringVar(&opts.column, "sort", string(resultset.ColumnLevel), "排序字段: level, name, change_percent")
	cmd.Flags().StringVar(&opts.order, "order", string(resultset.OrderDesc), "排序方向: asc, desc")
	cmd.Flags().BoolVar(&opts.cached, "cached", false, "读取最近一次快照而不是请求后端")

	return cmd
}

func runList(ctx context.Context, out io.Writer, cfg *types.Config, opts listOptions) error {
	column, err := resultset.ParseColumn(opts.column)
	if err != nil {
		return err
	}
	order, err := resultset.ParseOrder(opts.order)
	if err != nil {
		return err
	}

	var records []types.ClassificationRecord
	if opts.cached {
		store := storage.NewSnapshotStore(cfg.Redis)
		defer store.Close()

		date, cached, err := store.LoadLatestSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("读取分类快照失败: %w", err)
		}
		zap.L().Info("📦 使用分类快照", zap.String("date", date), zap.Int("records", len(cached)))
		records = cached
	} else {
		client := fetcher.NewAPIClient(cfg.API, cfg.Breaker, cfg.Network)
		fetched, err := client.ListAllClassifications(ctx)
		if err != nil {
			return fmt.Errorf("获取分类数据失败: %w", err)
		}
		records = fetched
	}

	processor := resultset.NewProcessorForLocale(cfg.Classification.Locale)
	view := processor.Apply(records, resultset.Query{Search: opts.search, Column: column, Order: order})

	printRecords(out, view, nil)
	printDistribution(out, resultset.LevelDistribution(view))
	return nil
}

func newAnalyzeCmd(cfg *types.Config) *cobra.Command {
	var column, order string

	cmd := &cobra.Command{
		Use:   "analyze <csv>",
		Short: "根据本地日线收盘价CSV计算分类与均线交叉",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.OutOrStdout(), cfg, args[0], column, order)
		},
	}

	cmd.Flags().StringVar(&column, "sort", string(resultset.ColumnLevel), "排序字段: level, name, change_percent")
	cmd.Flags().StringVar(&order, "order", string(resultset.OrderDesc), "排序方向: asc, desc")

	return cmd
}

func runAnalyze(out io.Writer, cfg *types.Config, path, columnFlag, orderFlag string) error {
	column, err := resultset.ParseColumn(columnFlag)
	if err != nil {
		return err
	}
	order, err := resultset.ParseOrder(orderFlag)
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	ladder := indicators.DefaultLadder()
	series, err := analyzer.LoadSeriesCSV(file, ladder)
	if err != nil {
		return err
	}

	analyses := analyzer.NewAnalysisEngine(ladder).ClassifyAll(series)
	crosses := make(map[string]types.CrossEvent, len(analyses))
	for _, analysis := range analyses {
		if latest, ok := signals.Latest(analysis.Crosses); ok {
			crosses[analysis.Record.SectorID] = latest
		}
	}

	processor := resultset.NewProcessorForLocale(cfg.Classification.Locale)
	view := processor.Apply(analyzer.Records(analyses), resultset.Query{Column: column, Order: order})

	printRecords(out, view, crosses)
	printDistribution(out, resultset.LevelDistribution(view))
	return nil
}

func newShowCmd(cfg *types.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "show <sectorId>",
		Short: "查看单个板块的最新分类",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := fetcher.NewAPIClient(cfg.API, cfg.Breaker, cfg.Network)
			record, err := client.GetClassification(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("获取板块分类失败: %w", err)
			}
			printRecords(cmd.OutOrStdout(), []types.ClassificationRecord{*record}, nil)
			return nil
		},
	}
}

func newHistoryCmd(cfg *types.Config) *cobra.Command {
	var (
		limit int
		date  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "查看最近的修复记录",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.Database.Driver == "" {
				return errors.New("未配置数据库，没有修复历史")
			}

			dbManager, err := database.NewManager(cfg.Database)
			if err != nil {
				return err
			}
			defer dbManager.Close()

			if date != "" {
				distribution, err := dbManager.GetLevelDistribution(date)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s", date)
				printDistribution(cmd.OutOrStdout(), distribution)
				return nil
			}

			sessions, err := dbManager.GetFixSessions(limit)
			if err != nil {
				return err
			}
			printSessions(cmd.OutOrStdout(), sessions)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "显示条数")
	cmd.Flags().StringVar(&date, "date", "", "查看某个交易日保存的级别分布，格式 YYYY-MM-DD")

	return cmd
}

func printRecords(out io.Writer, records []types.ClassificationRecord, crosses map[string]types.CrossEvent) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if crosses == nil {
		fmt.Fprintln(w, "板块ID\t板块名称\t日期\t级别\t状态\t现价\t涨跌幅")
	} else {
		fmt.Fprintln(w, "板块ID\t板块名称\t日期\t级别\t状态\t现价\t涨跌幅\t最近交叉")
	}

	for _, record := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s",
			record.SectorID, record.SectorName, record.Date, record.Level,
			stateLabel(record.State), formatNumber(record.CurrentPrice, "%.2f"), formatNumber(record.ChangePercent, "%+.2f%%"))
		if crosses != nil {
			fmt.Fprintf(w, "\t%s", crossLabel(crosses, record.SectorID))
		}
		fmt.Fprintln(w)
	}
	_ = w.Flush()
}

func printDistribution(out io.Writer, distribution [10]int) {
	fmt.Fprint(out, "\n级别分布:")
	for level := indicators.DefaultLadder().MaxLevel(); level >= 1; level-- {
		fmt.Fprintf(out, " %d级:%d", level, distribution[level])
	}
	fmt.Fprintln(out)
}

func printSessions(out io.Writer, sessions []database.FixSession) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\t会话\t目标\t天数\t结果\t成功\t失败\t开始时间\t信息")
	for _, session := range sessions {
		target := session.SectorName
		if session.SectorID != "" {
			target = session.SectorID
		}
		result := "成功"
		if !session.Success {
			result = "失败"
		}
		shortID := session.SessionID
		if len(shortID) > 8 {
			shortID = shortID[:8]
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%d\t%d\t%s\t%s\n",
			session.ID, shortID, target, session.Days, result,
			session.SuccessCount, session.FailedCount,
			session.StartedAt.Format("2006-01-02 15:04:05"), session.Message)
	}
	_ = w.Flush()
}

func stateLabel(state types.SectorState) string {
	switch state {
	case types.StateBounce:
		return "反弹"
	case types.StateAdjustment:
		return "调整"
	default:
		return string(state)
	}
}

func crossLabel(crosses map[string]types.CrossEvent, sectorID string) string {
	event, ok := crosses[sectorID]
	if !ok {
		return "-"
	}
	name := "金叉"
	if event.Type == types.CrossDeath {
		name = "死叉"
	}
	return name + " " + event.Date.Format("2006-01-02")
}

func formatNumber(v *float64, format string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf(format, *v)
}
