package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"sector-strength-sentry/pkg/config"
	"sector-strength-sentry/pkg/logger"
	"sector-strength-sentry/pkg/types"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd 创建根命令，不带子命令时以服务方式运行
func newRootCmd() *cobra.Command {
	cfg := &types.Config{}

	rootCmd := &cobra.Command{
		Use:           "sector-sentry",
		Short:         "板块强弱分类监控与数据修复工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// 加载配置
			loaded, err := config.Load()
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			*cfg = *loaded

			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Log.Level = "debug"
			}

			// 初始化日志
			if _, err := logger.New(cfg.Log); err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = zap.L().Sync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}

	rootCmd.AddCommand(newServeCmd(cfg))
	rootCmd.AddCommand(newFixCmd(cfg))
	rootCmd.AddCommand(newListCmd(cfg))
	rootCmd.AddCommand(newShowCmd(cfg))
	rootCmd.AddCommand(newAnalyzeCmd(cfg))
	rootCmd.AddCommand(newHistoryCmd(cfg))

	rootCmd.PersistentFlags().Bool("debug", false, "输出调试日志")

	return rootCmd
}

func newServeCmd(cfg *types.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动监控轮询、定时快照与指标服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfg)
		},
	}
}

func runServe(cfg *types.Config) error {
	app, err := NewApp(cfg)
	if err != nil {
		return err
	}

	if err := app.Start(); err != nil {
		app.Stop()
		return err
	}

	app.WaitForShutdown()
	app.Stop()
	return nil
}
