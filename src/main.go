package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"NoShowInsight/src/config"
	"NoShowInsight/src/processor"
	"NoShowInsight/src/storage"

	"github.com/spf13/cobra"
)

const (
	configFile     = "config.json"
	dataConfigFile = "dataconfig.json"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app 各子命令共用的配置和日志
type app struct {
	cfg    *config.Config
	schema processor.Schema
	policy processor.WaitingPolicy
	logger *storage.Logger
}

func newRootCmd() *cobra.Command {
	var configDir, policy string

	rootCmd := &cobra.Command{
		Use:          "noshow",
		Short:        "Hospital appointment no-show analysis",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "./config", "directory holding config.json and dataconfig.json")
	rootCmd.PersistentFlags().StringVar(&policy, "policy", "", "negative waiting days policy: drop | clamp (overrides config)")

	setup := func() (*app, error) {
		return newApp(configDir, policy)
	}

	rootCmd.AddCommand(reportCmd(setup))
	rootCmd.AddCommand(serveCmd(setup))
	rootCmd.AddCommand(watchCmd(setup))
	rootCmd.AddCommand(fetchCmd(setup))
	return rootCmd
}

func reportCmd(setup func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "report [path]",
		Short: "Analyse a CSV/XLSX export and write charts, workbook and summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.logger.Close()

			path := a.cfg.DataFile
			if len(args) == 1 {
				path = args[0]
			}
			res, err := a.generateReport(path, cmd.OutOrStdout())
			if err != nil {
				a.logger.Error(fmt.Sprintf("生成报告失败: %v", err))
				return err
			}
			return a.mailReport(res)
		},
	}
}

func serveCmd(setup func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the local dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.logger.Close()
			return a.runServer(a.signalContext())
		},
	}
}

func watchCmd(setup func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Regenerate the report whenever a data file changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.logger.Close()
			return a.runWatch(a.signalContext(), cmd.OutOrStdout())
		},
	}
}

func fetchCmd(setup func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Download the latest appointment export from the mailbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.logger.Close()

			saved, err := a.fetchOnce()
			if err != nil {
				return err
			}
			if len(saved) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No new appointment export found.")
			}
			for _, p := range saved {
				fmt.Fprintln(cmd.OutOrStdout(), "Saved:", p)
			}
			return nil
		},
	}
}

// newApp 加载配置并初始化日志系统
func newApp(configDir, policyOverride string) (*app, error) {
	cfg, dcfg, err := config.LoadConfig(configDir, configFile, dataConfigFile)
	if err != nil {
		return nil, fmt.Errorf("加载配置失败: %w", err)
	}
	if policyOverride != "" {
		cfg.WaitingPolicy = policyOverride
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}

	logger, err := storage.NewLogger(cfg.LogName)
	if err != nil {
		return nil, fmt.Errorf("初始化日志失败: %w", err)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		logger.Warning(fmt.Sprintf("未知日志级别 %q，使用debug", cfg.LogLevel))
	}

	return &app{cfg: cfg, schema: dcfg.Schema(), policy: policy, logger: logger}, nil
}

// signalContext SIGINT/SIGTERM取消ctx，SIGHUP重新打开日志，并定期检查日志轮转
func (a *app) signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		rotate := time.NewTicker(time.Minute)
		defer rotate.Stop()
		defer signal.Stop(sigChan)

		for {
			select {
			case sig := <-sigChan:
				if sig == syscall.SIGHUP {
					if err := a.logger.Reopen(a.cfg.LogName); err != nil {
						a.logger.Error("重新打开日志失败: " + err.Error())
					}
					continue
				}
				a.logger.Info("Received signal: " + sig.String() + ", shutting down...")
				cancel()
				return
			case <-rotate.C:
				if err := a.logger.CheckRotate(a.cfg); err != nil {
					a.logger.Error("日志轮转失败: " + err.Error())
				}
			}
		}
	}()
	return ctx
}
