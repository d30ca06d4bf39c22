package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"KOL-Agent/internal/mcpserver"
	"KOL-Agent/internal/observability/metrics"
	"KOL-Agent/pkg/logger"
)

func newStdioCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "通过标准输入输出提供 MCP 服务",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serveStdio(cmd.Context(), metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "可选的 Prometheus 指标监听地址")
	return cmd
}

func serveStdio(ctx context.Context, metricsAddr string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg, true); err != nil {
		return err
	}
	defer logger.Sync()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if metricsAddr != "" {
		go func() {
			if err := metrics.StartServer(ctx, metricsAddr); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Warn("指标服务退出", slog.Any("error", err))
			}
		}()
	}

	server := mcpserver.New(rt.agent, mcpserver.WithWalletConfigured(cfg.Solana.PrivateKey != ""))
	if err := server.ServeStdio(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
