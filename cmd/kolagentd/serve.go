package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"KOL-Agent/internal/api"
	"KOL-Agent/internal/auth"
	"KOL-Agent/internal/mcpserver"
	"KOL-Agent/pkg/logger"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动 REST 与 streamable HTTP MCP 服务，并运行任务处理器",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := initLogger(cfg, false); err != nil {
		return err
	}
	defer logger.Sync()

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	tasks, err := buildTasks(ctx, rt)
	if err != nil {
		return err
	}

	authService, err := auth.NewService(auth.Config{
		Mode:     auth.Mode(cfg.Auth.Mode),
		Secret:   cfg.Auth.Secret,
		Issuer:   cfg.Auth.Issuer,
		TokenTTL: cfg.Auth.TokenTTL,
	})
	if err != nil {
		return err
	}

	mcp := mcpserver.New(rt.agent, mcpserver.WithWalletConfigured(cfg.Solana.PrivateKey != ""))
	server := api.NewServer(cfg.Server.Address, rt.agent,
		api.WithTaskService(tasks.service),
		api.WithAuth(authService),
		api.WithMCPHandler(cfg.Server.MCPPath, mcp.HTTPHandler()),
		api.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := tasks.processor.Start(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("任务处理器异常退出", slog.Any("error", err))
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := server.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	err = g.Wait()
	logger.L().Info("kolagentd 已停止")
	return err
}
