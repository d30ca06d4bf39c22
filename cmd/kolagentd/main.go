// Command kolagentd runs the KOL agent: the REST and streamable MCP server
// (serve), the MCP stdio transport (stdio), or operator token issuance (token).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"KOL-Agent/internal/config"
)

var rootFlags struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kolagentd",
		Short:         "KOL crypto agent MCP server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnvFile(rootFlags.envFile)
		},
	}
	root.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", os.Getenv("KOL_CONFIG"), "YAML 配置文件路径")
	root.PersistentFlags().StringVar(&rootFlags.envFile, "env-file", ".env", "启动时加载的 .env 文件")
	root.AddCommand(newServeCmd(), newStdioCmd(), newTokenCmd())
	return root
}

// loadEnvFile 加载 .env，文件不存在时忽略；已存在的环境变量不会被覆盖。
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("加载 %s 失败: %w", path, err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	return config.Load(rootFlags.configPath)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "kolagentd 运行失败: %v\n", err)
		stop()
		os.Exit(1)
	}
}
