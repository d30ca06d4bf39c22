package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"KOL-Agent/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		subject     string
		permissions []string
		ttl         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "为运维人员签发访问令牌",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			svc, err := auth.NewService(auth.Config{
				Mode:     auth.Mode(cfg.Auth.Mode),
				Secret:   cfg.Auth.Secret,
				Issuer:   cfg.Auth.Issuer,
				TokenTTL: cfg.Auth.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, err := svc.IssueToken(subject, permissions, ttl)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(token)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", os.Getenv("USER"), "令牌主体")
	cmd.Flags().StringSliceVar(&permissions, "permission", nil, "授予的权限，缺省为全部")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "有效期，缺省使用 auth.token_ttl")
	return cmd
}
