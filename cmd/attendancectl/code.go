package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"attendguard/internal/config"
	"attendguard/internal/factor"
)

func newCodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "code",
		Short: "Print the current presence code",
		Long: `Print the one-time code people type after their PIN. The code changes
every CODE_STEP and is derived from CODE_SECRET (or CODE_SECRET_SSM_PARAM).`,
		Args: cobra.NoArgs,
		RunE: runCode,
	}
}

func runCode(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.ResolveSecrets(cmd.Context(), nil); err != nil {
		return err
	}
	v, err := factor.NewCodeVerifier(cfg.Policy.CodeSecret, cfg.Policy.CodeStep, nil)
	if err != nil {
		return err
	}
	now := time.Now()
	code, err := v.CurrentCode(now)
	if err != nil {
		return err
	}
	step := cfg.Policy.CodeStep
	if step <= 0 {
		step = factor.DefaultStep
	}
	remaining := step - time.Duration(now.UnixNano()%int64(step))
	fmt.Fprintf(cmd.OutOrStdout(), "%s (valid for %s)\n", code, remaining.Round(time.Second))
	return nil
}
