package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shipyard/internal/config"
	"shipyard/internal/handoff"
)

func pollInterval(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Signing.PollInterval) * time.Second
}

func newSignCommand(ctx *commandContext) *cobra.Command {
	var timeoutSeconds int

	cmd := &cobra.Command{
		Use:   "sign <file>",
		Short: "Sign one file through the shared signing directory",
		Long: "Places the file into the shared input directory, waits for the " +
			"signing host to produce a signed copy, and moves the result back " +
			"over the original.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			shared := strings.TrimSpace(cfg.Signing.SharedDir)
			if shared == "" {
				return fmt.Errorf("signing.shared_dir not configured")
			}
			if err := handoff.EnsureDirs(shared); err != nil {
				return err
			}

			path, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}

			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}

			timeout := time.Duration(timeoutSeconds) * time.Second
			if timeoutSeconds <= 0 {
				timeout = time.Duration(cfg.Signing.SignTimeout) * time.Second
			}
			runCtx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(runCtx, timeout)
				defer cancel()
			}

			client := handoff.NewClient(shared, pollInterval(cfg), logger)
			signed, err := client.Submit(runCtx, path)
			if err != nil {
				return fmt.Errorf("sign %s: %w", filepath.Base(path), err)
			}
			if err := client.Retrieve(signed, path); err != nil {
				return fmt.Errorf("retrieve signed %s: %w", filepath.Base(path), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Signed %s\n", path)
			return nil
		},
	}

	cmd.Flags().IntVar(&timeoutSeconds, "timeout", 0, "Wait limit in seconds (defaults to signing.sign_timeout)")
	return cmd
}
