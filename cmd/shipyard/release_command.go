package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shipyard/internal/deps"
	"shipyard/internal/handoff"
	"shipyard/internal/notifications"
	"shipyard/internal/release"
	"shipyard/internal/services/github"
)

func newReleaseCommand(ctx *commandContext) *cobra.Command {
	var skipSigning bool

	cmd := &cobra.Command{
		Use:   "release <tag>",
		Short: "Build, sign, and publish a release for a tag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.GitHub.Owner) == "" || strings.TrimSpace(cfg.GitHub.Repo) == "" {
				return fmt.Errorf("github.owner and github.repo must be configured")
			}
			if strings.TrimSpace(cfg.GitHub.Token) == "" {
				return fmt.Errorf("github token not configured (set github.token or GITHUB_TOKEN)")
			}
			missing := deps.MissingRequired(deps.CheckBinaries(deps.ForBuilder(cfg)))
			if len(missing) > 0 {
				return fmt.Errorf("missing required dependency: %s (%s)", missing[0].Name, missing[0].Detail)
			}

			logger, err := ctx.newLogger()
			if err != nil {
				return err
			}

			var signer release.Signer
			if !skipSigning {
				shared := strings.TrimSpace(cfg.Signing.SharedDir)
				if shared == "" {
					return fmt.Errorf("signing.shared_dir not configured (use --skip-signing to publish unsigned)")
				}
				if err := handoff.EnsureDirs(shared); err != nil {
					return err
				}
				signer = handoff.NewClient(shared, pollInterval(cfg), logger)
			}

			notifier := notifications.NewService(cfg)
			pipeline, err := release.New(cfg, github.NewClient(cfg), signer, notifier, logger)
			if err != nil {
				return err
			}

			result, err := pipeline.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Release %s published (commit %s)\n", result.Tag, result.Commit)
			for _, name := range result.Assets {
				fmt.Fprintf(out, "  uploaded %s\n", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipSigning, "skip-signing", false, "Publish artifacts without the signing handoff")
	return cmd
}
