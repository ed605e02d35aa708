package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"shipyard/internal/jobs"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect signing job history",
		Long: "Reads the signing-job database maintained by signerd. Run it on " +
			"the signing host, or point --config at a config whose log " +
			"directory holds the database.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobs.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job database: %w", err)
			}
			defer store.Close()

			var filters []jobs.Status
			if trimmed := strings.TrimSpace(statusFilter); trimmed != "" {
				status, ok := jobs.ParseStatus(trimmed)
				if !ok {
					return fmt.Errorf("unknown status %q (expected one of pending, signing, signed, failed)", trimmed)
				}
				filters = append(filters, status)
			}

			list, err := store.List(cmd.Context(), filters...)
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No signing jobs recorded")
				return nil
			}

			colorize := shouldColorize(out)
			rows := make([][]string, 0, len(list))
			for _, job := range list {
				rows = append(rows, []string{
					strconv.FormatInt(job.ID, 10),
					job.FileName,
					renderStatus(job.Status, colorize),
					job.CreatedAt.Local().Format(time.DateTime),
					renderCompleted(job.CompletedAt),
					job.ErrorMessage,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]tableColumn{
					{Title: "ID", Numeric: true},
					{Title: "FILE"},
					{Title: "STATUS"},
					{Title: "CREATED"},
					{Title: "COMPLETED"},
					{Title: "ERROR"},
				},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show jobs with this status")
	cmd.AddCommand(newJobsStatsCommand(ctx))
	cmd.AddCommand(newJobsClearCommand(ctx))
	return cmd
}

func newJobsStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show signing job counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobs.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job database: %w", err)
			}
			defer store.Close()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("job stats: %w", err)
			}

			rows := make([][]string, 0, len(stats))
			total := 0
			for _, status := range jobs.AllStatuses() {
				count := stats[status]
				total += count
				rows = append(rows, []string{string(status), strconv.Itoa(count)})
			}
			rows = append(rows, []string{"total", strconv.Itoa(total)})
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]tableColumn{{Title: "STATUS"}, {Title: "COUNT", Numeric: true}},
				rows,
			))
			return nil
		},
	}
}

func newJobsClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded signing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobs.Open(cfg)
			if err != nil {
				return fmt.Errorf("open job database: %w", err)
			}
			defer store.Close()

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return fmt.Errorf("clear jobs: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d jobs\n", removed)
			return nil
		},
	}
}

func renderStatus(status jobs.Status, colorize bool) string {
	if !colorize {
		return string(status)
	}
	switch status {
	case jobs.StatusSigned:
		return text.FgGreen.Sprint(string(status))
	case jobs.StatusFailed:
		return text.FgRed.Sprint(string(status))
	case jobs.StatusSigning:
		return text.FgYellow.Sprint(string(status))
	default:
		return string(status)
	}
}

func renderCompleted(completed *time.Time) string {
	if completed == nil {
		return ""
	}
	return completed.Local().Format(time.DateTime)
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
