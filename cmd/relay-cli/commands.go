package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"reelrelay/internal/config"
	"reelrelay/internal/ledger"
	"reelrelay/internal/logging"
	"reelrelay/internal/service"
	"reelrelay/internal/textfmt"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every configured niche once",
	Long: `Process every configured niche once, in configured order.

Examples:
  relay-cli run
  relay-cli run --niche cats --niche dogs --no-delay
  relay-cli run --config /etc/relay.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		only, _ := cmd.Flags().GetStringSlice("niche")
		noDelay, _ := cmd.Flags().GetBool("no-delay")

		niches, err := cfg.ResolvedNiches(only...)
		if err != nil {
			return err
		}

		logger, logCloser, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
		if err != nil {
			return err
		}
		defer logCloser.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		feed, err := buildFeed(cfg, logger)
		if err != nil {
			return fmt.Errorf("initializing source feed: %w", err)
		}
		store, err := buildStore(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("initializing storage: %w", err)
		}
		opener, ledgerCloser, err := buildProcessedOpener(cfg)
		if err != nil {
			return err
		}
		defer ledgerCloser.Close()

		policy := service.RetryPolicy{Attempts: cfg.Retry.Attempts, Backoff: cfg.Retry.Backoff}
		runner := service.NewRunner(feed, store, opener, policy, logger)
		scheduler := service.NewScheduler(runner, cfg.NicheDelay, logger)

		reports, runErr := scheduler.RunAll(ctx, niches, !noDelay)
		printReports(cmd.OutOrStdout(), reports)
		return runErr
	},
}

func printReports(w io.Writer, reports []service.RunReport) {
	if len(reports) == 0 {
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return lipgloss.NewStyle().Padding(0, 1)
		}).
		Headers("Niche", "Run", "Candidates", "Committed", "Failed", "Skipped")
	for _, r := range reports {
		t.Row(r.Niche, shortID(r.RunID),
			strconv.Itoa(r.Candidates),
			strconv.Itoa(r.Committed),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Skipped))
	}
	fmt.Fprintln(w, t)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- niches ---

var nichesCmd = &cobra.Command{
	Use:   "niches",
	Short: "List configured niches with their resolved paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		niches, err := cfg.ResolvedNiches()
		if err != nil {
			return err
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers("Niche", "Input", "Output", "Processed", "Failures", "Folder")
		for _, n := range niches {
			t.Row(n.Name, n.InputPath, n.OutputPath, n.ProcessedPath, n.FailurePath, n.StorageFolder)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	},
}

// --- failures ---

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List posts that exhausted their retries",
	Long: `List the failure ledger of every configured niche.

Examples:
  relay-cli failures
  relay-cli failures --niche cats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		only, _ := cmd.Flags().GetStringSlice("niche")
		niches, err := cfg.ResolvedNiches(only...)
		if err != nil {
			return err
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers("Niche", "Owner", "Post", "Last error")
		total := 0
		for _, n := range niches {
			recs, err := ledger.ReadFailures(n.FailurePath)
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return fmt.Errorf("reading failures of %s: %w", n.Name, err)
			}
			for _, r := range recs {
				t.Row(n.Name, r.Owner, r.PostID, r.LastError)
			}
			total += len(recs)
		}
		if total == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no failed posts")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	},
}

// --- format ---

var formatCmd = &cobra.Command{
	Use:   "format <caption>",
	Short: "Preview the publishing title and description for a caption",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pub := textfmt.Format(args[0])
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Title:       %s\n", pub.Title)
		fmt.Fprintf(out, "Description: %s\n", pub.Description)
		fmt.Fprintf(out, "Video title: %s\n", textfmt.PlainTitle("", args[0]))
		return nil
	},
}

func init() {
	runCmd.Flags().StringSlice("niche", nil, "only run these niches (repeatable)")
	runCmd.Flags().Bool("no-delay", false, "skip the pause between niches")
	failuresCmd.Flags().StringSlice("niche", nil, "only list these niches (repeatable)")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}
