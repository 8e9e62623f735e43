package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"wikiweird/internal/config"
	"wikiweird/internal/pipeline"
	"wikiweird/internal/report"
)

type runFlags struct {
	concurrency int
	output      string
	historyDir  string
	sourceFile  string
	cachePath   string
	limit       int
	quiet       bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch the listing, resolve and enrich entries, and publish a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.loadConfig()
			if err != nil {
				return err
			}

			flags.apply(cmd, cfg)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runPipeline(runCtx, cmd, cfg, ctx, flags.quiet)
		},
	}

	cmd.Flags().IntVar(&flags.concurrency, "concurrency", 0, "Override enrichment.concurrency")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "Override output.path; a default history_dir moves next to it")
	cmd.Flags().StringVar(&flags.historyDir, "history-dir", "", "Override output.history_dir")
	cmd.Flags().StringVar(&flags.sourceFile, "source-file", "", "Read the listing from a local file")
	cmd.Flags().StringVar(&flags.cachePath, "cache", "", "Use a SQLite enrichment cache at this path")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Override source.max_entries_per_section")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "Do not print the run summary")

	return cmd
}

// apply overrides cfg with the flags the user actually set.
func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("concurrency") {
		cfg.Enrichment.Concurrency = f.concurrency
	}

	if changed("output") {
		cfg.Output.SetPath(f.output)
	}

	if changed("history-dir") {
		cfg.Output.HistoryDir = f.historyDir
	}

	if changed("source-file") {
		cfg.Source.File = f.sourceFile
	}

	if changed("cache") {
		cfg.Enrichment.CacheBackend = config.CacheSQLite
		cfg.Enrichment.CachePath = f.cachePath
	}

	if changed("limit") {
		cfg.Source.MaxEntriesPerSection = f.limit
	}
}

func runPipeline(ctx context.Context, cmd *cobra.Command, cfg *config.Config, cc *commandContext, quiet bool) error {
	log := cc.newLogger(cfg)

	p, err := pipeline.New(cfg, pipeline.WithLogger(log))
	if err != nil {
		return err
	}

	defer func() {
		if cerr := p.Close(); cerr != nil {
			log.Warn("close pipeline", "error", cerr)
		}
	}()

	summary, err := p.Run(ctx)
	if err != nil {
		return err
	}

	if !quiet {
		fmt.Fprint(cmd.OutOrStdout(), report.New(0).Summary(summary))
	}

	return nil
}
