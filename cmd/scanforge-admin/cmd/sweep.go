package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/internal/infra/cleanup"
	"github.com/scanforge/api/pkg/logger"
)

var flagSweepMaxAge time.Duration

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove orphaned scan work directories",
	Long: `Removes scan work directories under the scanner temp root that are
older than the cleanup age. The server runs this on a schedule; the
command exists for manual runs after a crash or before maintenance.`,
	RunE: runSweep,
}

func init() {
	sweepCmd.Flags().DurationVar(&flagSweepMaxAge, "older-than", 0,
		"Only remove directories older than this (default: CLEANUP_MAX_TEMP_AGE)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if flagSweepMaxAge > 0 {
		cfg.Cleanup.MaxTempAge = flagSweepMaxAge
	}

	log := logger.NewNop()
	if flagVerbose {
		log = logger.NewDefault()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	sweeper := cleanup.NewSweeper(&cfg.Cleanup, cfg.Scanner.TempRoot, log)
	removed, err := sweeper.RunOnce(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("removed %d orphaned work directories under %s\n", removed, cfg.Scanner.TempRoot)
	return nil
}
