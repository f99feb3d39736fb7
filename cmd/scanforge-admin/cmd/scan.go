package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scanforge/api/internal/config"
	"github.com/scanforge/api/internal/infra/jobs"
	"github.com/scanforge/api/internal/infra/postgres"
	"github.com/scanforge/api/pkg/domain/scan"
	"github.com/scanforge/api/pkg/domain/shared"
	"github.com/scanforge/api/pkg/logger"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Inspect and manage scans",
}

var scanShowCmd = &cobra.Command{
	Use:   "show <scan-id>",
	Short: "Show a scan and its finding counts",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanShow,
}

var scanRequeueCmd = &cobra.Command{
	Use:   "requeue <scan-id>",
	Short: "Re-enqueue a scan that never reached a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE:  runScanRequeue,
}

func init() {
	scanCmd.AddCommand(scanShowCmd)
	scanCmd.AddCommand(scanRequeueCmd)
}

func runScanShow(cmd *cobra.Command, args []string) error {
	id, err := shared.IDFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid scan id: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	sc, err := postgres.NewScanRepository(db).GetByID(ctx, id)
	if err != nil {
		return err
	}

	if flagOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sc)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", sc.ID)
	fmt.Fprintf(w, "Project:\t%s\n", sc.ProjectID)
	fmt.Fprintf(w, "Status:\t%s\n", sc.Status)
	fmt.Fprintf(w, "Tier:\t%s\n", sc.Tier)
	fmt.Fprintf(w, "Created:\t%s\n", sc.CreatedAt.Format(time.RFC3339))
	if sc.StartedAt != nil {
		fmt.Fprintf(w, "Started:\t%s\n", sc.StartedAt.Format(time.RFC3339))
	}
	if sc.FinishedAt != nil {
		fmt.Fprintf(w, "Finished:\t%s\n", sc.FinishedAt.Format(time.RFC3339))
	}
	if sc.Status == scan.StatusCompleted {
		fmt.Fprintf(w, "Findings:\t%d (critical=%d high=%d medium=%d low=%d)\n",
			sc.TotalCount, sc.CriticalCount, sc.HighCount, sc.MediumCount, sc.LowCount)
		fmt.Fprintf(w, "Risk:\t%d (%s)\n", sc.RiskScore, sc.Grade)
	}
	if sc.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:\t%s\n", sc.ErrorMessage)
	}
	if sc.Degraded {
		fmt.Fprintf(w, "Degraded:\ttrue\n")
	}
	return w.Flush()
}

func runScanRequeue(cmd *cobra.Command, args []string) error {
	id, err := shared.IDFromString(args[0])
	if err != nil {
		return fmt.Errorf("invalid scan id: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	sc, err := postgres.NewScanRepository(db).GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sc.Status.IsTerminal() {
		return fmt.Errorf("scan %s is already %s", sc.ID, sc.Status)
	}

	log := logger.NewNop()
	if flagVerbose {
		log = logger.NewDefault()
	}

	client := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	defer client.Close()

	if err := client.EnqueueScanRun(ctx, sc.ID); err != nil {
		return fmt.Errorf("enqueue scan: %w", err)
	}

	fmt.Printf("scan %s re-enqueued\n", sc.ID)
	return nil
}
