package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/event"
	"github.com/wanops/outagewatch/internal/feed"
	"github.com/wanops/outagewatch/internal/ingest"
	"github.com/wanops/outagewatch/internal/region"
	"github.com/wanops/outagewatch/internal/report"
)

type ingestFlags struct {
	outagesFile   string
	discoveryFile string
	mode          string
	retainDays    int
	force         bool
	notify        bool
	reportDir     string
	backup        bool
}

func newIngestCmd(a *app) *cobra.Command {
	var f ingestFlags
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load an outage export (and optionally a discovery snapshot) into the database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd, a, f)
		},
	}
	cmd.Flags().StringVar(&f.outagesFile, "outages-file", "", "outage feed CSV (required)")
	cmd.Flags().StringVar(&f.discoveryFile, "discovery-file", "", "device discovery CSV; omit for outages-only mode")
	cmd.Flags().StringVar(&f.mode, "mode", "", "append or rebuild (default ingest.mode)")
	cmd.Flags().IntVar(&f.retainDays, "retain-days", 0, "append-mode retention window in days (default ingest.retain_days)")
	cmd.Flags().BoolVar(&f.force, "force", false, "ingest even if the same input was already ingested")
	cmd.Flags().BoolVar(&f.notify, "notify", false, "send start, completion and failure notifications")
	cmd.Flags().StringVar(&f.reportDir, "report-dir", "", "processing report directory (default ingest.report_dir)")
	cmd.Flags().BoolVar(&f.backup, "backup", false, "snapshot the existing database before a rebuild")
	_ = cmd.MarkFlagRequired("outages-file")
	return cmd
}

func runIngest(cmd *cobra.Command, a *app, f ingestFlags) error {
	ctx := cmd.Context()
	if err := a.setup(); err != nil {
		return err
	}
	a.notifications(f.notify)

	mode := f.mode
	if mode == "" {
		mode = a.cfg.Ingest.Mode
	}
	m, err := ingest.ParseMode(mode)
	if err != nil {
		return err
	}
	opts := ingest.Options{
		Mode:          m,
		RetainDays:    a.cfg.Ingest.RetainDays,
		Force:         f.force || a.cfg.Ingest.AllowDuplicateInput,
		OutagesFile:   f.outagesFile,
		DiscoveryFile: f.discoveryFile,
	}
	if f.retainDays > 0 {
		opts.RetainDays = f.retainDays
	}

	in, err := readInput(f)
	if err != nil {
		// Nothing was written; still tell the operator the run did not happen.
		a.bus.Publish(ctx, event.Event{
			Topic:     event.TopicIngestFailed,
			Source:    "ingest",
			Timestamp: a.clock.Now().UTC(),
			Payload:   ingest.FailedRun{Result: &ingest.Result{Mode: m, OutagesFile: f.outagesFile}, Err: err},
		})
		return err
	}
	if f.backup && m == ingest.ModeRebuild {
		if _, err := os.Stat(a.cfg.Database.Path); err == nil {
			path, err := a.snapshot(cmd, "")
			if err != nil {
				return fmt.Errorf("pre-rebuild backup: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup written: %s\n", path)
		}
	}
	if err := a.open(ctx); err != nil {
		return err
	}

	eng := ingest.NewEngine(a.store,
		ingest.WithClock(a.clock),
		ingest.WithResolver(region.Default()),
		ingest.WithBus(a.bus),
		ingest.WithLogger(a.logger.Named("ingest")),
	)
	res, runErr := eng.Run(ctx, in, opts)
	if res == nil {
		return runErr
	}

	rep := report.Build(res, runErr, a.cfg.Database.Path, a.clock.Now())
	dir := f.reportDir
	if dir == "" {
		dir = a.cfg.Ingest.ReportDir
	}
	path, err := report.Write(dir, rep)
	if err != nil {
		a.logger.Error("write processing report", zap.Error(err))
	} else {
		a.logger.Info("processing report written", zap.String("path", path))
	}

	out := cmd.OutOrStdout()
	if runErr == nil {
		fmt.Fprintf(out, "Ingest %s complete: %s\n", res.Mode, res.RunID)
	} else {
		fmt.Fprintf(out, "Ingest %s stopped after partial progress: %s\n", res.Mode, res.RunID)
	}
	report.Summary(out, rep)
	if path != "" {
		fmt.Fprintf(out, "Report: %s\n", path)
	}
	return runErr
}

func readInput(f ingestFlags) (ingest.Input, error) {
	var in ingest.Input
	outs, err := feed.ReadOutagesFile(f.outagesFile)
	if err != nil {
		return in, err
	}
	in.Outages = outs
	if f.discoveryFile != "" {
		disc, err := feed.ReadDiscoveryFile(f.discoveryFile)
		if err != nil {
			return in, err
		}
		in.Discovery = disc
	}
	return in, nil
}
