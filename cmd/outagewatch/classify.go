package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/wanops/outagewatch/internal/classify"
)

func newClassifyCmd(a *app) *cobra.Command {
	var (
		lookback time.Duration
		alert    bool
	)
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "List hours in which most of a property's networks were down.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			if lookback <= 0 {
				lookback = a.cfg.Classify.Lookback
			}
			a.notifications(alert)

			c := classify.New(a.store, a.clock, a.bus, a.logger.Named("classify"))
			report := classify.Threshold{Fraction: a.cfg.Classify.ReportThreshold}
			alerts, err := c.Recent(ctx, lookback, report)
			if err != nil {
				return err
			}
			printAlerts(cmd.OutOrStdout(), alerts, report)

			if alert {
				t := classify.Threshold{Fraction: a.cfg.Classify.AlertThreshold, Inclusive: true}
				if _, err := c.Notify(ctx, lookback, t); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&lookback, "lookback", 0, "classify hours this recent (default classify.lookback)")
	cmd.Flags().BoolVar(&alert, "alert", false, "notify on the latest breaching hour of each property")
	return cmd
}
