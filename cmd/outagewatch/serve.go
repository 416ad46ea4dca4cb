package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanops/outagewatch/internal/api"
	"github.com/wanops/outagewatch/internal/classify"
	"github.com/wanops/outagewatch/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only JSON API, health probes and metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			h := api.NewHandler(a.store, a.clock, a.logger.Named("api"), api.Options{
				Report:   classify.Threshold{Fraction: a.cfg.Classify.ReportThreshold},
				CacheTTL: a.cfg.Server.CacheTTL,
			})
			ready := func(ctx context.Context) error {
				return a.db.DB().PingContext(ctx)
			}
			srv := server.New(a.cfg.Server.Addr(), a.logger.Named("server"), ready, h)
			err := srv.Run(ctx, 10*time.Second)
			if err != nil {
				return err
			}
			return ctx.Err()
		},
	}
}
