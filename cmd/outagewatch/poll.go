package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/config"
	"github.com/wanops/outagewatch/internal/ongoing"
)

// tracker builds the ongoing-outage tracker over the vendor API.
func (a *app) tracker() (*ongoing.Tracker, error) {
	fc := a.cfg.Feed
	if fc.BaseURL == "" {
		return nil, errors.New("feed.base_url is not configured (set OW_FEED_BASE_URL)")
	}
	client := ongoing.NewClient(fc.BaseURL, fc.Token,
		ongoing.WithRate(fc.Rate),
		ongoing.WithTimeout(fc.Timeout),
	)
	return ongoing.NewTracker(a.store, client,
		ongoing.WithClock(a.clock),
		ongoing.WithBus(a.bus),
		ongoing.WithLogger(a.logger.Named("ongoing")),
		ongoing.WithConcurrency(fc.Concurrency),
	), nil
}

type pollFlags struct {
	lookback time.Duration
	bulk     bool
	every    time.Duration
	notify   bool
}

func newPollCmd(a *app) *cobra.Command {
	var f pollFlags
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Ask the vendor API which networks are down right now and update tracking.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPoll(cmd, a, f)
		},
	}
	cmd.Flags().DurationVar(&f.lookback, "lookback", 0, "poll networks with an outage this recent (default feed.lookback)")
	cmd.Flags().BoolVar(&f.bulk, "bulk", false, "use the paged fleet-wide endpoint instead of per-network queries")
	cmd.Flags().DurationVar(&f.every, "every", 0, "keep polling on this interval until interrupted")
	cmd.Flags().BoolVar(&f.notify, "notify", false, "notify on detected and resolved outages")
	return cmd
}

func runPoll(cmd *cobra.Command, a *app, f pollFlags) error {
	ctx := cmd.Context()
	if err := a.open(ctx); err != nil {
		return err
	}
	a.notifications(f.notify)
	tr, err := a.tracker()
	if err != nil {
		return err
	}

	lookback := f.lookback
	if lookback <= 0 {
		lookback = a.cfg.Feed.Lookback
	}
	bulk := f.bulk || a.cfg.Feed.Mode == config.FeedModeBulk
	poll := func(ctx context.Context) (ongoing.Stats, error) {
		if bulk {
			return tr.PollBulk(ctx, lookback)
		}
		return tr.Poll(ctx, lookback)
	}

	if f.every <= 0 {
		st, err := poll(ctx)
		if err != nil {
			return err
		}
		printPollStats(cmd.OutOrStdout(), st)
		return nil
	}

	a.logger.Info("polling on schedule", zap.Duration("every", f.every), zap.Bool("bulk", bulk))
	s := ongoing.NewScheduler(poll, f.every, a.clock, a.logger.Named("scheduler"))
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return ctx.Err()
}

func printPollStats(w io.Writer, st ongoing.Stats) {
	t := newTable(w, "Metric", "Value")
	t.AppendBulk([][]string{
		{"Networks checked", fmt.Sprint(st.Checked)},
		{"Newly down", fmt.Sprint(st.Detected)},
		{"Still down", fmt.Sprint(st.StillOpen)},
		{"Resolved by feed", fmt.Sprint(st.Resolved)},
		{"No longer reported", fmt.Sprint(st.ClosedStale)},
		{"Unknown networks", fmt.Sprint(st.Ignored)},
		{"Errors", fmt.Sprint(st.Errors)},
	})
	t.Render()
	if !st.Complete {
		fmt.Fprintln(w, "Bulk poll incomplete: stale outages were not closed.")
	}
}

func newOngoingCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ongoing",
		Short: "Inspect tracked ongoing outages.",
	}
	var property int64
	list := &cobra.Command{
		Use:   "list",
		Short: "List currently open outages.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := a.open(ctx); err != nil {
				return err
			}
			open, err := a.store.ListOpen(ctx, property)
			if err != nil {
				return err
			}
			printOpen(cmd.OutOrStdout(), open, a.clock.Now())
			return nil
		},
	}
	list.Flags().Int64Var(&property, "property", 0, "limit to one property id")
	cmd.AddCommand(list)
	return cmd
}

func newMultidayCmd(a *app) *cobra.Command {
	var (
		days   int
		update bool
		notify bool
	)
	cmd := &cobra.Command{
		Use:   "multiday",
		Short: "Re-check outages longer than a day against the vendor API and correct their end times.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if days < 1 {
				return fmt.Errorf("--days must be at least 1, got %d", days)
			}
			if err := a.open(ctx); err != nil {
				return err
			}
			a.notifications(notify && update)
			tr, err := a.tracker()
			if err != nil {
				return err
			}
			res, err := tr.Multiday(ctx, days, update)
			if err != nil {
				return err
			}
			printMultiday(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 3, "look back this many days")
	cmd.Flags().BoolVar(&update, "update", false, "write corrections (default is a dry run)")
	cmd.Flags().BoolVar(&notify, "notify", false, "notify when corrections are written")
	return cmd
}
