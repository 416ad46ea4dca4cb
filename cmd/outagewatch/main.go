// Command outagewatch ingests WAN outage exports, tracks ongoing outages
// against the vendor API, flags property-wide events and serves the result.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

type ExitCode int

const (
	exitCodeSuccess   = 0
	exitCodeError     = 1
	exitCodeInterrupt = 130
)

func main() {
	os.Exit(int(run(os.Args[1:], os.Stdout, os.Stderr)))
}

func run(args []string, stdout, stderr io.Writer) ExitCode {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: stdout}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	return exitCode(ctx, err, stderr)
}

func exitCode(ctx context.Context, err error, stderr io.Writer) ExitCode {
	switch {
	case err == nil:
		return exitCodeSuccess
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		fmt.Fprintln(stderr, "interrupted; committed work is kept")
		return exitCodeInterrupt
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCodeError
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "outagewatch",
		Short:         "WAN outage ingestion, tracking and reporting.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "path to configuration file")
	root.PersistentFlags().StringVar(&a.dbPath, "database", "", "SQLite database path (overrides database.path)")

	root.AddCommand(
		newIngestCmd(a),
		newPollCmd(a),
		newOngoingCmd(a),
		newMultidayCmd(a),
		newClassifyCmd(a),
		newServeCmd(a),
		newBackupCmd(a),
		newRestoreCmd(a),
		newVersionCmd(a),
	)
	return root
}
