package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanops/outagewatch/internal/classify"
	"github.com/wanops/outagewatch/internal/ongoing"
	"github.com/wanops/outagewatch/internal/outage"
	"github.com/wanops/outagewatch/internal/testutil"
)

func exec(t *testing.T, args ...string) (ExitCode, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	code := run(args, &out, &errb)
	return code, out.String(), errb.String()
}

func TestExitCode(t *testing.T) {
	var errb bytes.Buffer
	assert.Equal(t, ExitCode(exitCodeSuccess), exitCode(context.Background(), nil, &errb))
	assert.Equal(t, ExitCode(exitCodeError), exitCode(context.Background(), errors.New("boom"), &errb))
	assert.Contains(t, errb.String(), "error: boom")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, ExitCode(exitCodeInterrupt), exitCode(ctx, ctx.Err(), &errb))
}

func TestVersion(t *testing.T) {
	code, out, _ := exec(t, "version")
	assert.Equal(t, ExitCode(exitCodeSuccess), code)
	assert.True(t, strings.HasPrefix(out, "outagewatch "), out)
}

func TestIngest_lifecycle(t *testing.T) {
	t.Chdir(t.TempDir())
	db := filepath.Join(t.TempDir(), "data", "outages.db")
	reports := t.TempDir()

	start := time.Now().UTC().Add(-3 * time.Hour).Truncate(time.Hour)
	outs := testutil.WriteFile(t, "outages.csv", testutil.OutagesCSV(
		testutil.NewOutage(start, testutil.OnNetwork(11)),
		testutil.NewOutage(start.Add(time.Minute), testutil.OnNetwork(12)),
	))
	disc := testutil.WriteFile(t, "discovery.csv", testutil.DiscoveryCSV(
		testutil.NewDiscovery("Kona Vista", 11),
		testutil.NewDiscovery("Kona Vista", 12),
	))
	args := []string{"ingest", "--database", db, "--outages-file", outs, "--discovery-file", disc, "--report-dir", reports}

	code, out, errOut := exec(t, args...)
	require.Equal(t, ExitCode(exitCodeSuccess), code, errOut)
	assert.Contains(t, out, "Ingest append complete")
	assert.Contains(t, out, "Total Outages Processed")

	entries, err := os.ReadDir(reports)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(entries[0].Name(), "processing_report_"))

	code, _, errOut = exec(t, args...)
	assert.Equal(t, ExitCode(exitCodeError), code)
	assert.Contains(t, errOut, "already ingested")

	code, _, errOut = exec(t, append(args, "--force")...)
	assert.Equal(t, ExitCode(exitCodeSuccess), code, errOut)

	code, out, errOut = exec(t, "classify", "--database", db, "--lookback", "24h")
	require.Equal(t, ExitCode(exitCodeSuccess), code, errOut)
	assert.Contains(t, out, "Kona Vista")
	assert.Contains(t, out, "100.0%")

	code, out, errOut = exec(t, "ongoing", "list", "--database", db)
	require.Equal(t, ExitCode(exitCodeSuccess), code, errOut)
	assert.Contains(t, out, "No ongoing outages.")

	archive := filepath.Join(t.TempDir(), "snap.tar.gz")
	code, out, errOut = exec(t, "backup", "--database", db, "--out", archive)
	require.Equal(t, ExitCode(exitCodeSuccess), code, errOut)
	assert.Contains(t, out, "Backup written: "+archive)

	target := t.TempDir()
	code, out, errOut = exec(t, "restore", archive, "--database", db, "--target", target)
	require.Equal(t, ExitCode(exitCodeSuccess), code, errOut)
	assert.Contains(t, out, filepath.Join(target, "outages.db"))

	code, _, errOut = exec(t, "restore", archive, "--database", db, "--target", target)
	assert.Equal(t, ExitCode(exitCodeError), code)
	assert.Contains(t, errOut, "file already exists")
}

func TestIngest_missing_file(t *testing.T) {
	t.Chdir(t.TempDir())
	code, _, errOut := exec(t, "ingest", "--database", filepath.Join(t.TempDir(), "o.db"),
		"--outages-file", filepath.Join(t.TempDir(), "absent.csv"))
	assert.Equal(t, ExitCode(exitCodeError), code)
	assert.Contains(t, errOut, "input file not found")
}

func TestIngest_requires_outages_flag(t *testing.T) {
	t.Chdir(t.TempDir())
	code, _, errOut := exec(t, "ingest")
	assert.Equal(t, ExitCode(exitCodeError), code)
	assert.Contains(t, errOut, "outages-file")
}

func TestPoll_requires_feed_url(t *testing.T) {
	t.Chdir(t.TempDir())
	code, _, errOut := exec(t, "poll", "--database", filepath.Join(t.TempDir(), "o.db"))
	assert.Equal(t, ExitCode(exitCodeError), code)
	assert.Contains(t, errOut, "feed.base_url")
}

func TestPrintOpen(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	printOpen(&buf, []outage.OpenOutage{{
		Ongoing:       outage.Ongoing{NetworkID: 7, Start: "2025-03-04T09:30:00Z", Reason: "wan_down"},
		StreetAddress: "1 Ala Moana Blvd",
		Subloc:        "Apt 4",
		PropertyName:  "Ala Moana Tower",
		Island:        "Oahu",
	}}, now)
	out := buf.String()
	assert.Contains(t, out, "Ala Moana Tower")
	assert.Contains(t, out, "1 Ala Moana Blvd Apt 4")
	assert.Contains(t, out, "2025-03-04 09:30")
	assert.Contains(t, out, "2.5")
	assert.Contains(t, out, "1 ongoing outage(s)")
}

func TestPrintAlerts_empty(t *testing.T) {
	var buf bytes.Buffer
	printAlerts(&buf, nil, classify.Reporting)
	assert.Equal(t, "No property-wide outages (> 80% of networks).\n", buf.String())
}

func TestPrintMultiday_dry_run(t *testing.T) {
	var buf bytes.Buffer
	printMultiday(&buf, ongoing.MultidayResult{
		Checked: 1,
		Corrections: []ongoing.Correction{{
			Outage:   outage.Outage{NetworkID: 3, Start: "2025-03-01T00:00:00Z", End: "2025-03-02T06:00:00Z", DurationHours: 30, PropertyName: "P"},
			End:      time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
			NewHours: 48,
		}},
	})
	out := buf.String()
	assert.Contains(t, out, "1 correction(s)")
	assert.Contains(t, out, "48.0")
	assert.Contains(t, out, "Dry run")
}
