// Package report renders the per-run processing report.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/wanops/outagewatch/internal/ingest"
	"github.com/wanops/outagewatch/internal/outage"
)

// FileLayout is the timestamp layout of report file names.
const FileLayout = "2006-01-02_150405"

// Report is everything one processing report shows.
type Report struct {
	Generated     time.Time
	RunID         string
	Mode          ingest.Mode
	Failure       string
	OutagesFile   string
	DiscoveryFile string
	Database      string

	Added             []ingest.NetworkChange
	Removed           []outage.RemovedNetwork
	PropertiesRemoved []string
	Rejected          int
	Reconciled        int64
	Purged            int64

	OutagesRecorded  int
	SkippedUnknown   int
	SkippedNoNetwork int
	Properties       int
	WithOutages      int
	FinalNetworks    int
	FinalProperties  int
	FinalOutages     int
	FinalOngoing     int
}

// Build assembles a report from a run result. runErr is the error the run
// ended with, if any; res may be partial in that case.
func Build(res *ingest.Result, runErr error, database string, generated time.Time) *Report {
	r := &Report{Generated: generated, Database: database}
	if runErr != nil {
		r.Failure = runErr.Error()
	}
	if res == nil {
		return r
	}
	r.RunID = res.RunID
	r.Mode = res.Mode
	r.OutagesFile = res.OutagesFile
	r.DiscoveryFile = res.DiscoveryFile
	r.Added = append(r.Added, res.NetworksAdded...)
	sort.Slice(r.Added, func(i, j int) bool { return r.Added[i].ID < r.Added[j].ID })
	r.Removed = append(r.Removed, res.NetworksRemoved...)
	sort.Slice(r.Removed, func(i, j int) bool { return r.Removed[i].ID < r.Removed[j].ID })
	r.PropertiesRemoved = append(r.PropertiesRemoved, res.PropertiesRemoved...)
	sort.Strings(r.PropertiesRemoved)
	r.Rejected = len(res.Rejected)
	r.Reconciled = res.Reconciled
	r.Purged = res.Purged.Outages
	r.OutagesRecorded = res.OutagesRecorded
	r.SkippedUnknown = res.SkippedUnknownNetwork
	r.SkippedNoNetwork = res.SkippedNotInDiscovery
	r.Properties = res.PropertiesProcessed
	r.WithOutages = res.PropertiesWithOutages
	r.FinalNetworks = res.Final.Networks
	r.FinalProperties = res.Final.Properties
	r.FinalOutages = res.Final.Outages
	r.FinalOngoing = res.Final.Ongoing
	return r
}

var (
	heavy = strings.Repeat("=", 80)
	light = strings.Repeat("-", 80)
)

// Render writes the report as plain text.
func (r *Report) Render(w io.Writer) error {
	bw := bufio.NewWriter(w)
	p := func(format string, args ...any) { fmt.Fprintf(bw, format+"\n", args...) }

	p(heavy)
	p("NETWORK PROCESSING REPORT")
	p(heavy)
	p("Generated: %s", r.Generated.Format("2006-01-02 15:04:05"))
	p("Processing Mode: %s", orNA(string(r.Mode)))
	if r.RunID != "" {
		p("Run ID: %s", r.RunID)
	}
	if r.Failure != "" {
		p("Status: FAILED (%s)", r.Failure)
	} else {
		p("Status: completed")
	}
	p("")

	p("FILES PROCESSED:")
	p(light)
	p("Outages File: %s", orNA(r.OutagesFile))
	if r.DiscoveryFile == "" {
		p("Discovery File: Not provided")
	} else {
		p("Discovery File: %s", r.DiscoveryFile)
	}
	p("Database: %s", orNA(r.Database))
	p("")

	p("NETWORKS ADDED:")
	p(light)
	if len(r.Added) == 0 {
		p("  No networks added")
		p("")
	} else {
		p("Total Networks Added: %d", len(r.Added))
		p("")
		for _, n := range r.Added {
			networkBlock(p, n.ID, n.Property, n.StreetAddress, n.Customer)
		}
	}

	p("NETWORKS REMOVED:")
	p(light)
	if len(r.Removed) == 0 {
		p("  No networks removed")
		p("")
	} else {
		p("Total Networks Removed: %d", len(r.Removed))
		p("")
		for _, n := range r.Removed {
			networkBlock(p, n.ID, n.Property, n.StreetAddress, n.Customer)
		}
	}

	if len(r.PropertiesRemoved) > 0 {
		p("PROPERTIES REMOVED:")
		p(light)
		p("  %d properties removed (no remaining networks)", len(r.PropertiesRemoved))
		for _, name := range r.PropertiesRemoved {
			p("    %s", name)
		}
		p("")
	}

	p("SUMMARY STATISTICS:")
	p(light)
	if err := bw.Flush(); err != nil {
		return err
	}
	Summary(w, r)
	p("")
	p(heavy)
	return bw.Flush()
}

func networkBlock(p func(string, ...any), id int64, property, address, customer string) {
	p("  Network ID: %d", id)
	if property != "" {
		p("    Property: %s", property)
	}
	if address != "" {
		p("    Address: %s", address)
	}
	if customer != "" {
		p("    Customer: %s", customer)
	}
	p("")
}

// Summary writes the statistics table.
func Summary(w io.Writer, r *Report) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	table.SetHeader([]string{"Metric", "Value"})
	rows := [][]string{
		{"Total Outages Processed", humanize.Comma(int64(r.OutagesRecorded))},
		{"Properties Processed", humanize.Comma(int64(r.Properties))},
		{"Properties With Outages", humanize.Comma(int64(r.WithOutages))},
		{"Rows Rejected", humanize.Comma(int64(r.Rejected))},
		{"Outages Skipped (unknown network)", humanize.Comma(int64(r.SkippedUnknown))},
		{"Outages Skipped (not in discovery)", humanize.Comma(int64(r.SkippedNoNetwork))},
		{"Outages Purged (retention)", humanize.Comma(r.Purged)},
		{"Ongoing Outages Reconciled", humanize.Comma(r.Reconciled)},
		{"Networks in Database (after processing)", humanize.Comma(int64(r.FinalNetworks))},
		{"Properties in Database (after processing)", humanize.Comma(int64(r.FinalProperties))},
		{"Outages in Database (after processing)", humanize.Comma(int64(r.FinalOutages))},
	}
	table.AppendBulk(rows)
	table.Render()
}

// FileName is the report file name for a generation time.
func FileName(generated time.Time) string {
	return "processing_report_" + generated.Format(FileLayout) + ".txt"
}

// Write renders r into dir, creating it if needed, and returns the path.
func Write(dir string, r *Report) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, FileName(r.Generated))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := r.Render(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report: %w", err)
	}
	return path, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

