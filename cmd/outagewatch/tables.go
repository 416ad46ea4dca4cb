package main

import (
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/wanops/outagewatch/internal/classify"
	"github.com/wanops/outagewatch/internal/ongoing"
	"github.com/wanops/outagewatch/internal/outage"
)

const displayTime = "2006-01-02 15:04"

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetAutoFormatHeaders(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetHeader(header)
	return t
}

func printOpen(w io.Writer, open []outage.OpenOutage, now time.Time) {
	if len(open) == 0 {
		fmt.Fprintln(w, "No ongoing outages.")
		return
	}
	t := newTable(w, "Property", "Island", "Network", "Address", "Down Since (UTC)", "Hours Down", "Reason")
	for _, o := range open {
		since, hours := o.Start, ""
		if start, err := outage.ParseStamp(o.Start); err == nil {
			since = start.Format(displayTime)
			hours = fmt.Sprintf("%.1f", now.Sub(start).Hours())
		}
		addr := o.StreetAddress
		if o.Subloc != "" {
			addr += " " + o.Subloc
		}
		t.Append([]string{o.PropertyName, o.Island, fmt.Sprint(o.NetworkID), addr, since, hours, o.Reason})
	}
	t.Render()
	fmt.Fprintf(w, "%d ongoing outage(s)\n", len(open))
}

func printAlerts(w io.Writer, alerts []classify.Alert, th classify.Threshold) {
	if len(alerts) == 0 {
		fmt.Fprintf(w, "No property-wide outages (%s of networks).\n", th)
		return
	}
	t := newTable(w, "Hour (UTC)", "Property", "Island", "Down", "Total", "Percent")
	for _, a := range alerts {
		hour := a.Hour
		if h, err := outage.ParseStamp(a.Hour); err == nil {
			hour = h.Format(displayTime)
		}
		t.Append([]string{hour, a.Property, a.Island, fmt.Sprint(a.Affected), fmt.Sprint(a.Total), fmt.Sprintf("%.1f%%", a.Percentage)})
	}
	t.Render()
	fmt.Fprintf(w, "%d property-wide hour(s) at %s of networks\n", len(alerts), th)
}

func printMultiday(w io.Writer, res ongoing.MultidayResult) {
	fmt.Fprintf(w, "Checked %d multi-day outage(s): %d correction(s), %d unmatched, %d error(s)\n",
		res.Checked, len(res.Corrections), res.Unmatched, res.Errors)
	if len(res.Corrections) == 0 {
		return
	}
	t := newTable(w, "Network", "Property", "Start (UTC)", "Recorded End", "Recorded Hours", "Vendor End", "Vendor Hours")
	for _, c := range res.Corrections {
		start, end := c.Outage.Start, c.Outage.End
		if s, err := outage.ParseStamp(start); err == nil {
			start = s.Format(displayTime)
		}
		if e, err := outage.ParseStamp(end); err == nil {
			end = e.Format(displayTime)
		}
		t.Append([]string{
			fmt.Sprint(c.Outage.NetworkID), c.Outage.PropertyName, start, end,
			fmt.Sprintf("%.1f", c.Outage.DurationHours),
			c.End.UTC().Format(displayTime), fmt.Sprintf("%.1f", c.NewHours),
		})
	}
	t.Render()
	if !res.Applied {
		fmt.Fprintln(w, "Dry run: rerun with --update to write these corrections.")
	}
}
