package notify

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/wanops/outagewatch/internal/classify"
	"github.com/wanops/outagewatch/internal/event"
	"github.com/wanops/outagewatch/internal/ingest"
	"github.com/wanops/outagewatch/internal/ongoing"
)

const (
	soundInfo  = "climb"
	soundAlarm = "siren"
	listLimit  = 5
	stampFmt   = "2006-01-02 15:04:05"
)

// Format turns a bus event into a message. ok is false for events nobody
// is notified about.
func Format(e event.Event) (Message, bool) {
	msg := Message{Topic: e.Topic, At: e.Timestamp, Priority: PriorityNormal, Sound: soundInfo, Data: e.Payload}
	at := e.Timestamp.Format(stampFmt)

	switch p := e.Payload.(type) {
	case *ingest.Result:
		switch e.Topic {
		case event.TopicIngestStarted:
			msg.Title = "Data Processing Started"
			msg.Body = fmt.Sprintf("Started processing network outage data\nFile: %s\nMode: %s\nTime: %s",
				base(p.OutagesFile), p.Mode, at)
		case event.TopicIngestCompleted:
			msg.Title = "Data Processing Complete"
			msg.Body = fmt.Sprintf("Successfully processed: %s\nCompleted at: %s\n\nProperties: %d\nNetworks: %d\nTotal outages: %d\nProcessing time: %s",
				base(p.OutagesFile), at, p.Final.Properties, p.Final.Networks, p.Final.Outages,
				p.FinishedAt.Sub(p.StartedAt).Round(time.Second))
			if len(p.Rejected) > 0 {
				msg.Body += fmt.Sprintf("\nRows rejected: %d", len(p.Rejected))
			}
		default:
			return msg, false
		}
	case ingest.FailedRun:
		msg.Title = "Data Processing Failed"
		msg.Priority, msg.Sound = PriorityHigh, soundAlarm
		file := ""
		if p.Result != nil {
			file = base(p.Result.OutagesFile)
		}
		msg.Body = fmt.Sprintf("Failed to process: %s\nTime: %s\nError: %v", file, at, p.Err)
		msg.Data = map[string]string{"error": fmt.Sprint(p.Err)}
	case []classify.Alert:
		if len(p) == 0 {
			return msg, false
		}
		msg.Title = "Property-Wide Outage Alert"
		msg.Priority, msg.Sound = PriorityHigh, soundAlarm
		msg.Body = propertyWide(p, at)
	case []ongoing.Detection:
		if len(p) == 0 {
			return msg, false
		}
		msg.Title = "Ongoing Outages Detected"
		msg.Priority, msg.Sound = PriorityHigh, soundAlarm
		var b strings.Builder
		fmt.Fprintf(&b, "%d network%s went down (as of %s)\n", len(p), plural(len(p)), at)
		for i, d := range p {
			if i == listLimit {
				fmt.Fprintf(&b, "\n... and %d more", len(p)-listLimit)
				break
			}
			fmt.Fprintf(&b, "\nNetwork %d since %s", d.NetworkID, d.Start.UTC().Format(stampFmt))
			if d.Reason != "" {
				fmt.Fprintf(&b, " (%s)", d.Reason)
			}
		}
		msg.Body = b.String()
	case ongoing.Stats:
		msg.Title = "Outages Resolved"
		msg.Body = fmt.Sprintf("%d resolved by the feed, %d no longer reported down\nChecked at: %s",
			p.Resolved, p.ClosedStale, at)
	case ongoing.MultidayResult:
		msg.Title = "Multi-Day Outages Corrected"
		msg.Body = fmt.Sprintf("Corrected end times of %d of %d long outages\nTime: %s",
			len(p.Corrections), p.Checked, at)
	default:
		return msg, false
	}
	return msg, true
}

func propertyWide(alerts []classify.Alert, at string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Detected %d property-wide outage%s at %s\n", len(alerts), plural(len(alerts)), at)
	for i, a := range alerts {
		if i == listLimit {
			fmt.Fprintf(&b, "\n... and %d more properties", len(alerts)-listLimit)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, a.Property)
		if a.Island != "" {
			fmt.Fprintf(&b, " (%s)", a.Island)
		}
		fmt.Fprintf(&b, "\n   %d/%d networks down (%.1f%%)", a.Affected, a.Total, a.Percentage)
	}
	return b.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func base(path string) string {
	if path == "" {
		return "N/A"
	}
	return filepath.Base(path)
}
