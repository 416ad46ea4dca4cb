package classify

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanops/outagewatch/internal/event"
	"github.com/wanops/outagewatch/internal/feed"
	"github.com/wanops/outagewatch/internal/ingest"
	"github.com/wanops/outagewatch/internal/outage"
	"github.com/wanops/outagewatch/internal/testutil"
)

func cov(id int64, name, hour string, affected, total int) outage.HourCoverage {
	return outage.HourCoverage{PropertyID: id, PropertyName: name, Hour: hour, AffectedNetworks: affected, TotalNetworks: total}
}

func TestThreshold_Breached(t *testing.T) {
	tests := []struct {
		name            string
		t               Threshold
		affected, total int
		want            bool
	}{
		{"exclusive at boundary", Threshold{Fraction: 0.8}, 8, 10, false},
		{"inclusive at boundary", Threshold{Fraction: 0.8, Inclusive: true}, 8, 10, true},
		{"exclusive above", Reporting, 9, 10, true},
		{"below", Reporting, 7, 10, false},
		{"alerting at 75", Alerting, 3, 4, true},
		{"alerting below", Alerting, 7, 10, false},
		{"zero networks", Threshold{Fraction: 0, Inclusive: true}, 0, 0, false},
		{"all down", Reporting, 4, 4, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.t.Breached(tt.affected, tt.total))
		})
	}
}

func TestClassify_ordering(t *testing.T) {
	rows := []outage.HourCoverage{
		cov(1, "Alpha", "2025-03-04T10:00:00Z", 9, 10),
		cov(2, "Bravo", "2025-03-04T12:00:00Z", 9, 10),
		cov(3, "Charlie", "2025-03-04T12:00:00Z", 10, 10),
		cov(4, "Delta", "2025-03-04T12:00:00Z", 1, 10),
		cov(5, "Echo", "2025-03-04T12:00:00Z", 0, 0),
		cov(1, "Alpha", "2025-03-04T12:00:00Z", 9, 10),
	}
	got := Classify(rows, Reporting)
	require.Len(t, got, 4)
	assert.Equal(t, "Charlie", got[0].Property)
	assert.Equal(t, 100.0, got[0].Percentage)
	assert.Equal(t, "Alpha", got[1].Property)
	assert.Equal(t, "2025-03-04T12:00:00Z", got[1].Hour)
	assert.Equal(t, "Bravo", got[2].Property)
	assert.Equal(t, "Alpha", got[3].Property)
	assert.Equal(t, "2025-03-04T10:00:00Z", got[3].Hour)
	assert.Equal(t, 90.0, got[3].Percentage)

	latest := LatestPerProperty(got)
	require.Len(t, latest, 3)
	for _, a := range latest {
		assert.Equal(t, "2025-03-04T12:00:00Z", a.Hour)
	}
}

func TestThreshold_String(t *testing.T) {
	assert.Equal(t, "> 80%", Reporting.String())
	assert.Equal(t, ">= 75%", Alerting.String())
}

func TestDataHash_changes_with_content(t *testing.T) {
	a := []Alert{{PropertyID: 1, Hour: "h", Affected: 3, Total: 4}}
	b := []Alert{{PropertyID: 1, Hour: "h", Affected: 4, Total: 4}}
	assert.Equal(t, DataHash(a), DataHash(a))
	assert.NotEqual(t, DataHash(a), DataHash(b))
}

// seed ingests two properties on the same shelf and router, each with every
// network down in the same hour, plus a healthy third property.
func seed(t *testing.T, now time.Time) *outage.Store {
	t.Helper()
	ctx := context.Background()
	st, err := outage.New(ctx, testutil.OpenStore(t))
	require.NoError(t, err)

	hour := now.Add(-2 * time.Hour).Truncate(time.Hour)
	disc := testutil.DiscoveryCSV(
		testutil.NewDiscovery("Alpha Towers", 1, testutil.WithEquipment("ONT-SHELF1-01-02-03-01", "R1", "lag-1.1")),
		testutil.NewDiscovery("Alpha Towers", 2, testutil.WithEquipment("ONT-SHELF1-01-02-04-01", "R1", "lag-1.2")),
		testutil.NewDiscovery("Bravo Court", 3, testutil.WithEquipment("ONT-SHELF1-01-05-01-01", "R1", "lag-2.1")),
		testutil.NewDiscovery("Charlie Place", 4, testutil.WithEquipment("ONT-SHELF9-01-01-01-01", "R9", "lag-9.1")),
		testutil.NewDiscovery("Charlie Place", 5),
	)
	outs := testutil.OutagesCSV(
		testutil.NewOutage(hour.Add(5*time.Minute), testutil.OnNetwork(1)),
		testutil.NewOutage(hour.Add(10*time.Minute), testutil.OnNetwork(2)),
		testutil.NewOutage(hour.Add(15*time.Minute), testutil.OnNetwork(3)),
		testutil.NewOutage(hour.Add(20*time.Minute), testutil.OnNetwork(4)),
	)
	o, err := feed.ReadOutages(strings.NewReader(outs))
	require.NoError(t, err)
	d, err := feed.ReadDiscovery(strings.NewReader(disc))
	require.NoError(t, err)

	eng := ingest.NewEngine(st, ingest.WithClock(clockwork.NewFakeClockAt(now)))
	_, err = eng.Run(ctx, ingest.Input{Outages: o, Discovery: d}, ingest.Options{Mode: ingest.ModeRebuild})
	require.NoError(t, err)
	return st
}

func TestClassifier_Notify(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 30, 0, 0, time.UTC)
	st := seed(t, now)
	bus := event.NewBus(nil)
	var got []Alert
	bus.Subscribe(event.TopicPropertyWide, func(_ context.Context, e event.Event) {
		got = append(got, e.Payload.([]Alert)...)
	})

	c := New(st, clockwork.NewFakeClockAt(now), bus, nil)
	alerts, err := c.Notify(context.Background(), 24*time.Hour, Alerting)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, alerts, got)
	assert.Equal(t, "Alpha Towers", alerts[0].Property)
	assert.Equal(t, "Bravo Court", alerts[1].Property)

	// Charlie is at 50%.
	half, err := c.Recent(context.Background(), 24*time.Hour, Threshold{Fraction: 0.5, Inclusive: true})
	require.NoError(t, err)
	assert.Len(t, half, 3)

	// Outside the lookback window nothing is reported.
	none, err := c.Recent(context.Background(), time.Hour, Alerting)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestAnalyze_shared_equipment(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 30, 0, 0, time.UTC)
	st := seed(t, now)
	c := New(st, clockwork.NewFakeClockAt(now), nil, nil)
	alerts, err := c.Recent(context.Background(), 24*time.Hour, Reporting)
	require.NoError(t, err)

	a, err := Analyze(context.Background(), st, alerts)
	require.NoError(t, err)
	require.Len(t, a.Properties, 2)
	assert.Equal(t, []string{"SHELF1"}, a.Properties[0].Shelves)
	require.Len(t, a.Shared, 2)
	names := []string{a.Shared[0].Name, a.Shared[1].Name}
	assert.ElementsMatch(t, []string{"SHELF1", "R1"}, names)
	for _, s := range a.Shared {
		assert.Equal(t, []string{"Alpha Towers", "Bravo Court"}, s.Properties)
	}
	assert.Equal(t, DataHash(alerts), a.DataHash)
}
