package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanops/outagewatch/internal/classify"
	"github.com/wanops/outagewatch/internal/feed"
	"github.com/wanops/outagewatch/internal/ingest"
	"github.com/wanops/outagewatch/internal/outage"
	"github.com/wanops/outagewatch/internal/testutil"
)

var now = time.Date(2025, 3, 4, 12, 30, 0, 0, time.UTC)

type fixture struct {
	store *outage.Store
	mux   *http.ServeMux
	alpha int64
}

// newFixture ingests three properties: Alpha and Bravo fully down in the
// same hour on shared equipment, Charlie half down.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := outage.New(ctx, testutil.OpenStore(t))
	require.NoError(t, err)

	hour := now.Add(-2 * time.Hour).Truncate(time.Hour)
	d, err := feed.ReadDiscovery(strings.NewReader(testutil.DiscoveryCSV(
		testutil.NewDiscovery("Alpha Towers", 1, testutil.WithEquipment("ONT-SHELF1-01-02-03-01", "R1", "lag-1.1")),
		testutil.NewDiscovery("Alpha Towers", 2, testutil.WithEquipment("ONT-SHELF1-01-02-04-01", "R1", "lag-1.2")),
		testutil.NewDiscovery("Bravo Court", 3, testutil.WithEquipment("ONT-SHELF1-01-05-01-01", "R1", "lag-2.1")),
		testutil.NewDiscovery("Charlie Place", 4),
		testutil.NewDiscovery("Charlie Place", 5),
	)))
	require.NoError(t, err)
	o, err := feed.ReadOutages(strings.NewReader(testutil.OutagesCSV(
		testutil.NewOutage(hour.Add(5*time.Minute), testutil.OnNetwork(1)),
		testutil.NewOutage(hour.Add(10*time.Minute), testutil.OnNetwork(2)),
		testutil.NewOutage(hour.Add(15*time.Minute), testutil.OnNetwork(3)),
		testutil.NewOutage(hour.Add(20*time.Minute), testutil.OnNetwork(4)),
	)))
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(now)
	_, err = ingest.NewEngine(st, ingest.WithClock(clock)).
		Run(ctx, ingest.Input{Outages: o, Discovery: d}, ingest.Options{Mode: ingest.ModeRebuild})
	require.NoError(t, err)

	require.NoError(t, st.Tx(ctx, func(tx *outage.Tx) error {
		_, err := tx.ObserveOpen(ctx, outage.Observation{NetworkID: 1, Start: now.Add(-90 * time.Minute)}, now)
		return err
	}))

	alpha, err := st.PropertyByName(ctx, "Alpha Towers")
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewHandler(st, clock, nil, Options{CacheTTL: time.Minute}).RegisterRoutes(mux)
	return &fixture{store: st, mux: mux, alpha: alpha.ID}
}

func (f *fixture) get(t *testing.T, path string, out any) int {
	t.Helper()
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	if out != nil && w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
	}
	return w.Code
}

func TestProperties(t *testing.T) {
	f := newFixture(t)

	var props []outage.Property
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/properties", &props))
	require.Len(t, props, 3)
	assert.Equal(t, "Alpha Towers", props[0].Name)
	assert.Equal(t, 2, props[0].TotalNetworks)

	var detail PropertyDetail
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/properties/"+strconv.FormatInt(f.alpha, 10), &detail))
	assert.Equal(t, "Alpha Towers", detail.Name)
	require.Len(t, detail.Shelves, 1)
	assert.Equal(t, "SHELF1", detail.Shelves[0].Shelf)
	require.Len(t, detail.Routers, 1)
	assert.Equal(t, "R1", detail.Routers[0].Router)

	var nets []outage.Network
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/properties/"+strconv.FormatInt(f.alpha, 10)+"/networks", &nets))
	assert.Len(t, nets, 2)

	var hourly []outage.HourlyCount
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/properties/"+strconv.FormatInt(f.alpha, 10)+"/hourly?hours=24", &hourly))
	require.Len(t, hourly, 1)
	assert.Equal(t, outage.HourlyCount{Hour: "2025-03-04T10:00:00Z", Count: 2}, hourly[0])
}

func TestProperty_errors(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/properties/9999", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/properties/abc", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/properties/-1", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/property-wide?hours=0", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/runs?limit=x", nil))
}

func TestNetworkEndpoints(t *testing.T) {
	f := newFixture(t)

	var outs []outage.Outage
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/networks/3/outages", &outs))
	require.Len(t, outs, 1)
	assert.InDelta(t, 1.0, outs[0].DurationHours, 1e-9)

	var hourly []outage.HourlyCount
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/networks/3/hourly", &hourly))
	assert.Len(t, hourly, 1)

	var none []outage.Outage
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/networks/777/outages", &none))
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestOngoing(t *testing.T) {
	f := newFixture(t)

	var open []OpenOutageView
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/ongoing", &open))
	require.Len(t, open, 1)
	assert.Equal(t, int64(1), open[0].NetworkID)
	assert.Equal(t, "Alpha Towers", open[0].PropertyName)
	assert.InDelta(t, 1.5, open[0].HoursOpen, 1e-9)

	var byProp []OpenOutageView
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/properties/"+strconv.FormatInt(f.alpha, 10)+"/ongoing", &byProp))
	assert.Len(t, byProp, 1)

	var count map[string]int
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/ongoing/count", &count))
	assert.Equal(t, map[string]int{"ongoing_outages": 1, "affected_properties": 1}, count)
}

func TestPropertyWide_and_analysis(t *testing.T) {
	f := newFixture(t)

	var alerts []classify.Alert
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/property-wide", &alerts))
	require.Len(t, alerts, 2)
	assert.Equal(t, "Alpha Towers", alerts[0].Property)
	assert.Equal(t, 100.0, alerts[0].Percentage)

	var first, second AnalysisResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/analysis", &first))
	assert.False(t, first.Cached)
	assert.Equal(t, now, first.ComputedAt)
	require.Len(t, first.Shared, 2)

	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/analysis", &second))
	assert.True(t, second.Cached)
	assert.Equal(t, first.DataHash, second.DataHash)
}

func TestFleetEndpoints(t *testing.T) {
	f := newFixture(t)

	var stats outage.Stats
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/stats", &stats))
	assert.Equal(t, 3, stats.Properties)
	assert.Equal(t, 5, stats.Networks)
	assert.Equal(t, 4, stats.Outages)
	assert.Equal(t, 1, stats.OpenOutages)

	var shelves []outage.Shelf
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/equipment/shelves", &shelves))
	require.Len(t, shelves, 1)
	assert.Equal(t, 2, shelves[0].TotalProperties)

	var routers []outage.Router
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/equipment/routers", &routers))
	assert.Len(t, routers, 1)

	var speed []outage.SpeedtestSummary
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/speedtest", &speed))
	assert.NotNil(t, speed)

	var runs []outage.RunRecord
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/runs?limit=5", &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, outage.RunCompleted, runs[0].Status)
	assert.Equal(t, 4, runs[0].OutagesAdded)
}
