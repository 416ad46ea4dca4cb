package ongoing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
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

var (
	now       = time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	downSince = now.Add(-3 * time.Hour)
)

const token = "test-token"

// vendor is a fake outage API keyed by network id.
type vendor struct {
	mu      sync.Mutex
	outages map[int64][]map[string]any
	failing map[int64]bool
	pages   []string // bulk pages as raw JSON; "fail" answers 502
	calls   int
}

func newVendor() *vendor {
	return &vendor{outages: map[int64][]map[string]any{}, failing: map[int64]bool{}}
}

func (v *vendor) set(id int64, recs ...map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.outages[id] = recs
}

func openRec(start time.Time) map[string]any {
	return map[string]any{"start": start.Format(time.RFC3339), "end": nil, "reason": "wan_down"}
}

func closedRec(start, end time.Time) map[string]any {
	return map[string]any{"start": start.Format(time.RFC3339), "end": end.Format(time.RFC3339), "reason": "wan_down"}
}

func (v *vendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if r.Header.Get("X-User-Token") != token {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}
	if r.URL.Path == "/outages" {
		i := 0
		if c := r.URL.Query().Get("cursor"); c != "" {
			i, _ = strconv.Atoi(c)
		}
		if v.pages[i] == "fail" {
			http.Error(w, "upstream", http.StatusBadGateway)
			return
		}
		next := ""
		if i+1 < len(v.pages) {
			next = strconv.Itoa(i + 1)
		}
		fmt.Fprintf(w, `{"data":{"outages":%s,"next":%q}}`, v.pages[i], next)
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/networks/"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if v.failing[id] {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	recs := v.outages[id]
	if recs == nil {
		recs = []map[string]any{}
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"data": map[string]any{"outages": recs}})
}

type fixture struct {
	store   *outage.Store
	vendor  *vendor
	tracker *Tracker
	clock   *clockwork.FakeClock
	bus     *event.Bus
}

// newFixture ingests property P with networks 1 and 2, each with a recent
// closed outage, and wires a tracker to a fake vendor.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := outage.New(ctx, testutil.OpenStore(t))
	require.NoError(t, err)
	clock := clockwork.NewFakeClockAt(now)

	o, err := feed.ReadOutages(strings.NewReader(testutil.OutagesCSV(
		testutil.NewOutage(now.Add(-10*time.Hour), testutil.OnNetwork(1)),
		testutil.NewOutage(now.Add(-9*time.Hour), testutil.OnNetwork(2)),
	)))
	require.NoError(t, err)
	d, err := feed.ReadDiscovery(strings.NewReader(testutil.DiscoveryCSV(
		testutil.NewDiscovery("P", 1),
		testutil.NewDiscovery("P", 2),
	)))
	require.NoError(t, err)
	_, err = ingest.NewEngine(st, ingest.WithClock(clock)).
		Run(ctx, ingest.Input{Outages: o, Discovery: d}, ingest.Options{Mode: ingest.ModeRebuild})
	require.NoError(t, err)

	v := newVendor()
	srv := httptest.NewServer(v)
	t.Cleanup(srv.Close)
	bus := event.NewBus(nil)
	client := NewClient(srv.URL, token, WithRate(0))
	return &fixture{
		store:   st,
		vendor:  v,
		clock:   clock,
		bus:     bus,
		tracker: NewTracker(st, client, WithClock(clock), WithBus(bus), WithConcurrency(2)),
	}
}

func TestClient_NetworkOutages(t *testing.T) {
	var gotPath, gotStart, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotStart, gotToken = r.URL.Path, r.URL.Query().Get("start"), r.Header.Get("X-User-Token")
		fmt.Fprint(w, `{"data":{"outages":[
			{"start":"2025-03-05T06:00:00.000Z","end":null,"reason":"wan_down"},
			{"start":"2025-03-04T06:00:00Z","end":"2025-03-04T07:30:00Z"}]}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", token, WithRate(0))
	recs, err := c.NetworkOutages(context.Background(), 42, now.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "/networks/42", gotPath)
	assert.Equal(t, "2025-03-03T09:00:00.000Z", gotStart)
	assert.Equal(t, token, gotToken)

	require.Len(t, recs, 2)
	assert.True(t, recs[0].Open())
	assert.Equal(t, int64(42), recs[0].NetworkID)
	assert.Equal(t, time.Date(2025, 3, 5, 6, 0, 0, 0, time.UTC), recs[0].Start)
	assert.False(t, recs[1].Open())
	assert.Equal(t, time.Date(2025, 3, 4, 7, 30, 0, 0, time.UTC), *recs[1].End)
}

func TestClient_status_error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, token, WithRate(0)).NetworkOutages(context.Background(), 1, now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFeedStatus))
	assert.Contains(t, err.Error(), "429")
}

func TestClient_missing_data_object(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error":"x"}`)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, token, WithRate(0)).NetworkOutages(context.Background(), 1, now)
	assert.Error(t, err)
}

func TestClient_BulkPage_network_ids(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.URL.Query().Get("cursor"))
		fmt.Fprint(w, `{"data":{"outages":[
			{"network_id":7,"start":"2025-03-05T06:00:00Z","end":null},
			{"network_id":"8","start":"2025-03-05T06:00:00Z","end":null}],"next":"def"}}`)
	}))
	defer srv.Close()

	recs, next, err := NewClient(srv.URL, token, WithRate(0)).BulkPage(context.Background(), now, "abc")
	require.NoError(t, err)
	assert.Equal(t, "def", next)
	require.Len(t, recs, 2)
	assert.Equal(t, int64(7), recs[0].NetworkID)
	assert.Equal(t, int64(8), recs[1].NetworkID)
}

func TestPoll_lifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	var detections []Detection
	f.bus.Subscribe(event.TopicOngoingDetected, func(_ context.Context, e event.Event) {
		detections = append(detections, e.Payload.([]Detection)...)
	})

	// absent -> open
	f.vendor.set(1, openRec(downSince))
	st, err := f.tracker.Poll(ctx, DefaultLookback)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Checked)
	assert.Equal(t, 1, st.Detected)
	require.Len(t, detections, 1)
	assert.Equal(t, int64(1), detections[0].NetworkID)

	// re-poll is idempotent
	f.clock.Advance(15 * time.Minute)
	st, err = f.tracker.Poll(ctx, DefaultLookback)
	require.NoError(t, err)
	assert.Zero(t, st.Detected)
	assert.Equal(t, 1, st.StillOpen)
	open, err := f.store.ListOpen(ctx, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, outage.Stamp(now), open[0].FirstDetected)
	assert.Equal(t, outage.Stamp(f.clock.Now()), open[0].LastChecked)
	assert.Equal(t, "P", open[0].PropertyName)

	// open -> resolved by the feed reporting an end
	f.vendor.set(1, closedRec(downSince, now.Add(10*time.Minute)))
	st, err = f.tracker.Poll(ctx, DefaultLookback)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Resolved)
	_, err = f.store.Ongoing(ctx, 1, downSince)
	assert.ErrorIs(t, err, outage.ErrNotFound)
}

func TestPoll_closes_outages_no_longer_reported(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor.set(2, openRec(downSince))
	_, err := f.tracker.Poll(ctx, DefaultLookback)
	require.NoError(t, err)

	f.vendor.set(2)
	f.clock.Advance(time.Hour)
	st, err := f.tracker.Poll(ctx, DefaultLookback)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ClosedStale)

	row, err := f.store.Ongoing(ctx, 2, downSince)
	require.NoError(t, err)
	assert.Equal(t, outage.ResolvedByPoll, row.ResolvedBy)
	assert.Equal(t, outage.Stamp(f.clock.Now()), row.End)
	open, err := f.store.ListOpen(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, open)

	// The vendor reporting it down again reopens the same row.
	f.vendor.set(2, openRec(downSince))
	st, err = f.tracker.Poll(ctx, DefaultLookback)
	require.NoError(t, err)
	assert.Zero(t, st.Detected)
	assert.Equal(t, 1, st.StillOpen)
	row, err = f.store.Ongoing(ctx, 2, downSince)
	require.NoError(t, err)
	assert.Empty(t, row.End)
}

func TestPoll_failure_is_per_network(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor.set(2, openRec(downSince))
	_, err := f.tracker.Poll(ctx, DefaultLookback)
	require.NoError(t, err)

	f.vendor.failing[2] = true
	f.vendor.set(1, openRec(downSince))
	st, err := f.tracker.Poll(ctx, DefaultLookback)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Errors)
	assert.Equal(t, 1, st.Checked)
	assert.Equal(t, 1, st.Detected)
	assert.Zero(t, st.ClosedStale, "a failed network is not swept")

	open, err := f.store.ListOpen(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}

func TestPollBulk(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.vendor.pages = []string{
		fmt.Sprintf(`[{"network_id":1,"start":%q,"end":null},{"network_id":999,"start":%q,"end":null}]`,
			downSince.Format(time.RFC3339), downSince.Format(time.RFC3339)),
		fmt.Sprintf(`[{"network_id":2,"start":%q,"end":null}]`, downSince.Format(time.RFC3339)),
	}
	st, err := f.tracker.PollBulk(ctx, DefaultLookback)
	require.NoError(t, err)
	assert.True(t, st.Complete)
	assert.Equal(t, 2, st.Detected)
	assert.Equal(t, 1, st.Ignored)

	// Network 2 recovered; a complete pass closes it.
	f.vendor.pages = f.vendor.pages[:1]
	st, err = f.tracker.PollBulk(ctx, DefaultLookback)
	require.NoError(t, err)
	assert.Equal(t, 1, st.ClosedStale)
	assert.Equal(t, 1, st.StillOpen)

	// A failed page ends paging without closing anything.
	f.vendor.pages = []string{`[]`, "fail"}
	st, err = f.tracker.PollBulk(ctx, DefaultLookback)
	require.NoError(t, err)
	assert.False(t, st.Complete)
	assert.Equal(t, 1, st.Errors)
	assert.Zero(t, st.ClosedStale)
	rows, err := f.store.ListOpen(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0].NetworkID)
}

func TestMultiday(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	start := now.Add(-40 * time.Hour)
	o, err := feed.ReadOutages(strings.NewReader(testutil.OutagesCSV(
		testutil.NewOutage(start, testutil.OnNetwork(1), testutil.Lasting(30*time.Hour)),
	)))
	require.NoError(t, err)
	_, err = ingest.NewEngine(f.store, ingest.WithClock(f.clock)).
		Run(ctx, ingest.Input{Outages: o}, ingest.Options{Mode: ingest.ModeAppend})
	require.NoError(t, err)

	realEnd := start.Add(36 * time.Hour)
	f.vendor.set(1, closedRec(start, realEnd))

	dry, err := f.tracker.Multiday(ctx, 3, false)
	require.NoError(t, err)
	assert.Equal(t, 1, dry.Checked)
	require.Len(t, dry.Corrections, 1)
	assert.InDelta(t, 36.0, dry.Corrections[0].NewHours, 1e-9)
	long, err := f.store.LongOutages(ctx, now.AddDate(0, 0, -3), MultidayThresholdHours)
	require.NoError(t, err)
	assert.InDelta(t, 30.0, long[0].DurationHours, 1e-9, "dry run leaves the store alone")

	res, err := f.tracker.Multiday(ctx, 3, true)
	require.NoError(t, err)
	require.Len(t, res.Corrections, 1)
	long, err = f.store.LongOutages(ctx, now.AddDate(0, 0, -3), MultidayThresholdHours)
	require.NoError(t, err)
	require.Len(t, long, 1)
	assert.Equal(t, outage.Stamp(realEnd), long[0].End)
	assert.InDelta(t, 36.0, long[0].DurationHours, 1e-9)

	again, err := f.tracker.Multiday(ctx, 3, true)
	require.NoError(t, err)
	assert.Empty(t, again.Corrections)
}

func TestScheduler_runs_immediately_then_on_tick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	calls := make(chan struct{}, 4)
	s := NewScheduler(func(context.Context) (Stats, error) {
		calls <- struct{}{}
		return Stats{}, nil
	}, time.Minute, clock, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	wait := func() {
		select {
		case <-calls:
		case <-ctx.Done():
			t.Fatal("poll was not called")
		}
	}
	wait()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)
	wait()
	assert.True(t, s.Running())

	s.Stop()
	assert.False(t, s.Running())
}
