package testutil

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/wanops/outagewatch/internal/store"
)

// OutageRow is one outage-feed CSV line.
type OutageRow struct {
	NetworkID  string
	Start      string
	End        string
	Reason     string
	City       string
	PostalCode string
	Latitude   string
	Longitude  string
}

// NewOutage returns a one-hour outage on network 1001 starting at start.
// Override fields with opts.
func NewOutage(start time.Time, opts ...func(*OutageRow)) OutageRow {
	r := OutageRow{
		NetworkID: "1001",
		Start:     start.UTC().Format(time.RFC3339),
		End:       start.Add(time.Hour).UTC().Format(time.RFC3339),
		Reason:    "wan_down",
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// OnNetwork sets the outage's network id.
func OnNetwork(id int64) func(*OutageRow) {
	return func(r *OutageRow) { r.NetworkID = strconv.FormatInt(id, 10) }
}

// Lasting sets the end relative to the start.
func Lasting(d time.Duration) func(*OutageRow) {
	return func(r *OutageRow) {
		start, err := time.Parse(time.RFC3339, r.Start)
		if err != nil {
			panic("testutil: Lasting needs an RFC 3339 start: " + err.Error())
		}
		r.End = start.Add(d).UTC().Format(time.RFC3339)
	}
}

// InCity sets the outage-feed city column.
func InCity(city string) func(*OutageRow) {
	return func(r *OutageRow) { r.City = city }
}

// OutagesCSV renders rows with the full outage-feed header.
func OutagesCSV(rows ...OutageRow) string {
	recs := [][]string{{"network_id", "start_time", "end_time", "reason", "city", "postal_code", "latitude", "longitude"}}
	for _, r := range rows {
		recs = append(recs, []string{r.NetworkID, r.Start, r.End, r.Reason, r.City, r.PostalCode, r.Latitude, r.Longitude})
	}
	return render(recs)
}

// DiscoveryRow is one discovery-snapshot CSV line.
type DiscoveryRow struct {
	Property      string
	NetworkID     string
	StreetAddress string
	Customer      string
	EquipName     string
	Router        string
	SAP           string
	ServiceConfig string
	SpeedDown     string
	SpeedUp       string
	City          string
	Zip           string
}

// NewDiscovery returns a discovery row for network id under property.
func NewDiscovery(property string, id int64, opts ...func(*DiscoveryRow)) DiscoveryRow {
	r := DiscoveryRow{
		Property:      property,
		NetworkID:     strconv.FormatInt(id, 10),
		StreetAddress: "1 Test St Unit " + strconv.FormatInt(id, 10),
		Customer:      "Test Customer",
		ServiceConfig: "NG-HSI.1G.1G.XGSPON",
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// WithEquipment sets the ONT name, router and SAP columns.
func WithEquipment(ont, router, sap string) func(*DiscoveryRow) {
	return func(r *DiscoveryRow) { r.EquipName, r.Router, r.SAP = ont, router, sap }
}

// WithSpeeds sets the measured gateway speeds.
func WithSpeeds(down, up string) func(*DiscoveryRow) {
	return func(r *DiscoveryRow) { r.SpeedDown, r.SpeedUp = down, up }
}

// WithCity sets the discovery city and ZIP columns.
func WithCity(city, zip string) func(*DiscoveryRow) {
	return func(r *DiscoveryRow) { r.City, r.Zip = city, zip }
}

// DiscoveryCSV renders rows with the discovery header.
func DiscoveryCSV(rows ...DiscoveryRow) string {
	recs := [][]string{{
		"MDU Name", "Eero Network ID", "Street Address", "Customer Name", "Equip Name",
		"7x50", "SAP", "Service Config Name", "Gateway Speed Down", "Gateway Speed Up", "City", "Zip",
	}}
	for _, r := range rows {
		recs = append(recs, []string{
			r.Property, r.NetworkID, r.StreetAddress, r.Customer, r.EquipName,
			r.Router, r.SAP, r.ServiceConfig, r.SpeedDown, r.SpeedUp, r.City, r.Zip,
		})
	}
	return render(recs)
}

func render(recs [][]string) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(recs); err != nil {
		panic("testutil: write csv: " + err.Error())
	}
	return buf.String()
}

// WriteFile writes content under t.TempDir() and returns the path.
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// OpenStore opens a fresh SQLite store in a temp dir, closed on cleanup.
func OpenStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "outages.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
