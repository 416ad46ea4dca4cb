// Package feed reads the two CSV exports the pipeline consumes: the raw
// outage feed and the device discovery snapshot.
package feed

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrMissingColumns is returned when a required header is absent.
	ErrMissingColumns = errors.New("missing required columns")
	// ErrMissingFile is returned when an input path does not exist.
	ErrMissingFile = errors.New("input file not found")
)

// Rejection records one skipped input row.
type Rejection struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// header maps column names to positions.
type header map[string]int

func readHeader(r *csv.Reader, required ...string) (header, error) {
	cols, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %s (empty file)", ErrMissingColumns, strings.Join(required, ", "))
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	h := make(header, len(cols))
	for i, c := range cols {
		c = strings.TrimSpace(strings.TrimPrefix(c, "\ufeff"))
		if _, dup := h[c]; !dup {
			h[c] = i
		}
	}
	var missing []string
	for _, c := range required {
		if _, ok := h[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return h, nil
}

func (h header) get(rec []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func (h header) float(rec []string, col string) *float64 {
	s := h.get(rec, col)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// parseNetworkID accepts integer ids, tolerating a trailing ".0" left by
// spreadsheet exports.
func parseNetworkID(s string) (int64, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".0")
	if s == "" {
		return 0, errors.New("empty network id")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid network id %q", s)
	}
	return id, nil
}

// mergeRejections adds malformed-record rejections to row rejections in
// file order.
func mergeRejections(rows, malformed []Rejection) []Rejection {
	if len(malformed) == 0 {
		return rows
	}
	out := append(rows, malformed...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// scan drives a CSV reader over r while hashing the raw bytes. fn is called
// once per data record with its 1-based file line. A malformed record is
// returned as a rejection and scanning continues; only header and read
// errors are fatal.
func scan(r io.Reader, required []string, fn func(h header, line int, rec []string)) (string, []Rejection, error) {
	hash := sha256.New()
	tee := io.TeeReader(r, hash)

	cr := csv.NewReader(tee)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	h, err := readHeader(cr, required...)
	if err != nil {
		return "", nil, err
	}
	var malformed []Rejection
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			malformed = append(malformed, Rejection{Line: perr.Line, Reason: perr.Err.Error()})
			continue
		}
		if err != nil {
			return "", nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		fn(h, line, rec)
	}
	if _, err := io.Copy(io.Discard, tee); err != nil {
		return "", nil, fmt.Errorf("drain input: %w", err)
	}
	return hex.EncodeToString(hash.Sum(nil)), malformed, nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Location is the optional geographic enrichment attached to outage rows.
type Location struct {
	City        string   `json:"city,omitempty"`
	PostalCode  string   `json:"postal_code,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	CountryCode string   `json:"country_code,omitempty"`
	CountryName string   `json:"country_name,omitempty"`
	Region      string   `json:"region,omitempty"`
	RegionName  string   `json:"region_name,omitempty"`
	Timezone    string   `json:"timezone,omitempty"`
}

// OutageRow is one closed outage interval from the batch feed.
type OutageRow struct {
	Line      int
	NetworkID int64
	Start     time.Time
	End       time.Time
	Reason    string
	Location  Location
}

// DurationHours is end minus start in fractional hours.
func (r OutageRow) DurationHours() float64 {
	return r.End.Sub(r.Start).Hours()
}

// Outages is a parsed outage feed.
type Outages struct {
	Rows     []OutageRow
	Rejected []Rejection
	SHA256   string
}

// Outage feed column names.
const (
	ColNetworkID = "network_id"
	ColStart     = "start_time"
	ColEnd       = "end_time"
)

// ReadOutages parses the outage feed. A missing required column is fatal;
// bad ids, bad or missing timestamps, and end < start reject only that row.
func ReadOutages(r io.Reader) (*Outages, error) {
	out := &Outages{}
	sum, malformed, err := scan(r, []string{ColNetworkID, ColStart, ColEnd}, func(h header, line int, rec []string) {
		reject := func(format string, args ...any) {
			out.Rejected = append(out.Rejected, Rejection{Line: line, Reason: fmt.Sprintf(format, args...)})
		}
		id, err := parseNetworkID(h.get(rec, ColNetworkID))
		if err != nil {
			reject("%v", err)
			return
		}
		start, err := ParseTime(h.get(rec, ColStart))
		if err != nil {
			reject("start_time: %v", err)
			return
		}
		if h.get(rec, ColEnd) == "" {
			reject("end_time is empty")
			return
		}
		end, err := ParseTime(h.get(rec, ColEnd))
		if err != nil {
			reject("end_time: %v", err)
			return
		}
		if end.Before(start) {
			reject("end_time %s before start_time %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
			return
		}
		out.Rows = append(out.Rows, OutageRow{
			Line:      line,
			NetworkID: id,
			Start:     start,
			End:       end,
			Reason:    h.get(rec, "reason"),
			Location: Location{
				City:        h.get(rec, "city"),
				PostalCode:  h.get(rec, "postal_code"),
				Latitude:    h.float(rec, "latitude"),
				Longitude:   h.float(rec, "longitude"),
				CountryCode: h.get(rec, "country_code"),
				CountryName: h.get(rec, "country_name"),
				Region:      h.get(rec, "region"),
				RegionName:  h.get(rec, "region_name"),
				Timezone:    h.get(rec, "timezone"),
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("outage feed: %w", err)
	}
	out.Rejected = mergeRejections(out.Rejected, malformed)
	out.SHA256 = sum
	return out, nil
}

// ReadOutagesFile opens path and parses it with ReadOutages.
func ReadOutagesFile(path string) (*Outages, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadOutages(f)
}

// DiscoveryRow is one device row of the discovery snapshot. A network may
// appear on more than one row (one per piece of equipment).
type DiscoveryRow struct {
	Line          int
	Property      string
	NetworkID     int64
	StreetAddress string
	Subloc        string
	Customer      string
	EquipName     string
	Router        string
	SAP           string
	ServiceConfig string
	SpeedDown     string
	SpeedUp       string
	SpeedDate     string
	City          string
	PostalCode    string
	Latitude      *float64
	Longitude     *float64
}

// Discovery is a parsed discovery snapshot.
type Discovery struct {
	Rows     []DiscoveryRow
	Rejected []Rejection
	SHA256   string
}

// Discovery column names.
const (
	ColProperty      = "MDU Name"
	ColEeroNetworkID = "Eero Network ID"
	ColStreetAddress = "Street Address"
	ColSubloc        = "Subloc"
	ColCustomer      = "Customer Name"
	ColEquipName     = "Equip Name"
	ColRouter        = "7x50"
	ColSAP           = "SAP"
	ColServiceConfig = "Service Config Name"
	ColSpeedDown     = "Gateway Speed Down"
	ColSpeedUp       = "Gateway Speed Up"
	ColSpeedDate     = "Gateway Speed Date"
	ColCity          = "City"
	ColZip           = "Zip"
	ColLatitude      = "Latitude"
	ColLongitude     = "Longitude"
)

// ReadDiscovery parses the discovery snapshot. Rows without a property name
// or with an unusable network id are rejected.
func ReadDiscovery(r io.Reader) (*Discovery, error) {
	out := &Discovery{}
	sum, malformed, err := scan(r, []string{ColProperty, ColEeroNetworkID}, func(h header, line int, rec []string) {
		prop := h.get(rec, ColProperty)
		if prop == "" {
			out.Rejected = append(out.Rejected, Rejection{Line: line, Reason: "empty property name"})
			return
		}
		id, err := parseNetworkID(h.get(rec, ColEeroNetworkID))
		if err != nil {
			out.Rejected = append(out.Rejected, Rejection{Line: line, Reason: err.Error()})
			return
		}
		out.Rows = append(out.Rows, DiscoveryRow{
			Line:          line,
			Property:      prop,
			NetworkID:     id,
			StreetAddress: h.get(rec, ColStreetAddress),
			Subloc:        h.get(rec, ColSubloc),
			Customer:      h.get(rec, ColCustomer),
			EquipName:     h.get(rec, ColEquipName),
			Router:        h.get(rec, ColRouter),
			SAP:           h.get(rec, ColSAP),
			ServiceConfig: h.get(rec, ColServiceConfig),
			SpeedDown:     h.get(rec, ColSpeedDown),
			SpeedUp:       h.get(rec, ColSpeedUp),
			SpeedDate:     h.get(rec, ColSpeedDate),
			City:          h.get(rec, ColCity),
			PostalCode:    h.get(rec, ColZip),
			Latitude:      h.float(rec, ColLatitude),
			Longitude:     h.float(rec, ColLongitude),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("discovery feed: %w", err)
	}
	out.Rejected = mergeRejections(out.Rejected, malformed)
	out.SHA256 = sum
	return out, nil
}

// ReadDiscoveryFile opens path and parses it with ReadDiscovery.
func ReadDiscoveryFile(path string) (*Discovery, error) {
	f, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadDiscovery(f)
}

// Properties groups discovery rows by property, in first-seen order.
func (d *Discovery) Properties() []string {
	seen := make(map[string]bool)
	var names []string
	for _, r := range d.Rows {
		if !seen[r.Property] {
			seen[r.Property] = true
			names = append(names, r.Property)
		}
	}
	return names
}

// NetworkIDs returns the set of network ids present in the snapshot.
func (d *Discovery) NetworkIDs() map[int64]bool {
	ids := make(map[int64]bool, len(d.Rows))
	for _, r := range d.Rows {
		ids[r.NetworkID] = true
	}
	return ids
}
