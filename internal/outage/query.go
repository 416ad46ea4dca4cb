package outage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a looked-up entity does not exist.
var ErrNotFound = errors.New("not found")

const propertyCols = `property_id, property_name, total_networks, total_outages,
	COALESCE(island, ''), last_updated`

func scanProperty(row interface{ Scan(...any) error }) (Property, error) {
	var p Property
	err := row.Scan(&p.ID, &p.Name, &p.TotalNetworks, &p.TotalOutages, &p.Island, &p.LastUpdated)
	return p, err
}

// Properties lists every property by name.
func (s *Store) Properties(ctx context.Context) ([]Property, error) {
	rows, err := s.DB().QueryContext(ctx, "SELECT "+propertyCols+" FROM properties ORDER BY property_name")
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close()

	var out []Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan property: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Property fetches one property by id.
func (s *Store) Property(ctx context.Context, id int64) (Property, error) {
	p, err := scanProperty(s.DB().QueryRowContext(ctx,
		"SELECT "+propertyCols+" FROM properties WHERE property_id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("property %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("get property %d: %w", id, err)
	}
	return p, nil
}

// PropertyByName fetches one property by its unique name.
func (s *Store) PropertyByName(ctx context.Context, name string) (Property, error) {
	p, err := scanProperty(s.DB().QueryRowContext(ctx,
		"SELECT "+propertyCols+" FROM properties WHERE property_name = ?", name))
	if errors.Is(err, sql.ErrNoRows) {
		return p, fmt.Errorf("property %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return p, fmt.Errorf("get property %q: %w", name, err)
	}
	return p, nil
}

// PropertyHourly returns a property's rollups since the given time, newest first.
func (s *Store) PropertyHourly(ctx context.Context, id int64, since time.Time) ([]HourlyCount, error) {
	return s.hourly(ctx, `SELECT outage_hour, total_outage_count FROM property_hourly_outages
		WHERE property_id = ? AND outage_hour >= ? ORDER BY outage_hour DESC`, id, Stamp(since))
}

// NetworkHourly returns a network's rollups since the given time, newest first.
func (s *Store) NetworkHourly(ctx context.Context, id int64, since time.Time) ([]HourlyCount, error) {
	return s.hourly(ctx, `SELECT outage_hour, outage_count FROM network_hourly_outages
		WHERE network_id = ? AND outage_hour >= ? ORDER BY outage_hour DESC`, id, Stamp(since))
}

func (s *Store) hourly(ctx context.Context, query string, args ...any) ([]HourlyCount, error) {
	rows, err := s.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query hourly: %w", err)
	}
	defer rows.Close()

	var out []HourlyCount
	for rows.Next() {
		var h HourlyCount
		if err := rows.Scan(&h.Hour, &h.Count); err != nil {
			return nil, fmt.Errorf("scan hourly: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// PropertyNetworks lists the networks of a property.
func (s *Store) PropertyNetworks(ctx context.Context, propertyID int64) ([]Network, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT network_id, property_id, COALESCE(street_address, ''), COALESCE(subloc, ''),
		       COALESCE(customer_name, ''), total_outages,
		       download_target, upload_target, gateway_speed_down, gateway_speed_up,
		       COALESCE(speed_test_date, ''), COALESCE(city, ''), COALESCE(postal_code, '')
		FROM networks WHERE property_id = ? ORDER BY network_id`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("list networks of property %d: %w", propertyID, err)
	}
	defer rows.Close()

	var out []Network
	for rows.Next() {
		var n Network
		var dt, ut, sd, su sql.NullFloat64
		if err := rows.Scan(&n.ID, &n.PropertyID, &n.StreetAddress, &n.Subloc, &n.Customer, &n.TotalOutages,
			&dt, &ut, &sd, &su, &n.SpeedTestDate, &n.City, &n.PostalCode); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		n.DownloadTarget, n.UploadTarget, n.SpeedDown, n.SpeedUp = floatPtr(dt), floatPtr(ut), floatPtr(sd), floatPtr(su)
		out = append(out, n)
	}
	return out, rows.Err()
}

// HourCoverage returns per-property, per-hour distinct affected network
// counts for hours at or after since.
func (s *Store) HourCoverage(ctx context.Context, since time.Time) ([]HourCoverage, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT property_id, property_name, COALESCE(island, ''), total_networks, outage_hour, networks_with_outages
		FROM v_property_hour_coverage WHERE outage_hour >= ?`, HourKey(since))
	if err != nil {
		return nil, fmt.Errorf("query hour coverage: %w", err)
	}
	defer rows.Close()

	var out []HourCoverage
	for rows.Next() {
		var h HourCoverage
		if err := rows.Scan(&h.PropertyID, &h.PropertyName, &h.Island, &h.TotalNetworks, &h.Hour, &h.AffectedNetworks); err != nil {
			return nil, fmt.Errorf("scan hour coverage: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Speedtest returns pass/fail counts for properties with any measured network.
func (s *Store) Speedtest(ctx context.Context) ([]SpeedtestSummary, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT property_id, property_name, COALESCE(island, ''), total_networks,
		       download_passing, download_total, upload_passing, upload_total
		FROM v_speedtest_performance
		WHERE download_total > 0 OR upload_total > 0
		ORDER BY property_name`)
	if err != nil {
		return nil, fmt.Errorf("query speedtest: %w", err)
	}
	defer rows.Close()

	var out []SpeedtestSummary
	for rows.Next() {
		var st SpeedtestSummary
		if err := rows.Scan(&st.PropertyID, &st.PropertyName, &st.Island, &st.TotalNetworks,
			&st.DownloadPassing, &st.DownloadTotal, &st.UploadPassing, &st.UploadTotal); err != nil {
			return nil, fmt.Errorf("scan speedtest: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Stats summarizes the fleet.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	targets := []struct {
		query string
		dst   *int
	}{
		{"SELECT COUNT(*) FROM properties", &st.Properties},
		{"SELECT COUNT(*) FROM properties WHERE total_outages > 0", &st.PropertiesWithOutages},
		{"SELECT COUNT(*) FROM networks", &st.Networks},
		{"SELECT COUNT(*) FROM networks WHERE total_outages > 0", &st.NetworksWithOutages},
		{"SELECT COUNT(*) FROM outages", &st.Outages},
		{"SELECT COUNT(*) FROM v_open_outages", &st.OpenOutages},
		{"SELECT COUNT(*) FROM xpon_shelves", &st.Shelves},
		{"SELECT COUNT(*) FROM router_7x50s", &st.Routers},
	}
	for _, tg := range targets {
		if err := s.DB().QueryRowContext(ctx, tg.query).Scan(tg.dst); err != nil {
			return st, fmt.Errorf("stats: %w", err)
		}
	}
	return st, nil
}

// Counts returns the row count of every domain table.
func (s *Store) Counts(ctx context.Context) (Counts, error) {
	return countTables(ctx, s.DB())
}

// ListOpen returns open ongoing outages with their network and property,
// newest first. propertyID zero means all properties.
func (s *Store) ListOpen(ctx context.Context, propertyID int64) ([]OpenOutage, error) {
	query := `SELECT ongoing_outage_id, network_id, wan_down_start, COALESCE(reason, ''),
		first_detected, last_checked, COALESCE(street_address, ''), COALESCE(subloc, ''),
		property_id, property_name, COALESCE(island, '')
		FROM v_open_outages`
	var args []any
	if propertyID != 0 {
		query += " WHERE property_id = ?"
		args = append(args, propertyID)
	}
	query += " ORDER BY wan_down_start DESC, network_id"

	rows, err := s.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open outages: %w", err)
	}
	defer rows.Close()

	var out []OpenOutage
	for rows.Next() {
		var o OpenOutage
		if err := rows.Scan(&o.ID, &o.NetworkID, &o.Start, &o.Reason, &o.FirstDetected, &o.LastChecked,
			&o.StreetAddress, &o.Subloc, &o.PropertyID, &o.PropertyName, &o.Island); err != nil {
			return nil, fmt.Errorf("scan open outage: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Ongoing fetches one ongoing row by its natural key.
func (s *Store) Ongoing(ctx context.Context, networkID int64, start time.Time) (Ongoing, error) {
	var o Ongoing
	var end, resolvedBy sql.NullString
	err := s.DB().QueryRowContext(ctx, `
		SELECT ongoing_outage_id, network_id, wan_down_start, wan_down_end, COALESCE(reason, ''),
		       resolved_by, first_detected, last_checked
		FROM ongoing_outages WHERE network_id = ? AND wan_down_start = ?`, networkID, Stamp(start)).
		Scan(&o.ID, &o.NetworkID, &o.Start, &end, &o.Reason, &resolvedBy, &o.FirstDetected, &o.LastChecked)
	if errors.Is(err, sql.ErrNoRows) {
		return o, fmt.Errorf("ongoing %d@%s: %w", networkID, Stamp(start), ErrNotFound)
	}
	if err != nil {
		return o, fmt.Errorf("get ongoing: %w", err)
	}
	o.End, o.ResolvedBy = end.String, resolvedBy.String
	return o, nil
}

// PollCandidates lists networks worth asking the vendor about: those with a
// historical outage starting at or after since, plus any currently tracked
// as open.
func (s *Store) PollCandidates(ctx context.Context, since time.Time) ([]int64, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT network_id FROM (
			SELECT o.network_id, MAX(o.wan_down_start) AS last_start
			FROM outages o JOIN networks n ON n.network_id = o.network_id
			WHERE o.wan_down_start >= ?
			GROUP BY o.network_id
			UNION ALL
			SELECT oo.network_id, MAX(oo.wan_down_start)
			FROM ongoing_outages oo JOIN networks n ON n.network_id = oo.network_id
			WHERE oo.wan_down_end IS NULL
			GROUP BY oo.network_id
		)
		GROUP BY network_id
		ORDER BY MAX(last_start) DESC, network_id`, Stamp(since))
	if err != nil {
		return nil, fmt.Errorf("query poll candidates: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LongOutages lists historical outages starting at or after since that
// lasted longer than minHours, longest first.
func (s *Store) LongOutages(ctx context.Context, since time.Time, minHours float64) ([]Outage, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT o.outage_id, o.network_id, o.wan_down_start, o.wan_down_end, o.duration,
		       COALESCE(o.reason, ''), p.property_name
		FROM outages o
		JOIN networks n ON n.network_id = o.network_id
		JOIN properties p ON p.property_id = n.property_id
		WHERE o.wan_down_start >= ? AND o.duration > ?
		ORDER BY o.duration DESC, o.outage_id`, Stamp(since), minHours)
	if err != nil {
		return nil, fmt.Errorf("query long outages: %w", err)
	}
	defer rows.Close()

	var out []Outage
	for rows.Next() {
		var o Outage
		if err := rows.Scan(&o.ID, &o.NetworkID, &o.Start, &o.End, &o.DurationHours, &o.Reason, &o.PropertyName); err != nil {
			return nil, fmt.Errorf("scan outage: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Outages lists the raw outages of a network, oldest first.
func (s *Store) Outages(ctx context.Context, networkID int64) ([]Outage, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT outage_id, network_id, wan_down_start, wan_down_end, duration, COALESCE(reason, '')
		FROM outages WHERE network_id = ? ORDER BY wan_down_start, outage_id`, networkID)
	if err != nil {
		return nil, fmt.Errorf("list outages of network %d: %w", networkID, err)
	}
	defer rows.Close()

	var out []Outage
	for rows.Next() {
		var o Outage
		if err := rows.Scan(&o.ID, &o.NetworkID, &o.Start, &o.End, &o.DurationHours, &o.Reason); err != nil {
			return nil, fmt.Errorf("scan outage: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Shelves lists the xPON shelf catalog.
func (s *Store) Shelves(ctx context.Context) ([]Shelf, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT shelf_id, shelf_name, total_properties, total_networks
		FROM xpon_shelves ORDER BY total_properties DESC, shelf_name`)
	if err != nil {
		return nil, fmt.Errorf("list shelves: %w", err)
	}
	defer rows.Close()

	var out []Shelf
	for rows.Next() {
		var sh Shelf
		if err := rows.Scan(&sh.ID, &sh.Name, &sh.TotalProperties, &sh.TotalNetworks); err != nil {
			return nil, fmt.Errorf("scan shelf: %w", err)
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

// Routers lists the 7x50 router catalog.
func (s *Store) Routers(ctx context.Context) ([]Router, error) {
	rows, err := s.DB().QueryContext(ctx, `
		SELECT router_id, router_name, total_properties, total_networks
		FROM router_7x50s ORDER BY total_properties DESC, router_name`)
	if err != nil {
		return nil, fmt.Errorf("list routers: %w", err)
	}
	defer rows.Close()

	var out []Router
	for rows.Next() {
		var r Router
		if err := rows.Scan(&r.ID, &r.Name, &r.TotalProperties, &r.TotalNetworks); err != nil {
			return nil, fmt.Errorf("scan router: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PropertyEquipment returns the shelf and router links of a property.
func (s *Store) PropertyEquipment(ctx context.Context, propertyID int64) ([]ShelfLink, []RouterLink, error) {
	srows, err := s.DB().QueryContext(ctx, `
		SELECT xs.shelf_name, pxs.network_count, pxs.slots, pxs.pons
		FROM property_xpon_shelves pxs JOIN xpon_shelves xs ON xs.shelf_id = pxs.shelf_id
		WHERE pxs.property_id = ? ORDER BY xs.shelf_name`, propertyID)
	if err != nil {
		return nil, nil, fmt.Errorf("list shelf links: %w", err)
	}
	var shelves []ShelfLink
	for srows.Next() {
		var l ShelfLink
		if err := srows.Scan(&l.Shelf, &l.NetworkCount, &l.Slots, &l.PONs); err != nil {
			srows.Close()
			return nil, nil, fmt.Errorf("scan shelf link: %w", err)
		}
		shelves = append(shelves, l)
	}
	srows.Close()
	if err := srows.Err(); err != nil {
		return nil, nil, err
	}

	rrows, err := s.DB().QueryContext(ctx, `
		SELECT r.router_name, p7.network_count, p7.saps
		FROM property_7x50s p7 JOIN router_7x50s r ON r.router_id = p7.router_id
		WHERE p7.property_id = ? ORDER BY r.router_name`, propertyID)
	if err != nil {
		return nil, nil, fmt.Errorf("list router links: %w", err)
	}
	defer rrows.Close()
	var routers []RouterLink
	for rrows.Next() {
		var l RouterLink
		if err := rrows.Scan(&l.Router, &l.NetworkCount, &l.SAPs); err != nil {
			return nil, nil, fmt.Errorf("scan router link: %w", err)
		}
		routers = append(routers, l)
	}
	return shelves, routers, rrows.Err()
}
