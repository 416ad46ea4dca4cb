package outage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wanops/outagewatch/internal/feed"
)

// WipeAll deletes every outage-derived row plus networks, properties,
// equipment catalogs and the ingest log. Ongoing outages survive.
func (t *Tx) WipeAll(ctx context.Context) error {
	for _, table := range []string{
		"outages",
		"network_hourly_outages",
		"property_hourly_outages",
		"property_xpon_shelves",
		"property_7x50s",
		"networks",
		"properties",
		"xpon_shelves",
		"router_7x50s",
		"ingest_runs",
	} {
		if _, err := t.tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("wipe %s: %w", table, err)
		}
	}
	return nil
}

// PurgeBefore drops raw outages and rollups older than the hour containing
// cutoff, orphaned properties not touched since cutoff, and closed ongoing
// audit rows. Raw outages and rollups share the floored cutoff so a surviving
// bucket still counts every surviving raw row. Networks are never deleted for
// lack of outages.
func (t *Tx) PurgeBefore(ctx context.Context, cutoff time.Time) (Purge, error) {
	c, hc := Stamp(cutoff), HourKey(cutoff)
	var p Purge
	steps := []struct {
		query string
		arg   string
		n     *int64
	}{
		{"DELETE FROM outages WHERE wan_down_start < ?", hc, &p.Outages},
		{"DELETE FROM network_hourly_outages WHERE outage_hour < ?", hc, &p.NetworkHourly},
		{"DELETE FROM property_hourly_outages WHERE outage_hour < ?", hc, &p.PropertyHourly},
		{"DELETE FROM ongoing_outages WHERE wan_down_end IS NOT NULL AND wan_down_end < ?", c, &p.Ongoing},
	}
	for _, s := range steps {
		res, err := t.tx.ExecContext(ctx, s.query, s.arg)
		if err != nil {
			return p, fmt.Errorf("purge: %w", err)
		}
		*s.n, _ = res.RowsAffected()
	}

	orphans := `SELECT property_id FROM properties
		WHERE property_id NOT IN (SELECT DISTINCT property_id FROM networks) AND last_updated < ?`
	ids, err := t.int64s(ctx, orphans, c)
	if err != nil {
		return p, fmt.Errorf("find orphan properties: %w", err)
	}
	if err := t.deleteProperties(ctx, ids); err != nil {
		return p, err
	}
	p.Properties = int64(len(ids))
	return p, nil
}

// PropertyUpsert is the discovery view of a property.
type PropertyUpsert struct {
	Name    string
	Island  string
	Updated time.Time
}

// UpsertProperty creates or touches a property by name and returns its id. A
// known island is never overwritten by an unknown one.
func (t *Tx) UpsertProperty(ctx context.Context, p PropertyUpsert) (int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO properties (property_name, island, last_updated) VALUES (?, ?, ?)
		ON CONFLICT(property_name) DO UPDATE SET
			island = COALESCE(excluded.island, island),
			last_updated = excluded.last_updated
		RETURNING property_id`,
		p.Name, nullString(p.Island), Stamp(p.Updated),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert property %q: %w", p.Name, err)
	}
	return id, nil
}

// NetworkUpsert is the discovery view of a network.
type NetworkUpsert struct {
	ID             int64
	PropertyID     int64
	StreetAddress  string
	Subloc         string
	Customer       string
	DownloadTarget *float64
	UploadTarget   *float64
	SpeedDown      *float64
	SpeedUp        *float64
	SpeedTestDate  string
	Location       feed.Location
}

// UpsertNetwork creates or overwrites a network's descriptive fields. Its
// outage counter is left alone. created reports a first sighting.
func (t *Tx) UpsertNetwork(ctx context.Context, n NetworkUpsert) (created bool, err error) {
	var exists int
	err = t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM networks WHERE network_id = ?", n.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup network %d: %w", n.ID, err)
	}

	loc := n.Location
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO networks (
			network_id, property_id, street_address, subloc, customer_name,
			download_target, upload_target, gateway_speed_down, gateway_speed_up, speed_test_date,
			country_code, country_name, city, region, latitude, longitude, timezone, postal_code, region_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(network_id) DO UPDATE SET
			property_id = excluded.property_id,
			street_address = excluded.street_address,
			subloc = excluded.subloc,
			customer_name = excluded.customer_name,
			download_target = excluded.download_target,
			upload_target = excluded.upload_target,
			gateway_speed_down = excluded.gateway_speed_down,
			gateway_speed_up = excluded.gateway_speed_up,
			speed_test_date = excluded.speed_test_date,
			country_code = COALESCE(excluded.country_code, country_code),
			country_name = COALESCE(excluded.country_name, country_name),
			city = COALESCE(excluded.city, city),
			region = COALESCE(excluded.region, region),
			latitude = COALESCE(excluded.latitude, latitude),
			longitude = COALESCE(excluded.longitude, longitude),
			timezone = COALESCE(excluded.timezone, timezone),
			postal_code = COALESCE(excluded.postal_code, postal_code),
			region_name = COALESCE(excluded.region_name, region_name)`,
		n.ID, n.PropertyID, nullString(n.StreetAddress), nullString(n.Subloc), nullString(n.Customer),
		nullFloat(n.DownloadTarget), nullFloat(n.UploadTarget), nullFloat(n.SpeedDown), nullFloat(n.SpeedUp),
		nullString(n.SpeedTestDate),
		nullString(loc.CountryCode), nullString(loc.CountryName), nullString(loc.City), nullString(loc.Region),
		nullFloat(loc.Latitude), nullFloat(loc.Longitude), nullString(loc.Timezone), nullString(loc.PostalCode),
		nullString(loc.RegionName),
	)
	if err != nil {
		return false, fmt.Errorf("upsert network %d: %w", n.ID, err)
	}
	return exists == 0, nil
}

// FillNetworkLocation sets location fields that are still empty.
func (t *Tx) FillNetworkLocation(ctx context.Context, id int64, loc feed.Location) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE networks SET
			country_code = COALESCE(country_code, ?),
			country_name = COALESCE(country_name, ?),
			city = COALESCE(city, ?),
			region = COALESCE(region, ?),
			latitude = COALESCE(latitude, ?),
			longitude = COALESCE(longitude, ?),
			timezone = COALESCE(timezone, ?),
			postal_code = COALESCE(postal_code, ?),
			region_name = COALESCE(region_name, ?)
		WHERE network_id = ?`,
		nullString(loc.CountryCode), nullString(loc.CountryName), nullString(loc.City), nullString(loc.Region),
		nullFloat(loc.Latitude), nullFloat(loc.Longitude), nullString(loc.Timezone), nullString(loc.PostalCode),
		nullString(loc.RegionName), id,
	)
	if err != nil {
		return fmt.Errorf("fill location for network %d: %w", id, err)
	}
	return nil
}

// KnownNetworks maps every stored network id to its property id.
func (t *Tx) KnownNetworks(ctx context.Context) (map[int64]int64, error) {
	rows, err := t.tx.QueryContext(ctx, "SELECT network_id, property_id FROM networks")
	if err != nil {
		return nil, fmt.Errorf("list networks: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]int64)
	for rows.Next() {
		var n, p int64
		if err := rows.Scan(&n, &p); err != nil {
			return nil, fmt.Errorf("scan network: %w", err)
		}
		out[n] = p
	}
	return out, rows.Err()
}

// RecordOutages inserts raw outages for networks of one property and folds
// them into both hourly rollups and the network counters. Counts only ever
// grow; re-recording the same rows counts them again.
func (t *Tx) RecordOutages(ctx context.Context, propertyID int64, rows []feed.OutageRow) error {
	if len(rows) == 0 {
		return nil
	}

	insert, err := t.tx.PrepareContext(ctx, `
		INSERT INTO outages (network_id, wan_down_start, wan_down_end, duration, reason)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outage insert: %w", err)
	}
	defer insert.Close()

	type netHour struct {
		network int64
		hour    string
	}
	perNetHour := make(map[netHour]int)
	perHour := make(map[string]int)
	perNet := make(map[int64]int)

	for _, r := range rows {
		if r.End.Before(r.Start) {
			return fmt.Errorf("outage for network %d ends before it starts", r.NetworkID)
		}
		start, end := Stamp(r.Start), Stamp(r.End)
		if _, err := insert.ExecContext(ctx, r.NetworkID, start, end, r.DurationHours(), nullString(r.Reason)); err != nil {
			return fmt.Errorf("insert outage for network %d: %w", r.NetworkID, err)
		}
		h := HourKey(r.Start)
		perNetHour[netHour{r.NetworkID, h}]++
		perHour[h]++
		perNet[r.NetworkID]++
	}

	for k, n := range perNetHour {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO network_hourly_outages (network_id, outage_hour, outage_count) VALUES (?, ?, ?)
			ON CONFLICT(network_id, outage_hour) DO UPDATE SET
				outage_count = outage_count + excluded.outage_count`,
			k.network, k.hour, n)
		if err != nil {
			return fmt.Errorf("upsert network hourly %d@%s: %w", k.network, k.hour, err)
		}
	}
	for h, n := range perHour {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO property_hourly_outages (property_id, outage_hour, total_outage_count) VALUES (?, ?, ?)
			ON CONFLICT(property_id, outage_hour) DO UPDATE SET
				total_outage_count = total_outage_count + excluded.total_outage_count`,
			propertyID, h, n)
		if err != nil {
			return fmt.Errorf("upsert property hourly %d@%s: %w", propertyID, h, err)
		}
	}
	for id, n := range perNet {
		if _, err := t.tx.ExecContext(ctx,
			"UPDATE networks SET total_outages = total_outages + ? WHERE network_id = ?", n, id); err != nil {
			return fmt.Errorf("bump network %d: %w", id, err)
		}
	}
	return nil
}

// RefreshPropertyTotals recomputes the denormalized counters of a property
// from its networks.
func (t *Tx) RefreshPropertyTotals(ctx context.Context, propertyID int64) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE properties SET
			total_networks = (SELECT COUNT(*) FROM networks WHERE property_id = properties.property_id),
			total_outages = (SELECT COALESCE(SUM(total_outages), 0) FROM networks WHERE property_id = properties.property_id)
		WHERE property_id = ?`, propertyID)
	if err != nil {
		return fmt.Errorf("refresh property %d totals: %w", propertyID, err)
	}
	return nil
}

// TouchProperty stamps last_updated.
func (t *Tx) TouchProperty(ctx context.Context, propertyID int64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, "UPDATE properties SET last_updated = ? WHERE property_id = ?", Stamp(at), propertyID)
	if err != nil {
		return fmt.Errorf("touch property %d: %w", propertyID, err)
	}
	return nil
}

// ReplaceEquipment rewrites a property's shelf and router links wholesale.
func (t *Tx) ReplaceEquipment(ctx context.Context, propertyID int64, shelves []ShelfLink, routers []RouterLink) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM property_xpon_shelves WHERE property_id = ?", propertyID); err != nil {
		return fmt.Errorf("clear shelf links: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM property_7x50s WHERE property_id = ?", propertyID); err != nil {
		return fmt.Errorf("clear router links: %w", err)
	}

	for _, s := range shelves {
		id, err := t.catalogID(ctx, "xpon_shelves", "shelf_id", "shelf_name", s.Shelf)
		if err != nil {
			return err
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO property_xpon_shelves (property_id, shelf_id, network_count, slots, pons)
			VALUES (?, ?, ?, ?, ?)`, propertyID, id, s.NetworkCount, s.Slots, s.PONs)
		if err != nil {
			return fmt.Errorf("link shelf %s: %w", s.Shelf, err)
		}
	}
	for _, r := range routers {
		id, err := t.catalogID(ctx, "router_7x50s", "router_id", "router_name", r.Router)
		if err != nil {
			return err
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO property_7x50s (property_id, router_id, network_count, saps)
			VALUES (?, ?, ?, ?)`, propertyID, id, r.NetworkCount, r.SAPs)
		if err != nil {
			return fmt.Errorf("link router %s: %w", r.Router, err)
		}
	}
	return nil
}

func (t *Tx) catalogID(ctx context.Context, table, idCol, nameCol, name string) (int64, error) {
	if _, err := t.tx.ExecContext(ctx,
		fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (?)", table, nameCol), name); err != nil {
		return 0, fmt.Errorf("insert %s %q: %w", table, name, err)
	}
	var id int64
	err := t.tx.QueryRowContext(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", idCol, table, nameCol), name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup %s %q: %w", table, name, err)
	}
	return id, nil
}

// RefreshEquipmentStats recomputes fleet-wide counts on both catalogs.
func (t *Tx) RefreshEquipmentStats(ctx context.Context) error {
	stmts := []string{
		`UPDATE xpon_shelves SET
			total_properties = (SELECT COUNT(DISTINCT property_id) FROM property_xpon_shelves WHERE shelf_id = xpon_shelves.shelf_id),
			total_networks = (SELECT COALESCE(SUM(network_count), 0) FROM property_xpon_shelves WHERE shelf_id = xpon_shelves.shelf_id)`,
		`UPDATE router_7x50s SET
			total_properties = (SELECT COUNT(DISTINCT property_id) FROM property_7x50s WHERE router_id = router_7x50s.router_id),
			total_networks = (SELECT COALESCE(SUM(network_count), 0) FROM property_7x50s WHERE router_id = router_7x50s.router_id)`,
	}
	for _, s := range stmts {
		if _, err := t.tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("refresh equipment stats: %w", err)
		}
	}
	return nil
}

// RemoveNetworksNotIn deletes every stored network absent from keep, with its
// raw outages, rollups and ongoing rows. Affected properties get their totals
// and hourly rollups recomputed from the surviving networks; properties left
// with no networks are deleted.
func (t *Tx) RemoveNetworksNotIn(ctx context.Context, keep map[int64]bool) (Removal, error) {
	var out Removal

	rows, err := t.tx.QueryContext(ctx, `
		SELECT n.network_id, n.property_id, p.property_name,
		       COALESCE(n.street_address, ''), COALESCE(n.customer_name, '')
		FROM networks n JOIN properties p ON p.property_id = n.property_id
		ORDER BY n.network_id`)
	if err != nil {
		return out, fmt.Errorf("list networks: %w", err)
	}
	affected := make(map[int64]bool)
	for rows.Next() {
		var rn RemovedNetwork
		var pid int64
		if err := rows.Scan(&rn.ID, &pid, &rn.Property, &rn.StreetAddress, &rn.Customer); err != nil {
			rows.Close()
			return out, fmt.Errorf("scan network: %w", err)
		}
		if keep[rn.ID] {
			continue
		}
		out.Networks = append(out.Networks, rn)
		affected[pid] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("list networks: %w", err)
	}

	for _, rn := range out.Networks {
		for _, q := range []string{
			"DELETE FROM network_hourly_outages WHERE network_id = ?",
			"DELETE FROM outages WHERE network_id = ?",
			"DELETE FROM ongoing_outages WHERE network_id = ?",
			"DELETE FROM networks WHERE network_id = ?",
		} {
			if _, err := t.tx.ExecContext(ctx, q, rn.ID); err != nil {
				return out, fmt.Errorf("remove network %d: %w", rn.ID, err)
			}
		}
	}

	pids := make([]int64, 0, len(affected))
	for pid := range affected {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

	var empty []int64
	for _, pid := range pids {
		if err := t.RefreshPropertyTotals(ctx, pid); err != nil {
			return out, err
		}
		if err := t.rebuildPropertyHourly(ctx, pid); err != nil {
			return out, err
		}
		var remaining int
		if err := t.tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM networks WHERE property_id = ?", pid).Scan(&remaining); err != nil {
			return out, fmt.Errorf("count networks of property %d: %w", pid, err)
		}
		if remaining == 0 {
			empty = append(empty, pid)
		}
	}

	for _, pid := range empty {
		var name string
		if err := t.tx.QueryRowContext(ctx,
			"SELECT property_name FROM properties WHERE property_id = ?", pid).Scan(&name); err != nil {
			return out, fmt.Errorf("lookup property %d: %w", pid, err)
		}
		out.Properties = append(out.Properties, name)
	}
	if err := t.deleteProperties(ctx, empty); err != nil {
		return out, err
	}
	return out, nil
}

// DeleteEmptyProperties removes properties that own no networks.
func (t *Tx) DeleteEmptyProperties(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT property_id, property_name FROM properties
		WHERE property_id NOT IN (SELECT DISTINCT property_id FROM networks)
		ORDER BY property_name`)
	if err != nil {
		return nil, fmt.Errorf("list empty properties: %w", err)
	}
	var ids []int64
	var names []string
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan property: %w", err)
		}
		ids = append(ids, id)
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, t.deleteProperties(ctx, ids)
}

func (t *Tx) rebuildPropertyHourly(ctx context.Context, propertyID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		"DELETE FROM property_hourly_outages WHERE property_id = ?", propertyID); err != nil {
		return fmt.Errorf("clear property %d hourly: %w", propertyID, err)
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO property_hourly_outages (property_id, outage_hour, total_outage_count)
		SELECT n.property_id, nho.outage_hour, SUM(nho.outage_count)
		FROM network_hourly_outages nho JOIN networks n ON n.network_id = nho.network_id
		WHERE n.property_id = ?
		GROUP BY n.property_id, nho.outage_hour`, propertyID)
	if err != nil {
		return fmt.Errorf("rebuild property %d hourly: %w", propertyID, err)
	}
	return nil
}

func (t *Tx) deleteProperties(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		for _, q := range []string{
			"DELETE FROM property_hourly_outages WHERE property_id = ?",
			"DELETE FROM property_xpon_shelves WHERE property_id = ?",
			"DELETE FROM property_7x50s WHERE property_id = ?",
			"DELETE FROM properties WHERE property_id = ?",
		} {
			if _, err := t.tx.ExecContext(ctx, q, id); err != nil {
				return fmt.Errorf("delete property %d: %w", id, err)
			}
		}
	}
	return nil
}

// Reconcile deletes ongoing rows whose (network, start) now has a closed
// historical outage. Rows already closed by a poll are cleared too, since the
// batch record supersedes the poll's guess at the end time.
func (t *Tx) Reconcile(ctx context.Context) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		DELETE FROM ongoing_outages
		WHERE (wan_down_end IS NULL OR resolved_by = ?)
		  AND EXISTS (
			SELECT 1 FROM outages o
			WHERE o.network_id = ongoing_outages.network_id
			  AND o.wan_down_start = ongoing_outages.wan_down_start
			  AND o.wan_down_end IS NOT NULL)`, ResolvedByPoll)
	if err != nil {
		return 0, fmt.Errorf("reconcile ongoing outages: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Counts returns the row count of every domain table.
func (t *Tx) Counts(ctx context.Context) (Counts, error) {
	return countTables(ctx, t.tx)
}

func (t *Tx) int64s(ctx context.Context, query string, args ...any) ([]int64, error) {
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countTables(ctx context.Context, q queryRower) (Counts, error) {
	var c Counts
	targets := []struct {
		table string
		dst   *int
	}{
		{"properties", &c.Properties},
		{"networks", &c.Networks},
		{"outages", &c.Outages},
		{"property_hourly_outages", &c.PropertyHourly},
		{"network_hourly_outages", &c.NetworkHourly},
		{"ongoing_outages", &c.Ongoing},
		{"xpon_shelves", &c.Shelves},
		{"router_7x50s", &c.Routers},
		{"property_xpon_shelves", &c.PropertyShelfLinks},
		{"property_7x50s", &c.PropertyRouterLinks},
		{"ingest_runs", &c.IngestRuns},
	}
	for _, tg := range targets {
		if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+tg.table).Scan(tg.dst); err != nil {
			return c, fmt.Errorf("count %s: %w", tg.table, err)
		}
	}
	return c, nil
}

// JoinSorted renders a set as a comma list, numeric members in numeric order.
func JoinSorted(set map[string]bool) string {
	items := make([]string, 0, len(set))
	for s := range set {
		items = append(items, s)
	}
	sort.Slice(items, func(i, j int) bool {
		a, aErr := strconv.Atoi(items[i])
		b, bErr := strconv.Atoi(items[j])
		if aErr == nil && bErr == nil && a != b {
			return a < b
		}
		return items[i] < items[j]
	})
	return strings.Join(items, ",")
}
