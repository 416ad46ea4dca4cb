package outage

import (
	"database/sql"
	"fmt"

	"github.com/wanops/outagewatch/internal/equipment"
	"github.com/wanops/outagewatch/internal/store"
)

// Component is the migration namespace for the outage schema.
const Component = "outage"

// Migrations returns the outage schema migrations in version order.
func Migrations() []store.Migration {
	return []store.Migration{
		{
			Version:     1,
			Description: "create properties, networks, outages and rollups",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE properties (
						property_id    INTEGER PRIMARY KEY AUTOINCREMENT,
						property_name  TEXT    NOT NULL UNIQUE,
						total_networks INTEGER NOT NULL DEFAULT 0,
						total_outages  INTEGER NOT NULL DEFAULT 0,
						island         TEXT,
						last_updated   TEXT    NOT NULL
					)`,
					`CREATE TABLE networks (
						network_id         INTEGER PRIMARY KEY,
						property_id        INTEGER NOT NULL REFERENCES properties(property_id),
						street_address     TEXT,
						subloc             TEXT,
						customer_name      TEXT,
						total_outages      INTEGER NOT NULL DEFAULT 0,
						download_target    REAL,
						upload_target      REAL,
						gateway_speed_down REAL,
						gateway_speed_up   REAL,
						speed_test_date    TEXT,
						country_code       TEXT,
						country_name       TEXT,
						city               TEXT,
						region             TEXT,
						latitude           REAL,
						longitude          REAL,
						timezone           TEXT,
						postal_code        TEXT,
						region_name        TEXT
					)`,
					`CREATE TABLE outages (
						outage_id      INTEGER PRIMARY KEY AUTOINCREMENT,
						network_id     INTEGER NOT NULL REFERENCES networks(network_id),
						wan_down_start TEXT    NOT NULL,
						wan_down_end   TEXT    NOT NULL,
						duration       REAL    NOT NULL,
						reason         TEXT,
						CHECK (wan_down_end >= wan_down_start)
					)`,
					`CREATE TABLE property_hourly_outages (
						id                 INTEGER PRIMARY KEY AUTOINCREMENT,
						property_id        INTEGER NOT NULL REFERENCES properties(property_id),
						outage_hour        TEXT    NOT NULL,
						total_outage_count INTEGER NOT NULL,
						UNIQUE (property_id, outage_hour)
					)`,
					`CREATE TABLE network_hourly_outages (
						id           INTEGER PRIMARY KEY AUTOINCREMENT,
						network_id   INTEGER NOT NULL REFERENCES networks(network_id),
						outage_hour  TEXT    NOT NULL,
						outage_count INTEGER NOT NULL,
						UNIQUE (network_id, outage_hour)
					)`,
					// network_id is deliberately not a foreign key: live tracking
					// survives a rebuild that wipes networks.
					`CREATE TABLE ongoing_outages (
						ongoing_outage_id INTEGER PRIMARY KEY AUTOINCREMENT,
						network_id        INTEGER NOT NULL,
						wan_down_start    TEXT    NOT NULL,
						wan_down_end      TEXT,
						reason            TEXT,
						resolved_by       TEXT,
						first_detected    TEXT    NOT NULL,
						last_checked      TEXT    NOT NULL,
						UNIQUE (network_id, wan_down_start)
					)`,
					"CREATE INDEX idx_networks_property ON networks(property_id)",
					"CREATE INDEX idx_property_hourly_hour ON property_hourly_outages(outage_hour)",
					"CREATE INDEX idx_network_hourly_hour ON network_hourly_outages(outage_hour)",
					"CREATE INDEX idx_outages_network ON outages(network_id)",
					"CREATE INDEX idx_outages_start ON outages(wan_down_start)",
					"CREATE INDEX idx_outages_key ON outages(network_id, wan_down_start)",
					"CREATE INDEX idx_ongoing_open ON ongoing_outages(wan_down_end)",
				}
				return execAll(tx, stmts)
			},
		},
		{
			Version:     2,
			Description: "create equipment catalogs and property links",
			Up: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					`CREATE TABLE xpon_shelves (
						shelf_id         INTEGER PRIMARY KEY AUTOINCREMENT,
						shelf_name       TEXT    NOT NULL UNIQUE,
						total_properties INTEGER NOT NULL DEFAULT 0,
						total_networks   INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE TABLE router_7x50s (
						router_id        INTEGER PRIMARY KEY AUTOINCREMENT,
						router_name      TEXT    NOT NULL UNIQUE,
						total_properties INTEGER NOT NULL DEFAULT 0,
						total_networks   INTEGER NOT NULL DEFAULT 0
					)`,
					`CREATE TABLE property_xpon_shelves (
						property_id   INTEGER NOT NULL REFERENCES properties(property_id),
						shelf_id      INTEGER NOT NULL REFERENCES xpon_shelves(shelf_id),
						network_count INTEGER NOT NULL DEFAULT 0,
						slots         TEXT    NOT NULL DEFAULT '',
						pons          TEXT    NOT NULL DEFAULT '',
						PRIMARY KEY (property_id, shelf_id)
					)`,
					`CREATE TABLE property_7x50s (
						property_id   INTEGER NOT NULL REFERENCES properties(property_id),
						router_id     INTEGER NOT NULL REFERENCES router_7x50s(router_id),
						network_count INTEGER NOT NULL DEFAULT 0,
						saps          TEXT    NOT NULL DEFAULT '',
						PRIMARY KEY (property_id, router_id)
					)`,
					"CREATE INDEX idx_property_xpon_shelf ON property_xpon_shelves(shelf_id)",
					"CREATE INDEX idx_property_7x50_router ON property_7x50s(router_id)",
				})
			},
		},
		{
			Version:     3,
			Description: "create ingest run log",
			Up: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					`CREATE TABLE ingest_runs (
						run_id          TEXT PRIMARY KEY,
						mode            TEXT NOT NULL,
						input_sha256    TEXT NOT NULL,
						outages_file    TEXT NOT NULL DEFAULT '',
						discovery_file  TEXT NOT NULL DEFAULT '',
						started_at      TEXT NOT NULL,
						finished_at     TEXT,
						status          TEXT NOT NULL,
						outages_added   INTEGER NOT NULL DEFAULT 0,
						rows_rejected   INTEGER NOT NULL DEFAULT 0,
						error           TEXT
					)`,
					"CREATE INDEX idx_ingest_runs_hash ON ingest_runs(input_sha256, status)",
				})
			},
		},
		{
			Version:     4,
			Description: "create read views",
			Up: func(tx *sql.Tx) error {
				return execAll(tx, []string{
					`CREATE VIEW v_open_outages AS
					SELECT oo.ongoing_outage_id, oo.network_id, oo.wan_down_start, oo.reason,
					       oo.first_detected, oo.last_checked,
					       n.street_address, n.subloc, p.property_id, p.property_name, p.island
					FROM ongoing_outages oo
					JOIN networks n ON n.network_id = oo.network_id
					JOIN properties p ON p.property_id = n.property_id
					WHERE oo.wan_down_end IS NULL`,
					`CREATE VIEW v_property_hour_coverage AS
					SELECT p.property_id, p.property_name, p.island, p.total_networks,
					       nho.outage_hour, COUNT(DISTINCT nho.network_id) AS networks_with_outages
					FROM properties p
					JOIN networks n ON n.property_id = p.property_id
					JOIN network_hourly_outages nho ON nho.network_id = n.network_id
					GROUP BY p.property_id, nho.outage_hour`,
					speedtestView(equipment.PassRatio),
				})
			},
		},
	}
}

func speedtestView(ratio float64) string {
	return fmt.Sprintf(`CREATE VIEW v_speedtest_performance AS
	SELECT p.property_id, p.property_name, p.island, p.total_networks,
	       SUM(CASE WHEN n.download_target > 0 AND n.gateway_speed_down IS NOT NULL
	                 AND n.gateway_speed_down >= n.download_target * %[1]g THEN 1 ELSE 0 END) AS download_passing,
	       SUM(CASE WHEN n.download_target > 0 AND n.gateway_speed_down IS NOT NULL THEN 1 ELSE 0 END) AS download_total,
	       SUM(CASE WHEN n.upload_target > 0 AND n.gateway_speed_up IS NOT NULL
	                 AND n.gateway_speed_up >= n.upload_target * %[1]g THEN 1 ELSE 0 END) AS upload_passing,
	       SUM(CASE WHEN n.upload_target > 0 AND n.gateway_speed_up IS NOT NULL THEN 1 ELSE 0 END) AS upload_total
	FROM properties p
	LEFT JOIN networks n ON n.property_id = p.property_id
	GROUP BY p.property_id`, ratio)
}

func execAll(tx *sql.Tx, stmts []string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
