package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wanops/outagewatch/internal/equipment"
	"github.com/wanops/outagewatch/internal/feed"
	"github.com/wanops/outagewatch/internal/outage"
	"github.com/wanops/outagewatch/internal/region"
)

// propertyBatch is one property's slice of a discovery run.
type propertyBatch struct {
	name     string
	networks []feed.DiscoveryRow // one per network, first row wins
	devices  []feed.DiscoveryRow // every row, for equipment links
	outages  []feed.OutageRow
	firstLoc map[int64]feed.Location
}

// plan partitions discovery rows and outages by property. A network listed
// under a second property is rejected there; outages for networks absent from
// the snapshot are counted and dropped.
func plan(in Input, res *Result) []*propertyBatch {
	owner := make(map[int64]string)
	byName := make(map[string]*propertyBatch)
	var order []*propertyBatch

	for _, r := range in.Discovery.Rows {
		b, ok := byName[r.Property]
		if !ok {
			b = &propertyBatch{name: r.Property, firstLoc: make(map[int64]feed.Location)}
			byName[r.Property] = b
			order = append(order, b)
		}
		if prev, seen := owner[r.NetworkID]; seen {
			if prev != r.Property {
				res.Rejected = append(res.Rejected, feed.Rejection{
					Line:   r.Line,
					Reason: fmt.Sprintf("network %d already listed under property %q", r.NetworkID, prev),
				})
				continue
			}
		} else {
			owner[r.NetworkID] = r.Property
			b.networks = append(b.networks, r)
		}
		b.devices = append(b.devices, r)
	}

	for _, o := range in.Outages.Rows {
		name, ok := owner[o.NetworkID]
		if !ok {
			res.SkippedNotInDiscovery++
			continue
		}
		b := byName[name]
		b.outages = append(b.outages, o)
		if _, seen := b.firstLoc[o.NetworkID]; !seen {
			b.firstLoc[o.NetworkID] = o.Location
		}
	}
	return order
}

// island derives a property's island from the first network whose location
// resolves, then from well-known place names in the property name.
func (e *Engine) island(b *propertyBatch) string {
	for _, n := range b.networks {
		fallback := b.firstLoc[n.NetworkID]
		loc := region.Location{
			City:       firstNonEmpty(n.City, fallback.City),
			PostalCode: firstNonEmpty(n.PostalCode, fallback.PostalCode),
			Latitude:   n.Latitude,
			Longitude:  n.Longitude,
		}
		if loc.Latitude == nil || loc.Longitude == nil {
			loc.Latitude, loc.Longitude = fallback.Latitude, fallback.Longitude
		}
		if !loc.Usable() {
			continue
		}
		if island, ok := e.resolver.Resolve(loc); ok {
			return island
		}
	}
	island, _ := region.FromPropertyName(b.name)
	return island
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// links folds device rows into shelf and router links. Rows without an
// equipment name contribute nothing.
func links(devices []feed.DiscoveryRow) ([]outage.ShelfLink, []outage.RouterLink) {
	type shelfAcc struct {
		count       int
		slots, pons map[string]bool
	}
	type routerAcc struct {
		count int
		saps  map[string]bool
	}
	shelves := make(map[string]*shelfAcc)
	routers := make(map[string]*routerAcc)
	var shelfOrder, routerOrder []string

	for _, d := range devices {
		if strings.TrimSpace(d.EquipName) == "" {
			continue
		}
		if ont, ok := equipment.ParseONT(d.EquipName); ok {
			s, ok := shelves[ont.Shelf]
			if !ok {
				s = &shelfAcc{slots: map[string]bool{}, pons: map[string]bool{}}
				shelves[ont.Shelf] = s
				shelfOrder = append(shelfOrder, ont.Shelf)
			}
			s.count++
			if ont.Slot != "" {
				s.slots[ont.Slot] = true
			}
			if ont.PON != "" {
				s.pons[ont.PON] = true
			}
		}
		if name := strings.TrimSpace(d.Router); name != "" {
			r, ok := routers[name]
			if !ok {
				r = &routerAcc{saps: map[string]bool{}}
				routers[name] = r
				routerOrder = append(routerOrder, name)
			}
			r.count++
			if lag, ok := equipment.ParseLAG(d.SAP); ok {
				r.saps[lag] = true
			}
		}
	}

	shelfLinks := make([]outage.ShelfLink, 0, len(shelfOrder))
	for _, name := range shelfOrder {
		s := shelves[name]
		shelfLinks = append(shelfLinks, outage.ShelfLink{
			Shelf:        name,
			NetworkCount: s.count,
			Slots:        outage.JoinSorted(s.slots),
			PONs:         outage.JoinSorted(s.pons),
		})
	}
	routerLinks := make([]outage.RouterLink, 0, len(routerOrder))
	for _, name := range routerOrder {
		r := routers[name]
		routerLinks = append(routerLinks, outage.RouterLink{
			Router:       name,
			NetworkCount: r.count,
			SAPs:         outage.JoinSorted(r.saps),
		})
	}
	return shelfLinks, routerLinks
}

func networkUpsert(pid int64, n feed.DiscoveryRow, loc feed.Location) outage.NetworkUpsert {
	u := outage.NetworkUpsert{
		ID:            n.NetworkID,
		PropertyID:    pid,
		StreetAddress: n.StreetAddress,
		Subloc:        n.Subloc,
		Customer:      n.Customer,
		SpeedTestDate: n.SpeedDate,
		Location:      loc,
	}
	if plan, ok := equipment.ParseServicePlan(n.ServiceConfig); ok {
		down, up := plan.Down, plan.Up
		u.DownloadTarget, u.UploadTarget = &down, &up
	}
	if v, ok := equipment.ParseMbps(n.SpeedDown); ok {
		u.SpeedDown = &v
	}
	if v, ok := equipment.ParseMbps(n.SpeedUp); ok {
		u.SpeedUp = &v
	}
	// Discovery location wins over the outage feed's.
	if n.City != "" {
		u.Location.City = n.City
	}
	if n.PostalCode != "" {
		u.Location.PostalCode = n.PostalCode
	}
	if n.Latitude != nil && n.Longitude != nil {
		u.Location.Latitude, u.Location.Longitude = n.Latitude, n.Longitude
	}
	return u
}

// runDiscovery commits one transaction per property, then a final pass that
// reconciles ongoing rows, refreshes equipment stats and removes networks
// missing from the snapshot.
func (e *Engine) runDiscovery(ctx context.Context, in Input, res *Result, log *zap.Logger) error {
	batches := plan(in, res)
	if res.SkippedNotInDiscovery > 0 {
		log.Warn("outages for networks missing from discovery skipped",
			zap.Int("count", res.SkippedNotInDiscovery))
	}

	for _, b := range batches {
		if len(b.networks) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("ingest interrupted after %d properties: %w", res.PropertiesProcessed, err)
		}
		var added []NetworkChange
		err := e.store.Tx(ctx, func(tx *outage.Tx) error {
			added = added[:0]
			pid, err := tx.UpsertProperty(ctx, outage.PropertyUpsert{
				Name:    b.name,
				Island:  e.island(b),
				Updated: e.clock.Now(),
			})
			if err != nil {
				return err
			}
			for _, n := range b.networks {
				created, err := tx.UpsertNetwork(ctx, networkUpsert(pid, n, b.firstLoc[n.NetworkID]))
				if err != nil {
					return err
				}
				if created {
					added = append(added, NetworkChange{
						ID:            n.NetworkID,
						Property:      b.name,
						StreetAddress: n.StreetAddress,
						Customer:      n.Customer,
					})
				}
			}
			shelves, routers := links(b.devices)
			if err := tx.ReplaceEquipment(ctx, pid, shelves, routers); err != nil {
				return err
			}
			if err := tx.RecordOutages(ctx, pid, b.outages); err != nil {
				return err
			}
			return tx.RefreshPropertyTotals(ctx, pid)
		})
		if err != nil {
			return fmt.Errorf("property %q: %w", b.name, err)
		}

		res.PropertiesProcessed++
		res.NetworksAdded = append(res.NetworksAdded, added...)
		res.OutagesRecorded += len(b.outages)
		if len(b.outages) > 0 {
			res.PropertiesWithOutages++
		} else {
			res.PropertiesWithoutOutages++
		}
		log.Debug("property committed",
			zap.String("property", b.name),
			zap.Int("networks", len(b.networks)),
			zap.Int("outages", len(b.outages)))
	}

	keep := in.Discovery.NetworkIDs()
	return e.store.Tx(ctx, func(tx *outage.Tx) error {
		n, err := tx.Reconcile(ctx)
		if err != nil {
			return err
		}
		res.Reconciled = n
		if err := tx.RefreshEquipmentStats(ctx); err != nil {
			return err
		}
		removal, err := tx.RemoveNetworksNotIn(ctx, keep)
		if err != nil {
			return err
		}
		res.NetworksRemoved = removal.Networks
		res.PropertiesRemoved = removal.Properties
		empty, err := tx.DeleteEmptyProperties(ctx)
		if err != nil {
			return err
		}
		res.PropertiesRemoved = append(res.PropertiesRemoved, empty...)
		if len(removal.Properties)+len(empty) > 0 {
			if err := tx.RefreshEquipmentStats(ctx); err != nil {
				return err
			}
		}
		res.Final, err = tx.Counts(ctx)
		return err
	})
}
