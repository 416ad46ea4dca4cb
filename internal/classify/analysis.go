package classify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/wanops/outagewatch/internal/outage"
)

// PropertyPattern groups one property's breaching hours.
type PropertyPattern struct {
	PropertyID    int64    `json:"property_id"`
	Property      string   `json:"property_name"`
	Island        string   `json:"island,omitempty"`
	TotalNetworks int      `json:"total_networks"`
	Hours         []Alert  `json:"outage_hours"`
	MaxPercentage float64  `json:"max_percentage"`
	Shelves       []string `json:"xpon_shelves,omitempty"`
	Routers       []string `json:"routers,omitempty"`
}

// SharedEquipment is a shelf or router serving more than one affected property.
type SharedEquipment struct {
	Kind       string   `json:"kind"`
	Name       string   `json:"name"`
	Properties []string `json:"properties"`
}

// Analysis correlates property-wide outages across properties.
type Analysis struct {
	DataHash   string            `json:"data_hash"`
	Properties []PropertyPattern `json:"properties"`
	Islands    []string          `json:"islands_affected"`
	Shared     []SharedEquipment `json:"shared_equipment"`
}

// Equipment kinds.
const (
	KindShelf  = "xpon_shelf"
	KindRouter = "7x50"
)

// DataHash is a stable digest of an alert set, used as a memo key.
func DataHash(alerts []Alert) string {
	b, err := json.Marshal(alerts)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Analyze groups alerts per property and finds equipment common to several
// affected properties. Alerts must be in Classify order.
func Analyze(ctx context.Context, st *outage.Store, alerts []Alert) (*Analysis, error) {
	a := &Analysis{DataHash: DataHash(alerts), Islands: []string{}, Shared: []SharedEquipment{}}

	byID := make(map[int64]*PropertyPattern)
	var order []int64
	islands := make(map[string]bool)
	for _, al := range alerts {
		p, ok := byID[al.PropertyID]
		if !ok {
			p = &PropertyPattern{
				PropertyID:    al.PropertyID,
				Property:      al.Property,
				Island:        al.Island,
				TotalNetworks: al.Total,
			}
			byID[al.PropertyID] = p
			order = append(order, al.PropertyID)
		}
		p.Hours = append(p.Hours, al)
		if al.Percentage > p.MaxPercentage {
			p.MaxPercentage = al.Percentage
		}
		if al.Island != "" {
			islands[al.Island] = true
		}
	}

	type key struct{ kind, name string }
	users := make(map[key][]string)
	for _, id := range order {
		p := byID[id]
		shelves, routers, err := st.PropertyEquipment(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, s := range shelves {
			p.Shelves = append(p.Shelves, s.Shelf)
			k := key{KindShelf, s.Shelf}
			users[k] = append(users[k], p.Property)
		}
		for _, r := range routers {
			p.Routers = append(p.Routers, r.Router)
			k := key{KindRouter, r.Router}
			users[k] = append(users[k], p.Property)
		}
		a.Properties = append(a.Properties, *p)
	}

	for k, props := range users {
		if len(props) < 2 {
			continue
		}
		sort.Strings(props)
		a.Shared = append(a.Shared, SharedEquipment{Kind: k.kind, Name: k.name, Properties: props})
	}
	sort.Slice(a.Shared, func(i, j int) bool {
		if len(a.Shared[i].Properties) != len(a.Shared[j].Properties) {
			return len(a.Shared[i].Properties) > len(a.Shared[j].Properties)
		}
		return a.Shared[i].Name < a.Shared[j].Name
	})
	for is := range islands {
		a.Islands = append(a.Islands, is)
	}
	sort.Strings(a.Islands)
	return a, nil
}
