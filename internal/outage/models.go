package outage

// Property is one physical site.
type Property struct {
	ID            int64  `json:"property_id"`
	Name          string `json:"property_name"`
	TotalNetworks int    `json:"total_networks"`
	TotalOutages  int    `json:"total_outages"`
	Island        string `json:"island,omitempty"`
	LastUpdated   string `json:"last_updated"`
}

// Network is one WAN connection under a property.
type Network struct {
	ID             int64    `json:"network_id"`
	PropertyID     int64    `json:"property_id"`
	StreetAddress  string   `json:"street_address,omitempty"`
	Subloc         string   `json:"subloc,omitempty"`
	Customer       string   `json:"customer_name,omitempty"`
	TotalOutages   int      `json:"total_outages"`
	DownloadTarget *float64 `json:"download_target,omitempty"`
	UploadTarget   *float64 `json:"upload_target,omitempty"`
	SpeedDown      *float64 `json:"gateway_speed_down,omitempty"`
	SpeedUp        *float64 `json:"gateway_speed_up,omitempty"`
	SpeedTestDate  string   `json:"speed_test_date,omitempty"`
	City           string   `json:"city,omitempty"`
	PostalCode     string   `json:"postal_code,omitempty"`
}

// Outage is one closed historical interval.
type Outage struct {
	ID            int64   `json:"outage_id"`
	NetworkID     int64   `json:"network_id"`
	Start         string  `json:"wan_down_start"`
	End           string  `json:"wan_down_end"`
	DurationHours float64 `json:"duration"`
	Reason        string  `json:"reason,omitempty"`
	PropertyName  string  `json:"property_name,omitempty"`
}

// HourlyCount is one rollup row.
type HourlyCount struct {
	Hour  string `json:"outage_hour"`
	Count int    `json:"count"`
}

// Resolution sources recorded on closed ongoing rows.
const (
	ResolvedByFeed = "feed"
	ResolvedByPoll = "poll"
)

// Ongoing is one tracked open (or poll-closed) outage.
type Ongoing struct {
	ID            int64  `json:"ongoing_outage_id"`
	NetworkID     int64  `json:"network_id"`
	Start         string `json:"wan_down_start"`
	End           string `json:"wan_down_end,omitempty"`
	Reason        string `json:"reason,omitempty"`
	ResolvedBy    string `json:"resolved_by,omitempty"`
	FirstDetected string `json:"first_detected"`
	LastChecked   string `json:"last_checked"`
}

// OpenOutage is an open ongoing outage joined with its network and property.
type OpenOutage struct {
	Ongoing
	StreetAddress string `json:"street_address,omitempty"`
	Subloc        string `json:"subloc,omitempty"`
	PropertyID    int64  `json:"property_id"`
	PropertyName  string `json:"property_name"`
	Island        string `json:"island,omitempty"`
}

// HourCoverage is how many distinct networks of a property had an outage in
// one hour.
type HourCoverage struct {
	PropertyID       int64  `json:"property_id"`
	PropertyName     string `json:"property_name"`
	Island           string `json:"island,omitempty"`
	TotalNetworks    int    `json:"total_networks"`
	Hour             string `json:"outage_hour"`
	AffectedNetworks int    `json:"networks_with_outages"`
}

// SpeedtestSummary counts networks meeting their provisioned speed.
type SpeedtestSummary struct {
	PropertyID      int64  `json:"property_id"`
	PropertyName    string `json:"property_name"`
	Island          string `json:"island,omitempty"`
	TotalNetworks   int    `json:"total_networks"`
	DownloadPassing int    `json:"download_passing"`
	DownloadTotal   int    `json:"download_total"`
	UploadPassing   int    `json:"upload_passing"`
	UploadTotal     int    `json:"upload_total"`
}

// Shelf is an xPON shelf with its fleet-wide counts.
type Shelf struct {
	ID              int64  `json:"shelf_id"`
	Name            string `json:"shelf_name"`
	TotalProperties int    `json:"total_properties"`
	TotalNetworks   int    `json:"total_networks"`
}

// Router is a 7x50 router with its fleet-wide counts.
type Router struct {
	ID              int64  `json:"router_id"`
	Name            string `json:"router_name"`
	TotalProperties int    `json:"total_properties"`
	TotalNetworks   int    `json:"total_networks"`
}

// ShelfLink ties a shelf to a property.
type ShelfLink struct {
	Shelf        string `json:"shelf_name"`
	NetworkCount int    `json:"network_count"`
	Slots        string `json:"slots"`
	PONs         string `json:"pons"`
}

// RouterLink ties a router to a property.
type RouterLink struct {
	Router       string `json:"router_name"`
	NetworkCount int    `json:"network_count"`
	SAPs         string `json:"saps"`
}

// Stats is the fleet summary.
type Stats struct {
	Properties            int `json:"total_properties"`
	PropertiesWithOutages int `json:"properties_with_outages"`
	Networks              int `json:"total_networks"`
	NetworksWithOutages   int `json:"networks_with_outages"`
	Outages               int `json:"total_outages"`
	OpenOutages           int `json:"ongoing_outages"`
	Shelves               int `json:"xpon_shelves"`
	Routers               int `json:"routers"`
}

// Counts is the row count of every domain table.
type Counts struct {
	Properties          int
	Networks            int
	Outages             int
	PropertyHourly      int
	NetworkHourly       int
	Ongoing             int
	Shelves             int
	Routers             int
	PropertyShelfLinks  int
	PropertyRouterLinks int
	IngestRuns          int
}

// RemovedNetwork describes a network deleted by the removal cascade.
type RemovedNetwork struct {
	ID            int64  `json:"network_id"`
	Property      string `json:"property"`
	StreetAddress string `json:"address,omitempty"`
	Customer      string `json:"customer,omitempty"`
}

// Removal is the outcome of a network-removal pass.
type Removal struct {
	Networks   []RemovedNetwork
	Properties []string
}

// Purge is the outcome of a retention pass.
type Purge struct {
	Outages        int64
	NetworkHourly  int64
	PropertyHourly int64
	Properties     int64
	Ongoing        int64
}
