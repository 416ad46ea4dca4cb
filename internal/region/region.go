// Package region resolves the Hawaiian island a property sits on from the
// location hints carried by its networks.
package region

import "strings"

// Island names stored on properties.
const (
	Oahu    = "Oahu"
	Maui    = "Maui"
	Hawaii  = "Hawaii"
	Kauai   = "Kauai"
	Molokai = "Molokai"
	Lanai   = "Lanai"
)

// Location is whatever location data a network row carried. Zero values mean
// absent.
type Location struct {
	City       string
	PostalCode string
	Latitude   *float64
	Longitude  *float64
}

// Usable reports whether any field could feed a strategy.
func (l Location) Usable() bool {
	return strings.TrimSpace(l.City) != "" || strings.TrimSpace(l.PostalCode) != "" ||
		(l.Latitude != nil && l.Longitude != nil)
}

// Strategy maps a location to an island, or reports false.
type Strategy func(Location) (string, bool)

// Resolver tries its strategies in order; the first hit wins.
type Resolver struct {
	strategies []Strategy
}

// NewResolver returns a Resolver over the given strategies.
func NewResolver(strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies}
}

// Default tries city, then ZIP, then coordinates.
func Default() *Resolver {
	return NewResolver(ByCity, ByPostalCode, ByCoordinates)
}

// Resolve returns the first island any strategy produces.
func (r *Resolver) Resolve(loc Location) (string, bool) {
	for _, s := range r.strategies {
		if island, ok := s(loc); ok {
			return island, true
		}
	}
	return "", false
}

// ByCity looks the city name up case-insensitively.
func ByCity(loc Location) (string, bool) {
	island, ok := cityIslands[strings.ToUpper(strings.TrimSpace(loc.City))]
	return island, ok
}

// ByPostalCode uses the first five characters of the ZIP.
func ByPostalCode(loc Location) (string, bool) {
	zip := strings.TrimSpace(loc.PostalCode)
	if len(zip) > 5 {
		zip = zip[:5]
	}
	island, ok := zipIslands[zip]
	return island, ok
}

type bounds struct {
	island                         string
	minLat, maxLat, minLon, maxLon float64
}

// Checked in order; boxes are approximate.
var islandBounds = []bounds{
	{Oahu, 21.25, 21.72, -158.28, -157.65},
	{Maui, 20.57, 21.03, -156.69, -155.96},
	{Hawaii, 18.91, 20.27, -156.07, -154.81},
	{Kauai, 21.87, 22.23, -159.79, -159.29},
	{Molokai, 21.08, 21.21, -157.33, -156.75},
	{Lanai, 20.72, 20.91, -157.08, -156.78},
}

// ByCoordinates matches lat/long against island bounding boxes.
func ByCoordinates(loc Location) (string, bool) {
	if loc.Latitude == nil || loc.Longitude == nil {
		return "", false
	}
	lat, lon := *loc.Latitude, *loc.Longitude
	for _, b := range islandBounds {
		if lat >= b.minLat && lat <= b.maxLat && lon >= b.minLon && lon <= b.maxLon {
			return b.island, true
		}
	}
	return "", false
}

var nameKeywords = []struct {
	keyword string
	island  string
}{
	{"WAIKIKI", Oahu},
	{"HONOLULU", Oahu},
	{"ALA MOANA", Oahu},
	{"KAANAPALI", Maui},
	{"LAHAINA", Maui},
	{"WAILEA", Maui},
	{"KIHEI", Maui},
	{"KONA", Hawaii},
	{"HILO", Hawaii},
	{"WAIKOLOA", Hawaii},
	{"POIPU", Kauai},
	{"PRINCEVILLE", Kauai},
	{"KAPAA", Kauai},
}

// FromPropertyName guesses the island from well-known place names embedded in
// a property name. It is the fallback when no network has usable location.
func FromPropertyName(name string) (string, bool) {
	upper := strings.ToUpper(name)
	for _, k := range nameKeywords {
		if strings.Contains(upper, k.keyword) {
			return k.island, true
		}
	}
	return "", false
}
