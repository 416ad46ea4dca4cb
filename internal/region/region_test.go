package region

import "testing"

func ptr(f float64) *float64 { return &f }

func TestDefaultResolver(t *testing.T) {
	r := Default()
	tests := []struct {
		name   string
		loc    Location
		want   string
		wantOK bool
	}{
		{"city", Location{City: "Honolulu"}, Oahu, true},
		{"city wins over zip", Location{City: "Lahaina", PostalCode: "96815"}, Maui, true},
		{"unknown city falls to zip", Location{City: "Springfield", PostalCode: "96720-1234"}, Hawaii, true},
		{"coordinates", Location{Latitude: ptr(20.8783), Longitude: ptr(-156.6825)}, Maui, true},
		{"coordinates oahu", Location{Latitude: ptr(21.3099), Longitude: ptr(-157.8581)}, Oahu, true},
		{"waimea is kauai", Location{City: "waimea"}, Kauai, true},
		{"nothing usable", Location{}, "", false},
		{"outside every box", Location{Latitude: ptr(40.7), Longitude: ptr(-74.0)}, "", false},
		{"latitude only", Location{Latitude: ptr(21.3)}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.loc)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Resolve(%+v) = %q, %v; want %q, %v", tt.loc, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestResolver_order_is_data(t *testing.T) {
	loc := Location{City: "Hilo", PostalCode: "96815"}
	r := NewResolver(ByPostalCode, ByCity)
	if got, _ := r.Resolve(loc); got != Oahu {
		t.Errorf("got %q, want %q", got, Oahu)
	}
}

func TestFromPropertyName(t *testing.T) {
	tests := map[string]string{
		"Waikiki Banyan":         Oahu,
		"The Kaanapali Alii":     Maui,
		"Kona Coast Resort":      Hawaii,
		"Princeville Makai":      Kauai,
		"Generic Apartments LLC": "",
	}
	for name, want := range tests {
		got, _ := FromPropertyName(name)
		if got != want {
			t.Errorf("FromPropertyName(%q) = %q, want %q", name, got, want)
		}
	}
}

func TestLocation_Usable(t *testing.T) {
	if (Location{}).Usable() {
		t.Error("empty location should not be usable")
	}
	if !(Location{PostalCode: "96815"}).Usable() {
		t.Error("zip-only location should be usable")
	}
	if (Location{Longitude: ptr(-157.8)}).Usable() {
		t.Error("longitude alone should not be usable")
	}
}
