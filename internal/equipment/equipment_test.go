package equipment

import "testing"

func TestParseONT(t *testing.T) {
	tests := []struct {
		in     string
		want   ONT
		wantOK bool
	}{
		{"ONT-HNLLHIMNOL7-01-10-13-25", ONT{"HNLLHIMNOL7", "10", "13"}, true},
		{" ONT-KHLUHIXA01-02-3-4-5-extra ", ONT{"KHLUHIXA01", "3", "4"}, true},
		{"ONT-HNLLHIMNOL7-01-10-13", ONT{}, false},
		{"OLT-HNLLHIMNOL7-01-10-13-25", ONT{}, false},
		{"", ONT{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseONT(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseONT(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseLAG(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"lag-26.3001.694", "lag-26", true},
		{"lag-7", "lag-7", true},
		{"1/1/3.100", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseLAG(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseLAG(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseServicePlan(t *testing.T) {
	tests := []struct {
		in     string
		want   PlanSpeeds
		wantOK bool
	}{
		{"NG-HSI.600MB.600MB.XGSPON", PlanSpeeds{600, 600}, true},
		{"NGTV+HSI.1G.600MB", PlanSpeeds{1000, 600}, true},
		{"NG-HSI.2.5g.1g", PlanSpeeds{2500, 1000}, true},
		{"NG-HSI.2.5G.1G", PlanSpeeds{2500, 1000}, true},
		{"NG-HSI.1.5G.500MB", PlanSpeeds{1500, 500}, true},
		{"NG-HSI.1G.2.5G.XGSPON", PlanSpeeds{1000, 2500}, true},
		{"NG-HSI.400MB", PlanSpeeds{}, false},
		{"garbage", PlanSpeeds{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseServicePlan(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseServicePlan(%q) = %+v, %v; want %+v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestParseMbps(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"625.42 Mbps", 625.42, true},
		{" 604mbps ", 604, true},
		{"604 Kbps", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseMbps(tt.in)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseMbps(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPasses(t *testing.T) {
	if !Passes(511, 600) {
		t.Error("511 of 600 should pass")
	}
	if Passes(509, 600) {
		t.Error("509 of 600 should fail")
	}
	if Passes(100, 0) {
		t.Error("zero target should never pass")
	}
}
