// Package equipment decodes the opaque equipment and speed strings carried by
// the discovery feed. Every parser is best effort: malformed input yields
// ok == false, never an error.
package equipment

import (
	"regexp"
	"strconv"
	"strings"
)

// ONT identifies the xPON shelf port an ONT hangs off.
type ONT struct {
	Shelf string
	Slot  string
	PON   string
}

// ParseONT decodes ONT-{SHELF}-{SHELF#}-{SLOT}-{PON}-{ONT},
// e.g. ONT-HNLLHIMNOL7-01-10-13-25 -> {HNLLHIMNOL7 10 13}.
func ParseONT(name string) (ONT, bool) {
	parts := strings.Split(strings.TrimSpace(name), "-")
	if len(parts) < 6 || parts[0] != "ONT" || parts[1] == "" {
		return ONT{}, false
	}
	return ONT{Shelf: parts[1], Slot: parts[3], PON: parts[4]}, true
}

// ParseLAG returns the lag portion of a 7x50 SAP descriptor,
// e.g. lag-26.3001.694 -> lag-26.
func ParseLAG(sap string) (string, bool) {
	sap = strings.TrimSpace(sap)
	if !strings.HasPrefix(sap, "lag-") {
		return "", false
	}
	lag, _, _ := strings.Cut(sap, ".")
	return lag, true
}

var planSpeedRe = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)(G|MB)$`)

// PlanSpeeds is the provisioned download/upload target of a service plan in Mbps.
type PlanSpeeds struct {
	Down float64
	Up   float64
}

// ParseServicePlan extracts speed targets from a service config name such as
// NG-HSI.600MB.600MB.XGSPON or NGTV+HSI.1G.600MB. The plan separator is also
// the decimal point, so NG-HSI.2.5G.1G reads as 2.5G then 1G. The first two
// speed tokens are download then upload; fewer than two yields ok == false.
func ParseServicePlan(name string) (PlanSpeeds, bool) {
	var speeds []float64
	parts := strings.Split(strings.TrimSpace(name), ".")
	for i := 0; i < len(parts); i++ {
		tok := parts[i]
		if isDigits(tok) && i+1 < len(parts) && planSpeedRe.MatchString(parts[i+1]) {
			tok += "." + parts[i+1]
			i++
		}
		m := planSpeedRe.FindStringSubmatch(tok)
		if m == nil {
			continue
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if strings.EqualFold(m[2], "G") {
			v *= 1000
		}
		speeds = append(speeds, v)
	}
	if len(speeds) < 2 {
		return PlanSpeeds{}, false
	}
	return PlanSpeeds{Down: speeds[0], Up: speeds[1]}, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var measuredRe = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*Mbps$`)

// ParseMbps decodes a measured throughput string like "625.42 Mbps".
func ParseMbps(s string) (float64, bool) {
	m := measuredRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// PassRatio is the fraction of the provisioned target a speed test must reach.
const PassRatio = 0.85

// Passes reports whether actual meets PassRatio of target. A zero target
// never passes.
func Passes(actual, target float64) bool {
	return target > 0 && actual >= PassRatio*target
}
