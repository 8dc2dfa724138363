package address

import "strings"

// streetTypes maps long-form street type tokens to their standard
// abbreviations, matching the Chicago data portal conventions.
var streetTypes = map[string]string{
	"AVENUE":     "AVE",
	"BOULEVARD":  "BLVD",
	"CIRCLE":     "CIR",
	"COURT":      "CT",
	"DRIVE":      "DR",
	"EXPRESSWAY": "EXPY",
	"HIGHWAY":    "HWY",
	"LANE":       "LN",
	"PARKWAY":    "PKWY",
	"PLACE":      "PL",
	"ROAD":       "RD",
	"SQUARE":     "SQ",
	"STREET":     "ST",
	"TERRACE":    "TER",
	"TRAIL":      "TRL",
	"WAY":        "WAY",
}

// directions maps long-form directionals to single/double letter codes.
var directions = map[string]string{
	"NORTH":     "N",
	"SOUTH":     "S",
	"EAST":      "E",
	"WEST":      "W",
	"NORTHEAST": "NE",
	"NORTHWEST": "NW",
	"SOUTHEAST": "SE",
	"SOUTHWEST": "SW",
}

// cleanToken upper-cases a token, trims whitespace and strips a trailing
// period ("Ave." -> "AVE").
func cleanToken(val string) string {
	v := strings.ToUpper(strings.TrimSpace(val))
	return strings.TrimSuffix(v, ".")
}

// NormalizeStreetType returns the abbreviated street type. Unrecognized
// tokens pass through upper-cased; blank input returns "".
func NormalizeStreetType(val string) string {
	v := cleanToken(val)
	if v == "" {
		return ""
	}
	if abbr, ok := streetTypes[v]; ok {
		return abbr
	}
	return v
}

// NormalizeDirection returns the abbreviated directional. Unrecognized
// tokens pass through upper-cased; blank input returns "".
func NormalizeDirection(val string) string {
	v := cleanToken(val)
	if v == "" {
		return ""
	}
	if abbr, ok := directions[v]; ok {
		return abbr
	}
	return v
}

// isDirection reports whether a token is a recognized directional in either
// long or abbreviated form.
func isDirection(token string) bool {
	if _, ok := directions[token]; ok {
		return true
	}
	for _, abbr := range directions {
		if token == abbr {
			return true
		}
	}
	return false
}

// isStreetType reports whether a token is a recognized street type in either
// long or abbreviated form.
func isStreetType(token string) bool {
	if _, ok := streetTypes[token]; ok {
		return true
	}
	for _, abbr := range streetTypes {
		if token == abbr {
			return true
		}
	}
	return false
}
