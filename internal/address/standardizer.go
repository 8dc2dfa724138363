// Package address normalizes raw municipal address data into the canonical
// form that keys the dim_location store. Both the ingestion pipelines and
// the runtime resolution service parse through this package, so any change
// to the canonical-string rules re-keys the whole location dimension.
package address

import (
	"regexp"
	"strings"
)

// Confidence classifies how trustworthy a parsed address is.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceLow    Confidence = "LOW"
	ConfidenceFailed Confidence = "FAILED"
)

const maxHouseNumberLen = 20

// citySuffix is appended to every canonical address that carries a zip.
// All ingested datasets are City of Chicago sources.
const citySuffix = "CHICAGO IL"

var nonDigits = regexp.MustCompile(`\D`)

// Parsed is the standardized decomposition of one address. Empty strings
// stand in for absent components.
type Parsed struct {
	HouseNumber     string
	StreetDirection string
	StreetName      string
	StreetType      string
	Unit            string
	Zip             string
	FullAddress     string
	Confidence      Confidence
}

// Input carries the raw fields available for one record. Structured fields
// take precedence over RawAddress when both house number and street name
// are present.
type Input struct {
	RawAddress      string
	StreetNumber    string
	StreetDirection string
	StreetName      string
	StreetType      string
	Zip             string
	Unit            string
}

// Standardizer produces Parsed addresses from raw record fields. It is
// stateless and safe for concurrent use.
type Standardizer struct{}

// NewStandardizer returns a Standardizer.
func NewStandardizer() *Standardizer {
	return &Standardizer{}
}

// Parse standardizes one address. It never fails: every unusable input
// resolves to Confidence FAILED with an empty canonical string.
func (s *Standardizer) Parse(in Input) Parsed {
	if strings.TrimSpace(in.StreetNumber) != "" && strings.TrimSpace(in.StreetName) != "" {
		return s.fromStructured(in)
	}
	if strings.TrimSpace(in.RawAddress) != "" {
		return s.fromRaw(in.RawAddress, in.Zip)
	}
	return failedParse()
}

// fromStructured builds a Parsed from authoritative structured columns.
// Preferred over free-form parsing because it avoids tagging ambiguity.
func (s *Standardizer) fromStructured(in Input) Parsed {
	hn := normalizeHouseNumber(in.StreetNumber)
	dir := NormalizeDirection(in.StreetDirection)
	name := strings.ToUpper(strings.TrimSpace(in.StreetName))
	st := NormalizeStreetType(in.StreetType)
	unit := strings.TrimSpace(in.Unit)
	zip := NormalizeZip(in.Zip)

	p := Parsed{
		HouseNumber:     hn,
		StreetDirection: dir,
		StreetName:      name,
		StreetType:      st,
		Unit:            unit,
		Zip:             zip,
	}
	p.FullAddress = assemble(hn, dir, name, st, zip)
	p.Confidence = classify(hn, name, p.FullAddress)
	return p
}

// normalizeHouseNumber upper-cases and truncates the house number. The
// truncation defends against narrative text misplaced in numeric columns.
func normalizeHouseNumber(val string) string {
	v := strings.ToUpper(strings.TrimSpace(val))
	if r := []rune(v); len(r) > maxHouseNumberLen {
		v = string(r[:maxHouseNumberLen])
	}
	return v
}

// NormalizeZip strips all non-digit characters and keeps the first five
// digits. Returns "" when nothing remains.
func NormalizeZip(val string) string {
	digits := nonDigits.ReplaceAllString(val, "")
	if len(digits) > 5 {
		digits = digits[:5]
	}
	return digits
}

// assemble joins the non-empty components into the canonical string. A zip
// alone never makes a record matchable: the city/zip suffix is appended
// only when the street prefix is non-empty.
func assemble(houseNumber, direction, name, streetType, zip string) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{houseNumber, direction, name, streetType} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	addr := strings.Join(parts, " ")
	if addr != "" && zip != "" {
		addr = addr + ", " + citySuffix + " " + zip
	}
	return addr
}

// classify applies the confidence law: HIGH needs house number and street
// name, LOW needs street name only, FAILED means the canonical string is
// empty. A FAILED parse always carries an empty canonical string.
func classify(houseNumber, streetName, fullAddress string) Confidence {
	switch {
	case fullAddress == "":
		return ConfidenceFailed
	case houseNumber != "" && streetName != "":
		return ConfidenceHigh
	default:
		return ConfidenceLow
	}
}

func failedParse() Parsed {
	return Parsed{Confidence: ConfidenceFailed}
}

// NormalizePin strips all non-digit characters from a raw Cook County PIN
// and returns the result only when exactly 14 digits remain; anything else
// returns "".
func NormalizePin(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	if len(digits) != 14 {
		return ""
	}
	return digits
}
