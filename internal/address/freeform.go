package address

import (
	"regexp"
	"strings"
	"unicode"
)

// Free-form parsing tags the tokens of a raw address string into the same
// component set the structured path produces. The tagging is deterministic:
// dictionary and position rules only, no probabilistic scoring. An
// ambiguous tagging (a repeated unit label) fails the parse rather than
// guessing.

var (
	reUnit    = regexp.MustCompile(`(?:\b(?:APT|APARTMENT|UNIT|SUITE|STE|ROOM|RM|FLOOR|FL)\.?|#)\s*([A-Z0-9-]+)\b`)
	reZip5    = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	reZipTail = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\s*$`)
	reLeading = regexp.MustCompile(`^\d`)
)

// fromRaw tokenizes and tags a free-form address string. zipHint fills in
// the zip when the string itself carries none.
func (s *Standardizer) fromRaw(raw, zipHint string) Parsed {
	text := strings.ToUpper(strings.TrimSpace(raw))

	// Everything after the first comma is city/state/zip trailer, not
	// street identity.
	streetPart := text
	trailer := ""
	if i := strings.Index(text, ","); i >= 0 {
		streetPart = text[:i]
		trailer = text[i+1:]
	}

	zip := ""
	if m := reZip5.FindStringSubmatch(trailer); m != nil {
		zip = m[1]
	} else if loc := reZipTail.FindStringSubmatchIndex(streetPart); loc != nil && loc[0] > 0 {
		// Zip written without a comma separator. Only a trailing group
		// counts, and never at offset zero (a bare five-digit house
		// number is not a zip).
		zip = streetPart[loc[2]:loc[3]]
		streetPart = streetPart[:loc[0]]
	}
	if zip == "" {
		zip = NormalizeZip(zipHint)
	}

	unit := ""
	unitMatches := reUnit.FindAllStringSubmatch(streetPart, -1)
	switch len(unitMatches) {
	case 0:
	case 1:
		unit = unitMatches[0][1]
		streetPart = strings.Replace(streetPart, unitMatches[0][0], " ", 1)
	default:
		// Repeated unit labels: ambiguous tagging, refuse to guess.
		return failedParse()
	}

	tokens := tokenize(streetPart)
	if len(tokens) == 0 {
		return failedParse()
	}

	hn := ""
	if reLeading.MatchString(tokens[0]) {
		hn = normalizeHouseNumber(tokens[0])
		tokens = tokens[1:]
	}

	dir := ""
	if len(tokens) > 1 && isDirection(tokens[0]) {
		dir = NormalizeDirection(tokens[0])
		tokens = tokens[1:]
	}

	st := ""
	if len(tokens) > 1 && isStreetType(tokens[len(tokens)-1]) {
		st = NormalizeStreetType(tokens[len(tokens)-1])
		tokens = tokens[:len(tokens)-1]
	}

	name := strings.Join(tokens, " ")
	if name == "" {
		// A house number with no street name never identifies a street.
		return failedParse()
	}

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

// tokenize strips punctuation to spaces and splits into fields.
func tokenize(text string) []string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}
