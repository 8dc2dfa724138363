// Package resolve implements the tiered runtime lookup that maps a
// user-supplied address and/or PIN onto a canonical location. Tiers are
// evaluated in strict order and short-circuit on the first match; "no
// match" is a normal outcome, never an error.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/store"
)

// MatchConfidence identifies which tier produced a result.
type MatchConfidence string

const (
	MatchExactPIN     MatchConfidence = "EXACT_PIN"
	MatchExactAddress MatchConfidence = "EXACT_ADDRESS"
	MatchStreetZip    MatchConfidence = "STREET_ZIP"
	MatchGeospatial   MatchConfidence = "GEOSPATIAL"
	MatchNone         MatchConfidence = "NO_MATCH"
)

const (
	warnUnparseable = "Address could not be parsed. Manual verification recommended."
	warnUncertain   = "Address match uncertain – manual verification recommended."
)

// DefaultRadiusMeters bounds the geospatial fallback search.
const DefaultRadiusMeters = 150.0

// Query is one resolution request. Lat/Lon are optional caller-supplied
// coordinates (from a geocoding collaborator); address parsing alone never
// produces them, so the geospatial tier only fires when they are set.
type Query struct {
	Address string
	PIN     string
	Lat     float64
	Lon     float64
}

// Result is the outcome of a lookup, matched or not.
type Result struct {
	Resolved        bool            `json:"resolved"`
	LocationSK      int64           `json:"location_sk,omitempty"`
	FullAddress     string          `json:"full_address,omitempty"`
	HouseNumber     string          `json:"house_number,omitempty"`
	StreetDirection string          `json:"street_direction,omitempty"`
	StreetName      string          `json:"street_name,omitempty"`
	StreetType      string          `json:"street_type,omitempty"`
	Zip             string          `json:"zip,omitempty"`
	Lat             float64         `json:"lat,omitempty"`
	Lon             float64         `json:"lon,omitempty"`
	ParcelID        string          `json:"parcel_id,omitempty"`
	MatchConfidence MatchConfidence `json:"match_confidence"`
	Warning         string          `json:"warning,omitempty"`
}

// Resolver answers lookups against the canonical store. It performs only
// reads and is safe for concurrent use by many request handlers.
type Resolver struct {
	store        store.Store
	std          *address.Standardizer
	radiusMeters float64
}

// New returns a Resolver over st. radiusMeters bounds the geospatial tier;
// pass 0 for the default.
func New(st store.Store, std *address.Standardizer, radiusMeters float64) *Resolver {
	if radiusMeters <= 0 {
		radiusMeters = DefaultRadiusMeters
	}
	return &Resolver{store: st, std: std, radiusMeters: radiusMeters}
}

// matcher is one resolution tier: it returns a terminal result or nil to
// continue with the next tier.
type matcher func(ctx context.Context, q Query, parsed address.Parsed) (*Result, error)

// Resolve runs the tier cascade: EXACT_PIN, then address parsing, then
// EXACT_ADDRESS, STREET_ZIP and GEOSPATIAL.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Result, error) {
	// Tier 1 bypasses address parsing entirely.
	res, err := r.matchExactPIN(ctx, q)
	if err != nil {
		return Result{}, err
	}
	if res != nil {
		return *res, nil
	}

	parsed := r.std.Parse(address.Input{RawAddress: q.Address})
	if parsed.FullAddress == "" {
		return Result{MatchConfidence: MatchNone, Warning: warnUnparseable}, nil
	}

	tiers := []matcher{r.matchExactAddress, r.matchStreetZip, r.matchGeospatial}
	for _, tier := range tiers {
		res, err := tier(ctx, q, parsed)
		if err != nil {
			return Result{}, err
		}
		if res != nil {
			return *res, nil
		}
	}

	return Result{MatchConfidence: MatchNone, Warning: warnUncertain}, nil
}

func (r *Resolver) matchExactPIN(ctx context.Context, q Query) (*Result, error) {
	if q.PIN == "" {
		return nil, nil
	}
	pin := address.NormalizePin(q.PIN)
	if pin == "" {
		return nil, nil
	}
	parcel, loc, err := r.store.ParcelByPIN(ctx, pin)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve PIN %s: %w", pin, err)
	}
	res := buildResult(loc, MatchExactPIN)
	res.ParcelID = parcel.ParcelID
	return &res, nil
}

func (r *Resolver) matchExactAddress(ctx context.Context, _ Query, parsed address.Parsed) (*Result, error) {
	loc, err := r.store.LocationByAddress(ctx, parsed.FullAddress)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.withParcel(ctx, buildResult(loc, MatchExactAddress))
}

func (r *Resolver) matchStreetZip(ctx context.Context, _ Query, parsed address.Parsed) (*Result, error) {
	if parsed.HouseNumber == "" || parsed.StreetName == "" || parsed.Zip == "" {
		return nil, nil
	}
	loc, err := r.store.LocationByStreetZip(ctx, parsed.HouseNumber, parsed.StreetName, parsed.Zip)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.withParcel(ctx, buildResult(loc, MatchStreetZip))
}

func (r *Resolver) matchGeospatial(ctx context.Context, q Query, _ address.Parsed) (*Result, error) {
	if q.Lat == 0 || q.Lon == 0 {
		return nil, nil
	}
	loc, err := r.store.NearestLocation(ctx, q.Lat, q.Lon, r.radiusMeters)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.withParcel(ctx, buildResult(loc, MatchGeospatial))
}

// withParcel attaches the location's parcel id when one exists.
func (r *Resolver) withParcel(ctx context.Context, res Result) (*Result, error) {
	parcel, err := r.store.ParcelForLocation(ctx, res.LocationSK)
	if err == nil {
		res.ParcelID = parcel.ParcelID
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return &res, nil
}

func buildResult(loc store.Location, confidence MatchConfidence) Result {
	return Result{
		Resolved:        true,
		LocationSK:      loc.LocationSK,
		FullAddress:     loc.FullAddress,
		HouseNumber:     loc.HouseNumber,
		StreetDirection: loc.StreetDirection,
		StreetName:      loc.StreetName,
		StreetType:      loc.StreetType,
		Zip:             loc.Zip,
		Lat:             loc.Lat,
		Lon:             loc.Lon,
		MatchConfidence: confidence,
	}
}
