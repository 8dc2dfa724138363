package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/store"
)

// seedStore loads a small canonical dimension:
//
//	loc1 "123 N MAIN ST, CHICAGO IL 60601" with coordinates, PIN attached
//	loc2 "456 W DIVISION, CHICAGO IL 60622" (no street type, no coords)
func seedStore(t *testing.T) (*store.Memory, int64, int64) {
	t.Helper()
	ctx := context.Background()
	m := store.NewMemory()
	std := address.NewStandardizer()

	loc1, err := m.UpsertLocation(ctx,
		std.Parse(address.Input{RawAddress: "123 N Main St, Chicago IL 60601"}),
		41.8838, -87.6278)
	require.NoError(t, err)
	_, err = m.UpsertParcel(ctx, "14081200180000", loc1)
	require.NoError(t, err)

	loc2, err := m.UpsertLocation(ctx, std.Parse(address.Input{
		StreetNumber:    "456",
		StreetDirection: "W",
		StreetName:      "DIVISION",
		Zip:             "60622",
	}), 0, 0)
	require.NoError(t, err)

	return m, loc1, loc2
}

func newResolver(m *store.Memory) *Resolver {
	return New(m, address.NewStandardizer(), 0)
}

func TestResolveExactPIN(t *testing.T) {
	m, loc1, _ := seedStore(t)
	r := newResolver(m)

	res, err := r.Resolve(context.Background(), Query{PIN: "14-08-120-018-0000"})
	require.NoError(t, err)

	assert.True(t, res.Resolved)
	assert.Equal(t, MatchExactPIN, res.MatchConfidence)
	assert.Equal(t, loc1, res.LocationSK)
	assert.Equal(t, "14081200180000", res.ParcelID)
	assert.Empty(t, res.Warning)
}

func TestResolvePINBeatsAddress(t *testing.T) {
	m, loc1, _ := seedStore(t)
	r := newResolver(m)

	// The PIN wins even when the address would match another location.
	res, err := r.Resolve(context.Background(), Query{
		Address: "456 W Division, Chicago IL 60622",
		PIN:     "14081200180000",
	})
	require.NoError(t, err)
	assert.Equal(t, MatchExactPIN, res.MatchConfidence)
	assert.Equal(t, loc1, res.LocationSK)
}

func TestResolveUnknownPINFallsThrough(t *testing.T) {
	m, loc1, _ := seedStore(t)
	r := newResolver(m)

	res, err := r.Resolve(context.Background(), Query{
		Address: "123 N Main St, Chicago IL 60601",
		PIN:     "99999999999999",
	})
	require.NoError(t, err)
	assert.Equal(t, MatchExactAddress, res.MatchConfidence)
	assert.Equal(t, loc1, res.LocationSK)
}

func TestResolveExactAddress(t *testing.T) {
	m, loc1, _ := seedStore(t)
	r := newResolver(m)

	res, err := r.Resolve(context.Background(), Query{Address: "123 North Main Street, Chicago IL 60601"})
	require.NoError(t, err)

	assert.True(t, res.Resolved)
	assert.Equal(t, MatchExactAddress, res.MatchConfidence)
	assert.Equal(t, loc1, res.LocationSK)
	assert.Equal(t, "14081200180000", res.ParcelID)
}

func TestResolveStreetZip(t *testing.T) {
	m, _, loc2 := seedStore(t)
	r := newResolver(m)

	// The stored row has no street type, so the canonical strings differ
	// and only the house/street/zip triple matches.
	res, err := r.Resolve(context.Background(), Query{Address: "456 W Division St, Chicago IL 60622"})
	require.NoError(t, err)

	assert.True(t, res.Resolved)
	assert.Equal(t, MatchStreetZip, res.MatchConfidence)
	assert.Equal(t, loc2, res.LocationSK)
}

func TestResolveGeospatial(t *testing.T) {
	m, loc1, _ := seedStore(t)
	r := newResolver(m)

	res, err := r.Resolve(context.Background(), Query{
		Address: "999 W Nowhere Ave",
		Lat:     41.8840,
		Lon:     -87.6280,
	})
	require.NoError(t, err)

	assert.True(t, res.Resolved)
	assert.Equal(t, MatchGeospatial, res.MatchConfidence)
	assert.Equal(t, loc1, res.LocationSK)
}

func TestResolveGeospatialNeedsCoordinates(t *testing.T) {
	m, _, _ := seedStore(t)
	r := newResolver(m)

	res, err := r.Resolve(context.Background(), Query{Address: "999 W Nowhere Ave"})
	require.NoError(t, err)

	assert.False(t, res.Resolved)
	assert.Equal(t, MatchNone, res.MatchConfidence)
	assert.Equal(t, warnUncertain, res.Warning)
}

func TestResolveUnparseable(t *testing.T) {
	m, _, _ := seedStore(t)
	r := newResolver(m)

	res, err := r.Resolve(context.Background(), Query{Address: "???"})
	require.NoError(t, err)

	assert.False(t, res.Resolved)
	assert.Equal(t, MatchNone, res.MatchConfidence)
	assert.Equal(t, warnUnparseable, res.Warning)
}

func TestResolveOutsideRadius(t *testing.T) {
	m, _, _ := seedStore(t)
	r := newResolver(m)

	res, err := r.Resolve(context.Background(), Query{
		Address: "999 W Nowhere Ave",
		Lat:     42.5,
		Lon:     -88.5,
	})
	require.NoError(t, err)
	assert.Equal(t, MatchNone, res.MatchConfidence)
}
