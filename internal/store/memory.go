package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/civitas-chicago/civitas/internal/address"
)

// Memory is an in-memory Store used by tests and offline runs. It mirrors
// the Postgres conflict semantics: unique canonical addresses, unique PINs
// with last-writer-wins association, conflict-ignore fact inserts.
type Memory struct {
	clock clockwork.Clock

	mu        sync.Mutex
	nextSK    int64
	locations map[string]*Location // keyed by canonical string
	parcels   map[string]*Parcel   // keyed by PIN
	batches   []*Batch

	violations []ViolationFact
	inspection []InspectionFact
	permits    []PermitFact
	requests   []Request311Fact
	liens      []TaxLienFact
	vacants    []VacantBuildingFact

	seen map[string]struct{} // fact natural keys, prefixed per table
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store on the real clock.
func NewMemory() *Memory {
	return NewMemoryWithClock(clockwork.NewRealClock())
}

// NewMemoryWithClock returns an empty in-memory store using clock for
// batch and parcel timestamps.
func NewMemoryWithClock(clock clockwork.Clock) *Memory {
	return &Memory{
		clock:     clock,
		locations: make(map[string]*Location),
		parcels:   make(map[string]*Parcel),
		seen:      make(map[string]struct{}),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) allocSK() int64 {
	m.nextSK++
	return m.nextSK
}

// UpsertLocation creates the location for a canonical string once; every
// later caller receives the first writer's key and leaves the row's other
// fields untouched.
func (m *Memory) UpsertLocation(_ context.Context, parsed address.Parsed, lat, lon float64) (int64, error) {
	if parsed.FullAddress == "" {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.locations[parsed.FullAddress]; ok {
		return existing.LocationSK, nil
	}

	l := &Location{
		LocationSK:       m.allocSK(),
		FullAddress:      parsed.FullAddress,
		HouseNumber:      parsed.HouseNumber,
		StreetDirection:  parsed.StreetDirection,
		StreetName:       parsed.StreetName,
		StreetType:       parsed.StreetType,
		Unit:             parsed.Unit,
		Zip:              parsed.Zip,
		SourceAddressRaw: parsed.FullAddress,
		CityID:           CityChicago,
	}
	if lat != 0 && lon != 0 {
		l.Lat, l.Lon = lat, lon
	}
	m.locations[parsed.FullAddress] = l
	return l.LocationSK, nil
}

func (m *Memory) UpsertParcel(_ context.Context, pin string, locationSK int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.parcels[pin]; ok {
		existing.LocationSK = locationSK
		existing.UpdatedAt = m.clock.Now()
		return existing.ParcelSK, nil
	}
	p := &Parcel{
		ParcelSK:   m.allocSK(),
		ParcelID:   pin,
		LocationSK: locationSK,
		UpdatedAt:  m.clock.Now(),
	}
	m.parcels[pin] = p
	return p.ParcelSK, nil
}

func (m *Memory) ParcelByPIN(_ context.Context, pin string) (Parcel, Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.parcels[pin]
	if !ok {
		return Parcel{}, Location{}, ErrNotFound
	}
	for _, l := range m.locations {
		if l.LocationSK == p.LocationSK {
			return *p, *l, nil
		}
	}
	return Parcel{}, Location{}, ErrNotFound
}

func (m *Memory) ParcelForLocation(_ context.Context, locationSK int64) (Parcel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Parcel
	for _, p := range m.parcels {
		if p.LocationSK != locationSK {
			continue
		}
		if best == nil || p.ParcelSK < best.ParcelSK {
			best = p
		}
	}
	if best == nil {
		return Parcel{}, ErrNotFound
	}
	return *best, nil
}

func (m *Memory) LocationByAddress(_ context.Context, fullAddress string) (Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.locations[fullAddress]; ok {
		return *l, nil
	}
	return Location{}, ErrNotFound
}

func (m *Memory) LocationByStreetZip(_ context.Context, houseNumber, streetName, zip string) (Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Location
	for _, l := range m.locations {
		if l.HouseNumber != houseNumber || l.StreetName != streetName || l.Zip != zip {
			continue
		}
		if best == nil || l.LocationSK < best.LocationSK {
			best = l
		}
	}
	if best == nil {
		return Location{}, ErrNotFound
	}
	return *best, nil
}

func (m *Memory) NearestLocation(_ context.Context, lat, lon, radiusMeters float64) (Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var best *Location
	bestDist := math.Inf(1)
	for _, l := range m.locations {
		if l.Lat == 0 && l.Lon == 0 {
			continue
		}
		d := haversineMeters(lat, lon, l.Lat, l.Lon)
		if d > radiusMeters {
			continue
		}
		if d < bestDist || (d == bestDist && best != nil && l.LocationSK < best.LocationSK) {
			best, bestDist = l, d
		}
	}
	if best == nil {
		return Location{}, ErrNotFound
	}
	return *best, nil
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	rad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLon := rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func (m *Memory) CreateBatch(_ context.Context, sourceDataset, filePath string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := &Batch{
		BatchID:       m.allocSK(),
		SourceDataset: sourceDataset,
		FilePath:      filePath,
		Status:        BatchRunning,
		StartedAt:     m.clock.Now(),
	}
	m.batches = append(m.batches, b)
	return b.BatchID, nil
}

func (m *Memory) FinishBatch(_ context.Context, batchID int64, status BatchStatus, rowsLoaded int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range m.batches {
		if b.BatchID == batchID {
			b.Status = status
			b.RowsLoaded = rowsLoaded
			b.CompletedAt = m.clock.Now()
			return nil
		}
	}
	return fmt.Errorf("failed to finish batch %d: %w", batchID, ErrNotFound)
}

func (m *Memory) ListBatches(_ context.Context) ([]Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Batch, 0, len(m.batches))
	for _, b := range m.batches {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].BatchID > out[j].BatchID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

// markSeen records a fact natural key; it reports false when the key was
// already present (the conflict-ignore path). Empty keys never conflict,
// matching NULL behavior under a SQL unique constraint.
func (m *Memory) markSeen(table, key string) bool {
	if key == "" {
		return true
	}
	k := table + "\x00" + key
	if _, dup := m.seen[k]; dup {
		return false
	}
	m.seen[k] = struct{}{}
	return true
}

func (m *Memory) InsertViolations(_ context.Context, rows []ViolationFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if m.markSeen("fact_violation", r.SourceID) {
			m.violations = append(m.violations, r)
		}
	}
	return nil
}

func (m *Memory) InsertInspections(_ context.Context, rows []InspectionFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if m.markSeen("fact_inspection", r.SourceID) {
			m.inspection = append(m.inspection, r)
		}
	}
	return nil
}

func (m *Memory) InsertPermits(_ context.Context, rows []PermitFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if m.markSeen("fact_permit", r.SourceID) {
			m.permits = append(m.permits, r)
		}
	}
	return nil
}

func (m *Memory) Insert311Requests(_ context.Context, rows []Request311Fact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if m.markSeen("fact_311", r.SourceID) {
			m.requests = append(m.requests, r)
		}
	}
	return nil
}

func (m *Memory) InsertTaxLiens(_ context.Context, rows []TaxLienFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		key := ""
		if r.PIN != "" && r.TaxSaleYear != nil {
			key = fmt.Sprintf("%s|%s|%d", r.PIN, r.LienType, *r.TaxSaleYear)
		}
		if m.markSeen("fact_tax_lien", key) {
			m.liens = append(m.liens, r)
		}
	}
	return nil
}

func (m *Memory) InsertVacantBuildings(_ context.Context, rows []VacantBuildingFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if m.markSeen("fact_vacant_building", r.SourceID) {
			m.vacants = append(m.vacants, r)
		}
	}
	return nil
}

// Counts and snapshots used by tests.

func (m *Memory) LocationCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locations)
}

func (m *Memory) Violations() []ViolationFact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ViolationFact(nil), m.violations...)
}

func (m *Memory) Inspections() []InspectionFact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]InspectionFact(nil), m.inspection...)
}

func (m *Memory) Permits() []PermitFact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PermitFact(nil), m.permits...)
}

func (m *Memory) Requests311() []Request311Fact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request311Fact(nil), m.requests...)
}

func (m *Memory) TaxLiens() []TaxLienFact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TaxLienFact(nil), m.liens...)
}

func (m *Memory) VacantBuildings() []VacantBuildingFact {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]VacantBuildingFact(nil), m.vacants...)
}
