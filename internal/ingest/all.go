package ingest

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Sources names the local CSV extracts for the file-backed datasets. The
// tax-lien and vacant-building feeds come straight from Socrata and need
// no path.
type Sources struct {
	ViolationsCSV  string
	InspectionsCSV string
	PermitsCSV     string
	Requests311CSV string
}

// RunAll ingests every dataset. The address-bearing feeds run
// concurrently; the store's upsert contract makes that safe, and one
// pipeline's failure never cancels the others, it only fails its own
// batch. Tax liens run afterwards, even when an earlier pipeline
// failed, so permit-introduced parcels are visible to the PIN lookup.
func (p *Pipeline) RunAll(ctx context.Context, src Sources) error {
	var g errgroup.Group
	g.Go(func() error { return p.RunViolations(ctx, src.ViolationsCSV) })
	g.Go(func() error { return p.RunInspections(ctx, src.InspectionsCSV) })
	g.Go(func() error { return p.RunPermits(ctx, src.PermitsCSV) })
	g.Go(func() error { return p.Run311(ctx, src.Requests311CSV) })
	g.Go(func() error { return p.RunVacantBuildings(ctx) })
	err := g.Wait()
	return errors.Join(err, p.RunTaxLiens(ctx))
}
