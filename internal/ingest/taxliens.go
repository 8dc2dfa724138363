package ingest

import (
	"context"
	"errors"

	"github.com/civitas-chicago/civitas/internal/address"
	"github.com/civitas-chicago/civitas/internal/batch"
	"github.com/civitas-chicago/civitas/internal/store"
)

const sourceTaxLiens = "cook_county_tax_liens"

// Cook County publishes the annual and scavenger tax-sale results as two
// separate Socrata datasets with overlapping but distinct column sets.
var taxLienFeeds = []taxLienFeed{
	{
		lienType: "ANNUAL",
		endpoint: "https://datacatalog.cookcountyil.gov/resource/55ju-2fs9.csv",
		cols: taxLienColumns{
			year:      "TAX_SALE_YEAR",
			pin:       "PIN",
			sold:      "SOLD_AT_SALE",
			taxAmount: "TAX_AMOUNT_OFFERED",
			penalty:   "PENALTY_AMOUNT_OFFERED",
			total:     "TOTAL_TAX_AND_PENALTY_AMOUNT_OFFERED",
			forfeited: "TOTAL_AMOUNT_FORFEITED",
		},
	},
	{
		lienType: "SCAVENGER",
		endpoint: "https://datacatalog.cookcountyil.gov/resource/ydgz-vkrp.csv",
		cols: taxLienColumns{
			year:     "TAX_SALE_YEAR",
			pin:      "PIN",
			sold:     "SOLD_AT_SALE",
			total:    "TOTAL_AMOUNT_PAID",
			buyer:    "BUYER_NAME",
			fromYear: "FROM_YEAR",
			toYear:   "TO_YEAR",
		},
	},
}

type taxLienFeed struct {
	lienType string
	endpoint string
	cols     taxLienColumns
}

// taxLienColumns names each logical field's source column. Empty means the
// feed does not publish that field.
type taxLienColumns struct {
	year      string
	pin       string
	sold      string
	taxAmount string
	penalty   string
	total     string
	forfeited string
	buyer     string
	fromYear  string
	toYear    string
}

// RunTaxLiens ingests both Cook County tax-sale feeds under a single
// batch. Liens are keyed by PIN rather than address: rows whose PIN has
// never been seen by another dataset still load, with zero parcel and
// location keys, so the lien is visible the moment a permit or similar
// record later introduces the parcel.
func (p *Pipeline) RunTaxLiens(ctx context.Context) error {
	t, err := batch.Open(ctx, p.Store, p.Log, sourceTaxLiens, "")
	if err != nil {
		return err
	}
	defer t.Close(ctx)

	skipped := 0
	buf := make([]store.TaxLienFact, 0, p.batchSize())

	for _, feed := range taxLienFeeds {
		p.Log.Info("fetching tax liens", "lien_type", feed.lienType)
		err := p.Socrata.FetchCSV(ctx, feed.endpoint, func(rows []Record) error {
			for _, row := range rows {
				pin := address.NormalizePin(row.Get(feed.cols.pin))
				if pin == "" {
					skipped++
					continue
				}

				var parcelSK, locSK int64
				parcel, _, err := p.Store.ParcelByPIN(ctx, pin)
				switch {
				case err == nil:
					parcelSK = parcel.ParcelSK
					locSK = parcel.LocationSK
				case errors.Is(err, store.ErrNotFound):
				default:
					return err
				}

				buf = append(buf, store.TaxLienFact{
					ParcelSK:        parcelSK,
					LocationSK:      locSK,
					PIN:             pin,
					TaxSaleYear:     optIntPtr(row, feed.cols.year),
					LienType:        feed.lienType,
					FromYear:        optIntPtr(row, feed.cols.fromYear),
					ToYear:          optIntPtr(row, feed.cols.toYear),
					SoldAtSale:      optBoolFlag(row, feed.cols.sold),
					TaxAmount:       optFloatPtr(row, feed.cols.taxAmount),
					PenaltyAmount:   optFloatPtr(row, feed.cols.penalty),
					TotalAmount:     optFloatPtr(row, feed.cols.total),
					ForfeitedAmount: optFloatPtr(row, feed.cols.forfeited),
					BuyerName:       optStr(row, feed.cols.buyer),
					SourceDataset:   sourceTaxLiens,
					BatchID:         t.BatchID(),
				})

				if len(buf) >= p.batchSize() {
					flushFacts(ctx, p.Log, t, buf, p.Store.InsertTaxLiens)
					buf = buf[:0]
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	flushFacts(ctx, p.Log, t, buf, p.Store.InsertTaxLiens)

	if err := t.Complete(ctx); err != nil {
		return err
	}
	p.Log.Info("tax liens complete", "loaded", t.Committed(), "skipped", skipped)
	return nil
}

// opt* read a Record column that may not exist in a given feed.

func optStr(row Record, col string) string {
	if col == "" {
		return ""
	}
	return row.Get(col)
}

func optIntPtr(row Record, col string) *int {
	if col == "" {
		return nil
	}
	return parseIntPtr(row.Get(col))
}

func optFloatPtr(row Record, col string) *float64 {
	if col == "" {
		return nil
	}
	return parseFloatPtr(row.Get(col))
}

func optBoolFlag(row Record, col string) *bool {
	if col == "" {
		return nil
	}
	return parseBoolFlag(row.Get(col))
}
