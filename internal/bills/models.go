package bills

import (
	"time"

	"telephone-billing/internal/calls"
	"telephone-billing/internal/tariff"

	"github.com/shopspring/decimal"
)

// Bill is the priced summary of a completed call. It is derived from the
// call's two records and created exactly once, when the END record is stored.
type Bill struct {
	Call  calls.Call      `json:"call"`
	Price decimal.Decimal `json:"price"`
	Start time.Time       `json:"start"`
	End   time.Time       `json:"end"`

	CreatedAt time.Time `json:"created_at"`
}

// Duration renders the call length as {h}h{m}m{s}s.
func (b Bill) Duration() string { return tariff.Duration(b.Start, b.End) }

func (b Bill) String() string {
	return "call_id: " + b.Call.String() + " - price: " + b.Price.StringFixed(2)
}

// Period is a calendar month.
type Period struct {
	Month time.Month
	Year  int
}

// Bounds returns the [from, to) instants of the period in loc.
func (p Period) Bounds(loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	from := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, loc)
	return from, from.AddDate(0, 1, 0)
}

// String renders the period as MM/YYYY.
func (p Period) String() string {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC).Format("01/2006")
}
