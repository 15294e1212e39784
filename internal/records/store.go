package records

import (
	"context"
	"time"

	"telephone-billing/internal/bills"
	"telephone-billing/internal/calls"
)

// Store is the durable record history.
//
// WithinTx runs fn in a transaction holding an exclusive lock on every
// number in numbers until it commits or rolls back. Writes made through tx
// become visible atomically; an error from fn discards them.
type Store interface {
	GetCall(ctx context.Context, id int64) (calls.Call, bool, error)
	WithinTx(ctx context.Context, numbers []string, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// Tx is the view of the store inside WithinTx.
//
// Lookups are per (number, role): a number is indexed separately as the
// source and as the destination of the calls it takes part in.
type Tx interface {
	calls.Repository
	bills.Repository

	InsertRecord(ctx context.Context, r calls.Record) error

	// LastRecord returns the number's record with the greatest timestamp.
	LastRecord(ctx context.Context, number string, role calls.Role) (calls.Record, bool, error)
	// RecordBefore returns the latest record strictly before ts.
	RecordBefore(ctx context.Context, number string, role calls.Role, ts time.Time) (calls.Record, bool, error)
	// RecordAtOrAfter returns the earliest record at or after ts.
	RecordAtOrAfter(ctx context.Context, number string, role calls.Role, ts time.Time) (calls.Record, bool, error)
	TimestampTaken(ctx context.Context, number string, role calls.Role, ts time.Time) (bool, error)
}
