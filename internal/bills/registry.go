package bills

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"telephone-billing/internal/calls"
	"telephone-billing/internal/tariff"
)

// ErrIncompleteCall means a bill was requested for a call missing one of its
// records. Record validation makes this unreachable; seeing it is a bug.
var ErrIncompleteCall = errors.New("bills: call has no start or end record")

// Repository abstracts bill persistence.
// Implementations may be a plain store or a transaction scope.
type Repository interface {
	FindRecord(ctx context.Context, callID int64, typ calls.RecordType) (calls.Record, bool, error)
	InsertBill(ctx context.Context, b Bill) error
	// ListBills returns bills of calls placed by subscriber whose end falls
	// in [from, to), ordered by end ascending.
	ListBills(ctx context.Context, subscriber string, from, to time.Time) ([]Bill, error)
}

// Cache stores bill lists of closed periods. The registry never fails a
// read because of the cache; errors count as misses.
//
// Every (subscriber, period) has a generation that Invalidate advances.
// Get reports the current generation on a miss, and Set stores the list
// only if the generation is still the one Get reported, so a list read
// before a bill committed is never cached after its invalidation.
type Cache interface {
	Get(ctx context.Context, subscriber string, p Period) (list []Bill, gen int64, ok bool, err error)
	Set(ctx context.Context, subscriber string, p Period, gen int64, bills []Bill) error
	Invalidate(ctx context.Context, subscriber string, p Period) error
}

// Registry materializes bills for completed calls and serves them by period.
type Registry struct {
	repo   Repository
	engine *tariff.Engine
	cache  Cache
	clock  func() time.Time
}

func NewRegistry(repo Repository, engine *tariff.Engine) *Registry {
	return &Registry{repo: repo, engine: engine, clock: time.Now}
}

// WithCache enables the bill list cache.
func (r *Registry) WithCache(c Cache) *Registry {
	out := *r
	out.cache = c
	return &out
}

// WithRepository returns a registry bound to repo, typically an open transaction.
func (r *Registry) WithRepository(repo Repository) *Registry {
	out := *r
	out.repo = repo
	return &out
}

// Location is the local time reference periods are computed in.
func (r *Registry) Location() *time.Location { return r.engine.Config().Location }

// OnCallCompleted prices call from its records and stores the bill.
func (r *Registry) OnCallCompleted(ctx context.Context, call calls.Call) (Bill, error) {
	start, ok, err := r.repo.FindRecord(ctx, call.ID, calls.RecordTypeStart)
	if err != nil {
		return Bill{}, err
	}
	if !ok {
		return Bill{}, fmt.Errorf("%w: call %d start", ErrIncompleteCall, call.ID)
	}
	end, ok, err := r.repo.FindRecord(ctx, call.ID, calls.RecordTypeEnd)
	if err != nil {
		return Bill{}, err
	}
	if !ok {
		return Bill{}, fmt.Errorf("%w: call %d end", ErrIncompleteCall, call.ID)
	}

	q, err := r.engine.Quote(start.Timestamp, end.Timestamp)
	if err != nil {
		return Bill{}, fmt.Errorf("bills: price call %d: %w", call.ID, err)
	}

	b := Bill{
		Call:      call,
		Price:     q.Price,
		Start:     start.Timestamp,
		End:       end.Timestamp,
		CreatedAt: r.clock().UTC(),
	}
	if err := r.repo.InsertBill(ctx, b); err != nil {
		return Bill{}, err
	}
	return b, nil
}

// PeriodOf returns the period a bill is reported in.
func (r *Registry) PeriodOf(b Bill) Period {
	end := b.End.In(r.Location())
	return Period{Month: end.Month(), Year: end.Year()}
}

// Invalidate drops the cached bill list b belongs to. Call it after the
// transaction that stored b has committed.
func (r *Registry) Invalidate(ctx context.Context, b Bill) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Invalidate(ctx, b.Call.Source, r.PeriodOf(b)); err != nil {
		slog.Default().Warn("bill cache invalidation failed", "subscriber", b.Call.Source, "err", err)
	}
}

// List returns the subscriber's bills ending within p.
func (r *Registry) List(ctx context.Context, subscriber string, p Period) ([]Bill, error) {
	cacheable := false
	var gen int64
	if r.cache != nil {
		cached, g, ok, err := r.cache.Get(ctx, subscriber, p)
		switch {
		case err != nil:
			slog.Default().Warn("bill cache read failed", "subscriber", subscriber, "err", err)
		case ok:
			return cached, nil
		default:
			cacheable, gen = true, g
		}
	}

	from, to := p.Bounds(r.Location())
	out, err := r.repo.ListBills(ctx, subscriber, from, to)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := r.cache.Set(ctx, subscriber, p, gen, out); err != nil {
			slog.Default().Warn("bill cache write failed", "subscriber", subscriber, "err", err)
		}
	}
	return out, nil
}
