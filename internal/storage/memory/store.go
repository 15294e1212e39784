// Package memory is an in-process record store for tests and local runs.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"telephone-billing/internal/bills"
	"telephone-billing/internal/calls"
	"telephone-billing/internal/records"
)

type recordKey struct {
	callID int64
	typ    calls.RecordType
}

type indexKey struct {
	number string
	role   calls.Role
}

// Store keeps calls, records and bills in maps, with per (number, role)
// record slices kept sorted by timestamp.
type Store struct {
	locks *numberLocks

	mu      sync.RWMutex
	calls   map[int64]calls.Call
	records map[recordKey]calls.Record
	index   map[indexKey][]calls.Record
	bills   map[int64]bills.Bill
	now     func() time.Time
}

var _ records.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		locks:   newNumberLocks(),
		calls:   map[int64]calls.Call{},
		records: map[recordKey]calls.Record{},
		index:   map[indexKey][]calls.Record{},
		bills:   map[int64]bills.Bill{},
		now:     time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) GetCall(ctx context.Context, id int64) (calls.Call, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.calls[id]
	return c, ok, nil
}

// ListBills serves bill reads outside of any transaction.
func (s *Store) ListBills(ctx context.Context, subscriber string, from, to time.Time) ([]bills.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bills.Bill, 0)
	for _, b := range s.bills {
		if b.Call.Source != subscriber {
			continue
		}
		if b.End.Before(from) || !b.End.Before(to) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].End.Equal(out[j].End) {
			return out[i].Call.ID < out[j].Call.ID
		}
		return out[i].End.Before(out[j].End)
	})
	return out, nil
}

func (s *Store) FindRecord(ctx context.Context, callID int64, typ calls.RecordType) (calls.Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[recordKey{callID, typ}]
	return r, ok, nil
}

// InsertCall stores a call in its own transaction, locking both numbers.
func (s *Store) InsertCall(ctx context.Context, c calls.Call) error {
	return s.WithinTx(ctx, c.Numbers(), func(ctx context.Context, tx records.Tx) error {
		return tx.InsertCall(ctx, c)
	})
}

func (s *Store) InsertBill(ctx context.Context, b bills.Bill) error {
	return errors.New("memory: bills are only written inside WithinTx")
}

// WithinTx buffers fn's writes and applies them atomically if fn succeeds.
func (s *Store) WithinTx(ctx context.Context, numbers []string, fn func(ctx context.Context, tx records.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	release := s.locks.lock(numbers)
	defer release()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Calls are keyed by id, not by number, so a writer holding other
	// numbers may have claimed the id since fn read it.
	for _, c := range tx.calls {
		if _, ok := s.calls[c.ID]; ok {
			return records.ConflictError(records.ConstraintCallID)
		}
	}
	for _, r := range tx.records {
		if _, ok := s.records[recordKey{r.CallID, r.Type}]; ok {
			return records.ConflictError(records.ConstraintCallType)
		}
	}

	for _, c := range tx.calls {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = s.now().UTC()
		}
		s.calls[c.ID] = c
	}
	for _, r := range tx.records {
		s.records[recordKey{r.CallID, r.Type}] = r
		for _, role := range calls.Roles {
			k := indexKey{r.Number(role), role}
			s.index[k] = insertSorted(s.index[k], r)
		}
	}
	for _, b := range tx.bills {
		s.bills[b.Call.ID] = b
	}
	return nil
}

func insertSorted(list []calls.Record, r calls.Record) []calls.Record {
	i := sort.Search(len(list), func(i int) bool { return !list[i].Timestamp.Before(r.Timestamp) })
	list = append(list, calls.Record{})
	copy(list[i+1:], list[i:])
	list[i] = r
	return list
}

// memTx reads committed state merged with its own pending writes.
type memTx struct {
	s       *Store
	calls   []calls.Call
	records []calls.Record
	bills   []bills.Bill
}

var _ records.Tx = (*memTx)(nil)

func (t *memTx) GetCall(ctx context.Context, id int64) (calls.Call, bool, error) {
	for _, c := range t.calls {
		if c.ID == id {
			return c, true, nil
		}
	}
	return t.s.GetCall(ctx, id)
}

func (t *memTx) InsertCall(ctx context.Context, c calls.Call) error {
	if _, ok, _ := t.GetCall(ctx, c.ID); ok {
		return records.ConflictError(records.ConstraintCallID)
	}
	t.calls = append(t.calls, c)
	return nil
}

func (t *memTx) FindRecord(ctx context.Context, callID int64, typ calls.RecordType) (calls.Record, bool, error) {
	for _, r := range t.records {
		if r.CallID == callID && r.Type == typ {
			return r, true, nil
		}
	}
	return t.s.FindRecord(ctx, callID, typ)
}

func (t *memTx) InsertRecord(ctx context.Context, r calls.Record) error {
	if _, ok, _ := t.FindRecord(ctx, r.CallID, r.Type); ok {
		return records.ConflictError(records.ConstraintCallType)
	}
	for _, role := range calls.Roles {
		if taken, _ := t.TimestampTaken(ctx, r.Number(role), role, r.Timestamp); taken {
			if role == calls.RoleSource {
				return records.RecordConflictError(records.ConstraintSourceTimestamp, r.Type)
			}
			return records.RecordConflictError(records.ConstraintDestinationTimestamp, r.Type)
		}
	}
	t.records = append(t.records, r)
	return nil
}

func (t *memTx) InsertBill(ctx context.Context, b bills.Bill) error {
	t.bills = append(t.bills, b)
	return nil
}

func (t *memTx) ListBills(ctx context.Context, subscriber string, from, to time.Time) ([]bills.Bill, error) {
	out, err := t.s.ListBills(ctx, subscriber, from, to)
	if err != nil {
		return nil, err
	}
	for _, b := range t.bills {
		if b.Call.Source == subscriber && !b.End.Before(from) && b.End.Before(to) {
			out = append(out, b)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].End.Before(out[j].End) })
	return out, nil
}

// history returns the (number, role) records ordered by timestamp.
func (t *memTx) history(number string, role calls.Role) []calls.Record {
	t.s.mu.RLock()
	out := append([]calls.Record(nil), t.s.index[indexKey{number, role}]...)
	t.s.mu.RUnlock()
	for _, r := range t.records {
		if r.Number(role) == number {
			out = insertSorted(out, r)
		}
	}
	return out
}

func (t *memTx) LastRecord(ctx context.Context, number string, role calls.Role) (calls.Record, bool, error) {
	h := t.history(number, role)
	if len(h) == 0 {
		return calls.Record{}, false, nil
	}
	return h[len(h)-1], true, nil
}

func (t *memTx) RecordBefore(ctx context.Context, number string, role calls.Role, ts time.Time) (calls.Record, bool, error) {
	h := t.history(number, role)
	i := sort.Search(len(h), func(i int) bool { return !h[i].Timestamp.Before(ts) })
	if i == 0 {
		return calls.Record{}, false, nil
	}
	return h[i-1], true, nil
}

func (t *memTx) RecordAtOrAfter(ctx context.Context, number string, role calls.Role, ts time.Time) (calls.Record, bool, error) {
	h := t.history(number, role)
	i := sort.Search(len(h), func(i int) bool { return !h[i].Timestamp.Before(ts) })
	if i == len(h) {
		return calls.Record{}, false, nil
	}
	return h[i], true, nil
}

func (t *memTx) TimestampTaken(ctx context.Context, number string, role calls.Role, ts time.Time) (bool, error) {
	r, ok, err := t.RecordAtOrAfter(ctx, number, role, ts)
	if err != nil || !ok {
		return false, err
	}
	return r.Timestamp.Equal(ts), nil
}
