package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"telephone-billing/internal/apperr"
	"telephone-billing/internal/bills"
	"telephone-billing/internal/calls"
)

// Submission is a start or end event as reported by the telecom system.
// Source and Destination are only read for starts.
type Submission struct {
	Type        calls.RecordType
	CallID      int64
	Timestamp   time.Time
	Source      string
	Destination string
}

// Observer is notified of submission outcomes. Implementations must be safe
// for concurrent use.
type Observer interface {
	RecordSubmitted(typ calls.RecordType, outcome string, elapsed time.Duration)
	BillCreated(b bills.Bill)
}

// Outcomes reported to Observer.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Service struct {
	store    Store
	calls    *calls.Registry
	bills    *bills.Registry
	observer Observer
	now      func() time.Time
}

func NewService(store Store, callReg *calls.Registry, billReg *bills.Registry) *Service {
	return &Service{store: store, calls: callReg, bills: billReg, now: time.Now}
}

// WithObserver sets the outcome observer.
func (s *Service) WithObserver(o Observer) *Service {
	out := *s
	out.observer = o
	return &out
}

// Submit validates and stores one record. Validation is fail-fast in a fixed
// order; the first violated rule is returned as an *apperr.Error and nothing
// is written. Completing a call also stores its bill in the same transaction.
func (s *Service) Submit(ctx context.Context, sub Submission) (calls.Record, error) {
	started := s.now()
	// Durable stores keep microseconds; compare what will be stored.
	sub.Timestamp = sub.Timestamp.Truncate(time.Microsecond)
	rec, err := s.submit(ctx, sub)
	s.observe(sub.Type, err, s.now().Sub(started))
	return rec, err
}

func (s *Service) submit(ctx context.Context, sub Submission) (calls.Record, error) {
	switch sub.Type {
	case calls.RecordTypeStart:
		var rec calls.Record
		err := s.store.WithinTx(ctx, []string{sub.Source, sub.Destination}, func(ctx context.Context, tx Tx) error {
			var err error
			rec, err = s.start(ctx, tx, sub)
			return err
		})
		return rec, err
	case calls.RecordTypeEnd:
		return s.end(ctx, sub)
	default:
		return calls.Record{}, apperr.New(ErrInvalidType, "type", fmt.Sprintf("%q is not a valid choice.", string(sub.Type)))
	}
}

func (s *Service) start(ctx context.Context, tx Tx, sub Submission) (calls.Record, error) {
	call, err := s.calls.WithRepository(tx).Create(ctx, sub.CallID, sub.Source, sub.Destination)
	if err != nil {
		return calls.Record{}, err
	}
	rec := calls.Record{
		CallID:      call.ID,
		Type:        calls.RecordTypeStart,
		Timestamp:   sub.Timestamp,
		Source:      call.Source,
		Destination: call.Destination,
	}
	if err := checkHistory(ctx, tx, rec); err != nil {
		return calls.Record{}, err
	}
	if err := tx.InsertRecord(ctx, rec); err != nil {
		return calls.Record{}, err
	}
	return rec, nil
}

func (s *Service) end(ctx context.Context, sub Submission) (calls.Record, error) {
	if sub.CallID <= 0 {
		return calls.Record{}, unknownCallError()
	}
	// Calls are immutable, so their numbers can be read before locking.
	call, ok, err := s.store.GetCall(ctx, sub.CallID)
	if err != nil {
		return calls.Record{}, fmt.Errorf("records: lookup call %d: %w", sub.CallID, err)
	}
	if !ok {
		return calls.Record{}, unknownCallError()
	}

	rec := calls.Record{
		CallID:      call.ID,
		Type:        calls.RecordTypeEnd,
		Timestamp:   sub.Timestamp,
		Source:      call.Source,
		Destination: call.Destination,
	}
	var bill bills.Bill
	err = s.store.WithinTx(ctx, call.Numbers(), func(ctx context.Context, tx Tx) error {
		start, ok, err := tx.FindRecord(ctx, call.ID, calls.RecordTypeStart)
		if err != nil {
			return err
		}
		if !ok {
			return missingStartError()
		}
		if _, ended, err := tx.FindRecord(ctx, call.ID, calls.RecordTypeEnd); err != nil {
			return err
		} else if ended {
			return callAlreadyEndedError()
		}
		if !rec.Timestamp.After(start.Timestamp) {
			return nonIncreasingTimestampError()
		}
		if err := checkHistory(ctx, tx, rec); err != nil {
			return err
		}
		if err := tx.InsertRecord(ctx, rec); err != nil {
			return err
		}
		bill, err = s.bills.WithRepository(tx).OnCallCompleted(ctx, call)
		return err
	})
	if err != nil {
		return calls.Record{}, err
	}

	s.bills.Invalidate(ctx, bill)
	if s.observer != nil {
		s.observer.BillCreated(bill)
	}
	return rec, nil
}

// checkHistory runs the per-number checks against the stored history:
// timestamp uniqueness, open calls, then interval overlap. Each check visits
// the source role before the destination role.
func checkHistory(ctx context.Context, tx Tx, rec calls.Record) error {
	for _, role := range calls.Roles {
		taken, err := tx.TimestampTaken(ctx, rec.Number(role), role, rec.Timestamp)
		if err != nil {
			return err
		}
		if taken {
			return duplicateTimestampError(rec.Type, role)
		}
	}

	if rec.Type == calls.RecordTypeStart {
		for _, role := range calls.Roles {
			last, ok, err := tx.LastRecord(ctx, rec.Number(role), role)
			if err != nil {
				return err
			}
			if ok && last.Type == calls.RecordTypeStart {
				return alreadyInCallError(role)
			}
		}
	}

	for _, role := range calls.Roles {
		number := rec.Number(role)
		prev, hasPrev, err := tx.RecordBefore(ctx, number, role, rec.Timestamp)
		if err != nil {
			return err
		}
		if !hasPrev {
			continue
		}
		next, hasNext, err := tx.RecordAtOrAfter(ctx, number, role, rec.Timestamp)
		if err != nil {
			return err
		}
		if prev.Type == calls.RecordTypeStart && hasNext && next.Type == calls.RecordTypeEnd {
			return overlappingIntervalError(role)
		}
		if prev.Type == calls.RecordTypeEnd && rec.Type == calls.RecordTypeEnd {
			return endOverlapsPriorEndError(role)
		}
	}
	return nil
}

func (s *Service) observe(typ calls.RecordType, err error, elapsed time.Duration) {
	if s.observer == nil {
		return
	}
	outcome := OutcomeAccepted
	if err != nil {
		outcome = OutcomeFailed
		var ae *apperr.Error
		if errors.As(err, &ae) {
			outcome = OutcomeRejected
		}
	}
	s.observer.RecordSubmitted(typ, outcome, elapsed)
}
