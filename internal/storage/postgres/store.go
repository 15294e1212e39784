// Package postgres is the durable record store.
//
// Transactions serialize writers per phone number with transaction-scoped
// advisory locks; unique constraints back every uniqueness check.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"telephone-billing/internal/bills"
	"telephone-billing/internal/calls"
	"telephone-billing/internal/records"
	"telephone-billing/pkg/utils"
)

// txAttempts bounds retries of serialization failures and deadlocks.
const txAttempts = 3

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	queries
	db *sql.DB
}

var _ records.Store = (*Store)(nil)

func New(db *sql.DB) *Store {
	return &Store{queries: queries{q: db}, db: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return utils.HealthCheck(ctx, s.db, 2*time.Second)
}

func (s *Store) WithinTx(ctx context.Context, numbers []string, fn func(ctx context.Context, tx records.Tx) error) error {
	keys := append([]string(nil), numbers...)
	sort.Strings(keys)

	return utils.WithTxRetry(ctx, s.db, nil, txAttempts, func(ctx context.Context, tx *sql.Tx) error {
		for i, k := range keys {
			if i > 0 && k == keys[i-1] {
				continue
			}
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, k); err != nil {
				return fmt.Errorf("postgres: lock number: %w", err)
			}
		}
		return fn(ctx, &queries{q: tx})
	})
}

// queries implements records.Tx over a *sql.DB or an open *sql.Tx.
type queries struct {
	q querier
}

const callColumns = `id, source, destination, created_at`

func (s *queries) GetCall(ctx context.Context, id int64) (calls.Call, bool, error) {
	var c calls.Call
	err := s.q.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, id).
		Scan(&c.ID, &c.Source, &c.Destination, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return calls.Call{}, false, nil
	}
	if err != nil {
		return calls.Call{}, false, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, true, nil
}

func (s *queries) InsertCall(ctx context.Context, c calls.Call) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO calls (id, source, destination) VALUES ($1, $2, $3)`,
		c.ID, c.Source, c.Destination)
	return mapConflict(err)
}

const recordColumns = `call_id, type, "timestamp", source, destination`

func scanRecord(row interface{ Scan(...any) error }) (calls.Record, bool, error) {
	var r calls.Record
	err := row.Scan(&r.CallID, &r.Type, &r.Timestamp, &r.Source, &r.Destination)
	if errors.Is(err, sql.ErrNoRows) {
		return calls.Record{}, false, nil
	}
	if err != nil {
		return calls.Record{}, false, err
	}
	r.Timestamp = r.Timestamp.UTC()
	return r, true, nil
}

func (s *queries) FindRecord(ctx context.Context, callID int64, typ calls.RecordType) (calls.Record, bool, error) {
	return scanRecord(s.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE call_id = $1 AND type = $2`, callID, string(typ)))
}

func (s *queries) InsertRecord(ctx context.Context, r calls.Record) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO records (call_id, type, "timestamp", source, destination) VALUES ($1, $2, $3, $4, $5)`,
		r.CallID, string(r.Type), r.Timestamp.UTC(), r.Source, r.Destination)
	if name, ok := utils.UniqueViolation(err); ok {
		if mapped := records.RecordConflictError(name, r.Type); mapped != nil {
			return mapped
		}
	}
	return err
}

// roleColumn maps a role to its indexed column. Only these two literals
// ever reach the query text.
func roleColumn(role calls.Role) string {
	if role == calls.RoleDestination {
		return "destination"
	}
	return "source"
}

func (s *queries) LastRecord(ctx context.Context, number string, role calls.Role) (calls.Record, bool, error) {
	return scanRecord(s.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+roleColumn(role)+` = $1 ORDER BY "timestamp" DESC LIMIT 1`,
		number))
}

func (s *queries) RecordBefore(ctx context.Context, number string, role calls.Role, ts time.Time) (calls.Record, bool, error) {
	return scanRecord(s.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+roleColumn(role)+` = $1 AND "timestamp" < $2 ORDER BY "timestamp" DESC LIMIT 1`,
		number, ts.UTC()))
}

func (s *queries) RecordAtOrAfter(ctx context.Context, number string, role calls.Role, ts time.Time) (calls.Record, bool, error) {
	return scanRecord(s.q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE `+roleColumn(role)+` = $1 AND "timestamp" >= $2 ORDER BY "timestamp" ASC LIMIT 1`,
		number, ts.UTC()))
}

func (s *queries) TimestampTaken(ctx context.Context, number string, role calls.Role, ts time.Time) (bool, error) {
	var taken bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM records WHERE `+roleColumn(role)+` = $1 AND "timestamp" = $2)`,
		number, ts.UTC()).Scan(&taken)
	return taken, err
}

func (s *queries) InsertBill(ctx context.Context, b bills.Bill) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO bills (call_id, price, start_at, end_at) VALUES ($1, $2, $3, $4)`,
		b.Call.ID, b.Price, b.Start.UTC(), b.End.UTC())
	return mapConflict(err)
}

func (s *queries) ListBills(ctx context.Context, subscriber string, from, to time.Time) ([]bills.Bill, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, c.source, c.destination, c.created_at, b.price, b.start_at, b.end_at, b.created_at
		FROM bills b
		JOIN calls c ON c.id = b.call_id
		WHERE c.source = $1 AND b.end_at >= $2 AND b.end_at < $3
		ORDER BY b.end_at ASC, b.call_id ASC`,
		subscriber, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]bills.Bill, 0)
	for rows.Next() {
		var b bills.Bill
		if err := rows.Scan(&b.Call.ID, &b.Call.Source, &b.Call.Destination, &b.Call.CreatedAt,
			&b.Price, &b.Start, &b.End, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Call.CreatedAt = b.Call.CreatedAt.UTC()
		b.Start, b.End, b.CreatedAt = b.Start.UTC(), b.End.UTC(), b.CreatedAt.UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

// mapConflict turns unique violations of known constraints into the
// validation error the checks report for the same condition.
func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	if name, ok := utils.UniqueViolation(err); ok {
		if mapped := records.ConflictError(name); mapped != nil {
			return mapped
		}
	}
	return err
}
