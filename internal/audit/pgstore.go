package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists ledger entries in Postgres.
type PGStore struct {
	Pool *pgxpool.Pool
}

const insertLedgerEntry = `INSERT INTO payment_ledger
    (order_id, session_id, event, outcome, amount, request_id, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

// InsertLedgerEntry implements Store.
func (s PGStore) InsertLedgerEntry(ctx context.Context, e Entry) (int64, error) {
	var detail []byte
	if len(e.Detail) > 0 {
		var err error
		if detail, err = json.Marshal(e.Detail); err != nil {
			return 0, fmt.Errorf("encode ledger detail: %w", err)
		}
	}
	var id int64
	err := s.Pool.QueryRow(ctx, insertLedgerEntry,
		e.OrderID, e.SessionID, string(e.Event), e.Outcome, e.Amount, e.RequestID, detail, e.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert ledger entry: %w", err)
	}
	return id, nil
}

const listLedgerEntries = `SELECT id, order_id, session_id, event, outcome, amount, request_id, detail, created_at
FROM payment_ledger
WHERE ($1 = '' OR order_id = $1)
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`

// ListLedgerEntries implements Store.
func (s PGStore) ListLedgerEntries(ctx context.Context, p ListParams) ([]Entry, error) {
	rows, err := s.Pool.Query(ctx, listLedgerEntries, p.OrderID, p.Limit, p.Offset)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var (
			e      Entry
			event  string
			detail []byte
		)
		if err := row.Scan(&e.ID, &e.OrderID, &e.SessionID, &event, &e.Outcome, &e.Amount, &e.RequestID, &detail, &e.CreatedAt); err != nil {
			return Entry{}, err
		}
		e.Event = Event(event)
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return Entry{}, fmt.Errorf("decode ledger detail: %w", err)
			}
		}
		return e, nil
	})
}
