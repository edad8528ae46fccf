package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mamcung-storefront/internal/session"
)

type memStore struct {
	entries []Entry
	lastP   ListParams
	err     error
}

func (m *memStore) InsertLedgerEntry(_ context.Context, e Entry) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return e.ID, nil
}

func (m *memStore) ListLedgerEntries(_ context.Context, p ListParams) ([]Entry, error) {
	m.lastP = p
	if m.err != nil {
		return nil, m.err
	}
	var out []Entry
	for _, e := range m.entries {
		if p.OrderID == "" || e.OrderID == p.OrderID {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestLedgerRecordFillsContext(t *testing.T) {
	store := &memStore{}
	fixed := time.Date(2025, 1, 29, 8, 0, 0, 0, time.UTC)
	l := &Ledger{Store: store, Enabled: true, Now: func() time.Time { return fixed }}

	ctx := session.WithSession(context.Background(), &session.Session{ID: "sess-1"})
	ctx = context.WithValue(ctx, middleware.RequestIDKey, "req-9")
	require.NoError(t, l.Record(ctx, Entry{OrderID: "o-1", Event: EventOrderSubmitted, Amount: 200000}))

	require.Len(t, store.entries, 1)
	got := store.entries[0]
	require.Equal(t, "sess-1", got.SessionID)
	require.Equal(t, "req-9", got.RequestID)
	require.Equal(t, fixed, got.CreatedAt)
}

func TestLedgerDisabledDropsEntries(t *testing.T) {
	store := &memStore{}
	require.NoError(t, (&Ledger{Store: store}).Record(context.Background(), Entry{Event: EventPaymentInitiated}))
	require.Empty(t, store.entries)

	var nilLedger *Ledger
	require.NoError(t, nilLedger.Record(context.Background(), Entry{Event: EventPaymentInitiated}))

	err := (&Ledger{Store: store, Enabled: true}).Record(context.Background(), Entry{})
	require.Error(t, err)
}

func TestHandlerListFiltersByOrder(t *testing.T) {
	store := &memStore{entries: []Entry{
		{ID: 1, OrderID: "o-1", Event: EventOrderSubmitted},
		{ID: 2, OrderID: "o-2", Event: EventOrderSubmitted},
		{ID: 3, OrderID: "o-1", Event: EventCallbackClassified, Outcome: "success"},
	}}
	rec := httptest.NewRecorder()
	Handler{Store: store}.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/staff/payments/ledger?orderId=o-1&limit=500", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 50, store.lastP.Limit)

	var body struct {
		Data []Entry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)

	store.err = errors.New("db down")
	rec = httptest.NewRecorder()
	Handler{Store: store}.List(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
