package audit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/noah-isme/mamcung-storefront/internal/session"
)

// Event names a step of the checkout and payment flow.
type Event string

const (
	EventOrderSubmitted        Event = "order_submitted"
	EventOrderSubmitFailed     Event = "order_submit_failed"
	EventPaymentInitiated      Event = "payment_initiated"
	EventPaymentInitiateFailed Event = "payment_initiate_failed"
	EventCallbackClassified    Event = "callback_classified"
	EventPaymentCancelled      Event = "payment_cancelled"
	EventPaymentCancelFailed   Event = "payment_cancel_failed"
	EventPaymentCancelRetried  Event = "payment_cancel_retried"
)

// Entry is one append-only ledger row.
type Entry struct {
	ID        int64          `json:"id"`
	OrderID   string         `json:"orderId"`
	SessionID string         `json:"sessionId,omitempty"`
	Event     Event          `json:"event"`
	Outcome   string         `json:"outcome,omitempty"`
	Amount    int64          `json:"amount,omitempty"`
	RequestID string         `json:"requestId,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ListParams filters ledger reads.
type ListParams struct {
	OrderID string
	Limit   int
	Offset  int
}

// Store defines the persistence operations required by the ledger.
type Store interface {
	InsertLedgerEntry(ctx context.Context, e Entry) (int64, error)
	ListLedgerEntries(ctx context.Context, p ListParams) ([]Entry, error)
}

// Ledger records checkout and payment events. A disabled or unconfigured
// ledger accepts and drops entries.
type Ledger struct {
	Store   Store
	Enabled bool
	Now     func() time.Time
}

// Record appends e, filling the session and request ids from ctx when unset.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if l == nil || !l.Enabled {
		return nil
	}
	if l.Store == nil {
		return errors.New("audit: store not configured")
	}
	if strings.TrimSpace(string(e.Event)) == "" {
		return errors.New("audit: event is required")
	}
	if e.SessionID == "" {
		e.SessionID = session.IDFromContext(ctx)
	}
	if e.RequestID == "" {
		e.RequestID = middleware.GetReqID(ctx)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now().UTC()
	}
	_, err := l.Store.InsertLedgerEntry(ctx, e)
	return err
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}
