package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/mamcung-storefront/internal/audit"
	"github.com/noah-isme/mamcung-storefront/internal/lock"
	"github.com/noah-isme/mamcung-storefront/internal/obs"
	"github.com/noah-isme/mamcung-storefront/internal/session"
)

var (
	// ErrNoPaymentURL is returned when the provider answers without a usable
	// redirect URL. The order stays awaiting payment.
	ErrNoPaymentURL = errors.New("payment: provider returned no payment url")
	// ErrInitiationInFlight is returned when the session is already opening a
	// payment session.
	ErrInitiationInFlight = errors.New("payment: initiation already in progress")
	// ErrOrderRequired is returned when no order id is given.
	ErrOrderRequired = errors.New("payment: order id is required")
)

var tracer = otel.Tracer("github.com/noah-isme/mamcung-storefront/internal/payment")

// Gateway opens hosted payment sessions.
type Gateway interface {
	InitiatePayment(ctx context.Context, token, orderID, returnURL string) (string, error)
}

// Initiator requests a hosted payment URL for an order. A failure never
// cancels the order; the customer may retry for the same order id.
type Initiator struct {
	Gateway       Gateway
	Locker        lock.Locker
	LockTTL       time.Duration
	ReturnBaseURL string
	Ledger        *audit.Ledger
}

// Initiate returns the provider URL the customer must be redirected to.
func (i *Initiator) Initiate(ctx context.Context, sess *session.Session, orderID string) (string, error) {
	ctx, span := tracer.Start(ctx, "payment.Initiate")
	defer span.End()

	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return "", ErrOrderRequired
	}
	if i.Gateway == nil {
		return "", errors.New("payment: gateway not configured")
	}
	span.SetAttributes(attribute.String("order.id", orderID))
	ttl := i.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	var paymentURL string
	err := i.Locker.TryWithLock(ctx, lock.Key("initiate", sess.ID), ttl, func(ctx context.Context) error {
		u, err := i.Gateway.InitiatePayment(ctx, sess.Token(), orderID, i.returnURL(orderID))
		if err != nil {
			return fmt.Errorf("initiate payment: %w", err)
		}
		if strings.TrimSpace(u) == "" {
			return ErrNoPaymentURL
		}
		paymentURL = u
		return nil
	})
	if errors.Is(err, lock.ErrLocked) {
		obs.Inc(obs.PaymentInitiateTotal, "in_flight")
		return "", ErrInitiationInFlight
	}
	if err != nil {
		obs.Inc(obs.PaymentInitiateTotal, "failed")
		span.RecordError(err)
		zerolog.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("payment_initiate_failed")
		i.record(ctx, audit.Entry{
			OrderID: orderID,
			Event:   audit.EventPaymentInitiateFailed,
			Outcome: "failed",
			Detail:  map[string]any{"error": err.Error()},
		})
		return "", err
	}
	obs.Inc(obs.PaymentInitiateTotal, "ok")
	i.record(ctx, audit.Entry{OrderID: orderID, Event: audit.EventPaymentInitiated, Outcome: "ok"})
	return paymentURL, nil
}

// returnURL is the generic return route; providers that support distinct
// success and cancel routes are configured upstream.
func (i *Initiator) returnURL(orderID string) string {
	base := strings.TrimRight(strings.TrimSpace(i.ReturnBaseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/payment/return?orderId=" + url.QueryEscape(orderID)
}

func (i *Initiator) record(ctx context.Context, e audit.Entry) {
	if err := i.Ledger.Record(ctx, e); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", string(e.Event)).Msg("ledger_write_failed")
	}
}
