package payment

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/mamcung-storefront/internal/audit"
	"github.com/noah-isme/mamcung-storefront/internal/obs"
	"github.com/noah-isme/mamcung-storefront/internal/order"
	"github.com/noah-isme/mamcung-storefront/internal/session"
)

// ErrUnresolvableOrder is returned when a payment return carries no order id.
var ErrUnresolvableOrder = errors.New("payment: order id could not be resolved from callback")

const (
	msgSuccess   = "Payment succeeded. Thank you for your order."
	msgCancelled = "Payment was cancelled. Your cart has been kept so you can try again."
	msgFailed    = "We could not confirm your payment. Your cart has been kept, please try again."
)

// Orders reads orders and cancels payment attempts.
type Orders interface {
	GetOrder(ctx context.Context, token, orderID string) (order.Order, error)
	CancelPayment(ctx context.Context, token, orderID string) error
}

// CartClearer empties a session cart.
type CartClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

// CancelRetrier schedules a cancel-payment call for later.
type CancelRetrier interface {
	EnqueueCancelPayment(ctx context.Context, orderID, token string) error
}

// Redirect tells the client where to go once the outcome has been shown.
type Redirect struct {
	To      string `json:"to"`
	AfterMs int64  `json:"afterMs"`
}

// Result is what a payment return resolves to.
type Result struct {
	Outcome       Outcome      `json:"outcome"`
	Message       string       `json:"message"`
	OrderID       string       `json:"orderId"`
	Order         *order.Order `json:"order"`
	CartPreserved bool         `json:"cartPreserved"`
	Redirect      *Redirect    `json:"redirect,omitempty"`
}

// Reconciler performs the side effects of a classified payment return.
type Reconciler struct {
	Orders        Orders
	Carts         CartClearer
	Retry         CancelRetrier
	Ledger        *audit.Ledger
	RedirectDelay time.Duration
	DetailPath    func(orderID string) string
}

// Reconcile classifies the return and applies its side effects. Failures of
// the order detail fetch, the cart clear or the cancel call never change the
// outcome; only an unresolvable order id is an error.
func (r *Reconciler) Reconcile(ctx context.Context, sess *session.Session, route Route, params url.Values) (Result, error) {
	ctx, span := tracer.Start(ctx, "payment.Reconcile")
	defer span.End()

	d := Classify(route, params)
	span.SetAttributes(attribute.String("payment.route", route.String()), attribute.String("payment.outcome", string(d.Outcome)))
	obs.Inc(obs.PaymentCallbackTotal, string(d.Outcome))
	logger := zerolog.Ctx(ctx).With().Str("order_id", d.OrderID).Str("route", route.String()).Logger()

	if d.Outcome == OutcomeUnresolvable {
		logger.Warn().Msg("payment_callback_unresolvable")
		return Result{Outcome: OutcomeUnresolvable}, ErrUnresolvableOrder
	}
	r.record(ctx, audit.Entry{
		OrderID: d.OrderID,
		Event:   audit.EventCallbackClassified,
		Outcome: string(d.Outcome),
		Detail:  map[string]any{"route": route.String(), "params": redactParams(params)},
	})

	res := Result{Outcome: d.Outcome, OrderID: d.OrderID, CartPreserved: d.Outcome != OutcomeSuccess}
	token := ""
	if sess != nil {
		token = sess.Token()
	}

	switch d.Outcome {
	case OutcomeSuccess:
		res.Message = msgSuccess
		res.Order = r.fetch(ctx, token, d.OrderID)
		if sess != nil && r.Carts != nil {
			if err := r.Carts.Clear(ctx, sess.ID); err != nil {
				logger.Warn().Err(err).Msg("cart_clear_after_payment_failed")
			}
		}
	case OutcomeCancelled:
		res.Message = msgCancelled
		res.Order = r.fetch(ctx, token, d.OrderID)
		r.cancel(ctx, token, d.OrderID)
		res.Redirect = r.redirect(d.OrderID)
	default:
		res.Message = msgFailed
		res.Redirect = r.redirect(d.OrderID)
	}
	logger.Info().Str("outcome", string(d.Outcome)).Msg("payment_callback_classified")
	return res, nil
}

func (r *Reconciler) fetch(ctx context.Context, token, orderID string) *order.Order {
	if r.Orders == nil {
		return nil
	}
	o, err := r.Orders.GetOrder(ctx, token, orderID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("order_id", orderID).Msg("order_detail_fetch_failed")
		return nil
	}
	return &o
}

// cancel asks the backend to drop the payment attempt. When the call fails a
// retry is queued; neither failure is surfaced to the customer.
func (r *Reconciler) cancel(ctx context.Context, token, orderID string) {
	if r.Orders == nil {
		return
	}
	err := r.Orders.CancelPayment(ctx, token, orderID)
	if err == nil {
		obs.Inc(obs.PaymentCancelTotal, "ok")
		r.record(ctx, audit.Entry{OrderID: orderID, Event: audit.EventPaymentCancelled, Outcome: "ok"})
		return
	}
	logger := zerolog.Ctx(ctx)
	logger.Warn().Err(err).Str("order_id", orderID).Msg("payment_cancel_failed")
	obs.Inc(obs.PaymentCancelTotal, "failed")
	r.record(ctx, audit.Entry{
		OrderID: orderID,
		Event:   audit.EventPaymentCancelFailed,
		Outcome: "failed",
		Detail:  map[string]any{"error": err.Error()},
	})
	if r.Retry == nil {
		return
	}
	if err := r.Retry.EnqueueCancelPayment(ctx, orderID, token); err != nil {
		logger.Warn().Err(err).Str("order_id", orderID).Msg("payment_cancel_enqueue_failed")
		return
	}
	obs.Inc(obs.PaymentCancelTotal, "enqueued")
	r.record(ctx, audit.Entry{OrderID: orderID, Event: audit.EventPaymentCancelRetried, Outcome: "enqueued"})
}

func (r *Reconciler) redirect(orderID string) *Redirect {
	delay := r.RedirectDelay
	if delay <= 0 {
		delay = 3 * time.Second
	}
	to := "/orders/" + url.PathEscape(orderID)
	if r.DetailPath != nil {
		to = r.DetailPath(orderID)
	}
	return &Redirect{To: to, AfterMs: delay.Milliseconds()}
}

func (r *Reconciler) record(ctx context.Context, e audit.Entry) {
	if err := r.Ledger.Record(ctx, e); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", string(e.Event)).Msg("ledger_write_failed")
	}
}

// redactParams keeps the callback keys the classifier reads, nothing else.
func redactParams(params url.Values) map[string]string {
	out := map[string]string{}
	for _, keys := range [][]string{orderIDKeys, statusKeys, cancelKeys} {
		for _, k := range keys {
			if v := params.Get(k); v != "" {
				out[k] = v
			}
		}
	}
	return out
}
