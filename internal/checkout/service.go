package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/mamcung-storefront/internal/audit"
	"github.com/noah-isme/mamcung-storefront/internal/cart"
	"github.com/noah-isme/mamcung-storefront/internal/commerce"
	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/lock"
	"github.com/noah-isme/mamcung-storefront/internal/obs"
	"github.com/noah-isme/mamcung-storefront/internal/order"
	"github.com/noah-isme/mamcung-storefront/internal/pricing"
	"github.com/noah-isme/mamcung-storefront/internal/session"
)

var (
	// ErrEmptyCart is returned when submitting a cart without lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrSubmissionInFlight is returned when the session already has a
	// submission outstanding.
	ErrSubmissionInFlight = errors.New("checkout: submission already in progress")
)

var tracer = otel.Tracer("github.com/noah-isme/mamcung-storefront/internal/checkout")

// Carts reads the session cart.
type Carts interface {
	Get(ctx context.Context, sess *session.Session) (*cart.Cart, error)
}

// OrderAPI persists orders.
type OrderAPI interface {
	SubmitOrder(ctx context.Context, token string, req commerce.SubmitOrderRequest) (string, error)
}

// Submission is the result of a successful order submission.
type Submission struct {
	OrderID     string          `json:"orderId"`
	Summary     pricing.Summary `json:"summary"`
	VoucherCode string          `json:"voucherCode,omitempty"`
}

// Service turns the session cart into an order. It never touches the cart:
// the cart is cleared only once payment is confirmed.
type Service struct {
	Carts    Carts
	Orders   OrderAPI
	Locker   lock.Locker
	LockTTL  time.Duration
	Validate *validator.Validate
	Ledger   *audit.Ledger
}

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Submit validates contact, snapshots the cart pricing and submits the order.
// Only one checkout per session runs at a time; a concurrent call fails
// fast with ErrSubmissionInFlight.
func (s *Service) Submit(ctx context.Context, sess *session.Session, contact order.Contact) (Submission, error) {
	return s.SubmitThen(ctx, sess, contact, nil)
}

// SubmitThen is Submit followed by next, both under the session's checkout
// guard, so a second checkout is rejected until next has returned. An error
// from next comes back together with the submission it was given.
func (s *Service) SubmitThen(ctx context.Context, sess *session.Session, contact order.Contact, next func(context.Context, Submission) error) (Submission, error) {
	ctx, span := tracer.Start(ctx, "checkout.Submit")
	defer span.End()

	if s.Carts == nil || s.Orders == nil {
		return Submission{}, errors.New("checkout: service not configured")
	}
	contact = trimContact(contact)
	if err := s.validateContact(contact); err != nil {
		obs.Inc(obs.CheckoutSubmitTotal, "invalid")
		return Submission{}, err
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	var (
		out     Submission
		nextErr error
	)
	err := s.Locker.TryWithLock(ctx, lock.Key("checkout", sess.ID), ttl, func(ctx context.Context) error {
		c, err := s.Carts.Get(ctx, sess)
		if err != nil {
			return err
		}
		if c.Empty() {
			return ErrEmptyCart
		}
		req := buildRequest(c, contact)
		orderID, err := s.Orders.SubmitOrder(ctx, sess.Token(), req)
		if err != nil {
			s.record(ctx, audit.Entry{
				Event:   audit.EventOrderSubmitFailed,
				Outcome: "failed",
				Amount:  req.Total,
				Detail:  map[string]any{"error": err.Error()},
			})
			return fmt.Errorf("submit order: %w", err)
		}
		out = Submission{
			OrderID:     orderID,
			Summary:     pricing.Summary{Subtotal: req.Subtotal, Discount: req.Discount, Total: req.Total},
			VoucherCode: req.VoucherCode,
		}
		s.record(ctx, audit.Entry{
			OrderID: orderID,
			Event:   audit.EventOrderSubmitted,
			Outcome: "ok",
			Amount:  req.Total,
			Detail:  map[string]any{"voucherCode": req.VoucherCode, "lines": len(req.Items), "paymentMethod": contact.PaymentMethod},
		})
		if next != nil {
			nextErr = next(ctx, out)
		}
		return nil
	})
	switch {
	case errors.Is(err, lock.ErrLocked):
		obs.Inc(obs.CheckoutSubmitTotal, "in_flight")
		return Submission{}, ErrSubmissionInFlight
	case errors.Is(err, ErrEmptyCart):
		obs.Inc(obs.CheckoutSubmitTotal, "empty")
		return Submission{}, err
	case err != nil:
		obs.Inc(obs.CheckoutSubmitTotal, "failed")
		span.RecordError(err)
		return Submission{}, err
	}
	obs.Inc(obs.CheckoutSubmitTotal, "ok")
	span.SetAttributes(attribute.String("order.id", out.OrderID))
	zerolog.Ctx(ctx).Info().Str("order_id", out.OrderID).Int64("total", out.Summary.Total).Msg("order_submitted")
	return out, nextErr
}

// buildRequest snapshots the priced cart. The amounts sent are the ones the
// customer saw, including a bound voucher's verbatim final amount.
func buildRequest(c *cart.Cart, contact order.Contact) commerce.SubmitOrderRequest {
	summary := c.Summary()
	req := commerce.SubmitOrderRequest{
		Contact:  contact,
		Items:    make([]commerce.OrderLine, 0, len(c.Lines)),
		Subtotal: summary.Subtotal,
		Discount: summary.Discount,
		Total:    summary.Total,
	}
	for _, l := range c.Lines {
		req.Items = append(req.Items, commerce.OrderLine{ProductID: l.ProductID, Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	if c.Voucher != nil {
		req.VoucherCode = c.Voucher.Code
	}
	return req
}

func (s *Service) validateContact(contact order.Contact) error {
	v := s.Validate
	if v == nil {
		v = NewValidator()
	}
	err := v.Struct(contact)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return common.NewAppError("VALIDATION_FAILED", "please check your contact details", http.StatusUnprocessableEntity, err).
		WithDetails(map[string]any{"fields": fields})
}

func (s *Service) record(ctx context.Context, e audit.Entry) {
	if err := s.Ledger.Record(ctx, e); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("event", string(e.Event)).Msg("ledger_write_failed")
	}
}

func trimContact(c order.Contact) order.Contact {
	c.ContactName = strings.TrimSpace(c.ContactName)
	c.Email = strings.TrimSpace(c.Email)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Address = strings.TrimSpace(c.Address)
	c.Note = strings.TrimSpace(c.Note)
	c.PaymentMethod = strings.ToLower(strings.TrimSpace(c.PaymentMethod))
	return c
}
