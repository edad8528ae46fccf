package checkout

import (
	"context"
	"errors"
	"net/http"

	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/order"
	"github.com/noah-isme/mamcung-storefront/internal/payment"
	"github.com/noah-isme/mamcung-storefront/internal/session"
)

// Initiator opens a payment session for a submitted order.
type Initiator interface {
	Initiate(ctx context.Context, sess *session.Session, orderID string) (string, error)
}

// Handler exposes the checkout endpoint.
type Handler struct {
	Svc      *Service
	Payments Initiator
}

// Checkout handles POST /api/v1/checkout: it submits the cart as an order and
// opens a payment session for it. A second checkout for the session is
// rejected until both steps are done. When only the payment step fails the order
// id is returned so the client can retry payment without resubmitting.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Payments == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	sess, ok := session.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return
	}
	var contact order.Contact
	if err := common.DecodeJSON(r, &contact); err != nil {
		common.WriteError(w, err)
		return
	}
	var paymentURL string
	sub, err := h.Svc.SubmitThen(r.Context(), sess, contact, func(ctx context.Context, submitted Submission) error {
		u, err := h.Payments.Initiate(ctx, sess, submitted.OrderID)
		paymentURL = u
		return err
	})
	switch {
	case err != nil && sub.OrderID != "":
		payment.WriteInitiateError(w, sub.OrderID, err)
		return
	case err != nil:
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"orderId":     sub.OrderID,
		"summary":     sub.Summary,
		"voucherCode": sub.VoucherCode,
		"paymentUrl":  paymentURL,
	}})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEmptyCart):
		common.JSONError(w, http.StatusUnprocessableEntity, "CART_EMPTY", "your cart is empty", nil)
	case errors.Is(err, ErrSubmissionInFlight):
		common.JSONError(w, http.StatusConflict, "CHECKOUT_IN_PROGRESS", "your order is already being submitted", nil)
	default:
		common.WriteError(w, err)
	}
}
