package payment

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/session"
)

// Handler exposes the payment return routes and payment retry.
type Handler struct {
	Initiator  *Initiator
	Reconciler *Reconciler
}

// Success handles GET /payment/success.
func (h *Handler) Success(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, RouteSuccess)
}

// Cancel handles GET /payment/cancel.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, RouteCancel)
}

// Return handles GET /payment/return.
func (h *Handler) Return(w http.ResponseWriter, r *http.Request) {
	h.reconcile(w, r, RouteNone)
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request, route Route) {
	if h.Reconciler == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	sess, _ := session.FromContext(r.Context())
	res, err := h.Reconciler.Reconcile(r.Context(), sess, route, r.URL.Query())
	if err != nil {
		if errors.Is(err, ErrUnresolvableOrder) {
			common.JSONError(w, http.StatusBadRequest, "ORDER_UNRESOLVABLE", "we could not identify your order from the payment response", nil)
			return
		}
		common.WriteError(w, err)
		return
	}
	if res.Redirect != nil {
		secs := (res.Redirect.AfterMs + 999) / 1000
		w.Header().Set("Refresh", strconv.FormatInt(secs, 10)+"; url="+res.Redirect.To)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// Retry handles POST /api/v1/payments/{orderId}/retry.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	if h.Initiator == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable", nil)
		return
	}
	sess, ok := session.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return
	}
	orderID := chi.URLParam(r, "orderId")
	paymentURL, err := h.Initiator.Initiate(r.Context(), sess, orderID)
	if err != nil {
		WriteInitiateError(w, orderID, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"orderId":    orderID,
		"paymentUrl": paymentURL,
	}})
}

// WriteInitiateError renders a payment initiation failure. The order id is
// echoed so the client can offer a retry without resubmitting the order.
func WriteInitiateError(w http.ResponseWriter, orderID string, err error) {
	details := map[string]any{"orderId": orderID, "retryable": true}
	switch {
	case errors.Is(err, ErrOrderRequired):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "orderId is required", nil)
	case errors.Is(err, ErrInitiationInFlight):
		common.JSONError(w, http.StatusConflict, "PAYMENT_IN_PROGRESS", "a payment is already being prepared for this order", details)
	case errors.Is(err, ErrNoPaymentURL):
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_URL_MISSING", "the payment provider did not return a payment page, please try again", details)
	default:
		if appErr, ok := common.AsAppError(err); ok && appErr.HTTPStatus < http.StatusInternalServerError {
			common.WriteError(w, appErr)
			return
		}
		common.JSONError(w, http.StatusBadGateway, "PAYMENT_INITIATE_FAILED", "we could not start the payment, please try again", details)
	}
}
