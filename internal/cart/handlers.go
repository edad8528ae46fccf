package cart

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/pricing"
	"github.com/noah-isme/mamcung-storefront/internal/session"
	"github.com/noah-isme/mamcung-storefront/internal/voucher"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

type cartView struct {
	Lines     []Line               `json:"items"`
	ItemCount int                  `json:"itemCount"`
	Voucher   *voucher.Application `json:"voucher"`
	Summary   pricing.Summary      `json:"summary"`
	Notice    string               `json:"notice,omitempty"`
}

func render(c *Cart, notice string) cartView {
	lines := c.Lines
	if lines == nil {
		lines = []Line{}
	}
	return cartView{
		Lines:     lines,
		ItemCount: c.ItemCount(),
		Voucher:   c.Voucher,
		Summary:   c.Summary(),
		Notice:    notice,
	}
}

// Get handles GET /api/v1/cart.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.Get(r.Context(), sess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(c, "")})
}

// AddItem handles POST /api/v1/cart/items.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		ProductID string `json:"productId"`
		Qty       int    `json:"qty"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	res, err := h.Svc.Add(r.Context(), sess, req.ProductID, req.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(res.Cart, res.Notice)})
}

// IncreaseItem handles POST /api/v1/cart/items/{productId}/increase.
func (h *Handler) IncreaseItem(w http.ResponseWriter, r *http.Request) {
	h.lineMutation(w, r, h.Svc.Increase)
}

// DecreaseItem handles POST /api/v1/cart/items/{productId}/decrease.
func (h *Handler) DecreaseItem(w http.ResponseWriter, r *http.Request) {
	h.lineMutation(w, r, h.Svc.Decrease)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productId}.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.lineMutation(w, r, h.Svc.Remove)
}

// Clear handles DELETE /api/v1/cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), sess.ID); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(&Cart{SessionID: sess.ID}, "")})
}

// ApplyVoucher handles POST /api/v1/cart/voucher.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req struct {
		Code string `json:"code"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.ApplyVoucher(r.Context(), sess, req.Code)
	if err != nil {
		var rej *voucher.Rejection
		if errors.As(err, &rej) && c != nil {
			// rejection is inline: the cart comes back alongside the reason
			appErr := rej.AppError().WithDetails(map[string]any{"cart": render(c, "")})
			common.WriteError(w, appErr)
			return
		}
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(c, c.Voucher.Message)})
}

// RemoveVoucher handles DELETE /api/v1/cart/voucher.
func (h *Handler) RemoveVoucher(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	c, err := h.Svc.RemoveVoucher(r.Context(), sess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(c, "")})
}

func (h *Handler) lineMutation(w http.ResponseWriter, r *http.Request, op func(context.Context, *session.Session, string) (Result, error)) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := op(r.Context(), sess, chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": render(res.Cart, res.Notice)})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return nil, false
	}
	sess, ok := session.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "session required", nil)
		return nil, false
	}
	return sess, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrLineNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "item not in cart", nil)
	case errors.Is(err, ErrInvalidQuantity):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "quantity must be at least 1", nil)
	case errors.Is(err, ErrProductUnavailable):
		common.JSONError(w, http.StatusUnprocessableEntity, "PRODUCT_UNAVAILABLE", "this product is not available", nil)
	default:
		common.WriteError(w, err)
	}
}
