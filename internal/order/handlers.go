package order

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/session"
)

// Source reads orders from the backend. Implementations return normalized
// statuses.
type Source interface {
	ListOrders(ctx context.Context, token string, q ListQuery) (Page, error)
	GetOrder(ctx context.Context, token, orderID string) (Order, error)
}

// Handler serves the customer's order history. Orders are always read fresh
// from the backend.
type Handler struct {
	Source Source
}

// List handles GET /api/v1/orders?view=&page=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	page, perPage := common.ParsePagination(r, 10, 50)
	view := ParseView(r.URL.Query().Get("view"))
	result, err := h.Source.ListOrders(r.Context(), sess.Token(), ListQuery{
		Page:     page,
		PerPage:  perPage,
		Statuses: view.UpstreamStatuses(),
	})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	orders := make([]Order, 0, len(result.Orders))
	for _, o := range result.Orders {
		if view == ViewAll || o.View == view {
			orders = append(orders, o)
		}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(result.TotalItems))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": orders,
		"view": view,
		"pagination": common.Pagination{
			Page:       result.Page,
			PerPage:    result.PerPage,
			TotalItems: result.TotalItems,
		},
	})
}

// Get handles GET /api/v1/orders/{orderId}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	orderID := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if orderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Source.GetOrder(r.Context(), sess.Token(), orderID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	if h.Source == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order source not configured", nil)
		return nil, false
	}
	sess, ok := session.FromContext(r.Context())
	if !ok || !sess.Authenticated() {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return nil, false
	}
	return sess, true
}
