package audit

import (
	"net/http"
	"strings"

	"github.com/noah-isme/mamcung-storefront/internal/common"
)

// Handler exposes the payment ledger to staff.
type Handler struct {
	Store Store
}

// List handles GET /api/v1/staff/payments/ledger.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "LEDGER_NOT_CONFIGURED", "payment ledger not configured", nil)
		return
	}
	limit := common.QueryInt(r.URL.Query(), 50, "limit")
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := common.QueryInt(r.URL.Query(), 0, "offset")
	if offset < 0 {
		offset = 0
	}
	entries, err := h.Store.ListLedgerEntries(r.Context(), ListParams{
		OrderID: strings.TrimSpace(r.URL.Query().Get("orderId")),
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "LEDGER_QUERY_FAILED", "unable to fetch ledger entries", nil)
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": entries})
}
