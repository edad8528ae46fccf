package analytics

import (
	"net/http"

	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/session"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

// OrderSummary handles GET /api/v1/staff/orders/summary.
func (h *Handler) OrderSummary(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return
	}
	sess, _ := session.FromContext(r.Context())
	summary, err := h.Svc.OrderSummary(r.Context(), sess.Token())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}
