package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mamcung-storefront/internal/session"
)

type fakeSource struct {
	page    Page
	order   Order
	lastQ   ListQuery
	lastTok string
}

func (f *fakeSource) ListOrders(_ context.Context, token string, q ListQuery) (Page, error) {
	f.lastQ = q
	f.lastTok = token
	return f.page, nil
}

func (f *fakeSource) GetOrder(_ context.Context, token, orderID string) (Order, error) {
	f.lastTok = token
	o := f.order
	o.ID = orderID
	return o, nil
}

func customerRequest(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	sess := &session.Session{ID: "s1", CustomerID: "c1", Role: session.RoleCustomer, UpstreamToken: "tok"}
	return req.WithContext(session.WithSession(req.Context(), sess))
}

func TestListCancelledViewRequestsUnpaidToo(t *testing.T) {
	src := &fakeSource{page: Page{
		Orders: []Order{
			{ID: "1", Status: StatusCancelled, View: ViewCancelled},
			{ID: "2", Status: StatusShipping, View: ViewShipping},
		},
		Page: 1, PerPage: 10, TotalItems: 2,
	}}
	h := &Handler{Source: src}
	rec := httptest.NewRecorder()
	h.List(rec, customerRequest(http.MethodGet, "/api/v1/orders?view=cancelled&limit=500"))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []Status{StatusCancelled, StatusAwaitingPayment}, src.lastQ.Statuses)
	require.Equal(t, 50, src.lastQ.PerPage)
	require.Equal(t, "tok", src.lastTok)

	var body struct {
		Data []Order `json:"data"`
		View View    `json:"view"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, ViewCancelled, body.View)
	require.Len(t, body.Data, 1)
	require.Equal(t, "1", body.Data[0].ID)
}

func TestListRequiresLogin(t *testing.T) {
	h := &Handler{Source: &fakeSource{}}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req = req.WithContext(session.WithSession(req.Context(), &session.Session{ID: "guest"}))
	rec := httptest.NewRecorder()
	h.List(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetFetchesFresh(t *testing.T) {
	src := &fakeSource{order: Order{Status: StatusCancelled, View: ViewCancelled}}
	h := &Handler{Source: src}
	r := chi.NewRouter()
	r.Get("/api/v1/orders/{orderId}", h.Get)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, customerRequest(http.MethodGet, "/api/v1/orders/77"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

	var body struct {
		Data Order `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "77", body.Data.ID)
	require.Equal(t, StatusCancelled, body.Data.Status)
}
