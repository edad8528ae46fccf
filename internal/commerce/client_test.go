package commerce_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mamcung-storefront/internal/commerce"
	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/order"
	"github.com/noah-isme/mamcung-storefront/internal/resilience"
)

func newClient(t *testing.T, h http.HandlerFunc) *commerce.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return commerce.New(srv.URL+"/api/", resilience.HTTPClient{Client: srv.Client(), Timeout: time.Second})
}

func TestGetOrderNormalizesAwaitingPayment(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/orders/77", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"data":{"id":77,"status":"awaiting_payment","totalAmount":"200000.00",
			"discountAmount":50000,"voucherCode":"TET","items":[{"productId":5,"name":"Mâm ngũ quả","price":100000,"quantity":2},{"productId":"9","unitPrice":"50000","quantity":1}]}}`)
	})
	ord, err := cl.GetOrder(context.Background(), "tok", "77")
	require.NoError(t, err)
	require.Equal(t, "77", ord.ID)
	require.Equal(t, order.StatusCancelled, ord.Status)
	require.Equal(t, order.ViewCancelled, ord.View)
	require.Equal(t, int64(200000), ord.Total)
	require.Equal(t, int64(50000), ord.Discount)
	require.Equal(t, int64(250000), ord.Subtotal)
	require.Len(t, ord.Items, 2)
	require.Equal(t, "5", ord.Items[0].ProductID)
	require.Equal(t, int64(100000), ord.Items[0].UnitPrice)
}

func TestListOrdersSendsStatusFilterAndNormalizes(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "CANCELLED,AWAITING_PAYMENT", r.URL.Query().Get("status"))
		require.Equal(t, "2", r.URL.Query().Get("page"))
		_, _ = io.WriteString(w, `{"items":[{"id":"a","status":"PENDING_PAYMENT"},{"id":"b","status":"cancelled"}],"totalItems":2}`)
	})
	page, err := cl.ListOrders(context.Background(), "tok", order.ListQuery{Page: 2, PerPage: 10, Statuses: order.ViewCancelled.UpstreamStatuses()})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	for _, o := range page.Orders {
		require.Equal(t, order.StatusCancelled, o.Status)
	}
	require.Equal(t, 2, page.Page)
	require.Equal(t, 2, page.TotalItems)
}

func TestValidateVoucherRejectionCarriesCodeAndMessage(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "TET", body["code"])
		require.EqualValues(t, 250000, body["orderAmount"])
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"code":"VOUCHER_EXPIRED","message":"Voucher has expired"}}`)
	})
	_, err := cl.ValidateVoucher(context.Background(), "", "TET", 250000)
	var apiErr *commerce.APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusBadRequest, apiErr.Status)
	require.Equal(t, "VOUCHER_EXPIRED", apiErr.Code)
	require.Equal(t, "Voucher has expired", apiErr.Message)
}

func TestSubmitOrderReturnsID(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "Lan", body["contactName"])
		require.EqualValues(t, 200000, body["total"])
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"data":{"orderId":1024}}`)
	})
	id, err := cl.SubmitOrder(context.Background(), "", commerce.SubmitOrderRequest{
		Contact: order.Contact{ContactName: "Lan"},
		Total:   200000,
	})
	require.NoError(t, err)
	require.Equal(t, "1024", id)
}

func TestInitiatePaymentPassesEmptyURLThrough(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{}}`)
	})
	u, err := cl.InitiatePayment(context.Background(), "", "1", "")
	require.NoError(t, err)
	require.Empty(t, u)
}

func TestUpstreamFailureRendersAsBadGateway(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `stack trace here`)
	})
	_, err := cl.GetOrder(context.Background(), "", "1")
	require.ErrorIs(t, err, commerce.ErrUnavailable)

	rec := httptest.NewRecorder()
	common.WriteError(rec, err)
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.NotContains(t, rec.Body.String(), "stack trace")
}

func TestPlainTextRejectionIsCutOnRuneBoundary(t *testing.T) {
	body := strings.Repeat("ạ", 250)
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, body)
	})
	_, err := cl.GetOrder(context.Background(), "", "1")
	var apiErr *commerce.APIError
	require.ErrorAs(t, err, &apiErr)
	require.True(t, utf8.ValidString(apiErr.Message))
	require.Equal(t, 200, utf8.RuneCountInString(apiErr.Message))
	require.True(t, strings.HasPrefix(body, apiErr.Message))

	rec := httptest.NewRecorder()
	common.WriteError(rec, err)
	require.True(t, utf8.Valid(rec.Body.Bytes()))
}

func TestNotFoundMatchesSentinel(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"message":"order not found"}`)
	})
	_, err := cl.GetOrder(context.Background(), "", "404")
	require.ErrorIs(t, err, commerce.ErrNotFound)
	require.NotErrorIs(t, err, commerce.ErrUnavailable)
}

func TestLoginRequiresToken(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"data":{"accessToken":"jwt","user":{"id":3,"role":"STAFF"}}}`)
	})
	creds, err := cl.Login(context.Background(), "a@b.vn", "pw")
	require.NoError(t, err)
	require.Equal(t, "jwt", creds.Token)
	require.Equal(t, "3", creds.CustomerID)
	require.Equal(t, "STAFF", creds.Role)
}

func TestGetProductDecodesStringPrice(t *testing.T) {
	cl := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/products/mam-5", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":{"id":"mam-5","name":"Mâm cúng đầy tháng","price":"1250000","active":true}}`)
	})
	p, err := cl.GetProduct(context.Background(), "mam-5")
	require.NoError(t, err)
	require.Equal(t, commerce.Amount(1250000), p.Price)
	require.True(t, p.Available())
}
