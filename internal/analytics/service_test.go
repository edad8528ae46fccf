package analytics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mamcung-storefront/internal/analytics"
	"github.com/noah-isme/mamcung-storefront/internal/order"
	"github.com/noah-isme/mamcung-storefront/internal/session"
)

type stubOrders struct {
	pages [][]order.Order
	calls int
}

func (s *stubOrders) ListAllOrders(_ context.Context, _ string, q order.ListQuery) (order.Page, error) {
	s.calls++
	total := 0
	for _, p := range s.pages {
		total += len(p)
	}
	if q.Page > len(s.pages) {
		return order.Page{Page: q.Page, PerPage: q.PerPage, TotalItems: total}, nil
	}
	return order.Page{Orders: s.pages[q.Page-1], Page: q.Page, PerPage: q.PerPage, TotalItems: total}, nil
}

func bucketFor(t *testing.T, summary analytics.OrderSummary, status order.Status) analytics.Bucket {
	t.Helper()
	for _, b := range summary.Buckets {
		if b.Status == status {
			return b
		}
	}
	t.Fatalf("no bucket for %s", status)
	return analytics.Bucket{}
}

func TestOrderSummaryFoldsUnpaidIntoCancelledAndCaches(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	orders := &stubOrders{pages: [][]order.Order{
		{
			{ID: "1", Status: order.StatusPaid, Total: 200000},
			{ID: "2", Status: order.StatusAwaitingPayment, Total: 150000},
		},
		{
			{ID: "3", Status: order.StatusCancelled, Total: 90000},
			{ID: "4", Status: order.StatusDelivered, Total: 300000},
		},
	}}
	svc := &analytics.Service{Orders: orders, R: rdb, TTL: time.Minute, PageSize: 2}

	summary, err := svc.OrderSummary(context.Background(), "staff-token")
	require.NoError(t, err)
	require.Equal(t, 4, summary.TotalOrders)
	require.Equal(t, int64(500000), summary.Revenue)
	cancelled := bucketFor(t, summary, order.StatusCancelled)
	require.Equal(t, 2, cancelled.Count)
	require.Zero(t, cancelled.Revenue)
	require.Equal(t, order.ViewCancelled, cancelled.View)
	for _, b := range summary.Buckets {
		require.NotEqual(t, order.StatusAwaitingPayment, b.Status)
	}
	calls := orders.calls

	_, err = svc.OrderSummary(context.Background(), "staff-token")
	require.NoError(t, err)
	require.Equal(t, calls, orders.calls)
}

func TestOrderSummaryStopsAtMaxPages(t *testing.T) {
	orders := &stubOrders{pages: [][]order.Order{
		{{ID: "1", Status: order.StatusPaid, Total: 1}},
		{{ID: "2", Status: order.StatusPaid, Total: 1}},
		{{ID: "3", Status: order.StatusPaid, Total: 1}},
	}}
	svc := &analytics.Service{Orders: orders, PageSize: 1, MaxPages: 2}
	summary, err := svc.OrderSummary(context.Background(), "")
	require.NoError(t, err)
	require.True(t, summary.Truncated)
	require.Equal(t, 2, summary.TotalOrders)
}

func TestOrderSummaryHandler(t *testing.T) {
	svc := &analytics.Service{Orders: &stubOrders{pages: [][]order.Order{{{ID: "1", Status: order.StatusShipping, Total: 5}}}}}
	h := &analytics.Handler{Svc: svc}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/staff/orders/summary", nil)
	req = req.WithContext(session.WithSession(req.Context(), &session.Session{ID: "s", Role: session.RoleStaff, UpstreamToken: "t"}))
	rec := httptest.NewRecorder()
	h.OrderSummary(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"SHIPPING"`)
}

func TestOrderSummaryFollowsUpstreamTotalWhenPagesAreCapped(t *testing.T) {
	// the upstream serves 2 rows per page even though 100 were asked for
	orders := &stubOrders{pages: [][]order.Order{
		{{ID: "1", Status: order.StatusPaid, Total: 10}, {ID: "2", Status: order.StatusPaid, Total: 10}},
		{{ID: "3", Status: order.StatusPaid, Total: 10}, {ID: "4", Status: order.StatusPaid, Total: 10}},
		{{ID: "5", Status: order.StatusPaid, Total: 10}},
	}}
	svc := &analytics.Service{Orders: orders}
	summary, err := svc.OrderSummary(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 5, summary.TotalOrders)
	require.Equal(t, int64(50), summary.Revenue)
	require.False(t, summary.Truncated)
	require.Equal(t, 3, orders.calls)
}

func TestOrderSummaryEndingOnLastAllowedPageIsComplete(t *testing.T) {
	orders := &stubOrders{pages: [][]order.Order{
		{{ID: "1", Status: order.StatusPaid, Total: 1}},
		{{ID: "2", Status: order.StatusPaid, Total: 1}},
	}}
	svc := &analytics.Service{Orders: orders, PageSize: 1, MaxPages: 2}
	summary, err := svc.OrderSummary(context.Background(), "")
	require.NoError(t, err)
	require.False(t, summary.Truncated)
	require.Equal(t, 2, summary.TotalOrders)
}
