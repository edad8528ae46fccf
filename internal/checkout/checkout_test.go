package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mamcung-storefront/internal/audit"
	"github.com/noah-isme/mamcung-storefront/internal/cart"
	"github.com/noah-isme/mamcung-storefront/internal/commerce"
	"github.com/noah-isme/mamcung-storefront/internal/lock"
	"github.com/noah-isme/mamcung-storefront/internal/order"
	"github.com/noah-isme/mamcung-storefront/internal/payment"
	"github.com/noah-isme/mamcung-storefront/internal/session"
	"github.com/noah-isme/mamcung-storefront/internal/voucher"
)

type memCarts struct {
	cart *cart.Cart
}

func (m *memCarts) Get(context.Context, *session.Session) (*cart.Cart, error) {
	clone := *m.cart
	clone.Lines = append([]cart.Line(nil), m.cart.Lines...)
	return &clone, nil
}

type fakeOrders struct {
	id    string
	err   error
	got   []commerce.SubmitOrderRequest
	block chan struct{}
}

func (f *fakeOrders) SubmitOrder(_ context.Context, _ string, req commerce.SubmitOrderRequest) (string, error) {
	f.got = append(f.got, req)
	if f.block != nil {
		<-f.block
	}
	return f.id, f.err
}

type fakeInitiator struct {
	url string
	err error
}

func (f fakeInitiator) Initiate(context.Context, *session.Session, string) (string, error) {
	return f.url, f.err
}

type ledgerStore struct{ entries []audit.Entry }

func (l *ledgerStore) InsertLedgerEntry(_ context.Context, e audit.Entry) (int64, error) {
	l.entries = append(l.entries, e)
	return int64(len(l.entries)), nil
}

func (l *ledgerStore) ListLedgerEntries(context.Context, audit.ListParams) ([]audit.Entry, error) {
	return l.entries, nil
}

func newLocker(t *testing.T) lock.Locker {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.Locker{R: client}
}

func twoLineCart() *cart.Cart {
	return &cart.Cart{
		SessionID: "s1",
		Lines: []cart.Line{
			{ProductID: "p1", Name: "Mâm ngũ quả", UnitPrice: 100000, Qty: 2},
			{ProductID: "p2", Name: "Nhang trầm", UnitPrice: 50000, Qty: 1},
		},
	}
}

func validContact() order.Contact {
	return order.Contact{
		ContactName:   "Nguyen Van A",
		Email:         "a@example.com",
		Phone:         "0901234567",
		Address:       "12 Le Loi, Q1",
		PaymentMethod: "vnpay",
	}
}

func TestSubmitSnapshotsVoucherAmounts(t *testing.T) {
	c := twoLineCart()
	c.Voucher = &voucher.Application{Code: "TET50", OriginalAmount: 250000, DiscountAmount: 50000, FinalAmount: 200000}
	orders := &fakeOrders{id: "1001"}
	ledger := &ledgerStore{}
	svc := &Service{
		Carts:  &memCarts{cart: c},
		Orders: orders,
		Locker: newLocker(t),
		Ledger: &audit.Ledger{Store: ledger, Enabled: true},
	}

	sub, err := svc.Submit(context.Background(), &session.Session{ID: "s1"}, validContact())
	require.NoError(t, err)
	require.Equal(t, "1001", sub.OrderID)
	require.Equal(t, int64(200000), sub.Summary.Total)
	require.Equal(t, "TET50", sub.VoucherCode)

	require.Len(t, orders.got, 1)
	req := orders.got[0]
	require.Equal(t, int64(250000), req.Subtotal)
	require.Equal(t, int64(50000), req.Discount)
	require.Equal(t, int64(200000), req.Total)
	require.Equal(t, "TET50", req.VoucherCode)
	require.Len(t, req.Items, 2)
	require.Equal(t, "vnpay", req.PaymentMethod)

	require.Len(t, ledger.entries, 1)
	require.Equal(t, audit.EventOrderSubmitted, ledger.entries[0].Event)
}

func TestSubmitNeverClearsCart(t *testing.T) {
	for _, submitErr := range []error{nil, errors.New("upstream down")} {
		carts := &memCarts{cart: twoLineCart()}
		svc := &Service{Carts: carts, Orders: &fakeOrders{id: "1", err: submitErr}, Locker: newLocker(t)}
		_, _ = svc.Submit(context.Background(), &session.Session{ID: "s1"}, validContact())
		require.Len(t, carts.cart.Lines, 2)
	}
}

func TestSubmitRejectsEmptyCartAndBadContact(t *testing.T) {
	orders := &fakeOrders{id: "1"}
	svc := &Service{Carts: &memCarts{cart: &cart.Cart{SessionID: "s1"}}, Orders: orders, Locker: newLocker(t)}
	_, err := svc.Submit(context.Background(), &session.Session{ID: "s1"}, validContact())
	require.ErrorIs(t, err, ErrEmptyCart)

	svc.Carts = &memCarts{cart: twoLineCart()}
	bad := validContact()
	bad.Email = "not-an-email"
	bad.PaymentMethod = "bitcoin"
	_, err = svc.Submit(context.Background(), &session.Session{ID: "s1"}, bad)
	require.Error(t, err)
	rec := httptest.NewRecorder()
	(&Handler{}).writeError(rec, err)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Contains(t, rec.Body.String(), `"email":"email"`)
	require.Contains(t, rec.Body.String(), `"paymentMethod":"oneof"`)
	require.Empty(t, orders.got)
}

func TestSubmitRejectsConcurrentSubmission(t *testing.T) {
	locker := newLocker(t)
	orders := &fakeOrders{id: "1", block: make(chan struct{})}
	svc := &Service{Carts: &memCarts{cart: twoLineCart()}, Orders: orders, Locker: locker}
	sess := &session.Session{ID: "s1"}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Submit(context.Background(), sess, validContact())
		done <- err
	}()
	require.Eventually(t, func() bool {
		n, _ := locker.R.Exists(context.Background(), "lock:checkout:s1").Result()
		return n == 1
	}, time.Second, 5*time.Millisecond)

	_, err := svc.Submit(context.Background(), sess, validContact())
	require.ErrorIs(t, err, ErrSubmissionInFlight)

	close(orders.block)
	require.NoError(t, <-done)
}

func checkoutRequest(t *testing.T) *http.Request {
	t.Helper()
	body, err := json.Marshal(validContact())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", bytes.NewReader(body))
	return req.WithContext(session.WithSession(req.Context(), &session.Session{ID: "s1"}))
}

func TestCheckoutHandlerReturnsPaymentURL(t *testing.T) {
	svc := &Service{Carts: &memCarts{cart: twoLineCart()}, Orders: &fakeOrders{id: "1001"}, Locker: newLocker(t)}
	h := &Handler{Svc: svc, Payments: fakeInitiator{url: "https://pay.example/1001"}}
	rec := httptest.NewRecorder()
	h.Checkout(rec, checkoutRequest(t))

	require.Equal(t, http.StatusCreated, rec.Code)
	var body struct {
		Data struct {
			OrderID    string `json:"orderId"`
			PaymentURL string `json:"paymentUrl"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "1001", body.Data.OrderID)
	require.Equal(t, "https://pay.example/1001", body.Data.PaymentURL)
}

func TestCheckoutHandlerKeepsOrderWhenPaymentFails(t *testing.T) {
	svc := &Service{Carts: &memCarts{cart: twoLineCart()}, Orders: &fakeOrders{id: "1001"}, Locker: newLocker(t)}
	h := &Handler{Svc: svc, Payments: fakeInitiator{err: payment.ErrNoPaymentURL}}
	rec := httptest.NewRecorder()
	h.Checkout(rec, checkoutRequest(t))

	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Contains(t, rec.Body.String(), `"orderId":"1001"`)
	require.Contains(t, rec.Body.String(), `"retryable":true`)
}

type blockingInitiator struct {
	entered chan struct{}
	release chan struct{}
}

func (b blockingInitiator) Initiate(_ context.Context, _ *session.Session, orderID string) (string, error) {
	close(b.entered)
	<-b.release
	return "https://pay.example/" + orderID, nil
}

func TestCheckoutRejectedWhilePaymentIsBeingOpened(t *testing.T) {
	orders := &fakeOrders{id: "1001"}
	svc := &Service{Carts: &memCarts{cart: twoLineCart()}, Orders: orders, Locker: newLocker(t)}
	payments := blockingInitiator{entered: make(chan struct{}), release: make(chan struct{})}
	h := &Handler{Svc: svc, Payments: payments}

	first := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		h.Checkout(first, checkoutRequest(t))
		close(done)
	}()
	<-payments.entered

	second := httptest.NewRecorder()
	h.Checkout(second, checkoutRequest(t))
	require.Equal(t, http.StatusConflict, second.Code)
	require.Contains(t, second.Body.String(), "CHECKOUT_IN_PROGRESS")

	close(payments.release)
	<-done
	require.Equal(t, http.StatusCreated, first.Code)
	require.Len(t, orders.got, 1)

	// the guard is released once payment has been opened
	h.Payments = fakeInitiator{url: "https://pay.example/1001"}
	third := httptest.NewRecorder()
	h.Checkout(third, checkoutRequest(t))
	require.Equal(t, http.StatusCreated, third.Code)
}
