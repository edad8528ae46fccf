package cart_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/mamcung-storefront/internal/cart"
	"github.com/noah-isme/mamcung-storefront/internal/commerce"
	"github.com/noah-isme/mamcung-storefront/internal/lock"
	"github.com/noah-isme/mamcung-storefront/internal/session"
	"github.com/noah-isme/mamcung-storefront/internal/voucher"
)

type fakeCatalog map[string]commerce.Product

func (f fakeCatalog) GetProduct(_ context.Context, id string) (commerce.Product, error) {
	p, ok := f[id]
	if !ok {
		return commerce.Product{}, &commerce.APIError{Status: http.StatusNotFound}
	}
	return p, nil
}

// fakeVouchers accepts codes listed in discounts, giving a flat discount.
type fakeVouchers struct {
	discounts map[string]int64
	minSpend  int64
	seen      []int64
}

func (f *fakeVouchers) Validate(_ context.Context, _ string, code string, amount int64) (voucher.Application, error) {
	f.seen = append(f.seen, amount)
	d, ok := f.discounts[code]
	if !ok {
		return voucher.Application{}, &voucher.Rejection{Reason: voucher.ErrNotEligible, Message: "invalid"}
	}
	if amount < f.minSpend {
		return voucher.Application{}, &voucher.Rejection{Reason: voucher.ErrMinimumSpendUnmet, Message: "below minimum"}
	}
	return voucher.Application{Code: code, OriginalAmount: amount, DiscountAmount: d, FinalAmount: amount - d}, nil
}

func newService(t *testing.T) (*cart.Service, *fakeVouchers) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	vouchers := &fakeVouchers{discounts: map[string]int64{"TET": 50000, "RAM": 20000}}
	return &cart.Service{
		Store:    cart.NewStore(client, time.Hour),
		Locker:   lock.Locker{R: client, RetryBackoff: time.Millisecond},
		Vouchers: vouchers,
		Catalog: fakeCatalog{
			"mam-a": {ID: "mam-a", Name: "Mâm ngũ quả", Price: 100000},
			"mam-b": {ID: "mam-b", Name: "Mâm xôi gà", Price: 50000},
		},
	}, vouchers
}

func seed(t *testing.T, svc *cart.Service, sess *session.Session) {
	t.Helper()
	ctx := context.Background()
	_, err := svc.Add(ctx, sess, "mam-a", 2)
	require.NoError(t, err)
	_, err = svc.Add(ctx, sess, "mam-b", 1)
	require.NoError(t, err)
}

func TestServicePricesFromCatalog(t *testing.T) {
	svc, _ := newService(t)
	sess := &session.Session{ID: "s1"}
	seed(t, svc, sess)

	c, err := svc.Get(context.Background(), sess)
	require.NoError(t, err)
	require.Equal(t, int64(250000), c.Summary().Total)
	require.Equal(t, "Mâm ngũ quả", c.Lines[0].Name)

	_, err = svc.Add(context.Background(), sess, "unknown", 1)
	require.ErrorIs(t, err, cart.ErrProductUnavailable)
}

func TestApplyVoucherBindsAuthorityAmounts(t *testing.T) {
	svc, vouchers := newService(t)
	sess := &session.Session{ID: "s1"}
	seed(t, svc, sess)

	c, err := svc.ApplyVoucher(context.Background(), sess, "TET")
	require.NoError(t, err)
	require.Equal(t, int64(200000), c.Summary().Total)
	require.Equal(t, []int64{250000}, vouchers.seen)
}

func TestApplySecondVoucherUnbindsFirst(t *testing.T) {
	svc, _ := newService(t)
	sess := &session.Session{ID: "s1"}
	seed(t, svc, sess)
	ctx := context.Background()

	_, err := svc.ApplyVoucher(ctx, sess, "TET")
	require.NoError(t, err)
	c, err := svc.ApplyVoucher(ctx, sess, "RAM")
	require.NoError(t, err)
	require.Equal(t, "RAM", c.Voucher.Code)
	require.Equal(t, int64(230000), c.Summary().Total)

	c, err = svc.ApplyVoucher(ctx, sess, "NOPE")
	require.ErrorIs(t, err, voucher.ErrNotEligible)
	require.Nil(t, c.Voucher)
	require.Equal(t, int64(250000), c.Summary().Total)
	require.Len(t, c.Lines, 2, "rejection never touches the lines")

	stored, err := svc.Get(ctx, sess)
	require.NoError(t, err)
	require.Nil(t, stored.Voucher)
}

func TestLineMutationRevalidatesVoucher(t *testing.T) {
	svc, vouchers := newService(t)
	vouchers.minSpend = 200000
	sess := &session.Session{ID: "s1"}
	seed(t, svc, sess)
	ctx := context.Background()

	_, err := svc.ApplyVoucher(ctx, sess, "TET")
	require.NoError(t, err)

	res, err := svc.Decrease(ctx, sess, "mam-b")
	require.NoError(t, err)
	require.NotNil(t, res.Cart.Voucher)
	require.Equal(t, int64(150000), res.Cart.Summary().Total)
	require.Empty(t, res.Notice)

	res, err = svc.Decrease(ctx, sess, "mam-a")
	require.NoError(t, err)
	require.Nil(t, res.Cart.Voucher)
	require.Contains(t, res.Notice, "below minimum")
	require.Equal(t, int64(100000), res.Cart.Summary().Total)
}

func TestClearDropsVoucherAndLines(t *testing.T) {
	svc, _ := newService(t)
	sess := &session.Session{ID: "s1"}
	seed(t, svc, sess)
	ctx := context.Background()
	_, err := svc.ApplyVoucher(ctx, sess, "TET")
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, sess.ID))
	c, err := svc.Get(ctx, sess)
	require.NoError(t, err)
	require.True(t, c.Empty())
	require.Nil(t, c.Voucher)
}

func TestHandlerApplyVoucherRejectionIsInline(t *testing.T) {
	svc, _ := newService(t)
	sess := &session.Session{ID: "s1"}
	seed(t, svc, sess)
	h := &cart.Handler{Svc: svc}

	r := chi.NewRouter()
	r.Post("/api/v1/cart/voucher", h.ApplyVoucher)
	r.Post("/api/v1/cart/items/{productId}/decrease", h.DecreaseItem)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/voucher", strings.NewReader(`{"code":"NOPE"}`))
	req = req.WithContext(session.WithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Cart struct {
					Summary struct {
						Total int64 `json:"total"`
					} `json:"summary"`
				} `json:"cart"`
			} `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "VOUCHER_INVALID", body.Error.Code)
	require.Equal(t, int64(250000), body.Error.Details.Cart.Summary.Total)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/cart/items/ghost/decrease", nil)
	req = req.WithContext(session.WithSession(req.Context(), sess))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
