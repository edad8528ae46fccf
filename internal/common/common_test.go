package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type upstreamErr struct{ status int }

func (e upstreamErr) Error() string { return "upstream" }

func (e upstreamErr) AppError() *AppError {
	return NewAppError("UPSTREAM_UNAVAILABLE", "try again later", e.status, e)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body struct {
		Error ErrorBody `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NewAppError("CART_EMPTY", "your cart is empty", http.StatusUnprocessableEntity, nil).WithDetails(map[string]any{"items": 0}))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "CART_EMPTY", body.Code)
	require.NotNil(t, body.Details)

	rec = httptest.NewRecorder()
	WriteError(rec, upstreamErr{status: http.StatusBadGateway})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	require.Equal(t, "UPSTREAM_UNAVAILABLE", decodeError(t, rec).Code)

	rec = httptest.NewRecorder()
	WriteError(rec, errors.New("pgx: connection refused"))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotContains(t, rec.Body.String(), "pgx")
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var dst struct {
		Code string `json:"code"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"TET","extra":1}`))
	err := DecodeJSON(req, &dst)
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestParsePagination(t *testing.T) {
	page, perPage := ParsePagination(httptest.NewRequest(http.MethodGet, "/?page=3&perPage=20", nil), 10, 50)
	require.Equal(t, 3, page)
	require.Equal(t, 20, perPage)

	page, perPage = ParsePagination(httptest.NewRequest(http.MethodGet, "/?page=-1&limit=500", nil), 10, 50)
	require.Equal(t, 1, page)
	require.Equal(t, 50, perPage)

	_, perPage = ParsePagination(httptest.NewRequest(http.MethodGet, "/?perPage=abc", nil), 10, 50)
	require.Equal(t, 10, perPage)
}

func TestQueryInt(t *testing.T) {
	q := url.Values{"limit": {" 7 "}, "page": {"seven"}}
	require.Equal(t, 7, QueryInt(q, 1, "perPage", "limit"))
	require.Equal(t, 1, QueryInt(q, 1, "page"))
	require.Equal(t, 1, QueryInt(q, 1, "offset"))
	require.Equal(t, 3, QueryInt(url.Values{"perPage": {"3"}, "limit": {"9"}}, 1, "perPage", "limit"), "earlier key wins")
}

func TestAsAppError(t *testing.T) {
	appErr, ok := AsAppError(fmt.Errorf("checkout: %w", upstreamErr{status: http.StatusBadGateway}))
	require.True(t, ok)
	require.Equal(t, "UPSTREAM_UNAVAILABLE", appErr.Code)

	direct := NewAppError("CART_EMPTY", "your cart is empty", http.StatusUnprocessableEntity, nil)
	appErr, ok = AsAppError(fmt.Errorf("wrapped: %w", direct))
	require.True(t, ok)
	require.Same(t, direct, appErr)

	_, ok = AsAppError(errors.New("plain"))
	require.False(t, ok)
}

func newIdem(t *testing.T) (Idem, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return Idem{R: rdb, Scope: func(r *http.Request) string { return r.Header.Get("X-Test-Session") }}, mr
}

func TestIdemRejectsReplayWithinScope(t *testing.T) {
	idem, _ := newIdem(t)
	calls := 0
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	send := func(session string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
		req.Header.Set("Idempotency-Key", "k1")
		req.Header.Set("X-Test-Session", session)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusCreated, send("s1"))
	require.Equal(t, http.StatusConflict, send("s1"))
	require.Equal(t, http.StatusCreated, send("s2"), "another session may reuse the same key")
	require.Equal(t, 2, calls)
}

func TestIdemReleasesKeyOnServerError(t *testing.T) {
	idem, mr := newIdem(t)
	status := http.StatusBadGateway
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
	}))

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/42/retry", nil)
		req.Header.Set("Idempotency-Key", "k2")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusBadGateway, send())
	require.Empty(t, mr.Keys())
	status = http.StatusOK
	require.Equal(t, http.StatusOK, send())
	require.Len(t, mr.Keys(), 1)
}

func TestIdemPassesThroughWithoutHeader(t *testing.T) {
	idem, mr := newIdem(t)
	h := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, mr.Keys())
}
