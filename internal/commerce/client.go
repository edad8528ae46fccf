package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/mamcung-storefront/internal/obs"
	"github.com/noah-isme/mamcung-storefront/internal/order"
	"github.com/noah-isme/mamcung-storefront/internal/resilience"
	"github.com/noah-isme/mamcung-storefront/internal/session"
)

const maxBodyBytes = 1 << 20

var tracer = otel.Tracer("github.com/noah-isme/mamcung-storefront/internal/commerce")

// Client talks to the remote commerce API. Every order it returns carries a
// normalized status.
type Client struct {
	baseURL string
	http    resilience.HTTPClient
}

// New constructs a client for baseURL using the resilient HTTP wrapper.
func New(baseURL string, httpClient resilience.HTTPClient) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// ValidateVoucher asks the validation authority to price code against amount.
func (c *Client) ValidateVoucher(ctx context.Context, token, code string, amount int64) (VoucherQuote, error) {
	var out VoucherQuote
	body := map[string]any{"code": code, "orderAmount": amount}
	err := c.do(ctx, "commerce.ValidateVoucher", http.MethodPost, "/vouchers/validate", token, body, &out)
	return out, err
}

// SubmitOrder persists an order and returns its identifier.
func (c *Client) SubmitOrder(ctx context.Context, token string, req SubmitOrderRequest) (string, error) {
	var out struct {
		OrderID ID `json:"orderId"`
		ID      ID `json:"id"`
	}
	if err := c.do(ctx, "commerce.SubmitOrder", http.MethodPost, "/orders", token, req, &out); err != nil {
		return "", err
	}
	id := out.OrderID
	if id == "" {
		id = out.ID
	}
	if id == "" {
		return "", &APIError{Status: http.StatusBadGateway, Code: "MISSING_ORDER_ID", Message: "order accepted without an identifier"}
	}
	return string(id), nil
}

// InitiatePayment requests a hosted payment URL for orderID. The URL is
// returned as received; an empty value is the caller's to judge.
func (c *Client) InitiatePayment(ctx context.Context, token, orderID, returnURL string) (string, error) {
	var out struct {
		PaymentURL string `json:"paymentUrl"`
		URL        string `json:"url"`
	}
	body := map[string]any{"orderId": orderID}
	if returnURL != "" {
		body["returnUrl"] = returnURL
	}
	if err := c.do(ctx, "commerce.InitiatePayment", http.MethodPost, "/payments", token, body, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(firstNonEmpty(out.PaymentURL, out.URL)), nil
}

// CancelPayment cancels the current payment attempt of orderID.
func (c *Client) CancelPayment(ctx context.Context, token, orderID string) error {
	path := "/payments/" + url.PathEscape(orderID) + "/cancel"
	return c.do(ctx, "commerce.CancelPayment", http.MethodPost, path, token, map[string]any{"orderId": orderID}, nil)
}

// GetOrder fetches the current state of an order.
func (c *Client) GetOrder(ctx context.Context, token, orderID string) (order.Order, error) {
	var out orderDTO
	if err := c.do(ctx, "commerce.GetOrder", http.MethodGet, "/orders/"+url.PathEscape(orderID), token, nil, &out); err != nil {
		return order.Order{}, err
	}
	return out.toOrder(), nil
}

// ListOrders lists the authenticated customer's orders.
func (c *Client) ListOrders(ctx context.Context, token string, q order.ListQuery) (order.Page, error) {
	return c.listOrders(ctx, "commerce.ListOrders", "/orders", token, q)
}

// ListAllOrders lists orders across customers. Requires a staff token.
func (c *Client) ListAllOrders(ctx context.Context, token string, q order.ListQuery) (order.Page, error) {
	return c.listOrders(ctx, "commerce.ListAllOrders", "/admin/orders", token, q)
}

func (c *Client) listOrders(ctx context.Context, op, path, token string, q order.ListQuery) (order.Page, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		params.Set("perPage", strconv.Itoa(q.PerPage))
	}
	if len(q.Statuses) > 0 {
		labels := make([]string, 0, len(q.Statuses))
		for _, s := range q.Statuses {
			labels = append(labels, string(s))
		}
		params.Set("status", strings.Join(labels, ","))
	}
	if enc := params.Encode(); enc != "" {
		path += "?" + enc
	}
	var out pageDTO
	if err := c.do(ctx, op, http.MethodGet, path, token, nil, &out); err != nil {
		return order.Page{}, err
	}
	page := order.Page{
		Orders:     make([]order.Order, 0, len(out.Items)),
		Page:       out.Page,
		PerPage:    out.PerPage,
		TotalItems: out.TotalItems,
	}
	for _, dto := range out.Items {
		page.Orders = append(page.Orders, dto.toOrder())
	}
	if page.Page == 0 {
		page.Page = q.Page
	}
	if page.PerPage == 0 {
		page.PerPage = q.PerPage
	}
	return page, nil
}

// GetProduct fetches a catalog product.
func (c *Client) GetProduct(ctx context.Context, productID string) (Product, error) {
	var out Product
	err := c.do(ctx, "commerce.GetProduct", http.MethodGet, "/products/"+url.PathEscape(productID), "", nil, &out)
	return out, err
}

// Login exchanges customer credentials for an upstream token.
func (c *Client) Login(ctx context.Context, email, password string) (session.Credentials, error) {
	var out struct {
		Token       string `json:"token"`
		AccessToken string `json:"accessToken"`
		Role        string `json:"role"`
		User        struct {
			ID   ID     `json:"id"`
			Role string `json:"role"`
		} `json:"user"`
	}
	body := map[string]any{"email": email, "password": password}
	if err := c.do(ctx, "commerce.Login", http.MethodPost, "/auth/login", "", body, &out); err != nil {
		return session.Credentials{}, err
	}
	creds := session.Credentials{
		Token:      firstNonEmpty(out.Token, out.AccessToken),
		CustomerID: string(out.User.ID),
		Role:       firstNonEmpty(out.Role, out.User.Role),
	}
	if creds.Token == "" {
		return session.Credentials{}, &APIError{Status: http.StatusBadGateway, Code: "MISSING_TOKEN", Message: "login accepted without a token"}
	}
	return creds, nil
}

func (c *Client) do(ctx context.Context, op, method, path, token string, in, out any) error {
	ctx, span := tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("http.method", method), attribute.String("commerce.path", path))

	start := time.Now()
	err := c.roundTrip(ctx, method, path, token, in, out)
	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if obs.UpstreamLatency != nil {
		obs.UpstreamLatency.WithLabelValues(op, result).Observe(obs.DurationMillis(time.Since(start)))
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("commerce: encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("commerce: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		req.Header.Set("X-Request-ID", reqID)
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return &APIError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &APIError{Status: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp.StatusCode, raw)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(unwrapData(raw), out); err != nil {
		return &APIError{Status: http.StatusBadGateway, Code: "BAD_UPSTREAM_PAYLOAD", Err: err}
	}
	return nil
}

// unwrapData strips a {"data": ...} envelope when present.
func unwrapData(raw []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 && string(env.Data) != "null" {
		return env.Data
	}
	return raw
}

func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{Status: status}
	var body struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		apiErr.Message = truncateMessage(string(raw), maxRawMessageRunes)
		return apiErr
	}
	apiErr.Code = body.Code
	apiErr.Message = body.Message
	if len(body.Error) > 0 {
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil {
			apiErr.Code = firstNonEmpty(apiErr.Code, nested.Code)
			apiErr.Message = firstNonEmpty(apiErr.Message, nested.Message)
		} else {
			var msg string
			if json.Unmarshal(body.Error, &msg) == nil {
				apiErr.Message = firstNonEmpty(apiErr.Message, msg)
			}
		}
	}
	return apiErr
}

const maxRawMessageRunes = 200

// truncateMessage keeps at most limit runes of a non-JSON error body. Invalid
// UTF-8 is replaced so the text can be echoed to clients.
func truncateMessage(raw string, limit int) string {
	msg := strings.ToValidUTF8(strings.TrimSpace(raw), "\uFFFD")
	if utf8.RuneCountInString(msg) <= limit {
		return msg
	}
	return string([]rune(msg)[:limit])
}
