package commerce

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/mamcung-storefront/internal/order"
)

// Amount is a whole-dong value. The commerce API sends amounts either as JSON
// numbers or as decimal strings ("250000.00"); both decode here.
type Amount int64

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(bytes.Trim(b, `"`)))
	if raw == "" || raw == "null" {
		*a = 0
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("commerce: invalid amount %q: %w", raw, err)
	}
	*a = Amount(d.Round(0).IntPart())
	return nil
}

// ID accepts identifiers sent as numbers or strings.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("commerce: invalid id %s: %w", raw, err)
	}
	*id = ID(n.String())
	return nil
}

// VoucherQuote is the validation authority's answer for a voucher code.
type VoucherQuote struct {
	Code           string `json:"code"`
	OriginalAmount Amount `json:"originalAmount"`
	DiscountAmount Amount `json:"discountAmount"`
	FinalAmount    Amount `json:"finalAmount"`
	Message        string `json:"message"`
}

// OrderLine is a cart line sent with an order submission.
type OrderLine struct {
	ProductID string `json:"productId"`
	Qty       int    `json:"quantity"`
	UnitPrice int64  `json:"unitPrice"`
}

// SubmitOrderRequest carries contact details, the cart lines and the pricing
// snapshot taken at submission time.
type SubmitOrderRequest struct {
	order.Contact
	Items       []OrderLine `json:"items"`
	VoucherCode string      `json:"voucherCode,omitempty"`
	Subtotal    int64       `json:"subtotal"`
	Discount    int64       `json:"discount"`
	Total       int64       `json:"total"`
}

type orderItemDTO struct {
	ProductID ID     `json:"productId"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl"`
	UnitPrice Amount `json:"unitPrice"`
	Price     Amount `json:"price"`
	Qty       int    `json:"quantity"`
}

type orderDTO struct {
	ID            ID             `json:"id"`
	OrderID       ID             `json:"orderId"`
	Code          string         `json:"orderCode"`
	Status        string         `json:"status"`
	ContactName   string         `json:"contactName"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone"`
	Address       string         `json:"address"`
	Note          string         `json:"note"`
	PaymentMethod string         `json:"paymentMethod"`
	Items         []orderItemDTO `json:"items"`
	Subtotal      Amount         `json:"subtotal"`
	Discount      Amount         `json:"discountAmount"`
	Total         Amount         `json:"totalAmount"`
	VoucherCode   string         `json:"voucherCode"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// toOrder is the single place a raw upstream status becomes an order.Status.
func (d orderDTO) toOrder() order.Order {
	id := d.ID
	if id == "" {
		id = d.OrderID
	}
	status := order.NormalizeRaw(d.Status)
	out := order.Order{
		ID:     string(id),
		Code:   d.Code,
		Status: status,
		View:   order.ViewOf(status),
		Contact: order.Contact{
			ContactName:   d.ContactName,
			Email:         d.Email,
			Phone:         d.Phone,
			Address:       d.Address,
			Note:          d.Note,
			PaymentMethod: d.PaymentMethod,
		},
		Items:         make([]order.Item, 0, len(d.Items)),
		Subtotal:      int64(d.Subtotal),
		Discount:      int64(d.Discount),
		Total:         int64(d.Total),
		VoucherCode:   d.VoucherCode,
		PaymentMethod: d.PaymentMethod,
		CreatedAt:     d.CreatedAt,
	}
	for _, it := range d.Items {
		price := it.UnitPrice
		if price == 0 {
			price = it.Price
		}
		out.Items = append(out.Items, order.Item{
			ProductID: string(it.ProductID),
			Name:      it.Name,
			ImageURL:  it.ImageURL,
			UnitPrice: int64(price),
			Qty:       it.Qty,
		})
	}
	if out.Subtotal == 0 {
		for _, it := range out.Items {
			out.Subtotal += it.UnitPrice * int64(it.Qty)
		}
	}
	return out
}

type pageDTO struct {
	Items      []orderDTO `json:"items"`
	Page       int        `json:"page"`
	PerPage    int        `json:"perPage"`
	TotalItems int        `json:"totalItems"`
}

// Product is the catalog data the cart needs to price a line.
type Product struct {
	ID       ID     `json:"id"`
	Name     string `json:"name"`
	Price    Amount `json:"price"`
	ImageURL string `json:"imageUrl"`
	Active   *bool  `json:"active"`
}

// Available reports whether the product may be added to a cart.
func (p Product) Available() bool {
	return p.Active == nil || *p.Active
}
