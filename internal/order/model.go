package order

import "time"

// Contact holds the shipping and contact fields captured at checkout.
type Contact struct {
	ContactName   string `json:"contactName" validate:"required,max=120"`
	Email         string `json:"email" validate:"required,email"`
	Phone         string `json:"phone" validate:"required,min=8,max=20"`
	Address       string `json:"address" validate:"required,max=500"`
	Note          string `json:"note" validate:"max=500"`
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=vnpay momo cod bank_transfer"`
}

// Item is an order line snapshot.
type Item struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Qty       int    `json:"qty"`
}

// Order is the storefront view of an order owned by the commerce API. Status
// is always normalized.
type Order struct {
	ID            string    `json:"id"`
	Code          string    `json:"code,omitempty"`
	Status        Status    `json:"status"`
	View          View      `json:"view"`
	Contact       Contact   `json:"contact"`
	Items         []Item    `json:"items"`
	Subtotal      int64     `json:"subtotal"`
	Discount      int64     `json:"discount"`
	Total         int64     `json:"total"`
	VoucherCode   string    `json:"voucherCode,omitempty"`
	PaymentMethod string    `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ListQuery filters an order listing.
type ListQuery struct {
	Page     int
	PerPage  int
	Statuses []Status
}

// Page is one page of orders.
type Page struct {
	Orders     []Order `json:"data"`
	Page       int     `json:"page"`
	PerPage    int     `json:"perPage"`
	TotalItems int     `json:"totalItems"`
}
