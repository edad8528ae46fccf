package cart

import (
	"errors"
	"time"

	"github.com/noah-isme/mamcung-storefront/internal/pricing"
	"github.com/noah-isme/mamcung-storefront/internal/voucher"
)

var (
	// ErrLineNotFound is returned when a mutation targets a product not in the cart.
	ErrLineNotFound = errors.New("cart: item not in cart")
	// ErrInvalidQuantity is returned when adding a non-positive quantity.
	ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")
)

// Line is one product in the cart. Qty is always >= 1.
type Line struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	ImageURL  string `json:"imageUrl,omitempty"`
	UnitPrice int64  `json:"unitPrice"`
	Qty       int    `json:"qty"`
}

// Cart belongs to one session. At most one voucher is bound at a time.
type Cart struct {
	SessionID string               `json:"sessionId"`
	Lines     []Line               `json:"lines"`
	Voucher   *voucher.Application `json:"voucher,omitempty"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

func (c *Cart) index(productID string) int {
	for i, l := range c.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add appends a line or raises the quantity of an existing one, refreshing
// its display data and price.
func (c *Cart) Add(line Line) error {
	if line.Qty < 1 {
		return ErrInvalidQuantity
	}
	if i := c.index(line.ProductID); i >= 0 {
		line.Qty += c.Lines[i].Qty
		c.Lines[i] = line
		return nil
	}
	c.Lines = append(c.Lines, line)
	return nil
}

// Increase adds one unit.
func (c *Cart) Increase(productID string) error {
	i := c.index(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.Lines[i].Qty++
	return nil
}

// Decrease removes one unit; the last unit removes the line.
func (c *Cart) Decrease(productID string) error {
	i := c.index(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	if c.Lines[i].Qty <= 1 {
		c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
		return nil
	}
	c.Lines[i].Qty--
	return nil
}

// Remove drops the line entirely.
func (c *Cart) Remove(productID string) error {
	i := c.index(productID)
	if i < 0 {
		return ErrLineNotFound
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return nil
}

// Clear empties the cart and destroys the voucher binding.
func (c *Cart) Clear() {
	c.Lines = nil
	c.Voucher = nil
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool { return len(c.Lines) == 0 }

// ItemCount is the total number of units.
func (c *Cart) ItemCount() int {
	n := 0
	for _, l := range c.Lines {
		n += l.Qty
	}
	return n
}

// Summary prices the cart as it is right now.
func (c *Cart) Summary() pricing.Summary {
	items := make([]pricing.Item, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, pricing.Item{Qty: l.Qty, UnitPrice: l.UnitPrice})
	}
	return pricing.Compute(items, c.Voucher)
}

// Subtotal is the voucher-independent line total.
func (c *Cart) Subtotal() int64 {
	return c.Summary().Subtotal
}
