package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/mamcung-storefront/internal/commerce"
	"github.com/noah-isme/mamcung-storefront/internal/lock"
	"github.com/noah-isme/mamcung-storefront/internal/session"
	"github.com/noah-isme/mamcung-storefront/internal/voucher"
)

// ErrProductUnavailable is returned when the catalog refuses a product.
var ErrProductUnavailable = errors.New("cart: product unavailable")

// VoucherValidator prices a voucher code against an order amount.
type VoucherValidator interface {
	Validate(ctx context.Context, token, code string, orderAmount int64) (voucher.Application, error)
}

// Catalog resolves product data for new lines.
type Catalog interface {
	GetProduct(ctx context.Context, productID string) (commerce.Product, error)
}

// Result is a cart after a mutation. Notice is set when a bound voucher was
// dropped because it no longer validates against the new amount.
type Result struct {
	Cart   *Cart
	Notice string
}

// Service applies cart mutations. Each mutation runs under a per-session
// lock so concurrent tabs cannot lose each other's writes.
type Service struct {
	Store    *Store
	Locker   lock.Locker
	Vouchers VoucherValidator
	Catalog  Catalog
	LockTTL  time.Duration
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Get returns the current cart.
func (s *Service) Get(ctx context.Context, sess *session.Session) (*Cart, error) {
	return s.Store.Get(ctx, sess.ID)
}

// Add resolves productID against the catalog and adds qty units.
func (s *Service) Add(ctx context.Context, sess *session.Session, productID string, qty int) (Result, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Result{}, fmt.Errorf("%w: product id required", ErrInvalidQuantity)
	}
	if qty < 1 {
		return Result{}, ErrInvalidQuantity
	}
	if s.Catalog == nil {
		return Result{}, errors.New("cart: catalog not configured")
	}
	product, err := s.Catalog.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, commerce.ErrNotFound) {
			return Result{}, ErrProductUnavailable
		}
		return Result{}, err
	}
	if !product.Available() || product.Price <= 0 {
		return Result{}, ErrProductUnavailable
	}
	line := Line{
		ProductID: productID,
		Name:      product.Name,
		ImageURL:  product.ImageURL,
		UnitPrice: int64(product.Price),
		Qty:       qty,
	}
	return s.mutateLines(ctx, sess, func(c *Cart) error { return c.Add(line) })
}

// Increase adds one unit of productID.
func (s *Service) Increase(ctx context.Context, sess *session.Session, productID string) (Result, error) {
	return s.mutateLines(ctx, sess, func(c *Cart) error { return c.Increase(productID) })
}

// Decrease removes one unit of productID.
func (s *Service) Decrease(ctx context.Context, sess *session.Session, productID string) (Result, error) {
	return s.mutateLines(ctx, sess, func(c *Cart) error { return c.Decrease(productID) })
}

// Remove drops productID from the cart.
func (s *Service) Remove(ctx context.Context, sess *session.Session, productID string) (Result, error) {
	return s.mutateLines(ctx, sess, func(c *Cart) error { return c.Remove(productID) })
}

// Clear empties the cart and unbinds its voucher. Payment success is the only
// flow outside the cart screen that calls it.
func (s *Service) Clear(ctx context.Context, sessionID string) error {
	_, err := s.withCart(ctx, sessionID, func(c *Cart) error {
		c.Clear()
		return nil
	})
	return err
}

// Delete removes the cart record; used when the session ends.
func (s *Service) Delete(ctx context.Context, sessionID string) error {
	return s.Store.Delete(ctx, sessionID)
}

// ApplyVoucher binds code to the cart. Any voucher already bound is unbound
// first; when the new code is rejected the cart is left without a voucher.
func (s *Service) ApplyVoucher(ctx context.Context, sess *session.Session, code string) (*Cart, error) {
	if s.Vouchers == nil {
		return nil, errors.New("cart: voucher validator not configured")
	}
	var rejection error
	c, err := s.withCart(ctx, sess.ID, func(c *Cart) error {
		c.Voucher = nil
		app, err := s.Vouchers.Validate(ctx, sess.Token(), code, c.Subtotal())
		if err != nil {
			rejection = err
			return nil
		}
		c.Voucher = &app
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rejection != nil {
		return c, rejection
	}
	return c, nil
}

// RemoveVoucher unbinds the cart's voucher.
func (s *Service) RemoveVoucher(ctx context.Context, sess *session.Session) (*Cart, error) {
	return s.withCart(ctx, sess.ID, func(c *Cart) error {
		c.Voucher = nil
		return nil
	})
}

// mutateLines applies fn and, when a voucher is bound, asks the authority to
// price it again for the new subtotal. A voucher that no longer validates is
// unbound so a stale final amount is never shown.
func (s *Service) mutateLines(ctx context.Context, sess *session.Session, fn func(*Cart) error) (Result, error) {
	var notice string
	c, err := s.withCart(ctx, sess.ID, func(c *Cart) error {
		if err := fn(c); err != nil {
			return err
		}
		if c.Voucher == nil {
			return nil
		}
		code := c.Voucher.Code
		c.Voucher = nil
		if c.Empty() || s.Vouchers == nil {
			return nil
		}
		app, err := s.Vouchers.Validate(ctx, sess.Token(), code, c.Subtotal())
		if err != nil {
			notice = rejectionMessage(err)
			zerolog.Ctx(ctx).Info().Str("voucher", code).Err(err).Msg("voucher_unbound_after_cart_change")
			return nil
		}
		c.Voucher = &app
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Cart: c, Notice: notice}, nil
}

func (s *Service) withCart(ctx context.Context, sessionID string, fn func(*Cart) error) (*Cart, error) {
	if s.Store == nil {
		return nil, errors.New("cart: store not configured")
	}
	ttl := s.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	var out *Cart
	err := s.Locker.WithLock(ctx, lock.Key("cart", sessionID), ttl, func(ctx context.Context) error {
		c, err := s.Store.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		c.UpdatedAt = s.now().UTC()
		if err := s.Store.Save(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	return out, err
}

func rejectionMessage(err error) string {
	var rej *voucher.Rejection
	if errors.As(err, &rej) && rej.Message != "" {
		return "Your voucher was removed: " + rej.Message
	}
	return "Your voucher was removed because it no longer applies to this cart."
}
