package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/mamcung-storefront/internal/order"
)

// OrderLister pages through every customer's orders.
type OrderLister interface {
	ListAllOrders(ctx context.Context, token string, q order.ListQuery) (order.Page, error)
}

// Bucket aggregates orders sharing a normalized status.
type Bucket struct {
	Status  order.Status `json:"status"`
	View    order.View   `json:"view"`
	Count   int          `json:"count"`
	Revenue int64        `json:"revenue"`
}

// OrderSummary is the staff dashboard view of all orders. Unpaid orders are
// counted under the cancelled bucket.
type OrderSummary struct {
	Buckets     []Bucket  `json:"buckets"`
	TotalOrders int       `json:"totalOrders"`
	Revenue     int64     `json:"revenue"`
	Truncated   bool      `json:"truncated"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Service provides cached order aggregates for staff dashboards.
type Service struct {
	Orders   OrderLister
	R        *redis.Client
	TTL      time.Duration
	PageSize int
	MaxPages int
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func cacheKey(parts ...any) string {
	formatted := make([]string, 0, len(parts))
	for _, part := range parts {
		formatted = append(formatted, fmt.Sprint(part))
	}
	return strings.Join(formatted, ":")
}

// OrderSummary returns counts and revenue per normalized status. Revenue
// excludes cancelled orders.
func (s *Service) OrderSummary(ctx context.Context, token string) (OrderSummary, error) {
	if s == nil || s.Orders == nil {
		return OrderSummary{}, fmt.Errorf("analytics service not configured")
	}
	key := cacheKey("an", "orders", "summary")
	if cached, ok := s.fromCache(ctx, key); ok {
		return cached, nil
	}
	summary, err := s.aggregate(ctx, token)
	if err != nil {
		return OrderSummary{}, err
	}
	s.store(ctx, key, summary)
	return summary, nil
}

func (s *Service) aggregate(ctx context.Context, token string) (OrderSummary, error) {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	maxPages := s.MaxPages
	if maxPages <= 0 {
		maxPages = 20
	}
	buckets := map[order.Status]*Bucket{}
	out := OrderSummary{GeneratedAt: s.now().UTC()}
	seen := 0
	exhausted := false
	for page := 1; page <= maxPages && !exhausted; page++ {
		res, err := s.Orders.ListAllOrders(ctx, token, order.ListQuery{Page: page, PerPage: pageSize})
		if err != nil {
			return OrderSummary{}, err
		}
		for _, o := range res.Orders {
			status := order.Normalize(o.Status)
			b, ok := buckets[status]
			if !ok {
				b = &Bucket{Status: status, View: order.ViewOf(status)}
				buckets[status] = b
			}
			b.Count++
			out.TotalOrders++
			if status != order.StatusCancelled {
				b.Revenue += o.Total
				out.Revenue += o.Total
			}
		}
		seen += len(res.Orders)
		exhausted = lastPage(res, seen, pageSize)
	}
	out.Truncated = !exhausted
	out.Buckets = make([]Bucket, 0, len(buckets))
	for _, b := range buckets {
		out.Buckets = append(out.Buckets, *b)
	}
	sort.Slice(out.Buckets, func(i, j int) bool { return out.Buckets[i].Status < out.Buckets[j].Status })
	return out, nil
}

// lastPage reports whether no rows remain after res. The upstream may cap
// perPage below what was asked, so its total wins over a short page.
func lastPage(res order.Page, seen, pageSize int) bool {
	if len(res.Orders) == 0 {
		return true
	}
	if res.TotalItems > 0 {
		return seen >= res.TotalItems
	}
	return len(res.Orders) < pageSize
}

func (s *Service) fromCache(ctx context.Context, key string) (OrderSummary, bool) {
	if s.R == nil || s.TTL <= 0 {
		return OrderSummary{}, false
	}
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		return OrderSummary{}, false
	}
	var summary OrderSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return OrderSummary{}, false
	}
	return summary, true
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.R == nil || s.TTL <= 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = s.R.Set(ctx, key, data, s.TTL).Err()
}
