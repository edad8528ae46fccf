package app

import (
	"context"
	"crypto/subtle"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/mamcung-storefront/internal/analytics"
	"github.com/noah-isme/mamcung-storefront/internal/audit"
	"github.com/noah-isme/mamcung-storefront/internal/cart"
	"github.com/noah-isme/mamcung-storefront/internal/checkout"
	"github.com/noah-isme/mamcung-storefront/internal/common"
	"github.com/noah-isme/mamcung-storefront/internal/health"
	"github.com/noah-isme/mamcung-storefront/internal/lock"
	"github.com/noah-isme/mamcung-storefront/internal/obs"
	"github.com/noah-isme/mamcung-storefront/internal/order"
	"github.com/noah-isme/mamcung-storefront/internal/payment"
	"github.com/noah-isme/mamcung-storefront/internal/ratelimit"
	"github.com/noah-isme/mamcung-storefront/internal/session"
	"github.com/noah-isme/mamcung-storefront/internal/voucher"
)

// RouterOptions toggles the observability surface of the HTTP router.
type RouterOptions struct {
	HTTPMetrics *obs.HTTPMetrics
	Tracing     bool
}

// NewRouter wires every storefront handler onto a chi router.
func NewRouter(d *Dependencies, opts RouterOptions) http.Handler {
	cfg := d.Config
	locker := lock.Locker{R: d.Redis, RetryBackoff: cfg.LockRetryBackoff}

	sessions := &session.Manager{
		Store:        session.NewStore(d.Redis, cfg.SessionTTL),
		Signer:       session.Signer{Secret: []byte(cfg.SessionSecret), Issuer: cfg.ObsServiceName},
		CookieName:   cfg.CookieName,
		CookieDomain: cfg.CookieDomain,
		CookieSecure: cfg.CookieSecure,
		SameSite:     cfg.CookieSameSite,
	}

	cartSvc := &cart.Service{
		Store:    cart.NewStore(d.Redis, cfg.CartTTL),
		Locker:   locker,
		Vouchers: &voucher.Validator{Authority: d.Commerce},
		Catalog:  d.Commerce,
		LockTTL:  cfg.CartLockTTL,
	}
	cartHandler := &cart.Handler{Svc: cartSvc}
	sessionHandler := &session.Handler{Manager: sessions, Auth: d.Commerce, Carts: cartSvc}

	initiator := &payment.Initiator{
		Gateway:       d.Commerce,
		Locker:        locker,
		LockTTL:       cfg.SubmitLockTTL,
		ReturnBaseURL: cfg.PaymentReturnBaseURL,
		Ledger:        d.Ledger,
	}
	reconciler := &payment.Reconciler{
		Orders:        d.Commerce,
		Carts:         cartSvc,
		Retry:         d.Enqueuer,
		Ledger:        d.Ledger,
		RedirectDelay: cfg.PaymentRedirectDelay,
	}
	paymentHandler := &payment.Handler{Initiator: initiator, Reconciler: reconciler}

	checkoutSvc := &checkout.Service{
		Carts:    cartSvc,
		Orders:   d.Commerce,
		Locker:   locker,
		LockTTL:  cfg.SubmitLockTTL,
		Validate: d.Validator,
		Ledger:   d.Ledger,
	}
	checkoutHandler := &checkout.Handler{Svc: checkoutSvc, Payments: initiator}

	orderHandler := &order.Handler{Source: d.Commerce}
	analyticsHandler := &analytics.Handler{Svc: &analytics.Service{
		Orders: d.Commerce,
		R:      d.Redis,
		TTL:    cfg.AnalyticsCacheTTL,
	}}

	idem := common.Idem{
		R:     d.Redis,
		TTL:   cfg.IdempotencyTTL,
		Scope: func(r *http.Request) string { return session.IDFromContext(r.Context()) },
	}
	onLimitError := func(err error) { d.Logger.Warn().Err(err).Msg("rate limiter unavailable") }
	voucherLimit := ratelimit.Handler{
		Limiter: ratelimit.PerMinute(d.LimiterStore, cfg.RateLimitVoucherPerMin),
		Key:     ratelimit.SessionOrIP("voucher"),
		OnError: onLimitError,
	}
	checkoutLimit := ratelimit.Handler{
		Limiter: ratelimit.PerMinute(d.LimiterStore, cfg.RateLimitCheckoutPerMin),
		Key:     ratelimit.SessionOrIP("checkout"),
		OnError: onLimitError,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if opts.Tracing {
		r.Use(obs.TracingMiddleware)
	}
	if opts.HTTPMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: opts.HTTPMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: d.Logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.CORSAllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Total-Count", "Retry-After", "Refresh"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if opts.HTTPMetrics != nil {
		r.Handle(cfg.ObsMetricsPath, promhttp.Handler())
	}
	if cfg.PprofEnabled {
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), cfg.PprofUser, cfg.PprofPass))
	}

	probes := map[string]health.Probe{
		"redis": func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() },
	}
	if d.DB != nil {
		probes["database"] = d.DB.Ping
	}
	healthHandler := health.Handler{Probes: probes, Timeout: 500 * time.Millisecond}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Group(func(pr chi.Router) {
		pr.Use(sessions.Ensure)
		pr.Get("/payment/success", paymentHandler.Success)
		pr.Get("/payment/cancel", paymentHandler.Cancel)
		pr.Get("/payment/return", paymentHandler.Return)
	})

	r.Route("/api/v1", func(v chi.Router) {
		v.Use(sessions.Ensure)

		v.Route("/session", func(s chi.Router) {
			s.Post("/", sessionHandler.Start)
			s.Post("/login", sessionHandler.Login)
			s.Post("/logout", sessionHandler.Logout)
		})

		v.Route("/cart", func(c chi.Router) {
			c.Get("/", cartHandler.Get)
			c.Delete("/", cartHandler.Clear)
			c.Post("/items", cartHandler.AddItem)
			c.Post("/items/{productId}/increase", cartHandler.IncreaseItem)
			c.Post("/items/{productId}/decrease", cartHandler.DecreaseItem)
			c.Delete("/items/{productId}", cartHandler.RemoveItem)
			c.With(voucherLimit.Middleware).Post("/voucher", cartHandler.ApplyVoucher)
			c.Delete("/voucher", cartHandler.RemoveVoucher)
		})

		v.Group(func(g chi.Router) {
			g.Use(checkoutLimit.Middleware)
			g.Use(idem.Middleware)
			g.Post("/checkout", checkoutHandler.Checkout)
		})

		v.Route("/payments", func(p chi.Router) {
			p.Use(idem.Middleware)
			p.Post("/{orderId}/retry", paymentHandler.Retry)
		})

		v.Route("/orders", func(o chi.Router) {
			o.Use(session.RequireCustomer)
			o.Get("/", orderHandler.List)
			o.Get("/{orderId}", orderHandler.Get)
		})

		v.Route("/staff", func(st chi.Router) {
			st.Use(session.RequireStaff)
			st.Get("/orders/summary", analyticsHandler.OrderSummary)
			if d.DB != nil {
				st.Get("/payments/ledger", audit.Handler{Store: audit.PGStore{Pool: d.DB}}.List)
			}
		})
	})

	return r
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	mux.Handle("/mutex", pprof.Handler("mutex"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
