package routes

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"crowdsale/core"
	"crowdsale/core/events"
	"crowdsale/gateway/middleware"
)

// Rate limit groups.
const (
	LimitRead  = "read"
	LimitWrite = "write"
	LimitAdmin = "admin"
)

// StreamTracker counts open event streams.
type StreamTracker interface {
	StreamOpened() func()
}

type Config struct {
	Runtime       *core.Runtime
	Events        *events.Log
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Streams       StreamTracker
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

type api struct {
	runtime *core.Runtime
	events  *events.Log
	streams StreamTracker
	logger  *slog.Logger
}

// New builds the sale HTTP API.
func New(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &api{runtime: cfg.Runtime, events: cfg.Events, streams: cfg.Streams, logger: logger}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(nil, nil)
	}
	auth := cfg.Authenticator
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{Enabled: false}, logger)
	}
	obs := cfg.Observability
	if obs == nil {
		obs = middleware.NewObservability(middleware.ObservabilityConfig{}, nil, logger)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.CORS))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", obs.MetricsHandler())

	route := func(group chi.Router, method, pattern, name string, h http.HandlerFunc) {
		group.With(obs.Middleware(name)).Method(method, pattern, h)
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(read chi.Router) {
			read.Use(limiter.Middleware(LimitRead))
			route(read, http.MethodGet, "/sale/deployment", "sale.deployment", a.getDeployment)
			route(read, http.MethodGet, "/sale/settings", "sale.settings", a.getSettings)
			route(read, http.MethodGet, "/sale/sold", "sale.sold", a.getSold)
			route(read, http.MethodGet, "/sale/currencies", "sale.currencies", a.getCurrencies)
			route(read, http.MethodGet, "/sale/currencies/{asset}", "sale.currency", a.getCurrency)
			route(read, http.MethodGet, "/sale/purchasers/{address}", "sale.purchaser", a.getPurchaser)
			route(read, http.MethodGet, "/assets", "assets.list", a.getAssets)
			route(read, http.MethodGet, "/assets/{asset}/balances/{address}", "assets.balance", a.getBalance)
			route(read, http.MethodGet, "/assets/{asset}/allowances/{owner}/{spender}", "assets.allowance", a.getAllowance)
			route(read, http.MethodGet, "/minter", "minter.state", a.getMinter)
			route(read, http.MethodGet, "/events", "events.list", a.getEvents)
			read.Get("/events/stream", a.streamEvents)
		})
		v1.Group(func(write chi.Router) {
			write.Use(auth.Middleware())
			write.Use(limiter.Middleware(LimitWrite))
			route(write, http.MethodPost, "/sale/buy", "sale.buy", a.buyToken)
			route(write, http.MethodPost, "/sale/withdraw", "sale.withdraw", a.withdrawToken)
			route(write, http.MethodPost, "/assets/{asset}/transfer", "assets.transfer", a.transfer)
			route(write, http.MethodPost, "/assets/{asset}/approve", "assets.approve", a.approve)
			route(write, http.MethodPost, "/minter/mint", "minter.mint", a.mint)
			route(write, http.MethodPost, "/minter/burn", "minter.burn", a.burn)
		})
		v1.Group(func(admin chi.Router) {
			admin.Use(auth.Middleware())
			admin.Use(limiter.Middleware(LimitAdmin))
			route(admin, http.MethodPost, "/admin/settings/{field}", "admin.configure", a.configure)
			route(admin, http.MethodPost, "/admin/currencies", "admin.currencies", a.authorizeCurrencies)
			route(admin, http.MethodPost, "/admin/burn", "admin.burn", a.burnRemaining)
			route(admin, http.MethodPost, "/admin/contracts", "admin.contracts", a.registerContract)
			route(admin, http.MethodPost, "/admin/minter/launch", "admin.minter_launch", a.launchUpdate)
			route(admin, http.MethodPost, "/admin/minter/execute", "admin.minter_execute", a.executeUpdate)
		})
	})
	return r
}
