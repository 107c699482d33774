package routes

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"usdacore/core"
	"usdacore/gateway/middleware"
	"usdacore/native/oracle"
	"usdacore/storage/eventlog"
)

// Rate limit keys applied to the route groups.
const (
	LimitQuery      = "query"
	LimitMutate     = "mutate"
	LimitCrossChain = "crosschain"
)

type Config struct {
	Node          *core.Node
	Journal       *eventlog.Journal
	Stream        *core.Stream
	Prices        *oracle.Manual
	Oracle        oracle.Source
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	CORS          middleware.CORSConfig
	Logger        *slog.Logger
}

type api struct {
	node    *core.Node
	journal *eventlog.Journal
	stream  *core.Stream
	prices  *oracle.Manual
	oracle  oracle.Source
	logger  *slog.Logger
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Node == nil {
		return nil, errors.New("routes: node is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	auth := cfg.Authenticator
	if auth == nil {
		auth = middleware.NewAuthenticator(middleware.AuthConfig{}, logger)
	}
	source := cfg.Oracle
	if source == nil && cfg.Prices != nil {
		source = cfg.Prices
	}
	a := &api{
		node:    cfg.Node,
		journal: cfg.Journal,
		stream:  cfg.Stream,
		prices:  cfg.Prices,
		oracle:  source,
		logger:  logger,
	}

	limit := func(key string) func(http.Handler) http.Handler {
		if cfg.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return cfg.RateLimiter.Middleware(key)
	}

	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Observability != nil {
		r.Use(cfg.Observability.Middleware)
	}

	r.Get("/healthz", a.health)
	if cfg.Observability != nil {
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(q chi.Router) {
			q.Use(limit(LimitQuery))
			q.Get("/rate", a.getRate)
			q.Get("/params", a.getParams)
			q.Get("/treasury", a.getTreasury)
			q.Get("/borrowers/{addr}/positions/{index}", a.getBorrowPosition)
			q.Get("/cds/{addr}/positions/{index}", a.getCDSPosition)
			q.Get("/abond/{addr}", a.getBond)
			q.Get("/events", a.listEvents)
			q.Get("/events/stream", a.streamEvents)
		})

		v1.Group(func(m chi.Router) {
			m.Use(limit(LimitMutate))
			m.Use(auth.Middleware())
			m.Post("/borrow/deposit", a.borrowDeposit)
			m.Post("/borrow/withdraw", a.borrowWithdraw)
			m.Post("/borrow/liquidate", a.borrowLiquidate)
			m.Post("/abond/redeem", a.abondRedeem)
			m.Post("/cds/deposit", a.cdsDeposit)
			m.Post("/cds/withdraw", a.cdsWithdraw)
			m.Post("/cds/redeem-usdt", a.cdsRedeemUSDT)
			m.Post("/multisig/approve", a.multisigApprove)
			m.Post("/multisig/approve-pause", a.multisigApprovePause)
			m.Post("/multisig/pause", a.multisigPause)
			m.Post("/multisig/unpause", a.multisigUnpause)
		})

		v1.Group(func(adm chi.Router) {
			adm.Use(limit(LimitMutate))
			adm.Use(auth.Middleware(middleware.ScopeAdmin))
			a.mountAdmin(adm)
		})

		v1.Group(func(o chi.Router) {
			o.Use(limit(LimitMutate))
			o.Use(auth.Middleware(middleware.ScopeOracle))
			o.Post("/oracle/prices", a.postPrices)
		})

		v1.With(limit(LimitCrossChain)).Post("/crosschain/receive", a.crossChainReceive)
	})

	return r, nil
}

func (a *api) health(w http.ResponseWriter, r *http.Request) {
	if _, err := a.node.Totals(); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *api) caller(w http.ResponseWriter, r *http.Request) ([20]byte, bool) {
	caller, ok := middleware.CallerFromContext(r.Context())
	if !ok || caller == ([20]byte{}) {
		writeJSONError(w, http.StatusUnauthorized, errMissingCaller)
		return [20]byte{}, false
	}
	return caller, true
}
