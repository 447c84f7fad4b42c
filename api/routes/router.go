package routes

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/verdantclimate/verdant-backend/api/controllers"
	webhookcontrollers "github.com/verdantclimate/verdant-backend/api/controllers/webhooks"
	"github.com/verdantclimate/verdant-backend/api/middleware"
	"github.com/verdantclimate/verdant-backend/internal/catalog"
	"github.com/verdantclimate/verdant-backend/internal/chat"
	checkoutsvc "github.com/verdantclimate/verdant-backend/internal/checkout"
	"github.com/verdantclimate/verdant-backend/internal/inventory"
	"github.com/verdantclimate/verdant-backend/internal/leaderboard"
	"github.com/verdantclimate/verdant-backend/internal/orders"
	internalwebhooks "github.com/verdantclimate/verdant-backend/internal/webhooks"
	"github.com/verdantclimate/verdant-backend/pkg/config"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
	"github.com/verdantclimate/verdant-backend/pkg/metrics"
	"github.com/verdantclimate/verdant-backend/pkg/stripe"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.StoreMetrics

	DB    pinger
	Cache pinger

	Catalog   *catalog.Catalog
	Inventory inventory.Repository

	Checkout    checkoutsvc.Service
	Orders      orders.Service
	Leaderboard leaderboard.Service
	Chat        chat.Service

	StripeGateway stripe.Gateway
	WebhookSvc    *internalwebhooks.Service
	WebhookGuard  *internalwebhooks.IdempotencyGuard
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, deps.DB, deps.Cache, logg))
	})

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/sessions", controllers.CreateCheckoutSession(deps.Checkout, logg))
			r.Get("/verify", controllers.VerifyCheckoutSession(deps.Orders, logg))
		})
		r.Get("/market/stock", controllers.MarketStock(deps.Catalog, deps.Inventory, logg))
		r.Get("/leaderboard", controllers.Leaderboard(deps.Leaderboard, logg))
		r.Post("/chat", controllers.Chat(deps.Chat, logg))
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.WebhookSvc, deps.StripeGateway, deps.WebhookGuard, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.Admin, logg))
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminListOrders(deps.Orders, logg))
			r.Post("/{sessionId}/resend-receipt", controllers.AdminResendReceipt(deps.Orders, logg))
		})
	})

	return r
}
