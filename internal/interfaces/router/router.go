package router

import (
	"net/http"

	"flexile-backend/internal/app"
	healthsvc "flexile-backend/internal/application/health"
	"flexile-backend/internal/config"
	billhandler "flexile-backend/internal/interfaces/handlers/billing"
	equityhandler "flexile-backend/internal/interfaces/handlers/equity"
	feehandler "flexile-backend/internal/interfaces/handlers/fees"
	healthhandler "flexile-backend/internal/interfaces/handlers/health"
	invhandler "flexile-backend/internal/interfaces/handlers/invoices"
	liqhandler "flexile-backend/internal/interfaces/handlers/liquidation"
	payhandler "flexile-backend/internal/interfaces/handlers/payouts"
	"flexile-backend/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"gorm.io/gorm"
)

type gormDBPinger struct {
	db *gorm.DB
}

func (g *gormDBPinger) Ping() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// CreateApp builds the container from cfg and mounts every route on it.
func CreateApp(cfg *config.Config) (*fiber.App, *app.Container, error) {
	c, err := app.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return Mount(c), c, nil
}

// Mount registers global middleware and routes. Stateful routes need c.DB.
func Mount(c *app.Container) *fiber.App {
	cfg := c.Config
	fapp := fiber.New(fiber.Config{
		DisableStartupMessage:   true,
		ErrorHandler:            middleware.NewErrorHandler(c.Rdb),
		EnableTrustedProxyCheck: true,
	})

	fapp.Use(middleware.CORS(cfg.FrontendURLEndsWith, cfg.Env == "production"))
	fapp.Use(middleware.Tracing())
	fapp.Use(middleware.HealthMarker(c.Rdb))
	fapp.Use(middleware.RouteLogger())

	hh := &healthhandler.Handlers{
		Rdb:            c.Rdb,
		HealthAdminKey: cfg.HealthAdminKey,
	}
	if cfg.WiseAPIURL != "" {
		hh.Endpoints = append(hh.Endpoints, healthsvc.Endpoint{Name: "wise", URL: cfg.WiseAPIURL})
	}
	if c.DB != nil {
		hh.DB = &gormDBPinger{db: c.DB}
	}
	fapp.Get("/", hh.Dashboard)
	fapp.Get("/reset", hh.Reset)
	fapp.Get("/health/json", hh.JSON)
	fapp.Get("/health/errors", hh.Errors)

	api := fapp.Group("/api/v1")
	fh := &feehandler.Handlers{}
	api.Post("/fees/quote", fh.Quote)
	eh := &equityhandler.Handlers{}
	api.Post("/equity/split", eh.Split)

	if c.DB == nil {
		return fapp
	}

	wh := &billhandler.WebhookHandler{Service: c.Billing, WebhookSecret: cfg.StripeWebhookSecret}
	api.Post("/stripe/webhook", wh.HandleWebhook)

	ih := &invhandler.Handlers{Service: c.Invoices}
	api.Post("/companies/:company_id/invoices", ih.Create)
	api.Patch("/invoices/:id/approve", ih.Approve)

	lh := &liqhandler.Handlers{Service: c.Liquidation}
	api.Post("/companies/:company_id/liquidation_scenarios", lh.Create)
	api.Post("/liquidation_scenarios/:id/calculate", lh.Calculate)
	api.Get("/liquidation_scenarios/:id/payouts", lh.Payouts)

	bh := &billhandler.Handlers{Service: c.Billing}
	api.Post("/companies/:company_id/consolidated_invoices", bh.ConsolidateInvoices)
	api.Post("/dividend_rounds/:id/consolidated_invoice", bh.ConsolidateDividendRound)
	api.Post("/consolidated_invoices/:id/charge", bh.Charge)

	ph := &payhandler.Handlers{Orchestrator: c.Payouts, Notifier: c.Notifier}
	api.Post("/payouts/dividends", ph.Dividends)
	api.Post("/payouts/equity_buybacks", ph.EquityBuybacks)
	api.Post("/payments/:id/sync", ph.Sync)

	return fapp
}

func Handler(fapp *fiber.App) http.Handler {
	return adaptor.FiberApp(fapp)
}
