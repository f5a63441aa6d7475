package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/ManuelReschke/CreditFox/app/controllers"
)

type OpsRouter struct {
	health   *controllers.HealthController
	billing  *controllers.BillingController
	user     string
	password string
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", h.health.HandleHealth)

	metrics := app.Group("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.user: h.password,
		},
	}))
	metrics.Get("/", monitor.New(monitor.Config{Title: "CreditFox Metrics"}))
	metrics.Get("/webhooks", h.billing.HandleWebhookOutcomes)
}

func NewOpsRouter(health *controllers.HealthController, billing *controllers.BillingController, user, password string) *OpsRouter {
	return &OpsRouter{health: health, billing: billing, user: user, password: password}
}
