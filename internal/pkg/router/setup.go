package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps carries what the routers need to mount their handlers.
type Deps struct {
	Billing *controllers.BillingController
	Health  *controllers.HealthController

	InternalAPIToken string
	MetricsUser      string
	MetricsPassword  string

	// LimiterStorage backs the API rate limiter. nil keeps limiter state in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Deps) {
	setup(app,
		NewWebhookRouter(deps.Billing),
		NewApiRouter(deps.Billing, deps.InternalAPIToken, deps.LimiterStorage),
		NewOpsRouter(deps.Health, deps.Billing, deps.MetricsUser, deps.MetricsPassword),
	)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
