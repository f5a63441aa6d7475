package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditFox/app/controllers"
)

// WebhookRouter mounts the processor callback. It is authenticated by the
// payload signature, so it sits outside the token and rate limited groups.
type WebhookRouter struct {
	billing *controllers.BillingController
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	app.Post("/webhooks/processor", h.billing.HandleProcessorWebhook)
}

func NewWebhookRouter(billing *controllers.BillingController) *WebhookRouter {
	return &WebhookRouter{billing: billing}
}
