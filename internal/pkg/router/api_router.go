package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/CreditFox/app/controllers"
	"github.com/ManuelReschke/CreditFox/internal/pkg/middleware"
)

type ApiRouter struct {
	billing *controllers.BillingController
	token   string
	storage fiber.Storage
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    h.storage,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "CreditFox billing api",
		})
	})

	v1 := api.Group("/v1", middleware.RequireInternalToken(h.token))
	v1.Post("/checkout", h.billing.HandleCreateCheckout)
}

func NewApiRouter(billing *controllers.BillingController, token string, storage fiber.Storage) *ApiRouter {
	return &ApiRouter{billing: billing, token: token, storage: storage}
}
