package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/cashier-paytiko/app/controllers"
	"github.com/ManuelReschke/cashier-paytiko/internal/pkg/middleware"
)

// ApiRouter installs the Paytiko webhook and operator routes under /api.
type ApiRouter struct {
	controller      *controllers.PaytikoController
	operatorKeyHash string
	limiterStorage  fiber.Storage
	maxPerMinute    int
}

// NewApiRouter builds the router. A nil storage keeps limiter counters in memory.
func NewApiRouter(controller *controllers.PaytikoController, operatorKeyHash string, storage fiber.Storage, maxPerMinute int) *ApiRouter {
	if maxPerMinute <= 0 {
		maxPerMinute = 120
	}
	return &ApiRouter{
		controller:      controller,
		operatorKeyHash: operatorKeyHash,
		limiterStorage:  storage,
		maxPerMinute:    maxPerMinute,
	}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// The gateway retries on its own schedule, so the live webhook is not rate limited.
	api.Post("/webhooks/paytiko", h.controller.HandleWebhook)

	guard := []fiber.Handler{h.limiter(), middleware.OperatorKeyMiddleware(h.operatorKeyHash)}
	operator := func(handler fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, guard...), handler)
	}

	webhooks := api.Group("/webhooks/paytiko")
	webhooks.Post("/resync", operator(h.controller.HandleResync)...)
	webhooks.Post("/resync-by-date", operator(h.controller.HandleResyncByDateRange)...)
	webhooks.Get("/resync-status/:resyncId", operator(h.controller.HandleResyncStatus)...)
	webhooks.Post("/process-resynced", operator(h.controller.HandleProcessResynced)...)
	webhooks.Get("/deliveries", operator(h.controller.HandleListDeliveries)...)

	api.Post("/payments/paytiko/hosted-page", operator(h.controller.HandleCreateHostedPage)...)
}

func (h ApiRouter) limiter() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        h.maxPerMinute,
		Expiration: time.Minute,
		Storage:    h.limiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too_many_requests", "message": "Rate limit exceeded"})
		},
	})
}
