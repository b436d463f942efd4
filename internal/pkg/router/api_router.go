package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"

	"github.com/driverincontrol/checkout/app/controllers"
	"github.com/driverincontrol/checkout/internal/pkg/cache"
	"github.com/driverincontrol/checkout/internal/pkg/env"
	"github.com/driverincontrol/checkout/internal/pkg/middleware"
)

// ApiRouter installs the /api/v1 surface: webhook, checkout, credential
// recovery and the admin endpoints.
type ApiRouter struct {
	webhook     *controllers.WebhookController
	checkout    *controllers.CheckoutController
	credentials *controllers.CredentialsController
	admin       *controllers.AdminController
	adminAPIKey string
}

func NewApiRouter(
	webhook *controllers.WebhookController,
	checkout *controllers.CheckoutController,
	credentials *controllers.CredentialsController,
	admin *controllers.AdminController,
	adminAPIKey string,
) *ApiRouter {
	return &ApiRouter{
		webhook:     webhook,
		checkout:    checkout,
		credentials: credentials,
		admin:       admin,
		adminAPIKey: adminAPIKey,
	}
}

// InstallRouter registers the API routes on the app.
func (r ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization,X-API-Key,stripe-signature",
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "checkout api",
		})
	})

	v1 := api.Group("/v1")

	// Webhook deliveries are authenticated by signature, not rate limited.
	v1.Post("/stripe/webhook", r.webhook.HandleWebhook)

	v1.Post("/checkout/sessions", r.checkout.HandleCreateSession)

	// The recovery endpoint is polled by the public confirmation page, so it
	// gets a per-client rate limit backed by redis.
	recoveryLimiter := limiter.New(limiter.Config{
		Max:        30,
		Expiration: time.Minute,
		Storage:    newLimiterStorage(),
	})
	v1.Get("/payment-credentials", recoveryLimiter, r.credentials.HandleRecover)
	v1.Post("/payment-credentials", recoveryLimiter, r.credentials.HandleRecover)

	admin := v1.Group("/admin", middleware.APIKeyAuth(r.adminAPIKey))
	admin.Get("/accounts", r.admin.HandleListAccounts)
	admin.Get("/accounts/:id", r.admin.HandleGetAccount)
	admin.Delete("/accounts/:id", r.admin.HandleDeleteAccount)
}

// newLimiterStorage builds a redis-backed storage for the rate limiter, reusing
// the cache connection settings. Database 1 keeps limiter keys out of the
// recovery-result cache.
func newLimiterStorage() *redisstorage.Storage {
	host := "localhost"
	port := 6379
	password := env.GetEnv("CACHE_PASSWORD", "")
	if cacheClient := cache.GetClient(); cacheClient != nil {
		addr := cacheClient.Options().Addr
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		}
		if p := cacheClient.Options().Password; p != "" {
			password = p
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
