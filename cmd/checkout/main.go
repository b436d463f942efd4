package main

import (
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/driverincontrol/checkout/app/controllers"
	"github.com/driverincontrol/checkout/app/repository"
	"github.com/driverincontrol/checkout/internal/pkg/cache"
	"github.com/driverincontrol/checkout/internal/pkg/database"
	"github.com/driverincontrol/checkout/internal/pkg/env"
	"github.com/driverincontrol/checkout/internal/pkg/mail"
	"github.com/driverincontrol/checkout/internal/pkg/objectstore"
	"github.com/driverincontrol/checkout/internal/pkg/payments"
	"github.com/driverincontrol/checkout/internal/pkg/router"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalRepositories()

	// payment gateway
	gateway, err := payments.NewStripeGateway(payments.GatewayConfig{
		APIKey:            env.GetEnv("STRIPE_SECRET_KEY", ""),
		DefaultSuccessURL: env.GetEnv("CHECKOUT_SUCCESS_URL", ""),
		DefaultCancelURL:  env.GetEnv("CHECKOUT_CANCEL_URL", ""),
	})
	if err != nil {
		log.Fatalf("stripe gateway setup failed: %v", err)
	}

	// webhook verifier
	verifier, err := payments.NewVerifier(payments.VerifierConfig{
		EndpointSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		Mode:           env.GetEnv("WEBHOOK_SIGNATURE_MODE", payments.SignatureModeFull),
	})
	if err != nil {
		log.Fatalf("webhook verifier setup failed: %v", err)
	}

	// credential backup store (optional)
	var backup objectstore.Store
	storeCfg, err := objectstore.LoadConfig()
	if err != nil {
		log.Fatalf("object storage config invalid: %v", err)
	}
	if storeCfg.IsEnabled() {
		client, err := objectstore.NewClient(storeCfg)
		if err != nil {
			log.Printf("object storage unavailable, credential backups disabled: %v", err)
		} else {
			backup = client
		}
	}

	// transactional mail (optional)
	var mailer payments.Notifier
	if mailCfg := mail.LoadConfig(); mailCfg.Enabled {
		mailer = mail.NewSMTPMailer(mailCfg)
	}

	service := payments.NewService(payments.ServiceConfig{
		ConfirmationURL: env.GetEnv("CHECKOUT_CONFIRMATION_URL", ""),
		FixedPassword:   env.GetEnv("CHECKOUT_FIXED_PASSWORD", ""),
	}, repos, gateway, backup, mailer)

	recoverer := payments.NewRecoverer(repos, backup, gateway)

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "checkout",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): env.GetEnv("METRICS_PASSWORD", "test"),
		},
	}), monitor.New())

	// ROUTER
	router.InstallRouter(app, router.NewApiRouter(
		controllers.NewWebhookController(verifier, service, repos),
		controllers.NewCheckoutController(gateway),
		controllers.NewCredentialsController(recoverer, env.GetEnv("CREDENTIAL_CACHE_ENABLED", "true") == "true"),
		controllers.NewAdminController(repos),
		env.GetEnv("ADMIN_API_KEY", ""),
	))

	return app
}
