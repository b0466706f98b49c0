package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/TenantFox/internal/pkg/admission"
	"github.com/ManuelReschke/TenantFox/internal/pkg/billing"
	"github.com/ManuelReschke/TenantFox/internal/pkg/cache"
	"github.com/ManuelReschke/TenantFox/internal/pkg/constants"
	"github.com/ManuelReschke/TenantFox/internal/pkg/database"
	"github.com/ManuelReschke/TenantFox/internal/pkg/env"
	"github.com/ManuelReschke/TenantFox/internal/pkg/identity"
	"github.com/ManuelReschke/TenantFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/TenantFox/internal/pkg/ratelimit"
	"github.com/ManuelReschke/TenantFox/internal/pkg/router"
	"github.com/ManuelReschke/TenantFox/internal/pkg/session"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	if env.IsDev() {
		fiberlog.SetLevel(fiberlog.LevelDebug)
	}
	database.SetupDatabase()
	cache.SetupCache()

	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/tenantfox to project root
		"../../../", // Fallback
	}

	// Find the correct base path
	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); !os.IsNotExist(err) {
			basePath = path
			break
		}
	}

	if basePath == "" {
		panic("Could not find project root directory")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		// Above the webhook ceiling so oversized bodies get the pipeline's JSON 413.
		BodyLimit: 1 << 20,
		// The webhook checks the declared length before it reads the body.
		StreamRequestBody: true,
		ErrorHandler:      router.ErrorHandler,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: constants.DocsRoute,
		FilePath: basePath + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// WEBHOOK ADMISSION
	billingService := billing.NewServiceFromDB(database.GetDB())
	outcomes := counter.NewWebhookOutcomes(cache.GetClient())
	pipeline := admission.New(
		admission.ConfigFromEnv(),
		newWebhookLimiter(),
		billingService,
		admission.WithRecorder(outcomes),
	)

	// ROUTER
	router.InstallRouter(app, router.Deps{
		Webhook:         pipeline.Handle,
		Plans:           billingService,
		Identity:        identity.NewSessionClient(session.NewSessionStore()),
		Outcomes:        outcomes,
		MetricsUser:     env.GetEnv("METRICS_USER", ""),
		MetricsPassword: env.GetEnv("METRICS_PASSWORD", ""),
	})

	return app
}

// newWebhookLimiter picks the limiter store. Multi-instance deployments need
// WEBHOOK_RATE_LIMIT_STORE=redis so every instance shares one window per key.
func newWebhookLimiter() ratelimit.Checker {
	cfg := ratelimit.ConfigFromEnv()
	switch strings.ToLower(env.GetEnv("WEBHOOK_RATE_LIMIT_STORE", "memory")) {
	case "redis":
		fiberlog.Infof("webhook rate limit: redis, %d per %s", cfg.Max, cfg.Window)
		return ratelimit.NewRedisFixedWindow(cache.GetClient(), cfg)
	default:
		fiberlog.Infof("webhook rate limit: memory, %d per %s", cfg.Max, cfg.Window)
		return ratelimit.NewFixedWindow(cfg)
	}
}
