package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/healthbridge/verification-service/internal/api/http/handlers"
)

// RouteConfig bundles dependencies for route registration. External and
// Internal select the deployment-profile route subsets.
type RouteConfig struct {
	External bool
	Internal bool

	Health      *handlers.HealthHandler
	Token       *handlers.TokenHandler
	Tan         *handlers.TanHandler
	TestResult  *handlers.TestResultHandler
	InternalTan *handlers.InternalTanHandler
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	v1 := app.Group("/version/v1")

	if cfg.External {
		v1.Post("/registrationToken", cfg.Token.Create)
		v1.Post("/tan", cfg.Tan.Create)
		v1.Post("/testresult", cfg.TestResult.Get)
	}

	if cfg.Internal {
		v1.Post("/tan/verify", cfg.InternalTan.Verify)
		v1.Post("/tan/teletan", cfg.InternalTan.CreateTeleTan)
	}
}
