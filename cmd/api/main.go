package main

import (
	"context"
	"fmt"
	"log"

	common_api "go-tpm/internal/common/api"
	"go-tpm/internal/config"
	"go-tpm/internal/connectors"
	"go-tpm/internal/database"
	"go-tpm/internal/features/audit"
	"go-tpm/internal/features/automation"
	"go-tpm/internal/features/escalation"
	"go-tpm/internal/features/export"
	"go-tpm/internal/features/notification"
	"go-tpm/internal/features/system"
	"go-tpm/internal/features/workflow"
	"go-tpm/internal/logger"
	"go-tpm/internal/middleware"
	"go-tpm/pkg/utils"

	_ "go-tpm/docs" // Import swagger docs

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
	log.Printf("Registered %d routes\n", len(routes))
}

// RegisterAllRoutesWithAnnotation wraps RegisterAllRoutes with fx annotations
var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			utils.SetSecret(cfg.JWTSecret)
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// @title           Trade Promotion Management API
// @version         1.0
// @description     Workflow and approval engine for trade promotion entities.

// @host            localhost:8080
// @BasePath        /
func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,
			database.NewDatabase,
			connectors.NewEntitySource,

			// Repositories
			audit.NewAuditRepository,
			notification.NewNotificationRepository,
			workflow.NewTemplateRepository,
			workflow.NewInstanceRepository,

			// Services
			audit.NewAuditService,
			notification.NewNotificationService,
			automation.NewActionExecutor,
			workflow.NewTemplateService,
			workflow.NewWorkflowEngine,
			escalation.NewEscalationService,
			export.NewExportService,

			// Interface adapters to break circular dependencies and satisfy Fx
			func(s audit.AuditService) workflow.AuditLogger { return s },
			func(s notification.NotificationService) workflow.EventSink { return s },
			func(s notification.NotificationService) automation.Notifier { return s },

			// Controllers
			audit.NewAuditController,
			notification.NewNotificationController,
			workflow.NewWorkflowController,
			export.NewExportController,

			// API Routes
			AsRoute(audit.NewAuditApi),
			AsRoute(notification.NewNotificationApi),
			AsRoute(workflow.NewWorkflowApi),
			AsRoute(export.NewExportApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, escalationService escalation.EscalationService) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return escalationService.Start(ctx)
					},
					OnStop: func(ctx context.Context) error {
						return escalationService.Stop()
					},
				})
			},
		),
	)

	app.Run()
}
