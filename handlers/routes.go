package handlers

import (
	"os"

	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

// PublicStoragePrefix is where the local object store is served from
const PublicStoragePrefix = "/storage/object/public"

// Initialize configures all HTTP routes and middleware
func Initialize(app *fiber.App, svc *Services) {
	if os.Getenv("FIBER_PREFORK_CHILD") == "" {
		log.Info("Initializing application routes and middleware")
	}

	services = svc

	// ========================================
	// Middleware Configuration
	// ========================================
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	// ========================================
	// Health and Metrics Endpoints
	// ========================================
	app.Get("/ready", HandleReady)
	app.Get("/health", HandleHealth)
	app.Get("/metrics", HandleMetrics)

	// ========================================
	// Sync Routes
	// ========================================
	sync := app.Group("/sync")
	sync.Post("/start", HandleSyncStart)
	sync.Post("/repair", HandleSyncRepair)
	sync.Get("/diagnostics", HandleSyncDiagnostics)
	sync.Get("/status", HandleSyncStatus)
	sync.Get("/logs", HandleSyncLogsWebSocketUpgrade)

	// ========================================
	// Image Routes
	// ========================================
	images := app.Group("/images")
	images.Get("/storage", HandleStorageImage)
	images.Get("/proxy", HandleProxyImage)

	// Objects written by the local backend, addressed by the public URLs the
	// uploader hands out.
	if svc.StorageRoot != "" {
		app.Static(PublicStoragePrefix, svc.StorageRoot, fiber.Static{
			MaxAge: 31536000,
		})
	}
}
