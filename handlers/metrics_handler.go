package handlers

import (
	"context"
	"time"

	"github.com/gofiber/adaptor/v2"
	fiber "github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alexander-bruun/vitrine/models"
)

// Prometheus metrics
var (
	productsByStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vitrine_products",
		Help: "Number of products per sync status",
	}, []string{"status"})

	productsByImageKind = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vitrine_product_images",
		Help: "Number of products whose image is internal or external",
	}, []string{"kind"})
)

func init() {
	prometheus.MustRegister(productsByStatus)
	prometheus.MustRegister(productsByImageKind)
}

// updateMetrics refreshes the gauges from the database
func updateMetrics(ctx context.Context) {
	if counts, err := models.CountByStatus(ctx); err == nil {
		for _, status := range []models.SyncStatus{models.StatusPending, models.StatusSynced, models.StatusFailed} {
			productsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
		}
	} else {
		log.Warnf("Failed to count products by status for metrics: %v", err)
	}

	if internal, external, err := models.CountImageKinds(ctx); err == nil {
		productsByImageKind.WithLabelValues("internal").Set(float64(internal))
		productsByImageKind.WithLabelValues("external").Set(float64(external))
	} else {
		log.Warnf("Failed to count product images for metrics: %v", err)
	}
}

// HandleMetrics serves Prometheus metrics
func HandleMetrics(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	updateMetrics(ctx)
	cancel()

	return adaptor.HTTPHandler(promhttp.Handler())(c)
}

// HandleReady serves the readiness endpoint
func HandleReady(c *fiber.Ctx) error {
	if err := models.PingDB(); err != nil {
		log.Errorf("Database not ready: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).SendString("NOT READY")
	}

	return c.SendString("OK")
}

// HandleHealth serves the health endpoint
func HandleHealth(c *fiber.Ctx) error {
	if err := models.PingDB(); err != nil {
		log.Errorf("Database health check failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).SendString("UNHEALTHY")
	}

	if _, err := models.CountByStatus(c.UserContext()); err != nil {
		log.Errorf("Database query health check failed: %v", err)
		return c.Status(fiber.StatusServiceUnavailable).SendString("UNHEALTHY")
	}

	return c.SendString("OK")
}
