package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/mbongo/internal/ledger"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, d Deps, led *ledger.Ledger) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		status := http.StatusOK
		if dbStatus != "ok" || redisStatus != "ok" {
			status = http.StatusServiceUnavailable
		}
		stats := led.Stats()
		return c.Status(status).JSON(fiber.Map{
			"status": fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"ledger": fiber.Map{
				"total_transactions": stats.TotalTransactions,
				"log_size":           stats.LogSize,
				"archived_txs":       stats.ArchivedTxs,
				"migrating":          stats.Migrating,
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
