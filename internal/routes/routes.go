package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/mbongo/internal/archive"
	"github.com/congo-pay/mbongo/internal/config"
	"github.com/congo-pay/mbongo/internal/ledger"
	"github.com/congo-pay/mbongo/internal/metrics"
	"github.com/congo-pay/mbongo/internal/middleware"
	"github.com/congo-pay/mbongo/internal/notification"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Cache    *redis.Client
	Logger   *slog.Logger
	Registry *prometheus.Registry
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger))

	registry := d.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	led, err := buildLedger(d, registry)
	if err != nil {
		return err
	}

	// Operational surfaces
	RegisterHealthRoutes(app, d, led)
	RegisterMetricsRoute(app, registry)

	handler := ledger.NewHandler(led, ledger.Metadata{
		Name:     d.Cfg.TokenName,
		Symbol:   d.Cfg.TokenSymbol,
		Decimals: d.Cfg.TokenDecimals,
	})

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Reads are public; writes require an authenticated principal and flow
	// through rate limiting and idempotency replay.
	write := []fiber.Handler{middleware.Principal(d.Cfg.JWTSecret)}
	if d.Cache != nil {
		write = append(write,
			middleware.WriteRateLimit(d.Cache, d.Cfg.WriteRatePerMin),
			middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger),
		)
	}
	RegisterLedgerRoutes(api, handler, write...)

	return nil
}

// buildLedger assembles the ledger from configuration: archive provisioner
// by environment, metrics against the shared registry, notifications through
// the logger.
func buildLedger(d Deps, registry *prometheus.Registry) (*ledger.Ledger, error) {
	var provisioner ledger.ArchiveProvisioner
	if d.DB != nil {
		provisioner = archive.NewPostgresProvisioner(d.DB, d.Cfg.ArchiveProvisionBudget)
	} else {
		provisioner = archive.NewMemoryProvisioner(d.Cfg.ArchiveProvisionBudget)
	}

	balances := make([]ledger.InitialBalance, 0, len(d.Cfg.InitialBalances))
	for _, b := range d.Cfg.InitialBalances {
		balances = append(balances, ledger.InitialBalance{Account: b.Account, Amount: b.Amount})
	}

	return ledger.New(context.Background(), ledger.Config{
		MintingAccount:    d.Cfg.MintingAccount,
		TransferFee:       d.Cfg.TransferFee,
		MinBurnAmount:     d.Cfg.MinBurnAmount,
		MaxSupply:         d.Cfg.MaxSupply,
		TransactionWindow: d.Cfg.TransactionWindow,
		PermittedDrift:    d.Cfg.PermittedDrift,
		LogCapacity:       d.Cfg.LogCapacity,
		ArchiveTimeout:    d.Cfg.ArchiveCallTimeout,
		BreakerThreshold:  d.Cfg.BreakerThreshold,
		BreakerCooldown:   d.Cfg.BreakerCooldown,
		InitialBalances:   balances,
	}, ledger.Deps{
		Provisioner: provisioner,
		Logger:      d.Logger,
		Metrics:     metrics.New(registry),
		Notifier:    notification.NewLoggerNotifier(d.Logger),
	})
}
