package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aquaflow/portal/cmd/portal/cli"
	"github.com/aquaflow/portal/internal/app"
	"github.com/aquaflow/portal/internal/auth"
	"github.com/aquaflow/portal/internal/customers"
	"github.com/aquaflow/portal/internal/inventory"
	"github.com/aquaflow/portal/internal/observability"
	"github.com/aquaflow/portal/internal/platform/cache"
	"github.com/aquaflow/portal/internal/platform/db"
	"github.com/aquaflow/portal/internal/procurement"
	"github.com/aquaflow/portal/internal/rbac"
	"github.com/aquaflow/portal/internal/reports"
	"github.com/aquaflow/portal/internal/requests"
	"github.com/aquaflow/portal/internal/sales"
	"github.com/aquaflow/portal/internal/shared"
	"github.com/aquaflow/portal/internal/transfers"
	"github.com/aquaflow/portal/internal/workflow"
	"github.com/aquaflow/portal/jobs"
)

const usage = `usage: portal [serve | migrate <up|down|status|redo|version> | jobs <trigger NAME|stats|scheduled> | hash-password PASSWORD]`

func main() {
	if app.StartupSkipped() {
		slog.Default().Info("PORTAL_SKIP_STARTUP set, not starting")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		slog.Default().Error("portal", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	if cmd == "hash-password" {
		if len(args) != 1 {
			return errors.New(usage)
		}
		hashed, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hashed)
		return nil
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)

	switch cmd {
	case "serve":
		return serve(ctx, cfg, logger)
	case "migrate":
		return migrate(ctx, cfg, args)
	case "jobs":
		return jobsCommand(ctx, cfg, args)
	default:
		return errors.New(usage)
	}
}

func migrate(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()
	return db.Migrate(ctx, pool, args[0], args[1:]...)
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	opts := cache.QueueOpts(cfg.Redis())
	client := asynq.NewClient(opts)
	defer client.Close()
	inspector := asynq.NewInspector(opts)
	defer inspector.Close()
	c := cli.NewJobsCLI(client, inspector, cfg.IdempotencyRetention)

	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			return errors.New(usage)
		}
		info, err := c.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("enqueued %s (%s) on %s\n", info.Type, info.ID, info.Queue)
		return nil
	case "stats":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			return err
		}
		return cli.WriteStats(os.Stdout, stats)
	case "scheduled":
		tasks, err := c.ListScheduled(ctx, 20)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
		return nil
	default:
		return errors.New(usage)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.AutoMigrate {
		if err := db.Migrate(ctx, pool, "up"); err != nil {
			return err
		}
		logger.Info("migrations applied")
	}

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	queueOpts := cache.QueueOpts(cfg.Redis())
	jobClient := jobs.NewClient(queueOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(queueOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sessionManager := shared.NewSessionManager(redisClient, "portal_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	idempotency := shared.NewIdempotencyStore(pool)
	auditLogger := shared.NewAuditLogger(pool)
	machine := workflow.NewMachine(logger, metrics)
	engine := inventory.NewEngine()
	history := workflow.NewHistory(pool)

	authService := auth.NewService(auth.NewRepository(pool))
	var tokens *auth.Tokens
	rbacMiddleware := rbac.Middleware{Actors: authService, Logger: logger}
	if cfg.TokensEnabled() {
		tokens = auth.NewTokens(cfg.TokenSecret, cfg.TokenIssuer, cfg.TokenTTL)
		rbacMiddleware.Tokens = tokens
	}

	inventoryService := inventory.NewService(inventory.NewRepository(pool), auditLogger, logger)
	customerService := customers.NewService(customers.NewRepository(pool), logger)
	salesService := sales.NewService(sales.NewRepository(pool), customerService, machine, engine, logger)
	procurementService := procurement.NewService(procurement.NewRepository(pool), machine, engine,
		jobs.PurchaseOrderMailer{Emails: jobClient, To: cfg.AlertEmail}, logger)
	transferService := transfers.NewService(transfers.NewRepository(pool), machine, engine, logger)
	requestService := requests.NewService(requests.NewRepository(pool), customerService, machine, engine, logger)
	reportService := reports.NewService(inventoryService, salesService, customerService)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
		Health: map[string]app.Pinger{
			"postgres": pool,
			"redis":    app.PingFunc(func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }),
		},
		AuthHandler:        auth.NewHandler(logger, authService, tokens, sessionManager, csrfManager, rbacMiddleware),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService, rbacMiddleware),
		CustomersHandler:   customers.NewHandler(logger, customerService, rbacMiddleware),
		SalesHandler:       sales.NewHandler(logger, salesService, history, idempotency, rbacMiddleware),
		ProcurementHandler: procurement.NewHandler(logger, procurementService, history, idempotency, rbacMiddleware),
		TransfersHandler:   transfers.NewHandler(logger, transferService, history, idempotency, rbacMiddleware),
		RequestsHandler:    requests.NewHandler(logger, requestService, history, idempotency, rbacMiddleware),
		ReportsHandler:     reports.NewHandler(logger, reportService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

var _ app.Pinger = (*pgxpool.Pool)(nil)
