package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/motorcrm/motorcrm/internal/app"
	"github.com/motorcrm/motorcrm/internal/audit"
	audithttp "github.com/motorcrm/motorcrm/internal/audit/http"
	"github.com/motorcrm/motorcrm/internal/auth"
	"github.com/motorcrm/motorcrm/internal/bookings"
	"github.com/motorcrm/motorcrm/internal/cars"
	"github.com/motorcrm/motorcrm/internal/customers"
	"github.com/motorcrm/motorcrm/internal/dashboard"
	"github.com/motorcrm/motorcrm/internal/deals"
	"github.com/motorcrm/motorcrm/internal/documents"
	"github.com/motorcrm/motorcrm/internal/i18n"
	jobmetrics "github.com/motorcrm/motorcrm/internal/jobs"
	"github.com/motorcrm/motorcrm/internal/observability"
	"github.com/motorcrm/motorcrm/internal/platform/cache"
	"github.com/motorcrm/motorcrm/internal/rbac"
	"github.com/motorcrm/motorcrm/internal/revenue"
	"github.com/motorcrm/motorcrm/internal/services"
	"github.com/motorcrm/motorcrm/internal/shared"
	"github.com/motorcrm/motorcrm/internal/users"
	"github.com/motorcrm/motorcrm/internal/view"
	"github.com/motorcrm/motorcrm/internal/zones"
	"github.com/motorcrm/motorcrm/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "motorcrm_session", cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	translator := i18n.New(cfg.DefaultLocale)

	templates, err := view.NewEngine(translator)
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		_ = inspector.Close()
	}()

	auditLogger := shared.NewAuditLogger(dbpool)

	rbacCache := cache.NewJSONCache(redisClient, "rbac:perms:", cfg.RBACCacheTTL)
	rbacService := rbac.NewService(rbac.NewStore(dbpool), rbacCache, logger)
	rbacMiddleware := rbac.Middleware{Service: rbacService, Logger: logger}

	authService := auth.NewService(auth.NewRepository(dbpool))
	authHandler := auth.NewHandler(logger, authService, templates, sessionManager, csrfManager)

	pdfClient := documents.NewClient(cfg.GotenbergURL)
	pdfRenderer, err := documents.NewRenderer(pdfClient, translator)
	if err != nil {
		logger.Error("init document renderer", slog.Any("error", err))
		os.Exit(1)
	}
	documentsHandler := documents.NewHandler(pdfClient, logger)

	zoneService := zones.NewService(zones.NewRepository(dbpool), auditLogger)
	zonesHandler := zones.NewHandler(logger, zoneService, templates, csrfManager, rbacMiddleware)

	customerService := customers.NewService(customers.NewRepository(dbpool), auditLogger)
	customersHandler := customers.NewHandler(logger, customerService, zoneService, templates, csrfManager, rbacMiddleware)

	carService := cars.NewService(cars.NewRepository(dbpool), auditLogger)
	carsHandler := cars.NewHandler(logger, carService, zoneService, templates, csrfManager, rbacMiddleware)

	dealService := deals.NewService(deals.NewRepository(dbpool), auditLogger, pdfRenderer)
	dealsHandler := deals.NewHandler(logger, dealService, deals.NewLookups(customerService, carService, zoneService), templates, csrfManager, rbacMiddleware)

	catalog := services.NewCatalog(services.NewRepository(dbpool), auditLogger)
	servicesHandler := services.NewHandler(logger, catalog, templates, csrfManager, rbacMiddleware)

	bookingRepo := bookings.NewRepository(dbpool)
	bookingService := bookings.NewService(bookingRepo, catalog, auditLogger, pdfRenderer)
	tokenSigner := bookings.NewTokenSigner(cfg.RespondTokenSecret, cfg.RespondTokenTTL)
	workflow := bookings.NewWorkflow(bookingRepo, jobClient, tokenSigner, cfg.AppBaseURL, jobMetrics, logger)
	bookingsHandler := bookings.NewHandler(logger, bookingService, workflow, bookings.NewLookups(customerService, catalog), templates, csrfManager, rbacMiddleware)
	respondHandler := bookings.NewRespondHandler(logger, bookingService, workflow, rbacService, templates, csrfManager)

	revenueService := revenue.NewService(revenue.NewRepository(dbpool), auditLogger)
	revenueHandler := revenue.NewHandler(logger, revenueService, catalog, templates, csrfManager, rbacMiddleware)

	dashboardService := dashboard.NewService(dashboard.NewRepository(dbpool), revenueService)
	dashboardHandler := dashboard.NewHandler(logger, dashboardService, templates, csrfManager)

	userService := users.NewService(users.NewRepository(dbpool), rbacService, auditLogger)
	usersHandler := users.NewHandler(logger, userService, templates, csrfManager, rbacMiddleware)
	rolesHandler := rbac.NewRolesHandler(logger, rbacService, templates, csrfManager, rbacMiddleware)

	auditService := audit.NewService(audit.NewRepository(dbpool))
	auditHandler := audithttp.NewHandler(logger, auditService, templates, csrfManager, audit.NewExporter(), rbacService)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessionManager,
		CSRFManager:      csrfManager,
		Translator:       translator,
		Metrics:          metrics,
		RBACMiddleware:   rbacMiddleware,
		CurrentUsers:     userService,
		AuthHandler:      authHandler,
		DashboardHandler: dashboardHandler,
		ZonesHandler:     zonesHandler,
		CustomersHandler: customersHandler,
		CarsHandler:      carsHandler,
		DealsHandler:     dealsHandler,
		ServicesHandler:  servicesHandler,
		BookingsHandler:  bookingsHandler,
		RespondHandler:   respondHandler,
		RevenueHandler:   revenueHandler,
		DocumentsHandler: documentsHandler,
		UsersHandler:     usersHandler,
		RolesHandler:     rolesHandler,
		AuditHandler:     auditHandler,
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
