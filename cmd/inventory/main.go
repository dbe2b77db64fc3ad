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
	"github.com/joho/godotenv"

	"github.com/inventory-manager/inventory-manager/internal/app"
	"github.com/inventory-manager/inventory-manager/internal/assets"
	"github.com/inventory-manager/inventory-manager/internal/auth"
	"github.com/inventory-manager/inventory-manager/internal/invitations"
	"github.com/inventory-manager/inventory-manager/internal/observability"
	"github.com/inventory-manager/inventory-manager/internal/passwordreset"
	"github.com/inventory-manager/inventory-manager/internal/platform/cache"
	"github.com/inventory-manager/inventory-manager/internal/platform/db"
	"github.com/inventory-manager/inventory-manager/internal/platform/mail"
	"github.com/inventory-manager/inventory-manager/internal/platform/storage"
	"github.com/inventory-manager/inventory-manager/internal/rbac"
	"github.com/inventory-manager/inventory-manager/internal/roles"
	"github.com/inventory-manager/inventory-manager/internal/shared"
	"github.com/inventory-manager/inventory-manager/internal/users"
	"github.com/inventory-manager/inventory-manager/internal/view"
	"github.com/inventory-manager/inventory-manager/jobs"
	"github.com/inventory-manager/inventory-manager/report"
)

const summaryCacheTTL = 5 * time.Minute

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	if cfg.AutoMigrate {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			logger.Error("migrate database", slog.Any("error", err))
			os.Exit(1)
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "inventory_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	metrics := observability.NewMetrics()

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := storage.New(ctx, cfg.StorageConfig())
	if err != nil {
		logger.Error("init storage", slog.Any("error", err))
		os.Exit(1)
	}
	mailer := mail.WithObserver(mail.NewSMTPSender(cfg.MailConfig(), logger), metrics)

	roleService := roles.NewService(roles.NewRepository(dbpool))
	gate := rbac.NewGate(roleService)

	usersService := users.NewService(users.NewRepository(dbpool), store, shared.NewAuditLogger(dbpool), logger)
	rbacMiddleware := rbac.Middleware{Gate: gate, Loader: usersService, Errors: templates, Logger: logger}

	assetsService := assets.NewService(
		assets.NewRepository(dbpool),
		gate,
		cache.NewVersioned(redisClient, "assets:summary", summaryCacheTTL),
		assets.Config{ReturnNearDays: cfg.ReturnNearDays, Observer: metrics},
		logger,
	)

	var (
		pdfRenderer   assets.PDFRenderer
		reportHandler *report.Handler
	)
	if cfg.GotenbergURL != "" {
		pdfClient := report.NewClient(cfg.GotenbergURL)
		pdfRenderer = pdfClient
		reportHandler = report.NewHandler(pdfClient, logger)
	}

	authService := auth.NewService(auth.NewRepository(dbpool), roleService, logger)
	invitationService := invitations.NewService(invitations.NewRepository(dbpool), roleService, mailer, invitations.Config{
		BaseURL:         cfg.AppBaseURL,
		AllowOpenSignup: cfg.AllowOpenSignup,
	}, logger)
	resetService := passwordreset.NewService(passwordreset.NewRepository(dbpool), mailer, passwordreset.Config{
		BaseURL: cfg.AppBaseURL,
		TTL:     cfg.ResetTokenTTL,
	}, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() { _ = inspector.Close() }()

	router := app.NewRouter(app.RouterParams{
		Logger:               logger,
		Config:               cfg,
		Templates:            templates,
		SessionManager:       sessionManager,
		CSRFManager:          csrfManager,
		RBACMiddleware:       rbacMiddleware,
		Metrics:              metrics,
		AuthHandler:          auth.NewHandler(logger, authService, templates, sessionManager, csrfManager, rbacMiddleware, cfg.AllowOpenSignup),
		UsersHandler:         users.NewHandler(logger, usersService, roleService, templates, csrfManager, rbacMiddleware, assetsService),
		InvitationsHandler:   invitations.NewHandler(logger, invitationService, templates, sessionManager, csrfManager, rbacMiddleware),
		PasswordResetHandler: passwordreset.NewHandler(logger, resetService, templates, csrfManager, rbacMiddleware),
		AssetsHandler:        assets.NewHandler(logger, assetsService, usersService, templates, csrfManager, rbacMiddleware, pdfRenderer),
		ReportHandler:        reportHandler,
		JobHandler:           jobs.NewHandler(inspector, jobClient, logger),
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
