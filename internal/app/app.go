// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/subwatch/subwatch/internal/alerts"
	"github.com/subwatch/subwatch/internal/alerts/email"
	alertspostgres "github.com/subwatch/subwatch/internal/alerts/postgres"
	"github.com/subwatch/subwatch/internal/alerts/whatsapp"
	"github.com/subwatch/subwatch/internal/config"
	"github.com/subwatch/subwatch/internal/identity"
	"github.com/subwatch/subwatch/internal/identity/jwt"
	identitypostgres "github.com/subwatch/subwatch/internal/identity/postgres"
	"github.com/subwatch/subwatch/internal/pkg/ctxlog"
	"github.com/subwatch/subwatch/internal/pkg/httputil"
	"github.com/subwatch/subwatch/internal/pkg/metrics"
	"github.com/subwatch/subwatch/internal/pkg/postgres"
	"github.com/subwatch/subwatch/internal/subscriptions"
	subscriptionspostgres "github.com/subwatch/subwatch/internal/subscriptions/postgres"
	"github.com/subwatch/subwatch/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	dispatcher    *alerts.Dispatcher
	trigger       *alerts.Trigger
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop the dispatch loop before the servers so no run straddles shutdown
	if a.trigger != nil {
		a.trigger.Stop()
	}

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Dispatcher returns the alert dispatcher instance. Used in tests to
// trigger dispatch runs directly.
func (a *App) Dispatcher() *alerts.Dispatcher {
	return a.dispatcher
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Subwatch API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        SwaggerUIBundle({
            url: "/api/openapi.yaml",
            dom_id: '#swagger-ui',
            presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
            layout: "BaseLayout"
        });
    </script>
</body>
</html>`))
	})

	identityRepo := identitypostgres.NewRepository(a.db)
	jwtAuth := jwt.NewAuthenticator(jwt.Config{
		SecretKey:           a.config.JWT.SecretKey,
		AccessTokenDuration: a.config.JWT.AccessTokenDuration,
	})
	identityService := identity.NewService(identityRepo, jwtAuth)
	identityHandler := identity.NewHandler(identityService)

	subscriptionsRepo := subscriptionspostgres.NewRepository(a.db)
	subscriptionsService := subscriptions.NewService(subscriptionsRepo)
	subscriptionsHandler := subscriptions.NewHandler(subscriptionsService)

	ledger := alertspostgres.NewLedger(a.db)

	slog.Info("alerts configured",
		"enabled", a.config.Alerts.Enabled,
		"interval", a.config.Alerts.Interval,
		"email_enabled", a.config.Alerts.Email.Enabled,
		"whatsapp_enabled", a.config.Alerts.WhatsApp.Enabled,
	)

	// Only enabled transports are registered. A channel without a sender is
	// skipped at dispatch time without a ledger entry.
	var senders []alerts.Sender

	emailSender, err := email.NewSender(ctx, email.Config{
		Enabled:      a.config.Alerts.Email.Enabled,
		SMTPHost:     a.config.Alerts.Email.SMTPHost,
		SMTPPort:     a.config.Alerts.Email.SMTPPort,
		SMTPUser:     a.config.Alerts.Email.SMTPUser,
		SMTPPassword: a.config.Alerts.Email.SMTPPassword,
		FromAddress:  a.config.Alerts.Email.FromAddress,
		RateLimit:    a.config.Alerts.Email.RateLimit,
		SES: email.SESConfig{
			Enabled:         a.config.Alerts.Email.SES.Enabled,
			Region:          a.config.Alerts.Email.SES.Region,
			AccessKeyID:     a.config.Alerts.Email.SES.AccessKeyID,
			SecretAccessKey: a.config.Alerts.Email.SES.SecretAccessKey,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}
	if a.config.Alerts.Email.Enabled {
		senders = append(senders, emailSender)
	} else {
		slog.Warn("email sender is disabled: renewal alerts will not be emailed")
	}

	if a.config.Alerts.WhatsApp.Enabled {
		senders = append(senders, whatsapp.NewSender(whatsapp.Config{
			Enabled: true,
		}))
	}

	a.dispatcher = alerts.NewDispatcher(alerts.DispatcherConfig{
		Offsets: a.config.Alerts.Offsets,
	}, subscriptionsService, identityService, ledger, senders...)

	if a.config.Alerts.Enabled {
		a.trigger = alerts.NewTrigger(a.config.Alerts.Interval, a.dispatcher)
		a.trigger.Start(ctx)
	}

	alertsHandler := alerts.NewHandler(a.dispatcher, subscriptionsService, identityService, ledger)

	r.Route("/api/v1", func(r chi.Router) {
		identityHandler.RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(identityService))

			identityHandler.RegisterProtectedRoutes(r)
			subscriptionsHandler.RegisterRoutes(r)
			alertsHandler.RegisterRoutes(r)
		})
	})

	return r, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.GitCommit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
