package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/stanstork/ssd/internal/authz"
	"github.com/stanstork/ssd/internal/config"
	"github.com/stanstork/ssd/internal/dashboard"
	"github.com/stanstork/ssd/internal/escalation"
	"github.com/stanstork/ssd/internal/events"
	"github.com/stanstork/ssd/internal/handlers"
	"github.com/stanstork/ssd/internal/middleware"
	"github.com/stanstork/ssd/internal/migration"
	"github.com/stanstork/ssd/internal/models"
	"github.com/stanstork/ssd/internal/notification"
	"github.com/stanstork/ssd/internal/repository"
	"github.com/stanstork/ssd/internal/routes"
	"github.com/stanstork/ssd/internal/settings"
	"github.com/stanstork/ssd/internal/uploads"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
	_ "time/tzdata"
)

type application struct {
	config   *config.Config
	db       *sql.DB
	logger   zerolog.Logger
	settings *settings.Store
	location *time.Location
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	goose.SetLogger(migration.NewGooseAdapter(logger))

	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn().Err(err).Msg("Failed to read .env file")
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load timezone")
	}

	// Initialize database connection.
	db, err := sql.Open(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if cfg.Database.Driver == config.DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	if err := migration.Run(db, migration.Dialect(cfg.Database.Driver), logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	store := settings.NewStore(repository.NewSettingRepository(db), logger)
	if err := store.Reload(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to load runtime settings")
	}

	app := &application{
		config:   cfg,
		db:       db,
		logger:   logger,
		settings: store,
		location: location,
	}

	if err := app.bootstrapAdmin(context.Background()); err != nil {
		logger.Fatal().Err(err).Msg("Failed to provision admin account")
	}

	// Initialize the HTTP router and middleware.
	router := app.initRouter(logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	proxied := h.ProxyHeaders(middleware.Recoverer(app.logger)(loggedRouter))
	handler := proxied
	if len(cfg.CORS.AllowedOrigins) > 0 {
		handler = h.CORS(
			h.AllowedOrigins(cfg.CORS.AllowedOrigins),
			h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
			h.AllowedHeaders([]string{"Content-Type"}),
			h.AllowCredentials(),
		)(proxied)
	}

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(handler, logger)

	logger.Info().Msg("Application terminated.")
}

// bootstrapAdmin creates the configured staff account, or resets its password when it exists.
func (app *application) bootstrapAdmin(ctx context.Context) error {
	admin := app.config.Admin
	if admin.Username == "" || admin.Password == "" {
		return nil
	}

	users := repository.NewUserRepository(app.db)
	_, err := users.GetUserByUsername(ctx, admin.Username)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := users.CreateUser(ctx, admin.Username, admin.Password, admin.Username, "", models.RoleStaff); err != nil {
			return err
		}
		app.logger.Info().Str("username", admin.Username).Msg("Created admin account")
		return nil
	case err != nil:
		return err
	}
	return users.SetPassword(ctx, admin.Username, admin.Password)
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(logger zerolog.Logger) http.Handler {
	// Repositories
	eventRepo := repository.NewEventRepository(app.db)
	serviceRepo := repository.NewServiceRepository(app.db)
	recipientRepo := repository.NewRecipientRepository(app.db)
	reportRepo := repository.NewReportRepository(app.db)
	contactRepo := repository.NewEscalationRepository(app.db)
	userRepo := repository.NewUserRepository(app.db)

	// Mailer for notifications and pages
	mailer, err := notification.NewSMTPMailer(app.config.Email, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure mailer")
	}
	notifier := notification.NewService(eventRepo, recipientRepo, app.settings, mailer, app.config.Email.From, logger)

	// Services
	dash := dashboard.NewService(serviceRepo, eventRepo, reportRepo, app.settings, app.config.Dashboard.CacheTTL, logger)
	eventService := events.NewService(eventRepo, notifier, dash, app.settings, logger)
	contacts := escalation.NewService(contactRepo, logger)
	sessions := authz.NewSessions(app.config.JWTSecret, app.config.SecureCookies, logger)

	render, err := handlers.NewRenderer(app.settings, app.location, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse page templates")
	}

	// Handlers
	return routes.NewRouter(routes.Handlers{
		Public:     handlers.NewPublicHandler(dash, eventService, render, logger),
		Events:     handlers.NewEventHandler(eventService, serviceRepo, recipientRepo, app.settings, render, logger),
		Reports:    handlers.NewReportHandler(reportRepo, uploads.NewStore(logger), notifier, dash, app.settings, render, logger),
		Escalation: handlers.NewEscalationHandler(contacts, app.settings, render, logger),
		Admin:      handlers.NewAdminHandler(app.settings, serviceRepo, recipientRepo, dash, render, logger),
		Auth:       handlers.NewAuthHandler(userRepo, sessions, render, logger),
		Health:     handlers.NewHealthHandler(app.db, logger),
	}, sessions, app.config.Report.RateLimit)
}

// startServer launches the HTTP server and handles graceful shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:              ":" + app.config.ServerPort,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}
