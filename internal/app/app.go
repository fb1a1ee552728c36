package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "kahaf/docs"
	"kahaf/internal/config"
	"kahaf/internal/handlers"
	"kahaf/internal/logging"
	"kahaf/internal/metrics"
	"kahaf/internal/middleware"
	"kahaf/internal/repositories"
	"kahaf/internal/routes"
	"kahaf/internal/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sql.DB
	router *gin.Engine
}

// New wires storage, services and the gin engine. The caller owns Close.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}

	// === Storage ===
	users, err := a.openUsers(ctx)
	if err != nil {
		return nil, err
	}

	// === Services ===
	secrets := cfg.Secrets()
	var mailer services.Mailer
	if cfg.Email.SMTPHost != "" {
		mailer = services.NewSMTPMailer(
			cfg.Email.SMTPHost,
			cfg.Email.SMTPPort,
			cfg.Email.SMTPUser,
			cfg.Email.SMTPPassword,
			cfg.Email.FromEmail,
		)
	} else {
		logger.Warn("smtp host is not set, code delivery is disabled")
		mailer = services.NewDisabledMailer()
	}

	tokens := services.NewTokenService(secrets)
	engine, err := services.NewCredentialService(
		users,
		services.NewPasswordHasher(),
		services.NewCodeService(secrets),
		tokens,
		mailer,
		logger,
	)
	if err != nil {
		a.Close()
		return nil, err
	}

	// === Gin ===
	if err := handlers.RegisterValidators(); err != nil {
		a.Close()
		return nil, err
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	m := metrics.New()

	router := gin.New()
	router.Use(logging.GinLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSOrigins))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(m.Handler()))

	routes.SetupRoutes(
		router,
		tokens,
		handlers.NewAuthHandler(engine, m, cfg.Production()),
		handlers.NewUserHandler(engine, m, cfg.Production()),
	)
	a.router = router
	return a, nil
}

func (a *App) openUsers(ctx context.Context) (repositories.UserRepository, error) {
	if a.cfg.Database.Driver == "memory" {
		a.logger.Warn("using in-memory user storage, data is lost on restart")
		return repositories.NewMemoryUserRepository(), nil
	}

	db, err := OpenDB(ctx, a.cfg)
	if err != nil {
		return nil, err
	}
	if err := repositories.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.db = db
	return repositories.NewUserRepository(db), nil
}

// OpenDB opens and pings the configured Postgres database.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func (a *App) Handler() http.Handler {
	return a.router
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server started", "addr", srv.Addr, "env", a.cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

func (a *App) Close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("close database", "error", err)
	}
}
