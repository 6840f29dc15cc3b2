// Package main is the entry point for the pole inventory service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/auth"
	"github.com/poste-inventory/backend/internal/cache"
	"github.com/poste-inventory/backend/internal/config"
	"github.com/poste-inventory/backend/internal/database"
	"github.com/poste-inventory/backend/internal/gateway"
	"github.com/poste-inventory/backend/internal/handler"
	"github.com/poste-inventory/backend/internal/middleware"
	"github.com/poste-inventory/backend/internal/models"
	"github.com/poste-inventory/backend/internal/upload"
)

func main() {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	// Parse command line flags
	role := flag.String("role", "", "Service role: gateway or handler (overrides SERVICE_ROLE env var)")
	port := flag.String("port", "", "Server port (overrides SERVER_PORT env var)")
	flag.Parse()

	// Override environment variables if flags are provided
	if *role != "" {
		os.Setenv("SERVICE_ROLE", *role)
	}
	if *port != "" {
		os.Setenv("SERVER_PORT", *port)
	}

	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			newLogger,
			newGinEngine,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		roleModule(cfg),
		fx.Invoke(startServer),
	)

	app.Run()
}

// roleModule selects the components for the configured role.
func roleModule(cfg *config.Config) fx.Option {
	if cfg.IsGateway() {
		return fx.Invoke(registerGateway)
	}

	return fx.Options(
		fx.Provide(
			newDatabase,
			database.NewUserRepository,
			database.NewPosteRepository,
			newCache,
			newStorage,
			newUploadPipeline,
			newTokenManager,
			func(db *database.Postgres) handler.Pinger { return db },
			handler.NewHandler,
		),
		fx.Invoke(registerHandler, seedAdmin),
	)
}

// newLogger creates a new zap logger based on the environment.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newGinEngine creates and configures a new Gin engine.
func newGinEngine(cfg *config.Config, logger *zap.Logger) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	corsConfig := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", auth.HeaderToken},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if cfg.CORSOrigin == "" || cfg.CORSOrigin == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = strings.Split(cfg.CORSOrigin, ",")
		corsConfig.AllowCredentials = true
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(logger))
	engine.Use(middleware.Metrics())
	engine.Use(cors.New(corsConfig))

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return engine
}

// newDatabase connects to PostgreSQL, applies migrations and closes the pool on stop.
func newDatabase(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (*database.Postgres, error) {
	db, err := database.NewPostgres(cfg, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			db.Close()
			return nil
		},
	})
	return db, nil
}

func newCache(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (cache.Cache, error) {
	c, err := cache.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return c.Close()
		},
	})
	return c, nil
}

// newStorage creates the photo storage backend selected by STORAGE_DRIVER.
func newStorage(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (upload.Storage, error) {
	switch cfg.StorageDriver {
	case config.StorageGCS:
		s, err := upload.NewGCSStorage(context.Background(), cfg.GCSBucket, cfg.GCSPrefix, cfg.GCSCredentialsFile)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return s.Close()
			},
		})
		logger.Info("Using cloud storage", zap.String("bucket", cfg.GCSBucket), zap.String("prefix", cfg.GCSPrefix))
		return s, nil

	case config.StorageLocal, "":
		s, err := upload.NewLocalStorage(cfg.UploadDir, cfg.UploadBaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("Using local storage", zap.String("dir", cfg.UploadDir))
		return s, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

func newUploadPipeline(cfg *config.Config, storage upload.Storage, logger *zap.Logger) *upload.Pipeline {
	return upload.New(upload.Config{
		MaxFileSize:  cfg.MaxFileSize,
		MaxFiles:     cfg.MaxFiles,
		ExposeErrors: cfg.IsDevelopment(),
	}, storage, logger)
}

func newTokenManager(cfg *config.Config) *auth.TokenManager {
	return auth.NewTokenManager(cfg.SigningSecret(), cfg.TokenTTL)
}

// registerHandler mounts the API, health check and, for local storage, the uploaded files.
func registerHandler(engine *gin.Engine, h *handler.Handler, cfg *config.Config, logger *zap.Logger) {
	h.RegisterRoutes(engine.Group("/api"))
	engine.GET("/health", h.HealthCheck)

	if cfg.StorageDriver == config.StorageLocal || cfg.StorageDriver == "" {
		engine.Static(cfg.UploadBaseURL, cfg.UploadDir)
	}

	logger.Info("Handler routes registered")
}

// registerGateway mounts the proxy in front of a handler instance.
func registerGateway(engine *gin.Engine, cfg *config.Config, logger *zap.Logger) error {
	gw, err := gateway.NewGateway(cfg, logger)
	if err != nil {
		return err
	}

	gw.RegisterRoutes(engine.Group("/api"))
	gw.RegisterRoutes(engine.Group(cfg.UploadBaseURL))
	engine.GET("/health", gw.HealthCheck)

	logger.Info("Gateway routes registered",
		zap.String("handler_url", cfg.HandlerURL),
	)
	return nil
}

// seedAdmin creates the initial admin account when no user exists yet.
func seedAdmin(lc fx.Lifecycle, cfg *config.Config, users database.UserRepository, logger *zap.Logger) {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			n, err := users.Count(ctx)
			if err != nil {
				return fmt.Errorf("failed to count users: %w", err)
			}
			if n > 0 {
				return nil
			}

			hash, err := auth.HashPassword(cfg.AdminPassword)
			if err != nil {
				return err
			}

			_, err = users.Create(ctx, &models.User{
				Nome:      cfg.AdminName,
				Email:     strings.ToLower(cfg.AdminEmail),
				SenhaHash: hash,
				Role:      models.RoleAdmin,
			})
			if database.KindOf(err) == database.KindDuplicateKey {
				// Another instance seeded first.
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to seed admin: %w", err)
			}

			logger.Info("Seeded admin account", zap.String("email", cfg.AdminEmail))
			return nil
		},
	})
}

// startServer starts the HTTP server.
func startServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, engine *gin.Engine) {
	logger.Info("Starting service",
		zap.String("role", cfg.Role),
		zap.String("port", cfg.ServerPort),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("Server starting", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("Server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Server shutting down")
			return server.Shutdown(ctx)
		},
	})
}
