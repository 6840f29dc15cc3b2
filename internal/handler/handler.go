// Package handler provides the HTTP handlers for users, poles and health.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/apperr"
	"github.com/poste-inventory/backend/internal/auth"
	"github.com/poste-inventory/backend/internal/cache"
	"github.com/poste-inventory/backend/internal/config"
	"github.com/poste-inventory/backend/internal/database"
	"github.com/poste-inventory/backend/internal/upload"
)

const healthTimeout = 2 * time.Second

// Pinger checks a backing connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler provides HTTP handlers for the inventory API.
type Handler struct {
	users   database.UserRepository
	postes  database.PosteRepository
	cache   cache.Cache
	uploads *upload.Pipeline
	tokens  *auth.TokenManager
	db      Pinger
	logger  *zap.Logger

	secureCookies bool
	exposeErrors  bool
}

// NewHandler creates a new inventory handler.
func NewHandler(
	cfg *config.Config,
	users database.UserRepository,
	postes database.PosteRepository,
	c cache.Cache,
	uploads *upload.Pipeline,
	tokens *auth.TokenManager,
	db Pinger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:         users,
		postes:        postes,
		cache:         c,
		uploads:       uploads,
		tokens:        tokens,
		db:            db,
		logger:        logger,
		secureCookies: !cfg.IsDevelopment(),
		exposeErrors:  cfg.IsDevelopment(),
	}
}

// RegisterRoutes registers the handler routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/login", h.Login)
	rg.GET("/count-usuarios", h.CountUsers)
	rg.GET("/listar-postes", h.ListPostes)
	rg.GET("/count-postes", h.CountPostes)
	rg.POST("/postes", h.uploads.Middleware(), h.CreatePoste)
	rg.PATCH("/postes/:id/location", h.UpdateLocation)

	admin := rg.Group("", auth.Authenticate(h.tokens, h.logger), auth.RequireAdmin())
	admin.POST("/cadastro-usuarios", h.CreateUser)
	admin.GET("/listar-usuarios", h.ListUsers)
	admin.PUT("/editar-usuario/:id", h.UpdateUser)
	admin.DELETE("/deletar-usuario/:id", h.DeleteUser)
}

// HealthCheck reports database and cache connectivity.
// The cache is optional, so only a database failure makes the service unhealthy.
func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success":  false,
			"status":   "unhealthy",
			"database": "disconnected",
			"code":     apperr.CodeServiceUnavailable,
			"message":  "database unavailable",
		})
		return
	}

	cacheStatus := "connected"
	if _, disabled := h.cache.(cache.NoopCache); disabled {
		cacheStatus = "disabled"
	} else if err := h.cache.Ping(ctx); err != nil {
		h.logger.Warn("Cache ping failed", zap.Error(err))
		cacheStatus = "disconnected"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"status":   "healthy",
		"database": "connected",
		"cache":    cacheStatus,
	})
}

// fail writes the failure envelope for err.
func (h *Handler) fail(c *gin.Context, err error) {
	apperr.Respond(c, err, h.exposeErrors)
}

// storeError maps a repository error onto the API taxonomy.
func storeError(err error, resource string) error {
	switch database.KindOf(err) {
	case database.KindNotFound:
		return apperr.NotFound(resource)
	case database.KindDuplicateKey:
		return apperr.Duplicate(duplicateMessage(err), err)
	case database.KindForeignKey:
		return &apperr.Error{
			Status:  http.StatusBadRequest,
			Code:    apperr.CodeValidation,
			Message: "referenced record does not exist",
			Err:     err,
		}
	}
	return apperr.Internal(err)
}

func duplicateMessage(err error) string {
	var dbErr *database.Error
	if errors.As(err, &dbErr) {
		switch dbErr.Constraint {
		case "usuarios_email_key":
			return "email already registered"
		case "postes_numero_identificacao_key":
			return "numeroIdentificacao already registered"
		}
	}
	return "record already exists"
}
