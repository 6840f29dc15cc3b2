// Package gateway provides the API gateway that forwards requests to a handler instance.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/apperr"
	"github.com/poste-inventory/backend/internal/config"
)

// Gateway provides the API gateway functionality.
type Gateway struct {
	cfg    *config.Config
	logger *zap.Logger
	proxy  *httputil.ReverseProxy
}

// NewGateway creates a gateway forwarding to cfg.HandlerURL.
func NewGateway(cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	target, err := url.Parse(cfg.HandlerURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid handler URL %q", cfg.HandlerURL)
	}

	g := &Gateway{cfg: cfg, logger: logger}
	g.proxy = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			r.Out.Host = r.In.Host
		},
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: 30 * time.Second,
			IdleConnTimeout:       90 * time.Second,
		},
		ErrorHandler: g.proxyError,
	}
	return g, nil
}

// RegisterRoutes registers the gateway routes on the given router group.
// Bodies, multipart uploads included, are streamed to the handler untouched.
func (g *Gateway) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Any("/*path", g.proxyToHandler)
}

func (g *Gateway) proxyToHandler(c *gin.Context) {
	g.logger.Debug("Proxying request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
	)
	g.proxy.ServeHTTP(c.Writer, c.Request)
}

func (g *Gateway) proxyError(w http.ResponseWriter, r *http.Request, err error) {
	g.logger.Error("Failed to proxy request", zap.String("path", r.URL.Path), zap.Error(err))

	appErr := apperr.New(http.StatusBadGateway, apperr.CodeServiceUnavailable, "failed to reach handler service")
	if errors.Is(err, syscall.ECONNREFUSED) {
		appErr = apperr.New(http.StatusServiceUnavailable, apperr.CodeServiceUnavailable, "handler service is not available")
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(appErr.Status)
	_ = json.NewEncoder(w).Encode(appErr.Body(false))
}

// HealthCheck returns a health check handler.
func (g *Gateway) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  "healthy",
		"role":    g.cfg.Role,
		"service": "poste-inventory",
	})
}
