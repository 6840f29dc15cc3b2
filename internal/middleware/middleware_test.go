package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func setupEngine(logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestLogger(logger), Metrics())
	engine.GET("/api/postes/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id")})
	})
	engine.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("database down"))
		c.Status(http.StatusInternalServerError)
	})
	return engine
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	engine := setupEngine(zap.New(core))

	for _, path := range []string{"/api/postes/abc", "/missing", "/boom"} {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/api/postes/:id", entries[0].ContextMap()["route"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, unmatchedPath, entries[1].ContextMap()["route"])

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Contains(t, entries[2].ContextMap()["errors"], "database down")
}

func TestMetrics_LabelsByRouteTemplate(t *testing.T) {
	engine := setupEngine(zap.NewNop())
	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/postes/:id", "200")
	before := testutil.ToFloat64(counter)

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/postes/one", nil))
	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/postes/two", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}
