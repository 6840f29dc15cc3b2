package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/apperr"
	"github.com/poste-inventory/backend/internal/config"
)

func setupGateway(t *testing.T, handlerURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw, err := NewGateway(&config.Config{Role: "gateway", HandlerURL: handlerURL}, zap.NewNop())
	require.NoError(t, err)

	engine := gin.New()
	gw.RegisterRoutes(engine.Group("/api"))
	engine.GET("/health", gw.HealthCheck)
	return engine
}

// closeNotifyRecorder adds http.CloseNotifier to httptest.ResponseRecorder,
// which gin's responseWriter requires when driven by httputil.ReverseProxy.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
}

func (closeNotifyRecorder) CloseNotify() <-chan bool { return make(chan bool) }

func newRecorder() closeNotifyRecorder {
	return closeNotifyRecorder{httptest.NewRecorder()}
}

func TestProxy_ForwardsRequest(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"path":   r.URL.Path,
			"query":  r.URL.RawQuery,
			"token":  r.Header.Get("x-auth-token"),
			"body":   string(body),
			"method": r.Method,
		})
	}))
	defer upstream.Close()

	engine := setupGateway(t, upstream.URL)

	req := httptest.NewRequest(http.MethodPost, "/api/postes?x=1", strings.NewReader("payload"))
	req.Header.Set("x-auth-token", "abc")
	w := newRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "/api/postes", got["path"])
	assert.Equal(t, "x=1", got["query"])
	assert.Equal(t, "abc", got["token"])
	assert.Equal(t, "payload", got["body"])
	assert.Equal(t, http.MethodPost, got["method"])
}

func TestProxy_UpstreamDown(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	url := upstream.URL
	upstream.Close()

	engine := setupGateway(t, url)

	w := newRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/count-postes", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body apperr.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, apperr.CodeServiceUnavailable, body.Code)
}

func TestNewGateway_InvalidURL(t *testing.T) {
	_, err := NewGateway(&config.Config{HandlerURL: "not a url"}, zap.NewNop())
	assert.Error(t, err)
}

func TestHealthCheck(t *testing.T) {
	engine := setupGateway(t, "http://localhost:1")

	w := newRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"gateway"`)
	assert.Contains(t, w.Body.String(), `"success":true`)
}
