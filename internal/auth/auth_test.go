package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/apperr"
	"github.com/poste-inventory/backend/internal/models"
)

func TestIssueAndVerify(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)

	token, exp, err := tm.Issue("user-1", models.RoleAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	identity, err := tm.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.ID)
	assert.Equal(t, models.RoleAdmin, identity.Role)
}

func TestVerify_RejectsWrongSecret(t *testing.T) {
	token, _, err := NewTokenManager("secret", time.Hour).Issue("user-1", models.RoleAdmin)
	require.NoError(t, err)

	_, err = NewTokenManager("other", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestVerify_RejectsExpired(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	tm.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := tm.Issue("user-1", models.RoleAdmin)
	require.NoError(t, err)

	_, err = NewTokenManager("secret", time.Hour).Verify(token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{ID: "user-1", Role: models.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewTokenManager("secret", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestVerify_RejectsMissingClaims(t *testing.T) {
	token, _, err := NewTokenManager("secret", time.Hour).Issue("", "")
	require.NoError(t, err)

	_, err = NewTokenManager("secret", time.Hour).Verify(token)
	assert.Error(t, err)
}

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3nha-forte")
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("s3nha-forte", hash))
	assert.False(t, CheckPasswordHash("errada", hash))
}

func TestTokenFromRequest_Precedence(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(r *http.Request)
		expect string
	}{
		{"none", func(r *http.Request) {}, ""},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer a") }, "a"},
		{"lowercase bearer", func(r *http.Request) { r.Header.Set("Authorization", "bearer a") }, "a"},
		{"custom header", func(r *http.Request) { r.Header.Set(HeaderToken, "b") }, "b"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: CookieToken, Value: "c"}) }, "c"},
		{"bearer wins over header and cookie", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer a")
			r.Header.Set(HeaderToken, "b")
			r.AddCookie(&http.Cookie{Name: CookieToken, Value: "c"})
		}, "a"},
		{"header wins over cookie", func(r *http.Request) {
			r.Header.Set(HeaderToken, "b")
			r.AddCookie(&http.Cookie{Name: CookieToken, Value: "c"})
		}, "b"},
		{"non bearer authorization falls through", func(r *http.Request) {
			r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
			r.Header.Set(HeaderToken, "b")
		}, "b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.setup(r)
			assert.Equal(t, tt.expect, TokenFromRequest(r))
		})
	}
}

func setupProtectedEngine(tm *TokenManager) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	admin := engine.Group("/admin", Authenticate(tm, zap.NewNop()), RequireAdmin())
	admin.GET("/ping", func(c *gin.Context) {
		identity, _ := IdentityFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": identity.ID})
	})
	return engine
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apperr.Envelope {
	t.Helper()
	var body apperr.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAdminGate(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour)
	engine := setupProtectedEngine(tm)

	adminToken, _, _ := tm.Issue("admin-1", models.RoleAdmin)
	userToken, _, _ := tm.Issue("user-1", models.RoleUsuario)

	t.Run("missing token", func(t *testing.T) {
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/ping", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, apperr.CodeMissingAuth, decodeError(t, w).Code)
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, apperr.CodeInvalidToken, decodeError(t, w).Code)
	})

	t.Run("non admin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
		req.Header.Set(HeaderToken, userToken)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusForbidden, w.Code)
		body := decodeError(t, w)
		assert.Equal(t, apperr.CodeAdminRequired, body.Code)
		assert.Equal(t, models.RoleUsuario, body.Details["role"])
	})

	t.Run("admin via cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/admin/ping", nil)
		req.AddCookie(&http.Cookie{Name: CookieToken, Value: adminToken})
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "admin-1")
	})
}

func TestRequireRole_WithoutAuthenticate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/x", RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole_OtherRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/x", func(c *gin.Context) {
		c.Set(identityKey, &Identity{ID: "u", Role: models.RoleUsuario})
	}, RequireRole(models.RoleCadastrador), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, apperr.CodeRoleRequired, decodeError(t, w).Code)
}
