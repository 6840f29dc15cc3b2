package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/poste-inventory/backend/internal/apperr"
	"github.com/poste-inventory/backend/internal/models"
)

const (
	// HeaderToken is the custom header carrying a bare token.
	HeaderToken = "x-auth-token"
	// CookieToken is the cookie carrying a bare token.
	CookieToken = "token"

	identityKey = "auth.identity"
)

// TokenFromRequest extracts a token from the Authorization header,
// the x-auth-token header or the token cookie, in that order.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			if t := strings.TrimSpace(h[7:]); t != "" {
				return t
			}
		}
	}
	if t := strings.TrimSpace(r.Header.Get(HeaderToken)); t != "" {
		return t
	}
	if c, err := r.Cookie(CookieToken); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// Authenticate verifies the request token and stores the identity on the context.
func Authenticate(tokens *TokenManager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := TokenFromRequest(c.Request)
		if tokenStr == "" {
			apperr.Respond(c, apperr.MissingAuth(), false)
			return
		}

		identity, err := tokens.Verify(tokenStr)
		if err != nil {
			logger.Debug("Rejected token", zap.String("path", c.FullPath()), zap.Error(err))
			apperr.Respond(c, apperr.InvalidToken(err), false)
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRole allows the request only when the authenticated identity holds role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			apperr.Respond(c, apperr.MissingAuth(), false)
			return
		}

		if identity.Role != role {
			if role == models.RoleAdmin {
				apperr.Respond(c, apperr.AdminRequired(identity.Role), false)
			} else {
				apperr.Respond(c, apperr.Forbidden(apperr.CodeRoleRequired, role+" role required").With("role", identity.Role), false)
			}
			return
		}

		c.Next()
	}
}

// RequireAdmin gates a route to the admin role.
func RequireAdmin() gin.HandlerFunc {
	return RequireRole(models.RoleAdmin)
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*Identity)
	return identity, ok && identity != nil
}

