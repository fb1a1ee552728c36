package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"kahaf/internal/models"
	"kahaf/internal/services"
)

const (
	// ClaimsKey is where Identifier stores *services.Claims in the gin context.
	ClaimsKey = "claims"

	SessionCookie = "Authorization"
	ClientHeader  = "client"
	// клиенты без cookie (мобильные, CLI) шлют client: not-browser
	NonBrowserClient = "not-browser"
)

type TokenVerifier interface {
	Verify(token string) (*services.Claims, error)
}

// Identifier resolves the session token (header for non-browser clients,
// cookie otherwise) and stores its claims in the context. Any failure
// answers 403 with the same generic body.
func Identifier(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		// preflight пропускаем
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		raw := sessionToken(c)
		if raw == "" {
			deny(c)
			return
		}
		claims, err := tokens.Verify(raw)
		if err != nil {
			deny(c)
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// Claims returns the caller's claims set by Identifier.
func Claims(c *gin.Context) (*services.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*services.Claims)
	return claims, ok && claims != nil
}

func sessionToken(c *gin.Context) string {
	var raw string
	if strings.EqualFold(strings.TrimSpace(c.GetHeader(ClientHeader)), NonBrowserClient) {
		raw = c.GetHeader("Authorization")
	} else if v, err := c.Cookie(SessionCookie); err == nil {
		raw = v
	}
	return stripBearer(raw)
}

// stripBearer accepts both "Bearer <token>" and a bare token.
func stripBearer(raw string) string {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return raw
}

func deny(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, models.APIResponse{Success: false, Message: "Unauthorized"})
}
