package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kahaf/internal/middleware"
	"kahaf/internal/services"
)

// setSessionCookie writes the session as "Bearer <token>". A cleared session
// expires the cookie with the same attributes it was set with.
func setSessionCookie(c *gin.Context, s *services.Session, production bool) {
	ck := &http.Cookie{
		Name:     middleware.SessionCookie,
		Path:     "/",
		HttpOnly: true,
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
	}
	if production {
		ck.SameSite = http.SameSiteNoneMode
	}

	if s == nil || s.Cleared {
		ck.Value = ""
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
	} else {
		ck.Value = "Bearer " + s.Token
		ck.Expires = s.ExpiresAt
		ck.MaxAge = int(services.SessionTTL.Seconds())
	}
	http.SetCookie(c.Writer, ck)
}
