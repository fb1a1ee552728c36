package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kahaf/internal/models"
	"kahaf/internal/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&services.Error{Kind: services.KindNotFound}, http.StatusNotFound},
		{&services.Error{Kind: services.KindConflict}, http.StatusConflict},
		{&services.Error{Kind: services.KindUnauthorized}, http.StatusUnauthorized},
		{&services.Error{Kind: services.KindForbidden}, http.StatusForbidden},
		{&services.Error{Kind: services.KindExpired}, http.StatusBadRequest},
		{&services.Error{Kind: services.KindInvalid}, http.StatusBadRequest},
		{&services.Error{Kind: services.KindFailed}, http.StatusInternalServerError},
		{&services.Error{Kind: services.KindFailed, Err: services.ErrDeliveryFailed}, http.StatusBadGateway},
		{errors.New("untyped"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestIsStrongPassword(t *testing.T) {
	tests := map[string]bool{
		"Str0ng!Pass":  true,
		"N3w!Passw0rd": true,
		"short1!A":     true,
		"Sh0rt!":       false,
		"alllower1!":   false,
		"ALLUPPER1!":   false,
		"NoDigits!!":   false,
		"NoSpecial11":  false,
	}
	assert.False(t, IsStrongPassword("Way!T00Long"+strings.Repeat("a", 30)))

	// 32 runes but 88 bytes: over the bcrypt input limit
	multibyte := "Aa1!" + strings.Repeat("€", 28)
	require.Len(t, []rune(multibyte), 32)
	assert.False(t, IsStrongPassword(multibyte))

	// exactly 72 bytes in 28 runes is still accepted
	atLimit := "Aa1!" + strings.Repeat("€", 22) + "aa"
	require.Len(t, atLimit, 72)
	assert.True(t, IsStrongPassword(atLimit))
	for pw, want := range tests {
		assert.Equal(t, want, IsStrongPassword(pw), pw)
	}
}

func TestBindJSON_FieldErrors(t *testing.T) {
	require.NoError(t, RegisterValidators())

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/register",
		strings.NewReader(`{"name":"A","email":"nope","password":"weak"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req models.RegisterRequest
	assert.False(t, bindJSON(c, &req))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `"message":"Validation Error"`)
	assert.Contains(t, body, `"path":"name"`)
	assert.Contains(t, body, `"path":"email"`)
	assert.Contains(t, body, `"path":"password"`)
	assert.Contains(t, body, "Invalid email address")
}

func TestBindJSON_MalformedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"email":`))
	c.Request.Header.Set("Content-Type", "application/json")

	var req models.EmailRequest
	assert.False(t, bindJSON(c, &req))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"path":"body"`)
}

func TestSetSessionCookie(t *testing.T) {
	session := &services.Session{Token: "tok", ExpiresAt: time.Now().Add(services.SessionTTL)}

	t.Run("development", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		setSessionCookie(c, session, false)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		ck := cookies[0]
		assert.Equal(t, "Authorization", ck.Name)
		assert.Equal(t, "Bearer tok", ck.Value)
		assert.True(t, ck.HttpOnly)
		assert.False(t, ck.Secure)
		assert.Equal(t, http.SameSiteLaxMode, ck.SameSite)
		assert.Equal(t, "/", ck.Path)
		assert.Equal(t, int((8 * time.Hour).Seconds()), ck.MaxAge)
	})

	t.Run("production", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		setSessionCookie(c, session, true)

		ck := rec.Result().Cookies()[0]
		assert.True(t, ck.Secure)
		assert.Equal(t, http.SameSiteNoneMode, ck.SameSite)
	})

	t.Run("cleared", func(t *testing.T) {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		setSessionCookie(c, &services.Session{Cleared: true}, true)

		ck := rec.Result().Cookies()[0]
		assert.Empty(t, ck.Value)
		assert.Equal(t, -1, ck.MaxAge)
		assert.True(t, ck.HttpOnly)
		assert.True(t, ck.Secure)
	})
}
