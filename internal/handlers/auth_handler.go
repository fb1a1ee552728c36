package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"kahaf/internal/metrics"
	"kahaf/internal/models"
	"kahaf/internal/services"
)

type AuthHandler struct {
	engine     CredentialEngine
	metrics    Recorder
	production bool
}

func NewAuthHandler(engine CredentialEngine, rec Recorder, production bool) *AuthHandler {
	return &AuthHandler{engine: engine, metrics: rec, production: production}
}

// @Summary      Регистрация
// @Description  Создаёт неподтверждённого пользователя и открывает сессию
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.RegisterRequest  true  "Данные пользователя"
// @Success      201   {object}  models.APIResponse
// @Failure      400   {object}  models.APIResponse
// @Failure      409   {object}  models.APIResponse
// @Failure      500   {object}  models.APIResponse
// @Router       /register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	const op = "register"
	start := time.Now()

	var req models.RegisterRequest
	if !bindJSON(c, &req) {
		record(h.metrics, op, start, outcomeBadRequest)
		return
	}

	_, session, err := h.engine.Register(c.Request.Context(), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	record(h.metrics, op, start, outcomeOf(err))
	if err != nil {
		respondError(c, err)
		return
	}

	setSessionCookie(c, session, h.production)
	c.JSON(http.StatusCreated, models.APIResponse{
		Success: true,
		Token:   session.Token,
		Message: "Account created successfully",
	})
}

// @Summary      Вход в систему
// @Description  Проверяет e-mail и пароль, выставляет cookie сессии
// @Tags         Auth
// @Accept       json
// @Produce      json
// @Param        body  body      models.LoginRequest  true  "Данные для входа"
// @Success      200   {object}  models.APIResponse
// @Failure      400   {object}  models.APIResponse
// @Failure      401   {object}  models.APIResponse
// @Router       /login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	const op = "login"
	start := time.Now()

	var req models.LoginRequest
	if !bindJSON(c, &req) {
		record(h.metrics, op, start, outcomeBadRequest)
		return
	}

	_, session, err := h.engine.Login(c.Request.Context(), req.Email, req.Password)
	record(h.metrics, op, start, outcomeOf(err))
	if err != nil {
		respondError(c, err)
		return
	}

	setSessionCookie(c, session, h.production)
	c.JSON(http.StatusOK, models.APIResponse{
		Success: true,
		Token:   session.Token,
		Message: "Logged in successfully",
	})
}

// @Summary      Выход
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  models.APIResponse
// @Failure      403  {object}  models.APIResponse
// @Router       /logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	start := time.Now()
	claims, ok := claimsOrDeny(c)
	if !ok {
		return
	}

	session := h.engine.Logout(c.Request.Context(), claims)
	record(h.metrics, "logout", start, metrics.OutcomeOK)

	setSessionCookie(c, session, h.production)
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "logged out successfully"})
}

// @Summary      Текущий пользователь
// @Tags         Auth
// @Produce      json
// @Success      200  {object}  models.APIResponse{data=models.User}
// @Failure      401  {object}  models.APIResponse
// @Failure      403  {object}  models.APIResponse
// @Failure      404  {object}  models.APIResponse
// @Router       /me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := claimsOrDeny(c)
	if !ok {
		return
	}

	user, err := h.engine.CurrentUser(c.Request.Context(), claims)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: user})
}
