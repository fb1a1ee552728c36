package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"kahaf/internal/models"
)

// UserHandler serves the verification and password-recovery endpoints.
type UserHandler struct {
	engine     CredentialEngine
	metrics    Recorder
	production bool
}

func NewUserHandler(engine CredentialEngine, rec Recorder, production bool) *UserHandler {
	return &UserHandler{engine: engine, metrics: rec, production: production}
}

// @Summary      Отправить код подтверждения e-mail
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "E-mail"
// @Success      200   {object}  models.APIResponse
// @Failure      404   {object}  models.APIResponse
// @Failure      409   {object}  models.APIResponse
// @Failure      502   {object}  models.APIResponse
// @Router       /send-verification-code [patch]
func (h *UserHandler) SendVerificationCode(c *gin.Context) {
	const op = "send_verification_code"
	start := time.Now()

	var req models.EmailRequest
	if !bindJSON(c, &req) {
		record(h.metrics, op, start, outcomeBadRequest)
		return
	}

	err := h.engine.SendVerificationCode(c.Request.Context(), req.Email)
	record(h.metrics, op, start, outcomeOf(err))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "Code sent!"})
}

// @Summary      Подтвердить e-mail кодом
// @Tags         Verification
// @Accept       json
// @Produce      json
// @Param        body  body      models.VerifyCodeRequest  true  "E-mail и код"
// @Success      200   {object}  models.APIResponse
// @Failure      400   {object}  models.APIResponse
// @Failure      404   {object}  models.APIResponse
// @Failure      409   {object}  models.APIResponse
// @Router       /verify-verification-code [patch]
func (h *UserHandler) VerifyVerificationCode(c *gin.Context) {
	const op = "verify_verification_code"
	start := time.Now()

	var req models.VerifyCodeRequest
	if !bindJSON(c, &req) {
		record(h.metrics, op, start, outcomeBadRequest)
		return
	}

	err := h.engine.VerifyVerificationCode(c.Request.Context(), req.Email, strconv.Itoa(req.ProvidedCode))
	record(h.metrics, op, start, outcomeOf(err))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "Account verified successfully!"})
}

// @Summary      Сменить пароль
// @Description  Требует подтверждённый аккаунт; выдаёт новую сессию
// @Tags         Password
// @Accept       json
// @Produce      json
// @Param        body  body      models.ChangePasswordRequest  true  "Старый и новый пароль"
// @Success      200   {object}  models.APIResponse
// @Failure      401   {object}  models.APIResponse
// @Failure      403   {object}  models.APIResponse
// @Router       /change-password [patch]
func (h *UserHandler) ChangePassword(c *gin.Context) {
	const op = "change_password"
	start := time.Now()

	claims, ok := claimsOrDeny(c)
	if !ok {
		return
	}
	var req models.ChangePasswordRequest
	if !bindJSON(c, &req) {
		record(h.metrics, op, start, outcomeBadRequest)
		return
	}

	session, err := h.engine.ChangePassword(c.Request.Context(), claims, req.OldPassword, req.NewPassword)
	record(h.metrics, op, start, outcomeOf(err))
	if err != nil {
		respondError(c, err)
		return
	}

	setSessionCookie(c, session, h.production)
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Token: session.Token, Message: "Password updated!"})
}

// @Summary      Список пользователей
// @Description  Без хэшей паролей и кодов
// @Tags         Admin
// @Produce      json
// @Success      200  {object}  models.APIResponse{data=[]models.User}
// @Failure      401  {object}  models.APIResponse
// @Failure      403  {object}  models.APIResponse
// @Router       /admin [get]
func (h *UserHandler) ListUsers(c *gin.Context) {
	const op = "list_users"
	start := time.Now()

	claims, ok := claimsOrDeny(c)
	if !ok {
		return
	}

	users, err := h.engine.ListUsers(c.Request.Context(), claims)
	record(h.metrics, op, start, outcomeOf(err))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Data: users})
}

// @Summary      Отправить код восстановления пароля
// @Tags         Password
// @Accept       json
// @Produce      json
// @Param        body  body      models.EmailRequest  true  "E-mail"
// @Success      200   {object}  models.APIResponse
// @Failure      404   {object}  models.APIResponse
// @Failure      502   {object}  models.APIResponse
// @Router       /send-forgot-password-verification-code [patch]
func (h *UserHandler) SendForgotPasswordCode(c *gin.Context) {
	const op = "send_forgot_password_code"
	start := time.Now()

	var req models.EmailRequest
	if !bindJSON(c, &req) {
		record(h.metrics, op, start, outcomeBadRequest)
		return
	}

	err := h.engine.SendForgotPasswordCode(c.Request.Context(), req.Email)
	record(h.metrics, op, start, outcomeOf(err))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "Code sent!"})
}

// @Summary      Сбросить пароль по коду
// @Tags         Password
// @Accept       json
// @Produce      json
// @Param        body  body      models.ForgotPasswordRequest  true  "E-mail, код и новый пароль"
// @Success      200   {object}  models.APIResponse
// @Failure      400   {object}  models.APIResponse
// @Router       /verify-forgot-password-verification-code [patch]
func (h *UserHandler) ResetPassword(c *gin.Context) {
	const op = "reset_password"
	start := time.Now()

	var req models.ForgotPasswordRequest
	if !bindJSON(c, &req) {
		record(h.metrics, op, start, outcomeBadRequest)
		return
	}

	err := h.engine.ResetPassword(c.Request.Context(), req.Email, strconv.Itoa(req.ProvidedCode), req.NewPassword)
	record(h.metrics, op, start, outcomeOf(err))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.APIResponse{Success: true, Message: "Password updated!!"})
}
