package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"kahaf/internal/metrics"
	"kahaf/internal/middleware"
	"kahaf/internal/models"
	"kahaf/internal/services"
)

// CredentialEngine is the part of services.CredentialService the HTTP layer drives.
type CredentialEngine interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, *services.Session, error)
	Login(ctx context.Context, email, password string) (*models.User, *services.Session, error)
	Logout(ctx context.Context, claims *services.Claims) *services.Session
	SendVerificationCode(ctx context.Context, email string) error
	VerifyVerificationCode(ctx context.Context, email, code string) error
	SendForgotPasswordCode(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, code, newPassword string) error
	ChangePassword(ctx context.Context, claims *services.Claims, oldPassword, newPassword string) (*services.Session, error)
	CurrentUser(ctx context.Context, claims *services.Claims) (*models.User, error)
	ListUsers(ctx context.Context, claims *services.Claims) ([]*models.User, error)
}

type Recorder interface {
	Record(operation, outcome string, took time.Duration)
}

const outcomeBadRequest = "bad_request"

// statusFor maps an engine error onto an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, services.ErrDeliveryFailed) {
		return http.StatusBadGateway
	}
	switch services.KindOf(err) {
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindExpired, services.KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), models.APIResponse{Success: false, Message: services.MessageOf(err)})
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	return services.KindOf(err).String()
}

func record(r Recorder, op string, start time.Time, outcome string) {
	if r == nil {
		return
	}
	r.Record(op, outcome, time.Since(start))
}

// bindJSON binds the body into dst and answers 400 with per-field errors
// when it does not validate.
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, models.APIResponse{
			Success: false,
			Message: "Validation Error",
			Errors:  fieldErrors(err),
		})
		return false
	}
	return true
}

func fieldErrors(err error) []models.FieldError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]models.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			out = append(out, models.FieldError{Path: fe.Field(), Message: fieldMessage(fe)})
		}
		return out
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []models.FieldError{{Path: typeErr.Field, Message: fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type)}}
	}
	return []models.FieldError{{Path: "body", Message: "Malformed JSON body"}}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return "Invalid email address"
	case "strongpassword":
		return passwordRuleMessage
	case "min", "max":
		if fe.Field() == "providedCode" {
			return "Verification code must be a 6-digit number"
		}
		if fe.Tag() == "min" {
			return fmt.Sprintf("%s must be at least %s characters long", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s cannot exceed %s characters", fe.Field(), fe.Param())
	}
	return fe.Field() + " is invalid"
}

func claimsOrDeny(c *gin.Context) (*services.Claims, bool) {
	claims, ok := middleware.Claims(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusForbidden, models.APIResponse{Success: false, Message: "Unauthorized"})
		return nil, false
	}
	return claims, true
}
