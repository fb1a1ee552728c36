package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"kahaf/internal/handlers"
	"kahaf/internal/middleware"
	"kahaf/internal/models"
)

func SetupRoutes(
	r *gin.Engine,
	tokens middleware.TokenVerifier,
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
) *gin.Engine {
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "kahaf credential service is running")
	})
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// ---- public
	api.POST("/register", authHandler.Register)
	api.POST("/login", authHandler.Login)
	api.PATCH("/send-forgot-password-verification-code", userHandler.SendForgotPasswordCode)
	api.PATCH("/verify-forgot-password-verification-code", userHandler.ResetPassword)

	// ---- session
	session := api.Group("", middleware.Identifier(tokens))
	{
		session.POST("/logout", authHandler.Logout)
		session.GET("/me", authHandler.Me)
		session.PATCH("/send-verification-code", userHandler.SendVerificationCode)
		session.PATCH("/verify-verification-code", userHandler.VerifyVerificationCode)
		session.PATCH("/change-password", userHandler.ChangePassword)
		session.GET("/admin", userHandler.ListUsers)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.APIResponse{
			Success: false,
			Message: "Route " + c.Request.Method + " " + c.Request.URL.Path + " not found",
		})
	})
	return r
}
