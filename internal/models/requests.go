package models

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,strongpassword"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type EmailRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type VerifyCodeRequest struct {
	Email        string `json:"email" binding:"required,email"`
	ProvidedCode int    `json:"providedCode" binding:"required,min=100000,max=999999"`
}

type ForgotPasswordRequest struct {
	Email        string `json:"email" binding:"required,email"`
	ProvidedCode int    `json:"providedCode" binding:"required,min=100000,max=999999"`
	NewPassword  string `json:"newPassword" binding:"required,strongpassword"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,strongpassword"`
}

// APIResponse is the envelope every endpoint answers with.
type APIResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message,omitempty"`
	Token   string       `json:"token,omitempty"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}
