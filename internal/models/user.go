package models

import "time"

type User struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Email           string `json:"email"`
	PasswordHash    string `json:"-"` // не отдаём наружу
	PasswordVersion int    `json:"-"`
	Verified        bool   `json:"verified"`

	// одноразовые коды: хэш и время выдачи всегда выставляются и очищаются парой
	VerificationCodeHash       *string    `json:"-"`
	VerificationCodeIssuedAt   *time.Time `json:"-"`
	ForgotPasswordCodeHash     *string    `json:"-"`
	ForgotPasswordCodeIssuedAt *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) SetVerificationCode(hash string, issuedAt time.Time) {
	u.VerificationCodeHash = &hash
	u.VerificationCodeIssuedAt = &issuedAt
}

func (u *User) ClearVerificationCode() {
	u.VerificationCodeHash = nil
	u.VerificationCodeIssuedAt = nil
}

func (u *User) HasVerificationCode() bool {
	return u.VerificationCodeHash != nil && u.VerificationCodeIssuedAt != nil
}

func (u *User) SetForgotPasswordCode(hash string, issuedAt time.Time) {
	u.ForgotPasswordCodeHash = &hash
	u.ForgotPasswordCodeIssuedAt = &issuedAt
}

func (u *User) ClearForgotPasswordCode() {
	u.ForgotPasswordCodeHash = nil
	u.ForgotPasswordCodeIssuedAt = nil
}

func (u *User) HasForgotPasswordCode() bool {
	return u.ForgotPasswordCodeHash != nil && u.ForgotPasswordCodeIssuedAt != nil
}

// Clone returns a deep copy, so callers holding the copy never share
// code pointers with the stored record.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	cp.VerificationCodeHash = copyPtr(u.VerificationCodeHash)
	cp.VerificationCodeIssuedAt = copyPtr(u.VerificationCodeIssuedAt)
	cp.ForgotPasswordCodeHash = copyPtr(u.ForgotPasswordCodeHash)
	cp.ForgotPasswordCodeIssuedAt = copyPtr(u.ForgotPasswordCodeIssuedAt)
	return &cp
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
