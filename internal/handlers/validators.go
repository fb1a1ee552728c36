package handlers

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"kahaf/internal/services"
)

const (
	passwordMinLen      = 8
	passwordMaxLen      = 32
	passwordSpecials    = `!@#$%^&*(),.?":{}|<>`
	passwordRuleMessage = "Password must be 8-32 characters long (at most 72 bytes) and contain an uppercase letter, a lowercase letter, a number and a special character"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator and
// makes field errors report json names.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("gin validator is not go-playground/validator")
	}

	var err error
	registerOnce.Do(func() {
		v.RegisterTagNameFunc(jsonFieldName)
		err = v.RegisterValidation("strongpassword", strongPassword)
	})
	return err
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func strongPassword(fl validator.FieldLevel) bool {
	return IsStrongPassword(fl.Field().String())
}

func IsStrongPassword(pw string) bool {
	n := len([]rune(pw))
	if n < passwordMinLen || n > passwordMaxLen {
		return false
	}
	// bcrypt считает байты, не символы
	if len(pw) > services.MaxPasswordBytes {
		return false
	}
	var upper, lower, digit, special bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	return upper && lower && digit && special
}
