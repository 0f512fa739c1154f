package auth

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	defaultPasswordMinLength = 8
	// bcrypt ignores input beyond 72 bytes and newer versions reject it.
	maxPasswordBytes = 72
)

var (
	validate    = validator.New()
	slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

func init() {
	_ = validate.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	})
}

// validateStruct runs struct tag validation and converts failures into
// ErrInvalidInput-class errors naming the first offending field.
func validateStruct(s any) error {
	if err := validate.Struct(s); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &Error{Code: CodeValidation, Message: describeFieldError(fe), Err: err}
		}
		return &Error{Code: CodeValidation, Message: "invalid input", Err: err}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "slug":
		return fmt.Sprintf("%s must contain only lowercase letters, digits and single hyphens", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// checkPassword enforces the configured minimum length, counted in characters.
func checkPassword(password string, minLength int) error {
	if minLength <= 0 {
		minLength = defaultPasswordMinLength
	}
	if utf8.RuneCountInString(password) < minLength {
		return newError(CodeValidation, "Password must be at least %d characters", minLength)
	}
	if len(password) > maxPasswordBytes {
		return newError(CodeValidation, "Password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
