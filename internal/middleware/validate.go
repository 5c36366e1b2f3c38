package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/bilgisen/blog-editor/internal/logger"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Validator is a struct that holds the validator instance
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a validator that also understands the notblank tag
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(fmt.Sprintf("registering notblank validation: %v", err))
	}
	return &Validator{validate: v}
}

// Validate validates s against its struct tags
func (v *Validator) Validate(s interface{}) error {
	return v.validate.Struct(s)
}

// FieldErrors maps each failing field to the tag it failed. Errors that are
// not validation errors yield nil.
func FieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

// ErrorHandler handles errors that escape route handlers in a consistent way
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	var event *zerolog.Event
	if code >= fiber.StatusInternalServerError {
		event = logger.WithError(err)
	} else {
		event = logger.Warn().Err(err)
	}
	event.
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", code).
		Msg("HTTP error")

	return c.Status(code).JSON(fiber.Map{
		"error": http.StatusText(code),
	})
}

// PanicLogger is used as the recover middleware's StackTraceHandler. The
// request still fails with a 500; the process keeps serving.
func PanicLogger(c *fiber.Ctx, e interface{}) {
	logger.Error().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Interface("panic", e).
		Bytes("stack", debug.Stack()).
		Msg("Recovered from panic")
}
