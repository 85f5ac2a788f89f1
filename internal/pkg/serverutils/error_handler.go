package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"trip-pivot-be/pkg/pivot/perr"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// ErrorHandlerMiddleware turns handler errors into the response envelope.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			fields := make(map[string]string, len(validationErrs))
			for _, fe := range validationErrs {
				fields[strings.ToLower(fe.Field())] = fmt.Sprintf("failed on %s", fe.Tag())
			}
			return ctx.Status(fiber.StatusBadRequest).JSON(ErrorResponseWithData(fiber.StatusBadRequest, "Validation failed", fields))
		}

		code := StatusFor(err)
		message := err.Error()
		if code == fiber.StatusInternalServerError {
			message = "Internal server error"
		}
		return ctx.Status(code).JSON(ErrorResponse(code, message))
	}
}

// StatusFor maps pipeline errors onto HTTP status codes.
func StatusFor(err error) int {
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		return fiberErr.Code
	case errors.Is(err, perr.ErrInvalidInput):
		return fiber.StatusBadRequest
	case errors.Is(err, perr.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, perr.ErrVersionConflict), errors.Is(err, perr.ErrAlreadyResolved):
		return fiber.StatusConflict
	case errors.Is(err, perr.ErrStorageFailure), errors.Is(err, perr.ErrUpstreamUnavailable):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
