package router

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/TenantFox/internal/pkg/admission"
)

// ErrorHandler answers every error that reaches fiber (recovered panics,
// body limit, unknown routes) with a JSON body. The error text is only logged.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}

	if status >= fiber.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Method(), c.Path(), err)
	} else {
		log.Warnf("%s %s: %v", c.Method(), c.Path(), err)
	}

	return c.Status(status).JSON(admission.ErrorResponse{OK: false, Error: errorCode(status)})
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusRequestEntityTooLarge:
		return admission.CodePayloadTooLarge
	case fiber.StatusTooManyRequests:
		return admission.CodeRateLimited
	case fiber.StatusUnauthorized:
		return admission.CodeUnauthorized
	case fiber.StatusForbidden:
		return admission.CodeForbidden
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	}
	if status >= fiber.StatusInternalServerError {
		return admission.CodeInternalError
	}
	return "bad_request"
}
