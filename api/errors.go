package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/parley/pkg/network"
	"github.com/papercomputeco/parley/pkg/progress"
	"github.com/papercomputeco/parley/pkg/storage"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var (
		authErr    *network.AuthError
		backendErr *network.ChatBackendError
	)
	switch {
	case network.IsValidation(err):
		return fiber.StatusBadRequest
	case storage.IsNotFound(err), errors.Is(err, progress.ErrNotFound):
		return fiber.StatusNotFound
	case errors.As(err, &authErr):
		return fiber.StatusUnauthorized
	case errors.As(err, &backendErr):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Server errors are logged and
// their detail withheld.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		return c.Status(status).JSON(ErrorResponse{Error: "internal error"})
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg})
}
