package httpapi

import (
	"errors"
	"math"
	"strconv"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"github.com/gearmarket/auth"
)

// writeEngineError maps engine sentinels to HTTP responses. Unrecognized
// errors become an opaque 500 and are reported to sentry so internals
// never leak to clients.
func (s *Server) writeEngineError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, auth.ErrRateLimitExceeded):
		var limited *auth.RateLimitError
		if errors.As(err, &limited) {
			setRetryAfter(c, limited.RetryAfter.Seconds())
		}
		return writeError(c, fiber.StatusTooManyRequests, "too many requests")

	case errors.Is(err, auth.ErrAccountLocked):
		var locked *auth.LockoutError
		if errors.As(err, &locked) {
			setRetryAfter(c, locked.RetryAfter.Seconds())
		}
		return writeError(c, fiber.StatusTooManyRequests, "account temporarily locked")

	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenSignatureInvalid),
		errors.Is(err, auth.ErrTokenRevoked):
		return writeError(c, fiber.StatusUnauthorized, "unauthorized")

	case errors.Is(err, auth.ErrAccountInactive):
		return writeError(c, fiber.StatusUnauthorized, "email not verified")

	case errors.Is(err, auth.ErrAccountNotFound):
		return writeError(c, fiber.StatusNotFound, "account not found")

	case errors.Is(err, auth.ErrDuplicateEmail),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrPasswordReuse),
		errors.Is(err, auth.ErrInvalidOrExpiredToken),
		errors.Is(err, auth.ErrAlreadyConsumed):
		return writeError(c, fiber.StatusBadRequest, err.Error())

	default:
		s.logger.Printf("%s %s: %v", c.Method(), c.Path(), err)
		if s.sentry {
			sentry.CaptureException(err)
		}
		return writeError(c, fiber.StatusInternalServerError, "internal error")
	}
}

func setRetryAfter(c *fiber.Ctx, seconds float64) {
	n := int(math.Ceil(seconds))
	if n < 1 {
		n = 1
	}
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(n))
}

func writeError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message})
}
