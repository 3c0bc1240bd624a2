package httpapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gearmarket/auth"
)

const identityLocal = "auth_identity"

// RequireAuth verifies the bearer access token and stashes the asserted
// identity in the request locals.
func (s *Server) RequireAuth(c *fiber.Ctx) error {
	token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return writeError(c, fiber.StatusUnauthorized, "missing bearer token")
	}

	identity, err := s.engine.VerifyAccess(c.UserContext(), token)
	if err != nil {
		return writeError(c, fiber.StatusUnauthorized, "unauthorized")
	}

	c.Locals(identityLocal, identity)
	return c.Next()
}

// IdentityFromCtx returns the identity RequireAuth stored, or nil.
func IdentityFromCtx(c *fiber.Ctx) *auth.AuthResult {
	identity, _ := c.Locals(identityLocal).(*auth.AuthResult)
	return identity
}

func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := header[len(prefix):]
	return token, token != ""
}
