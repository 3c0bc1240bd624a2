package httpapi

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/gearmarket/auth"
	"github.com/gearmarket/auth/internal"
)

const stateCookie = "oauth_state"

// requestContext tags the request context with the caller's IP so the
// engine's rate limiter can key on it.
func (s *Server) requestContext(c *fiber.Ctx) context.Context {
	return auth.WithClientIP(c.UserContext(), c.IP())
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleSignup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	result, err := s.engine.Signup(s.requestContext(c), auth.SignupRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return s.writeEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"email":   result.Email,
		"message": "verification email sent",
	})
}

func (s *Server) handleVerifyEmail(c *fiber.Ctx) error {
	result, err := s.engine.VerifyEmail(s.requestContext(c), c.Params("token"))
	if err != nil {
		return s.writeEngineError(c, err)
	}

	if result.AlreadyVerified {
		return c.JSON(fiber.Map{"message": "email already verified"})
	}
	return c.JSON(fiber.Map{
		"message":       "email verified",
		"access_token":  result.Tokens.AccessToken,
		"refresh_token": result.Tokens.RefreshToken,
	})
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	pair, err := s.engine.Login(s.requestContext(c), req.Email, req.Password)
	if err != nil {
		return s.writeEngineError(c, err)
	}
	return s.writePair(c, pair)
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := s.engine.Logout(s.requestContext(c), req.RefreshToken); err != nil {
		return s.writeEngineError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "logged out"})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	pair, err := s.engine.Refresh(s.requestContext(c), req.RefreshToken)
	if err != nil {
		return s.writeEngineError(c, err)
	}
	return s.writePair(c, pair)
}

func (s *Server) handlePasswordReset(c *fiber.Ctx) error {
	var req passwordResetRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := s.engine.PasswordResetRequest(s.requestContext(c), req.Email); err != nil {
		return s.writeEngineError(c, err)
	}

	// Same response for known and unknown addresses.
	return c.JSON(fiber.Map{"message": "if the address is registered, a reset email is on its way"})
}

func (s *Server) handlePasswordResetConfirm(c *fiber.Ctx) error {
	var req passwordResetConfirmRequest
	if err := c.BodyParser(&req); err != nil {
		return writeError(c, fiber.StatusBadRequest, "malformed request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := s.engine.PasswordResetConfirm(s.requestContext(c), c.Params("token"), req.Password); err != nil {
		return s.writeEngineError(c, err)
	}
	return c.JSON(fiber.Map{"message": "password updated"})
}

func (s *Server) handleExternalLogin(c *fiber.Ctx) error {
	state, err := newState()
	if err != nil {
		return s.writeEngineError(c, err)
	}

	url, err := s.engine.ExternalAuthURL(state)
	if err != nil {
		return s.writeEngineError(c, err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    state,
		MaxAge:   600,
		HTTPOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return c.Redirect(url, fiber.StatusTemporaryRedirect)
}

func (s *Server) handleExternalCallback(c *fiber.Ctx) error {
	state := c.Query("state")
	if state == "" || state != c.Cookies(stateCookie) {
		return writeError(c, fiber.StatusBadRequest, "state mismatch")
	}
	code := c.Query("code")
	if code == "" {
		return writeError(c, fiber.StatusBadRequest, "missing authorization code")
	}

	c.Cookie(&fiber.Cookie{
		Name:     stateCookie,
		Value:    "",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   s.cfg.SecureCookies,
		SameSite: fiber.CookieSameSiteLaxMode,
	})

	pair, err := s.engine.ExternalLogin(s.requestContext(c), code)
	if err != nil {
		return s.writeEngineError(c, err)
	}
	return s.writePair(c, pair)
}

func (s *Server) handleMe(c *fiber.Ctx) error {
	identity := IdentityFromCtx(c)
	if identity == nil {
		return writeError(c, fiber.StatusUnauthorized, "unauthorized")
	}
	return c.JSON(fiber.Map{
		"account_id":     identity.AccountID,
		"email":          identity.Email,
		"username":       identity.Username,
		"email_verified": identity.EmailVerified,
	})
}

func (s *Server) writePair(c *fiber.Ctx, pair *auth.TokenPair) error {
	return c.JSON(fiber.Map{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"token_type":    "Bearer",
	})
}

func newState() (string, error) {
	id, err := internal.NewTokenID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
