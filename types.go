package auth

import (
	"context"
	"time"

	"github.com/gearmarket/auth/internal/tokens"
)

// Account is the long-lived root entity owned by the credential store.
// An account is active only after explicit email verification or a trusted
// external-identity login; signup creates it inactive.
type Account struct {
	ID            string
	Email         string
	Username      string
	PasswordHash  string
	Active        bool
	EmailVerified bool
	CreatedAt     time.Time
	LastLoginAt   time.Time
}

// TokenPurpose scopes a verification token to the flow that may consume it.
type TokenPurpose = tokens.Purpose

const (
	// PurposeEmailVerification tokens activate a freshly registered account.
	PurposeEmailVerification = tokens.PurposeEmailVerification
	// PurposePasswordReset tokens authorize a password reset confirmation.
	PurposePasswordReset = tokens.PurposePasswordReset
)

// TokenPair is the result of a successful authentication: a signed,
// stateless access token and a revocable refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// CreateAccountInput is the input for [AccountStore.Create].
type CreateAccountInput struct {
	Email         string
	Username      string
	PasswordHash  string
	Active        bool
	EmailVerified bool
}

// AccountStore is the durable credential store the engine runs against.
// Implementations must return ErrDuplicateEmail from Create when the email
// is taken and ErrAccountNotFound from lookups that find nothing.
type AccountStore interface {
	Create(ctx context.Context, input CreateAccountInput) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	Activate(ctx context.Context, id string) (*Account, error)
	TouchLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}

// Mailer dispatches outbound email. Dispatch is treated as an external,
// potentially slow or failing operation; the signup flow compensates when
// it reports failure.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Identity is the profile returned by an external identity provider.
type Identity struct {
	Email       string
	DisplayName string
}

// IdentityProvider exchanges an authorization code for a verified identity.
// The exchange is a synchronous network call with no retry.
type IdentityProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (Identity, error)
}

// SignupRequest is the input for [Engine.Signup].
type SignupRequest struct {
	Email    string
	Username string
	Password string
}

// SignupResult is returned by [Engine.Signup] once the verification email
// has been dispatched.
type SignupResult struct {
	Email string
}

// VerifyEmailResult is returned by [Engine.VerifyEmail]. AlreadyVerified is
// set, and Tokens is nil, when the account was active before the call.
type VerifyEmailResult struct {
	AlreadyVerified bool
	Account         *Account
	Tokens          *TokenPair
}

// AuthResult is the decoded identity of a verified access token.
type AuthResult struct {
	AccountID     string
	Email         string
	Username      string
	EmailVerified bool
}
