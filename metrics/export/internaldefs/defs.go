package internaldefs

import (
	"github.com/gearmarket/auth"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   auth.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: auth.MetricSignupSuccess, Name: "gearauth_signup_success_total", Help: "Successful signups."},
	{ID: auth.MetricSignupDuplicate, Name: "gearauth_signup_duplicate_total", Help: "Signup attempts rejected as duplicate."},
	{ID: auth.MetricSignupRollback, Name: "gearauth_signup_rollback_total", Help: "Signups rolled back after mail dispatch failure."},
	{ID: auth.MetricEmailVerified, Name: "gearauth_email_verified_total", Help: "Successful email verifications."},
	{ID: auth.MetricEmailVerifyFailure, Name: "gearauth_email_verify_failure_total", Help: "Failed email verification attempts."},
	{ID: auth.MetricLoginSuccess, Name: "gearauth_login_success_total", Help: "Successful login attempts."},
	{ID: auth.MetricLoginFailure, Name: "gearauth_login_failure_total", Help: "Failed login attempts."},
	{ID: auth.MetricLoginLocked, Name: "gearauth_login_locked_total", Help: "Login attempts rejected while locked out."},
	{ID: auth.MetricLoginRateLimited, Name: "gearauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: auth.MetricRefreshSuccess, Name: "gearauth_refresh_success_total", Help: "Successful refresh rotations."},
	{ID: auth.MetricRefreshFailure, Name: "gearauth_refresh_failure_total", Help: "Failed refresh attempts."},
	{ID: auth.MetricRefreshReuseDetected, Name: "gearauth_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: auth.MetricLogout, Name: "gearauth_logout_total", Help: "Logout operations."},
	{ID: auth.MetricPasswordResetRequest, Name: "gearauth_password_reset_request_total", Help: "Password reset requests."},
	{ID: auth.MetricPasswordResetSuccess, Name: "gearauth_password_reset_success_total", Help: "Successful password reset confirmations."},
	{ID: auth.MetricPasswordResetFailure, Name: "gearauth_password_reset_failure_total", Help: "Failed password reset confirmations."},
	{ID: auth.MetricExternalLoginSuccess, Name: "gearauth_external_login_success_total", Help: "Successful external identity logins."},
	{ID: auth.MetricExternalLoginFailure, Name: "gearauth_external_login_failure_total", Help: "Failed external identity logins."},
	{ID: auth.MetricRateLimitHit, Name: "gearauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}
