package auth

import "context"

type clientIPContextKey struct{}

// WithClientIP attaches the caller's network address to the context so the
// rate limiter can key on it. The HTTP layer sets this per request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}
