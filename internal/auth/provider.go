package auth

import (
	"context"

	"billetera/internal/core"
)

// Provider answers who is making the current call.
type Provider interface {
	CurrentUser(ctx context.Context) (core.User, bool)
}

type contextKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u core.User) context.Context {
	return context.WithValue(ctx, contextKey{}, u)
}

// ContextProvider reads the user stored by Middleware.
type ContextProvider struct{}

func (ContextProvider) CurrentUser(ctx context.Context) (core.User, bool) {
	u, ok := ctx.Value(contextKey{}).(core.User)
	return u, ok && u.ID != ""
}

// Static always reports the same user. The admin CLI uses it.
type Static struct {
	User core.User
}

func (s Static) CurrentUser(context.Context) (core.User, bool) {
	return s.User, s.User.ID != ""
}
