package auth

import (
	"context"
	"slices"
)

// Principal is the authenticated caller.
type Principal struct {
	Username string
	Roles    []string
}

func (p Principal) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(p.Roles, r) {
			return true
		}
	}
	return false
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// CurrentIdentity returns the username of the authenticated caller, or "" when
// the request carried no valid token.
func CurrentIdentity(ctx context.Context) string {
	p, _ := PrincipalFrom(ctx)
	return p.Username
}
