// Package shared carries cross-cutting request helpers: principal
// propagation and the audit trail.
package shared

import (
	"context"

	"github.com/inkwell-cms/inkwell/internal/authz"
)

type principalContextKey struct{}

// ContextWithPrincipal stores the resolved principal in context.
func ContextWithPrincipal(ctx context.Context, p *authz.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context. A nil
// return means the caller is anonymous.
func PrincipalFromContext(ctx context.Context) *authz.Principal {
	p, _ := ctx.Value(principalContextKey{}).(*authz.Principal)
	return p
}
