package auth

import (
	"context"

	"classync/pkg/interfaces"
)

// StaticProvider resolves a fixed principal. Used by single-user deployments
// and anywhere the identity is established out of band.
type StaticProvider struct {
	principal *interfaces.Principal
}

// NewStaticProvider creates a provider returning the given principal; a nil
// principal models the signed-out state.
func NewStaticProvider(principal *interfaces.Principal) *StaticProvider {
	return &StaticProvider{principal: principal}
}

// CurrentPrincipal returns the configured principal, nil when signed out.
func (p *StaticProvider) CurrentPrincipal(ctx context.Context) (*interfaces.Principal, error) {
	return p.principal, nil
}
