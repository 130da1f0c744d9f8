package interfaces

import (
	"context"

	"classync/pkg/types"
)

// Principal is the authenticated identity behind a classroom participant.
type Principal struct {
	ID   string
	Role types.Role
	Name string
}

// AuthProvider resolves the currently authenticated principal.
// FUNCTIONAL DISCOVERY: (nil, nil) means "nobody signed in yet" and is an
// expected state during early page mounts, distinct from a lookup failure
type AuthProvider interface {
	CurrentPrincipal(ctx context.Context) (*Principal, error)
}
