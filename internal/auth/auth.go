// Package auth defines the Auth backend contract (§4.3) and its
// implementations: relational, filesystem, header-trust (OIDC-like), and a
// permissive pass-through backend.
package auth

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/freighter-go/registry/internal/model"
)

// Provider is implemented by every Auth backend. Token strings are opaque;
// password backends additionally support RegisterUser/Login. Header-trust
// backends treat the "token" as a signed external assertion and leave
// RegisterUser/Login unimplemented (errs.ErrForbidden).
type Provider interface {
	// RegisterUser creates a new account and returns an initial token.
	RegisterUser(ctx context.Context, username, password string) (user model.User, token string, err error)

	// Login authenticates with a password and rate-limits by (username, ip).
	Login(ctx context.Context, username, password, ip string) (token string, user model.User, err error)

	// VerifyToken resolves a bearer token to the identity that holds it.
	VerifyToken(ctx context.Context, token string) (userID uuid.UUID, username string, err error)

	// AuthorizePublish checks that userID may publish to packageName. It is
	// also the point where "package does not exist yet" is distinguished
	// from "exists, caller is not an owner" — the former returns nil so the
	// orchestrator can proceed and grant first-publish ownership afterward.
	AuthorizePublish(ctx context.Context, userID uuid.UUID, packageName string) error

	// AuthorizeYank checks that userID owns packageName.
	AuthorizeYank(ctx context.Context, userID uuid.UUID, packageName string) error

	// ListOwners returns the current owners of packageName.
	ListOwners(ctx context.Context, packageName string) ([]model.ListedOwner, error)

	// AddOwners grants ownership of packageName to the named users. Caller
	// must already be an owner.
	AddOwners(ctx context.Context, userID uuid.UUID, packageName string, usernames []string) error

	// RemoveOwners revokes ownership. Removing the last owner is Forbidden.
	RemoveOwners(ctx context.Context, userID uuid.UUID, packageName string, usernames []string) error

	// RegisterOwner grants userID ownership of packageName unconditionally.
	// Called by the publish orchestrator exactly once, immediately after an
	// Index.Publish call that reports FirstPublish.
	RegisterOwner(ctx context.Context, userID uuid.UUID, packageName string) error

	// Healthcheck reports whether the backend is reachable.
	Healthcheck(ctx context.Context) error
}
