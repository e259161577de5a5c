// Package yesauth implements a permissive Auth backend that authorizes
// every request unconditionally. Grounded on original_source's
// freighter-auth yes_backend.rs, including its explicit-opt-in safeguard.
package yesauth

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/crypto"
	"github.com/freighter-go/registry/internal/model"
)

// Provider says yes to everything. It must never be constructed without an
// explicit operator opt-in; see New.
type Provider struct{}

// New constructs the permissive backend. allowFullAccessWithoutAnyChecks must
// be true or New refuses to start — mirrors yes_backend.rs's own guard
// against accidental misconfiguration.
func New(allowFullAccessWithoutAnyChecks bool) (*Provider, error) {
	if !allowFullAccessWithoutAnyChecks {
		return nil, fmt.Errorf("yesauth: enabled without explicit opt-in")
	}
	return &Provider{}, nil
}

// RegisterUser implements auth.Provider: any username is accepted and a
// fresh opaque token returned, but it is never checked again.
func (p *Provider) RegisterUser(_ context.Context, username, _ string) (model.User, string, error) {
	token, err := crypto.NewBearerToken()
	if err != nil {
		return model.User{}, "", err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return model.User{}, "", err
	}
	return model.User{ID: id, Username: username}, token, nil
}

// Login implements auth.Provider: always succeeds for any credentials.
func (p *Provider) Login(_ context.Context, username, _, _ string) (string, model.User, error) {
	token, err := crypto.NewBearerToken()
	if err != nil {
		return "", model.User{}, err
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", model.User{}, err
	}
	return token, model.User{ID: id, Username: username}, nil
}

// VerifyToken implements auth.Provider: any non-empty token resolves to a
// fresh anonymous identity.
func (p *Provider) VerifyToken(context.Context, string) (uuid.UUID, string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, "anonymous", nil
}

// AuthorizePublish implements auth.Provider: always allowed.
func (p *Provider) AuthorizePublish(context.Context, uuid.UUID, string) error { return nil }

// AuthorizeYank implements auth.Provider: always allowed.
func (p *Provider) AuthorizeYank(context.Context, uuid.UUID, string) error { return nil }

// ListOwners implements auth.Provider: reports no owners, same as yes_backend.rs.
func (p *Provider) ListOwners(context.Context, string) ([]model.ListedOwner, error) {
	return nil, nil
}

// AddOwners implements auth.Provider: always succeeds, no-op.
func (p *Provider) AddOwners(context.Context, uuid.UUID, string, []string) error { return nil }

// RemoveOwners implements auth.Provider: always succeeds, no-op.
func (p *Provider) RemoveOwners(context.Context, uuid.UUID, string, []string) error { return nil }

// RegisterOwner implements auth.Provider: no-op, ownership is not tracked.
func (p *Provider) RegisterOwner(context.Context, uuid.UUID, string) error { return nil }

// Healthcheck implements auth.Provider: always healthy.
func (p *Provider) Healthcheck(context.Context) error { return nil }

var _ auth.Provider = (*Provider)(nil)
