package fsauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freighter-go/registry/internal/errs"
)

func TestFsAuth_RegisterPublishAndOwnership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	pepper := []byte("pepper-bytes")

	p, err := New(dir, pepper)
	require.NoError(t, err)

	u1, tok1, err := p.RegisterUser(ctx, "user1", "")
	require.NoError(t, err)
	u2, tok2, err := p.RegisterUser(ctx, "user2", "")
	require.NoError(t, err)
	require.NotEqual(t, tok1, tok2)
	require.NotEqual(t, u1.ID, u2.ID)

	_, _, err = p.RegisterUser(ctx, "user1", "")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	// publishing a brand new package is allowed for anyone with a valid token
	require.NoError(t, p.AuthorizePublish(ctx, u1.ID, "crate1"))
	require.NoError(t, p.RegisterOwner(ctx, u1.ID, "crate1"))

	// second user is not an owner yet
	err = p.AuthorizePublish(ctx, u2.ID, "crate1")
	require.ErrorIs(t, err, errs.ErrForbidden)

	require.NoError(t, p.AuthorizeYank(ctx, u1.ID, "crate1"))

	require.NoError(t, p.AddOwners(ctx, u1.ID, "crate1", []string{"user2"}))
	require.NoError(t, p.AuthorizeYank(ctx, u2.ID, "crate1"))
	require.NoError(t, p.AuthorizePublish(ctx, u2.ID, "crate1"))
}

func TestFsAuth_VerifyToken_InvalidCredentials(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir(), []byte("pepper"))
	require.NoError(t, err)

	_, _, err = p.VerifyToken(ctx, "reg1_bogus")
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestFsAuth_RemoveOwners_RefusesLastOwner(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir(), []byte("pepper"))
	require.NoError(t, err)

	u1, _, err := p.RegisterUser(ctx, "solo", "")
	require.NoError(t, err)
	require.NoError(t, p.RegisterOwner(ctx, u1.ID, "crate1"))

	err = p.RemoveOwners(ctx, u1.ID, "crate1", []string{"solo"})
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestFsAuth_PepperRotationInvalidatesTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	p, err := New(dir, []byte("original-pepper"))
	require.NoError(t, err)
	_, token, err := p.RegisterUser(ctx, "user1", "")
	require.NoError(t, err)

	rotated, err := New(dir, []byte("rotated-pepper"))
	require.NoError(t, err)
	_, _, err = rotated.VerifyToken(ctx, token)
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestFsAuth_PersistsAcrossReload(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	pepper := []byte("pepper")

	p, err := New(dir, pepper)
	require.NoError(t, err)
	u1, token, err := p.RegisterUser(ctx, "user1", "")
	require.NoError(t, err)
	require.NoError(t, p.RegisterOwner(ctx, u1.ID, "crate1"))

	reloaded, err := New(dir, pepper)
	require.NoError(t, err)
	id, username, err := reloaded.VerifyToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, u1.ID, id)
	require.Equal(t, "user1", username)
	require.NoError(t, reloaded.AuthorizeYank(ctx, id, "crate1"))
}
