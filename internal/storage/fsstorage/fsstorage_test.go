package fsstorage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freighter-go/registry/internal/errs"
)

func TestPutGetDeleteTarball(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	data := []byte("crate bytes")
	require.NoError(t, p.PutTarball(ctx, "hello", "0.1.0", data))

	got, err := p.GetTarball(ctx, "hello", "0.1.0")
	require.NoError(t, err)
	require.Equal(t, data, got)

	require.NoError(t, p.DeleteTarball(ctx, "hello", "0.1.0"))

	_, err = p.GetTarball(ctx, "hello", "0.1.0")
	require.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestPutTarball_IdempotentOnIdenticalBytes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	data := []byte("same bytes")
	require.NoError(t, p.PutTarball(ctx, "hello", "0.1.0", data))
	require.NoError(t, p.PutTarball(ctx, "hello", "0.1.0", data))
}

func TestPutTarball_ConflictOnDifferentBytes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, p.PutTarball(ctx, "hello", "0.1.0", []byte("a")))
	err = p.PutTarball(ctx, "hello", "0.1.0", []byte("b"))
	require.True(t, errors.Is(err, errs.ErrConflict))
}

func TestDeleteTarball_NotFoundIsBenign(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, p.DeleteTarball(ctx, "missing", "1.0.0"))
}
