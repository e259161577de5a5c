package fsindex

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/model"
	"github.com/freighter-go/registry/internal/repository"
)

func noopEnd(context.Context) error { return nil }

func TestPublish_FirstPublishAndVersionExists(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	req := model.PublishRequest{Name: "demo", Vers: "0.1.0", Description: "a crate"}
	res, err := p.Publish(ctx, req, "cksum1", noopEnd)
	require.NoError(t, err)
	require.True(t, res.FirstPublish)

	res, err = p.Publish(ctx, model.PublishRequest{Name: "demo", Vers: "0.2.0"}, "cksum2", noopEnd)
	require.NoError(t, err)
	require.False(t, res.FirstPublish)

	_, err = p.Publish(ctx, req, "cksum3", noopEnd)
	require.True(t, errors.Is(err, errs.ErrVersionExists))
}

func TestPublish_EndStepFailureLeavesIndexUnwritten(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	boom := errors.New("storage put failed")
	_, err = p.Publish(ctx, model.PublishRequest{Name: "demo", Vers: "0.1.0"}, "cksum", func(context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, _, err = p.ConfirmExistence(ctx, "demo", "0.1.0")
	require.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestConfirmExistenceAndGetSparseEntry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = p.Publish(ctx, model.PublishRequest{Name: "demo", Vers: "0.1.0"}, "cksum1", noopEnd)
	require.NoError(t, err)

	yanked, checksum, err := p.ConfirmExistence(ctx, "demo", "0.1.0")
	require.NoError(t, err)
	require.False(t, yanked)
	require.Equal(t, "cksum1", checksum)

	versions, err := p.GetSparseEntry(ctx, "demo")
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestYank_IsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = p.Publish(ctx, model.PublishRequest{Name: "demo", Vers: "0.1.0"}, "cksum1", noopEnd)
	require.NoError(t, err)

	yanked, err := p.Yank(ctx, "demo", "0.1.0", true)
	require.NoError(t, err)
	require.True(t, yanked)

	yanked, err = p.Yank(ctx, "demo", "0.1.0", true)
	require.NoError(t, err)
	require.True(t, yanked)

	_, err = p.Yank(ctx, "demo", "9.9.9", true)
	require.True(t, errors.Is(err, errs.ErrNotFound))
}

func TestSearch_PrefixFirstThenLexicographic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"zebra-web", "web", "web-core"} {
		_, err := p.Publish(ctx, model.PublishRequest{Name: name, Vers: "1.0.0"}, "cksum", noopEnd)
		require.NoError(t, err)
	}

	results, total, err := p.Search(ctx, "web", 10)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Equal(t, []string{"web", "web-core", "zebra-web"}, []string{results[0].Name, results[1].Name, results[2].Name})
}

func TestListAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = p.Publish(ctx, model.PublishRequest{Name: "alpha", Vers: "1.0.0"}, "cksum", noopEnd)
	require.NoError(t, err)
	_, err = p.Publish(ctx, model.PublishRequest{Name: "beta", Vers: "1.0.0"}, "cksum", noopEnd)
	require.NoError(t, err)

	pkgs, versionsByName, err := p.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	require.Len(t, versionsByName["alpha"], 1)
}

var _ repository.IndexRepository = (*Provider)(nil)
