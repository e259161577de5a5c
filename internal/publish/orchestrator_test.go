package publish

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freighter-go/registry/internal/apitypes"
	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/model"
	"github.com/freighter-go/registry/internal/repository"
	"github.com/freighter-go/registry/internal/storage"
)

func frame(t *testing.T, meta apitypes.Publish, tarball []byte) []byte {
	t.Helper()
	j, err := json.Marshal(meta)
	require.NoError(t, err)

	var buf []byte
	lenPrefix := func(b []byte) []byte {
		var hdr [4]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
		return append(hdr[:], b...)
	}
	buf = append(buf, lenPrefix(j)...)
	buf = append(buf, lenPrefix(tarball)...)
	return buf
}

type fakeIndex struct {
	publishErr    error
	publishResult repository.PublishResult
	publishedEnd  bool

	yankOut    bool
	yankErr    error
	yankCalled bool
}

var _ repository.IndexRepository = (*fakeIndex)(nil)

func (f *fakeIndex) ConfirmExistence(context.Context, string, string) (bool, string, error) {
	return false, "", errs.ErrNotFound
}
func (f *fakeIndex) GetSparseEntry(context.Context, string) ([]model.Version, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeIndex) Search(context.Context, string, int) ([]model.SearchResult, int, error) {
	return nil, 0, nil
}
func (f *fakeIndex) ListAll(context.Context) ([]model.Package, map[string][]model.Version, error) {
	return nil, nil, nil
}
func (f *fakeIndex) Publish(ctx context.Context, _ model.PublishRequest, _ string, end repository.EndStep) (repository.PublishResult, error) {
	if err := end(ctx); err != nil {
		return repository.PublishResult{}, err
	}
	f.publishedEnd = true
	if f.publishErr != nil {
		return repository.PublishResult{}, f.publishErr
	}
	return f.publishResult, nil
}
func (f *fakeIndex) Yank(context.Context, string, string, bool) (bool, error) {
	f.yankCalled = true
	return f.yankOut, f.yankErr
}
func (f *fakeIndex) Healthcheck(context.Context) error {
	return nil
}

type fakeStorage struct {
	putErr    error
	deleted   bool
	deleteErr error
}

var _ storage.Provider = (*fakeStorage)(nil)

func (f *fakeStorage) PutTarball(context.Context, string, string, []byte) error { return f.putErr }
func (f *fakeStorage) GetTarball(context.Context, string, string) ([]byte, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeStorage) DeleteTarball(context.Context, string, string) error {
	f.deleted = true
	return f.deleteErr
}
func (f *fakeStorage) PutReadme(context.Context, string, string, []byte) error { return nil }
func (f *fakeStorage) GetReadme(context.Context, string, string) ([]byte, error) {
	return nil, errs.ErrNotFound
}
func (f *fakeStorage) Healthcheck(context.Context) error { return nil }

type fakeAuth struct {
	authorizeErr   error
	registerErr    error
	registeredUser uuid.UUID
	registeredName string
}

var _ auth.Provider = (*fakeAuth)(nil)

func (f *fakeAuth) RegisterUser(context.Context, string, string) (model.User, string, error) {
	return model.User{}, "", nil
}
func (f *fakeAuth) Login(context.Context, string, string, string) (string, model.User, error) {
	return "", model.User{}, nil
}
func (f *fakeAuth) VerifyToken(context.Context, string) (uuid.UUID, string, error) {
	return uuid.Nil, "", nil
}
func (f *fakeAuth) AuthorizePublish(context.Context, uuid.UUID, string) error { return f.authorizeErr }
func (f *fakeAuth) AuthorizeYank(context.Context, uuid.UUID, string) error    { return nil }
func (f *fakeAuth) ListOwners(context.Context, string) ([]model.ListedOwner, error) {
	return nil, nil
}
func (f *fakeAuth) AddOwners(context.Context, uuid.UUID, string, []string) error    { return nil }
func (f *fakeAuth) RemoveOwners(context.Context, uuid.UUID, string, []string) error { return nil }
func (f *fakeAuth) RegisterOwner(_ context.Context, userID uuid.UUID, name string) error {
	f.registeredUser, f.registeredName = userID, name
	return f.registerErr
}
func (f *fakeAuth) Healthcheck(context.Context) error { return nil }

func newOrchestrator(idx *fakeIndex, st *fakeStorage, a *fakeAuth) *Orchestrator {
	return New(idx, st, a, zap.NewNop())
}

func TestPublish_FirstPublishGrantsOwnership(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{publishResult: repository.PublishResult{FirstPublish: true}}
	st := &fakeStorage{}
	a := &fakeAuth{}
	o := newOrchestrator(idx, st, a)

	userID := uuid.Must(uuid.NewV4())
	body := frame(t, apitypes.Publish{Name: "My-Crate", Vers: "1.0.0"}, []byte("tarball-bytes"))

	resp, err := o.Publish(context.Background(), userID, body)
	require.NoError(t, err)
	require.Nil(t, resp.Warnings)
	require.True(t, idx.publishedEnd)
	require.Equal(t, userID, a.registeredUser)
	require.Equal(t, "my-crate", a.registeredName) // lowercased per name-case policy
}

func TestPublish_DeniedByAuth(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{}
	st := &fakeStorage{}
	a := &fakeAuth{authorizeErr: errs.ErrForbidden}
	o := newOrchestrator(idx, st, a)

	body := frame(t, apitypes.Publish{Name: "crate", Vers: "1.0.0"}, []byte("x"))
	_, err := o.Publish(context.Background(), uuid.Must(uuid.NewV4()), body)
	require.ErrorIs(t, err, errs.ErrForbidden)
	require.False(t, idx.publishedEnd)
}

func TestPublish_IndexFailureCompensatesWithTarballDelete(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{publishErr: errs.ErrVersionExists}
	st := &fakeStorage{}
	a := &fakeAuth{}
	o := newOrchestrator(idx, st, a)

	body := frame(t, apitypes.Publish{Name: "crate", Vers: "1.0.0"}, []byte("x"))
	_, err := o.Publish(context.Background(), uuid.Must(uuid.NewV4()), body)
	require.ErrorIs(t, err, errs.ErrVersionExists)
	require.True(t, st.deleted)
}

func TestPublish_OwnershipGrantFailureCompensates(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{publishResult: repository.PublishResult{FirstPublish: true}}
	st := &fakeStorage{}
	a := &fakeAuth{registerErr: errors.New("boom")}
	o := newOrchestrator(idx, st, a)

	body := frame(t, apitypes.Publish{Name: "crate", Vers: "1.0.0"}, []byte("x"))
	_, err := o.Publish(context.Background(), uuid.Must(uuid.NewV4()), body)
	require.Error(t, err)
	require.True(t, st.deleted)
	require.True(t, idx.yankCalled) // the tombstone yank was attempted
}

func TestPublish_RejectsBadVersion(t *testing.T) {
	t.Parallel()
	o := newOrchestrator(&fakeIndex{}, &fakeStorage{}, &fakeAuth{})
	body := frame(t, apitypes.Publish{Name: "crate", Vers: "not-a-version"}, []byte("x"))
	_, err := o.Publish(context.Background(), uuid.Must(uuid.NewV4()), body)
	require.ErrorIs(t, err, errs.ErrBadRequest)
}

func TestPublish_RejectsBadFrame(t *testing.T) {
	t.Parallel()
	o := newOrchestrator(&fakeIndex{}, &fakeStorage{}, &fakeAuth{})
	_, err := o.Publish(context.Background(), uuid.Must(uuid.NewV4()), []byte{1, 2})
	require.ErrorIs(t, err, errs.ErrBadRequest)
}

func TestYank_AuthorizesThenFlips(t *testing.T) {
	t.Parallel()
	idx := &fakeIndex{yankOut: true}
	o := newOrchestrator(idx, &fakeStorage{}, &fakeAuth{})
	err := o.Yank(context.Background(), uuid.Must(uuid.NewV4()), "Crate", "1.0.0", true)
	require.NoError(t, err)
}
