package httpserver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/freighter-go/registry/internal/apitypes"
	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/config"
	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/model"
	"github.com/freighter-go/registry/internal/publish"
	"github.com/freighter-go/registry/internal/repository"
	"github.com/freighter-go/registry/internal/storage"
)

// memIndex is a minimal in-memory repository.IndexRepository fake for
// exercising the request surface end to end, the same hand-written fake
// style as the teacher's fakeItemRepo.
type memIndex struct {
	mu       sync.Mutex
	versions map[string][]model.Version
}

var _ repository.IndexRepository = (*memIndex)(nil)

func newMemIndex() *memIndex { return &memIndex{versions: map[string][]model.Version{}} }

func (m *memIndex) ConfirmExistence(_ context.Context, name, version string) (bool, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions[name] {
		if v.Num == version {
			return v.Yanked, v.Checksum, nil
		}
	}
	return false, "", errs.ErrNotFound
}

func (m *memIndex) GetSparseEntry(_ context.Context, name string) ([]model.Version, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs, ok := m.versions[name]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return append([]model.Version(nil), vs...), nil
}

func (m *memIndex) Search(context.Context, string, int) ([]model.SearchResult, int, error) {
	return nil, 0, nil
}

func (m *memIndex) ListAll(context.Context) ([]model.Package, map[string][]model.Version, error) {
	return nil, nil, nil
}

func (m *memIndex) Publish(ctx context.Context, meta model.PublishRequest, checksum string, end repository.EndStep) (repository.PublishResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.versions[meta.Name] {
		if v.Num == meta.Vers {
			return repository.PublishResult{}, errs.ErrVersionExists
		}
	}
	if err := end(ctx); err != nil {
		return repository.PublishResult{}, err
	}
	first := len(m.versions[meta.Name]) == 0
	m.versions[meta.Name] = append(m.versions[meta.Name], model.Version{Num: meta.Vers, Checksum: checksum})
	return repository.PublishResult{FirstPublish: first}, nil
}

func (m *memIndex) Yank(_ context.Context, name, version string, yanked bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, v := range m.versions[name] {
		if v.Num == version {
			m.versions[name][i].Yanked = yanked
			return yanked, nil
		}
	}
	return false, errs.ErrNotFound
}

func (m *memIndex) Healthcheck(context.Context) error {
	return nil
}

type memStorage struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ storage.Provider = (*memStorage)(nil)

func newMemStorage() *memStorage { return &memStorage{data: map[string][]byte{}} }

func (m *memStorage) PutTarball(_ context.Context, name, version string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[storage.Key(name, version)] = append([]byte(nil), data...)
	return nil
}
func (m *memStorage) GetTarball(_ context.Context, name, version string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[storage.Key(name, version)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return d, nil
}
func (m *memStorage) DeleteTarball(_ context.Context, name, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, storage.Key(name, version))
	return nil
}
func (m *memStorage) PutReadme(context.Context, string, string, []byte) error { return nil }
func (m *memStorage) GetReadme(context.Context, string, string) ([]byte, error) {
	return nil, errs.ErrNotFound
}
func (m *memStorage) Healthcheck(context.Context) error { return nil }

type memAuth struct {
	userID uuid.UUID
}

var _ auth.Provider = (*memAuth)(nil)

func (a *memAuth) RegisterUser(context.Context, string, string) (model.User, string, error) {
	return model.User{}, "", nil
}
func (a *memAuth) Login(context.Context, string, string, string) (string, model.User, error) {
	return "tok", model.User{}, nil
}
func (a *memAuth) VerifyToken(context.Context, string) (uuid.UUID, string, error) {
	return a.userID, "tester", nil
}
func (a *memAuth) AuthorizePublish(context.Context, uuid.UUID, string) error { return nil }
func (a *memAuth) AuthorizeYank(context.Context, uuid.UUID, string) error    { return nil }
func (a *memAuth) ListOwners(context.Context, string) ([]model.ListedOwner, error) {
	return []model.ListedOwner{{ID: 1, Login: "tester"}}, nil
}
func (a *memAuth) AddOwners(context.Context, uuid.UUID, string, []string) error    { return nil }
func (a *memAuth) RemoveOwners(context.Context, uuid.UUID, string, []string) error { return nil }
func (a *memAuth) RegisterOwner(context.Context, uuid.UUID, string) error          { return nil }
func (a *memAuth) Healthcheck(context.Context) error                              { return nil }

func newTestServer(t *testing.T) (*Server, *memIndex, *memStorage) {
	t.Helper()
	idx := newMemIndex()
	st := newMemStorage()
	a := &memAuth{userID: uuid.Must(uuid.NewV4())}
	cfg := &config.Config{Service: config.ServiceConfig{
		Address: "127.0.0.1:0", AuthRequired: true, AllowRegistration: true,
		MaxCrateSize: 10 << 20, APIEndpoint: "https://example.com", DownloadEndpoint: "https://example.com",
	}}
	orch := publish.New(idx, st, a, zap.NewNop())
	s := New(cfg, idx, st, a, orch, zap.NewNop())
	return s, idx, st
}

func publishFrame(t *testing.T, meta apitypes.Publish, tarball []byte) []byte {
	t.Helper()
	j, err := json.Marshal(meta)
	require.NoError(t, err)
	lenPrefix := func(b []byte) []byte {
		var hdr [4]byte
		binary.LittleEndian.PutUint32(hdr[:], uint32(len(b)))
		return append(hdr[:], b...)
	}
	return append(lenPrefix(j), lenPrefix(tarball)...)
}

func TestServer_PublishDownloadYankFlow(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t)
	handler := s.routes()

	body := publishFrame(t, apitypes.Publish{Name: "My-Crate", Vers: "1.0.0"}, []byte("tarball"))
	req := httptest.NewRequest(http.MethodPut, "/api/v1/crates/new", strings.NewReader(string(body)))
	req.Header.Set("Authorization", "reg1_sometoken")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	dlReq := httptest.NewRequest(http.MethodGet, "/downloads/my-crate/1.0.0", nil)
	dlReq.Header.Set("Authorization", "reg1_sometoken")
	dlRec := httptest.NewRecorder()
	handler.ServeHTTP(dlRec, dlReq)
	require.Equal(t, http.StatusOK, dlRec.Code)
	require.Equal(t, "tarball", dlRec.Body.String())

	idxReq := httptest.NewRequest(http.MethodGet, "/index/my/my-crate", nil)
	idxReq.Header.Set("Authorization", "reg1_sometoken")
	idxRec := httptest.NewRecorder()
	handler.ServeHTTP(idxRec, idxReq)
	require.Equal(t, http.StatusOK, idxRec.Code)
	require.Contains(t, idxRec.Body.String(), "1.0.0")

	yankReq := httptest.NewRequest(http.MethodDelete, "/api/v1/crates/my-crate/1.0.0/yank", nil)
	yankReq.Header.Set("Authorization", "reg1_sometoken")
	yankRec := httptest.NewRecorder()
	handler.ServeHTTP(yankRec, yankReq)
	require.Equal(t, http.StatusOK, yankRec.Code)
}

func TestServer_RequiresAuth(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t)
	handler := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/downloads/crate/1.0.0", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Healthcheck(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t)
	handler := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/healthcheck", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_NotFoundDownload(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestServer(t)
	handler := s.routes()

	req := httptest.NewRequest(http.MethodGet, "/downloads/nope/1.0.0", nil)
	req.Header.Set("Authorization", "reg1_sometoken")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
