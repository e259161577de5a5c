// Package fsauth implements the Auth backend contract on a local JSON file,
// grounded on original_source's freighter-auth fs_backend.rs: one
// owners.json holding token ownership and per-package owner sets, rewritten
// atomically on every change.
package fsauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gofrs/uuid/v5"

	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/crypto"
	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/model"
)

// usernameNamespace derives a stable UUID per username so fsauth can satisfy
// an interface built around uuid.UUID identities without maintaining its own
// id allocator; the mapping is recorded in ownersFile.Usernames anyway since
// it must be invertible (userID -> username) for AuthorizePublish et al.
var usernameNamespace = uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))

// Provider implements auth.Provider over a single JSON file.
type Provider struct {
	path   string
	pepper []byte

	mu   sync.Mutex
	data *ownersFile
}

// New constructs a filesystem auth provider. dir is created if missing;
// owners.json lives directly under it.
func New(dir string, pepper []byte) (*Provider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Provider{path: filepath.Join(abs, "owners.json"), pepper: pepper}, nil
}

type ownersFile struct {
	TokenOwners map[string]string   `json:"token_owners"` // base64(HMAC(token)) -> username
	Usernames   map[string]string   `json:"usernames"`    // uuid string -> username
	CrateOwners map[string][]string `json:"crate_owners"` // package name -> sorted usernames
}

func emptyOwnersFile() *ownersFile {
	return &ownersFile{
		TokenOwners: map[string]string{},
		Usernames:   map[string]string{},
		CrateOwners: map[string][]string{},
	}
}

// load returns the cached owners file, reading it from disk on first use.
// Caller must hold p.mu.
func (p *Provider) load() (*ownersFile, error) {
	if p.data != nil {
		return p.data, nil
	}
	raw, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		p.data = emptyOwnersFile()
		return p.data, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	var of ownersFile
	if err := json.Unmarshal(raw, &of); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	if of.TokenOwners == nil {
		of.TokenOwners = map[string]string{}
	}
	if of.Usernames == nil {
		of.Usernames = map[string]string{}
	}
	if of.CrateOwners == nil {
		of.CrateOwners = map[string][]string{}
	}
	p.data = &of
	return p.data, nil
}

// save persists the owners file atomically. Caller must hold p.mu.
func (p *Provider) save(of *ownersFile) error {
	raw, err := json.Marshal(of)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-owners-*")
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	return nil
}

func (p *Provider) tokenKey(token string) string {
	return base64.RawURLEncoding.EncodeToString(crypto.HashToken(token, p.pepper))
}

// RegisterUser implements auth.Provider. fsauth has no password concept: the
// token returned here is the only credential, matching fs_backend.rs's
// token-only `register`.
func (p *Provider) RegisterUser(_ context.Context, username, _ string) (model.User, string, error) {
	if username == "" {
		return model.User{}, "", errs.ErrBadRequest
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	of, err := p.load()
	if err != nil {
		return model.User{}, "", err
	}
	for _, existing := range of.Usernames {
		if existing == username {
			return model.User{}, "", errs.ErrAlreadyExists
		}
	}

	token, err := crypto.NewBearerToken()
	if err != nil {
		return model.User{}, "", err
	}
	id := uuid.NewV5(usernameNamespace, username)
	of.TokenOwners[p.tokenKey(token)] = username
	of.Usernames[id.String()] = username

	if err := p.save(of); err != nil {
		return model.User{}, "", err
	}
	return model.User{ID: id, Username: username}, token, nil
}

// Login implements auth.Provider. fsauth has no password login path: the
// registration token is the sole credential, so Login always reports
// Unauthorized — callers must use the token returned by RegisterUser.
func (p *Provider) Login(context.Context, string, string, string) (string, model.User, error) {
	return "", model.User{}, errs.ErrUnauthorized
}

// VerifyToken implements auth.Provider.
func (p *Provider) VerifyToken(_ context.Context, token string) (uuid.UUID, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	of, err := p.load()
	if err != nil {
		return uuid.Nil, "", err
	}
	username, ok := of.TokenOwners[p.tokenKey(token)]
	if !ok {
		return uuid.Nil, "", errs.ErrForbidden
	}
	id := uuid.NewV5(usernameNamespace, username)
	return id, username, nil
}

func (p *Provider) usernameFor(of *ownersFile, userID uuid.UUID) (string, bool) {
	name, ok := of.Usernames[userID.String()]
	return name, ok
}

// AuthorizePublish implements auth.Provider.
func (p *Provider) AuthorizePublish(_ context.Context, userID uuid.UUID, packageName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	of, err := p.load()
	if err != nil {
		return err
	}
	username, ok := p.usernameFor(of, userID)
	if !ok {
		return errs.ErrUnauthorized
	}
	owners, exists := of.CrateOwners[packageName]
	if !exists {
		// No owners yet: either never published, or a prior publish crashed
		// before RegisterOwner ran. Either way this caller may proceed.
		return nil
	}
	if contains(owners, username) {
		return nil
	}
	return errs.ErrForbidden
}

// AuthorizeYank implements auth.Provider.
func (p *Provider) AuthorizeYank(_ context.Context, userID uuid.UUID, packageName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	of, err := p.load()
	if err != nil {
		return err
	}
	username, ok := p.usernameFor(of, userID)
	if !ok {
		return errs.ErrUnauthorized
	}
	owners, exists := of.CrateOwners[packageName]
	if !exists {
		return errs.ErrNotFound
	}
	if contains(owners, username) {
		return nil
	}
	return errs.ErrForbidden
}

// ListOwners implements auth.Provider.
func (p *Provider) ListOwners(_ context.Context, packageName string) ([]model.ListedOwner, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	of, err := p.load()
	if err != nil {
		return nil, err
	}
	owners, exists := of.CrateOwners[packageName]
	if !exists {
		return nil, errs.ErrNotFound
	}
	out := make([]model.ListedOwner, 0, len(owners))
	for _, login := range owners {
		id := uuid.NewV5(usernameNamespace, login)
		out = append(out, model.ListedOwner{ID: ownerExternalID(id), Login: login, Name: login})
	}
	return out, nil
}

// ownerExternalID derives a stable int64 id from a UUID, since cargo's
// owners JSON expects a numeric id rather than a UUID.
func ownerExternalID(id uuid.UUID) int64 {
	var n int64
	for _, b := range id.Bytes()[:8] {
		n = n<<8 | int64(b)
	}
	if n < 0 {
		n = -n
	}
	return n
}

// AddOwners implements auth.Provider.
func (p *Provider) AddOwners(ctx context.Context, userID uuid.UUID, packageName string, usernames []string) error {
	if err := p.AuthorizeYank(ctx, userID, packageName); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	of, err := p.load()
	if err != nil {
		return err
	}
	owners := of.CrateOwners[packageName]
	for _, u := range usernames {
		if !contains(owners, u) {
			owners = append(owners, u)
		}
	}
	sort.Strings(owners)
	of.CrateOwners[packageName] = owners
	return p.save(of)
}

// RemoveOwners implements auth.Provider. Removing the last owner is Forbidden.
func (p *Provider) RemoveOwners(ctx context.Context, userID uuid.UUID, packageName string, usernames []string) error {
	if err := p.AuthorizeYank(ctx, userID, packageName); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	of, err := p.load()
	if err != nil {
		return err
	}
	owners, exists := of.CrateOwners[packageName]
	if !exists {
		return errs.ErrNotFound
	}

	remaining := len(owners)
	for _, u := range usernames {
		if contains(owners, u) {
			remaining--
		}
	}
	if remaining <= 0 {
		return errs.ErrForbidden
	}

	kept := owners[:0:0]
	for _, o := range owners {
		if !contains(usernames, o) {
			kept = append(kept, o)
		}
	}
	of.CrateOwners[packageName] = kept
	return p.save(of)
}

// RegisterOwner implements auth.Provider.
func (p *Provider) RegisterOwner(_ context.Context, userID uuid.UUID, packageName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	of, err := p.load()
	if err != nil {
		return err
	}
	username, ok := p.usernameFor(of, userID)
	if !ok {
		return errs.ErrUnauthorized
	}
	owners := of.CrateOwners[packageName]
	if !contains(owners, username) {
		owners = append(owners, username)
		sort.Strings(owners)
		of.CrateOwners[packageName] = owners
	}
	return p.save(of)
}

// Healthcheck implements auth.Provider.
func (p *Provider) Healthcheck(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.load()
	return err
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

var _ auth.Provider = (*Provider)(nil)
