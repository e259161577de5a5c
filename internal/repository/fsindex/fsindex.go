// Package fsindex implements the Index backend contract on a local
// filesystem tree: one JSON metadata file per package, sharded into
// directories by name the same way the sparse index itself is addressed.
package fsindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/model"
	"github.com/freighter-go/registry/internal/repository"
	"github.com/freighter-go/registry/internal/semver"
)

// Provider stores one metadata file per package under root, guarded by a
// per-package reader/writer lock so concurrent publishes to different
// packages never block each other.
type Provider struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.RWMutex
}

// New constructs a filesystem index provider rooted at dir.
func New(dir string) (*Provider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Provider{root: abs, locks: make(map[string]*sync.RWMutex)}, nil
}

// lockFor returns the RWMutex for a lowercase package name, creating it on
// first use. Entries are retained for the process lifetime; the registry's
// package namespace is not large enough to make that a real concern.
func (p *Provider) lockFor(name string) *sync.RWMutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		p.locks[name] = l
	}
	return l
}

// metaFileRelPath mirrors cargo's sparse-index sharding: 1 and 2 character
// names get their own top-level bucket, 3-character names are bucketed by
// first letter, everything else by its first four characters split 2/2.
func metaFileRelPath(lowercaseName string) (string, error) {
	if len(lowercaseName) == 0 || len(lowercaseName) > 64 {
		return "", errs.ErrBadRequest
	}
	for _, c := range []byte(lowercaseName) {
		ok := (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
		if !ok {
			return "", errs.ErrBadRequest
		}
	}

	var shard string
	switch {
	case len(lowercaseName) >= 4:
		shard = lowercaseName[:2] + "/" + lowercaseName[2:4]
	case len(lowercaseName) == 1:
		shard = "1"
	case len(lowercaseName) == 2:
		shard = "2"
	case len(lowercaseName) == 3:
		shard = "3/" + lowercaseName[:1]
	}
	return filepath.Join("index", shard, lowercaseName), nil
}

// metaFile is the on-disk representation of one package: its descriptive
// metadata plus every published version, newest last.
type metaFile struct {
	Name          string         `json:"name"`
	Description   string         `json:"description"`
	Homepage      string         `json:"homepage"`
	Documentation string         `json:"documentation"`
	Repository    string         `json:"repository"`
	Keywords      []string       `json:"keywords"`
	Categories    []string       `json:"categories"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	Versions      []model.Version `json:"versions"`
}

func (p *Provider) readMeta(name string) (metaFile, string, error) {
	rel, err := metaFileRelPath(name)
	if err != nil {
		return metaFile{}, "", err
	}
	path := filepath.Join(p.root, rel)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return metaFile{}, path, errs.ErrNotFound
	}
	if err != nil {
		return metaFile{}, path, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	var mf metaFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return metaFile{}, path, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	return mf, path, nil
}

func (p *Provider) writeMeta(path string, mf metaFile) error {
	data, err := json.Marshal(mf)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	return nil
}

// ConfirmExistence implements repository.IndexRepository.
func (p *Provider) ConfirmExistence(_ context.Context, name, version string) (bool, string, error) {
	lock := p.lockFor(name)
	lock.RLock()
	defer lock.RUnlock()

	mf, _, err := p.readMeta(name)
	if err != nil {
		return false, "", err
	}
	for i := len(mf.Versions) - 1; i >= 0; i-- {
		if mf.Versions[i].Num == version {
			return mf.Versions[i].Yanked, mf.Versions[i].Checksum, nil
		}
	}
	return false, "", errs.ErrNotFound
}

// GetSparseEntry implements repository.IndexRepository.
func (p *Provider) GetSparseEntry(_ context.Context, name string) ([]model.Version, error) {
	lock := p.lockFor(name)
	lock.RLock()
	defer lock.RUnlock()

	mf, _, err := p.readMeta(name)
	if err != nil {
		return nil, err
	}
	return mf.Versions, nil
}

// Publish implements repository.IndexRepository. The whole read-modify-write
// happens under the package's exclusive lock so a concurrent publish to the
// same package can never interleave with this one; end is invoked with the
// lock still held, mirroring the relational backend's in-transaction callback.
func (p *Provider) Publish(ctx context.Context, meta model.PublishRequest, checksum string, end repository.EndStep) (repository.PublishResult, error) {
	lock := p.lockFor(meta.Name)
	lock.Lock()
	defer lock.Unlock()

	mf, path, err := p.readMeta(meta.Name)
	firstPublish := false
	if errors.Is(err, errs.ErrNotFound) {
		firstPublish = true
		now := time.Now()
		mf = metaFile{Name: meta.Name, CreatedAt: now}
		rel, rerr := metaFileRelPath(meta.Name)
		if rerr != nil {
			return repository.PublishResult{}, rerr
		}
		path = filepath.Join(p.root, rel)
	} else if err != nil {
		return repository.PublishResult{}, err
	}

	for _, v := range mf.Versions {
		if v.Num == meta.Vers {
			return repository.PublishResult{}, errs.ErrVersionExists
		}
	}

	versionID, err := uuid.NewV4()
	if err != nil {
		return repository.PublishResult{}, err
	}
	mf.Description = meta.Description
	mf.Homepage = meta.Homepage
	mf.Documentation = meta.Documentation
	mf.Repository = meta.Repository
	mf.Keywords = meta.Keywords
	mf.Categories = meta.Categories
	mf.UpdatedAt = time.Now()
	mf.Versions = append(mf.Versions, model.Version{
		ID:        versionID,
		Num:       meta.Vers,
		Checksum:  checksum,
		Links:     meta.Links,
		Deps:      meta.Deps,
		Features:  meta.Features,
		CreatedAt: time.Now(),
	})

	if err := end(ctx); err != nil {
		return repository.PublishResult{}, err
	}

	if err := p.writeMeta(path, mf); err != nil {
		return repository.PublishResult{}, err
	}
	return repository.PublishResult{FirstPublish: firstPublish}, nil
}

// Yank implements repository.IndexRepository.
func (p *Provider) Yank(_ context.Context, name, version string, yanked bool) (bool, error) {
	lock := p.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	mf, path, err := p.readMeta(name)
	if err != nil {
		return false, err
	}
	for i := range mf.Versions {
		if mf.Versions[i].Num == version {
			if mf.Versions[i].Yanked == yanked {
				return yanked, nil
			}
			mf.Versions[i].Yanked = yanked
			if err := p.writeMeta(path, mf); err != nil {
				return false, err
			}
			return yanked, nil
		}
	}
	return false, errs.ErrNotFound
}

// ListAll implements repository.IndexRepository.
func (p *Provider) ListAll(_ context.Context) ([]model.Package, map[string][]model.Version, error) {
	var pkgs []model.Package
	versionsByName := map[string][]model.Version{}

	err := filepath.WalkDir(filepath.Join(p.root, "index"), func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return rerr
		}
		var mf metaFile
		if jerr := json.Unmarshal(data, &mf); jerr != nil {
			return nil // skip unreadable/corrupt entries rather than fail the whole listing
		}
		pkgs = append(pkgs, model.Package{
			Name: mf.Name, Description: mf.Description, Homepage: mf.Homepage,
			Documentation: mf.Documentation, Repository: mf.Repository,
			Keywords: mf.Keywords, Categories: mf.Categories,
			CreatedAt: mf.CreatedAt, UpdatedAt: mf.UpdatedAt,
		})
		versionsByName[mf.Name] = mf.Versions
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}

	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })
	return pkgs, versionsByName, nil
}

// Search implements repository.IndexRepository: a substring scan over every
// package's name, ranked exact-prefix-first then lexicographic (§9).
func (p *Provider) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, int, error) {
	pkgs, versionsByName, err := p.ListAll(ctx)
	if err != nil {
		return nil, 0, err
	}

	var results []model.SearchResult
	for _, pkg := range pkgs {
		if !strings.Contains(pkg.Name, query) {
			continue
		}
		best := ""
		for _, v := range versionsByName[pkg.Name] {
			if v.Yanked {
				continue
			}
			if best == "" || semver.Less(best, v.Num) {
				best = v.Num
			}
		}
		if best == "" {
			continue
		}
		results = append(results, model.SearchResult{Name: pkg.Name, MaxVersion: best, Description: pkg.Description})
	}

	sort.Slice(results, func(i, j int) bool {
		pi, pj := strings.HasPrefix(results[i].Name, query), strings.HasPrefix(results[j].Name, query)
		if pi != pj {
			return pi
		}
		return results[i].Name < results[j].Name
	})

	total := len(results)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, total, nil
}

// Healthcheck implements repository.IndexRepository: the filesystem backend
// is reachable as long as its root directory is.
func (p *Provider) Healthcheck(context.Context) error {
	info, err := os.Stat(p.root)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: index root is not a directory", errs.ErrIndexIO)
	}
	return nil
}

var _ repository.IndexRepository = (*Provider)(nil)
