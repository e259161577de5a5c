// Package fsstorage implements the Storage backend contract on a local
// filesystem tree, for development and single-node deployments.
package fsstorage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/storage"
)

// Provider stores tarballs as plain files under root.
type Provider struct {
	root string
}

// New constructs a filesystem storage provider rooted at dir. The directory
// is created if it does not exist.
func New(dir string) (*Provider, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Provider{root: abs}, nil
}

// absPath resolves key against root and rejects any path that escapes it.
func (p *Provider) absPath(key string) (string, error) {
	joined := filepath.Join(p.root, key)
	if !strings.HasPrefix(joined, p.root+string(filepath.Separator)) && joined != p.root {
		return "", errs.ErrBadRequest
	}
	return joined, nil
}

func (p *Provider) putFile(key string, data []byte) error {
	path, err := p.absPath(key)
	if err != nil {
		return err
	}
	if existing, err := os.ReadFile(path); err == nil {
		if bytes.Equal(existing, data) {
			return nil
		}
		return errs.ErrConflict
	} else if !errors.Is(err, os.ErrNotExist) {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (p *Provider) getFile(key string) ([]byte, error) {
	path, err := p.absPath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (p *Provider) deleteFile(key string) error {
	path, err := p.absPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// PutTarball implements storage.Provider.
func (p *Provider) PutTarball(_ context.Context, name, version string, data []byte) error {
	return p.putFile(storage.Key(name, version), data)
}

// GetTarball implements storage.Provider.
func (p *Provider) GetTarball(_ context.Context, name, version string) ([]byte, error) {
	return p.getFile(storage.Key(name, version))
}

// DeleteTarball implements storage.Provider.
func (p *Provider) DeleteTarball(_ context.Context, name, version string) error {
	return p.deleteFile(storage.Key(name, version))
}

// PutReadme implements storage.Provider.
func (p *Provider) PutReadme(_ context.Context, name, version string, data []byte) error {
	return p.putFile(storage.ReadmeKey(name, version), data)
}

// GetReadme implements storage.Provider.
func (p *Provider) GetReadme(_ context.Context, name, version string) ([]byte, error) {
	return p.getFile(storage.ReadmeKey(name, version))
}

// Healthcheck implements storage.Provider.
func (p *Provider) Healthcheck(_ context.Context) error {
	info, err := os.Stat(p.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return io.ErrUnexpectedEOF
	}
	return nil
}
