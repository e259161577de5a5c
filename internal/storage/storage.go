// Package storage defines the Storage backend contract (§4.2): a
// content-addressed tarball store keyed by (name, version), plus its
// object-store and filesystem implementations.
package storage

import "context"

// Provider is implemented by every Storage backend.
type Provider interface {
	// PutTarball writes bytes under the key derived from (name, version).
	// Write-once: a second put with identical bytes is a no-op success; a
	// second put with different bytes returns errs.ErrConflict.
	PutTarball(ctx context.Context, name, version string, data []byte) error

	// GetTarball returns the bytes stored for (name, version), or
	// errs.ErrNotFound.
	GetTarball(ctx context.Context, name, version string) ([]byte, error)

	// DeleteTarball removes (name, version). Used only as a compensating
	// delete; errs.ErrNotFound here is benign.
	DeleteTarball(ctx context.Context, name, version string) error

	// PutReadme and GetReadme carry the same contract as the tarball pair,
	// for the optional rendered-readme sidecar.
	PutReadme(ctx context.Context, name, version string, data []byte) error
	GetReadme(ctx context.Context, name, version string) ([]byte, error)

	// Healthcheck reports whether the backend is reachable.
	Healthcheck(ctx context.Context) error
}

// Key is the canonical content-addressed key for a tarball: lowercase name,
// exact version string.
func Key(name, version string) string {
	return name + "-" + version + ".crate"
}

// ReadmeKey is the canonical key for a rendered readme sidecar.
func ReadmeKey(name, version string) string {
	return name + "-" + version + ".readme"
}
