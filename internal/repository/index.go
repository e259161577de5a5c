// Package repository defines the storage-facing contracts implemented by
// concrete backends (relational, filesystem) and consumed by the publish
// orchestrator and the HTTP request glue.
package repository

import (
	"context"

	"github.com/freighter-go/registry/internal/model"
)

// EndStep is invoked by an Index implementation from inside its own publish
// transaction. A non-nil error rolls the transaction back.
type EndStep func(ctx context.Context) error

// PublishResult reports the outcome of a successful Index.Publish call.
type PublishResult struct {
	FirstPublish bool // true if this call created the Package row
	Warnings     model.PublishWarnings
}

// IndexRepository is the Index backend contract (§4.1): versioned package
// metadata, dependency graph, yank state, search, and sparse-index reads.
type IndexRepository interface {
	// ConfirmExistence reports whether (name, version) exists and, if so,
	// its yanked state and checksum. Returns errs.ErrNotFound otherwise.
	ConfirmExistence(ctx context.Context, name, version string) (yanked bool, checksum string, err error)

	// GetSparseEntry returns every published version of name (including
	// yanked ones) ordered ascending by publish time then semver.
	// Returns errs.ErrNotFound if the package has never been published.
	GetSparseEntry(ctx context.Context, name string) ([]model.Version, error)

	// Search returns up to limit hits ordered exact-prefix-first then
	// lexicographic by name.
	Search(ctx context.Context, query string, limit int) ([]model.SearchResult, int, error)

	// ListAll returns every package with its published versions, for bulk
	// dump/index-rebuild use.
	ListAll(ctx context.Context) ([]model.Package, map[string][]model.Version, error)

	// Publish inserts the Package (if new), the Version, its Features and
	// Dependencies, inside one transaction, invoking end_step before commit.
	// Returns errs.ErrVersionExists if (name, version) already exists.
	Publish(ctx context.Context, meta model.PublishRequest, checksum string, end EndStep) (PublishResult, error)

	// Yank sets the yanked flag on (name, version) and returns the resulting
	// state. Idempotent: setting the current state is success.
	Yank(ctx context.Context, name, version string, yanked bool) (bool, error)

	// Healthcheck reports whether the backend is reachable.
	Healthcheck(ctx context.Context) error
}
