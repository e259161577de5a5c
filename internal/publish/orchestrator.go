// Package publish implements the transactional publish orchestrator (§4.4):
// parse the length-prefixed publish frame, validate and authorize it,
// persist the tarball and the index entry as one logical unit, and grant
// first-publish ownership. Grounded line-for-line on original_source's
// freighter-index/src/postgres_client.rs::publish (prepare/upsert/insert,
// invoke end_step, commit) and freighter-server/src/api.rs::publish (split
// frame, checksum, auth.publish, end_step closure, compensating delete on
// index failure).
package publish

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/freighter-go/registry/internal/apitypes"
	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/convert"
	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/model"
	"github.com/freighter-go/registry/internal/repository"
	"github.com/freighter-go/registry/internal/semver"
	"github.com/freighter-go/registry/internal/storage"
)

// maxNameLength matches the sharding scheme's own limit (fsindex rejects
// names beyond this; the relational schema has no length limit of its own).
const maxNameLength = 64

// Orchestrator composes the Index, Storage and Auth backends into the
// publish/yank/ownership operations exposed over HTTP.
type Orchestrator struct {
	index   repository.IndexRepository
	storage storage.Provider
	auth    auth.Provider
	log     *zap.Logger
}

// New constructs an Orchestrator over the three backend contracts.
func New(index repository.IndexRepository, store storage.Provider, authp auth.Provider, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{index: index, storage: store, auth: authp, log: log}
}

func isValidCrateNameChar(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9') || b == '-' || b == '_'
}

func validateName(name string) error {
	if name == "" || len(name) > maxNameLength {
		return fmt.Errorf("%w: invalid crate name length", errs.ErrBadRequest)
	}
	if !((name[0] >= 'a' && name[0] <= 'z') || (name[0] >= 'A' && name[0] <= 'Z')) {
		return fmt.Errorf("%w: crate name must start with a letter", errs.ErrBadRequest)
	}
	for i := 0; i < len(name); i++ {
		if !isValidCrateNameChar(name[i]) {
			return fmt.Errorf("%w: invalid crate name character", errs.ErrBadRequest)
		}
	}
	return nil
}

// Publish decodes, validates, authorizes and stores a publish request body,
// returning the response cargo expects on success.
func (o *Orchestrator) Publish(ctx context.Context, userID uuid.UUID, body []byte) (apitypes.CompletedPublication, error) {
	metaJSON, tarball, err := ParseFrame(body)
	if err != nil {
		return apitypes.CompletedPublication{}, err
	}

	var wire apitypes.Publish
	if err := json.Unmarshal(metaJSON, &wire); err != nil {
		return apitypes.CompletedPublication{}, fmt.Errorf("%w: %v", errs.ErrBadRequest, err)
	}

	// §9(b): package names are case-insensitive on publish — canonicalize to
	// lowercase before any validation, authorization or storage touches it.
	wire.Name = strings.ToLower(wire.Name)
	if err := validateName(wire.Name); err != nil {
		return apitypes.CompletedPublication{}, err
	}
	version, err := semver.Parse(wire.Vers)
	if err != nil {
		return apitypes.CompletedPublication{}, fmt.Errorf("%w: %v", errs.ErrBadRequest, err)
	}
	wire.Vers = version
	for _, d := range wire.Deps {
		if err := semver.ParseRequirement(d.VersionReq); err != nil {
			return apitypes.CompletedPublication{}, fmt.Errorf("%w: %v", errs.ErrBadRequest, err)
		}
	}

	if err := o.auth.AuthorizePublish(ctx, userID, wire.Name); err != nil {
		o.log.Info("publish denied",
			zap.String("crate", wire.Name), zap.String("version", wire.Vers), zap.Error(err))
		return apitypes.CompletedPublication{}, err
	}

	sum := sha256.Sum256(tarball)
	checksum := hex.EncodeToString(sum[:])

	meta := convert.FromAPIPublish(wire)

	stored := false
	end := func(ctx context.Context) error {
		if err := o.storage.PutTarball(ctx, wire.Name, wire.Vers, tarball); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrStorageIO, err)
		}
		stored = true
		return nil
	}

	result, err := o.index.Publish(ctx, meta, checksum, end)
	if err != nil {
		if stored {
			// Index commit failed after the tarball landed: best-effort
			// compensating delete so the store doesn't accumulate orphans.
			if derr := o.storage.DeleteTarball(ctx, wire.Name, wire.Vers); derr != nil {
				o.log.Warn("compensating tarball delete failed",
					zap.String("crate", wire.Name), zap.String("version", wire.Vers), zap.Error(derr))
			}
		}
		o.log.Error("publish index commit failed",
			zap.String("crate", wire.Name), zap.String("version", wire.Vers), zap.Error(err))
		return apitypes.CompletedPublication{}, err
	}

	if result.FirstPublish {
		if err := o.auth.RegisterOwner(ctx, userID, wire.Name); err != nil {
			// §9(a): a first-publish whose ownership grant fails leaves a
			// package with no owner ever able to yank it. Best-effort
			// compensating delete plus a tombstone yank, in that order, so
			// the tarball doesn't linger and the version reads as dead
			// rather than live-but-unownable.
			if derr := o.storage.DeleteTarball(ctx, wire.Name, wire.Vers); derr != nil {
				o.log.Warn("compensating tarball delete failed after ownership grant failure",
					zap.String("crate", wire.Name), zap.String("version", wire.Vers), zap.Error(derr))
			}
			if _, yerr := o.index.Yank(ctx, wire.Name, wire.Vers, true); yerr != nil {
				o.log.Warn("compensating tombstone yank failed after ownership grant failure",
					zap.String("crate", wire.Name), zap.String("version", wire.Vers), zap.Error(yerr))
			}
			o.log.Error("publish ownership grant failed",
				zap.String("crate", wire.Name), zap.String("version", wire.Vers), zap.Error(err))
			return apitypes.CompletedPublication{}, err
		}
	}

	o.log.Info("publish ok",
		zap.String("crate", wire.Name), zap.String("version", wire.Vers),
		zap.Bool("first_publish", result.FirstPublish))

	resp := apitypes.CompletedPublication{}
	if len(result.Warnings.Invalid) > 0 || len(result.Warnings.Other) > 0 {
		resp.Warnings = &apitypes.CompletedPublicationWarnings{
			InvalidCategories: result.Warnings.Invalid,
			Other:             result.Warnings.Other,
		}
	}
	return resp, nil
}

// Yank implements the yank/unyank operation (§4.5): authorize ownership,
// then flip the idempotent yanked flag.
func (o *Orchestrator) Yank(ctx context.Context, userID uuid.UUID, name, version string, yanked bool) error {
	name = strings.ToLower(name)
	if err := o.auth.AuthorizeYank(ctx, userID, name); err != nil {
		return err
	}
	_, err := o.index.Yank(ctx, name, version, yanked)
	return err
}

// ListOwners implements the ownership-listing operation.
func (o *Orchestrator) ListOwners(ctx context.Context, name string) ([]model.ListedOwner, error) {
	return o.auth.ListOwners(ctx, strings.ToLower(name))
}

// AddOwners implements the ownership grant operation.
func (o *Orchestrator) AddOwners(ctx context.Context, userID uuid.UUID, name string, usernames []string) error {
	return o.auth.AddOwners(ctx, userID, strings.ToLower(name), usernames)
}

// RemoveOwners implements the ownership revocation operation.
func (o *Orchestrator) RemoveOwners(ctx context.Context, userID uuid.UUID, name string, usernames []string) error {
	return o.auth.RemoveOwners(ctx, userID, strings.ToLower(name), usernames)
}
