package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/model"
	"github.com/freighter-go/registry/internal/repository"
	"github.com/freighter-go/registry/internal/semver"
)

// IndexRepo implements repository.IndexRepository using PostgreSQL. It is
// the relational half of the Index backend contract (§4.1), grounded on the
// transactional upsert/defer-rollback shape of the teacher's item repository.
type IndexRepo struct{ db *DB }

// NewIndexRepo constructs an index repository.
func NewIndexRepo(db *DB) *IndexRepo { return &IndexRepo{db: db} }

// ConfirmExistence implements repository.IndexRepository.
func (r *IndexRepo) ConfirmExistence(ctx context.Context, name, version string) (bool, string, error) {
	const q = `
SELECT v.yanked, v.checksum
FROM versions v
JOIN packages p ON p.id = v.package_id
WHERE p.name = $1 AND p.registry = '' AND v.num = $2`
	var yanked bool
	var checksum string
	err := r.db.Pool.QueryRow(ctx, q, name, version).Scan(&yanked, &checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, "", errs.ErrNotFound
	}
	if err != nil {
		return false, "", fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	return yanked, checksum, nil
}

// GetSparseEntry implements repository.IndexRepository.
func (r *IndexRepo) GetSparseEntry(ctx context.Context, name string) ([]model.Version, error) {
	pkgID, err := r.packageIDByName(ctx, name)
	if err != nil {
		return nil, err
	}

	const q = `
SELECT id, num, checksum, yanked, links, created_at
FROM versions WHERE package_id = $1
ORDER BY created_at ASC, num ASC`
	rows, err := r.db.Pool.Query(ctx, q, pkgID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	defer rows.Close()

	var versions []model.Version
	for rows.Next() {
		var v model.Version
		if err := rows.Scan(&v.ID, &v.Num, &v.Checksum, &v.Yanked, &v.Links, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
		}
		v.PackageID = pkgID
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	if len(versions) == 0 {
		return nil, errs.ErrNotFound
	}
	sort.SliceStable(versions, func(i, j int) bool {
		if !versions[i].CreatedAt.Equal(versions[j].CreatedAt) {
			return versions[i].CreatedAt.Before(versions[j].CreatedAt)
		}
		return semver.Less(versions[i].Num, versions[j].Num)
	})

	for i := range versions {
		deps, err := r.depsForVersion(ctx, versions[i].ID)
		if err != nil {
			return nil, err
		}
		versions[i].Deps = deps

		features, err := r.featuresForVersion(ctx, versions[i].ID)
		if err != nil {
			return nil, err
		}
		versions[i].Features = features
	}
	return versions, nil
}

func (r *IndexRepo) depsForVersion(ctx context.Context, versionID uuid.UUID) ([]model.Dependency, error) {
	const q = `
SELECT p.name, d.alias, d.req, d.features, d.optional, d.default_features, d.target, d.kind, d.registry
FROM dependencies d
JOIN packages p ON p.id = d.dep_package_id
WHERE d.version_id = $1
ORDER BY p.name, d.kind, d.target, d.alias`
	rows, err := r.db.Pool.Query(ctx, q, versionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	defer rows.Close()

	var deps []model.Dependency
	for rows.Next() {
		var d model.Dependency
		var kind string
		if err := rows.Scan(&d.Name, &d.Alias, &d.Req, &d.Features, &d.Optional, &d.DefaultFeatures, &d.Target, &kind, &d.Registry); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
		}
		d.Kind = model.DependencyKind(kind)
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

func (r *IndexRepo) featuresForVersion(ctx context.Context, versionID uuid.UUID) (map[string][]string, error) {
	const q = `SELECT name, deps FROM features WHERE version_id = $1`
	rows, err := r.db.Pool.Query(ctx, q, versionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	defer rows.Close()

	out := map[string][]string{}
	for rows.Next() {
		var name string
		var fdeps []string
		if err := rows.Scan(&name, &fdeps); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
		}
		out[name] = fdeps
	}
	return out, rows.Err()
}

func (r *IndexRepo) packageIDByName(ctx context.Context, name string) (uuid.UUID, error) {
	const q = `SELECT id FROM packages WHERE name = $1 AND registry = ''`
	var id uuid.UUID
	err := r.db.Pool.QueryRow(ctx, q, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, errs.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	return id, nil
}

// Search implements repository.IndexRepository. Candidates are fetched by a
// substring scan and then ranked in Go: exact-prefix matches first, then
// lexicographic by name (§9 open-question resolution).
func (r *IndexRepo) Search(ctx context.Context, query string, limit int) ([]model.SearchResult, int, error) {
	const q = `
SELECT p.name, p.description, v.num, v.yanked
FROM packages p
JOIN versions v ON v.package_id = p.id
WHERE p.registry = '' AND p.name LIKE '%' || $1 || '%'
ORDER BY p.name`
	rows, err := r.db.Pool.Query(ctx, q, query)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	defer rows.Close()

	best := map[string]model.SearchResult{}
	for rows.Next() {
		var name, description, num string
		var yanked bool
		if err := rows.Scan(&name, &description, &num, &yanked); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
		}
		if yanked {
			continue
		}
		cur, ok := best[name]
		if !ok || semver.Less(cur.MaxVersion, num) {
			best[name] = model.SearchResult{Name: name, MaxVersion: num, Description: description}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}

	results := make([]model.SearchResult, 0, len(best))
	for _, v := range best {
		results = append(results, v)
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

// ListAll implements repository.IndexRepository.
func (r *IndexRepo) ListAll(ctx context.Context) ([]model.Package, map[string][]model.Version, error) {
	const pq = `
SELECT id, name, description, homepage, documentation, repository, created_at, updated_at
FROM packages WHERE registry = '' ORDER BY name`
	rows, err := r.db.Pool.Query(ctx, pq)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	defer rows.Close()

	var pkgs []model.Package
	for rows.Next() {
		var p model.Package
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Homepage, &p.Documentation, &p.Repository, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
		}
		pkgs = append(pkgs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}

	versionsByName := map[string][]model.Version{}
	for _, p := range pkgs {
		vs, err := r.GetSparseEntry(ctx, p.Name)
		if err != nil && !errors.Is(err, errs.ErrNotFound) {
			return nil, nil, err
		}
		versionsByName[p.Name] = vs
	}
	return pkgs, versionsByName, nil
}

// Publish implements repository.IndexRepository. It runs the whole insert
// sequence in one transaction and invokes end inside it, exactly per §4.1's
// publish contract: a storage failure must roll the index insert back.
func (r *IndexRepo) Publish(ctx context.Context, meta model.PublishRequest, checksum string, end repository.EndStep) (result repository.PublishResult, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return repository.PublishResult{}, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("%w: %v", errs.ErrIndexIO, e)
		}
	}()

	pkgID, firstPublish, err := upsertPackage(ctx, tx, meta)
	if err != nil {
		return repository.PublishResult{}, err
	}

	if err = syncStringSet(ctx, tx, "package_keywords", "keyword", pkgID, meta.Keywords); err != nil {
		return repository.PublishResult{}, err
	}
	if err = syncStringSet(ctx, tx, "package_categories", "category", pkgID, meta.Categories); err != nil {
		return repository.PublishResult{}, err
	}

	versionID, err := uuid.NewV4()
	if err != nil {
		return repository.PublishResult{}, err
	}
	const insVer = `
INSERT INTO versions (id, package_id, num, checksum, yanked, links)
VALUES ($1, $2, $3, $4, false, $5)`
	if _, err = tx.Exec(ctx, insVer, versionID, pkgID, meta.Vers, checksum, meta.Links); err != nil {
		if isUniqueViolation(err) {
			err = errs.ErrVersionExists
		} else {
			err = fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
		}
		return repository.PublishResult{}, err
	}

	for name, fdeps := range meta.Features {
		fid, ferr := uuid.NewV4()
		if ferr != nil {
			err = ferr
			return repository.PublishResult{}, err
		}
		const insFeat = `INSERT INTO features (id, version_id, name, deps) VALUES ($1,$2,$3,$4)`
		if _, err = tx.Exec(ctx, insFeat, fid, versionID, name, fdeps); err != nil {
			err = fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
			return repository.PublishResult{}, err
		}
	}

	for _, dep := range meta.Deps {
		depPkgID, derr := upsertDependencyPackage(ctx, tx, dep)
		if derr != nil {
			err = derr
			return repository.PublishResult{}, err
		}
		did, derr := uuid.NewV4()
		if derr != nil {
			err = derr
			return repository.PublishResult{}, err
		}
		const insDep = `
INSERT INTO dependencies (id, version_id, dep_package_id, alias, req, features, optional, default_features, target, kind, registry)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
		if _, err = tx.Exec(ctx, insDep, did, versionID, depPkgID, dep.Alias, dep.Req, dep.Features, dep.Optional, dep.DefaultFeatures, dep.Target, string(dep.Kind), dep.Registry); err != nil {
			err = fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
			return repository.PublishResult{}, err
		}
	}

	if err = end(ctx); err != nil {
		return repository.PublishResult{}, err
	}

	return repository.PublishResult{FirstPublish: firstPublish}, nil
}

func upsertPackage(ctx context.Context, tx pgx.Tx, meta model.PublishRequest) (uuid.UUID, bool, error) {
	const sel = `SELECT id FROM packages WHERE name = $1 AND registry = ''`
	var id uuid.UUID
	err := tx.QueryRow(ctx, sel, meta.Name).Scan(&id)
	switch {
	case err == nil:
		const upd = `
UPDATE packages SET description=$2, homepage=$3, documentation=$4, repository=$5, updated_at=now()
WHERE id=$1`
		if _, err := tx.Exec(ctx, upd, id, meta.Description, meta.Homepage, meta.Documentation, meta.Repository); err != nil {
			return uuid.Nil, false, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
		}
		return id, false, nil
	case errors.Is(err, pgx.ErrNoRows):
		newID, uerr := uuid.NewV4()
		if uerr != nil {
			return uuid.Nil, false, uerr
		}
		const ins = `
INSERT INTO packages (id, name, registry, description, homepage, documentation, repository)
VALUES ($1, $2, '', $3, $4, $5, $6)`
		if _, err := tx.Exec(ctx, ins, newID, meta.Name, meta.Description, meta.Homepage, meta.Documentation, meta.Repository); err != nil {
			return uuid.Nil, false, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
		}
		return newID, true, nil
	default:
		return uuid.Nil, false, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
}

// upsertDependencyPackage finds or auto-creates the Package row a
// dependency edge points at, keyed by (name, registry) per §3/§9.
func upsertDependencyPackage(ctx context.Context, tx pgx.Tx, dep model.Dependency) (uuid.UUID, error) {
	const sel = `SELECT id FROM packages WHERE name = $1 AND registry = $2`
	var id uuid.UUID
	err := tx.QueryRow(ctx, sel, dep.Name, dep.Registry).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}

	newID, uerr := uuid.NewV4()
	if uerr != nil {
		return uuid.Nil, uerr
	}
	const ins = `INSERT INTO packages (id, name, registry) VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, ins, newID, dep.Name, dep.Registry); err != nil {
		if isUniqueViolation(err) {
			// lost the race against a concurrent publish creating the same
			// external/local placeholder; re-select the winner's row.
			if serr := tx.QueryRow(ctx, sel, dep.Name, dep.Registry).Scan(&id); serr == nil {
				return id, nil
			}
		}
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	return newID, nil
}

// syncStringSet makes the rows of table (keyed by packageID, valueCol) match
// values exactly: inserts what's missing, deletes what's stale.
func syncStringSet(ctx context.Context, tx pgx.Tx, table, valueCol string, packageID uuid.UUID, values []string) error {
	existing := map[string]bool{}
	selQ := fmt.Sprintf(`SELECT %s FROM %s WHERE package_id = $1`, valueCol, table)
	rows, err := tx.Query(ctx, selQ, packageID)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
		}
		existing[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}

	wanted := map[string]bool{}
	for _, v := range values {
		wanted[v] = true
	}

	insQ := fmt.Sprintf(`INSERT INTO %s (package_id, %s) VALUES ($1, $2)`, table, valueCol)
	for v := range wanted {
		if !existing[v] {
			if _, err := tx.Exec(ctx, insQ, packageID, v); err != nil {
				return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
			}
		}
	}

	delQ := fmt.Sprintf(`DELETE FROM %s WHERE package_id = $1 AND %s = $2`, table, valueCol)
	for v := range existing {
		if !wanted[v] {
			if _, err := tx.Exec(ctx, delQ, packageID, v); err != nil {
				return fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
			}
		}
	}
	return nil
}

// Yank implements repository.IndexRepository. Idempotent: setting the
// current state is success, per §4.1 (a deliberate divergence from the
// original source's "0 rows affected is a conflict" behavior).
func (r *IndexRepo) Yank(ctx context.Context, name, version string, yanked bool) (bool, error) {
	const sel = `
SELECT v.yanked FROM versions v
JOIN packages p ON p.id = v.package_id
WHERE p.name = $1 AND p.registry = '' AND v.num = $2`
	var current bool
	err := r.db.Pool.QueryRow(ctx, sel, name, version).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, errs.ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	if current == yanked {
		return current, nil
	}

	const upd = `
UPDATE versions v SET yanked = $3
FROM packages p
WHERE p.id = v.package_id AND p.name = $1 AND p.registry = '' AND v.num = $2`
	if _, err := r.db.Pool.Exec(ctx, upd, name, version, yanked); err != nil {
		return false, fmt.Errorf("%w: %v", errs.ErrIndexIO, err)
	}
	return yanked, nil
}

// Healthcheck implements repository.IndexRepository.
func (r *IndexRepo) Healthcheck(ctx context.Context) error {
	var one int
	return r.db.Pool.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

var _ repository.IndexRepository = (*IndexRepo)(nil)
