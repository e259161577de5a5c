package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/crypto"
	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/limiter"
	"github.com/freighter-go/registry/internal/model"
)

// AuthRepo implements auth.Provider against PostgreSQL: password users,
// tokens stored as a peppered (unsalted) HMAC-SHA256 hash, and an
// ownership table. Grounded on the teacher's
// UserRepo (user CRUD shape) generalized to the token/ownership model of
// original_source's pg_backend.rs.
type AuthRepo struct {
	db     *DB
	pepper []byte
	lim    limiter.Limiter
}

// NewAuthRepo constructs a relational Auth provider. pepper is mixed into
// every stored token hash; lim enforces login rate limiting.
func NewAuthRepo(db *DB, pepper []byte, lim limiter.Limiter) *AuthRepo {
	return &AuthRepo{db: db, pepper: pepper, lim: lim}
}

// RegisterUser implements auth.Provider.
func (r *AuthRepo) RegisterUser(ctx context.Context, username, password string) (model.User, string, error) {
	if username == "" || password == "" {
		return model.User{}, "", errs.ErrBadRequest
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return model.User{}, "", err
	}
	salt, err := crypto.RandBytes(16)
	if err != nil {
		return model.User{}, "", err
	}
	pwdHash := crypto.HashPassword([]byte(password), salt)

	const ins = `INSERT INTO users (id, username, pwd_hash, salt_auth) VALUES ($1,$2,$3,$4)`
	if _, err := r.db.Pool.Exec(ctx, ins, uid, username, pwdHash, salt); err != nil {
		if isUniqueViolation(err) {
			return model.User{}, "", errs.ErrAlreadyExists
		}
		return model.User{}, "", fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}

	token, err := r.issueToken(ctx, uid, "registration")
	if err != nil {
		return model.User{}, "", err
	}
	return model.User{ID: uid, Username: username, PwdHash: pwdHash, SaltAuth: salt}, token, nil
}

// Login implements auth.Provider.
func (r *AuthRepo) Login(ctx context.Context, username, password, ip string) (string, model.User, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := r.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return "", model.User{}, fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	if !allowed {
		return "", model.User{}, errs.ErrRateLimited
	}

	u, err := r.userByUsername(ctx, username)
	if err != nil || !crypto.VerifyPassword([]byte(password), u.SaltAuth, u.PwdHash) {
		if blocked, _, ferr := r.lim.Failure(ctx, username, ipHash); ferr == nil && blocked {
			return "", model.User{}, errs.ErrRateLimited
		}
		return "", model.User{}, errs.ErrUnauthorized
	}
	_ = r.lim.Success(ctx, username, ipHash)

	token, err := r.issueToken(ctx, u.ID, "login")
	if err != nil {
		return "", model.User{}, err
	}
	return token, u, nil
}

func (r *AuthRepo) userByUsername(ctx context.Context, username string) (model.User, error) {
	const q = `SELECT id, username, pwd_hash, salt_auth, created_at FROM users WHERE username=$1`
	var u model.User
	err := r.db.Pool.QueryRow(ctx, q, username).Scan(&u.ID, &u.Username, &u.PwdHash, &u.SaltAuth, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, errs.ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	return u, nil
}

func (r *AuthRepo) issueToken(ctx context.Context, userID uuid.UUID, name string) (string, error) {
	token, err := crypto.NewBearerToken()
	if err != nil {
		return "", err
	}
	hash := crypto.HashToken(token, r.pepper)

	tid, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	const ins = `INSERT INTO tokens (id, user_id, name, token_hash) VALUES ($1,$2,$3,$4)`
	if _, err := r.db.Pool.Exec(ctx, ins, tid, userID, name, hash); err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	return token, nil
}

// VerifyToken implements auth.Provider.
func (r *AuthRepo) VerifyToken(ctx context.Context, token string) (uuid.UUID, string, error) {
	hash := crypto.HashToken(token, r.pepper)
	const q = `
SELECT u.id, u.username FROM tokens t
JOIN users u ON u.id = t.user_id
WHERE t.token_hash = $1`
	var id uuid.UUID
	var username string
	err := r.db.Pool.QueryRow(ctx, q, hash).Scan(&id, &username)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, "", errs.ErrForbidden
	}
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}

	const touch = `UPDATE tokens SET last_used_at = $2 WHERE token_hash = $1`
	_, _ = r.db.Pool.Exec(ctx, touch, hash, time.Now())

	return id, username, nil
}

func (r *AuthRepo) isOwner(ctx context.Context, userID uuid.UUID, packageName string) (bool, error) {
	const q = `
SELECT EXISTS(
  SELECT 1 FROM ownership o
  JOIN packages p ON p.id = o.package_id
  WHERE o.user_id = $1 AND p.name = $2 AND p.registry = ''
)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, userID, packageName).Scan(&ok); err != nil {
		return false, fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	return ok, nil
}

func (r *AuthRepo) hasAnyOwner(ctx context.Context, packageName string) (bool, error) {
	const q = `
SELECT EXISTS(
  SELECT 1 FROM ownership o
  JOIN packages p ON p.id = o.package_id
  WHERE p.name = $1 AND p.registry = ''
)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, packageName).Scan(&ok); err != nil {
		return false, fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	return ok, nil
}

// AuthorizePublish implements auth.Provider.
func (r *AuthRepo) AuthorizePublish(ctx context.Context, userID uuid.UUID, packageName string) error {
	owned, err := r.isOwner(ctx, userID, packageName)
	if err != nil {
		return err
	}
	if owned {
		return nil
	}
	anyOwner, err := r.hasAnyOwner(ctx, packageName)
	if err != nil {
		return err
	}
	if anyOwner {
		return errs.ErrForbidden
	}
	// Package has no owners yet: either it doesn't exist, or a prior publish
	// raced and crashed before RegisterOwner ran. Either way this caller
	// becomes the first owner once Index.Publish succeeds.
	return nil
}

// AuthorizeYank implements auth.Provider.
func (r *AuthRepo) AuthorizeYank(ctx context.Context, userID uuid.UUID, packageName string) error {
	owned, err := r.isOwner(ctx, userID, packageName)
	if err != nil {
		return err
	}
	if !owned {
		return errs.ErrForbidden
	}
	return nil
}

// ListOwners implements auth.Provider.
func (r *AuthRepo) ListOwners(ctx context.Context, packageName string) ([]model.ListedOwner, error) {
	const q = `
SELECT u.id, u.username FROM ownership o
JOIN users u ON u.id = o.user_id
JOIN packages p ON p.id = o.package_id
WHERE p.name = $1 AND p.registry = ''
ORDER BY u.username`
	rows, err := r.db.Pool.Query(ctx, q, packageName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	defer rows.Close()

	var out []model.ListedOwner
	for rows.Next() {
		var id uuid.UUID
		var username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
		}
		out = append(out, model.ListedOwner{ID: ownerExternalID(id), Login: username, Name: username})
	}
	return out, rows.Err()
}

// ownerExternalID derives a stable int64 id from a UUID for cargo's owners
// JSON, which expects a numeric id rather than a UUID.
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
func (r *AuthRepo) AddOwners(ctx context.Context, userID uuid.UUID, packageName string, usernames []string) error {
	if err := r.AuthorizeYank(ctx, userID, packageName); err != nil {
		return err
	}
	pkgID, err := r.packageIDByName(ctx, packageName)
	if err != nil {
		return err
	}
	for _, uname := range usernames {
		target, err := r.userByUsername(ctx, uname)
		if err != nil {
			return err
		}
		const ins = `INSERT INTO ownership (user_id, package_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`
		if _, err := r.db.Pool.Exec(ctx, ins, target.ID, pkgID); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
		}
	}
	return nil
}

// RemoveOwners implements auth.Provider.
func (r *AuthRepo) RemoveOwners(ctx context.Context, userID uuid.UUID, packageName string, usernames []string) error {
	if err := r.AuthorizeYank(ctx, userID, packageName); err != nil {
		return err
	}
	pkgID, err := r.packageIDByName(ctx, packageName)
	if err != nil {
		return err
	}

	owners, err := r.ListOwners(ctx, packageName)
	if err != nil {
		return err
	}
	remaining := len(owners)
	for _, uname := range usernames {
		for _, o := range owners {
			if o.Login == uname {
				remaining--
			}
		}
	}
	if remaining <= 0 {
		return errs.ErrForbidden
	}

	for _, uname := range usernames {
		target, err := r.userByUsername(ctx, uname)
		if err != nil {
			return err
		}
		const del = `DELETE FROM ownership WHERE user_id=$1 AND package_id=$2`
		if _, err := r.db.Pool.Exec(ctx, del, target.ID, pkgID); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
		}
	}
	return nil
}

// RegisterOwner implements auth.Provider.
func (r *AuthRepo) RegisterOwner(ctx context.Context, userID uuid.UUID, packageName string) error {
	pkgID, err := r.packageIDByName(ctx, packageName)
	if err != nil {
		return err
	}
	const ins = `INSERT INTO ownership (user_id, package_id) VALUES ($1,$2) ON CONFLICT DO NOTHING`
	if _, err := r.db.Pool.Exec(ctx, ins, userID, pkgID); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	return nil
}

func (r *AuthRepo) packageIDByName(ctx context.Context, name string) (uuid.UUID, error) {
	const q = `SELECT id FROM packages WHERE name = $1 AND registry = ''`
	var id uuid.UUID
	err := r.db.Pool.QueryRow(ctx, q, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, errs.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	return id, nil
}

// Healthcheck implements auth.Provider.
func (r *AuthRepo) Healthcheck(ctx context.Context) error {
	var one int
	return r.db.Pool.QueryRow(ctx, `SELECT 1`).Scan(&one)
}

var _ auth.Provider = (*AuthRepo)(nil)
