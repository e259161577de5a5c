package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/freighter-go/registry/internal/crypto"
	"github.com/freighter-go/registry/internal/errs"
)

// alwaysAllow is a no-op limiter so AuthRepo tests exercise only the SQL path.
type alwaysAllow struct{}

func (alwaysAllow) Allow(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	return true, 0, nil
}
func (alwaysAllow) Success(ctx context.Context, username string, ipHash []byte) error { return nil }
func (alwaysAllow) Failure(ctx context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	return false, 0, nil
}

func TestAuthRepo_RegisterUser_OK_and_Conflict(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthRepo(db, []byte("pepper"), alwaysAllow{})
	ctx := context.Background()

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "alice", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO tokens`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "registration", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	u, token, err := r.RegisterUser(ctx, "alice", "s3cret")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.NotEmpty(t, token)
	require.Truef(t, len(token) > len(crypto.TokenPrefix), "token %q should carry the prefix plus randomness", token)

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs(pgxmock.AnyArg(), "alice", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	_, _, err = r.RegisterUser(ctx, "alice", "s3cret")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestAuthRepo_Login_OK_and_BadPassword(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthRepo(db, []byte("pepper"), alwaysAllow{})
	ctx := context.Background()

	id := uuid.Must(uuid.NewV4())
	salt, err := crypto.RandBytes(16)
	require.NoError(t, err)
	hash := crypto.HashPassword([]byte("s3cret"), salt)

	mock.ExpectQuery(`SELECT id, username, pwd_hash, salt_auth, created_at FROM users WHERE username=\$1`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "pwd_hash", "salt_auth", "created_at"}).
			AddRow(id, "alice", hash, salt, pgxmock.AnyArg()))
	mock.ExpectExec(`INSERT INTO tokens`).
		WithArgs(pgxmock.AnyArg(), id, "login", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	token, u, err := r.Login(ctx, "alice", "s3cret", "203.0.113.9")
	require.NoError(t, err)
	require.Equal(t, id, u.ID)
	require.NotEmpty(t, token)

	mock.ExpectQuery(`SELECT id, username, pwd_hash, salt_auth, created_at FROM users WHERE username=\$1`).
		WithArgs("alice").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "pwd_hash", "salt_auth", "created_at"}).
			AddRow(id, "alice", hash, salt, pgxmock.AnyArg()))
	_, _, err = r.Login(ctx, "alice", "wrong", "203.0.113.9")
	require.ErrorIs(t, err, errs.ErrUnauthorized)
}

func TestAuthRepo_VerifyToken(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthRepo(db, []byte("pepper"), alwaysAllow{})
	ctx := context.Background()

	id := uuid.Must(uuid.NewV4())
	token, err := crypto.NewBearerToken()
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT u.id, u.username FROM tokens`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username"}).AddRow(id, "alice"))
	mock.ExpectExec(`UPDATE tokens SET last_used_at`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	gotID, gotName, err := r.VerifyToken(ctx, token)
	require.NoError(t, err)
	require.Equal(t, id, gotID)
	require.Equal(t, "alice", gotName)

	mock.ExpectQuery(`SELECT u.id, u.username FROM tokens`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	_, _, err = r.VerifyToken(ctx, "reg1_bogus")
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestAuthRepo_AuthorizePublish_NoOwnersYetIsAllowed(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthRepo(db, []byte("pepper"), alwaysAllow{})
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM ownership o\s*JOIN packages p ON p.id = o.package_id\s*WHERE o.user_id = \$1 AND p.name = \$2 AND p.registry = ''\s*\)`).
		WithArgs(userID, "newcrate").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM ownership o\s*JOIN packages p ON p.id = o.package_id\s*WHERE p.name = \$1 AND p.registry = ''\s*\)`).
		WithArgs("newcrate").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))

	require.NoError(t, r.AuthorizePublish(ctx, userID, "newcrate"))
}

func TestAuthRepo_AuthorizePublish_OwnedByOther(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthRepo(db, []byte("pepper"), alwaysAllow{})
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM ownership o\s*JOIN packages p ON p.id = o.package_id\s*WHERE o.user_id = \$1 AND p.name = \$2 AND p.registry = ''\s*\)`).
		WithArgs(userID, "taken").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM ownership o\s*JOIN packages p ON p.id = o.package_id\s*WHERE p.name = \$1 AND p.registry = ''\s*\)`).
		WithArgs("taken").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	err := r.AuthorizePublish(ctx, userID, "taken")
	require.ErrorIs(t, err, errs.ErrForbidden)
}

func TestAuthRepo_RemoveOwners_RefusesLastOwner(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAuthRepo(db, []byte("pepper"), alwaysAllow{})
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV4())
	pkgID := uuid.Must(uuid.NewV4())

	mock.ExpectQuery(`SELECT EXISTS\(\s*SELECT 1 FROM ownership o\s*JOIN packages p ON p.id = o.package_id\s*WHERE o.user_id = \$1 AND p.name = \$2 AND p.registry = ''\s*\)`).
		WithArgs(userID, "solo").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT id FROM packages WHERE name = \$1 AND registry = ''`).
		WithArgs("solo").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(pkgID))
	mock.ExpectQuery(`SELECT u.id, u.username FROM ownership o`).
		WithArgs("solo").
		WillReturnRows(pgxmock.NewRows([]string{"id", "username"}).AddRow(userID, "alice"))

	err := r.RemoveOwners(ctx, userID, "solo", []string{"alice"})
	require.ErrorIs(t, err, errs.ErrForbidden)
}
