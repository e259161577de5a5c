// Package headerauth implements the Auth backend contract by trusting a
// signed external identity assertion (an RS256 JWT issued by an upstream
// access proxy) instead of maintaining its own user/token store. Grounded
// on original_source's freighter-auth cf_access.rs/cf_backend.rs: fetch a
// JWKS, cache it with a refresh window, and verify the bearer token against
// it on every call.
package headerauth

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/errs"
	"github.com/freighter-go/registry/internal/model"
)

// refreshInterval mirrors cf_access.rs's REFRESH_DURATION: the upstream
// rotates signing keys at most this often.
const refreshInterval = time.Hour

// retryInterval is how soon a failed refresh may be retried.
const retryInterval = time.Second

// serviceTokenSuffix marks a subject claim as belonging to a CI/automation
// service token rather than a human identity, letting AuthorizePublish
// restrict publishing to automation the way cf_backend.rs does.
const serviceTokenSuffix = ".access"

var usernameNamespace = uuid.Must(uuid.FromString("6ba7b810-9dad-11d1-80b4-00c04fd430c8"))

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// Provider verifies bearer tokens as RS256 JWTs against a JWKS fetched from
// an upstream access proxy (e.g. Cloudflare Access), and treats any valid
// token as an authorized identity.
type Provider struct {
	jwksURL  string
	audience string
	client   *http.Client

	mu        sync.Mutex
	nextFetch time.Time
	keys      map[string]*rsa.PublicKey

	// subjects caches userID -> verified subject, populated by VerifyToken,
	// so AuthorizePublish can tell a service token from a human identity
	// without being handed the raw token again.
	subjectsMu sync.Mutex
	subjects   map[uuid.UUID]string
}

// New constructs a header-trust Auth backend. teamBaseURL must be an
// "https://" origin; audience must be non-empty.
func New(teamBaseURL, audience string) (*Provider, error) {
	if len(teamBaseURL) < len("https://x") || !strings.HasPrefix(teamBaseURL, "https://") || audience == "" {
		return nil, fmt.Errorf("headerauth: invalid team base URL or audience")
	}
	jwksURL := strings.TrimRight(teamBaseURL, "/") + "/cdn-cgi/access/certs"
	return &Provider{
		jwksURL:  jwksURL,
		audience: audience,
		client:   &http.Client{Timeout: 10 * time.Second},
		keys:     map[string]*rsa.PublicKey{},
		subjects: map[uuid.UUID]string{},
	}, nil
}

// refresh re-fetches the JWKS if the cache is stale. Caller must hold p.mu.
func (p *Provider) refresh(ctx context.Context) error {
	now := time.Now()
	if p.nextFetch.After(now) {
		if len(p.keys) == 0 {
			return fmt.Errorf("%w: no usable keys", errs.ErrAuthIO)
		}
		return nil
	}
	p.nextFetch = now.Add(retryInterval) // retry quickly on failure

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.jwksURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: jwks fetch status %d", errs.ErrAuthIO, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}
	var set jwkSet
	if err := json.Unmarshal(body, &set); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrAuthIO, err)
	}

	keys := map[string]*rsa.PublicKey{}
	for _, k := range set.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") || k.Kid == "" {
			continue
		}
		pub, err := rsaPublicKeyFromJWK(k.N, k.E)
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return fmt.Errorf("%w: no usable keys", errs.ErrAuthIO)
	}
	p.keys = keys
	p.nextFetch = now.Add(refreshInterval)
	return nil
}

func rsaPublicKeyFromJWK(nb64, eb64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nb64)
	if err != nil {
		return nil, err
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eb64)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

type claims struct {
	CommonName string `json:"common_name"`
	jwt.RegisteredClaims
}

// validatedSubject verifies token and returns its claimed subject, the same
// sub-or-common_name fallback as cf_access.rs's validated_user_id.
func (p *Provider) validatedSubject(ctx context.Context, token string) (string, error) {
	var cl claims
	parsed, err := jwt.ParseWithClaims(token, &cl, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != "RS256" {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errs.ErrForbidden
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		key, ok := p.keys[kid]
		if !ok {
			if err := p.refresh(ctx); err != nil {
				return nil, err
			}
			key, ok = p.keys[kid]
			if !ok {
				return nil, errs.ErrForbidden
			}
		}
		return key, nil
	}, jwt.WithAudience(p.audience), jwt.WithValidMethods([]string{"RS256"}))
	if err != nil || !parsed.Valid {
		return "", errs.ErrForbidden
	}

	sub := cl.Subject
	if sub == "" {
		sub = cl.CommonName
	}
	if sub == "" {
		return "", errs.ErrForbidden
	}
	return sub, nil
}

func isServiceToken(subject string) bool {
	return strings.HasSuffix(subject, serviceTokenSuffix)
}

func subjectID(subject string) uuid.UUID {
	return uuid.NewV5(usernameNamespace, subject)
}

// RegisterUser implements auth.Provider. Identity is asserted by the
// upstream proxy, not registered here — matches cf_backend.rs's register
// returning Unimplemented.
func (p *Provider) RegisterUser(context.Context, string, string) (model.User, string, error) {
	return model.User{}, "", errs.ErrForbidden
}

// Login implements auth.Provider. Same reasoning as RegisterUser.
func (p *Provider) Login(context.Context, string, string, string) (string, model.User, error) {
	return "", model.User{}, errs.ErrForbidden
}

// VerifyToken implements auth.Provider: any token that verifies against the
// JWKS is a valid identity.
func (p *Provider) VerifyToken(ctx context.Context, token string) (uuid.UUID, string, error) {
	sub, err := p.validatedSubject(ctx, token)
	if err != nil {
		return uuid.Nil, "", err
	}
	id := subjectID(sub)
	p.subjectsMu.Lock()
	p.subjects[id] = sub
	p.subjectsMu.Unlock()
	return id, sub, nil
}

// AuthorizePublish implements auth.Provider. Only automation (a service
// token, recognized by its ".access" subject suffix) may publish — human
// identities are forbidden, matching cf_backend.rs's publish check.
func (p *Provider) AuthorizePublish(_ context.Context, userID uuid.UUID, _ string) error {
	p.subjectsMu.Lock()
	sub, ok := p.subjects[userID]
	p.subjectsMu.Unlock()
	if !ok || !isServiceToken(sub) {
		return errs.ErrForbidden
	}
	return nil
}

// AuthorizeYank implements auth.Provider: any verified identity may yank.
// The caller's token was already verified by the request glue before this
// call, so no further check is needed here.
func (p *Provider) AuthorizeYank(context.Context, uuid.UUID, string) error { return nil }

// ListOwners implements auth.Provider. Ownership is not tracked by this
// backend: every verified identity is implicitly an owner, so the list is
// reported as a single synthetic entry for the trusted upstream.
func (p *Provider) ListOwners(_ context.Context, _ string) ([]model.ListedOwner, error) {
	return []model.ListedOwner{{Login: p.jwksURL}}, nil
}

// AddOwners implements auth.Provider: a no-op, since every verified
// identity is already implicitly an owner.
func (p *Provider) AddOwners(context.Context, uuid.UUID, string, []string) error { return nil }

// RemoveOwners implements auth.Provider: unsupported, matching
// cf_backend.rs's remove_owners returning Unimplemented.
func (p *Provider) RemoveOwners(context.Context, uuid.UUID, string, []string) error {
	return errs.ErrForbidden
}

// RegisterOwner implements auth.Provider: a no-op, for the same reason as AddOwners.
func (p *Provider) RegisterOwner(context.Context, uuid.UUID, string) error { return nil }

// Healthcheck implements auth.Provider: confirms the JWKS is fetchable.
func (p *Provider) Healthcheck(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refresh(ctx)
}

var _ auth.Provider = (*Provider)(nil)
