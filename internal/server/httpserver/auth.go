package httpserver

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/freighter-go/registry/internal/auth"
	"github.com/freighter-go/registry/internal/errs"
)

// tokenFromRequest reads the raw bearer token cargo clients send: the
// unmodified value of the Authorization header, no "Bearer " prefix,
// grounded on original_source's default_token_from_headers.
func tokenFromRequest(r *http.Request) (string, bool) {
	tok := r.Header.Get("Authorization")
	if tok == "" {
		return "", false
	}
	return tok, true
}

// requireAuth resolves the request's bearer token to a verified identity,
// or writes a 401 and returns ok=false.
func requireAuth(ctx context.Context, a auth.Provider, w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	tok, ok := tokenFromRequest(r)
	if !ok {
		writeError(w, errs.ErrUnauthorized)
		return uuid.Nil, false
	}
	id, _, err := a.VerifyToken(ctx, tok)
	if err != nil {
		writeError(w, err)
		return uuid.Nil, false
	}
	return id, true
}
