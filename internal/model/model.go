// Package model defines the domain entities shared by repositories and services.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// DependencyKind distinguishes normal, build, and dev dependency edges.
type DependencyKind string

const (
	DependencyKindNormal DependencyKind = "normal"
	DependencyKindBuild  DependencyKind = "build"
	DependencyKindDev    DependencyKind = "dev"
)

// Package is a published unit of distribution, identified by a unique lowercase name.
type Package struct {
	ID            uuid.UUID
	Name          string // lowercase, immutable once created
	Description   string
	Homepage      string
	Documentation string
	Repository    string
	Keywords      []string
	Categories    []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Dependency is a single dependency edge attached to a Version.
type Dependency struct {
	Name            string // crate name as resolved in the registry
	Alias           string // name the dependent imports it under, if renamed
	Req             string // semver requirement string, e.g. "^1.2"
	Features        []string
	Optional        bool
	DefaultFeatures bool
	Target          string // cfg target triple/expr, empty for unconditional
	Kind            DependencyKind
	Registry        string // source registry URL, empty for this registry
}

// Version is one immutable published release of a Package.
type Version struct {
	ID        uuid.UUID
	PackageID uuid.UUID
	Num       string // semver string, exactly as published
	Checksum  string // hex sha256 of the tarball
	Yanked    bool   // mutable flag, the only field allowed to change post-publish
	Links     string
	Deps      []Dependency
	Features  map[string][]string
	CreatedAt time.Time
}

// PublishRequest is the parsed metadata JSON frame of a publish request.
type PublishRequest struct {
	Name             string
	Vers             string
	Deps             []Dependency
	Features         map[string][]string
	Authors          []string
	Description      string
	Documentation    string
	Homepage         string
	Readme           string
	ReadmeFile       string
	Keywords         []string
	Categories       []string
	License          string
	LicenseFile      string
	Repository       string
	Links            string
	BadgeURL         string
}

// PublishOutcome reports the result of a successful publish, including any
// non-fatal warnings the orchestrator wants surfaced to cargo.
type PublishOutcome struct {
	Warnings PublishWarnings
}

// PublishWarnings carries informational issues that did not block publish.
type PublishWarnings struct {
	Invalid    []string
	Other      []string
}

// User is a registered account. Passwords are never stored in plaintext.
type User struct {
	ID        uuid.UUID
	Username  string // unique, case-sensitive as registered
	PwdHash   []byte // Argon2id(password, SaltAuth)
	SaltAuth  []byte // per-user salt
	CreatedAt time.Time
}

// Token is an issued API token, stored only as a peppered HMAC-SHA256
// hash; no per-token salt is used.
type Token struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Name       string // caller-supplied label, e.g. "cargo login on laptop"
	TokenHash  []byte // HMAC(pepper, rawToken)
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// SearchResult is one row of a search response.
type SearchResult struct {
	Name        string
	MaxVersion  string
	Description string
}

// ListedOwner is a single owner entry as returned by the owners endpoint.
type ListedOwner struct {
	ID    int64
	Login string
	Name  string
}
