// Package convert holds pure translation functions between the wire shapes
// in internal/apitypes and the domain shapes in internal/model, the same
// To/From pairing style the teacher uses for its protobuf<->domain layer.
package convert

import (
	"github.com/freighter-go/registry/internal/apitypes"
	"github.com/freighter-go/registry/internal/model"
)

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// --- Publish request (cargo client -> domain) ---

// FromAPIPublishDependency converts a wire publish-frame dependency entry
// to the domain shape.
func FromAPIPublishDependency(d apitypes.PublishDependency) model.Dependency {
	kind := model.DependencyKindNormal
	switch d.Kind {
	case "dev":
		kind = model.DependencyKindDev
	case "build":
		kind = model.DependencyKindBuild
	}
	out := model.Dependency{
		Name:            d.Name,
		Req:             d.VersionReq,
		Features:        d.Features,
		Optional:        d.Optional,
		DefaultFeatures: d.DefaultFeatures,
		Kind:            kind,
		Registry:        str(d.Registry),
	}
	if d.Target != nil {
		out.Target = *d.Target
	}
	if d.ExplicitNameInToml != nil {
		out.Alias = *d.ExplicitNameInToml
	}
	return out
}

// FromAPIPublish converts a decoded publish metadata frame to the domain
// PublishRequest the orchestrator and Index backends operate on.
func FromAPIPublish(p apitypes.Publish) model.PublishRequest {
	deps := make([]model.Dependency, 0, len(p.Deps))
	for _, d := range p.Deps {
		deps = append(deps, FromAPIPublishDependency(d))
	}
	return model.PublishRequest{
		Name:          p.Name,
		Vers:          p.Vers,
		Deps:          deps,
		Features:      p.Features,
		Authors:       p.Authors,
		Description:   str(p.Description),
		Documentation: str(p.Documentation),
		Homepage:      str(p.Homepage),
		Readme:        str(p.Readme),
		ReadmeFile:    str(p.ReadmeFile),
		Keywords:      p.Keywords,
		Categories:    p.Categories,
		License:       str(p.License),
		LicenseFile:   str(p.LicenseFile),
		Repository:    str(p.Repository),
		Links:         str(p.Links),
		BadgeURL:      str(p.BadgeURL),
	}
}

// --- Sparse-index / dump (domain -> cargo client) ---

// ToAPIDependency converts a domain dependency edge to a sparse-index line entry.
func ToAPIDependency(d model.Dependency) apitypes.Dependency {
	out := apitypes.Dependency{
		Name:            d.Name,
		Req:             d.Req,
		Features:        d.Features,
		Optional:        d.Optional,
		DefaultFeatures: d.DefaultFeatures,
		Kind:            string(d.Kind),
		Registry:        strPtr(d.Registry),
	}
	if d.Target != "" {
		out.Target = strPtr(d.Target)
	}
	if d.Alias != "" {
		out.Package = strPtr(d.Name)
		out.Name = d.Alias
	}
	return out
}

// ToAPICrateVersion converts one published Version into a sparse-index NDJSON line.
func ToAPICrateVersion(name string, v model.Version) apitypes.CrateVersion {
	deps := make([]apitypes.Dependency, 0, len(v.Deps))
	for _, d := range v.Deps {
		deps = append(deps, ToAPIDependency(d))
	}
	return apitypes.CrateVersion{
		Name:     name,
		Vers:     v.Num,
		Deps:     deps,
		Cksum:    v.Checksum,
		Features: v.Features,
		Yanked:   v.Yanked,
		Links:    strPtr(v.Links),
		V:        2,
	}
}

// ToAPISearchResults converts domain search hits to the wire search response.
func ToAPISearchResults(hits []model.SearchResult, total int) apitypes.SearchResults {
	out := apitypes.SearchResults{Crates: make([]apitypes.SearchResultsEntry, 0, len(hits))}
	for _, h := range hits {
		out.Crates = append(out.Crates, apitypes.SearchResultsEntry{
			Name:        h.Name,
			MaxVersion:  h.MaxVersion,
			Description: h.Description,
		})
	}
	out.Meta.Total = total
	return out
}

// ToAPIListedOwner converts a domain owner entry to its wire shape.
func ToAPIListedOwner(o model.ListedOwner) apitypes.ListedOwner {
	return apitypes.ListedOwner{ID: o.ID, Login: o.Login, Name: o.Name}
}

// ToAPIOwnersResponse converts a slice of domain owners to the wire response body.
func ToAPIOwnersResponse(owners []model.ListedOwner) apitypes.OwnersResponse {
	out := apitypes.OwnersResponse{Users: make([]apitypes.ListedOwner, 0, len(owners))}
	for _, o := range owners {
		out.Users = append(out.Users, ToAPIListedOwner(o))
	}
	return out
}
