package api

import (
	"net/http"

	"github.com/clienthub/clienthub/pkg/httputil"
	"github.com/clienthub/clienthub/pkg/plans"
)

// SearchResult is one global search hit
type SearchResult struct {
	Kind    string `json:"kind"`
	ID      int64  `json:"id"`
	SpaceID *int64 `json:"space_id,omitempty"`
	Snippet string `json:"snippet"`
}

// handleGlobalSearch searches across all of the tenant's spaces and
// assistant history at once. The route is gated on the cross-space search
// feature flag; lower tiers search within a single space in the product UI.
func (s *Server) handleGlobalSearch(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	if err := s.governor.CheckFeatureAccess(r.Context(), tenant.ID, plans.FeatureCrossTenantSearch); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	query := httputil.ParseQueryString(r, "q", "")
	if !httputil.RequireNonEmpty(w, query, "q") {
		return
	}
	limit, err := httputil.ParseQueryInt(r, "limit", 25)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	results, err := s.searchTenant(r.Context(), tenant.ID, query, limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if results == nil {
		results = []SearchResult{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"results": results})
}
