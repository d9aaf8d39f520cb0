package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/clienthub/clienthub/pkg/httputil"
	"github.com/clienthub/clienthub/pkg/spaces"
)

// CreateSpaceRequest creates a client space
type CreateSpaceRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	var body CreateSpaceRequest
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if !httputil.RequireNonEmpty(w, body.Name, "name") {
		return
	}

	space, err := s.spaces.Create(r.Context(), tenant.ID, body.Name)
	if err != nil {
		if errors.Is(err, spaces.ErrDuplicateName) {
			httputil.WriteErrorCode(w, http.StatusConflict, httputil.CodeValidation, err.Error())
			return
		}
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, space)
}

func (s *Server) handleListSpaces(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	list, err := s.spaces.List(r.Context(), tenant.ID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []*spaces.Space{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"spaces": list})
}

func (s *Server) handleArchiveSpace(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	spaceID, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	if err := s.spaces.Archive(r.Context(), tenant.ID, spaceID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			httputil.WriteError(w, r, &httputil.NotFoundError{Resource: "space"})
			return
		}
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
