package api

import (
	"net/http"

	"github.com/clienthub/clienthub/pkg/assistant"
	"github.com/clienthub/clienthub/pkg/httputil"
)

// SendMessageRequest submits a prompt to the assistant
type SendMessageRequest struct {
	SpaceID *int64 `json:"space_id,omitempty"`
	Prompt  string `json:"prompt"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	var body SendMessageRequest
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}
	if !httputil.RequireNonEmpty(w, body.Prompt, "prompt") {
		return
	}

	msg, err := s.assistant.Send(r.Context(), tenant.ID, body.SpaceID, body.Prompt)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteCreated(w, msg)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	tenant := mustTenant(r)

	limit, err := httputil.ParseQueryInt(r, "limit", 50)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	msgs, err := s.assistant.History(r.Context(), tenant.ID, limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []*assistant.Message{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"messages": msgs})
}
