package apiapp

import (
	"net/http"

	"github.com/liftcare/liftsuite/internal/model"
	"github.com/liftcare/liftsuite/internal/realtime"
)

// realtime upgrades to the change-notice websocket. ServeWS blocks until the socket closes.
func (s *server) realtime(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	scope := realtime.Scope{
		UserID: user.ID,
		Staff:  user.Role != model.RoleClient,
	}
	if user.Role == model.RoleClient {
		scope.ClientID = user.ClientID
		if scope.ClientID == "" {
			scope.ClientID = "-"
		}
	}
	s.metrics.RealtimeClients.Inc()
	defer s.metrics.RealtimeClients.Dec()
	s.hub.ServeWS(w, r, scope)
}

type checklistView struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Items model.Checklist `json:"items"`
}

func (s *server) listChecklists(w http.ResponseWriter, r *http.Request) {
	views := make([]checklistView, 0, len(s.checklists.Templates))
	for _, tpl := range s.checklists.Templates {
		views = append(views, checklistView{Type: tpl.Type, Name: tpl.Name, Items: s.checklists.Checklist(tpl.Type)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default":   s.checklists.Default,
		"types":     s.checklists.Types(),
		"templates": views,
	})
}
