package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type unlockResponse struct {
	EnrollmentID string `json:"enrollment_id"`
	ModuleID     string `json:"module_id"`
	Unlocked     bool   `json:"unlocked"`
}

// GET /modules/{moduleID}/unlock?enrollment_id=
func (s *Server) GetModuleUnlock(w http.ResponseWriter, r *http.Request) {
	moduleID := chi.URLParam(r, "moduleID")
	enr, err := enrollmentParam(r)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	if err := s.authorizeModule(r, moduleID, enr); err != nil {
		writeError(w, s.log, err)
		return
	}
	ok, err := s.unlocks.Unlocked(r.Context(), enr, moduleID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, unlockResponse{EnrollmentID: enr, ModuleID: moduleID, Unlocked: ok})
}

type auditEntry struct {
	Seq       int64           `json:"seq"`
	SiteID    string          `json:"site_id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// GET /attempts/{attemptID}/events
// Staff only; lists the journal entries of one attempt in append order.
func (s *Server) ListAttemptEvents(w http.ResponseWriter, r *http.Request) {
	a, err := s.coord.Attempt(r.Context(), chi.URLParam(r, "attemptID"))
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	events, err := s.audit.ByKey(r.Context(), a.ID)
	if err != nil {
		writeError(w, s.log, err)
		return
	}
	out := make([]auditEntry, 0, len(events))
	for _, e := range events {
		data := json.RawMessage(e.DataJSON)
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		out = append(out, auditEntry{
			Seq:       e.Offset,
			SiteID:    e.SiteID,
			Type:      e.Type,
			Data:      data,
			CreatedAt: time.UnixMilli(e.CreatedAt).UTC(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
