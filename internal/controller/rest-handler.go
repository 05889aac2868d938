package controller

import (
	"encoding/json"
	"net/http"
)

// listSessions reports the ids of the live sessions.
func (c *controller) listSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"sessions": c.sessionService.SessionIds(),
	}); err != nil {
		c.logger.WarnContext(r.Context(), "failed to write json", "error", err)
	}
}
