package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/resonance-logs/meterd/internal/model"
	"github.com/resonance-logs/meterd/internal/snapshot"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleReset implements spec.md §6.3's reset_encounter command.
func (h *routerHandlers) handleReset(w http.ResponseWriter, r *http.Request) {
	h.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePause implements toggle_pause_encounter, returning the new state.
func (h *routerHandlers) handlePause(w http.ResponseWriter, r *http.Request) {
	paused := h.engine.TogglePause()
	writeJSON(w, http.StatusOK, map[string]bool{"is_paused": paused})
}

// handleBossOnlyDPS implements set_boss_only_dps(enabled).
func (h *routerHandlers) handleBossOnlyDPS(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.engine.SetBossOnlyDPS(body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"boss_only_dps": body.Enabled})
}

// roleAndUID parses the {role}/{uid} path params shared by subscribe and
// unsubscribe, role ∈ {"dps","heal","tanked"} per spec.md §6.3.
func roleAndUID(r *http.Request) (model.Role, uint64, bool) {
	uid, err := strconv.ParseUint(chi.URLParam(r, "uid"), 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return model.ParseRole(chi.URLParam(r, "role")), uid, true
}

// handleSubscribe implements subscribe_player_skills(uid, role), also
// returning the initial window so the caller doesn't need a second request.
func (h *routerHandlers) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	role, uid, ok := roleAndUID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid uid")
		return
	}
	h.feed.Subscribe(role, uid)
	win := snapshot.BuildSkillsWindow(h.engine.Snapshot(), uid, role, h.tables)
	writeJSON(w, http.StatusOK, win)
}

// handleUnsubscribe implements unsubscribe_player_skills(uid, role).
func (h *routerHandlers) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	role, uid, ok := roleAndUID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid uid")
		return
	}
	h.feed.Unsubscribe(role, uid)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleRecentEncounters implements get_recent_encounters.
func (h *routerHandlers) handleRecentEncounters(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	rows, err := h.db.RecentEncounters(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleEncounterActors implements get_encounter_actor_stats.
func (h *routerHandlers) handleEncounterActors(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid encounter id")
		return
	}
	rows, err := h.db.EncounterActorStats(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
