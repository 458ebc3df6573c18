package api

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"duel-arena/internal/engine"
	"duel-arena/internal/match"
	"duel-arena/internal/results"
	"duel-arena/internal/results/sqlite"
	"duel-arena/internal/weapons"
)

const maxBodyBytes = 16 << 10

func (h *routerHandlers) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	creator, err := h.tokens.Identify(r)
	if err != nil {
		writeError(w, "auth", http.StatusUnauthorized)
		return
	}

	var req match.CreateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.Creator = creator

	inst, err := h.matches.CreateMatch(req)
	if err != nil {
		var reject *match.RejectError
		switch {
		case errors.As(err, &reject) && reject.Reason == match.RejectServerFull:
			writeError(w, reject.Reason, http.StatusServiceUnavailable)
		case errors.As(err, &reject) && reject.Reason == match.RejectAlreadyInMatch:
			writeError(w, reject.Reason, http.StatusConflict)
		case errors.As(err, &reject) && reject.Reason == match.RejectNotParticipant:
			writeError(w, reject.Reason, http.StatusForbidden)
		case errors.As(err, &reject):
			writeError(w, reject.Reason, http.StatusBadRequest)
		default:
			log.Printf("❌ Create match failed: %v", err)
			writeError(w, "internal_error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Location", "/api/matches/"+inst.ID)
	writeJSONStatus(w, http.StatusCreated, h.matches.Summarize(inst))
}

func (h *routerHandlers) handleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.matches.List())
}

func (h *routerHandlers) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	inst, err := h.matches.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "match_not_found", http.StatusNotFound)
		return
	}
	writeJSON(w, struct {
		match.Summary
		State engine.CombatState `json:"state"`
	}{
		Summary: h.matches.Summarize(inst),
		State:   inst.Snapshot(),
	})
}

func (h *routerHandlers) handleGetWeapons(w http.ResponseWriter, r *http.Request) {
	catalog := h.matches.Catalog()
	dodge := catalog.Dodge()
	writeJSON(w, weapons.File{
		Weapons: catalog.All(),
		Dodge:   &dodge,
	})
}

func (h *routerHandlers) handleCatalogSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	json.NewEncoder(w).Encode(weapons.Schema())
}

// sessionRequest asks for an actor token. Without an actor id a guest id
// is minted.
type sessionRequest struct {
	ActorID string `json:"actorId"`
}

type sessionResponse struct {
	ActorID   string `json:"actorId"`
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (h *routerHandlers) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !h.allowAnonymous {
		writeError(w, "anonymous sessions disabled", http.StatusForbidden)
		return
	}

	var req sessionRequest
	if err := decodeBody(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	actorID := strings.TrimSpace(req.ActorID)
	if actorID == "" {
		actorID = "guest-" + uuid.NewString()[:8]
	}

	token, expires, err := h.tokens.Issue(actorID)
	if err != nil {
		writeError(w, "invalid actorId", http.StatusBadRequest)
		return
	}
	writeJSONStatus(w, http.StatusCreated, sessionResponse{
		ActorID:   actorID,
		Token:     token,
		ExpiresAt: expires.Unix(),
	})
}

func (h *routerHandlers) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if actor := r.URL.Query().Get("actor"); actor != "" {
		writeJSON(w, h.standings.Around(actor, 5, 5))
		return
	}
	writeJSON(w, h.standings.Top(queryLimit(r, 10, 100)))
}

func (h *routerHandlers) handleLeaderboardRank(w http.ResponseWriter, r *http.Request) {
	standing, ok := h.standings.Rank(chi.URLParam(r, "actorID"))
	if !ok {
		writeError(w, "actor not ranked", http.StatusNotFound)
		return
	}
	writeJSON(w, standing)
}

func (h *routerHandlers) handleResults(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 20, 500)
	var (
		list []sqlite.Summary
		err  error
	)
	if actor := r.URL.Query().Get("actor"); actor != "" {
		list, err = h.history.ForActor(r.Context(), actor, limit)
	} else {
		list, err = h.history.Recent(r.Context(), limit)
	}
	if err != nil {
		log.Printf("❌ Results query failed: %v", err)
		writeError(w, "internal_error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func (h *routerHandlers) handleResult(w http.ResponseWriter, r *http.Request) {
	res, err := h.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, sqlite.ErrNotFound) {
		writeError(w, "result not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("❌ Result lookup failed: %v", err)
		writeError(w, "internal_error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, res)
}

func (h *routerHandlers) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"activeMatches": h.matches.ActiveCount(),
		"httpLimiter":   h.limiter.GetStats(),
	}
	if h.hub != nil {
		stats["wsClients"] = h.hub.ClientCount()
	}
	writeJSON(w, stats)
}

func queryLimit(r *http.Request, def, ceiling int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, ceiling)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, http.StatusOK, data)
}

func writeJSONStatus(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

var _ Standings = (*results.Leaderboard)(nil)
var _ History = (*sqlite.Store)(nil)
