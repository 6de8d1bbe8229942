package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tutu-network/rewards/internal/domain"
)

// ─── Rewards API (/api/users/{userID}/*) ────────────────────────────────────
// Commands answer with the command's Effects; queries answer with the
// committed state.

const (
	defaultLedgerLimit   = 50
	defaultActivityLimit = 50
	defaultBoardLimit    = 10
	maxLimit             = 1000
)

type pointsRequest struct {
	Amount      int64             `json:"amount"`
	Source      domain.TxSource   `json:"source"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type expireRequest struct {
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

type habitRequest struct {
	Habit string `json:"habit"`
}

type checkInRequest struct {
	At *time.Time `json:"at,omitempty"`
}

type progressRequest struct {
	Value int `json:"value"`
}

// --- Commands ---

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Source == "" {
		req.Source = domain.SourceSystem
	}
	eff, err := s.engine.AwardPoints(r.Context(), userID(r), req.Amount, req.Source, req.Description, req.Metadata)
	respond(w, eff, err)
}

func (s *Server) handleSpend(w http.ResponseWriter, r *http.Request) {
	var req pointsRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Source == "" {
		req.Source = domain.SourceReward
	}
	eff, err := s.engine.SpendPoints(r.Context(), userID(r), req.Amount, req.Source, req.Description, req.Metadata)
	respond(w, eff, err)
}

func (s *Server) handleExpire(w http.ResponseWriter, r *http.Request) {
	var req expireRequest
	if !decode(w, r, &req) {
		return
	}
	eff, err := s.engine.ExpirePoints(r.Context(), userID(r), req.Amount, req.Description)
	respond(w, eff, err)
}

func (s *Server) handleHabit(w http.ResponseWriter, r *http.Request) {
	var req habitRequest
	if !decode(w, r, &req) {
		return
	}
	eff, err := s.engine.CompleteHabit(r.Context(), userID(r), req.Habit)
	respond(w, eff, err)
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	var req checkInRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	var at time.Time
	if req.At != nil {
		at = *req.At
	}
	eff, err := s.engine.DailyCheckIn(r.Context(), userID(r), at)
	respond(w, eff, err)
}

func (s *Server) handleChallengeStart(w http.ResponseWriter, r *http.Request) {
	eff, err := s.engine.StartChallenge(r.Context(), userID(r), chi.URLParam(r, "challengeID"))
	respond(w, eff, err)
}

func (s *Server) handleChallengeProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !decode(w, r, &req) {
		return
	}
	eff, err := s.engine.UpdateChallengeProgress(r.Context(), userID(r), chi.URLParam(r, "challengeID"), req.Value)
	respond(w, eff, err)
}

func (s *Server) handleChallengeComplete(w http.ResponseWriter, r *http.Request) {
	eff, err := s.engine.CompleteChallenge(r.Context(), userID(r), chi.URLParam(r, "challengeID"))
	respond(w, eff, err)
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	eff, err := s.engine.UnlockAchievement(r.Context(), userID(r), chi.URLParam(r, "achievementID"))
	respond(w, eff, err)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	eff, err := s.engine.ClaimReward(r.Context(), userID(r), chi.URLParam(r, "rewardID"))
	respond(w, eff, err)
}

// --- Queries ---

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.GetProgress(r.Context(), userID(r))
	respond(w, p, err)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.engine.GetSummary(r.Context(), userID(r))
	respond(w, sum, err)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultLedgerLimit)
	if !ok {
		return
	}
	txs, err := s.engine.GetLedger(r.Context(), userID(r), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": nonNil(txs),
	})
}

func (s *Server) handleAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Achievements(r.Context(), userID(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"achievements": list,
	})
}

func (s *Server) handleChallenges(w http.ResponseWriter, r *http.Request) {
	list, err := s.engine.Challenges(r.Context(), userID(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"challenges": nonNil(list),
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultActivityLimit)
	if !ok {
		return
	}
	entries, err := s.engine.ActivityLog(r.Context(), userID(r), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activity": nonNil(entries),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultBoardLimit)
	if !ok {
		return
	}
	board, err := s.engine.Leaderboard(r.Context(), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"leaderboard": nonNil(board),
	})
}

func (s *Server) handleChallengeLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r, defaultBoardLimit)
	if !ok {
		return
	}
	board, n, err := s.engine.ChallengeLeaderboard(r.Context(), chi.URLParam(r, "challengeID"), limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"participants": n,
		"leaderboard":  nonNil(board),
	})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Catalog())
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func userID(r *http.Request) string {
	return chi.URLParam(r, "userID")
}

// decode reads a JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("decode request: %v", err))
		return false
	}
	return true
}

// queryLimit parses ?limit=, answering 400 on a malformed value.
func queryLimit(w http.ResponseWriter, r *http.Request, def int) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid limit %q", raw))
		return 0, false
	}
	return min(n, maxLimit), true
}

func respond(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
