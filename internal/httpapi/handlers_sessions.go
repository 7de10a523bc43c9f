package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/aegix-network/aegix/internal/session"
)

func (s *Service) handleSessionsGrant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AgentID         string         `json:"agent_id"`
		Owner           string         `json:"owner"`
		PoolID          string         `json:"pool_id"`
		ChallengeMsg    string         `json:"challenge_msg"`
		Signature       string         `json:"signature"`
		Limits          session.Limits `json:"limits"`
		DurationSeconds int64          `json:"duration_seconds"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	grant, err := s.core.Sessions.Grant(r.Context(), req.AgentID, req.Owner, req.PoolID, req.ChallengeMsg, req.Signature,
		req.Limits, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (s *Service) handleSessionsStatus(w http.ResponseWriter, r *http.Request) {
	pubKey := mux.Vars(r)["pubkey"]
	sess, err := s.core.Sessions.Get(r.Context(), pubKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Service) handleSessionsRevoke(w http.ResponseWriter, r *http.Request) {
	pubKey := mux.Vars(r)["pubkey"]
	var req challengeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Sessions.Revoke(r.Context(), pubKey, req.Owner, req.Signature, req.ChallengeMsg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
