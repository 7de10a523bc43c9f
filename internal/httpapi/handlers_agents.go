package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aegix-network/aegix/internal/agent"
)

func (s *Service) handleAgentsRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner    string               `json:"owner"`
		Name     string               `json:"name"`
		PoolLink string               `json:"pool_link"`
		Limits   agent.SpendingLimits `json:"limits"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, rawKey, err := s.core.Agents.Register(r.Context(), req.Owner, req.Name, req.PoolLink, req.Limits)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"agent": a, "api_key": rawKey})
}

func (s *Service) handleAgentsList(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	agents, err := s.core.Agents.List(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Service) handleAgentsPatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Owner  string            `json:"owner"`
		Fields agent.PatchFields `json:"fields"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	a, err := s.core.Agents.Patch(r.Context(), id, req.Owner, req.Fields)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Service) handleAgentsRevealIssue(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Owner string `json:"owner"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	token, err := s.core.Agents.IssueRevealToken(r.Context(), id, req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reveal_token": token})
}

func (s *Service) handleAgentsRevealRedeem(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	token := r.URL.Query().Get("token")
	rawKey, err := s.core.Agents.RevealKey(r.Context(), id, token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"api_key": rawKey})
}

func (s *Service) handleAgentsDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Owner string `json:"owner"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Agents.Delete(r.Context(), id, req.Owner); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
