package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"
)

type challengeRequest struct {
	Owner            string `json:"owner"`
	Signature        string `json:"signature"`
	ChallengeMsg     string `json:"challenge_msg"`
	DecryptSignature string `json:"decrypt_signature,omitempty"`
}

func (s *Service) handlePoolsLegacy(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pool, err := s.core.Pools.GetOrCreateLegacy(r.Context(), req.Owner, req.Signature, req.ChallengeMsg, req.DecryptSignature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Service) handlePoolsMain(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pool, prepared, err := s.core.Pools.GetOrCreateMain(r.Context(), req.Owner, req.Signature, req.ChallengeMsg, req.DecryptSignature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pool": pool, "prepared_tx": prepared})
}

func (s *Service) handlePoolsCustomCreate(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pool, prepared, err := s.core.Pools.CreateCustom(r.Context(), req.Owner, req.Signature, req.ChallengeMsg, req.DecryptSignature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"pool": pool, "prepared_tx": prepared})
}

func (s *Service) handlePoolsCustomConfirm(w http.ResponseWriter, r *http.Request) {
	poolID := mux.Vars(r)["id"]
	var req struct {
		TxSignature string `json:"tx_signature"`
		Owner       string `json:"owner"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pool, err := s.core.Pools.ConfirmCustom(r.Context(), poolID, req.TxSignature, req.Owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

func (s *Service) handlePoolsList(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	pools, err := s.core.Pools.List(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pools)
}

func (s *Service) handlePoolsDelete(w http.ResponseWriter, r *http.Request) {
	poolID := mux.Vars(r)["id"]
	var req challengeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Pools.DeleteCustom(r.Context(), poolID, req.Owner, req.Signature, req.ChallengeMsg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePoolsFund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceID     string `json:"source_id"`
		TargetID     string `json:"target_id"`
		Amount       uint64 `json:"amount"`
		Owner        string `json:"owner"`
		Signature    string `json:"signature"`
		ChallengeMsg string `json:"challenge_msg"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.core.Pools.FundFromPool(r.Context(), req.SourceID, req.TargetID, req.Amount, req.Owner, req.Signature, req.ChallengeMsg); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handlePoolsExportKey(w http.ResponseWriter, r *http.Request) {
	poolID := mux.Vars(r)["id"]
	var req struct {
		Owner            string `json:"owner"`
		ExportSignature  string `json:"export_signature"`
		ChallengeMsg     string `json:"challenge_msg"`
		DecryptSignature string `json:"decrypt_signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	secret, err := s.core.Pools.ExportKey(r.Context(), poolID, req.Owner, req.ExportSignature, req.ChallengeMsg, req.DecryptSignature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"secret": secret})
}

func (s *Service) handlePoolsStats(w http.ResponseWriter, r *http.Request) {
	poolID := mux.Vars(r)["id"]
	pool, err := s.core.Pools.Get(r.Context(), poolID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}
