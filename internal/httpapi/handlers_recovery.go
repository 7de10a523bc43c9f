package httpapi

import "net/http"

func (s *Service) handleRecoveryInit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address        string `json:"address"`
		Owner          string `json:"owner"`
		InitialBalance uint64 `json:"initial_balance"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	record, err := s.core.Recovery.Init(r.Context(), req.Address, req.Owner, req.InitialBalance)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Service) handleRecoveryTopup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
		Amount  uint64 `json:"amount"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	record, err := s.core.Recovery.Topup(r.Context(), req.Address, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Service) handleRecoveryStatus(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	record, err := s.core.Recovery.Status(r.Context(), address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
