package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/aegix-network/aegix/internal/payment"
)

func (s *Service) handlePaymentsExecute(w http.ResponseWriter, r *http.Request) {
	var in payment.ExecuteInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, err)
		return
	}
	sess, err := s.core.Payments.Execute(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

func (s *Service) handlePaymentsStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	sess, err := s.core.Payments.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}
