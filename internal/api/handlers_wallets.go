package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/service"
)

func (s *Server) handleListWallets(w http.ResponseWriter, r *http.Request) {
	wallets, err := s.svc.Wallets.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if wallets == nil {
		wallets = []*models.Wallet{}
	}
	respondJSON(w, http.StatusOK, wallets)
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var in service.CreateWalletInput
	if err := parseJSONBody(r, &in); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	wallet, err := s.svc.Wallets.Create(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, wallet)
}

func (s *Server) handleUpdateWallet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var upd models.WalletUpdate
	if err := parseJSONBody(r, &upd); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}

	wallet, err := s.svc.Wallets.Update(r.Context(), id, upd)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleDeleteWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Wallets.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
