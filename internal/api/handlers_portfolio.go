package api

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/service"
	"github.com/wallet-aggregator/internal/types"
)

const defaultExchangeLimit = 100

// portfolioQuery reads the chain, wallet_id and query filters
func portfolioQuery(r *http.Request) service.PortfolioQuery {
	q := r.URL.Query()
	return service.PortfolioQuery{
		ChainID:  q.Get("chain"),
		WalletID: q.Get("wallet_id"),
		Query:    q.Get("query"),
	}
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	view, err := s.svc.Portfolio.Tokens(r.Context(), portfolioQuery(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	tokens := view.Tokens
	if tokens == nil {
		tokens = []types.UnifiedToken{}
	}
	respondJSON(w, http.StatusOK, tokens)
}

func (s *Server) handleProtocols(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.Portfolio.Protocols(r.Context(), portfolioQuery(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if groups == nil {
		groups = []types.ProtocolGroup{}
	}
	respondJSON(w, http.StatusOK, groups)
}

// thresholdBody is the hidesmallbalances setting on the wire
type thresholdBody struct {
	Value *decimal.Decimal `json:"value"`
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	v, err := s.svc.Settings.SmallBalanceThreshold(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, thresholdBody{Value: &v})
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var body thresholdBody
	if err := parseJSONBody(r, &body); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}
	if body.Value == nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "value is required", nil)
		return
	}

	if err := s.svc.Settings.SetSmallBalanceThreshold(r.Context(), *body.Value); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) handleExchangeTransactions(w http.ResponseWriter, r *http.Request) {
	limit := defaultExchangeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", map[string]interface{}{"limit": v})
			return
		}
		limit = n
	}

	txs, err := s.svc.Exchange.List(r.Context(), limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if txs == nil {
		txs = []models.ExchangeTransaction{}
	}
	respondJSON(w, http.StatusOK, txs)
}
