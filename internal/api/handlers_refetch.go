package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	apperrors "github.com/wallet-aggregator/internal/errors"
	"github.com/wallet-aggregator/internal/logging"
	"github.com/wallet-aggregator/internal/service"
	"github.com/wallet-aggregator/internal/types"
)

func (s *Server) handleRefetchAll(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Aggregation.RunAll(r.Context())
	s.respondRefetch(w, r, summary, err)
}

func (s *Server) handleRefetchSource(w http.ResponseWriter, r *http.Request) {
	source := types.ChainFamily(strings.ToLower(mux.Vars(r)["source"]))
	summary, err := s.svc.Aggregation.RunSource(r.Context(), source)
	s.respondRefetch(w, r, summary, err)
}

// respondRefetch returns the run summary. Degraded sources still answer 200;
// persistence failures answer 500 with the summary as details.
func (s *Server) respondRefetch(w http.ResponseWriter, r *http.Request, summary *service.RunSummary, err error) {
	if err == nil {
		respondJSON(w, http.StatusOK, summary)
		return
	}
	if apperrors.IsUserError(err) {
		respondServiceError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).WithError(err).Error("Refetch failed")
	var details interface{}
	if summary != nil {
		details = summary
	}
	respondError(w, http.StatusInternalServerError, ErrCodeRefetchFailed, err.Error(), details)
}
