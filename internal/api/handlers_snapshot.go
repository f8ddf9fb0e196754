package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wallet-aggregator/internal/models"
	"github.com/wallet-aggregator/internal/service"
)

const dateLayout = "2006-01-02"

// parseDate accepts RFC 3339 timestamps and plain dates. dateOnly reports
// whether v was a plain date, which parses to midnight UTC.
func parseDate(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, false, nil
	}
	t, err := time.Parse(dateLayout, v)
	return t, true, err
}

// writeNetWorthRequest is the POST /net-worth body
type writeNetWorthRequest struct {
	Date          string          `json:"date,omitempty"`
	TotalNetWorth decimal.Decimal `json:"totalNetWorth"`
	History       json.RawMessage `json:"historyData,omitempty"`
}

func (s *Server) handleNetWorthHistory(w http.ResponseWriter, r *http.Request) {
	var from, to time.Time
	for name, dst := range map[string]*time.Time{"from": &from, "to": &to} {
		v := r.URL.Query().Get(name)
		if v == "" {
			continue
		}
		t, dateOnly, err := parseDate(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid date", map[string]interface{}{name: v})
			return
		}
		// a plain "to" date covers that whole day
		if dateOnly && name == "to" {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		*dst = t
	}

	snaps, err := s.svc.Snapshots.History(r.Context(), from, to)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if snaps == nil {
		snaps = []models.Snapshot{}
	}
	respondJSON(w, http.StatusOK, snaps)
}

func (s *Server) handleWriteNetWorth(w http.ResponseWriter, r *http.Request) {
	var req writeNetWorthRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", map[string]interface{}{"error": err.Error()})
		return
	}
	in := service.WriteSnapshotInput{TotalNetWorth: req.TotalNetWorth, History: req.History}
	if req.Date != "" {
		t, _, err := parseDate(req.Date)
		if err != nil {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid date", map[string]interface{}{"date": req.Date})
			return
		}
		in.Date = &t
	}

	res, err := s.svc.Snapshots.Write(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if !res.Changed {
		respondJSON(w, http.StatusOK, res)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}
