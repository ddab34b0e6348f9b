package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Miraitowa-la/novacloud-core/internal/strategy"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

// handleStrategyLogs returns the most recent trigger log entries for a
// strategy, newest first.
func (s *Server) handleStrategyLogs(w http.ResponseWriter, r *http.Request) {
	strategyID := chi.URLParam(r, "strategyID")

	strat, err := s.strategies.GetStrategy(r.Context(), strategyID)
	if err != nil {
		if errors.Is(err, strategy.ErrStrategyNotFound) {
			writeNotFound(w, "strategy not found")
			return
		}
		s.logger.Error("failed to load strategy", "strategy_id", strategyID, "error", err)
		writeInternalError(w, "failed to load strategy")
		return
	}

	limit := defaultLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeBadRequest(w, "invalid limit parameter")
			return
		}
		if n > maxLogLimit {
			n = maxLogLimit
		}
		limit = n
	}

	logs, err := s.strategies.ListLogsByStrategy(r.Context(), strat.ID, limit)
	if err != nil {
		s.logger.Error("failed to query strategy logs", "strategy_id", strategyID, "error", err)
		writeInternalError(w, "failed to query strategy logs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"strategy": strat,
		"logs":     logs,
		"count":    len(logs),
	})
}
