package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/madun/platform-nlp-dqm/internal/pipeline"
)

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// listRuns handles GET /api/v1/runs?limit=. Newest runs first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	runs, err := s.reader.ListRuns(ctx, limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// getRun handles GET /api/v1/runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "run_id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid run_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	run, ok, err := s.reader.GetRun(ctx, id)
	if err != nil {
		s.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

// listItems handles GET /api/v1/items?platform=&day=YYYY-MM-DD. It returns the
// enriched items whose raw posts were acquired on the given UTC day.
func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	platform, err := parsePlatform(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	day, err := parseDay(r.URL.Query().Get("day"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	items, err := s.reader.ListEnrichedByDay(ctx, platform, day)
	if err != nil {
		s.logger.Error("list items failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// listAggregates handles GET /api/v1/aggregates?platform=&from=&to=. Dates are
// YYYY-MM-DD; to is inclusive.
func (s *Server) listAggregates(w http.ResponseWriter, r *http.Request) {
	platform, err := parsePlatform(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseDay(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := parseDay(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "to must not precede from")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	aggs, err := s.reader.ListAggregates(ctx, platform, from, to)
	if err != nil {
		s.logger.Error("list aggregates failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list aggregates")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"aggregates": aggs})
}

func parsePlatform(r *http.Request) (pipeline.Platform, error) {
	switch strings.ToLower(r.URL.Query().Get("platform")) {
	case string(pipeline.PlatformTwitter):
		return pipeline.PlatformTwitter, nil
	case string(pipeline.PlatformYouTube):
		return pipeline.PlatformYouTube, nil
	case "":
		return "", errors.New("platform is required")
	default:
		return "", errors.New("unknown platform")
	}
}

func parseDay(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("date is required, format YYYY-MM-DD")
	}
	day, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("invalid date, format YYYY-MM-DD")
	}
	return day, nil
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	limStr := r.URL.Query().Get("limit")
	if limStr == "" {
		return def, nil
	}
	val, err := strconv.Atoi(limStr)
	if err != nil || val <= 0 {
		return 0, errors.New("invalid limit")
	}
	if val > max {
		val = max
	}
	return val, nil
}
