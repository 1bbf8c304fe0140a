package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relationship-metrics/internal/cache"
	apperrors "relationship-metrics/internal/common/errors"
	"relationship-metrics/internal/common/logger"
	"relationship-metrics/internal/models"
)

type resultReader interface {
	Get(ctx context.Context, key string) (*models.Result, error)
}

// readinessCheck reports whether one dependency is reachable.
type readinessCheck func(ctx context.Context) error

type server struct {
	results resultReader
	// params is the running engine's fingerprint. Only results computed
	// under the same settings are served.
	params string
	checks map[string]readinessCheck
	logger logger.Logger
}

type scoresResponse struct {
	RunID             string            `json:"runId"`
	Fingerprint       string            `json:"fingerprint"`
	ParamsFingerprint string            `json:"paramsFingerprint"`
	Cutoff            time.Time         `json:"cutoff"`
	Method            string            `json:"method"`
	Scores            []models.ScoreRow `json:"scores"`
}

func newRouter(s *server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/scores/{fingerprint}", s.scores).Methods(http.MethodGet)
	return r
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failed": failed})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not ready", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// scores serves the cached score table for a snapshot fingerprint under
// the running engine's settings. The scope comes from the locations,
// providers and exclude query parameters.
func (s *server) scores(w http.ResponseWriter, r *http.Request) {
	fingerprint := mux.Vars(r)["fingerprint"]
	q := r.URL.Query()

	method := models.ScoreMethod(q.Get("method"))
	if method == "" {
		method = models.MethodGoal
	}
	if method != models.MethodGoal && method != models.MethodZScore {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "method must be goal or zscore"})
		return
	}

	scope := models.NewAnalysisScope(splitList(q["locations"]), splitList(q["providers"]), splitList(q["exclude"]))
	res, err := s.results.Get(r.Context(), cache.Key(fingerprint, s.params, scope))
	if err != nil {
		if stdErr, ok := apperrors.AsStandardError(err); ok && stdErr.Code == apperrors.ErrCodeCacheMiss {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cached result for fingerprint and scope"})
			return
		}
		s.logger.Error("score lookup failed", map[string]interface{}{"fingerprint": fingerprint, "error": err.Error()})
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "score cache unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, scoresResponse{
		RunID:             res.RunID,
		Fingerprint:       res.Fingerprint,
		ParamsFingerprint: res.ParamsFingerprint,
		Cutoff:            res.Cutoff,
		Method:            string(method),
		Scores:            res.Scores(method),
	})
}

// splitList accepts both repeated parameters and comma-separated values.
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	sort.Strings(out)
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
