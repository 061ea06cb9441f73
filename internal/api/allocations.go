package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Allot/internal/config"
	"github.com/MikeSquared-Agency/Allot/internal/loader"
	"github.com/MikeSquared-Agency/Allot/internal/metrics"
	"github.com/MikeSquared-Agency/Allot/internal/pipeline"
	"github.com/MikeSquared-Agency/Allot/internal/store"
)

type AllocationsHandler struct {
	pipeline *pipeline.Pipeline
	store    store.Store
	defaults config.SelectionConfig
	limits   config.ServerConfig
}

// NewAllocationsHandler serves allocation requests. s may be nil, in which
// case run history endpoints answer 404.
func NewAllocationsHandler(p *pipeline.Pipeline, s store.Store, defaults config.SelectionConfig, limits config.ServerConfig) *AllocationsHandler {
	return &AllocationsHandler{pipeline: p, store: s, defaults: defaults, limits: limits}
}

type CreateAllocationRequest struct {
	Source string     `json:"source,omitempty"`
	Agents []string   `json:"agents"`
	Items  []string   `json:"items"`
	Scores [][]string `json:"scores"`
	Mode   string     `json:"mode,omitempty"`
	K      *int       `json:"k,omitempty"`
	Seed   int64      `json:"seed,omitempty"`
}

func (h *AllocationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.limits.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxBodyBytes)
	}
	var req CreateAllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if h.limits.MaxAgents > 0 && (len(req.Agents) > h.limits.MaxAgents || len(req.Items) > h.limits.MaxAgents) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error": fmt.Sprintf("at most %d agents and items per request", h.limits.MaxAgents),
		})
		return
	}

	in, err := loader.NewInput(req.Agents, req.Items, req.Scores)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	in.Source = req.Source

	opts := pipeline.Options{Mode: req.Mode, K: h.defaults.K, Seed: req.Seed}
	if opts.Mode == "" {
		opts.Mode = h.defaults.Mode
	}
	if opts.Mode != config.ModeTopK && opts.Mode != config.ModeSample {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be top_k or sample"})
		return
	}
	if req.K != nil {
		if *req.K < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "k must not be negative"})
			return
		}
		opts.K = *req.K
	}
	if opts.Seed == 0 {
		opts.Seed = h.defaults.Seed
	}

	res, err := h.pipeline.Run(r.Context(), in, opts)
	if err != nil {
		status := http.StatusInternalServerError
		outcome := pipeline.Classify(err)
		if outcome == metrics.OutcomeInputFormat {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, map[string]string{"error": err.Error(), "outcome": outcome})
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *AllocationsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run history disabled"})
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{Source: q.Get("source")}
	if s := q.Get("status"); s != "" {
		status := store.RunStatus(s)
		filter.Status = &status
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
			return
		}
		*dst = n
	}

	runs, err := h.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *AllocationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run history disabled"})
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid run id"})
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if run == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
