// Package pipeline runs one allocation end to end: rankings, eating,
// decomposition and selection, then records the outcome.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Allot/internal/birkhoff"
	"github.com/MikeSquared-Agency/Allot/internal/config"
	"github.com/MikeSquared-Agency/Allot/internal/hermes"
	"github.com/MikeSquared-Agency/Allot/internal/loader"
	"github.com/MikeSquared-Agency/Allot/internal/metrics"
	"github.com/MikeSquared-Agency/Allot/internal/ranking"
	"github.com/MikeSquared-Agency/Allot/internal/report"
	"github.com/MikeSquared-Agency/Allot/internal/selector"
	"github.com/MikeSquared-Agency/Allot/internal/serial"
	"github.com/MikeSquared-Agency/Allot/internal/store"
)

// Options picks how assignments are reported.
type Options struct {
	Mode string // config.ModeTopK or config.ModeSample
	K    int
	Seed int64 // 0 draws a fresh seed; the one used is reported back
}

// Result is everything one run produced. Nothing in it is shared with another run.
type Result struct {
	RunID       uuid.UUID       `json:"run_id"`
	Source      string          `json:"source,omitempty"`
	Mode        string          `json:"mode"`
	K           int             `json:"k,omitempty"`
	Seed        int64           `json:"seed,omitempty"`
	Agents      []string        `json:"agents"`
	Items       []string        `json:"items"`
	Preferences [][]int         `json:"preferences"`
	Allocation  [][]string      `json:"allocation"`
	Rounds      []serial.Round  `json:"rounds"`
	Terms       []birkhoff.Term `json:"decomposition"`
	Selected    []report.Ranked `json:"selected"`
	Duration    time.Duration   `json:"-"`
	alloc       *serial.Allocation
}

// Fractional returns the exact allocation.
func (r *Result) Fractional() *serial.Allocation { return r.alloc }

type Pipeline struct {
	adapter *birkhoff.Adapter
	store   store.Store
	hermes  hermes.Client
	metrics *metrics.Recorder
	logger  *slog.Logger
	now     func() time.Time
}

// New wires a pipeline. s, h and m are optional and may be nil.
func New(adapter *birkhoff.Adapter, s store.Store, h hermes.Client, m *metrics.Recorder, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		adapter: adapter,
		store:   s,
		hermes:  h,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// RunFiles loads both input files and runs them. Load failures are recorded
// like any other failed run.
func (p *Pipeline) RunFiles(ctx context.Context, prefsPath, itemsPath string, opts Options) (*Result, error) {
	start := p.now()
	in, err := loader.LoadFiles(prefsPath, itemsPath)
	if err != nil {
		p.fail(ctx, uuid.New(), &loader.Input{Source: prefsPath}, opts, start, err)
		return nil, err
	}
	return p.Run(ctx, in, opts)
}

// Run computes the allocation for in. Any invariant violation aborts the run;
// nothing is retried.
func (p *Pipeline) Run(ctx context.Context, in *loader.Input, opts Options) (*Result, error) {
	start := p.now()
	runID := uuid.New()
	if opts.Seed == 0 {
		opts.Seed = start.UnixNano()
	}
	logger := p.logger.With("run_id", runID)
	logger.Info("allocation started", "source", in.Source, "agents", len(in.Agents), "mode", opts.Mode)

	res, err := p.compute(in, opts, logger)
	if err != nil {
		p.fail(ctx, runID, in, opts, start, err)
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	res.RunID = runID
	res.Duration = p.now().Sub(start)

	logger.Info("allocation completed",
		"rounds", len(res.Rounds),
		"terms", len(res.Terms),
		"selected", len(res.Selected),
		"seed", res.Seed,
		"duration_ms", res.Duration.Milliseconds(),
	)

	if p.metrics != nil {
		p.metrics.ObserveRun(len(in.Agents), len(res.Rounds), len(res.Terms), res.Duration)
	}
	p.persist(ctx, logger, completedRun(res))
	p.publish(logger, hermes.SubjectRunCompleted(runID.String()), completedEvent(res, p.now()))
	return res, nil
}

func (p *Pipeline) compute(in *loader.Input, opts Options, logger *slog.Logger) (*Result, error) {
	prefs, err := ranking.Build(in.Scores)
	if err != nil {
		return nil, err
	}
	for i, order := range prefs {
		logger.Debug("preference order", "agent", in.Agents[i], "order", order)
	}

	alloc, err := serial.Eat(prefs)
	if err != nil {
		return nil, err
	}
	if err := alloc.CheckDoublyStochastic(); err != nil {
		return nil, err
	}
	rounds := alloc.Rounds()
	for k, r := range rounds {
		logger.Debug("eating round", "round", k+1, "duration", r.Duration.RatString(), "depleted", r.Depleted)
	}

	terms, err := p.adapter.Decompose(alloc)
	if err != nil {
		return nil, err
	}

	sel := selector.New(terms, rand.New(rand.NewSource(opts.Seed)))
	var choices []selector.Choice
	switch opts.Mode {
	case config.ModeSample:
		c, err := sel.Sample()
		if err != nil {
			return nil, err
		}
		choices = []selector.Choice{c}
	case config.ModeTopK, "":
		opts.Mode = config.ModeTopK
		choices = sel.TopK(opts.K)
	default:
		return nil, fmt.Errorf("unknown selection mode %q", opts.Mode)
	}

	selected := make([]report.Ranked, len(choices))
	for k, c := range choices {
		as, err := selector.Assign(c, in.Agents, in.Items, in.ScoreText)
		if err != nil {
			return nil, err
		}
		selected[k] = report.Ranked{Choice: c, Assignments: as}
	}

	return &Result{
		Source:      in.Source,
		Mode:        opts.Mode,
		K:           opts.K,
		Seed:        opts.Seed,
		Agents:      in.Agents,
		Items:       in.Items,
		Preferences: prefs,
		Allocation:  alloc.Strings(),
		Rounds:      rounds,
		Terms:       terms,
		Selected:    selected,
		alloc:       alloc,
	}, nil
}

func (p *Pipeline) fail(ctx context.Context, runID uuid.UUID, in *loader.Input, opts Options, start time.Time, err error) {
	outcome := Classify(err)
	elapsed := p.now().Sub(start)
	logger := p.logger.With("run_id", runID)
	logger.Error("allocation failed", "source", in.Source, "outcome", outcome, "error", err)

	if p.metrics != nil {
		p.metrics.ObserveFailure(outcome, elapsed)
	}
	p.persist(ctx, logger, &store.Run{
		ID:         runID,
		Source:     in.Source,
		Agents:     in.Agents,
		Items:      in.Items,
		Mode:       opts.Mode,
		TopK:       opts.K,
		Seed:       opts.Seed,
		Status:     store.StatusFailed,
		Outcome:    outcome,
		Error:      err.Error(),
		DurationMs: elapsed.Milliseconds(),
	})
	p.publish(logger, hermes.SubjectRunFailed(runID.String()), hermes.RunFailedEvent{
		RunID:     runID.String(),
		Source:    in.Source,
		Outcome:   outcome,
		Error:     err.Error(),
		Timestamp: p.now().UTC(),
	})
}

// persist and publish never fail a run: the allocation is already decided.
func (p *Pipeline) persist(ctx context.Context, logger *slog.Logger, run *store.Run) {
	if p.store == nil {
		return
	}
	if err := p.store.CreateRun(ctx, run); err != nil {
		logger.Warn("failed to persist run", "error", err)
	}
}

func (p *Pipeline) publish(logger *slog.Logger, subject string, event interface{}) {
	if p.hermes == nil {
		return
	}
	if err := p.hermes.Publish(subject, event); err != nil {
		logger.Warn("failed to publish run event", "subject", subject, "error", err)
	}
}

func completedRun(res *Result) *store.Run {
	run := &store.Run{
		ID:          res.RunID,
		Source:      res.Source,
		Agents:      res.Agents,
		Items:       res.Items,
		Mode:        res.Mode,
		TopK:        res.K,
		Seed:        res.Seed,
		Status:      store.StatusCompleted,
		Outcome:     metrics.OutcomeCompleted,
		Preferences: res.Preferences,
		Allocation:  res.Allocation,
		Rounds:      len(res.Rounds),
		DurationMs:  res.Duration.Milliseconds(),
	}
	for _, t := range res.Terms {
		run.Decomposition = append(run.Decomposition, store.TermRecord{
			Coefficient: t.Coefficient,
			Permutation: t.Permutation,
		})
	}
	for _, s := range res.Selected {
		run.Selected = append(run.Selected, store.SelectionRecord{
			Rank:        s.Choice.Rank,
			Index:       s.Choice.Index,
			Coefficient: s.Choice.Coefficient,
			Permutation: s.Choice.Permutation,
		})
	}
	return run
}

func completedEvent(res *Result, at time.Time) hermes.RunCompletedEvent {
	ev := hermes.RunCompletedEvent{
		RunID:      res.RunID.String(),
		Source:     res.Source,
		Agents:     len(res.Agents),
		Rounds:     len(res.Rounds),
		Terms:      len(res.Terms),
		Mode:       res.Mode,
		DurationMs: res.Duration.Milliseconds(),
		Timestamp:  at.UTC(),
	}
	for _, s := range res.Selected {
		ev.Selected = append(ev.Selected, s.Choice.Index)
	}
	return ev
}
