// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package review runs the review pipeline: independent specialist reviews of
// one source document, fanned out concurrently, then a single aggregator
// review over their labeled outputs.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/statement-review/internal/completion"
	"github.com/pdiddy/statement-review/internal/httputil"
	"github.com/pdiddy/statement-review/internal/prompt"
	"github.com/pdiddy/statement-review/pkg/types"
)

// Completer abstracts the completion service so tests can supply a stub.
// completion.Client implements it.
type Completer interface {
	Complete(ctx context.Context, req types.ReviewRequest) (string, error)
}

const (
	defaultMinSpecialists = 2
	defaultMaxRetries     = 2
)

// DefaultConfig returns fail-fast with two transport retries per call.
func DefaultConfig() types.ReviewConfig {
	return types.ReviewConfig{
		Policy:         types.PolicyFailFast,
		MinSpecialists: defaultMinSpecialists,
		MaxRetries:     defaultMaxRetries,
	}
}

// Orchestrator sequences the completion calls of a review run. A single
// Orchestrator may serve concurrent runs; all per-run state lives in Run.
type Orchestrator struct {
	completer Completer
	builder   *prompt.Builder
	cfg       types.ReviewConfig
	logger    *slog.Logger
	observer  StateObserver
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithConfig replaces the policy, minimum and retry settings.
func WithConfig(cfg types.ReviewConfig) Option {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithLogger sets the logger for progress and retry messages.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithStateObserver registers a callback for run state transitions.
func WithStateObserver(obs StateObserver) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// New returns an Orchestrator that issues requests built by b through c.
func New(c Completer, b *prompt.Builder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		completer: c,
		builder:   b,
		cfg:       DefaultConfig(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg.Policy == "" {
		o.cfg.Policy = types.PolicyFailFast
	}
	return o
}

// Run reviews doc and returns the aggregated report. Every specialist
// request is built before any is sent. The aggregator request is issued only
// after all specialists have resolved, and never when the run has failed.
func (o *Orchestrator) Run(ctx context.Context, doc types.SourceDocument) (*types.Report, error) {
	started := time.Now().UTC()
	panel := o.builder.Panel()

	reqs := make([]types.ReviewRequest, len(panel.Specialists))
	for i, p := range panel.Specialists {
		req, err := o.builder.Specialist(p, doc)
		if err != nil {
			return nil, &Error{Stage: StageSpecialist, Persona: p.Key, Err: err}
		}
		reqs[i] = req
	}

	t := newTracker(o.observer)
	if err := t.advance(types.StateSpecialistsInFlight); err != nil {
		return nil, err
	}
	o.logger.InfoContext(ctx, "starting specialist reviews",
		"specialists", len(reqs),
		"policy", string(o.cfg.Policy),
		"document_chars", len(doc.Text))

	results, missing, err := o.runSpecialists(ctx, panel, reqs)
	if err != nil {
		t.fail()
		return nil, err
	}
	if err := t.advance(types.StateSpecialistsComplete); err != nil {
		return nil, err
	}

	if err := t.advance(types.StateAggregatorInFlight); err != nil {
		return nil, err
	}
	final, err := o.runAggregator(ctx, results)
	if err != nil {
		t.fail()
		return nil, err
	}
	if err := t.advance(types.StateDone); err != nil {
		return nil, err
	}

	return &types.Report{
		Final:       final,
		Specialists: results,
		Missing:     missing,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
	}, nil
}

// outcome is the result slot owned by one specialist goroutine.
type outcome struct {
	result types.ReviewResult
	err    error
}

// runSpecialists fans the requests out and joins them. Results come back in
// panel order whatever the completion order was.
func (o *Orchestrator) runSpecialists(ctx context.Context, panel prompt.Panel, reqs []types.ReviewRequest) ([]types.ReviewResult, []string, error) {
	slots := make([]outcome, len(reqs))
	failFast := o.cfg.Policy != types.PolicyPartial

	g, gctx := errgroup.WithContext(ctx)
	for i := range reqs {
		i := i
		g.Go(func() error {
			text, err := o.call(gctx, reqs[i])
			if err != nil {
				slots[i].err = &Error{Stage: StageSpecialist, Persona: reqs[i].Persona, Err: err}
				if failFast {
					return slots[i].err
				}
				o.logger.WarnContext(gctx, "specialist review failed", "persona", reqs[i].Persona, "error", err)
				return nil
			}
			slots[i].result = o.builder.Result(panel.Specialists[i], text)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		results []types.ReviewResult
		missing []string
		errs    []error
	)
	for i, s := range slots {
		if s.err != nil {
			missing = append(missing, reqs[i].Persona)
			errs = append(errs, s.err)
			continue
		}
		results = append(results, s.result)
	}

	if floor := o.minSpecialists(len(reqs)); len(results) < floor {
		return nil, nil, fmt.Errorf("%w: %d of %d succeeded, need %d: %w",
			ErrInsufficientReviews, len(results), len(reqs), floor, errors.Join(errs...))
	}
	return results, missing, nil
}

func (o *Orchestrator) runAggregator(ctx context.Context, results []types.ReviewResult) (types.ReviewResult, error) {
	agg := o.builder.Panel().Aggregator
	req, err := o.builder.Aggregator(o.builder.NewAggregationInput(results))
	if err != nil {
		return types.ReviewResult{}, &Error{Stage: StageAggregator, Persona: agg.Key, Err: err}
	}
	text, err := o.call(ctx, req)
	if err != nil {
		return types.ReviewResult{}, &Error{Stage: StageAggregator, Persona: agg.Key, Err: err}
	}
	return o.builder.Result(agg, text), nil
}

// call sends one request, retrying transport failures only.
func (o *Orchestrator) call(ctx context.Context, req types.ReviewRequest) (string, error) {
	start := time.Now()
	var text string
	policy := httputil.Policy{
		MaxRetries: o.cfg.MaxRetries,
		Retryable:  completion.IsTransient,
		Logger:     o.logger.With("persona", req.Persona),
	}
	err := httputil.Retry(ctx, policy, func(ctx context.Context) error {
		var err error
		text, err = o.completer.Complete(ctx, req)
		return err
	})
	if err != nil {
		return "", err
	}
	o.logger.InfoContext(ctx, "review complete",
		"persona", req.Persona,
		"model", req.Model,
		"duration_ms", time.Since(start).Milliseconds())
	return text, nil
}

// minSpecialists returns the partial-policy floor, clamped to [1, total].
// Under fail-fast every specialist must succeed.
func (o *Orchestrator) minSpecialists(total int) int {
	if o.cfg.Policy != types.PolicyPartial {
		return total
	}
	floor := o.cfg.MinSpecialists
	if floor <= 0 {
		floor = defaultMinSpecialists
	}
	return max(1, min(floor, total))
}
