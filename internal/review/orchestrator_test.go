// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package review

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/statement-review/internal/completion"
	"github.com/pdiddy/statement-review/internal/httputil"
	"github.com/pdiddy/statement-review/internal/prompt"
	"github.com/pdiddy/statement-review/pkg/types"
)

func TestMain(m *testing.M) {
	// Override backoff to avoid real sleeps in retry tests.
	httputil.RetryBaseDelay = time.Millisecond
	os.Exit(m.Run())
}

// --- stub completion service ---

// stubCompleter answers by persona key with controllable latency and
// failures, and records every request it receives.
type stubCompleter struct {
	mu       sync.Mutex
	requests []types.ReviewRequest
	order    []string // personas in completion order

	responses map[string]string
	delays    map[string]time.Duration
	errs      map[string]error
	failFirst map[string]int // persona -> number of transient failures before success
	attempts  map[string]int

	// aggregate, when set, computes the aggregator response from its request.
	aggregate func(types.ReviewRequest) string
}

func newStub() *stubCompleter {
	return &stubCompleter{
		responses: map[string]string{},
		delays:    map[string]time.Duration{},
		errs:      map[string]error{},
		failFirst: map[string]int{},
		attempts:  map[string]int{},
	}
}

func (s *stubCompleter) Complete(ctx context.Context, req types.ReviewRequest) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.attempts[req.Persona]++
	attempt := s.attempts[req.Persona]
	delay := s.delays[req.Persona]
	err := s.errs[req.Persona]
	transient := attempt <= s.failFirst[req.Persona]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", &completion.Error{Kind: completion.KindTransport, Model: req.Model, Err: ctx.Err()}
		}
	}
	if transient {
		return "", &completion.Error{Kind: completion.KindTransport, Model: req.Model, Err: errors.New("connection reset")}
	}
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, req.Persona)
	if req.Persona == "principal" && s.aggregate != nil {
		return s.aggregate(req), nil
	}
	return s.responses[req.Persona], nil
}

func (s *stubCompleter) requestsFor(persona string) []types.ReviewRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ReviewRequest
	for _, r := range s.requests {
		if r.Persona == persona {
			out = append(out, r)
		}
	}
	return out
}

func (s *stubCompleter) personas() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requests))
	for i, r := range s.requests {
		out[i] = r.Persona
	}
	return out
}

func okStub() *stubCompleter {
	s := newStub()
	s.responses["lawyer"] = "LAWYER_OK"
	s.responses["buyers-agent"] = "AGENT_OK"
	s.responses["conveyancer"] = "CONVEYANCER_OK"
	s.responses["principal"] = "FINAL_REPORT"
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newOrchestrator(t *testing.T, c Completer, opts ...Option) *Orchestrator {
	t.Helper()
	b, err := prompt.NewBuilder(prompt.DefaultPanel())
	require.NoError(t, err)
	return New(c, b, append([]Option{WithLogger(quietLogger())}, opts...)...)
}

func doc(text string) types.SourceDocument {
	return types.SourceDocument{Pages: []string{text}, Text: text}
}

// --- tests ---

func TestRun_HappyPath(t *testing.T) {
	stub := okStub()
	o := newOrchestrator(t, stub)

	report, err := o.Run(context.Background(), doc("Lot 5 on Plan 1234"))
	require.NoError(t, err)

	assert.Equal(t, "FINAL_REPORT", report.Final.Text)
	assert.Equal(t, "principal", report.Final.Persona)
	assert.Equal(t, "claude-3-5-sonnet-20240620", report.Final.Model)
	require.Len(t, report.Specialists, 3)
	assert.Equal(t, "LAWYER_OK", report.Specialists[0].Text)
	assert.Equal(t, "AGENT_OK", report.Specialists[1].Text)
	assert.Equal(t, "CONVEYANCER_OK", report.Specialists[2].Text)
	assert.Empty(t, report.Missing)
	assert.False(t, report.FinishedAt.Before(report.StartedAt))

	personas := stub.personas()
	require.Len(t, personas, 4)
	assert.Equal(t, "principal", personas[3], "aggregator must be the last request issued")
	assert.ElementsMatch(t, []string{"lawyer", "buyers-agent", "conveyancer"}, personas[:3])
}

func TestRun_RoundTripScenario(t *testing.T) {
	stub := okStub()
	stub.aggregate = func(req types.ReviewRequest) string {
		task := req.Task
		if len(task) > 50 {
			task = task[:50]
		}
		return task
	}
	o := newOrchestrator(t, stub)

	report, err := o.Run(context.Background(), doc("Lot 5 on Plan 1234"))
	require.NoError(t, err)
	assert.LessOrEqual(t, len(report.Final.Text), 50)

	aggReqs := stub.requestsFor("principal")
	require.Len(t, aggReqs, 1)
	task := aggReqs[0].Task

	markers := []string{"Lawyer's Review:", "Buyer's Agent Review:", "Conveyancer's Review:"}
	last := -1
	for _, m := range markers {
		idx := strings.Index(task, m)
		require.NotEqual(t, -1, idx, "aggregator task missing %q", m)
		assert.Greater(t, idx, last, "%q out of order", m)
		last = idx
	}
	assert.Contains(t, task, "Lawyer's Review:\nLAWYER_OK\n\nBuyer's Agent Review:\nAGENT_OK\n\nConveyancer's Review:\nCONVEYANCER_OK")
}

func TestRun_OrderInvariance(t *testing.T) {
	latencies := []map[string]time.Duration{
		{"lawyer": 30 * time.Millisecond, "buyers-agent": 15 * time.Millisecond, "conveyancer": 0},
		{"lawyer": 0, "buyers-agent": 30 * time.Millisecond, "conveyancer": 15 * time.Millisecond},
		{"lawyer": 15 * time.Millisecond, "buyers-agent": 0, "conveyancer": 30 * time.Millisecond},
	}

	var tasks []string
	var completionOrders [][]string
	for _, delays := range latencies {
		stub := okStub()
		stub.delays = delays
		o := newOrchestrator(t, stub)

		_, err := o.Run(context.Background(), doc("Section 32 text"))
		require.NoError(t, err)

		agg := stub.requestsFor("principal")
		require.Len(t, agg, 1)
		tasks = append(tasks, agg[0].Task)
		completionOrders = append(completionOrders, stub.order[:3])
	}

	assert.NotEqual(t, completionOrders[0], completionOrders[1], "latencies should permute completion order")
	for i := 1; i < len(tasks); i++ {
		assert.Equal(t, tasks[0], tasks[i], "aggregation input changed with completion order")
	}
}

func TestRun_DeterministicRequests(t *testing.T) {
	collect := func() map[string]types.ReviewRequest {
		stub := okStub()
		o := newOrchestrator(t, stub)
		_, err := o.Run(context.Background(), doc("Covenant C-12 prohibits subdivision."))
		require.NoError(t, err)

		out := map[string]types.ReviewRequest{}
		for _, r := range stub.requests {
			out[r.Persona] = r
		}
		return out
	}

	first, second := collect(), collect()
	require.Len(t, first, 4)
	assert.Equal(t, first, second)
}

func TestRun_FailFastNeverIssuesAggregator(t *testing.T) {
	for _, failing := range []string{"lawyer", "buyers-agent", "conveyancer"} {
		t.Run(failing, func(t *testing.T) {
			stub := okStub()
			stub.errs[failing] = &completion.Error{Kind: completion.KindService, StatusCode: 401, Msg: "invalid x-api-key"}

			o := newOrchestrator(t, stub)
			report, err := o.Run(context.Background(), doc("text"))
			require.Error(t, err)
			assert.Nil(t, report)

			assert.Empty(t, stub.requestsFor("principal"), "aggregator must not be invoked")

			var rerr *Error
			require.True(t, errors.As(err, &rerr))
			assert.Equal(t, StageSpecialist, rerr.Stage)
			assert.Equal(t, failing, rerr.Persona)
			assert.ErrorIs(t, err, completion.ErrService)
		})
	}
}

func TestRun_FailFastCancelsSiblings(t *testing.T) {
	stub := okStub()
	stub.errs["lawyer"] = &completion.Error{Kind: completion.KindMalformed, Err: errors.New("no text")}
	stub.delays["buyers-agent"] = 5 * time.Second
	stub.delays["conveyancer"] = 5 * time.Second

	o := newOrchestrator(t, stub)
	start := time.Now()
	_, err := o.Run(context.Background(), doc("text"))
	require.Error(t, err)
	assert.ErrorIs(t, err, completion.ErrMalformed)
	assert.Less(t, time.Since(start), 2*time.Second, "in-flight siblings should be cancelled")
	assert.Empty(t, stub.requestsFor("principal"))
}

func TestRun_AggregatorFailure(t *testing.T) {
	stub := okStub()
	stub.errs["principal"] = &completion.Error{Kind: completion.KindService, StatusCode: 529, Msg: "overloaded"}

	var states []types.RunState
	o := newOrchestrator(t, stub, WithStateObserver(func(_, to types.RunState) {
		states = append(states, to)
	}))

	_, err := o.Run(context.Background(), doc("text"))
	require.Error(t, err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, StageAggregator, rerr.Stage)
	assert.Equal(t, "principal", rerr.Persona)
	assert.Equal(t, []types.RunState{
		types.StateSpecialistsInFlight,
		types.StateSpecialistsComplete,
		types.StateAggregatorInFlight,
		types.StateFailed,
	}, states)
}

func TestRun_StateTransitions(t *testing.T) {
	var got [][2]types.RunState
	o := newOrchestrator(t, okStub(), WithStateObserver(func(from, to types.RunState) {
		got = append(got, [2]types.RunState{from, to})
	}))

	_, err := o.Run(context.Background(), doc("text"))
	require.NoError(t, err)
	assert.Equal(t, [][2]types.RunState{
		{types.StateIdle, types.StateSpecialistsInFlight},
		{types.StateSpecialistsInFlight, types.StateSpecialistsComplete},
		{types.StateSpecialistsComplete, types.StateAggregatorInFlight},
		{types.StateAggregatorInFlight, types.StateDone},
	}, got)
}

func TestRun_SpecialistFailureState(t *testing.T) {
	stub := okStub()
	stub.errs["conveyancer"] = &completion.Error{Kind: completion.KindService, StatusCode: 400}

	var last types.RunState
	o := newOrchestrator(t, stub, WithStateObserver(func(_, to types.RunState) { last = to }))
	_, err := o.Run(context.Background(), doc("text"))
	require.Error(t, err)
	assert.Equal(t, types.StateFailed, last)
	assert.True(t, IsTerminal(last))
}

func TestRun_EmptyDocument(t *testing.T) {
	stub := okStub()
	o := newOrchestrator(t, stub)

	report, err := o.Run(context.Background(), types.SourceDocument{})
	require.NoError(t, err)
	assert.Equal(t, "FINAL_REPORT", report.Final.Text)

	require.Len(t, stub.requests, 4)
	for _, r := range stub.requests {
		assert.NotEmpty(t, r.Role)
		assert.NotEmpty(t, r.Goal)
		assert.NotEmpty(t, r.Model)
		assert.NotEmpty(t, r.Task)
	}
	for _, p := range []string{"lawyer", "buyers-agent", "conveyancer"} {
		assert.Contains(t, stub.requestsFor(p)[0].Task, "```\n\n```")
	}
}

func TestRun_RetriesTransportFailures(t *testing.T) {
	stub := okStub()
	stub.failFirst["lawyer"] = 2

	o := newOrchestrator(t, stub, WithConfig(types.ReviewConfig{MaxRetries: 2}))
	report, err := o.Run(context.Background(), doc("text"))
	require.NoError(t, err)
	assert.Equal(t, "LAWYER_OK", report.Specialists[0].Text)
	assert.Len(t, stub.requestsFor("lawyer"), 3)
}

func TestRun_TransportFailureExhaustsRetries(t *testing.T) {
	stub := okStub()
	stub.failFirst["buyers-agent"] = 10

	o := newOrchestrator(t, stub, WithConfig(types.ReviewConfig{MaxRetries: 1}))
	_, err := o.Run(context.Background(), doc("text"))
	require.Error(t, err)
	assert.ErrorIs(t, err, completion.ErrTransport)
	assert.Len(t, stub.requestsFor("buyers-agent"), 2)
	assert.Empty(t, stub.requestsFor("principal"))
}

func TestRun_ServiceErrorsAreNotRetried(t *testing.T) {
	stub := okStub()
	stub.errs["lawyer"] = &completion.Error{Kind: completion.KindService, StatusCode: 403}

	o := newOrchestrator(t, stub, WithConfig(types.ReviewConfig{MaxRetries: 3}))
	_, err := o.Run(context.Background(), doc("text"))
	require.Error(t, err)
	assert.Len(t, stub.requestsFor("lawyer"), 1)
}

func TestRun_PartialPolicy(t *testing.T) {
	stub := okStub()
	stub.errs["buyers-agent"] = &completion.Error{Kind: completion.KindService, StatusCode: 500}

	o := newOrchestrator(t, stub, WithConfig(types.ReviewConfig{
		Policy:         types.PolicyPartial,
		MinSpecialists: 2,
	}))
	report, err := o.Run(context.Background(), doc("text"))
	require.NoError(t, err)

	assert.Equal(t, []string{"buyers-agent"}, report.Missing)
	require.Len(t, report.Specialists, 2)
	assert.Equal(t, "lawyer", report.Specialists[0].Persona)
	assert.Equal(t, "conveyancer", report.Specialists[1].Persona)

	agg := stub.requestsFor("principal")
	require.Len(t, agg, 1)
	assert.Contains(t, agg[0].Task, "Lawyer's Review:\nLAWYER_OK\n\nConveyancer's Review:\nCONVEYANCER_OK")
	assert.NotContains(t, agg[0].Task, "Buyer's Agent Review:")
}

func TestRun_PartialPolicyBelowMinimum(t *testing.T) {
	stub := okStub()
	stub.errs["lawyer"] = &completion.Error{Kind: completion.KindService, StatusCode: 500}
	stub.errs["conveyancer"] = &completion.Error{Kind: completion.KindMalformed, Err: errors.New("bad")}

	o := newOrchestrator(t, stub, WithConfig(types.ReviewConfig{
		Policy:         types.PolicyPartial,
		MinSpecialists: 2,
	}))
	_, err := o.Run(context.Background(), doc("text"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientReviews)
	assert.ErrorIs(t, err, completion.ErrService)
	assert.ErrorIs(t, err, completion.ErrMalformed)
	assert.Empty(t, stub.requestsFor("principal"))
}

func TestRun_ContextCancelled(t *testing.T) {
	stub := okStub()
	stub.delays["lawyer"] = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	o := newOrchestrator(t, stub)
	_, err := o.Run(ctx, doc("text"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, stub.requestsFor("principal"))
}

func TestRun_BuildFailureIssuesNoRequests(t *testing.T) {
	panel := prompt.DefaultPanel()
	panel.Specialists[1].Template = "{{.Reviews}}"
	b, err := prompt.NewBuilder(panel)
	require.NoError(t, err)

	stub := okStub()
	o := New(stub, b, WithLogger(quietLogger()))
	_, err = o.Run(context.Background(), doc("text"))
	require.Error(t, err)
	assert.Empty(t, stub.personas())
}

func TestMinSpecialists(t *testing.T) {
	tests := []struct {
		name  string
		cfg   types.ReviewConfig
		total int
		want  int
	}{
		{name: "fail-fast needs all", cfg: types.ReviewConfig{Policy: types.PolicyFailFast, MinSpecialists: 1}, total: 3, want: 3},
		{name: "partial default", cfg: types.ReviewConfig{Policy: types.PolicyPartial}, total: 3, want: 2},
		{name: "partial clamps to total", cfg: types.ReviewConfig{Policy: types.PolicyPartial, MinSpecialists: 5}, total: 3, want: 3},
		{name: "partial single specialist", cfg: types.ReviewConfig{Policy: types.PolicyPartial}, total: 1, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Orchestrator{cfg: tt.cfg}
			assert.Equal(t, tt.want, o.minSpecialists(tt.total))
		})
	}
}

func TestIsAllowedTransition(t *testing.T) {
	assert.True(t, isAllowedTransition(types.StateIdle, types.StateSpecialistsInFlight))
	assert.False(t, isAllowedTransition(types.StateIdle, types.StateFailed))
	assert.False(t, isAllowedTransition(types.StateSpecialistsComplete, types.StateFailed))
	assert.False(t, isAllowedTransition(types.StateDone, types.StateFailed))
	assert.False(t, isAllowedTransition(types.StateSpecialistsInFlight, types.StateAggregatorInFlight))

	tr := newTracker(nil)
	assert.Error(t, tr.advance(types.StateDone))
	assert.Equal(t, types.StateIdle, tr.state)
}
