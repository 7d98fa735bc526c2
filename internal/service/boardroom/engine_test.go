package boardroom

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/boardroom/internal/model/event"
	"github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/internal/service/ai"
	"github.com/zhouzirui/boardroom/internal/service/intent"
)

type handler func(ctx context.Context, req ai.Request) (ai.Completion, error)

// fakeGateway 按用途与 persona 返回预设结果，并记录所有请求。
type fakeGateway struct {
	mu        sync.Mutex
	requests  []ai.Request
	classify  handler
	personas  map[persona.Key]handler
	synthesis handler
	fallback  handler
}

func (f *fakeGateway) Complete(ctx context.Context, req ai.Request) (ai.Completion, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	var h handler
	switch req.Purpose {
	case ai.PurposeClassify:
		h = f.classify
	case ai.PurposePersona:
		h = f.personas[req.PersonaKey]
	case ai.PurposeSynthesis:
		h = f.synthesis
	case ai.PurposeFallback:
		h = f.fallback
	}
	if h == nil {
		return ai.Completion{}, errors.New("unexpected call")
	}
	return h(ctx, req)
}

func (f *fakeGateway) count(p ai.Purpose) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if r.Purpose == p {
			n++
		}
	}
	return n
}

func (f *fakeGateway) last(p ai.Purpose) ai.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Purpose == p {
			return f.requests[i]
		}
	}
	return ai.Request{}
}

func reply(text string) handler {
	return func(context.Context, ai.Request) (ai.Completion, error) {
		return ai.Completion{Text: text}, nil
	}
}

func replyAfter(d time.Duration, text string) handler {
	return func(ctx context.Context, _ ai.Request) (ai.Completion, error) {
		select {
		case <-time.After(d):
			return ai.Completion{Text: text}, nil
		case <-ctx.Done():
			return ai.Completion{}, ctx.Err()
		}
	}
}

func fail(err error) handler {
	return func(context.Context, ai.Request) (ai.Completion, error) {
		return ai.Completion{}, err
	}
}

func hang(ctx context.Context, _ ai.Request) (ai.Completion, error) {
	<-ctx.Done()
	return ai.Completion{}, ctx.Err()
}

func newEngine(t *testing.T, gw *fakeGateway, personaTimeout time.Duration) *Engine {
	t.Helper()
	store := persona.MustMemoryStore(persona.Seed())
	gateway := ai.Guard(gw)
	logger := zaptest.NewLogger(t)

	classifier, err := intent.NewService(gateway, store, intent.Config{
		Mode: intent.ModeLLM, DefaultPersona: persona.CEO, Timeout: time.Second,
	}, logger)
	require.NoError(t, err)
	dispatcher, err := NewDispatcher(gateway, store, DispatcherConfig{
		PersonaTimeout: personaTimeout, MaxConcurrency: 4, DefaultPersona: persona.CEO,
	}, logger)
	require.NoError(t, err)
	synth, err := NewSynthesizer(gateway, store, SynthesizerConfig{
		SynthesisTimeout: time.Second, FallbackTimeout: time.Second, DefaultPersona: persona.CEO,
	}, logger)
	require.NoError(t, err)
	return NewEngine(classifier, dispatcher, synth, nil, logger)
}

func collect(t *testing.T, ch <-chan event.Event) []event.Event {
	t.Helper()
	var out []event.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not close, got %d events", len(out))
		}
	}
}

func types(events []event.Event) []event.Type {
	out := make([]event.Type, len(events))
	for i, ev := range events {
		out[i] = ev.EventType()
	}
	return out
}

func responses(events []event.Event) []event.AgentResponse {
	var out []event.AgentResponse
	for _, ev := range events {
		if r, ok := ev.(event.AgentResponse); ok {
			out = append(out, r)
		}
	}
	return out
}

const cmoPlan = `{"intent":"analysis","complexity":"simple","reasoning":"pricing",
	"sub_queries":[{"id":"sq1","rewritten_query":"How should I price my SaaS product?","focus":"SaaS pricing","agents":["CMO"]}]}`

func TestSinglePersonaRunSkipsSynthesis(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	gw := &fakeGateway{
		classify: reply(cmoPlan),
		personas: map[persona.Key]handler{persona.CMO: reply("Use value-based tiers.")},
	}
	events := collect(t, newEngine(t, gw, time.Second).Stream(context.Background(), RunInput{
		SessionID: "s1",
		Message:   "How do I price my SaaS product?",
	}))

	want := []event.Type{event.TypeOrchestration, event.TypeRouting, event.TypeAgentResponse, event.TypeDone}
	if diff := cmp.Diff(want, types(events)); diff != "" {
		t.Fatalf("event sequence mismatch (-want +got):\n%s", diff)
	}

	routing := events[1].(event.Routing)
	assert.Equal(t, []persona.Key{persona.CMO}, routing.Agents)
	assert.Equal(t, "Routing to: 📣 Chief Marketing Officer", routing.Content)

	orch := events[0].(event.Orchestration)
	assert.Equal(t, "📊 Analysis · Direct query", orch.Content)

	done := events[3].(event.Done)
	assert.Equal(t, "Use value-based tiers.", done.Content)
	assert.Equal(t, 1, done.PersonaCalls)
	assert.False(t, done.Synthesized)
	assert.Equal(t, 0, gw.count(ai.PurposeSynthesis))
}

func TestMentionedPersonasAreSynthesized(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	gw := &fakeGateway{
		personas: map[persona.Key]handler{
			persona.CEO: replyAfter(30*time.Millisecond, "Raise while momentum lasts."),
			persona.CFO: reply("You have 9 months of runway."),
		},
		synthesis: reply("Raise in Q3 with a 12-month plan."),
	}
	events := collect(t, newEngine(t, gw, time.Second).Stream(context.Background(), RunInput{
		Message: "@CEO @CFO should we raise now?",
	}))

	want := []event.Type{
		event.TypeOrchestration, event.TypeRouting,
		event.TypeAgentResponse, event.TypeAgentResponse,
		event.TypeSynthesis, event.TypeDone,
	}
	if diff := cmp.Diff(want, types(events)); diff != "" {
		t.Fatalf("event sequence mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 0, gw.count(ai.PurposeClassify), "mentions bypass the classifier model")

	orch := events[0].(event.Orchestration)
	assert.Equal(t, "compound", orch.Complexity)
	assert.Equal(t, []persona.Key{persona.CEO, persona.CFO}, events[1].(event.Routing).Agents)

	rs := responses(events)
	assert.Equal(t, persona.CFO, rs[0].Agent, "completion order, fastest first")
	assert.Equal(t, persona.CEO, rs[1].Agent)

	synthesis := events[4].(event.Synthesis)
	assert.Equal(t, "Raise in Q3 with a 12-month plan.", synthesis.Content)
	assert.False(t, synthesis.Aggregate)

	prompt := gw.last(ai.PurposeSynthesis).UserPrompt
	assert.Contains(t, prompt, "You have 9 months of runway.")
	assert.Contains(t, prompt, "Raise while momentum lasts.")

	done := events[5].(event.Done)
	assert.True(t, done.Synthesized)
	assert.Equal(t, 2, done.PersonaCalls)
	assert.Equal(t, synthesis.Content, done.Content)
}

func TestPartialFailureStillCompletes(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	gw := &fakeGateway{
		classify: reply(`{"intent":"decision","complexity":"simple",
			"sub_queries":[{"id":"sq1","rewritten_query":"Raise?","agents":["CEO","CFO"]}]}`),
		personas: map[persona.Key]handler{
			persona.CEO: fail(errors.New("provider 500")),
			persona.CFO: reply("Wait one quarter."),
		},
		synthesis: reply("Wait one quarter, then raise."),
	}
	events := collect(t, newEngine(t, gw, time.Second).Stream(context.Background(), RunInput{Message: "Should we raise?"}))

	assert.Equal(t, event.TypeDone, events[len(events)-1].EventType())
	rs := responses(events)
	require.Len(t, rs, 2)
	for _, r := range rs {
		if r.Agent == persona.CEO {
			assert.True(t, r.Failed)
			assert.Equal(t, "error", r.Error)
		} else {
			assert.False(t, r.Failed)
		}
	}

	assert.Contains(t, gw.last(ai.PurposeSynthesis).UserPrompt, "UNAVAILABLE: 👑 Chief Executive Officer")
	done := events[len(events)-1].(event.Done)
	assert.Equal(t, 1, done.Succeeded)
	assert.Equal(t, 1, done.Failed)
	assert.True(t, done.Synthesized)
}

func TestOnlyPersonaTimeoutUsesGeneralistFallback(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	gw := &fakeGateway{
		classify: reply(cmoPlan),
		personas: map[persona.Key]handler{persona.CMO: hang},
		fallback: reply("Start with three tiers and test."),
	}
	events := collect(t, newEngine(t, gw, 30*time.Millisecond).Stream(context.Background(), RunInput{
		Message: "How do I price my SaaS product?",
	}))

	want := []event.Type{event.TypeOrchestration, event.TypeRouting, event.TypeAgentResponse, event.TypeDone}
	if diff := cmp.Diff(want, types(events)); diff != "" {
		t.Fatalf("event sequence mismatch (-want +got):\n%s", diff)
	}
	r := events[2].(event.AgentResponse)
	assert.True(t, r.Failed)
	assert.Equal(t, "timeout", r.Error)

	done := events[3].(event.Done)
	assert.True(t, done.Fallback)
	assert.Equal(t, "Start with three tiers and test.", done.Content)
	assert.Equal(t, persona.CEO, gw.last(ai.PurposeFallback).PersonaKey)
}

func TestTotalFailureEndsWithError(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	gw := &fakeGateway{
		classify: fail(errors.New("classifier down")),
		personas: map[persona.Key]handler{persona.CEO: fail(errors.New("down"))},
		fallback: fail(errors.New("still down")),
	}
	events := collect(t, newEngine(t, gw, time.Second).Stream(context.Background(), RunInput{Message: "Anything?"}))

	want := []event.Type{event.TypeOrchestration, event.TypeRouting, event.TypeAgentResponse, event.TypeError}
	if diff := cmp.Diff(want, types(events)); diff != "" {
		t.Fatalf("event sequence mismatch (-want +got):\n%s", diff)
	}
	orch := events[0].(event.Orchestration)
	assert.True(t, orch.Fallback)
	assert.Contains(t, orch.Reasoning, "fallback: ")
}

func TestSynthesisFailureFallsBackToAggregate(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	gw := &fakeGateway{
		personas: map[persona.Key]handler{
			persona.CTO: reply("Keep the monolith."),
			persona.CFO: reply("Cloud costs are fine."),
		},
		synthesis: fail(errors.New("synthesis down")),
	}
	events := collect(t, newEngine(t, gw, time.Second).Stream(context.Background(), RunInput{Message: "@CTO @CFO rewrite?"}))

	require.Equal(t, event.TypeDone, events[len(events)-1].EventType())
	synthesis := events[len(events)-2].(event.Synthesis)
	assert.True(t, synthesis.Aggregate)
	assert.Contains(t, synthesis.Content, "=== ⚙️ Chief Technology Officer ===\nKeep the monolith.")
	assert.Contains(t, synthesis.Content, "Cloud costs are fine.")

	done := events[len(events)-1].(event.Done)
	assert.True(t, done.Aggregate)
	assert.False(t, done.Synthesized)
}

func TestCancellationStopsEventsAndCalls(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	started := make(chan struct{}, 2)
	blocking := func(ctx context.Context, _ ai.Request) (ai.Completion, error) {
		started <- struct{}{}
		<-ctx.Done()
		return ai.Completion{}, ctx.Err()
	}
	gw := &fakeGateway{
		personas: map[persona.Key]handler{persona.CEO: blocking, persona.CFO: blocking},
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream := newEngine(t, gw, time.Minute).Stream(ctx, RunInput{Message: "@CEO @CFO raise?"})

	<-started
	<-started
	cancel()

	events := collect(t, stream)
	for _, ev := range events {
		assert.NotContains(t, []event.Type{event.TypeAgentResponse, event.TypeSynthesis, event.TypeDone, event.TypeError}, ev.EventType())
	}
	assert.Equal(t, 0, gw.count(ai.PurposeSynthesis))
}

func TestCallsRunConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	var wg sync.WaitGroup
	wg.Add(2)
	bothStarted := make(chan struct{})
	go func() {
		wg.Wait()
		close(bothStarted)
	}()
	rendezvous := func(text string) handler {
		return func(ctx context.Context, _ ai.Request) (ai.Completion, error) {
			wg.Done()
			select {
			case <-bothStarted:
				return ai.Completion{Text: text}, nil
			case <-ctx.Done():
				return ai.Completion{}, ctx.Err()
			}
		}
	}
	gw := &fakeGateway{
		personas: map[persona.Key]handler{
			persona.COO: rendezvous("Automate onboarding."),
			persona.CPeO: rendezvous("Hire a support lead."),
		},
		synthesis: reply("Automate first, then hire."),
	}

	events := collect(t, newEngine(t, gw, 2*time.Second).Stream(context.Background(), RunInput{Message: "@COO @CPeO scale support?"}))
	done := events[len(events)-1].(event.Done)
	assert.Equal(t, 2, done.Succeeded, "each call only finishes once the other has started")
}

func TestCommitRunsBeforeDone(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	gw := &fakeGateway{
		classify: reply(cmoPlan),
		personas: map[persona.Key]handler{persona.CMO: reply("Tiered pricing.")},
	}
	var committed Summary
	events := collect(t, newEngine(t, gw, time.Second).Stream(context.Background(), RunInput{
		Message: "How do I price my SaaS product?",
		Commit: func(_ context.Context, s Summary) int {
			committed = s
			return 7
		},
	}))

	done := events[len(events)-1].(event.Done)
	assert.Equal(t, 7, done.MemoryCount)
	assert.Equal(t, []persona.Key{persona.CMO}, committed.Agents())
	assert.Equal(t, "Tiered pricing.", committed.Outcome.Content)
}

func TestDisconnectAfterSynthesisSkipsCommit(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	gw := &fakeGateway{
		personas: map[persona.Key]handler{
			persona.CEO: reply("Raise."),
			persona.CFO: reply("Wait."),
		},
		synthesis: reply("Raise in Q3."),
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []event.Event
	committed := false
	summary := newEngine(t, gw, time.Second).Run(ctx, RunInput{
		Message: "@CEO @CFO should we raise now?",
		Commit: func(context.Context, Summary) int {
			committed = true
			return 1
		},
	}, func(ev event.Event) bool {
		got = append(got, ev)
		if ev.EventType() == event.TypeSynthesis {
			cancel()
		}
		return true
	})

	assert.True(t, summary.Canceled)
	assert.False(t, committed, "a run abandoned before done must not be persisted")
	require.NotEmpty(t, got)
	assert.Equal(t, event.TypeSynthesis, got[len(got)-1].EventType())
}
