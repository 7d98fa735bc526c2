package boardroom

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/boardroom/internal/model/orchestration"
	"github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/internal/service/ai"
)

// genai 经 cloud.google.com/go/auth 引入 opencensus，其 init 会常驻一个 worker。
var ignoreOpenCensus = goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start")

func newDispatcher(t *testing.T, gw ai.Gateway, cfg DispatcherConfig) *Dispatcher {
	t.Helper()
	if cfg.DefaultPersona == "" {
		cfg.DefaultPersona = persona.CEO
	}
	d, err := NewDispatcher(gw, persona.MustMemoryStore(persona.Seed()), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	return d
}

func TestResolveDropsUnknownPersonas(t *testing.T) {
	d := newDispatcher(t, ai.Disabled(), DispatcherConfig{})

	plan := orchestration.Plan{SubQueries: []orchestration.SubQuery{
		{ID: "sq1", Query: "Burn?", Personas: []persona.Key{"CFO", "CHAOS"}},
		{ID: "sq2", Query: "Nobody", Personas: []persona.Key{"GHOST"}},
		{ID: "sq3", Query: "Stack?", Personas: []persona.Key{"cto", "CFO", "CFO"}},
	}}
	out := d.Resolve(plan, "Burn and stack?")

	assert.Equal(t, []persona.Key{persona.CFO, persona.CTO}, out.Keys())
	require.Len(t, out.Calls, 3, "duplicates within one sub-query are called once")
	assert.Equal(t, "sq3", out.Calls[2].SubQuery.ID)
	assert.Len(t, out.Warnings, 3)
	assert.Contains(t, out.Warnings[0], `"CHAOS"`)
	assert.Contains(t, out.Warnings[2], "sq2")
}

func TestResolveRoutesEmptyPlanToDefault(t *testing.T) {
	d := newDispatcher(t, ai.Disabled(), DispatcherConfig{DefaultPersona: persona.COO})

	out := d.Resolve(orchestration.Plan{SubQueries: []orchestration.SubQuery{
		{ID: "sq1", Personas: []persona.Key{"NOPE"}},
	}}, "Help me")

	require.Len(t, out.Calls, 1)
	assert.Equal(t, persona.COO, out.Calls[0].Persona.Key)
	assert.Equal(t, "Help me", out.Calls[0].SubQuery.Query)
	assert.Contains(t, out.Warnings[len(out.Warnings)-1], "routed to COO")
}

func TestNewDispatcherRequiresRegisteredDefault(t *testing.T) {
	_, err := NewDispatcher(ai.Disabled(), persona.MustMemoryStore(persona.Seed()), DispatcherConfig{DefaultPersona: "CXO"}, nil)
	assert.Error(t, err)
}

func TestRunHonoursConcurrencyLimit(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	var inflight, peak atomic.Int32
	gw := ai.Guard(ai.GatewayFunc(func(ctx context.Context, _ ai.Request) (ai.Completion, error) {
		n := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		return ai.Completion{Text: "ok"}, nil
	}))
	d := newDispatcher(t, gw, DispatcherConfig{MaxConcurrency: 2, PersonaTimeout: time.Second})

	plan := orchestration.Plan{SubQueries: []orchestration.SubQuery{{
		ID: "sq1", Query: "All hands", Personas: []persona.Key{persona.CEO, persona.CFO, persona.CTO, persona.CMO, persona.COO},
	}}}

	var results []orchestration.Result
	for res := range d.Run(context.Background(), d.Resolve(plan, "All hands"), "") {
		results = append(results, res)
	}

	assert.Len(t, results, 5)
	for _, r := range results {
		assert.True(t, r.OK())
	}
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunStartsEveryCallWithoutLimit(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	keys := []persona.Key{
		persona.CEO, persona.CFO, persona.CTO, persona.CPO, persona.CMO, persona.CSO,
		persona.CPeO, persona.CCO, persona.CLO, persona.COO, persona.CSci, persona.CIO,
	}
	var inflight, peak atomic.Int32
	all := make(chan struct{})
	gw := ai.Guard(ai.GatewayFunc(func(ctx context.Context, _ ai.Request) (ai.Completion, error) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		if n == int32(len(keys)) {
			close(all)
		}
		// 每个调用都要等到全部调用同时在途才返回。
		select {
		case <-all:
			return ai.Completion{Text: "ok"}, nil
		case <-ctx.Done():
			return ai.Completion{}, ctx.Err()
		}
	}))
	d := newDispatcher(t, gw, DispatcherConfig{PersonaTimeout: 2 * time.Second})

	var subs []orchestration.SubQuery
	for i, k := range keys {
		subs = append(subs, orchestration.SubQuery{ID: fmt.Sprintf("sq%d", i+1), Query: "Q", Personas: []persona.Key{k}})
	}
	dispatch := d.Resolve(orchestration.Plan{SubQueries: subs}, "Q")
	require.Len(t, dispatch.Calls, len(keys))

	var results []orchestration.Result
	for res := range d.Run(context.Background(), dispatch, "") {
		results = append(results, res)
	}

	require.Len(t, results, len(keys))
	for _, r := range results {
		assert.True(t, r.OK(), "%s: %v", r.Persona, r.Err)
	}
	assert.Equal(t, int32(len(keys)), peak.Load())
}

func TestRunClassifiesFailures(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreOpenCensus)

	gw := ai.Guard(ai.GatewayFunc(func(ctx context.Context, req ai.Request) (ai.Completion, error) {
		switch req.PersonaKey {
		case persona.CTO:
			<-ctx.Done()
			return ai.Completion{}, ctx.Err()
		case persona.CFO:
			return ai.Completion{Text: "   "}, nil
		}
		return ai.Completion{Text: "fine"}, nil
	}))
	d := newDispatcher(t, gw, DispatcherConfig{PersonaTimeout: 20 * time.Millisecond})

	plan := orchestration.Plan{SubQueries: []orchestration.SubQuery{{
		ID: "sq1", Query: "Q", Personas: []persona.Key{persona.CEO, persona.CFO, persona.CTO},
	}}}
	byKey := map[persona.Key]orchestration.Result{}
	for res := range d.Run(context.Background(), d.Resolve(plan, "Q"), "") {
		byKey[res.Persona] = res
	}

	assert.True(t, byKey[persona.CEO].OK())
	assert.Equal(t, orchestration.FailureError, byKey[persona.CFO].Failure)
	assert.Equal(t, orchestration.FailureTimeout, byKey[persona.CTO].Failure)
	assert.Equal(t, "empty response", failureText(byKey[persona.CFO]))
}
