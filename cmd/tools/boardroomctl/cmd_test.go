package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/boardroom/internal/service/ai"
)

func execute(t *testing.T, gateway ai.Gateway, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LLM_PROVIDER", "")
	t.Setenv("PERSONA_REGISTRY_FILE", "")
	t.Setenv("ONBOARDING_SCRIPT_FILE", "")

	root := newRootCmd(gateway)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPersonasLists14(t *testing.T) {
	out, err := execute(t, nil, "", "personas", "--json")
	require.NoError(t, err)

	var personas []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &personas))
	assert.Len(t, personas, 14)

	out, err = execute(t, nil, "", "personas")
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "Chief Financial Officer")
}

func TestAskPrintsBoardRun(t *testing.T) {
	gateway := ai.GatewayFunc(func(_ context.Context, req ai.Request) (ai.Completion, error) {
		if req.Purpose == ai.PurposeSynthesis {
			return ai.Completion{Text: "Unified: hire slowly."}, nil
		}
		return ai.Completion{Text: string(req.PersonaKey) + " view"}, nil
	})

	out, err := execute(t, gateway, "", "ask", "--classifier", "keyword", "@CFO", "@CPeO", "hiring", "plan?")
	require.NoError(t, err)
	assert.Contains(t, out, "Routing to: 💰 Chief Financial Officer")
	assert.Contains(t, out, "CFO view")
	assert.Contains(t, out, "=== Board synthesis ===\nUnified: hire slowly.")
	assert.Contains(t, out, "done: 2 calls, 2 ok, 0 failed")
}

func TestAskFailsWhenBoardIsSilent(t *testing.T) {
	out, err := execute(t, ai.Disabled(), "", "ask", "--classifier", "keyword", "--json", "anything?")
	require.Error(t, err)
	assert.Contains(t, out, `"type":"error"`)
}

func TestOnboardWalksScript(t *testing.T) {
	answers := strings.Join([]string{
		"Ada", "Founder", "Acme",
		"unicorn", // 不在选项内，会被重新提问
		"growth ($500k–$5m arr)", "Fintech", "/skip", "Runway", "Close a seed round",
	}, "\n") + "\n"

	out, err := execute(t, nil, answers, "onboard")
	require.NoError(t, err)
	assert.Contains(t, out, "not accepted")
	assert.Contains(t, out, "Welcome to the Boardroom, Ada.")

	profile := out[strings.LastIndex(out, "{"):]
	var ctx map[string]string
	require.NoError(t, json.Unmarshal([]byte(profile), &ctx))
	assert.Equal(t, "Growth ($500K–$5M ARR)", ctx["company_stage"])
	assert.NotContains(t, ctx, "team_size")
}

func TestOnboardAbortsOnEOF(t *testing.T) {
	_, err := execute(t, nil, "Ada\n", "onboard")
	assert.Error(t, err)
}
