package intent

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/boardroom/internal/model/persona"
	"github.com/zhouzirui/boardroom/internal/service/ai"
)

const classifierRules = `Return valid JSON with exactly this schema:
{
  "intent": "<decision|analysis|planning|brainstorm|check-in>",
  "complexity": "<simple|compound|complex>",
  "reasoning": "<1-2 sentences explaining the routing>",
  "sub_queries": [
    {
      "id": "sq1",
      "original_intent": "<what this sub-query answers>",
      "rewritten_query": "<self-contained question for the advisors, enriched with the user's context>",
      "focus": "<10-word summary>",
      "agents": ["<AGENT_KEY>"]
    }
  ],
  "context_updates": {"<profile_field>": "<new fact the user stated about themselves or their company>"}
}

Rules:
- Decompose compound or complex queries into several atomic sub_queries, one concern each.
- A simple query gets one sub_query covering the whole message.
- Route each sub_query to the 1-2 advisors whose domain fits best, using only the keys listed above.
- Include the CEO for purely strategic or directional questions.
- context_updates is optional; include it only for facts stated in the message.
- Return ONLY the JSON object, no markdown and no prose.`

func buildSystemPrompt(personas []persona.Persona) string {
	var b strings.Builder
	b.WriteString("You are the boardroom orchestrator. Analyse the user's message and produce a routing plan.\n\n")
	fmt.Fprintf(&b, "You have %d advisors available:\n", len(personas))
	for _, p := range personas {
		fmt.Fprintf(&b, "  %s: %s (%s)\n", p.Key, p.Name, p.Emoji)
	}
	b.WriteString("\nDomain expertise:\n")
	for _, p := range personas {
		if len(p.Keywords) == 0 {
			continue
		}
		kws := p.Keywords
		if len(kws) > 8 {
			kws = kws[:8]
		}
		fmt.Fprintf(&b, "  %s: %s\n", p.Key, strings.Join(kws, ", "))
	}
	b.WriteString("\n")
	b.WriteString(classifierRules)
	return b.String()
}

func buildUserPrompt(message string, conv ai.ConversationContext, keys []persona.Key) string {
	orNone := func(s string) string {
		if strings.TrimSpace(s) == "" {
			return "(none)"
		}
		return s
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = string(k)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "USER PROFILE:\n%s\n\n", orNone(conv.RenderProfile()))
	fmt.Fprintf(&b, "RELEVANT MEMORIES:\n%s\n\n", orNone(conv.RenderMemories()))
	fmt.Fprintf(&b, "RECENT CONVERSATION:\n%s\n\n", orNone(conv.RenderHistory()))
	fmt.Fprintf(&b, "USER QUERY:\n%s\n\n", message)
	fmt.Fprintf(&b, "Available agents: %s\n\nReturn the routing plan as JSON.", strings.Join(names, ", "))
	return b.String()
}
