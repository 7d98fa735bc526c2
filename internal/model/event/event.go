// Package event defines the ordered records streamed to a client for one run.
//
// Every record serialises as a flat JSON object whose "type" field names the
// variant; the remaining fields depend on the variant. This wire shape is the
// compatibility contract with clients.
package event

import (
	"encoding/json"

	"github.com/zhouzirui/boardroom/internal/model/onboarding"
	"github.com/zhouzirui/boardroom/internal/model/persona"
)

// Type discriminates the event variants.
type Type string

const (
	TypeOrchestration      Type = "orchestration"
	TypeRouting            Type = "routing"
	TypeAgentResponse      Type = "agent_response"
	TypeSynthesis          Type = "synthesis"
	TypeOnboardingQuestion Type = "onboarding_question"
	TypeOnboardingComplete Type = "onboarding_complete"
	TypeDone               Type = "done"
	TypeError              Type = "error"
)

// Event is the closed set of records a run can emit.
type Event interface {
	EventType() Type
	isEvent()
}

// Terminal reports whether e ends a run's stream.
func Terminal(e Event) bool {
	t := e.EventType()
	return t == TypeDone || t == TypeError
}

// PersonaTag is the visual identity of a persona carried on events.
type PersonaTag struct {
	Key   persona.Key `json:"key"`
	Name  string      `json:"name"`
	Emoji string      `json:"emoji"`
	Color string      `json:"color"`
}

// TagOf builds the visual identity of p.
func TagOf(p persona.Persona) PersonaTag {
	return PersonaTag{Key: p.Key, Name: p.Name, Emoji: p.Emoji, Color: p.Color}
}

// SubQuerySummary is the public view of a sub-query.
type SubQuerySummary struct {
	ID     string        `json:"id"`
	Focus  string        `json:"focus"`
	Agents []persona.Key `json:"agents"`
}

// Orchestration describes the classifier's plan.
type Orchestration struct {
	Intent     string            `json:"intent"`
	Complexity string            `json:"complexity"`
	Reasoning  string            `json:"reasoning"`
	Fallback   bool              `json:"fallback,omitempty"`
	SubQueries []SubQuerySummary `json:"sub_queries"`
	Agents     []persona.Key     `json:"agents"`
	Content    string            `json:"content"`
}

// Routing lists every persona that will participate, before any answer arrives.
type Routing struct {
	Agents   []persona.Key `json:"agents"`
	Personas []PersonaTag  `json:"personas"`
	Content  string        `json:"content"`
	Warnings []string      `json:"warnings,omitempty"`
}

// AgentResponse carries one persona call's outcome, in completion order.
type AgentResponse struct {
	Agent      persona.Key `json:"agent"`
	AgentName  string      `json:"agent_name"`
	AgentEmoji string      `json:"agent_emoji"`
	AgentColor string      `json:"agent_color"`
	SubQueryID string      `json:"sub_query_id"`
	Content    string      `json:"content"`
	Failed     bool        `json:"failed,omitempty"`
	Error      string      `json:"error,omitempty"`
	LatencyMS  int64       `json:"latency_ms"`
}

// Synthesis carries the unified answer of a multi-persona run.
type Synthesis struct {
	Content     string        `json:"content"`
	Aggregate   bool          `json:"aggregate,omitempty"`
	Fallback    bool          `json:"fallback,omitempty"`
	Unavailable []persona.Key `json:"unavailable,omitempty"`
}

// OnboardingQuestion presents the next question of the script.
type OnboardingQuestion struct {
	Step     int                 `json:"step"`
	Total    int                 `json:"total"`
	Question onboarding.Question `json:"question"`
	// Notice explains why the previous reply was not accepted.
	Notice string `json:"notice,omitempty"`
}

// OnboardingComplete closes onboarding with the accumulated profile.
type OnboardingComplete struct {
	Context map[string]string `json:"context"`
	Content string            `json:"content"`
}

// Done terminates a run that produced content.
type Done struct {
	SessionID    string `json:"session_id,omitempty"`
	Content      string `json:"content"`
	PersonaCalls int    `json:"persona_calls"`
	Succeeded    int    `json:"succeeded"`
	Failed       int    `json:"failed"`
	Synthesized  bool   `json:"synthesized"`
	Aggregate    bool   `json:"aggregate,omitempty"`
	Fallback     bool   `json:"fallback,omitempty"`
	MemoryCount  int    `json:"memory_count"`
	DurationMS   int64  `json:"duration_ms"`
}

// Error terminates a run that could not produce any content.
type Error struct {
	Content string `json:"content"`
}

// EventType returns Orchestration's wire tag.
func (Orchestration) EventType() Type { return TypeOrchestration }

// EventType returns Routing's wire tag.
func (Routing) EventType() Type { return TypeRouting }

// EventType returns AgentResponse's wire tag.
func (AgentResponse) EventType() Type { return TypeAgentResponse }

// EventType returns Synthesis's wire tag.
func (Synthesis) EventType() Type { return TypeSynthesis }

// EventType returns OnboardingQuestion's wire tag.
func (OnboardingQuestion) EventType() Type { return TypeOnboardingQuestion }

// EventType returns OnboardingComplete's wire tag.
func (OnboardingComplete) EventType() Type { return TypeOnboardingComplete }

// EventType returns Done's wire tag.
func (Done) EventType() Type { return TypeDone }

// EventType returns Error's wire tag.
func (Error) EventType() Type { return TypeError }

func (Orchestration) isEvent()      {}
func (Routing) isEvent()            {}
func (AgentResponse) isEvent()      {}
func (Synthesis) isEvent()          {}
func (OnboardingQuestion) isEvent() {}
func (OnboardingComplete) isEvent() {}
func (Done) isEvent()               {}
func (Error) isEvent()              {}

// MarshalJSON encodes Orchestration with its "type" tag first.
func (e Orchestration) MarshalJSON() ([]byte, error) {
	type alias Orchestration
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// MarshalJSON encodes Routing with its "type" tag first.
func (e Routing) MarshalJSON() ([]byte, error) {
	type alias Routing
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// MarshalJSON encodes AgentResponse with its "type" tag first.
func (e AgentResponse) MarshalJSON() ([]byte, error) {
	type alias AgentResponse
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// MarshalJSON encodes Synthesis with its "type" tag first.
func (e Synthesis) MarshalJSON() ([]byte, error) {
	type alias Synthesis
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// MarshalJSON encodes OnboardingQuestion with its "type" tag first.
func (e OnboardingQuestion) MarshalJSON() ([]byte, error) {
	type alias OnboardingQuestion
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// MarshalJSON encodes OnboardingComplete with its "type" tag first.
func (e OnboardingComplete) MarshalJSON() ([]byte, error) {
	type alias OnboardingComplete
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// MarshalJSON encodes Done with its "type" tag first.
func (e Done) MarshalJSON() ([]byte, error) {
	type alias Done
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}

// MarshalJSON encodes Error with its "type" tag first.
func (e Error) MarshalJSON() ([]byte, error) {
	type alias Error
	return json.Marshal(struct {
		Type Type `json:"type"`
		alias
	}{e.EventType(), alias(e)})
}
