package onboarding

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyScript is returned when a script has no questions.
var ErrEmptyScript = errors.New("onboarding script is empty")

// Question is one step of the onboarding script.
type Question struct {
	ID          string   `json:"id" yaml:"id"`
	Prompt      string   `json:"question" yaml:"question"`
	Field       string   `json:"field" yaml:"field"`
	Options     []string `json:"options,omitempty" yaml:"options"`
	Placeholder string   `json:"placeholder,omitempty" yaml:"placeholder"`
	SkipLabel   string   `json:"skip_label,omitempty" yaml:"skip_label"`
}

// Answer is a recorded reply to a question.
type Answer struct {
	QuestionID string `json:"question_id"`
	Value      string `json:"value"`
}

// Progress tracks a session's position in the script.
type Progress struct {
	Step    int      `json:"step"`
	Total   int      `json:"total"`
	Started bool     `json:"started"`
	Answers []Answer `json:"answers,omitempty"`
}

// Complete reports whether every question has been answered or skipped.
func (p Progress) Complete() bool {
	return p.Total > 0 && p.Step >= p.Total
}

// Script is the ordered, fixed-length question list.
type Script struct {
	questions []Question
}

// NewScript validates and wraps a question list.
func NewScript(questions []Question) (*Script, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyScript
	}
	seen := make(map[string]struct{}, len(questions))
	for i, q := range questions {
		if strings.TrimSpace(q.ID) == "" || strings.TrimSpace(q.Prompt) == "" {
			return nil, fmt.Errorf("question %d needs an id and a question text", i)
		}
		if _, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("duplicate question id %q", q.ID)
		}
		seen[q.ID] = struct{}{}
		if q.Field == "" {
			questions[i].Field = q.ID
		}
	}
	return &Script{questions: append([]Question(nil), questions...)}, nil
}

// Len returns the number of steps.
func (s *Script) Len() int { return len(s.questions) }

// At returns the question at step i.
func (s *Script) At(i int) (Question, bool) {
	if i < 0 || i >= len(s.questions) {
		return Question{}, false
	}
	return s.questions[i], true
}

// Questions returns a copy of the script.
func (s *Script) Questions() []Question {
	return append([]Question(nil), s.questions...)
}

// Fields returns the context field names in script order.
func (s *Script) Fields() []string {
	fields := make([]string, len(s.questions))
	for i, q := range s.questions {
		fields[i] = q.Field
	}
	return fields
}

// LoadFile reads a YAML script with a top-level "questions" list.
func LoadFile(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read onboarding script: %w", err)
	}
	var file struct {
		Questions []Question `yaml:"questions"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode onboarding script: %w", err)
	}
	return NewScript(file.Questions)
}

const skipLabel = "Skip for now"

// DefaultQuestions is the built-in eight-step script.
func DefaultQuestions() []Question {
	return []Question{
		{ID: "name", Field: "name", SkipLabel: skipLabel,
			Prompt: "Welcome to your Boardroom. To get started, what's your name?"},
		{ID: "role", Field: "role", SkipLabel: skipLabel,
			Prompt:      "Great, {name}! What best describes your current role?",
			Placeholder: "e.g. Founder, CEO, Product Manager, Solopreneur..."},
		{ID: "company", Field: "company_name", SkipLabel: skipLabel,
			Prompt:      "What's the name of your company or project?",
			Placeholder: "e.g. Acme Corp, my side project..."},
		{ID: "stage", Field: "company_stage", SkipLabel: skipLabel,
			Prompt: "What stage is your company at right now?",
			Options: []string{
				"Idea / Pre-revenue",
				"Early Stage (0–$500K ARR)",
				"Growth ($500K–$5M ARR)",
				"Scale-Up ($5M+ ARR)",
				"Corporate / Enterprise",
			}},
		{ID: "industry", Field: "industry", SkipLabel: skipLabel,
			Prompt:      "Which industry are you in?",
			Placeholder: "e.g. SaaS, Fintech, Healthcare, E-commerce..."},
		{ID: "team_size", Field: "team_size", SkipLabel: skipLabel,
			Prompt:  "How big is your team?",
			Options: []string{"Just me", "2–5 people", "6–20 people", "21–100 people", "100+ people"}},
		{ID: "challenges", Field: "current_challenges", SkipLabel: skipLabel,
			Prompt:      "What are your biggest challenges right now?",
			Placeholder: "e.g. running out of runway, need to hire, struggling with growth..."},
		{ID: "goals", Field: "goals", SkipLabel: skipLabel,
			Prompt:      "And what's your primary goal for the next 90 days?",
			Placeholder: "e.g. close a seed round, hit $10K MRR, launch v1..."},
	}
}

// DefaultScript wraps DefaultQuestions.
func DefaultScript() *Script {
	s, err := NewScript(DefaultQuestions())
	if err != nil {
		panic(err)
	}
	return s
}
