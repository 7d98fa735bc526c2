package chat

import (
	"time"

	"github.com/zhouzirui/boardroom/internal/model/onboarding"
)

// Session captures one conversation and the profile accumulated for it.
type Session struct {
	ID           string              `json:"id"`
	Context      map[string]string   `json:"context"`
	Onboarding   onboarding.Progress `json:"onboarding"`
	CreatedAt    time.Time           `json:"createdAt"`
	LastActiveAt time.Time           `json:"lastActiveAt"`
}

// OnboardingComplete reports whether the session has reached the chat path.
func (s Session) OnboardingComplete() bool {
	return s.Onboarding.Complete()
}

// Clone returns a deep copy so callers never share the context map.
func (s Session) Clone() Session {
	out := s
	out.Context = make(map[string]string, len(s.Context))
	for k, v := range s.Context {
		out.Context[k] = v
	}
	out.Onboarding.Answers = append([]onboarding.Answer(nil), s.Onboarding.Answers...)
	return out
}
