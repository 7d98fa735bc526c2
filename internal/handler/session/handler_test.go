package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/boardroom/internal/model/chat"
	"github.com/zhouzirui/boardroom/internal/model/onboarding"
	chatservice "github.com/zhouzirui/boardroom/internal/service/chat"
	"github.com/zhouzirui/boardroom/pkg/utils"
)

type fakeSessions struct {
	sessions map[string]chat.Session
	fail     error
}

func (f *fakeSessions) NewSession(context.Context) (chat.Session, onboarding.Question, error) {
	if f.fail != nil {
		return chat.Session{}, onboarding.Question{}, f.fail
	}
	s := chat.Session{ID: "new-id", Context: map[string]string{}, Onboarding: onboarding.Progress{Total: 8, Started: true}}
	f.sessions[s.ID] = s
	return s, onboarding.DefaultQuestions()[0], nil
}

func (f *fakeSessions) Session(_ context.Context, token string) (chat.Session, error) {
	s, ok := f.sessions[token]
	if !ok {
		return chat.Session{}, chatservice.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) Questions() []onboarding.Question { return onboarding.DefaultQuestions() }

func setupRouter(t *testing.T, fake *fakeSessions) *chi.Mux {
	r := chi.NewRouter()
	New(fake, zaptest.NewLogger(t)).RegisterRoutes(r)
	return r
}

func TestCreateSessionReturnsFirstQuestion(t *testing.T) {
	r := setupRouter(t, &fakeSessions{sessions: map[string]chat.Session{}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/session", nil))
	require.Equal(t, http.StatusCreated, resp.Code)
	assert.Equal(t, "new-id", resp.Header().Get(utils.SessionHeader))

	var body struct {
		Session  sessionView         `json:"session"`
		Question onboarding.Question `json:"question"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "new-id", body.Session.SessionID)
	assert.False(t, body.Session.OnboardingComplete)
	assert.Equal(t, "name", body.Question.ID)
}

func TestCreateSessionStoreFailure(t *testing.T) {
	r := setupRouter(t, &fakeSessions{fail: errors.New("disk full")})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/session", nil))
	assert.Equal(t, http.StatusInternalServerError, resp.Code)
}

func TestGetSession(t *testing.T) {
	fake := &fakeSessions{sessions: map[string]chat.Session{
		"abc": {ID: "abc", Context: map[string]string{"name": "Ada"}, Onboarding: onboarding.Progress{Step: 8, Total: 8, Started: true}},
	}}
	r := setupRouter(t, fake)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"known", "abc", http.StatusOK},
		{"unknown", "nope", http.StatusNotFound},
		{"missing", "", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/session", nil)
			if tc.header != "" {
				req.Header.Set(utils.SessionHeader, tc.header)
			}
			resp := httptest.NewRecorder()
			r.ServeHTTP(resp, req)
			assert.Equal(t, tc.status, resp.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/session", nil)
	req.Header.Set(utils.SessionHeader, "abc")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	var view sessionView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.True(t, view.OnboardingComplete)
	assert.Equal(t, "Ada", view.Context["name"])
}

func TestQuestionsListsScript(t *testing.T) {
	r := setupRouter(t, &fakeSessions{})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/onboarding/questions", nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Questions []onboarding.Question `json:"questions"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Questions, 8)
}
