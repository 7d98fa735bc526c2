package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/boardroom/internal/model/chat"
	"github.com/zhouzirui/boardroom/internal/model/event"
	"github.com/zhouzirui/boardroom/internal/service/boardroom"
	chatservice "github.com/zhouzirui/boardroom/internal/service/chat"
	"github.com/zhouzirui/boardroom/pkg/utils"
)

type fakeBoard struct {
	token, message string
	err            error
	events         []event.Event
}

func (f *fakeBoard) Chat(_ context.Context, token, message string) (chat.Session, <-chan event.Event, error) {
	f.token, f.message = token, message
	session := chat.Session{ID: token}
	if session.ID == "" {
		session.ID = "issued"
	}
	if f.err != nil {
		return session, nil, f.err
	}
	ch := make(chan event.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return session, ch, nil
}

func setupRouter(t *testing.T, board *fakeBoard) *chi.Mux {
	r := chi.NewRouter()
	New(board, zaptest.NewLogger(t)).RegisterRoutes(r)
	return r
}

func post(r http.Handler, body, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if header != "" {
		req.Header.Set(utils.SessionHeader, header)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func readSSE(t *testing.T, body string) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &m))
		out = append(out, m)
	}
	return out
}

func TestChatStreamsEventsAsSSE(t *testing.T) {
	board := &fakeBoard{events: []event.Event{
		event.Routing{Content: "Routing to: 💰 Chief Financial Officer"},
		event.Done{SessionID: "s-1", Content: "Cut burn.", PersonaCalls: 1, Succeeded: 1},
	}}
	resp := post(setupRouter(t, board), `{"message":"@CFO burn?","session_id":"s-1"}`, "")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))
	assert.Equal(t, "s-1", resp.Header().Get(utils.SessionHeader))
	assert.Equal(t, "@CFO burn?", board.message)

	frames := readSSE(t, resp.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, "routing", frames[0]["type"])
	assert.Equal(t, "done", frames[1]["type"])
	assert.Equal(t, "Cut burn.", frames[1]["content"])
}

func TestChatFallsBackToSessionHeader(t *testing.T) {
	board := &fakeBoard{events: []event.Event{event.Done{}}}
	resp := post(setupRouter(t, board), `{"message":"hi"}`, "from-header")

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "from-header", board.token)
}

func TestChatErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{boardroom.ErrEmptyMessage, http.StatusBadRequest},
		{chatservice.ErrInvalidToken, http.StatusBadRequest},
		{fmt.Errorf("%w: s-1", chatservice.ErrSessionBusy), http.StatusConflict},
		{fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			resp := post(setupRouter(t, &fakeBoard{err: tc.err}), `{"message":"x","session_id":"s-1"}`, "")
			assert.Equal(t, tc.status, resp.Code)
			assert.Equal(t, "application/json", resp.Header().Get("Content-Type"))
		})
	}
}

func TestChatRejectsInvalidBody(t *testing.T) {
	resp := post(setupRouter(t, &fakeBoard{}), `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
