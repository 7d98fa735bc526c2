package chat_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/zhouzirui/boardroom/internal/model/chat"
	"github.com/zhouzirui/boardroom/internal/model/onboarding"
	chat "github.com/zhouzirui/boardroom/internal/service/chat"
)

func stores(t *testing.T) map[string]chat.Store {
	t.Helper()
	sqlite, err := chat.NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "boardroom.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]chat.Store{
		"memory": chat.NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreSessionLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			session, err := store.CreateSession(ctx, "client-token")
			require.NoError(t, err)
			assert.Equal(t, "client-token", session.ID)
			assert.NotNil(t, session.Context)

			_, err = store.CreateSession(ctx, "client-token")
			assert.ErrorIs(t, err, chat.ErrSessionExists)

			session.Context["name"] = "Ada"
			session.Onboarding = onboarding.Progress{Step: 1, Total: 8, Started: true,
				Answers: []onboarding.Answer{{QuestionID: "name", Value: "Ada"}}}
			require.NoError(t, store.SaveSession(ctx, session))

			got, err := store.GetSession(ctx, "client-token")
			require.NoError(t, err)
			assert.Equal(t, "Ada", got.Context["name"])
			assert.Equal(t, session.Onboarding, got.Onboarding)

			_, err = store.GetSession(ctx, "missing")
			assert.ErrorIs(t, err, chat.ErrSessionNotFound)
			assert.ErrorIs(t, store.SaveSession(ctx, model.Session{ID: "missing"}), chat.ErrSessionNotFound)
		})
	}
}

func TestStoreIssuesIDs(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			a, err := store.CreateSession(context.Background(), "")
			require.NoError(t, err)
			b, err := store.CreateSession(context.Background(), "")
			require.NoError(t, err)
			assert.NotEmpty(t, a.ID)
			assert.NotEqual(t, a.ID, b.ID)
		})
	}
}

func TestStoreTranscriptAndMemories(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := store.CreateSession(ctx, "s1")
			require.NoError(t, err)

			for _, content := range []string{"one", "two", "three"} {
				require.NoError(t, store.SaveMessage(ctx, model.Message{SessionID: "s1", Role: model.RoleUser, Content: content}))
			}
			require.NoError(t, store.SaveMessage(ctx, model.Message{SessionID: "s1", Role: model.RoleAssistant, Agent: "CFO", Content: "four"}))

			last, err := store.LoadTranscript(ctx, "s1", 2)
			require.NoError(t, err)
			require.Len(t, last, 2)
			assert.Equal(t, "three", last[0].Content)
			assert.Equal(t, "four", last[1].Content)
			assert.Equal(t, "CFO", last[1].Agent)

			all, err := store.LoadTranscript(ctx, "s1", 0)
			require.NoError(t, err)
			assert.Len(t, all, 4)

			for _, content := range []string{"m1", "m2", "m3"} {
				require.NoError(t, store.AddMemory(ctx, model.Memory{SessionID: "s1", Content: content, Agents: []string{"CEO"}}))
			}
			mems, err := store.RecentMemories(ctx, "s1", 2)
			require.NoError(t, err)
			require.Len(t, mems, 2)
			assert.Equal(t, "m2", mems[0].Content)
			assert.Equal(t, []string{"CEO"}, mems[1].Agents)

			n, err := store.CountMemories(ctx, "s1")
			require.NoError(t, err)
			assert.Equal(t, 3, n)

			assert.ErrorIs(t, store.SaveMessage(ctx, model.Message{SessionID: "ghost", Content: "x"}), chat.ErrSessionNotFound)
			assert.ErrorIs(t, store.AddMemory(ctx, model.Memory{SessionID: "ghost", Content: "x"}), chat.ErrSessionNotFound)
			_, err = store.LoadTranscript(ctx, "ghost", 5)
			assert.ErrorIs(t, err, chat.ErrSessionNotFound)
		})
	}
}

func TestSQLiteStoreReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boardroom.db")
	store, err := chat.NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = store.CreateSession(context.Background(), "persist")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := chat.NewSQLiteStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	_, err = reopened.GetSession(context.Background(), "persist")
	assert.NoError(t, err)
}
