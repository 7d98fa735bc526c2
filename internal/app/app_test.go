package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/boardroom/internal/config"
	"github.com/zhouzirui/boardroom/internal/model/event"
	"github.com/zhouzirui/boardroom/internal/service/ai"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Boardroom: config.BoardroomConfig{
			PersonaTimeout:    time.Second,
			SynthesisTimeout:  time.Second,
			ClassifierTimeout: time.Second,
			MaxConcurrency:    2,
			DefaultPersona:    "ceo",
			Classifier:        "keyword",
			HistoryTurns:      4,
			MemoryLimit:       2,
		},
		Store: config.StoreConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "db", "boardroom.db")},
	}
}

func TestBuildWiresSQLiteAndDefaults(t *testing.T) {
	gateway := ai.GatewayFunc(func(context.Context, ai.Request) (ai.Completion, error) {
		return ai.Completion{Text: "Focus on retention."}, nil
	})
	a, err := Build(context.Background(), testConfig(t), gateway, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Len(t, a.Personas.List(), 14)
	assert.Equal(t, 8, a.Script.Len())

	session, q, err := a.Board.NewSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "name", q.ID)

	_, events, err := a.Board.Chat(context.Background(), session.ID, "Ada")
	require.NoError(t, err)
	var last event.Event
	for ev := range events {
		last = ev
	}
	assert.Equal(t, event.TypeDone, last.EventType())

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBuildRejectsMissingSources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Sources.PersonaFile = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := Build(context.Background(), cfg, ai.Disabled(), zaptest.NewLogger(t))
	assert.Error(t, err)
}
