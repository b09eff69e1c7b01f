package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *SQLiteLog {
	l, err := NewSQLiteLog(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = l.Close()
	})
	return l
}

func TestSessionLifecycle(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	id, err := l.CreateSession(ctx, "What is the VIX?")
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	require.NoError(t, l.LogInteraction(ctx, id, "ResearcherAgent", "swarm_web_research", "Researched 1 queries, found 2 sources"))
	require.NoError(t, l.LogInteraction(ctx, id, "ReviewerAgent", "review", "approved"))
	require.NoError(t, l.LogCodeExecution(ctx, id, "print(1)", "1\n", ""))
	require.NoError(t, l.UpdateSession(ctx, id, StatusCompleted, "The VIX is...", `{"approved":true}`))

	h, err := l.SessionHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "What is the VIX?", h.Session.Query)
	assert.Equal(t, StatusCompleted, h.Session.Status)
	assert.Equal(t, "The VIX is...", h.Session.FinalAnswer)
	assert.False(t, h.Session.CreatedAt.IsZero())

	require.Len(t, h.Interactions, 2)
	assert.Equal(t, "ResearcherAgent", h.Interactions[0].Agent)
	assert.Equal(t, "swarm_web_research", h.Interactions[0].Action)

	require.Len(t, h.CodeExecutions, 1)
	assert.Equal(t, "print(1)", h.CodeExecutions[0].Code)
	assert.Equal(t, "1\n", h.CodeExecutions[0].Output)
}

func TestNewSessionIsInProgress(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	id, err := l.CreateSession(ctx, "q")
	require.NoError(t, err)
	h, err := l.SessionHistory(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, h.Session.Status)
	assert.Empty(t, h.Interactions)
	assert.Empty(t, h.CodeExecutions)
}

func TestMissingSession(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	_, err := l.SessionHistory(ctx, 42)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, l.UpdateSession(ctx, 42, StatusCompleted, "", ""), ErrSessionNotFound)
}

func TestClosedLog(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, l.Close())
	_, err := l.CreateSession(context.Background(), "q")
	assert.Error(t, err)
	assert.NoError(t, l.Close())
}

func TestNop(t *testing.T) {
	var l Log = Nop{}
	id, err := l.CreateSession(context.Background(), "q")
	assert.NoError(t, err)
	assert.Zero(t, id)
	assert.NoError(t, l.LogInteraction(context.Background(), id, "a", "b", "c"))
	_, err = l.SessionHistory(context.Background(), id)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
