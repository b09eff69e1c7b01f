package cmds

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/agentres/pkg/app"
	"github.com/go-go-golems/agentres/pkg/audit"
	"github.com/go-go-golems/agentres/pkg/config"
	"github.com/go-go-golems/agentres/pkg/llm/llmtest"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcnksm/go-input"
	"gopkg.in/yaml.v3"
)

func TestIsExit(t *testing.T) {
	for _, m := range []string{"exit", " Quit ", "BYE"} {
		assert.True(t, isExit(m), m)
	}
	for _, m := range []string{"", "exit now", "goodbye"} {
		assert.False(t, isExit(m), m)
	}
}

func TestFormatEntry(t *testing.T) {
	out := FormatEntry(session.Entry{Agent: "PlannerAgent", Type: session.EntryPlan, Output: " step 1 \n"})
	assert.Equal(t, "### PlannerAgent · plan\n\nstep 1\n", out)
	assert.Contains(t, FormatEntry(session.Entry{Agent: "System"}), "_(no output)_")
}

func TestPlainPrinter(t *testing.T) {
	buf := &bytes.Buffer{}
	NewPrinter(buf, false).Markdown("**bold**")
	assert.Equal(t, "**bold**\n", buf.String())
}

func TestTurnOutput(t *testing.T) {
	s := session.New()
	entries := []session.Entry{{Output: "first"}, {Output: "last"}}
	assert.Equal(t, "last", turnOutput(s, entries))

	s.Answer = "draft"
	assert.Equal(t, "draft", turnOutput(s, entries))
	s.FinalAnswer = "reviewed"
	assert.Equal(t, "reviewed", turnOutput(s, entries))

	s.IsFollowup = true
	assert.Equal(t, "last", turnOutput(s, entries))
}

func TestSessionRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")
	s := session.New()
	s.Query = "VIX"
	s.PushCode("print(1)")
	require.NoError(t, saveSession(dir, s))

	loaded, err := loadSession(dir, s.SessionID)
	require.NoError(t, err)
	assert.True(t, loaded.IsFollowup)
	assert.Equal(t, "VIX", loaded.Query)
	assert.Equal(t, "print(1)", loaded.CurrentCode)

	_, err = loadSession(dir, "missing")
	require.Error(t, err)
}

func TestFindOrCreatePath(t *testing.T) {
	var root yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte("llm:\n  model: gpt-4o\n"), &root))

	findOrCreatePath(&root, []string{"llm", "model"}, yaml.ScalarNode).Value = "qwen2"
	seq := findOrCreatePath(&root, blockedDomainsPath, yaml.SequenceNode)
	seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: "example.com"})
	assert.True(t, sequenceContains(seq, "example.com"))

	out, err := yaml.Marshal(&root)
	require.NoError(t, err)
	var decoded map[string]map[string]interface{}
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, "qwen2", decoded["llm"]["model"])
	assert.Equal(t, []interface{}{"example.com"}, decoded["scrape"]["blocked-domains"])

	assert.True(t, removeFromSequence(seq, "example.com"))
	assert.False(t, removeFromSequence(seq, "example.com"))
}

func TestFindOrCreatePathOnEmptyDocument(t *testing.T) {
	var root yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte{}, &root))
	findOrCreatePath(&root, []string{"search", "swarm"}, yaml.ScalarNode).Value = "false"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, writeConfig(path, &root))
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "search:\n  swarm: false\n", string(b))
}

func TestFormatSessionHistory(t *testing.T) {
	h := &audit.SessionHistory{
		Session: audit.Session{ID: 7, Query: "VIX", Status: audit.StatusCompleted, CreatedAt: time.Now(), FinalAnswer: "done"},
		Interactions: []audit.Interaction{
			{Agent: "PlannerAgent", Action: "plan", Result: "1. research"},
		},
		CodeExecutions: []audit.CodeExecution{{Code: "print(1)", Output: "1"}},
	}
	out := FormatSessionHistory(h)
	assert.Contains(t, out, "# Session 7")
	assert.Contains(t, out, "### PlannerAgent · plan")
	assert.Contains(t, out, "```\nprint(1)\n```")
	assert.Contains(t, out, "## Final answer\n\ndone")
}

func newTestApp(t *testing.T, client *llmtest.Scripted) *app.App {
	s := config.Defaults()
	dir := t.TempDir()
	s.Audit.Path = filepath.Join(dir, "audit.db")
	s.Knowledge.Backend = config.BackendNone
	s.Scrape.Renderer = config.RendererHTTP
	s.Sessions.Dir = filepath.Join(dir, "sessions")
	s.Export.Dir = filepath.Join(dir, "exports")

	a, err := app.New(s, app.WithLLM(client))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestChatFollowupsUntilExit(t *testing.T) {
	client := llmtest.NewScripted().
		On("Message: show me the code", "show_code").
		On("Message: versions", "show_code_history")
	a := newTestApp(t, client)

	s := a.NewSession()
	s.IsFollowup = true
	s.PushCode("print('vix')")

	out := &bytes.Buffer{}
	ui := &input.UI{
		Writer: out,
		Reader: strings.NewReader("versions\nexit\n"),
	}
	p := NewPrinter(out, false)
	require.NoError(t, chat(context.Background(), a, ui, p, s, "show me the code"))

	text := out.String()
	assert.Contains(t, text, "### ActionAgent · show_code\n\nprint('vix')")
	assert.Contains(t, text, "--- Version 1 ---")
	assert.Equal(t, 2, client.CallsMatching("Classify"))

	saved, err := loadSession(a.Settings.Sessions.Dir, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "show_code_history", saved.ActionIntent)
}

func TestChatStopsOnEOF(t *testing.T) {
	a := newTestApp(t, llmtest.NewScripted())
	ui := &input.UI{Writer: &bytes.Buffer{}, Reader: strings.NewReader("")}
	require.NoError(t, chat(context.Background(), a, ui, NewPrinter(&bytes.Buffer{}, false), a.NewSession(), ""))
}
