package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/agentres/pkg/agents"
	"github.com/go-go-golems/agentres/pkg/audit"
	"github.com/go-go-golems/agentres/pkg/events"
	"github.com/go-go-golems/agentres/pkg/knowledge"
	"github.com/go-go-golems/agentres/pkg/llm/llmtest"
	"github.com/go-go-golems/agentres/pkg/research"
	"github.com/go-go-golems/agentres/pkg/sandbox"
	"github.com/go-go-golems/agentres/pkg/search"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	vixQuery = "What is the VIX and show me Python code to calculate it"
	vixPage  = "The VIX volatility index definition: the VIX is the CBOE volatility index, " +
		"a real-time index of expected 30-day volatility of the S&P 500 derived from option prices. " +
		"Python code to calculate the VIX uses the variance swap formula."
	vixCode = "import math\nprint('vix')"
)

type staticSearcher struct {
	results []search.Result
}

func (s *staticSearcher) Name() string { return "static" }

func (s *staticSearcher) Search(ctx context.Context, query string) []search.Result {
	return s.results
}

type pageScraper struct {
	pages map[string]string
}

func (p *pageScraper) Scrape(ctx context.Context, url string) string {
	return p.pages[url]
}

type recordingStore struct {
	knowledge.NopStore
	mu    sync.Mutex
	added []string
	err   error
}

func (r *recordingStore) Add(ctx context.Context, text string, md knowledge.Metadata) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	r.added = append(r.added, text)
	return []string{"chunk-1"}, nil
}

func vixLLM() *llmtest.Scripted {
	client := llmtest.NewScripted().
		On("User request:", `[
			{"agent": "Researcher", "task": "VIX volatility index definition", "reasoning": "facts first"},
			{"agent": "Coder", "task": "Python code to calculate the VIX", "reasoning": "user asked for code"}
		]`).
		On("Next step:", "Thinking about the step.").
		On("Reply with the code in a single", "```python\nprint('coder')\n```").
		On(`Write the section "Python Code"`, "```python\n"+vixCode+"\n```").
		On("Draft answer:", "Summary of the VIX.")
	client.Default = "Section text about the VIX volatility index."
	return client
}

type fixture struct {
	llm   *llmtest.Scripted
	store *recordingStore
	audit *audit.SQLiteLog
	o     *Orchestrator
}

func newFixture(t *testing.T, client *llmtest.Scripted, results []search.Result, pages map[string]string) *fixture {
	log, err := audit.NewSQLiteLog(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	store := &recordingStore{}
	deps := agents.Deps{
		LLM:        client,
		Research:   research.NewAggregator(&pageScraper{pages: pages}, &staticSearcher{results: results}),
		Knowledge:  store,
		Audit:      log,
		Sandbox:    &sandbox.ProcessExecutor{Interpreter: "sh", Extension: ".sh"},
		RunTimeout: 5 * time.Second,
		ExportDir:  t.TempDir(),
	}
	return &fixture{llm: client, store: store, audit: log, o: New(deps)}
}

func vixFixture(t *testing.T) *fixture {
	return newFixture(t, vixLLM(),
		[]search.Result{{Title: "VIX", Link: "https://example.com/vix", Body: "snippet"}},
		map[string]string{"https://example.com/vix": vixPage})
}

func entryTypes(entries []session.Entry) []session.EntryType {
	ret := []session.EntryType{}
	for _, e := range entries {
		ret = append(ret, e.Type)
	}
	return ret
}

func TestFirstTurnEndToEnd(t *testing.T) {
	f := vixFixture(t)

	s, entries := f.o.Run(context.Background(), vixQuery, nil)

	require.NotNil(t, s.Plan)
	assert.True(t, s.Plan.Has(session.AgentResearcher))
	assert.True(t, s.Plan.Has(session.AgentCoder))
	assert.NotEmpty(t, s.CombinedResearch)
	assert.True(t, s.Sources.Contains("https://example.com/vix"))

	assert.Contains(t, s.Answer, "```python\n"+vixCode+"\n```")
	assert.Equal(t, []string{vixCode}, s.CodeHistory.Versions())
	assert.Equal(t, vixCode, s.CurrentCode)
	assert.Contains(t, s.GeneratedCode, "print('coder')")

	assert.True(t, s.Approved)
	assert.True(t, strings.HasPrefix(s.FinalAnswer, "Summary of the VIX."))
	assert.Contains(t, s.FinalAnswer, "## Sources Used:\n- https://example.com/vix")

	assert.Equal(t, []session.EntryType{
		session.EntryPlan,
		session.EntryReasoning, session.EntryResearch, session.EntryResearchDetails,
		session.EntryReasoning, session.EntryCode,
		session.EntryAnswer,
		session.EntryStorage,
		session.EntryReview,
	}, entryTypes(entries))
	assert.Equal(t, "PlannerAgent", entries[0].Agent)
	require.NotNil(t, entries[0].Plan)
	assert.NotSame(t, s.Plan, entries[0].Plan)
	assert.Equal(t, s.Plan.Steps, entries[0].Plan.Steps)
	s.Plan.Steps[0].Task = "changed later"
	assert.NotEqual(t, "changed later", entries[0].Plan.Steps[0].Task)

	assert.Equal(t, []string{s.Answer}, f.store.added)

	hist, err := f.audit.SessionHistory(context.Background(), s.AuditSessionID)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusCompleted, hist.Session.Status)
	assert.Equal(t, s.FinalAnswer, hist.Session.FinalAnswer)
	assert.NotEmpty(t, hist.Interactions)
}

func TestResearchFailureHalts(t *testing.T) {
	f := newFixture(t, vixLLM(), nil, nil)

	s, entries := f.o.Run(context.Background(), vixQuery, nil)

	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, SystemAgent, last.Agent)
	assert.Equal(t, session.EntryError, last.Type)
	assert.Equal(t, research.HaltMessage, last.Output)

	assert.Empty(t, s.Answer)
	assert.Empty(t, s.FinalAnswer)
	assert.Equal(t, 0, f.llm.CallsMatching("Write the section"))
	assert.Equal(t, 0, f.llm.CallsMatching("Draft answer:"))
	assert.Equal(t, 0, f.llm.CallsMatching("Reply with the code in a single"))
	assert.Empty(t, f.store.added)

	hist, err := f.audit.SessionHistory(context.Background(), s.AuditSessionID)
	require.NoError(t, err)
	assert.Equal(t, audit.StatusHalted, hist.Session.Status)
}

func TestShortResearchHalts(t *testing.T) {
	f := newFixture(t, vixLLM(),
		[]search.Result{{Title: "VIX", Link: "https://e.io"}},
		map[string]string{"https://e.io": "VIX index"})

	_, entries := f.o.Run(context.Background(), vixQuery, nil)
	assert.Equal(t, research.HaltMessage, entries[len(entries)-1].Output)
	assert.Equal(t, 0, f.llm.CallsMatching("Write the section"))
}

func TestCapabilityErrorDoesNotAbortTurn(t *testing.T) {
	failing := llmtest.NewScripted().
		Fail("Reply with the code in a single", errors.New("coder exploded")).
		On("User request:", `[{"agent":"Researcher","task":"VIX volatility index definition"},{"agent":"Coder","task":"VIX code"}]`).
		On("Next step:", "Thinking.").
		On("Draft answer:", "Summary of the VIX.")
	failing.Default = "Section text about the VIX volatility index."

	f := newFixture(t, failing,
		[]search.Result{{Title: "VIX", Link: "https://example.com/vix"}},
		map[string]string{"https://example.com/vix": vixPage})

	s, entries := f.o.Run(context.Background(), vixQuery, nil)

	assert.Contains(t, s.Errors["coder"], "coder exploded")
	var errorEntry *session.Entry
	for i := range entries {
		if entries[i].Type == session.EntryError {
			errorEntry = &entries[i]
		}
	}
	require.NotNil(t, errorEntry)
	assert.Equal(t, "CoderAgent", errorEntry.Agent)
	assert.True(t, s.Approved)
	assert.NotEmpty(t, s.FinalAnswer)
}

type panickingAgent struct{}

func (panickingAgent) Name() session.AgentName { return session.AgentFormatter }

func (panickingAgent) Execute(ctx context.Context, s *session.State) error {
	panic("boom")
}

func TestPanickingCapabilityIsContained(t *testing.T) {
	f := vixFixture(t)
	f.o.registry.Register(panickingAgent{})

	s := session.New()
	s.Plan = &session.Plan{}
	require.NotPanics(t, func() {
		f.o.step(context.Background(), s, session.NewHistory(), session.AgentFormatter)
	})
	assert.Contains(t, s.Errors["formatter"], "panic: boom")
}

func TestFollowupUndoSkipsPlanner(t *testing.T) {
	f := vixFixture(t)
	s, _ := f.o.Run(context.Background(), vixQuery, nil)
	require.Equal(t, 1, f.llm.CallsMatching("User request:"))

	f.llm.On("Message: add a plot", "add_feature: add a plot")
	f.llm.On("Requested change: add a plot", "```python\n"+vixCode+"\nplot()\n```")
	s.IsFollowup = true
	s, entries := f.o.Run(context.Background(), "add a plot", s)
	require.Len(t, entries, 1)
	assert.Equal(t, session.EntryType("add_feature"), entries[0].Type)
	assert.Equal(t, 2, s.CodeHistory.Len())

	f.llm.On("Message: undo", "undo")
	s, entries = f.o.Run(context.Background(), "undo", s)
	require.Len(t, entries, 1)
	assert.Equal(t, ActionAgent, entries[0].Agent)
	assert.Equal(t, session.UndoReverted, entries[0].Output)
	assert.Equal(t, "undo", s.ActionIntent)
	assert.Equal(t, vixCode, s.CurrentCode)
	assert.Equal(t, []string{vixCode}, s.CodeHistory.Versions())

	assert.Equal(t, 1, f.llm.CallsMatching("User request:"))
}

func TestFollowupUndoWithSingleVersion(t *testing.T) {
	f := vixFixture(t)
	s, _ := f.o.Run(context.Background(), vixQuery, nil)

	f.llm.On("Message: undo", "undo")
	s.IsFollowup = true
	s, entries := f.o.Run(context.Background(), "undo", s)
	assert.Equal(t, session.UndoNothing, entries[0].Output)
	assert.Equal(t, vixCode, s.CurrentCode)
	assert.Equal(t, 1, s.CodeHistory.Len())
}

func TestFollowupReasoningToggle(t *testing.T) {
	f := vixFixture(t)
	s, _ := f.o.Run(context.Background(), vixQuery, nil)

	f.llm.On("Explain the reasoning step by step", "Because of the formula.")
	s.IsFollowup = true
	s, entries := f.o.Run(context.Background(), "why does it use options?", s)
	require.Len(t, entries, 1)
	assert.Equal(t, "ReasonerAgent", entries[0].Agent)
	assert.Equal(t, session.EntryReasoning, entries[0].Type)
	assert.Equal(t, "Because of the formula.", s.Reasoning)
}

func TestFollowupClassificationBeatsKeywords(t *testing.T) {
	f := vixFixture(t)
	s, _ := f.o.Run(context.Background(), vixQuery, nil)
	s.Export = &session.ExportConfig{Dir: t.TempDir()}

	f.llm.On("Message: explain and export", "export: md")
	s.IsFollowup = true
	s, entries := f.o.Run(context.Background(), "explain and export", s)
	require.Len(t, entries, 1)
	assert.Equal(t, session.EntryType("export"), entries[0].Type)
	assert.Contains(t, s.ProjectReport, "Exported files:")
	assert.Equal(t, 0, f.llm.CallsMatching("Explain the reasoning step by step"))
}

func TestFollowupAnswer(t *testing.T) {
	f := vixFixture(t)
	s, _ := f.o.Run(context.Background(), vixQuery, nil)
	answers := f.llm.CallsMatching("Write the section")

	s.IsFollowup = true
	s, entries := f.o.Run(context.Background(), "tell me about VIX futures", s)
	require.Len(t, entries, 1)
	assert.Equal(t, session.EntryAnswer, entries[0].Type)
	assert.True(t, strings.HasPrefix(s.Answer, "# tell me about VIX futures"))
	assert.Greater(t, f.llm.CallsMatching("Write the section"), answers)
}

func TestFirstTurnExportAndChainOfThought(t *testing.T) {
	f := vixFixture(t)
	dir := t.TempDir()
	s := session.New()
	s.Export = &session.ExportConfig{Dir: dir}

	s, entries := f.o.Run(context.Background(), "Explain the VIX step by step and export to txt", s)

	assert.True(t, s.ChainOfThought)
	assert.Equal(t, MotherAgent, entries[0].Agent)
	assert.Equal(t, ChainOfThoughtEnabled, entries[0].Output)

	last := entries[len(entries)-1]
	assert.Equal(t, session.EntryExport, last.Type)
	_, err := os.Stat(filepath.Join(dir, agents.DefaultExportName+".txt"))
	assert.NoError(t, err)
}

func TestKnowledgeStoreFailureIsNotFatal(t *testing.T) {
	f := vixFixture(t)
	f.store.err = errors.New("disk full")

	s, entries := f.o.Run(context.Background(), vixQuery, nil)
	found := false
	for _, e := range entries {
		if e.Agent == KnowledgeAgent {
			found = true
			assert.Contains(t, e.Output, "disk full")
		}
	}
	assert.True(t, found)
	assert.True(t, s.Approved)
}

func TestRunCode(t *testing.T) {
	f := vixFixture(t)
	s := session.New()
	s.Query = "q"
	s.Answer = "answer"
	s.PushCode("echo 42")

	s, entries := f.o.RunCode(context.Background(), s)
	require.Len(t, entries, 2)
	assert.Equal(t, session.EntryRunCode, entries[0].Type)
	assert.Equal(t, agents.RunSuccess+"\nOutput:\n42", entries[0].Output)
	assert.Equal(t, session.EntryReview, entries[1].Type)
	assert.True(t, s.ExecutionSuccessful)
}

func TestHistoryIsPublished(t *testing.T) {
	bus := events.NewHistoryBus(nil)
	defer bus.Close()

	f := vixFixture(t)
	f.o.bus = bus

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	published, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	done := make(chan []session.Entry)
	go func() {
		got := []session.Entry{}
		for e := range published {
			got = append(got, e)
			if e.Type == session.EntryReview {
				break
			}
		}
		done <- got
	}()

	_, entries := f.o.Run(ctx, vixQuery, nil)
	got := <-done
	assert.Equal(t, entryTypes(entries), entryTypes(got))
}
