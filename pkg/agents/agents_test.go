package agents

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/agentres/pkg/llm/llmtest"
	"github.com/go-go-golems/agentres/pkg/sandbox"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(client *llmtest.Scripted) Deps {
	return Deps{
		LLM:        client,
		Sandbox:    &sandbox.ProcessExecutor{Interpreter: "sh", Extension: ".sh"},
		RunTimeout: 5 * time.Second,
	}.withDefaults()
}

func newState(query string) *session.State {
	s := session.New()
	s.Query = query
	return s
}

func TestParsePlanObject(t *testing.T) {
	p := NewPlanner(testDeps(llmtest.NewScripted()))
	plan, err := p.ParsePlan(`{"steps": [
		{"agent": "Researcher", "task": "VIX definition", "reasoning": "need facts"},
		{"agent": "coder", "task": "compute VIX in python"}
	], "summary": "two steps"}`)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "Researcher", plan.Steps[0].Agent)
	assert.Equal(t, "Coder", plan.Steps[1].Agent)
	assert.Equal(t, "two steps", plan.Summary)
}

func TestParsePlanListWithTrailingSummary(t *testing.T) {
	p := NewPlanner(testDeps(llmtest.NewScripted()))
	plan, err := p.ParsePlan(`Here is the plan:
[
  {"agent": "InternalMonologue", "task": "think"},
  {"agent": "Wizard", "task": "cast a spell"},
  {"agent": "Researcher", "task": ""},
  {"agent": "Researcher Agent", "task": "VIX formula"},
  {"summary": "research then think", "focus_area": "volatility"}
]
Good luck!`)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 2)
	assert.Equal(t, "InternalMonologue", plan.Steps[0].Agent)
	assert.Equal(t, "Researcher", plan.Steps[1].Agent)
	assert.Equal(t, "research then think", plan.Summary)
	assert.Equal(t, "volatility", plan.FocusArea)
}

func TestParsePlanRejectsGarbage(t *testing.T) {
	p := NewPlanner(testDeps(llmtest.NewScripted()))
	for _, reply := range []string{"no json here", `{"foo": 1}`, `[{"agent": "Nobody", "task": "x"}]`} {
		_, err := p.ParsePlan(reply)
		assert.ErrorIs(t, err, ErrPlanParse, reply)
	}
}

func TestPlannerFallsBackOnBadReply(t *testing.T) {
	client := llmtest.NewScripted().On("User request:", "I would rather not plan.")
	s := newState("What is the VIX?")

	require.NoError(t, NewPlanner(testDeps(client)).Execute(context.Background(), s))
	require.Len(t, s.Plan.Steps, 1)
	assert.Equal(t, "Research: What is the VIX?", s.Plan.Steps[0].Task)
	assert.Equal(t, []string{"Research: What is the VIX?"}, s.SearchQueries)
	assert.Contains(t, s.Errors["planner"], "planner unavailable due to error")
}

func TestPlannerSetsSearchQueries(t *testing.T) {
	client := llmtest.NewScripted().On("User request:",
		"```json\n"+`[{"agent":"researcher","task":"VIX index"},{"agent":"coder","task":"VIX code"}]`+"\n```")
	s := newState("What is the VIX?")

	require.NoError(t, NewPlanner(testDeps(client)).Execute(context.Background(), s))
	assert.Equal(t, []string{"VIX index"}, s.SearchQueries)
	assert.True(t, s.Plan.Has(session.AgentCoder))
	assert.Empty(t, s.Errors)
}

func TestFormatter(t *testing.T) {
	s := newState("Show me Python code for the VIX")
	s.ResearchResults = []session.TaskResult{
		{Query: "VIX", Info: "The VIX measures volatility.", Sources: []string{"https://b.example"}},
		{Query: "empty", Info: "  "},
	}
	s.AddSources("https://b.example", "https://a.example")

	require.NoError(t, NewFormatter().Execute(context.Background(), s))
	assert.True(t, s.NeedsCode)
	assert.True(t, strings.HasPrefix(s.FormattedResearch, "# Full Research Content\n"))
	assert.Contains(t, s.FormattedResearch, "## Query: VIX\n")
	assert.NotContains(t, s.FormattedResearch, "## Query: empty")
	assert.Contains(t, s.FormattedResearch, "## Sources:\n- https://a.example\n- https://b.example")
}

func TestFormatterWithoutResults(t *testing.T) {
	s := newState("history of the VIX")
	require.NoError(t, NewFormatter().Execute(context.Background(), s))
	assert.Equal(t, NoRelevantResearch, s.FormattedResearch)
	assert.False(t, s.NeedsCode)
}

func TestAnswerRetriesRefusedSections(t *testing.T) {
	client := llmtest.NewScripted().
		On("For educational purposes", "Softened section text.").
		On("Write the section", "I'm sorry, I cannot help with that.")
	s := newState("What is the VIX?")
	s.FormattedResearch = "The VIX is a volatility index."

	require.NoError(t, NewAnswer(testDeps(client)).Execute(context.Background(), s))
	assert.True(t, strings.HasPrefix(s.Answer, "# What is the VIX?\n\n## Introduction"))
	assert.Equal(t, 3, strings.Count(s.Answer, "Softened section text."))
	assert.NotContains(t, s.Answer, SectionRefused)
	assert.Equal(t, 0, s.CodeHistory.Len())
}

func TestAnswerGivesUpAfterRepeatedRefusals(t *testing.T) {
	client := llmtest.NewScripted()
	client.Default = "I'm sorry, I am unable to generate that."
	s := newState("What is the VIX?")

	require.NoError(t, NewAnswer(testDeps(client)).Execute(context.Background(), s))
	assert.Equal(t, 3, strings.Count(s.Answer, SectionRefused))
	assert.Equal(t, 9, len(client.Calls()))
}

func TestAnswerRecordsCode(t *testing.T) {
	client := llmtest.NewScripted().
		On(`Write the section "Python Code"`, "```python\nprint('vix')\n```")
	client.Default = "Some text."
	s := newState("What is the VIX and show me Python code to calculate it")

	require.NoError(t, NewAnswer(testDeps(client)).Execute(context.Background(), s))
	assert.Contains(t, s.Answer, "## Usage Example")
	assert.Equal(t, "print('vix')", s.CurrentCode)
	assert.Equal(t, []string{"print('vix')"}, s.CodeHistory.Versions())

	// same code again does not grow the history
	require.NoError(t, NewAnswer(testDeps(client)).Execute(context.Background(), s))
	assert.Equal(t, 1, s.CodeHistory.Len())
}

func TestAnswerFailsWhenEverySectionFails(t *testing.T) {
	client := llmtest.NewScripted().Fail("", errors.New("model down"))
	s := newState("What is the VIX?")
	assert.Error(t, NewAnswer(testDeps(client)).Execute(context.Background(), s))
	assert.Empty(t, s.Answer)
}

func TestCoderPerStepAppends(t *testing.T) {
	client := llmtest.NewScripted().
		On("Task: first", "```python\na = 1\n```").
		On("Task: second", "```python\nb = 2\n```")
	s := newState("code please")
	c := NewCoder(testDeps(client))

	s.CurrentStep = &session.Step{Agent: "Coder", Task: "first"}
	require.NoError(t, c.Execute(context.Background(), s))
	s.CurrentStep = &session.Step{Agent: "Coder", Task: "second"}
	require.NoError(t, c.Execute(context.Background(), s))

	assert.Equal(t, []string{"a = 1", "b = 2"}, PythonBlocks(s.GeneratedCode))
}

func TestCoderUsesFeedback(t *testing.T) {
	client := llmtest.NewScripted().On("Previous feedback on the code: use numpy", "```python\nimport numpy\n```")
	s := newState("code please")
	s.CodeFeedback = "use numpy"
	require.NoError(t, NewCoder(testDeps(client)).Execute(context.Background(), s))
	assert.Contains(t, s.GeneratedCode, "import numpy")
}

func TestRunnerSuccess(t *testing.T) {
	s := newState("run")
	s.GeneratedCode = "```python\necho hello\n```"

	require.NoError(t, NewRunner(testDeps(llmtest.NewScripted())).Execute(context.Background(), s))
	assert.True(t, s.ExecutionSuccessful)
	assert.Equal(t, "echo hello", s.CurrentCode)
	assert.Equal(t, RunSuccess+"\nOutput:\nhello", s.RunOutput)
}

func TestRunnerFailure(t *testing.T) {
	s := newState("run")
	s.CurrentCode = "echo broken >&2; exit 2"

	require.NoError(t, NewRunner(testDeps(llmtest.NewScripted())).Execute(context.Background(), s))
	assert.False(t, s.ExecutionSuccessful)
	assert.Equal(t, "broken", s.LastError)
	assert.Equal(t, RunFailure+"\nError:\nbroken", s.RunOutput)
}

func TestRunnerWithoutCode(t *testing.T) {
	s := newState("run")
	require.NoError(t, NewRunner(testDeps(llmtest.NewScripted())).Execute(context.Background(), s))
	assert.Equal(t, NoCodeToRun, s.RunOutput)
}

func TestPatcherFix(t *testing.T) {
	client := llmtest.NewScripted().On("The following code fails.", "Fixed:\n```python\nprint(1)\n```")
	s := newState("q")
	s.PushCode("print(1")
	s.LastError = "SyntaxError"

	require.NoError(t, NewPatcher(testDeps(client)).Execute(context.Background(), s))
	assert.Equal(t, PatchedCodeLabel+"print(1)", s.PatchOutput)
	assert.Equal(t, "print(1)", s.CurrentCode)
	assert.Equal(t, 2, s.CodeHistory.Len())
}

func TestPatcherNeedsCodeAndError(t *testing.T) {
	s := newState("q")
	s.PushCode("print(1)")
	require.NoError(t, NewPatcher(testDeps(llmtest.NewScripted())).Execute(context.Background(), s))
	assert.Equal(t, NothingToPatch, s.PatchOutput)
}

func TestPatcherWithoutCodeBlock(t *testing.T) {
	client := llmtest.NewScripted().On("Requested change:", "I changed nothing.")
	s := newState("q")
	s.PushCode("print(1)")

	require.NoError(t, NewPatcher(testDeps(client)).AddFeature(context.Background(), s, "add logging"))
	assert.Equal(t, NoCodeFromLLM, s.FeatureOutput)
	assert.Equal(t, 1, s.CodeHistory.Len())
}

func TestPatcherAddFeature(t *testing.T) {
	client := llmtest.NewScripted().On("Requested change: add logging", "```python\nimport logging\nprint(1)\n```")
	s := newState("q")
	s.PushCode("print(1)")

	require.NoError(t, NewPatcher(testDeps(client)).AddFeature(context.Background(), s, "add logging"))
	assert.Equal(t, FeatureCodeLabel+"import logging\nprint(1)", s.FeatureOutput)
	assert.Equal(t, 2, s.CodeHistory.Len())
}

func TestReviewerWithoutResults(t *testing.T) {
	client := llmtest.NewScripted()
	s := newState("q")
	s.FormattedResearch = NoRelevantResearch

	require.NoError(t, NewReviewer(testDeps(client)).Execute(context.Background(), s))
	assert.False(t, s.Approved)
	assert.Equal(t, NoResultsFinalAnswer, s.FinalAnswer)
	assert.Empty(t, client.Calls())
}

func TestReviewerStripsDuplicateCodeAndListsSources(t *testing.T) {
	block := "```python\nprint(1)\n```"
	client := llmtest.NewScripted().On("Draft answer:", "Summary text.\n"+block)
	s := newState("q")
	s.FormattedResearch = "research"
	s.Answer = "# q\n\n" + block
	s.AddSources("https://b.example", "https://a.example")

	require.NoError(t, NewReviewer(testDeps(client)).Execute(context.Background(), s))
	assert.True(t, s.Approved)
	assert.Equal(t, ReviewFeedbackOK, s.ReviewFeedback)
	assert.NotContains(t, s.FinalAnswer, block)
	assert.True(t, strings.HasSuffix(s.FinalAnswer, "## Sources Used:\n- https://a.example\n- https://b.example"))
}

func TestReviewerFallsBackWithoutModel(t *testing.T) {
	client := llmtest.NewScripted().Fail("Draft answer:", errors.New("model down"))
	s := newState("q")
	s.Answer = "The answer."

	require.NoError(t, NewReviewer(testDeps(client)).Execute(context.Background(), s))
	assert.True(t, s.Approved)
	assert.True(t, strings.HasPrefix(s.FinalAnswer, "[Summary]\nThe answer."))
	assert.Contains(t, s.FinalAnswer, "enable LLM summarization")
}

func TestReporterMarkdown(t *testing.T) {
	dir := t.TempDir()
	s := newState("VIX")
	s.FinalAnswer = "Final."
	s.PushCode("print(1)")
	s.AddSources("https://a.example")
	s.Export = &session.ExportConfig{Format: "md", Dir: dir}

	require.NoError(t, NewReporter(testDeps(llmtest.NewScripted())).Execute(context.Background(), s))
	assert.True(t, strings.HasPrefix(s.ProjectReport, "Exported files:"))

	b, err := os.ReadFile(filepath.Join(dir, DefaultExportName+".md"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "# VIX")
	assert.Contains(t, string(b), "- https://a.example")

	code, err := os.ReadFile(filepath.Join(dir, DefaultExportName+"_code.py"))
	require.NoError(t, err)
	assert.Equal(t, "print(1)\n", string(code))
}

func TestReporterPDFWritesHTML(t *testing.T) {
	dir := t.TempDir()
	s := newState("VIX <index>")
	s.Answer = "Some **bold** text."
	s.Export = &session.ExportConfig{Format: "pdf", Dir: dir, Name: "report"}

	require.NoError(t, NewReporter(testDeps(llmtest.NewScripted())).Execute(context.Background(), s))
	b, err := os.ReadFile(filepath.Join(dir, "report.html"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "<title>VIX &lt;index&gt;</title>")
	assert.Contains(t, string(b), "<strong>bold</strong>")
}

func TestReporterUnknownFormat(t *testing.T) {
	s := newState("VIX")
	s.Export = &session.ExportConfig{Format: "xls", Dir: t.TempDir()}
	require.NoError(t, NewReporter(testDeps(llmtest.NewScripted())).Execute(context.Background(), s))
	assert.True(t, strings.HasPrefix(s.ProjectReport, "Export failed:"))
}

func TestReasonerDebate(t *testing.T) {
	client := llmtest.NewScripted().
		On("Explain the reasoning step by step", "because").
		On("Draft answer:", "agreed").
		On("Review this code", "looks fine")
	s := newState("q")
	s.Debate = true
	s.PushCode("print(1)")

	require.NoError(t, NewReasoner(testDeps(client)).Execute(context.Background(), s))
	assert.Equal(t, "--- PANEL DEBATE ---\nReasoner: because\nReviewer: agreed\nCode Critic: looks fine\n--------------------", s.Reasoning)
}

func TestReasonerPlain(t *testing.T) {
	client := llmtest.NewScripted().On("Follow-up: why?", "because")
	s := newState("q")
	s.ActionDetail = "why?"
	require.NoError(t, NewReasoner(testDeps(client)).Execute(context.Background(), s))
	assert.Equal(t, "because", s.Reasoning)
	assert.Equal(t, float32(0.3), client.Calls()[0].Temperature)
}

func TestCodeCriticWithoutCode(t *testing.T) {
	s := newState("q")
	require.NoError(t, NewCodeCritic(testDeps(llmtest.NewScripted())).Execute(context.Background(), s))
	assert.Equal(t, NoCodeToReview, s.CodeCritique)
}

func TestInternalMonologueUsesCurrentStep(t *testing.T) {
	client := llmtest.NewScripted().On("Next step: VIX formula (handled by Researcher)", "I should find the formula.")
	s := newState("q")
	s.CurrentStep = &session.Step{Agent: "Researcher", Task: "VIX formula"}
	require.NoError(t, NewInternalMonologue(testDeps(client)).Execute(context.Background(), s))
	assert.Equal(t, "I should find the formula.", s.InternalMonologue)
}

func TestCodeBlocks(t *testing.T) {
	text := "a\n```python\nx = 1\n```\nb\n```python\ny = 2\n```\n```bash\nls\n```"
	assert.Equal(t, []string{"x = 1", "y = 2"}, PythonBlocks(text))
	last, ok := LastPythonBlock(text)
	require.True(t, ok)
	assert.Equal(t, "y = 2", last)

	other, ok := LastCodeBlock("```bash\nls -la\n```")
	require.True(t, ok)
	assert.Equal(t, "ls -la", other)

	_, ok = LastCodeBlock("no code")
	assert.False(t, ok)
}

func TestDefaultRegistryCoversEveryAgent(t *testing.T) {
	r := Default(Deps{})
	for _, name := range session.AllAgents {
		a, ok := r.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, name, a.Name())
	}
	assert.Equal(t, "InternalMonologueAgent", DisplayName(session.AgentInternalMonologue))
}

func TestDetectExport(t *testing.T) {
	assert.Nil(t, DetectExport("What is the VIX?"))
	assert.Nil(t, DetectExport("happy paths"))

	cfg := DetectExport("Explain the VIX and export it as PDF with javascript code")
	require.NotNil(t, cfg)
	assert.Equal(t, "pdf", cfg.Format)
	assert.Equal(t, "js", cfg.CodeExt)

	assert.Equal(t, "cpp", DetectCodeExt("write it in C++"))
	assert.Equal(t, "py", DetectCodeExt("save as txt"))
}
