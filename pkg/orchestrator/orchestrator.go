// Package orchestrator runs a research turn: planning and step dispatch on the
// first turn, intent routing on follow-ups.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/go-go-golems/agentres/pkg/agents"
	"github.com/go-go-golems/agentres/pkg/audit"
	"github.com/go-go-golems/agentres/pkg/events"
	"github.com/go-go-golems/agentres/pkg/intent"
	"github.com/go-go-golems/agentres/pkg/knowledge"
	"github.com/go-go-golems/agentres/pkg/research"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	MotherAgent    = "MotherAgent"
	ActionAgent    = "ActionAgent"
	SystemAgent    = "System"
	KnowledgeAgent = "KnowledgeBase"

	ChainOfThoughtEnabled = "Chain-of-thought mode enabled for all agents."
	NoOutput              = "(No output)"
)

var (
	chainOfThoughtTriggers = []string{"step by step", "chain of thought", "explain your reasoning"}
	codeCriticTriggers     = []string{"critique the code", "code review", "code critic"}
	debateTriggers         = []string{"debate", "panel review"}
	reasoningTriggers      = []string{"reason", "why", "explain", "critique"}
	swarmTriggers          = []string{"search more deeply", "swarm"}
	deepScrapeTriggers     = []string{"scrape all sources", "deep scrape"}
)

type Orchestrator struct {
	registry  *agents.Registry
	router    *intent.Router
	knowledge knowledge.Store
	audit     audit.Log
	bus       *events.HistoryBus
}

type Option func(*Orchestrator)

// WithHistoryBus publishes every history entry while the turn runs.
func WithHistoryBus(bus *events.HistoryBus) Option {
	return func(o *Orchestrator) {
		o.bus = bus
	}
}

// WithRegistry replaces the capability table built from deps.
func WithRegistry(r *agents.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = r
	}
}

func New(deps agents.Deps, options ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:  agents.Default(deps),
		knowledge: deps.Knowledge,
		audit:     deps.Audit,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.knowledge == nil {
		o.knowledge = knowledge.NopStore{}
	}
	if o.audit == nil {
		o.audit = audit.Nop{}
	}
	o.router = intent.NewRouter(deps.LLM, deps.Prompts, o.registry)
	return o
}

// Run executes one turn. The state and the turn's history are returned on
// every path, including a research halt.
func (o *Orchestrator) Run(ctx context.Context, query string, s *session.State) (*session.State, []session.Entry) {
	if s == nil {
		s = session.New()
	}
	if s.Sources == nil {
		s.Sources = session.SourceSet{}
	}
	s.Query = query

	h := session.NewHistory()
	if o.bus != nil {
		o.bus.Attach(h)
	}

	if s.IsFollowup {
		o.followup(ctx, s, h, query)
	} else {
		o.firstTurn(ctx, s, h, query)
	}
	return s, h.Entries()
}

// RunCode runs the current code and reviews the result.
func (o *Orchestrator) RunCode(ctx context.Context, s *session.State) (*session.State, []session.Entry) {
	h := session.NewHistory()
	if o.bus != nil {
		o.bus.Attach(h)
	}
	o.step(ctx, s, h, session.AgentRunner)
	o.step(ctx, s, h, session.AgentReviewer)
	return s, h.Entries()
}

func (o *Orchestrator) firstTurn(ctx context.Context, s *session.State, h *session.History, query string) {
	lower := strings.ToLower(query)

	s.ResearchResults = nil
	s.ResearchDetails = nil
	s.CombinedResearch = ""
	s.GeneratedCode = ""

	if id, err := o.audit.CreateSession(ctx, query); err != nil {
		log.Warn().Err(err).Msg("could not create audit session")
	} else {
		s.AuditSessionID = id
	}

	exportRequested := false
	if cfg := agents.DetectExport(query); cfg != nil {
		if s.Export != nil {
			cfg.Dir, cfg.Name = s.Export.Dir, s.Export.Name
		}
		s.Export = cfg
		exportRequested = true
		log.Info().Str("format", cfg.Format).Str("code_ext", cfg.CodeExt).Msg("export requested")
	}

	if containsAny(lower, chainOfThoughtTriggers) || hasWord(lower, "cot") {
		s.ChainOfThought = true
		h.Append(MotherAgent, session.EntryControl, ChainOfThoughtEnabled)
	}

	if containsAny(lower, codeCriticTriggers) {
		o.step(ctx, s, h, session.AgentCodeCritic)
	}

	o.step(ctx, s, h, session.AgentPlanner)
	if s.Plan == nil {
		s.Plan = session.FallbackPlan(query)
	}

	for i := range s.Plan.Steps {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("turn cancelled")
			break
		}
		step := s.Plan.Steps[i]
		s.CurrentStep = &step

		o.step(ctx, s, h, session.AgentInternalMonologue)

		name, ok := step.AgentName()
		if !ok {
			log.Warn().Str("agent", step.Agent).Msg("skipping step for unknown agent")
			continue
		}
		if name == session.AgentResearcher {
			if o.researchStep(ctx, s, h) {
				s.CurrentStep = nil
				o.halt(ctx, s, h)
				return
			}
			continue
		}
		o.step(ctx, s, h, name)
	}
	s.CurrentStep = nil

	o.step(ctx, s, h, session.AgentAnswer)
	o.store(ctx, s, h)
	o.step(ctx, s, h, session.AgentReviewer)

	if s.NeedsCode && !s.Plan.Has(session.AgentCoder) {
		log.Info().Msg("code needed but not planned, running coder")
		o.step(ctx, s, h, session.AgentCoder)
	}

	if exportRequested {
		if o.dispatch(ctx, s, h, session.AgentReporter) {
			h.Append(agents.DisplayName(session.AgentReporter), session.EntryExport, s.ProjectReport)
		}
	}

	o.finish(ctx, s, audit.StatusCompleted)
}

// researchStep runs the current researcher step and reports whether the turn
// must halt for lack of research.
func (o *Orchestrator) researchStep(ctx context.Context, s *session.State, h *session.History) bool {
	if o.dispatch(ctx, s, h, session.AgentResearcher) {
		o.record(s, h, session.AgentResearcher)
	} else {
		s.ResearchResults = []session.TaskResult{{Query: s.CurrentStep.Task, Info: research.FailedResearch}}
		s.CombinedResearch = research.FailedResearchOnError
	}
	if details := session.RenderDetails(s.ResearchDetails); details != "" {
		h.Append(agents.DisplayName(session.AgentResearcher), session.EntryResearchDetails, details)
	}
	return research.IsResearchFailure(s.CombinedResearch)
}

func (o *Orchestrator) halt(ctx context.Context, s *session.State, h *session.History) {
	log.Warn().Str("query", s.Query).Msg("no usable research, halting turn")
	h.Append(SystemAgent, session.EntryError, research.HaltMessage)
	o.finish(ctx, s, audit.StatusHalted)
}

func (o *Orchestrator) store(ctx context.Context, s *session.State, h *session.History) {
	if strings.TrimSpace(s.Answer) == "" {
		return
	}
	ids, err := o.knowledge.Add(ctx, s.Answer, knowledge.ResearchMetadata(s))
	if err != nil {
		log.Warn().Err(err).Msg("could not store answer in knowledge base")
		h.Append(KnowledgeAgent, session.EntryStorage, "Failed to store in knowledge base: "+err.Error())
		return
	}
	h.Append(KnowledgeAgent, session.EntryStorage, fmt.Sprintf("Stored research result in knowledge base with ids: %v", ids))
}

func (o *Orchestrator) finish(ctx context.Context, s *session.State, status string) {
	if s.AuditSessionID == 0 {
		return
	}
	vars, err := json.Marshal(s)
	if err != nil {
		log.Warn().Err(err).Msg("could not encode session state for audit")
		vars = []byte("{}")
	}
	if err := o.audit.UpdateSession(ctx, s.AuditSessionID, status, s.FinalAnswer, string(vars)); err != nil {
		log.Warn().Err(err).Msg("could not update audit session")
	}
}

func (o *Orchestrator) followup(ctx context.Context, s *session.State, h *session.History, message string) {
	route := o.router.ClassifyAndRoute(ctx, s, message)
	defer func() {
		if err := o.audit.LogInteraction(ctx, s.AuditSessionID, ActionAgent, string(route.Intent), route.Detail); err != nil {
			log.Warn().Err(err).Msg("could not write audit log")
		}
	}()

	if route.Terminal() {
		output := route.Output
		if output == "" {
			output = NoOutput
		}
		h.Append(ActionAgent, session.EntryType(route.Intent), output)
		return
	}

	if route.Intent == intent.Answer || route.Intent == intent.Other {
		if o.toggle(ctx, s, h, strings.ToLower(message)) {
			return
		}
	}

	o.step(ctx, s, h, route.Next)
}

// toggle handles the keyword-driven follow-ups. It reports whether the
// message was handled.
func (o *Orchestrator) toggle(ctx context.Context, s *session.State, h *session.History, lower string) bool {
	switch {
	case containsAny(lower, debateTriggers):
		s.Debate = true
		o.step(ctx, s, h, session.AgentReasoner)
	case containsAny(lower, reasoningTriggers):
		s.Debate = false
		o.step(ctx, s, h, session.AgentReasoner)
	case containsAny(lower, swarmTriggers):
		s.SwarmDisabled = false
		o.step(ctx, s, h, session.AgentResearcher)
	case containsAny(lower, deepScrapeTriggers):
		s.DeepScrape = true
		o.step(ctx, s, h, session.AgentResearcher)
	default:
		return false
	}
	return true
}

// step dispatches a capability and records its output.
func (o *Orchestrator) step(ctx context.Context, s *session.State, h *session.History, name session.AgentName) {
	if o.dispatch(ctx, s, h, name) {
		o.record(s, h, name)
	}
}

// dispatch runs a capability. Failures, panics included, become a diagnostic
// on the state and an error entry in the history.
func (o *Orchestrator) dispatch(ctx context.Context, s *session.State, h *session.History, name session.AgentName) (ok bool) {
	a, found := o.registry.Get(name)
	if !found {
		o.fail(s, h, name, errors.Errorf("no capability registered for %s", name))
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("agent", string(name)).Bytes("stack", debug.Stack()).Msg("capability panicked")
			o.fail(s, h, name, errors.Errorf("panic: %v", r))
			ok = false
		}
	}()

	log.Debug().Str("agent", string(name)).Msg("dispatching")
	if err := a.Execute(ctx, s); err != nil {
		o.fail(s, h, name, err)
		return false
	}
	return true
}

func (o *Orchestrator) fail(s *session.State, h *session.History, name session.AgentName, err error) {
	log.Warn().Err(err).Str("agent", string(name)).Msg("capability failed")
	h.Append(agents.DisplayName(name), session.EntryError, s.RecordError(string(name), err))
}

func (o *Orchestrator) record(s *session.State, h *session.History, name session.AgentName) {
	typ, output := entryFor(s, name)
	if output == "" {
		output = NoOutput
	}
	e := session.Entry{Agent: agents.DisplayName(name), Type: typ, Output: output}
	if name == session.AgentPlanner {
		e.Plan = s.Plan.Clone()
	}
	h.AppendEntry(e)
}

func entryFor(s *session.State, name session.AgentName) (session.EntryType, string) {
	switch name {
	case session.AgentPlanner:
		return session.EntryPlan, s.Plan.String()
	case session.AgentResearcher:
		return session.EntryResearch, s.CombinedResearch
	case session.AgentCoder:
		return session.EntryCode, s.GeneratedCode
	case session.AgentFormatter:
		return session.EntryFormat, s.FormattedResearch
	case session.AgentAnswer:
		return session.EntryAnswer, s.Answer
	case session.AgentRunner:
		return session.EntryRunCode, s.RunOutput
	case session.AgentReporter:
		return session.EntryReport, s.ProjectReport
	case session.AgentPatcher:
		return session.EntryPatch, s.PatchOutput
	case session.AgentInternalMonologue:
		return session.EntryReasoning, s.InternalMonologue
	case session.AgentReviewer:
		return session.EntryReview, s.FinalAnswer
	case session.AgentReasoner:
		return session.EntryReasoning, s.Reasoning
	case session.AgentCodeCritic:
		return session.EntryReview, s.CodeCritique
	}
	return session.EntryAction, ""
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}

func hasWord(text, word string) bool {
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if w == word {
			return true
		}
	}
	return false
}
