// Package agents implements the capabilities a plan step or a follow-up can be
// routed to. Every capability reads what it needs from the session state and
// writes its results back into it.
package agents

import (
	"context"
	"time"

	"github.com/go-go-golems/agentres/pkg/audit"
	"github.com/go-go-golems/agentres/pkg/knowledge"
	"github.com/go-go-golems/agentres/pkg/llm"
	"github.com/go-go-golems/agentres/pkg/prompts"
	"github.com/go-go-golems/agentres/pkg/research"
	"github.com/go-go-golems/agentres/pkg/sandbox"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Agent is a single capability. Execute mutates s in place. A returned error
// means the capability could not produce its output at all; the caller turns
// it into a diagnostic and carries on.
type Agent interface {
	Name() session.AgentName
	Execute(ctx context.Context, s *session.State) error
}

// Deps are the collaborators shared by all capabilities.
type Deps struct {
	LLM        llm.Client
	Prompts    *prompts.Catalogue
	Research   *research.Aggregator
	Knowledge  knowledge.Store
	Audit      audit.Log
	Sandbox    sandbox.Executor
	RunTimeout time.Duration
	// ExportDir is used when the export request does not name a directory.
	ExportDir string
}

func (d Deps) withDefaults() Deps {
	if d.Prompts == nil {
		d.Prompts = prompts.Default()
	}
	if d.Knowledge == nil {
		d.Knowledge = knowledge.NopStore{}
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	if d.Sandbox == nil {
		d.Sandbox = sandbox.NewProcessExecutor("")
	}
	if d.RunTimeout <= 0 {
		d.RunTimeout = sandbox.DefaultTimeout
	}
	if d.ExportDir == "" {
		d.ExportDir = DefaultExportDir
	}
	return d
}

// ask renders a prompt and sends it. temperature < 0 uses the prompt's own.
func (d Deps) ask(ctx context.Context, name string, data prompts.Data, temperature float32) (string, error) {
	if d.LLM == nil {
		return "", errors.New("no llm client configured")
	}
	r, err := d.Prompts.Render(name, data)
	if err != nil {
		return "", err
	}
	if temperature < 0 {
		temperature = r.Temperature
	}
	return llm.Ask(ctx, d.LLM, r.System, r.User, temperature)
}

func (d Deps) logInteraction(ctx context.Context, s *session.State, agent session.AgentName, action, result string) {
	if err := d.Audit.LogInteraction(ctx, s.AuditSessionID, DisplayName(agent), action, result); err != nil {
		log.Warn().Err(err).Str("agent", string(agent)).Msg("could not write audit log")
	}
}

// DisplayName is the label used for history entries and the audit log.
func DisplayName(a session.AgentName) string {
	return a.Title() + "Agent"
}

// Registry is the closed dispatch table from agent name to capability.
type Registry struct {
	agents map[session.AgentName]Agent
}

func NewRegistry(agents ...Agent) *Registry {
	r := &Registry{agents: map[session.AgentName]Agent{}}
	for _, a := range agents {
		r.Register(a)
	}
	return r
}

// Register adds or replaces a capability.
func (r *Registry) Register(a Agent) {
	r.agents[a.Name()] = a
}

func (r *Registry) Get(name session.AgentName) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Default wires every capability to deps.
func Default(deps Deps) *Registry {
	deps = deps.withDefaults()
	return NewRegistry(
		NewPlanner(deps),
		NewResearcher(deps),
		NewCoder(deps),
		NewFormatter(),
		NewAnswer(deps),
		NewRunner(deps),
		NewReporter(deps),
		NewPatcher(deps),
		NewInternalMonologue(deps),
		NewReviewer(deps),
		NewReasoner(deps),
		NewCodeCritic(deps),
	)
}
