package session

import (
	"strconv"
	"strings"

	"github.com/huandu/go-clone"
	"github.com/iancoleman/strcase"
)

// AgentName identifies one of the capabilities a plan step can be routed to.
type AgentName string

const (
	AgentPlanner           AgentName = "planner"
	AgentResearcher        AgentName = "researcher"
	AgentCoder             AgentName = "coder"
	AgentFormatter         AgentName = "formatter"
	AgentAnswer            AgentName = "answer"
	AgentRunner            AgentName = "runner"
	AgentReporter          AgentName = "reporter"
	AgentPatcher           AgentName = "patcher"
	AgentInternalMonologue AgentName = "internal_monologue"
	AgentReviewer          AgentName = "reviewer"
	AgentReasoner          AgentName = "reasoner"
	AgentCodeCritic        AgentName = "code_critic"
)

// AllAgents lists every capability in dispatch-table order.
var AllAgents = []AgentName{
	AgentPlanner,
	AgentResearcher,
	AgentCoder,
	AgentFormatter,
	AgentAnswer,
	AgentRunner,
	AgentReporter,
	AgentPatcher,
	AgentInternalMonologue,
	AgentReviewer,
	AgentReasoner,
	AgentCodeCritic,
}

// PlannableAgents are the capabilities the planner is allowed to assign steps to.
var PlannableAgents = []AgentName{
	AgentResearcher,
	AgentCoder,
	AgentFormatter,
	AgentAnswer,
	AgentRunner,
	AgentReporter,
	AgentPatcher,
	AgentInternalMonologue,
}

// ParseAgentName normalizes whatever spelling an LLM produced ("Researcher",
// "InternalMonologue", "Code Critic Agent") into an AgentName.
func ParseAgentName(s string) (AgentName, bool) {
	name := strcase.ToSnake(strings.TrimSpace(s))
	name = strings.TrimSuffix(name, "_agent")
	for _, a := range AllAgents {
		if string(a) == name {
			return a, true
		}
	}
	return "", false
}

// Title is the display name used in history entries.
func (a AgentName) Title() string {
	return strcase.ToCamel(string(a))
}

type Step struct {
	Agent     string `json:"agent"`
	Task      string `json:"task"`
	Reasoning string `json:"reasoning"`
}

// AgentName resolves the step's free-text agent field.
func (s Step) AgentName() (AgentName, bool) {
	return ParseAgentName(s.Agent)
}

type Plan struct {
	Steps     []Step `json:"steps"`
	Summary   string `json:"summary,omitempty"`
	FocusArea string `json:"focus_area,omitempty"`
}

// FallbackPlan is substituted whenever planning fails: a single research step over the raw query.
func FallbackPlan(query string) *Plan {
	return &Plan{
		Steps: []Step{{
			Agent:     "Researcher",
			Task:      "Research: " + query,
			Reasoning: "Default to research if planning fails.",
		}},
	}
}

// StepsFor returns the steps assigned to the given agent, in plan order.
func (p *Plan) StepsFor(name AgentName) []Step {
	if p == nil {
		return nil
	}
	var ret []Step
	for _, s := range p.Steps {
		if n, ok := s.AgentName(); ok && n == name {
			ret = append(ret, s)
		}
	}
	return ret
}

func (p *Plan) Has(name AgentName) bool {
	return len(p.StepsFor(name)) > 0
}

// Clone deep-copies the plan so history snapshots are not affected by later mutation.
func (p *Plan) Clone() *Plan {
	if p == nil {
		return nil
	}
	return clone.Clone(p).(*Plan)
}

func (p *Plan) String() string {
	if p == nil || len(p.Steps) == 0 {
		return "(empty plan)"
	}
	var sb strings.Builder
	for i, s := range p.Steps {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strconv.Itoa(i+1) + ". [" + s.Agent + "] " + s.Task)
		if s.Reasoning != "" {
			sb.WriteString("\n   reasoning: " + s.Reasoning)
		}
	}
	if p.Summary != "" {
		sb.WriteString("\nSummary: " + p.Summary)
	}
	if p.FocusArea != "" {
		sb.WriteString("\nFocus area: " + p.FocusArea)
	}
	return sb.String()
}
