package agents

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/go-go-golems/agentres/pkg/knowledge"
	"github.com/go-go-golems/agentres/pkg/prompts"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

var ErrPlanParse = errors.New("could not parse plan")

var jsonFragmentRe = regexp.MustCompile(`(?s)(\[.*\]|\{.*\})`)

// PlanSchema is the JSON schema of a plan, as shown to the model and used to validate its reply.
func PlanSchema() string {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(&session.Plan{})
	s.Version = ""
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		panic(err)
	}
	return string(b)
}

type Planner struct {
	deps   Deps
	schema string
}

var _ Agent = &Planner{}

func NewPlanner(deps Deps) *Planner {
	return &Planner{deps: deps, schema: PlanSchema()}
}

func (p *Planner) Name() session.AgentName {
	return session.AgentPlanner
}

func (p *Planner) Execute(ctx context.Context, s *session.State) error {
	s.ResearchContext = knowledge.RelevantContext(ctx, p.deps.Knowledge, s.Query, knowledge.DefaultContextLimit)

	agents := make([]string, 0, len(session.PlannableAgents))
	for _, a := range session.PlannableAgents {
		agents = append(agents, string(a))
	}

	reply, err := p.deps.ask(ctx, "planner", prompts.Data{
		Query:           s.Query,
		ResearchContext: s.ResearchContext,
		Agents:          agents,
		Schema:          p.schema,
		ChainOfThought:  s.ChainOfThought,
	}, -1)

	var plan *session.Plan
	if err == nil {
		plan, err = p.ParsePlan(reply)
	}
	if err != nil {
		log.Warn().Err(err).Str("query", s.Query).Msg("planning failed, using fallback plan")
		s.RecordError(string(session.AgentPlanner), err)
		plan = session.FallbackPlan(s.Query)
	}

	s.Plan = plan
	s.SearchQueries = []string{}
	for _, step := range plan.StepsFor(session.AgentResearcher) {
		s.SearchQueries = append(s.SearchQueries, step.Task)
	}

	p.deps.logInteraction(ctx, s, session.AgentPlanner, "generate_plan", plan.String())
	return nil
}

// ParsePlan accepts either a bare list of steps or an object with steps,
// summary and focus_area. Prose around the JSON is ignored. Steps naming an
// unknown agent or without a task are dropped.
func (p *Planner) ParsePlan(reply string) (*session.Plan, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return nil, err
	}

	doc, err := normalizePlanDocument(raw)
	if err != nil {
		return nil, err
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "could not re-encode plan")
	}
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(p.schema), gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, errors.Wrap(err, "could not validate plan")
	}
	if !result.Valid() {
		msgs := []string{}
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		log.Debug().Strs("errors", msgs).Msg("plan does not match schema, keeping usable steps")
	}

	plan := &session.Plan{}
	if err := json.Unmarshal(b, plan); err != nil {
		return nil, errors.Wrap(ErrPlanParse, err.Error())
	}

	steps := []session.Step{}
	for _, step := range plan.Steps {
		step.Task = strings.TrimSpace(step.Task)
		name, ok := step.AgentName()
		if !ok || step.Task == "" {
			log.Debug().Str("agent", step.Agent).Str("task", step.Task).Msg("dropping unusable plan step")
			continue
		}
		step.Agent = name.Title()
		steps = append(steps, step)
	}
	if len(steps) == 0 {
		return nil, errors.Wrap(ErrPlanParse, "plan has no usable steps")
	}
	plan.Steps = steps
	return plan, nil
}

func extractJSON(reply string) (interface{}, error) {
	var v interface{}
	trimmed := strings.TrimSpace(reply)
	if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
		return v, nil
	}
	m := jsonFragmentRe.FindString(trimmed)
	if m == "" {
		return nil, errors.Wrap(ErrPlanParse, "no JSON found in reply")
	}
	if err := json.Unmarshal([]byte(m), &v); err != nil {
		return nil, errors.Wrap(ErrPlanParse, err.Error())
	}
	return v, nil
}

// normalizePlanDocument turns both accepted shapes into {"steps": [...], ...}.
// A trailing list element holding summary/focus_area is lifted to the top.
func normalizePlanDocument(raw interface{}) (map[string]interface{}, error) {
	switch v := raw.(type) {
	case map[string]interface{}:
		if _, ok := v["steps"].([]interface{}); !ok {
			return nil, errors.Wrap(ErrPlanParse, "plan object has no steps list")
		}
		return v, nil
	case []interface{}:
		doc := map[string]interface{}{}
		steps := []interface{}{}
		for _, item := range v {
			obj, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			if _, hasAgent := obj["agent"]; !hasAgent {
				for _, k := range []string{"summary", "focus_area"} {
					if s, ok := obj[k].(string); ok {
						doc[k] = s
					}
				}
				continue
			}
			steps = append(steps, obj)
		}
		doc["steps"] = steps
		return doc, nil
	default:
		return nil, errors.Wrap(ErrPlanParse, "plan is neither a list nor an object")
	}
}
