// Package intent classifies follow-up messages and performs the matching
// action on the session.
package intent

import (
	"context"
	"strings"

	"github.com/go-go-golems/agentres/pkg/agents"
	"github.com/go-go-golems/agentres/pkg/llm"
	"github.com/go-go-golems/agentres/pkg/prompts"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Intent string

const (
	RunCode         Intent = "run_code"
	FixCode         Intent = "fix_code"
	AddFeature      Intent = "add_feature"
	Export          Intent = "export"
	ShowResearch    Intent = "show_research"
	ShowCode        Intent = "show_code"
	ShowSources     Intent = "show_sources"
	Undo            Intent = "undo"
	ShowCodeHistory Intent = "show_code_history"
	Answer          Intent = "answer"
	Other           Intent = "other"
)

var All = []Intent{
	RunCode, FixCode, AddFeature, Export, ShowResearch, ShowCode,
	ShowSources, Undo, ShowCodeHistory, Answer, Other,
}

const (
	NoCodeFound     = "[No code found]"
	NoResearchFound = "[No research found]"
)

func (i Intent) Valid() bool {
	for _, v := range All {
		if v == i {
			return true
		}
	}
	return false
}

// ParseIntent reads the first line of a classifier reply as "intent" or
// "intent: detail". Anything unrecognized becomes Other.
func ParseIntent(reply string) (Intent, string) {
	line := strings.TrimSpace(reply)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = strings.ToLower(strings.TrimSpace(line))

	label, detail := line, ""
	if i := strings.IndexByte(line, ':'); i >= 0 {
		label, detail = line[:i], strings.TrimSpace(line[i+1:])
	}
	label = strings.Trim(strings.TrimSpace(label), "'\"`.*")
	label = strings.ReplaceAll(label, " ", "_")

	ret := Intent(label)
	if !ret.Valid() {
		log.Debug().Str("reply", reply).Msg("unrecognized intent, treating as other")
		return Other, detail
	}
	return ret, detail
}

// Route is the outcome of a follow-up. Output is set when the action produced
// something to show. Next names the capability the caller must run when the
// router did not handle the message itself.
type Route struct {
	Intent Intent
	Detail string
	Output string
	Next   session.AgentName
}

// Terminal reports whether the router fully handled the message.
func (r Route) Terminal() bool {
	return r.Next == ""
}

type featureAdder interface {
	AddFeature(ctx context.Context, s *session.State, feature string) error
}

// Router is the follow-up action agent.
type Router struct {
	llm      llm.Client
	prompts  *prompts.Catalogue
	registry *agents.Registry
}

func NewRouter(client llm.Client, catalogue *prompts.Catalogue, registry *agents.Registry) *Router {
	if catalogue == nil {
		catalogue = prompts.Default()
	}
	return &Router{llm: client, prompts: catalogue, registry: registry}
}

// Classify asks the model for the intent of message. Failures classify as Other.
func (r *Router) Classify(ctx context.Context, message string) (Intent, string) {
	if r.llm == nil {
		return Other, ""
	}
	rendered, err := r.prompts.Render("intent", prompts.Data{Message: message})
	if err != nil {
		log.Error().Err(err).Msg("could not render intent prompt")
		return Other, ""
	}
	reply, err := llm.Ask(ctx, r.llm, rendered.System, rendered.User, rendered.Temperature)
	if err != nil {
		log.Error().Err(err).Msg("intent classification failed")
		return Other, ""
	}
	return ParseIntent(reply)
}

// ClassifyAndRoute classifies message, records the intent on s and performs
// the action.
func (r *Router) ClassifyAndRoute(ctx context.Context, s *session.State, message string) Route {
	in, detail := r.Classify(ctx, message)
	s.ActionIntent = string(in)
	s.ActionDetail = detail
	log.Info().Str("intent", string(in)).Str("detail", detail).Msg("follow-up classified")

	route := Route{Intent: in, Detail: detail}
	var err error
	switch in {
	case RunCode:
		err = r.run(ctx, session.AgentRunner, s)
		route.Output = s.RunOutput
	case FixCode:
		err = r.run(ctx, session.AgentPatcher, s)
		route.Output = s.PatchOutput
	case AddFeature:
		err = r.addFeature(ctx, s, detail)
		route.Output = s.FeatureOutput
	case Export:
		s.Export = exportConfig(s, detail, message)
		err = r.run(ctx, session.AgentReporter, s)
		route.Output = s.ProjectReport
	case ShowCode:
		route.Output = NoCodeFound
		if s.CurrentCode != "" {
			route.Output = s.CurrentCode
		}
	case ShowResearch:
		route.Output = NoResearchFound
		switch {
		case s.FormattedResearch != "":
			route.Output = s.FormattedResearch
		case s.CombinedResearch != "":
			route.Output = s.CombinedResearch
		}
	case ShowCodeHistory:
		route.Output = s.CodeHistory.Render()
	case Undo:
		route.Output = undo(s)
	case ShowSources:
		route.Next = session.AgentReviewer
	default:
		route.Next = session.AgentAnswer
	}

	if err != nil {
		route.Output = s.RecordError(string(in), err)
		log.Warn().Err(err).Str("intent", string(in)).Msg("follow-up action failed")
	}
	return route
}

func (r *Router) run(ctx context.Context, name session.AgentName, s *session.State) error {
	if r.registry == nil {
		return errors.Errorf("no %s capability configured", name)
	}
	a, ok := r.registry.Get(name)
	if !ok {
		return errors.Errorf("no %s capability configured", name)
	}
	return a.Execute(ctx, s)
}

func (r *Router) addFeature(ctx context.Context, s *session.State, feature string) error {
	if r.registry == nil {
		return errors.New("no patcher capability configured")
	}
	a, ok := r.registry.Get(session.AgentPatcher)
	if !ok {
		return errors.New("no patcher capability configured")
	}
	fa, ok := a.(featureAdder)
	if !ok {
		return errors.New("patcher cannot add features")
	}
	return fa.AddFeature(ctx, s, feature)
}

func undo(s *session.State) string {
	code, ok := s.CodeHistory.Undo()
	if !ok {
		return session.UndoNothing
	}
	s.CurrentCode = code
	return session.UndoReverted
}

func exportConfig(s *session.State, detail, message string) *session.ExportConfig {
	cfg := agents.DetectExport(detail)
	if cfg == nil {
		cfg = agents.DetectExport(message)
	}
	if cfg == nil {
		if s.Export != nil {
			return s.Export
		}
		return &session.ExportConfig{CodeExt: agents.DetectCodeExt(message)}
	}
	if s.Export != nil {
		cfg.Dir = s.Export.Dir
		cfg.Name = s.Export.Name
	}
	return cfg
}
