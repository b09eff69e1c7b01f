package agents

import (
	"context"

	"github.com/go-go-golems/agentres/pkg/research"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
)

// Researcher researches the current plan step, or every researcher step of
// the plan when no step is current. Results accumulate across steps.
type Researcher struct {
	deps Deps
}

var _ Agent = &Researcher{}

func NewResearcher(deps Deps) *Researcher {
	return &Researcher{deps: deps}
}

func (r *Researcher) Name() session.AgentName {
	return session.AgentResearcher
}

func (r *Researcher) Execute(ctx context.Context, s *session.State) error {
	if r.deps.Research == nil {
		return errors.New("no research aggregator configured")
	}

	var tasks []string
	if s.CurrentStep != nil {
		tasks = []string{s.CurrentStep.Task}
	} else {
		// a full pass starts from scratch
		s.ResearchResults = nil
		s.ResearchDetails = nil
		for _, step := range s.Plan.StepsFor(session.AgentResearcher) {
			tasks = append(tasks, step.Task)
		}
		if len(tasks) == 0 {
			tasks = []string{s.Query}
		}
	}

	opts := research.Options{Swarm: !s.SwarmDisabled, DeepScrape: s.DeepScrape}
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		result, detail := r.deps.Research.ResearchTask(ctx, task, opts)
		s.ResearchResults = append(s.ResearchResults, result)
		s.ResearchDetails = append(s.ResearchDetails, detail)
		s.AddSources(result.Sources...)
	}
	s.CombinedResearch = research.CombineResearch(s.ResearchResults)

	action := "web_research"
	if opts.Swarm {
		action = "swarm_web_research"
	}
	r.deps.logInteraction(ctx, s, session.AgentResearcher, action, research.Summary(s.ResearchResults, s.Sources))
	return nil
}
