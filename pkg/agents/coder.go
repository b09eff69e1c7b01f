package agents

import (
	"context"
	"strings"

	"github.com/go-go-golems/agentres/pkg/prompts"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/rs/zerolog/log"
)

// Coder generates code for every coder step of the plan. Without coder
// steps it codes the query itself.
type Coder struct {
	deps Deps
}

var _ Agent = &Coder{}

func NewCoder(deps Deps) *Coder {
	return &Coder{deps: deps}
}

func (c *Coder) Name() session.AgentName {
	return session.AgentCoder
}

func (c *Coder) Execute(ctx context.Context, s *session.State) error {
	var tasks []string
	if s.CurrentStep != nil {
		tasks = []string{s.CurrentStep.Task}
	} else {
		for _, step := range s.Plan.StepsFor(session.AgentCoder) {
			tasks = append(tasks, step.Task)
		}
	}
	if len(tasks) == 0 {
		tasks = []string{s.Query}
	}

	researchText := s.FormattedResearch
	if researchText == "" {
		researchText = s.CombinedResearch
	}

	blocks := []string{}
	for _, task := range tasks {
		if strings.TrimSpace(task) == "" {
			continue
		}
		if s.ChainOfThought {
			log.Info().Str("task", task).Msg("chain-of-thought code step")
		}
		code, err := c.deps.ask(ctx, "coder", prompts.Data{
			Query:          s.Query,
			Task:           task,
			Research:       researchText,
			Feedback:       s.CodeFeedback,
			ChainOfThought: s.ChainOfThought,
		}, -1)
		if err != nil {
			return err
		}
		blocks = append(blocks, code)
	}

	code := strings.Join(blocks, "\n\n")
	if s.CurrentStep != nil && s.GeneratedCode != "" {
		s.GeneratedCode += "\n\n" + code
	} else {
		s.GeneratedCode = code
	}
	return nil
}
