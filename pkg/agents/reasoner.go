package agents

import (
	"context"
	"strings"

	"github.com/go-go-golems/agentres/pkg/prompts"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/rs/zerolog/log"
)

const NoCodeToReview = "[ERROR] No code found to review."

// Reasoner explains the reasoning behind the current answer. With
// State.Debate set it convenes a panel of reasoner, reviewer and code critic.
type Reasoner struct {
	deps   Deps
	critic *CodeCritic
}

var _ Agent = &Reasoner{}

func NewReasoner(deps Deps) *Reasoner {
	return &Reasoner{deps: deps, critic: NewCodeCritic(deps)}
}

func (r *Reasoner) Name() session.AgentName {
	return session.AgentReasoner
}

func (r *Reasoner) Execute(ctx context.Context, s *session.State) error {
	message := s.ActionDetail
	if message == "" {
		message = s.Query
	}
	researchText := s.FormattedResearch
	if researchText == "" {
		researchText = s.CombinedResearch
	}
	answer := s.FinalAnswer
	if answer == "" {
		answer = s.Answer
	}

	reasoning, err := r.deps.ask(ctx, "reasoner", prompts.Data{
		Query:    s.Query,
		Message:  message,
		Answer:   answer,
		Research: researchText,
	}, 0.3)
	if err != nil {
		return err
	}

	if !s.Debate {
		s.Reasoning = reasoning
		r.deps.logInteraction(ctx, s, session.AgentReasoner, "reason", message)
		return nil
	}

	review, err := r.deps.ask(ctx, "reviewer", prompts.Data{
		Query:    s.Query,
		Answer:   reasoning,
		Research: researchText,
	}, -1)
	if err != nil {
		log.Warn().Err(err).Msg("debate reviewer failed")
		review = s.RecordError("reviewer", err)
	}

	critique := NoCodeToReview
	if _, ok := FindCode(s); ok {
		if err := r.critic.Execute(ctx, s); err != nil {
			log.Warn().Err(err).Msg("debate code critic failed")
			critique = s.RecordError("code_critic", err)
		} else {
			critique = s.CodeCritique
		}
	}

	s.Reasoning = strings.Join([]string{
		"--- PANEL DEBATE ---",
		"Reasoner: " + reasoning,
		"Reviewer: " + review,
		"Code Critic: " + critique,
		"--------------------",
	}, "\n")
	r.deps.logInteraction(ctx, s, session.AgentReasoner, "debate", message)
	return nil
}

// InternalMonologue reflects on the current plan step before it runs.
type InternalMonologue struct {
	deps Deps
}

var _ Agent = &InternalMonologue{}

func NewInternalMonologue(deps Deps) *InternalMonologue {
	return &InternalMonologue{deps: deps}
}

func (m *InternalMonologue) Name() session.AgentName {
	return session.AgentInternalMonologue
}

func (m *InternalMonologue) Execute(ctx context.Context, s *session.State) error {
	data := prompts.Data{Query: s.Query, Task: s.Query, Agent: "unknown"}
	if step := s.CurrentStep; step != nil {
		data.Task = step.Task
		data.Agent = step.Agent
		data.Reasoning = step.Reasoning
	}
	thought, err := m.deps.ask(ctx, "internal_monologue", data, 0.3)
	if err != nil {
		return err
	}
	s.InternalMonologue = thought
	log.Debug().Str("agent", data.Agent).Str("thought", thought).Msg("internal monologue")
	return nil
}

// CodeCritic reviews the current code.
type CodeCritic struct {
	deps Deps
}

var _ Agent = &CodeCritic{}

func NewCodeCritic(deps Deps) *CodeCritic {
	return &CodeCritic{deps: deps}
}

func (c *CodeCritic) Name() session.AgentName {
	return session.AgentCodeCritic
}

func (c *CodeCritic) Execute(ctx context.Context, s *session.State) error {
	code, ok := FindCode(s)
	if !ok {
		s.CodeCritique = NoCodeToReview
		return nil
	}
	critique, err := c.deps.ask(ctx, "code_critic", prompts.Data{
		Code:    code,
		Context: s.Query,
	}, 0.2)
	if err != nil {
		return err
	}
	s.CodeCritique = critique
	c.deps.logInteraction(ctx, s, session.AgentCodeCritic, "critique_code", critique)
	return nil
}
