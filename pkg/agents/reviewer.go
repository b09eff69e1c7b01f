package agents

import (
	"context"
	"strings"

	"github.com/go-go-golems/agentres/pkg/prompts"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/rs/zerolog/log"
)

const (
	NoResultsFinalAnswer = "No highly relevant research results were found for your query. " +
		"Please try rephrasing or ask for a more specific aspect."
	ReviewFeedbackOK = "Relevant, filtered, and summarized content provided."
	fallbackNote     = "\n\n(Note: This is a direct summary of the answer and research findings. " +
		"For a more readable answer, please enable LLM summarization.)"
)

// Reviewer turns the answer into the final, source-attributed summary.
type Reviewer struct {
	deps Deps
}

var _ Agent = &Reviewer{}

func NewReviewer(deps Deps) *Reviewer {
	return &Reviewer{deps: deps}
}

func (r *Reviewer) Name() session.AgentName {
	return session.AgentReviewer
}

func noResults(text string) bool {
	return text == "" || strings.Contains(strings.ToLower(text), strings.ToLower(NoRelevantResearch))
}

func (r *Reviewer) Execute(ctx context.Context, s *session.State) error {
	if noResults(s.FormattedResearch) && noResults(s.Answer) {
		s.Approved = false
		s.FinalAnswer = NoResultsFinalAnswer
		return nil
	}

	researchText := s.FormattedResearch
	if researchText == "" {
		researchText = s.CombinedResearch
	}

	summary, err := r.deps.ask(ctx, "reviewer", prompts.Data{
		Query:          s.Query,
		Answer:         s.Answer,
		Research:       researchText,
		ChainOfThought: s.ChainOfThought,
	}, -1)
	if err == nil && strings.TrimSpace(summary) != "" {
		summary = StripDuplicateCode(summary, s.Answer)
	} else {
		if err != nil {
			log.Warn().Err(err).Msg("review summary failed, using the answer directly")
		}
		body := s.Answer
		if body == "" {
			body = researchText
		}
		summary = "[Summary]\n" + body + fallbackNote
	}

	if s.Sources.Len() > 0 {
		summary += "\n\n## Sources Used:"
		for _, src := range s.Sources.Sorted() {
			summary += "\n- " + src
		}
	}

	s.Approved = true
	s.ReviewFeedback = ReviewFeedbackOK
	s.FinalAnswer = summary
	r.deps.logInteraction(ctx, s, session.AgentReviewer, "review", ReviewFeedbackOK)
	return nil
}
