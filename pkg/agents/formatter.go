package agents

import (
	"context"
	"strings"

	"github.com/go-go-golems/agentres/pkg/session"
)

const NoRelevantResearch = "No highly relevant research results found."

var codeKeywords = []string{"code", "python", "script", "implementation"}

// Formatter renders the research results as markdown and decides whether the
// request asks for code. It does not call the model.
type Formatter struct{}

var _ Agent = Formatter{}

func NewFormatter() Formatter {
	return Formatter{}
}

func (Formatter) Name() session.AgentName {
	return session.AgentFormatter
}

func (Formatter) Execute(ctx context.Context, s *session.State) error {
	lower := strings.ToLower(s.Query)

	relevant := []session.TaskResult{}
	for _, r := range s.ResearchResults {
		if strings.TrimSpace(r.Info) != "" {
			relevant = append(relevant, r)
		}
	}
	if len(relevant) == 0 {
		s.FormattedResearch = NoRelevantResearch
		s.NeedsCode = strings.Contains(lower, "code")
		return nil
	}

	parts := []string{"# Full Research Content\n"}
	for _, r := range relevant {
		parts = append(parts, "## Query: "+r.Query+"\n", r.Info, "\n---\n")
	}
	if s.Sources.Len() > 0 {
		parts = append(parts, "\n## Sources:")
		for _, src := range s.Sources.Sorted() {
			parts = append(parts, "- "+src)
		}
	}
	s.FormattedResearch = strings.Join(parts, "\n")

	s.NeedsCode = false
	for _, k := range codeKeywords {
		if strings.Contains(lower, k) {
			s.NeedsCode = true
			break
		}
	}
	return nil
}
