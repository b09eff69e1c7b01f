package agents

import (
	"context"
	"strings"

	"github.com/go-go-golems/agentres/pkg/knowledge"
	"github.com/go-go-golems/agentres/pkg/prompts"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	SectionRefused     = "(Section unavailable due to LLM refusal)"
	maxSectionAttempts = 3
)

type Section struct {
	Title    string
	Guidance string
}

var (
	baseSections = []Section{
		{"Introduction", "Explain what the subject is, its purpose and why it matters."},
		{"Theory/Background", "Describe the underlying concepts, definitions and how it works."},
		{"Key Details", "Cover the formulas, figures, procedures or steps the research describes. Use LaTeX for formulas and explain every variable."},
	}
	codeSections = []Section{
		{"Python Code", "Provide a full, well-documented Python implementation in a single ```python code block."},
		{"Usage Example", "Show how to use the code with sample data."},
	}
)

var refusalPhrases = []string{
	"i'm sorry",
	"constraints of this platform",
	"unable to generate",
	"cannot fulfill this request",
	"exceeds the character limit",
	"let me know how you'd like to proceed",
}

// IsRefusal reports whether a model reply declines to answer.
func IsRefusal(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range refusalPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Answer writes the answer one section at a time so a refusal only costs a
// section. The last python block of the answer becomes the current code.
type Answer struct {
	deps Deps
}

var _ Agent = &Answer{}

func NewAnswer(deps Deps) *Answer {
	return &Answer{deps: deps}
}

func (a *Answer) Name() session.AgentName {
	return session.AgentAnswer
}

// Sections returns the sections written for s.
func Sections(s *session.State) []Section {
	ret := append([]Section{}, baseSections...)
	if wantsCode(s) {
		ret = append(ret, codeSections...)
	}
	return ret
}

func wantsCode(s *session.State) bool {
	if s.NeedsCode || s.Plan.Has(session.AgentCoder) {
		return true
	}
	lower := strings.ToLower(s.Query)
	for _, k := range codeKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func (a *Answer) Execute(ctx context.Context, s *session.State) error {
	researchText := s.FormattedResearch
	if researchText == "" {
		researchText = s.CombinedResearch
	}

	kbContext := ""
	if s.IsFollowup {
		kbContext = knowledge.RelevantContext(ctx, a.deps.Knowledge, s.Query, knowledge.DefaultContextLimit)
	}

	parts := []string{}
	failures := 0
	sections := Sections(s)
	for _, sec := range sections {
		data := prompts.Data{
			Query:            s.Query,
			Section:          sec.Title,
			Task:             sec.Guidance,
			Research:         researchText,
			KnowledgeContext: kbContext,
			ChainOfThought:   s.ChainOfThought,
		}
		text, err := a.section(ctx, data)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			log.Warn().Err(err).Str("section", sec.Title).Msg("section synthesis failed")
			text = "(Section unavailable due to error: " + err.Error() + ")"
		}
		if s.ChainOfThought {
			log.Info().Str("section", sec.Title).Str("text", text).Msg("chain-of-thought section")
		}
		parts = append(parts, "## "+sec.Title+"\n\n"+text+"\n")
	}
	if failures == len(sections) {
		return errors.New("every answer section failed")
	}

	s.Answer = "# " + s.Query + "\n\n" + strings.Join(parts, "\n")

	if code, ok := LastPythonBlock(s.Answer); ok && code != "" {
		if tail, _ := s.CodeHistory.Current(); tail != code {
			s.PushCode(code)
		}
	} else {
		log.Warn().Msg("no python code block found in answer")
	}
	return nil
}

func (a *Answer) section(ctx context.Context, data prompts.Data) (string, error) {
	name := "answer_section"
	for i := 0; i < maxSectionAttempts; i++ {
		text, err := a.deps.ask(ctx, name, data, -1)
		if err != nil {
			return "", err
		}
		if !IsRefusal(text) {
			return text, nil
		}
		log.Debug().Str("section", data.Section).Int("attempt", i+1).Msg("model refused section, retrying with softer prompt")
		name = "answer_section_soft"
	}
	return SectionRefused, nil
}
