package agents

import (
	"context"

	"github.com/go-go-golems/agentres/pkg/prompts"
	"github.com/go-go-golems/agentres/pkg/session"
)

const (
	NothingToPatch   = "[ERROR] No code or error to patch."
	NoCodeToExtend   = "[ERROR] No code to extend."
	NoCodeFromLLM    = "[ERROR] No code block returned by LLM."
	PatchedCodeLabel = "[PATCHED CODE]\n"
	FeatureCodeLabel = "[UPDATED CODE]\n"
)

// Patcher repairs the current code using the last execution error. AddFeature
// extends it instead.
type Patcher struct {
	deps Deps
}

var _ Agent = &Patcher{}

func NewPatcher(deps Deps) *Patcher {
	return &Patcher{deps: deps}
}

func (p *Patcher) Name() session.AgentName {
	return session.AgentPatcher
}

// Execute fixes the current code against s.LastError.
func (p *Patcher) Execute(ctx context.Context, s *session.State) error {
	if s.CurrentCode == "" || s.LastError == "" {
		s.PatchOutput = NothingToPatch
		return nil
	}
	reply, err := p.deps.ask(ctx, "patcher_fix", prompts.Data{
		Code:  s.CurrentCode,
		Error: s.LastError,
		Query: s.Query,
	}, 0)
	if err != nil {
		return err
	}

	code, ok := LastPythonBlock(reply)
	if !ok || code == "" {
		s.PatchOutput = NoCodeFromLLM
		return nil
	}
	s.PushCode(code)
	s.PatchOutput = PatchedCodeLabel + code
	p.deps.logInteraction(ctx, s, session.AgentPatcher, "patch_code", "patched after: "+s.LastError)
	return nil
}

// AddFeature extends the current code with feature.
func (p *Patcher) AddFeature(ctx context.Context, s *session.State, feature string) error {
	if s.CurrentCode == "" {
		s.FeatureOutput = NoCodeToExtend
		return nil
	}
	if feature == "" {
		feature = s.Query
	}
	reply, err := p.deps.ask(ctx, "patcher_feature", prompts.Data{
		Code:    s.CurrentCode,
		Feature: feature,
	}, 0)
	if err != nil {
		return err
	}

	code, ok := LastPythonBlock(reply)
	if !ok || code == "" {
		s.FeatureOutput = NoCodeFromLLM
		return nil
	}
	s.PushCode(code)
	s.FeatureOutput = FeatureCodeLabel + code
	p.deps.logInteraction(ctx, s, session.AgentPatcher, "add_feature", feature)
	return nil
}
