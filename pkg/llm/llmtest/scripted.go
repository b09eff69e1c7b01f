// Package llmtest provides a deterministic llm.Client for tests.
package llmtest

import (
	"context"
	"strings"
	"sync"

	"github.com/go-go-golems/agentres/pkg/llm"
	"github.com/pkg/errors"
)

// Rule answers any request whose concatenated messages contain Match.
type Rule struct {
	Match string
	Reply string
	Err   error
}

type Call struct {
	Messages    []llm.Message
	Temperature float32
}

// Prompt is the concatenation of all message contents.
func (c Call) Prompt() string {
	parts := make([]string, 0, len(c.Messages))
	for _, m := range c.Messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}

// Scripted matches rules in order. The first match wins; without a match the
// Default reply is used.
type Scripted struct {
	mu      sync.Mutex
	rules   []Rule
	Default string
	calls   []Call
}

var _ llm.Client = &Scripted{}

func NewScripted(rules ...Rule) *Scripted {
	return &Scripted{rules: rules}
}

func (s *Scripted) On(match, reply string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, Rule{Match: match, Reply: reply})
	return s
}

func (s *Scripted) Fail(match string, err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, Rule{Match: match, Err: err})
	return s
}

func (s *Scripted) Complete(ctx context.Context, messages []llm.Message, temperature float32) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	call := Call{Messages: append([]llm.Message(nil), messages...), Temperature: temperature}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)

	prompt := call.Prompt()
	for _, r := range s.rules {
		if strings.Contains(prompt, r.Match) {
			if r.Err != nil {
				return "", r.Err
			}
			return r.Reply, nil
		}
	}
	if s.Default == "" {
		return "", errors.Errorf("no scripted reply for prompt %q", truncate(prompt, 80))
	}
	return s.Default, nil
}

func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsMatching counts the calls whose prompt contains match.
func (s *Scripted) CallsMatching(match string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c.Prompt(), match) {
			n++
		}
	}
	return n
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
