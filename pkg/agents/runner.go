package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/rs/zerolog/log"
)

const (
	NoCodeToRun = "[ERROR] No code found to execute."
	RunSuccess  = "✓ CODE EXECUTED SUCCESSFULLY"
	RunFailure  = "✗ CODE EXECUTION FAILED"
)

// Runner executes the current code in the sandbox.
type Runner struct {
	deps Deps
}

var _ Agent = &Runner{}

func NewRunner(deps Deps) *Runner {
	return &Runner{deps: deps}
}

func (r *Runner) Name() session.AgentName {
	return session.AgentRunner
}

// FindCode returns the code to run: the current code, or else the last
// python block found in the generated code, the answer or the final answer.
func FindCode(s *session.State) (string, bool) {
	if s.CurrentCode != "" {
		return s.CurrentCode, true
	}
	code := ""
	for _, text := range []string{s.GeneratedCode, s.Answer, s.FinalAnswer, s.PatchOutput} {
		if b, ok := LastPythonBlock(text); ok && b != "" {
			code = b
		}
	}
	return code, code != ""
}

func (r *Runner) Execute(ctx context.Context, s *session.State) error {
	code, ok := FindCode(s)
	if !ok {
		s.RunOutput = NoCodeToRun
		return nil
	}
	s.CurrentCode = code

	res, err := r.deps.Sandbox.Execute(ctx, code, r.deps.RunTimeout)
	if err != nil {
		return err
	}

	stdout := strings.TrimSpace(res.Stdout)
	stderr := strings.TrimSpace(res.Stderr)
	s.ExecutionSuccessful = res.Success()
	s.LastError = stderr

	if err := r.deps.Audit.LogCodeExecution(ctx, s.AuditSessionID, code, stdout, stderr); err != nil {
		log.Warn().Err(err).Msg("could not log code execution")
	}
	r.deps.logInteraction(ctx, s, session.AgentRunner, "execute_code",
		fmt.Sprintf("Success: %t, Output: %d chars", s.ExecutionSuccessful, len(stdout)))

	if s.ExecutionSuccessful {
		if stdout == "" {
			stdout = "No output"
		}
		s.RunOutput = RunSuccess + "\nOutput:\n" + stdout
	} else {
		if stderr == "" {
			stderr = "Unknown error"
		}
		s.RunOutput = RunFailure + "\nError:\n" + stderr
	}
	return nil
}
