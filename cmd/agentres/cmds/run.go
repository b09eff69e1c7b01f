package cmds

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/spf13/cobra"
)

func NewRunCommand() *cobra.Command {
	ret := &cobra.Command{
		Use:   "run <query...>",
		Short: "Research a question and print the reviewed answer",
		Long: "Plans the question, runs the research, coding and review steps and prints the answer.\n" +
			"With --session the query is handled as a follow-up of a saved session.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")
			quiet, _ := cmd.Flags().GetBool("quiet")
			query := strings.Join(args, " ")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			var s *session.State
			if sessionID != "" {
				s, err = loadSession(a.Settings.Sessions.Dir, sessionID)
				if err != nil {
					return err
				}
			} else {
				s = a.NewSession()
			}

			p := NewStdoutPrinter()
			s, entries, err := runTurn(cmd.Context(), a, p, !quiet, query, s)
			if err != nil {
				return err
			}
			if quiet || !s.IsFollowup {
				p.Markdown(turnOutput(s, entries))
			}

			if err := saveSession(a.Settings.Sessions.Dir, s); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "session: %s (audit %d)\n", s.SessionID, s.AuditSessionID)
			return nil
		},
	}
	ret.Flags().String("session", "", "Continue the saved session with this id")
	ret.Flags().BoolP("quiet", "q", false, "Only print the final output")
	return ret
}

func NewRunCodeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run-code <session-id>",
		Short: "Run the current code of a saved session and review the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			s, err := loadSession(a.Settings.Sessions.Dir, args[0])
			if err != nil {
				return err
			}
			p := NewStdoutPrinter()
			s, entries := a.Orchestrator.RunCode(cmd.Context(), s)
			for _, e := range entries {
				p.Entry(e)
			}
			return saveSession(a.Settings.Sessions.Dir, s)
		},
	}
}
