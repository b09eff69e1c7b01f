package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-go-golems/agentres/pkg/app"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

var exitWords = []string{"exit", "quit", "bye"}

func isExit(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	for _, w := range exitWords {
		if m == w {
			return true
		}
	}
	return false
}

func NewChatCommand() *cobra.Command {
	ret := &cobra.Command{
		Use:   "chat [query...]",
		Short: "Start an interactive research session",
		Long: "The first message is researched from scratch, every further message is a follow-up\n" +
			"on the same session. An empty line, exit, quit or bye ends the session.",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString("session")

			a, err := openApp()
			if err != nil {
				return err
			}
			defer func() {
				_ = a.Close()
			}()

			s := a.NewSession()
			if sessionID != "" {
				s, err = loadSession(a.Settings.Sessions.Dir, sessionID)
				if err != nil {
					return err
				}
			}

			ui := &input.UI{
				Writer: cmd.OutOrStdout(),
				Reader: os.Stdin,
			}
			return chat(cmd.Context(), a, ui, NewStdoutPrinter(), s, strings.Join(args, " "))
		},
	}
	ret.Flags().String("session", "", "Resume the saved session with this id")
	return ret
}

func chat(ctx context.Context, a *app.App, ui *input.UI, p *Printer, s *session.State, first string) error {
	message := first
	for {
		if message == "" {
			label := "Research question"
			if s.IsFollowup {
				label = "Follow-up"
			}
			answer, err := ui.Ask(label, &input.Options{HideOrder: true})
			if err != nil {
				// go-input does not wrap the read error
				if errors.Is(err, input.ErrInterrupted) || strings.Contains(err.Error(), io.EOF.Error()) {
					return nil
				}
				return err
			}
			// an empty answer is also what go-input returns at the end of input
			if strings.TrimSpace(answer) == "" {
				return nil
			}
			message = answer
		}
		if isExit(message) {
			return nil
		}

		var (
			entries []session.Entry
			err     error
		)
		s, entries, err = runTurn(ctx, a, p, true, message, s)
		if err != nil {
			return err
		}
		if !s.IsFollowup {
			p.Markdown(turnOutput(s, entries))
		}
		if err := saveSession(a.Settings.Sessions.Dir, s); err != nil {
			log.Warn().Err(err).Msg("could not save session")
		}
		_, _ = fmt.Fprintf(ui.Writer, "(session %s, audit %d)\n", s.SessionID, s.AuditSessionID)

		s.IsFollowup = true
		message = ""
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
