package cmds

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/go-go-golems/agentres/pkg/app"
	"github.com/go-go-golems/agentres/pkg/config"
	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func loadSettings() (*config.Settings, error) {
	s, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	if viper.GetBool("no-swarm") {
		s.Search.Swarm = false
	}
	return s, nil
}

func openApp() (*app.App, error) {
	s, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return app.New(s)
}

func sessionPath(dir, id string) string {
	return filepath.Join(dir, id+".json")
}

func saveSession(dir string, s *session.State) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "could not create session directory %s", dir)
	}
	path := sessionPath(dir, s.SessionID)
	if err := s.Save(path); err != nil {
		return err
	}
	log.Debug().Str("path", path).Msg("saved session")
	return nil
}

// loadSession restores a saved session and marks it as a follow-up.
func loadSession(dir, id string) (*session.State, error) {
	s, err := session.Load(sessionPath(dir, id))
	if err != nil {
		return nil, err
	}
	s.IsFollowup = true
	return s, nil
}

// Printer writes history entries and answers. On a terminal the markdown is
// rendered with glamour, otherwise it is written as is.
type Printer struct {
	w        io.Writer
	renderer *glamour.TermRenderer
}

func NewPrinter(w io.Writer, styled bool) *Printer {
	p := &Printer{w: w}
	if !styled {
		return p
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
	if err != nil {
		log.Warn().Err(err).Msg("could not create markdown renderer, printing plain text")
		return p
	}
	p.renderer = r
	return p
}

// NewStdoutPrinter styles output when stdout is a terminal.
func NewStdoutPrinter() *Printer {
	return NewPrinter(os.Stdout, isatty.IsTerminal(os.Stdout.Fd()))
}

func (p *Printer) Markdown(md string) {
	if p.renderer != nil {
		if out, err := p.renderer.Render(md); err == nil {
			_, _ = fmt.Fprint(p.w, out)
			return
		}
	}
	_, _ = fmt.Fprintln(p.w, md)
}

func (p *Printer) Entry(e session.Entry) {
	p.Markdown(FormatEntry(e))
}

func FormatEntry(e session.Entry) string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		out = "_(no output)_"
	}
	return fmt.Sprintf("### %s · %s\n\n%s\n", e.Agent, e.Type, out)
}

// runTurn executes one turn. With live set, entries are printed as they are
// recorded.
func runTurn(ctx context.Context, a *app.App, p *Printer, live bool, query string, s *session.State) (*session.State, []session.Entry, error) {
	if !live {
		s, entries := a.Run(ctx, query, s)
		return s, entries, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	updates, err := a.Bus.Subscribe(ctx)
	if err != nil {
		return nil, nil, err
	}

	eg := errgroup.Group{}
	eg.Go(func() error {
		for e := range updates {
			p.Entry(e)
		}
		return nil
	})

	s, entries := a.Run(ctx, query, s)
	cancel()
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}
	return s, entries, nil
}

// turnOutput is the result of a turn: the reviewed answer on a first turn,
// the last recorded output on a follow-up.
func turnOutput(s *session.State, entries []session.Entry) string {
	if s.IsFollowup && len(entries) > 0 {
		return entries[len(entries)-1].Output
	}
	if s.FinalAnswer != "" {
		return s.FinalAnswer
	}
	if s.Answer != "" {
		return s.Answer
	}
	if len(entries) > 0 {
		return entries[len(entries)-1].Output
	}
	return ""
}
