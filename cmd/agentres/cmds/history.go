package cmds

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-go-golems/agentres/pkg/audit"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func NewHistoryCommand() *cobra.Command {
	ret := &cobra.Command{
		Use:   "history <audit-session-id>",
		Short: "Print the audit trail of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output, _ := cmd.Flags().GetString("output")
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return errors.Wrapf(err, "invalid session id %q", args[0])
			}

			s, err := loadSettings()
			if err != nil {
				return err
			}
			l, err := audit.NewSQLiteLog(s.Audit.Path)
			if err != nil {
				return err
			}
			defer func() {
				_ = l.Close()
			}()

			h, err := l.SessionHistory(cmd.Context(), id)
			if err != nil {
				return err
			}

			switch output {
			case "json":
				b, err := json.MarshalIndent(h, "", "  ")
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			case "yaml":
				b, err := yaml.Marshal(h)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprint(cmd.OutOrStdout(), string(b))
			case "markdown":
				NewStdoutPrinter().Markdown(FormatSessionHistory(h))
			default:
				return errors.Errorf("unknown output format %q", output)
			}
			return nil
		},
	}
	ret.Flags().StringP("output", "o", "markdown", "Output format (markdown, json, yaml)")
	return ret
}

func FormatSessionHistory(h *audit.SessionHistory) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Session %d\n\n", h.Session.ID)
	fmt.Fprintf(&b, "- **Query:** %s\n", h.Session.Query)
	fmt.Fprintf(&b, "- **Status:** %s\n", h.Session.Status)
	fmt.Fprintf(&b, "- **Created:** %s\n\n", h.Session.CreatedAt.Format("2006-01-02 15:04:05"))

	if len(h.Interactions) > 0 {
		b.WriteString("## Interactions\n\n")
		for _, i := range h.Interactions {
			fmt.Fprintf(&b, "### %s · %s\n\n%s\n\n", i.Agent, i.Action, strings.TrimSpace(i.Result))
		}
	}
	if len(h.CodeExecutions) > 0 {
		b.WriteString("## Code executions\n\n")
		for _, c := range h.CodeExecutions {
			fmt.Fprintf(&b, "```\n%s\n```\n\n", strings.TrimSpace(c.Code))
			if c.Output != "" {
				fmt.Fprintf(&b, "Output:\n\n```\n%s\n```\n\n", strings.TrimSpace(c.Output))
			}
			if c.Error != "" {
				fmt.Fprintf(&b, "Error:\n\n```\n%s\n```\n\n", strings.TrimSpace(c.Error))
			}
		}
	}
	if h.Session.FinalAnswer != "" {
		fmt.Fprintf(&b, "## Final answer\n\n%s\n", h.Session.FinalAnswer)
	}
	return b.String()
}
