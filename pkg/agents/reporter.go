package agents

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/go-go-golems/agentres/pkg/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const (
	DefaultExportDir    = "exports"
	DefaultExportName   = "research_report"
	DefaultExportFormat = "md"
	DefaultCodeExt      = "py"
)

// ExportFormats are the formats a user can ask for, in detection order. pdf
// and docx are written as html.
var ExportFormats = []string{"pdf", "txt", "docx", "md", "html"}

var codeExtensions = []struct {
	ext   string
	words []string
}{
	{"py", []string{"python", "py"}},
	{"js", []string{"javascript", "js"}},
	{"java", []string{"java"}},
	{"cpp", []string{"cpp", "c++"}},
}

func words(text string) map[string]bool {
	ret := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+')
	}) {
		ret[w] = true
	}
	return ret
}

// DetectExport returns the export configuration requested in text, or nil
// when text names no export format.
func DetectExport(text string) *session.ExportConfig {
	ws := words(text)
	for _, f := range ExportFormats {
		if ws[f] {
			return &session.ExportConfig{Format: f, CodeExt: DetectCodeExt(text)}
		}
	}
	return nil
}

// DetectCodeExt guesses the file extension for exported code. Defaults to py.
func DetectCodeExt(text string) string {
	ws := words(text)
	for _, c := range codeExtensions {
		for _, w := range c.words {
			if ws[w] {
				return c.ext
			}
		}
	}
	return DefaultCodeExt
}

// Reporter writes the session's results to disk.
type Reporter struct {
	deps Deps
	md   goldmark.Markdown
}

var _ Agent = &Reporter{}

func NewReporter(deps Deps) *Reporter {
	return &Reporter{
		deps: deps,
		md:   goldmark.New(goldmark.WithExtensions(extension.GFM)),
	}
}

func (r *Reporter) Name() session.AgentName {
	return session.AgentReporter
}

// BuildReport assembles the markdown report for s.
func BuildReport(s *session.State) string {
	var sb strings.Builder
	title := s.Query
	if title == "" {
		title = "Research Report"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)

	answer := s.FinalAnswer
	if answer == "" {
		answer = s.Answer
	}
	if answer != "" {
		sb.WriteString("## Introduction\n\n" + answer + "\n\n")
	}
	if s.FormattedResearch != "" {
		sb.WriteString("## Theory\n\n" + s.FormattedResearch + "\n\n")
	}
	if code := reportCode(s); code != "" {
		sb.WriteString("## Python Code\n\n```python\n" + code + "\n```\n\n")
	}
	if s.RunOutput != "" {
		sb.WriteString("## Execution\n\n```\n" + s.RunOutput + "\n```\n\n")
	}
	if s.Sources.Len() > 0 {
		sb.WriteString("## Sources\n\n")
		for _, src := range s.Sources.Sorted() {
			sb.WriteString("- " + src + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func reportCode(s *session.State) string {
	if s.CurrentCode != "" {
		return s.CurrentCode
	}
	if code, ok := LastPythonBlock(s.GeneratedCode); ok {
		return code
	}
	return strings.TrimSpace(s.GeneratedCode)
}

func (r *Reporter) exportConfig(s *session.State) session.ExportConfig {
	cfg := session.ExportConfig{}
	if s.Export != nil {
		cfg = *s.Export
	}
	if cfg.Format == "" {
		cfg.Format = DefaultExportFormat
	}
	cfg.Format = strings.ToLower(strings.TrimPrefix(cfg.Format, "."))
	if cfg.Dir == "" {
		cfg.Dir = r.deps.ExportDir
	}
	if cfg.Name == "" {
		cfg.Name = DefaultExportName
	}
	if cfg.CodeExt == "" {
		cfg.CodeExt = DefaultCodeExt
	}
	cfg.CodeExt = strings.TrimPrefix(cfg.CodeExt, ".")
	return cfg
}

func (r *Reporter) Execute(ctx context.Context, s *session.State) error {
	cfg := r.exportConfig(s)
	files, err := r.export(s, cfg)
	if err != nil {
		s.ProjectReport = "Export failed: " + err.Error()
		log.Warn().Err(err).Str("format", cfg.Format).Msg("export failed")
		return nil
	}
	s.ProjectReport = fmt.Sprintf("Exported files: %v", files)
	r.deps.logInteraction(ctx, s, session.AgentReporter, "export", s.ProjectReport)
	return nil
}

func (r *Reporter) export(s *session.State, cfg session.ExportConfig) ([]string, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "could not create export directory %s", cfg.Dir)
	}

	report := BuildReport(s)
	var (
		body []byte
		ext  string
	)
	switch cfg.Format {
	case "md", "txt":
		body, ext = []byte(report), cfg.Format
	case "html", "pdf", "docx":
		if cfg.Format != "html" {
			log.Info().Str("format", cfg.Format).Msg("writing html instead of binary document format")
		}
		html, err := r.renderHTML(s.Query, report)
		if err != nil {
			return nil, err
		}
		body, ext = html, "html"
	default:
		return nil, errors.Errorf("unsupported export format %q", cfg.Format)
	}

	files := []string{}
	path := filepath.Join(cfg.Dir, cfg.Name+"."+ext)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return nil, errors.Wrapf(err, "could not write %s", path)
	}
	files = append(files, path)

	if code := reportCode(s); code != "" {
		codePath := filepath.Join(cfg.Dir, cfg.Name+"_code."+cfg.CodeExt)
		if err := os.WriteFile(codePath, []byte(code+"\n"), 0o644); err != nil {
			return files, errors.Wrapf(err, "could not write %s", codePath)
		}
		files = append(files, codePath)
	}
	return files, nil
}

func (r *Reporter) renderHTML(title, markdown string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	buf.WriteString(htmlEscape(title))
	buf.WriteString("</title>\n</head>\n<body>\n")
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return nil, errors.Wrap(err, "could not render report as html")
	}
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func htmlEscape(s string) string {
	return htmlReplacer.Replace(s)
}
