// Package prompts holds the prompt catalogue used by the agents. Prompts are
// text/template documents rendered with the sprig function map.
package prompts

import (
	_ "embed"
	"os"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalogue []byte

type Prompt struct {
	System      string  `yaml:"system"`
	Template    string  `yaml:"template"`
	Temperature float32 `yaml:"temperature"`

	tmpl *template.Template
}

// Data is the single data shape passed to every template. Fields a prompt
// does not use are simply left empty.
type Data struct {
	Query            string
	Message          string
	Task             string
	Agent            string
	Reasoning        string
	Agents           []string
	Schema           string
	ResearchContext  string
	KnowledgeContext string
	Research         string
	Section          string
	Answer           string
	Code             string
	Error            string
	Feature          string
	Feedback         string
	Context          string
	ChainOfThought   bool
	NeedsCode        bool
}

// Rendered is a prompt ready to be sent.
type Rendered struct {
	System      string
	User        string
	Temperature float32
}

type Catalogue struct {
	prompts map[string]*Prompt
}

// Parse reads a YAML catalogue and compiles every template.
func Parse(b []byte) (*Catalogue, error) {
	raw := map[string]*Prompt{}
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrap(err, "could not parse prompt catalogue")
	}
	for name, p := range raw {
		if p == nil || strings.TrimSpace(p.Template) == "" {
			return nil, errors.Errorf("prompt %s has no template", name)
		}
		t, err := template.New(name).
			Option("missingkey=error").
			Funcs(sprig.TxtFuncMap()).
			Parse(p.Template)
		if err != nil {
			return nil, errors.Wrapf(err, "could not parse template for prompt %s", name)
		}
		p.tmpl = t
	}
	return &Catalogue{prompts: raw}, nil
}

// Default returns the embedded catalogue.
func Default() *Catalogue {
	c, err := Parse(defaultCatalogue)
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads a catalogue from disk. Prompts missing from the file fall back to
// the embedded ones.
func Load(path string) (*Catalogue, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read prompts from %s", path)
	}
	overrides, err := Parse(b)
	if err != nil {
		return nil, err
	}
	c := Default()
	for name, p := range overrides.prompts {
		c.prompts[name] = p
	}
	return c, nil
}

func (c *Catalogue) Has(name string) bool {
	_, ok := c.prompts[name]
	return ok
}

func (c *Catalogue) Render(name string, data Data) (Rendered, error) {
	p, ok := c.prompts[name]
	if !ok {
		return Rendered{}, errors.Errorf("unknown prompt %s", name)
	}
	var sb strings.Builder
	if err := p.tmpl.Execute(&sb, data); err != nil {
		return Rendered{}, errors.Wrapf(err, "could not render prompt %s", name)
	}
	return Rendered{
		System:      strings.TrimSpace(p.System),
		User:        strings.TrimSpace(sb.String()),
		Temperature: p.Temperature,
	}, nil
}

// MustRender is for prompts whose data is fully controlled by the caller.
func (c *Catalogue) MustRender(name string, data Data) Rendered {
	r, err := c.Render(name, data)
	if err != nil {
		panic(err)
	}
	return r
}
