package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"gopkg.in/yaml.v3"
)

const (
	AnswerGeneration = "answer_generation"
	ChunkSummary     = "chunk_summary"
	DocumentSummary  = "document_summary"
	Triage           = "triage"
)

//go:embed prompts.yaml
var defaultTemplates []byte

type Template struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// Rendered is a prompt ready to send to a completion service.
type Rendered struct {
	System string
	User   string
}

// Citation identifies one context passage by its bracketed index.
type Citation struct {
	Index      int
	ChunkID    string
	DocumentID string
	Position   int
}

type AnswerData struct {
	Query     string
	Context   string
	Citations []Citation
}

type SummaryData struct {
	DocumentID string
	Text       string
}

type TriageData struct {
	Query string
	Scope string
}

type compiled struct {
	system *template.Template
	user   *template.Template
}

type Set struct {
	templates map[string]compiled
}

// Load parses the built-in templates and, when path is set, overrides
// entries with the ones defined in that YAML file.
func Load(path string) (*Set, error) {
	defs, err := decode(defaultTemplates)
	if err != nil {
		return nil, fmt.Errorf("built-in prompts: %w", err)
	}
	if path != "" {
		raw, err := os.ReadFile(path) // #nosec G304 -- operator supplied template file
		if err != nil {
			return nil, fmt.Errorf("read prompt templates: %w", err)
		}
		overrides, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for name, t := range overrides {
			defs[name] = t
		}
	}
	return compile(defs)
}

// Default returns the built-in templates. It panics if they do not parse.
func Default() *Set {
	s, err := Load("")
	if err != nil {
		panic(err)
	}
	return s
}

func decode(raw []byte) (map[string]Template, error) {
	defs := map[string]Template{}
	if err := yaml.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("decode prompt templates: %w", err)
	}
	return defs, nil
}

func compile(defs map[string]Template) (*Set, error) {
	s := &Set{templates: make(map[string]compiled, len(defs))}
	for name, def := range defs {
		if def.User == "" {
			return nil, fmt.Errorf("prompt %q: user template is empty", name)
		}
		sys, err := parse(name+".system", def.System)
		if err != nil {
			return nil, err
		}
		usr, err := parse(name+".user", def.User)
		if err != nil {
			return nil, err
		}
		s.templates[name] = compiled{system: sys, user: usr}
	}
	return s, nil
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", name, err)
	}
	return t, nil
}

func (s *Set) Names() []string {
	names := make([]string, 0, len(s.templates))
	for n := range s.templates {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Set) Render(name string, data any) (Rendered, error) {
	c, ok := s.templates[name]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown prompt %q", name)
	}
	var sys, usr bytes.Buffer
	if err := c.system.Execute(&sys, data); err != nil {
		return Rendered{}, fmt.Errorf("render prompt %s: %w", name, err)
	}
	if err := c.user.Execute(&usr, data); err != nil {
		return Rendered{}, fmt.Errorf("render prompt %s: %w", name, err)
	}
	return Rendered{System: sys.String(), User: usr.String()}, nil
}
