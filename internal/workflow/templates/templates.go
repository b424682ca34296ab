// Package templates ships the starter workflows offered by the builders.
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/huy-cyno/workflow-builder-poc/internal/workflow"
	"github.com/huy-cyno/workflow-builder-poc/internal/workflow/document"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

type Template struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Sample      workflow.Context `json:"sample,omitempty"`
	Graph       *workflow.Graph  `json:"-"`
}

type header struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Sample      map[string]any `yaml:"sample"`
}

// Registry is a read-only set of templates. Graphs handed out are shared
// and must not be modified.
type Registry struct {
	byID  map[string]Template
	order []string
}

// Load reads every *.yaml file under fsys. Each file is a regular workflow
// document with id, name, description and sample keys on top.
func Load(fsys fs.FS) (*Registry, error) {
	r := &Registry{byID: map[string]Template{}}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".yaml") {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return err
		}
		tpl, err := parse(data)
		if err != nil {
			return fmt.Errorf("template %s: %w", path.Base(p), err)
		}
		if tpl.ID == "" {
			tpl.ID = strings.TrimSuffix(path.Base(p), ".yaml")
		}
		if _, dup := r.byID[tpl.ID]; dup {
			return fmt.Errorf("template %s: duplicate id %q", path.Base(p), tpl.ID)
		}
		r.byID[tpl.ID] = tpl
		r.order = append(r.order, tpl.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(r.order)
	return r, nil
}

func parse(data []byte) (Template, error) {
	var h header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return Template{}, err
	}
	g, err := document.Parse(data, document.FormatYAML)
	if err != nil {
		return Template{}, err
	}
	if _, err := workflow.NewIndex(g); err != nil {
		return Template{}, err
	}
	sample := workflow.Context(h.Sample)
	if sample == nil {
		sample = workflow.Context{}
	}
	return Template{ID: h.ID, Name: h.Name, Description: h.Description, Sample: sample, Graph: g}, nil
}

// List returns the templates ordered by id.
func (r *Registry) List() []Template {
	out := make([]Template, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Get(id string) (Template, bool) {
	t, ok := r.byID[id]
	return t, ok
}

var (
	builtinOnce sync.Once
	builtin     *Registry
)

// Builtin returns the templates compiled into the binary.
func Builtin() *Registry {
	builtinOnce.Do(func() {
		sub, err := fs.Sub(builtinFS, "builtin")
		if err != nil {
			panic(err)
		}
		r, err := Load(sub)
		if err != nil {
			panic(fmt.Sprintf("templates: builtin set is invalid: %v", err))
		}
		builtin = r
	})
	return builtin
}
