// Package templates renders the agent instructions and tool summaries kept
// as text/template files. Embedded assets can be overridden from a directory.
package templates

import (
	"bytes"
	"embed"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"text/template"

	"finvisor/pkg/errors"
)

//go:embed assets/**/*.tmpl
var embeddedFS embed.FS

const ext = ".tmpl"

// Template is one parsed template file
type Template struct {
	ID      string
	Content string

	parsed *template.Template
}

// Render executes the template against data
func (t *Template) Render(data any) (string, error) {
	var buf bytes.Buffer
	if err := t.parsed.Execute(&buf, data); err != nil {
		return "", errors.Wrapf(err, "render template %s", t.ID)
	}
	return buf.String(), nil
}

// Registry resolves templates by ID ("agents/finance_agent") across layered
// filesystems. Later layers shadow earlier ones.
type Registry struct {
	layers []fs.FS

	mu        sync.RWMutex
	templates map[string]*Template
}

// New parses every template found in layers
func New(layers ...fs.FS) (*Registry, error) {
	r := &Registry{layers: layers, templates: make(map[string]*Template)}
	for _, layer := range layers {
		err := fs.WalkDir(layer, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() || path.Ext(p) != ext {
				return err
			}
			return r.load(layer, p)
		})
		if err != nil {
			return nil, errors.Wrap(err, "load templates")
		}
	}
	return r, nil
}

// NewRegistry loads templates from a directory only
func NewRegistry(dir string) (*Registry, error) {
	return New(os.DirFS(dir))
}

// NewWithOverrides loads the embedded templates, then dir on top of them
func NewWithOverrides(dir string) (*Registry, error) {
	base, err := embedded()
	if err != nil {
		return nil, err
	}
	if dir == "" {
		return New(base)
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "template dir %s: %v", dir, err)
	}
	return New(base, os.DirFS(dir))
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
	defaultErr      error
)

// Get returns the registry of embedded templates
func Get() *Registry {
	defaultOnce.Do(func() {
		var base fs.FS
		if base, defaultErr = embedded(); defaultErr == nil {
			defaultRegistry, defaultErr = New(base)
		}
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultRegistry
}

// GetTemplate returns the template with id. Files added to a layer after
// construction are picked up on first use.
func (r *Registry) GetTemplate(id string) (*Template, error) {
	r.mu.RLock()
	tmpl, ok := r.templates[id]
	r.mu.RUnlock()
	if ok {
		return tmpl, nil
	}

	file := id + ext
	for i := len(r.layers) - 1; i >= 0; i-- {
		if _, err := fs.Stat(r.layers[i], file); err != nil {
			continue
		}
		if err := r.load(r.layers[i], file); err != nil {
			return nil, err
		}
		r.mu.RLock()
		tmpl = r.templates[id]
		r.mu.RUnlock()
		return tmpl, nil
	}

	return nil, errors.Wrapf(errors.ErrNotFound, "template %s", id)
}

// Render executes the template with id against data
func (r *Registry) Render(id string, data any) (string, error) {
	tmpl, err := r.GetTemplate(id)
	if err != nil {
		return "", err
	}
	return tmpl.Render(data)
}

// List returns the known template IDs, sorted
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) load(layer fs.FS, file string) error {
	id := strings.TrimSuffix(path.Clean(file), ext)

	content, err := fs.ReadFile(layer, file)
	if err != nil {
		return errors.Wrapf(err, "read template %s", id)
	}
	parsed, err := template.New(id).Funcs(Funcs).Option("missingkey=error").Parse(string(content))
	if err != nil {
		return errors.Wrapf(err, "parse template %s", id)
	}

	r.mu.Lock()
	r.templates[id] = &Template{ID: id, Content: string(content), parsed: parsed}
	r.mu.Unlock()
	return nil
}

func embedded() (fs.FS, error) {
	sub, err := fs.Sub(embeddedFS, "assets")
	if err != nil {
		return nil, errors.Wrap(err, "embedded templates")
	}
	return sub, nil
}
