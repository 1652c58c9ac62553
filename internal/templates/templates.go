// Package templates provides reusable specification sets that can be applied
// to a project. Built-in templates are embedded YAML; more can be loaded from disk.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/metalagman/socratic/internal/model"
	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Item is one specification in a template.
type Item struct {
	Category model.Category `yaml:"category" json:"category"`
	Key      string         `yaml:"key"      json:"key"`
	Value    string         `yaml:"value"    json:"value"`
	Content  string         `yaml:"content"  json:"content,omitempty"`
}

// Template is a named specification set.
type Template struct {
	Name        string `yaml:"name"        json:"name"`
	Description string `yaml:"description" json:"description"`
	Items       []Item `yaml:"items"       json:"items"`
}

// Candidates converts the template items into specification candidates with
// the template confidence.
func (t Template) Candidates() []model.SpecCandidate {
	out := make([]model.SpecCandidate, 0, len(t.Items))
	for _, it := range t.Items {
		content := it.Content
		if content == "" {
			content = it.Value
		}
		out = append(out, model.SpecCandidate{
			Category:   it.Category,
			Key:        it.Key,
			Value:      it.Value,
			Content:    content,
			Confidence: model.TemplateConfidence,
			Reasoning:  "template " + t.Name,
		})
	}
	return out
}

// Parse decodes and checks a template.
func Parse(data []byte) (Template, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Template{}, fmt.Errorf("template: payload is empty")
	}
	var t Template
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Template{}, fmt.Errorf("template: decode: %w", err)
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return Template{}, fmt.Errorf("template: name is required")
	}
	if len(t.Items) == 0 {
		return Template{}, fmt.Errorf("template %s: no items", t.Name)
	}
	for i := range t.Items {
		it := &t.Items[i]
		it.Category = model.NormalizeCategory(string(it.Category))
		it.Key = strings.TrimSpace(it.Key)
		it.Value = strings.TrimSpace(it.Value)
		if it.Category == "" || it.Key == "" || it.Value == "" {
			return Template{}, fmt.Errorf("template %s: item %d needs category, key and value", t.Name, i)
		}
	}
	return t, nil
}

// Registry holds templates by name.
type Registry struct {
	byName map[string]Template
}

// Builtin returns a registry of the embedded templates.
func Builtin() (*Registry, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("template: read builtin: %w", err)
	}
	r := &Registry{byName: map[string]Template{}}
	for _, e := range entries {
		data, err := builtinFS.ReadFile(path.Join("builtin", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("template: read %s: %w", e.Name(), err)
		}
		t, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", e.Name(), err)
		}
		r.byName[t.Name] = t
	}
	return r, nil
}

// LoadDir adds every *.yaml template in dir, overriding built-ins of the same name.
// A missing dir is not an error.
func (r *Registry) LoadDir(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return fmt.Errorf("template: glob %s: %w", dir, err)
	}
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			return fmt.Errorf("template: read %s: %w", m, err)
		}
		t, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", m, err)
		}
		r.byName[t.Name] = t
	}
	return nil
}

// Get returns the named template.
func (r *Registry) Get(name string) (Template, error) {
	t, ok := r.byName[name]
	if !ok {
		return Template{}, fmt.Errorf("template %q: %w", name, model.ErrNotFound)
	}
	return t, nil
}

// List returns all templates sorted by name.
func (r *Registry) List() []Template {
	out := make([]Template, 0, len(r.byName))
	for _, t := range r.byName {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
