package prompts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"call-quality-eval/backend/internal/apierr"
)

// Document is the prompt configuration shipped with each deployment.
type Document struct {
	Categories        Listings                     `json:"categories" yaml:"categories"`
	ProductCategories Listings                     `json:"product_categories" yaml:"product_categories"`
	Examples          map[string][]string          `json:"examples" yaml:"examples"`
	Prompts           map[string]map[string]string `json:"prompts" yaml:"prompts"`

	// nullPrompts holds "group.name" for prompts written as null, which read
	// back as "" from Prompts.
	nullPrompts map[string]bool
}

// documentFields decodes a Document without recursing into its unmarshalers.
type documentFields Document

type promptPresence struct {
	Prompts map[string]map[string]*string `json:"prompts" yaml:"prompts"`
}

// UnmarshalJSON decodes the document and remembers null prompts.
func (d *Document) UnmarshalJSON(b []byte) error {
	var fields documentFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var presence promptPresence
	if err := json.Unmarshal(b, &presence); err != nil {
		return err
	}
	*d = Document(fields)
	d.nullPrompts = presence.nulls()
	return nil
}

// UnmarshalYAML decodes the document and remembers null prompts.
func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	var fields documentFields
	if err := node.Decode(&fields); err != nil {
		return err
	}
	var presence promptPresence
	if err := node.Decode(&presence); err != nil {
		return err
	}
	*d = Document(fields)
	d.nullPrompts = presence.nulls()
	return nil
}

func (p promptPresence) nulls() map[string]bool {
	out := map[string]bool{}
	for group, prompts := range p.Prompts {
		for name, value := range prompts {
			if value == nil {
				out[group+"."+name] = true
			}
		}
	}
	return out
}

// PromptIsNull reports whether prompts.<group>.<name> was written as null.
func (d *Document) PromptIsNull(group, name string) bool {
	return d.nullPrompts[group+"."+name]
}

// Listing is one named entry of a taxonomy section.
type Listing struct {
	Name  string
	Items []string
}

// Listings keeps taxonomy entries in document order.
type Listings []Listing

// Names returns the entry names in document order.
func (l Listings) Names() []string {
	out := make([]string, 0, len(l))
	for _, entry := range l {
		out = append(out, entry.Name)
	}
	return out
}

// UnmarshalJSON decodes an object of string lists without losing key order.
func (l *Listings) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*l = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("listing section must be an object, got %v", tok)
	}
	out := Listings{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("listing key must be a string, got %v", keyTok)
		}
		var items []string
		if err := dec.Decode(&items); err != nil {
			return fmt.Errorf("listing %q: %w", name, err)
		}
		out = append(out, Listing{Name: name, Items: items})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

// UnmarshalYAML decodes a mapping of string sequences without losing key order.
func (l *Listings) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode && node.Tag == "!!null" {
		*l = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: listing section must be a mapping", node.Line)
	}
	out := make(Listings, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var items []string
		if err := node.Content[i+1].Decode(&items); err != nil {
			return fmt.Errorf("listing %q: %w", node.Content[i].Value, err)
		}
		out = append(out, Listing{Name: node.Content[i].Value, Items: items})
	}
	*l = out
	return nil
}

// PromptGroup returns prompts.<group>.
func (d *Document) PromptGroup(group string) (map[string]string, error) {
	if d.Prompts == nil {
		return nil, apierr.MissingKey("prompts")
	}
	prompts, ok := d.Prompts[group]
	if !ok {
		return nil, apierr.MissingKey("prompts." + group)
	}
	return prompts, nil
}

// Prompt returns prompts.<group>.<name>.
func (d *Document) Prompt(group, name string) (string, error) {
	prompts, err := d.PromptGroup(group)
	if err != nil {
		return "", err
	}
	prompt, ok := prompts[name]
	if !ok {
		return "", apierr.MissingKey("prompts." + group + "." + name)
	}
	return prompt, nil
}

// ExampleList returns examples.<name>.
func (d *Document) ExampleList(name string) ([]string, error) {
	if d.Examples == nil {
		return nil, apierr.MissingKey("examples")
	}
	examples, ok := d.Examples[name]
	if !ok {
		return nil, apierr.MissingKey("examples." + name)
	}
	return examples, nil
}

// Summary describes the loaded document without exposing prompt text.
type Summary struct {
	Categories        []string            `json:"categories"`
	ProductCategories []string            `json:"product_categories"`
	Examples          map[string]int      `json:"examples"`
	Prompts           map[string][]string `json:"prompts"`
}

// Summarize lists section names; prompt keys are sorted for stable output.
func (d *Document) Summarize() Summary {
	summary := Summary{
		Categories:        d.Categories.Names(),
		ProductCategories: d.ProductCategories.Names(),
		Examples:          make(map[string]int, len(d.Examples)),
		Prompts:           make(map[string][]string, len(d.Prompts)),
	}
	for name, examples := range d.Examples {
		summary.Examples[name] = len(examples)
	}
	for group, prompts := range d.Prompts {
		keys := make([]string, 0, len(prompts))
		for key := range prompts {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		summary.Prompts[group] = keys
	}
	return summary
}
