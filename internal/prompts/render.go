package prompts

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"call-quality-eval/backend/internal/apierr"
)

// TemplateKey names a prompt assembled from the taxonomy sections.
type TemplateKey string

const (
	SubjectIdentification TemplateKey = "identification_sujet"
	ProductIdentification TemplateKey = "identification_produit"
)

// categorizationGroup holds the templates rendered by Render.
const categorizationGroup = "categorization"

// ErrUnknownTemplate is returned for a TemplateKey Render does not handle.
var ErrUnknownTemplate = errors.New("unknown prompt template")

type templateSpec struct {
	template     string
	listingKey   string
	examplesKey  string
	listingSlot  string
	examplesSlot string
	listings     func(*Document) Listings
}

var templateSpecs = map[TemplateKey]templateSpec{
	SubjectIdentification: {
		template:     "identification_sujet_template",
		listingKey:   "categories",
		examplesKey:  "subject_classification",
		listingSlot:  "categories_list",
		examplesSlot: "examples",
		listings:     func(d *Document) Listings { return d.Categories },
	},
	ProductIdentification: {
		template:     "identification_produit_template",
		listingKey:   "product_categories",
		examplesKey:  "product_identification",
		listingSlot:  "product_categories_list",
		examplesSlot: "product_examples",
		listings:     func(d *Document) Listings { return d.ProductCategories },
	},
}

// Render builds the prompt for key by interpolating the formatted taxonomy and
// the bulleted examples into the matching categorization template.
func Render(key TemplateKey, doc *Document) (string, error) {
	spec, ok := templateSpecs[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, key)
	}
	if doc == nil {
		return "", apierr.MissingKey("prompts")
	}

	templates, err := doc.PromptGroup(categorizationGroup)
	if err != nil {
		return "", err
	}
	listings := spec.listings(doc)
	if listings == nil {
		return "", apierr.MissingKey(spec.listingKey)
	}
	examples, err := doc.ExampleList(spec.examplesKey)
	if err != nil {
		return "", err
	}
	template, ok := templates[spec.template]
	if !ok {
		return "", apierr.MissingKey("prompts." + categorizationGroup + "." + spec.template)
	}

	return format(template, map[string]string{
		spec.listingSlot:  formatListings(listings),
		spec.examplesSlot: formatExamples(examples),
	})
}

// formatListings renders one "Title: item, item" line per entry.
func formatListings(listings Listings) string {
	var b strings.Builder
	for _, entry := range listings {
		b.WriteString(titleWords(strings.ReplaceAll(entry.Name, "_", " ")))
		b.WriteString(": ")
		b.WriteString(strings.Join(entry.Items, ", "))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func formatExamples(examples []string) string {
	lines := make([]string, 0, len(examples))
	for _, example := range examples {
		lines = append(lines, "* "+example)
	}
	return strings.Join(lines, "\n")
}

// format substitutes {name} placeholders. Doubled braces are literal braces.
func format(template string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(template))
	for i := 0; i < len(template); {
		switch template[i] {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')
				i += 2
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", apierr.Configuration(fmt.Errorf("template: single '{' at offset %d", i))
			}
			name := template[i+1 : i+1+end]
			value, ok := values[name]
			if !ok {
				return "", apierr.MissingKey(name)
			}
			b.WriteString(value)
			i += end + 2
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')
				i += 2
				continue
			}
			return "", apierr.Configuration(fmt.Errorf("template: single '}' at offset %d", i))
		default:
			b.WriteByte(template[i])
			i++
		}
	}
	return b.String(), nil
}

// titleWords capitalises every run of letters, so a letter after a digit or an
// apostrophe starts a new word: "offre b2b" reads "Offre B2B".
func titleWords(s string) string {
	caser := cases.Title(language.French)
	var b strings.Builder
	start := -1
	for i, r := range s {
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			b.WriteString(caser.String(s[start:i]))
			start = -1
		}
		b.WriteRune(r)
	}
	if start >= 0 {
		b.WriteString(caser.String(s[start:]))
	}
	return b.String()
}
