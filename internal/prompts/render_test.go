package prompts

import (
	"errors"
	"strings"
	"testing"

	"call-quality-eval/backend/internal/apierr"
)

func testDocument() *Document {
	return &Document{
		Categories: Listings{
			{Name: "Produits_Bancaires", Items: []string{"carte", "prêt"}},
			{Name: "reclamation", Items: []string{"litige"}},
		},
		ProductCategories: Listings{
			{Name: "epargne_salariale", Items: []string{"PEE", "PERCO"}},
		},
		Examples: map[string][]string{
			"subject_classification": {"Le client veut une nouvelle carte -> Produits Bancaires"},
			"product_identification": {"Versement sur le PEE -> Epargne Salariale"},
		},
		Prompts: map[string]map[string]string{
			"categorization": {
				"identification_sujet_template":   "Catégories :\n{categories_list}\nExemples :\n{examples}",
				"identification_produit_template": "Produits :\n{product_categories_list}\n{product_examples}\nFormat {{\"produit\": \"...\"}}",
			},
		},
	}
}

func TestRenderSubjectIdentification(t *testing.T) {
	got, err := Render(SubjectIdentification, testDocument())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	expected := "Catégories :\nProduits Bancaires: carte, prêt\nReclamation: litige\nExemples :\n* Le client veut une nouvelle carte -> Produits Bancaires"
	if got != expected {
		t.Fatalf("unexpected prompt:\n%s", got)
	}
}

func TestRenderProductIdentification(t *testing.T) {
	got, err := Render(ProductIdentification, testDocument())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(got, "Epargne Salariale: PEE, PERCO") {
		t.Fatalf("missing product line in %q", got)
	}
	if !strings.Contains(got, "* Versement sur le PEE -> Epargne Salariale") {
		t.Fatalf("missing example line in %q", got)
	}
	if !strings.HasSuffix(got, `Format {"produit": "..."}`) {
		t.Fatalf("doubled braces not unescaped in %q", got)
	}
}

func TestRenderKeepsDocumentOrder(t *testing.T) {
	doc := testDocument()
	doc.Categories = Listings{
		{Name: "zeta", Items: []string{"z"}},
		{Name: "alpha", Items: []string{"a"}},
	}
	got, err := Render(SubjectIdentification, doc)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Index(got, "Zeta: z") > strings.Index(got, "Alpha: a") {
		t.Fatalf("categories reordered: %q", got)
	}
}

func TestTitleWords(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"produits bancaires", "Produits Bancaires"},
		{"offre b2b", "Offre B2B"},
		{"prêt d'argent", "Prêt D'Argent"},
		{"ÉPARGNE salariale", "Épargne Salariale"},
		{"", ""},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			if got := titleWords(tc.input); got != tc.expected {
				t.Fatalf("expected %q got %q", tc.expected, got)
			}
		})
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	_, err := Render(TemplateKey("identification_canal"), testDocument())
	if !errors.Is(err, ErrUnknownTemplate) {
		t.Fatalf("expected ErrUnknownTemplate, got %v", err)
	}
}

func TestRenderMissingConfiguration(t *testing.T) {
	tests := []struct {
		name    string
		key     TemplateKey
		mutate  func(*Document)
		message string
	}{
		{"no categorization", SubjectIdentification, func(d *Document) { delete(d.Prompts, "categorization") }, `missing key "prompts.categorization"`},
		{"no prompts", ProductIdentification, func(d *Document) { d.Prompts = nil }, `missing key "prompts"`},
		{"no categories", SubjectIdentification, func(d *Document) { d.Categories = nil }, `missing key "categories"`},
		{"no product examples", ProductIdentification, func(d *Document) { delete(d.Examples, "product_identification") }, `missing key "examples.product_identification"`},
		{"no template", SubjectIdentification, func(d *Document) { delete(d.Prompts["categorization"], "identification_sujet_template") }, `missing key "prompts.categorization.identification_sujet_template"`},
		{"unknown placeholder", SubjectIdentification, func(d *Document) {
			d.Prompts["categorization"]["identification_sujet_template"] = "{categories_list} {canal}"
		}, `missing key "canal"`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := testDocument()
			tc.mutate(doc)
			got, err := Render(tc.key, doc)
			if err == nil {
				t.Fatalf("expected error, got prompt %q", got)
			}
			if !apierr.Is(err, apierr.KindConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
			if err.Error() != tc.message {
				t.Fatalf("expected %q got %q", tc.message, err.Error())
			}
			if got != "" {
				t.Fatalf("expected no content on failure, got %q", got)
			}
		})
	}
}

func TestFormatUnbalancedBraces(t *testing.T) {
	for _, template := range []string{"{categories_list", "fin }"} {
		if _, err := format(template, map[string]string{"categories_list": "x"}); err == nil {
			t.Fatalf("expected error for %q", template)
		}
	}
}
