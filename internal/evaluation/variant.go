package evaluation

import (
	"call-quality-eval/backend/internal/ai"
	"call-quality-eval/backend/internal/prompts"
)

// Field is one analysis extracted per transcript.
type Field struct {
	// Name is the key in bedrockResult.
	Name string
	// Group and Key locate prompts.<group>.<key>; ignored when Template is set.
	Group string
	Key   string
	// Template renders the prompt from the categorization section instead.
	Template prompts.TemplateKey
	// JSON marks a field whose reply is decoded into a nested structure.
	JSON bool
}

// Source reports where the field prompt comes from.
func (f Field) Source() string {
	if f.Template != "" {
		return "prompts.categorization." + string(f.Template)
	}
	return "prompts." + f.Group + "." + f.Key
}

// Variant describes one deployment of the dispatcher.
type Variant struct {
	Name      string
	Separator string
	MaxTokens int
	Fields    []Field
	// DefaultPrompt replaces a configured prompt as decided by Fallback.
	DefaultPrompt func(cache *prompts.Cache) ai.PromptResolver
	Fallback      Fallback
}

// Fallback decides which configured prompts are replaced by the default.
type Fallback int

const (
	// FallbackOnEmpty replaces empty and null prompts.
	FallbackOnEmpty Fallback = iota
	// FallbackOnNull replaces only prompts written as null; "" is sent as is.
	FallbackOnNull
)

func (v Variant) usesDefault(doc *prompts.Document, field Field, prompt string) bool {
	switch v.Fallback {
	case FallbackOnNull:
		return field.Template == "" && doc.PromptIsNull(field.Group, field.Key)
	default:
		return prompt == ""
	}
}

// FieldNames lists result keys in call order.
func (v Variant) FieldNames() []string {
	names := make([]string, len(v.Fields))
	for i, field := range v.Fields {
		names[i] = field.Name
	}
	return names
}

// AnalyzerConfig derives the model call settings for the variant.
func (v Variant) AnalyzerConfig(cache *prompts.Cache) ai.AnalyzerConfig {
	params := ai.DefaultParams()
	if v.MaxTokens > 0 {
		params.MaxTokens = v.MaxTokens
	}
	cfg := ai.AnalyzerConfig{Separator: v.Separator, Params: params}
	if v.DefaultPrompt != nil {
		cfg.DefaultPrompt = v.DefaultPrompt(cache)
	}
	return cfg
}

// CallMining extracts agent actions, quality ratings and categorization from a call.
var CallMining = Variant{
	Name:      "call-mining",
	Separator: " : ",
	MaxTokens: 2024,
	Fields: []Field{
		{Name: "prompt_actions_agent", Group: "conversation_analysis", Key: "action_agent"},
		{Name: "prompt_evaluation_qualite", Group: "quality_evaluation", Key: "evaluation_qualite"},
		{Name: "prompt_evaluation_politesse", Group: "quality_evaluation", Key: "evaluation_politesse"},
		{Name: "prompt_identification_produit", Template: prompts.ProductIdentification},
		{Name: "prompt_identification_sujet", Template: prompts.SubjectIdentification},
		{Name: "prompt_necessite_rappel", Group: "conversation_analysis", Key: "necessite_rappel"},
		{Name: "prompt_probleme_client", Group: "conversation_analysis", Key: "probleme_client"},
		{Name: "prompt_resultats_conversation", Group: "conversation_analysis", Key: "resultats_conversation"},
		{Name: "prompt_resume_general", Group: "conversation_analysis", Key: "resume_general"},
		{Name: "prompt_statut_resolution", Group: "conversation_analysis", Key: "statut_resolution"},
		{Name: "prompt_bilan_global", Group: "quality_evaluation", Key: "bilan_global"},
	},
	DefaultPrompt: func(*prompts.Cache) ai.PromptResolver {
		return ai.EnvPrompt("BEDROCK_PROMPT")
	},
	Fallback: FallbackOnEmpty,
}

// PostCallSurvey answers the post-call satisfaction survey on the customer's behalf.
var PostCallSurvey = Variant{
	Name:      "post-call-survey",
	Separator: ": ",
	MaxTokens: 2054,
	Fields: []Field{
		{Name: "satisfaction_globale", Group: "post_call_survey", Key: "satisfaction_score"},
		{Name: "time_adequacy", Group: "post_call_survey", Key: "time_adequacy_score"},
		{Name: "assistance_adequacy", Group: "post_call_survey", Key: "assistance_adequacy_score"},
		{Name: "easy_of_response", Group: "post_call_survey", Key: "easy_of_resolution_score"},
		{Name: "net_promoter", Group: "post_call_survey", Key: "net_promoter_score"},
		{Name: "satisfaction_verbatim", Group: "post_call_survey", Key: "satisfaction_verbatim"},
		{Name: "dissatisfaction_verbatim", Group: "post_call_survey", Key: "dissatisfaction_verbatim"},
		{Name: "resolution_prompt_status", Group: "post_call_survey", Key: "resolution_status"},
		{Name: "main_improvement_suggestions", Group: "post_call_survey", Key: "main_improvement_suggestion"},
		{Name: "conversation_analysis", Group: "advanced_analysis", Key: "conversation_analysis", JSON: true},
	},
	DefaultPrompt: documentPrompt("base", "bedrock_prompt"),
	Fallback:      FallbackOnNull,
}

// Variants lists every deployment, keyed by Name.
var Variants = map[string]Variant{
	CallMining.Name:     CallMining,
	PostCallSurvey.Name: PostCallSurvey,
}

// Lookup returns the variant registered under name.
func Lookup(name string) (Variant, bool) {
	v, ok := Variants[name]
	return v, ok
}

func documentPrompt(group, key string) func(*prompts.Cache) ai.PromptResolver {
	return func(cache *prompts.Cache) ai.PromptResolver {
		return func() (string, error) {
			doc, err := cache.Get()
			if err != nil {
				return "", err
			}
			return doc.Prompt(group, key)
		}
	}
}
