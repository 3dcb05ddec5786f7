package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"call-quality-eval/backend/internal/apierr"
	"call-quality-eval/backend/internal/cleanup"
)

// PromptResolver supplies the deployment default prompt when a call passes none.
type PromptResolver func() (string, error)

// AnalyzerConfig tunes how prompts are composed and sent.
type AnalyzerConfig struct {
	System        string
	Separator     string
	Params        Params
	DefaultPrompt PromptResolver
	// KeepEmptyPrompt sends an empty prompt as is instead of resolving
	// DefaultPrompt, for callers that apply their own fallback rule.
	KeepEmptyPrompt bool
}

// Analyzer wraps an Invoker with prompt composition and reply cleaning.
type Analyzer struct {
	invoker       Invoker
	system        string
	separator     string
	params        Params
	defaultPrompt PromptResolver
	keepEmpty     bool
}

// NewAnalyzer applies defaults for any zero field of cfg.
func NewAnalyzer(invoker Invoker, cfg AnalyzerConfig) *Analyzer {
	if cfg.System == "" {
		cfg.System = SystemInstruction
	}
	if cfg.Separator == "" {
		cfg.Separator = " : "
	}
	if cfg.Params == (Params{}) {
		cfg.Params = DefaultParams()
	}
	return &Analyzer{
		invoker:       invoker,
		system:        cfg.System,
		separator:     cfg.Separator,
		params:        cfg.Params,
		defaultPrompt: cfg.DefaultPrompt,
		keepEmpty:     cfg.KeepEmptyPrompt,
	}
}

// Analyze sends "<prompt><separator><input>" and returns the cleaned reply.
func (a *Analyzer) Analyze(ctx context.Context, input, prompt string) (string, error) {
	raw, err := a.AnalyzeRaw(ctx, input, prompt)
	if err != nil {
		return "", err
	}
	return cleanup.Clean(raw), nil
}

// AnalyzeJSON decodes the raw reply as JSON. The cleaner is skipped because
// flattening whitespace would corrupt string values.
func (a *Analyzer) AnalyzeJSON(ctx context.Context, input, prompt string) (any, error) {
	raw, err := a.AnalyzeRaw(ctx, input, prompt)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal([]byte(normalizeJSONBlock(raw)), &decoded); err != nil {
		return nil, apierr.Decode(fmt.Errorf("parse model json: %w", err))
	}
	return decoded, nil
}

// AnalyzeRaw returns the first text segment of the reply untouched.
func (a *Analyzer) AnalyzeRaw(ctx context.Context, input, prompt string) (string, error) {
	if prompt == "" && !a.keepEmpty {
		resolved, err := a.resolveDefault()
		if err != nil {
			return "", err
		}
		prompt = resolved
	}

	reply, err := a.invoker.Invoke(ctx, Request{
		System: a.system,
		Prompt: prompt + a.separator + input,
		Params: a.params,
	})
	if err != nil {
		logrus.WithError(err).Error("invoke model")
		return "", apierr.Upstream(err)
	}
	return reply, nil
}

func (a *Analyzer) resolveDefault() (string, error) {
	if a.defaultPrompt == nil {
		return "", apierr.Configuration(errors.New("no prompt supplied and no default prompt configured"))
	}
	return a.defaultPrompt()
}

// EnvPrompt resolves the default prompt from an environment variable.
func EnvPrompt(name string) PromptResolver {
	return func() (string, error) {
		value, ok := os.LookupEnv(name)
		if !ok {
			return "", apierr.MissingKey(name)
		}
		return value, nil
	}
}

func normalizeJSONBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.IndexRune(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		trimmed = strings.TrimSpace(trimmed)
		trimmed = strings.TrimSuffix(trimmed, "```")
	}
	trimmed = strings.TrimSpace(trimmed)
	start := strings.IndexAny(trimmed, "{[")
	if start < 0 {
		return trimmed
	}
	closing := "}"
	if trimmed[start] == '[' {
		closing = "]"
	}
	end := strings.LastIndex(trimmed, closing)
	if end >= start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return trimmed
}
