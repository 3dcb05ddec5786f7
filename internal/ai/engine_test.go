package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestEngineConfigFromEnv(t *testing.T) {
	t.Setenv("LLM_ENGINE", " OpenAI ")
	t.Setenv("AWS_REGION", "eu-west-3")
	t.Setenv("BEDROCK_REGION", "")
	t.Setenv("BEDROCK_MODEL_ID", "anthropic.claude-3-haiku")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OPENAI_MODEL", "")
	t.Setenv("OPENAI_BASE_URL", "")

	cfg := EngineConfigFromEnv()
	if cfg.Engine != EngineOpenAI {
		t.Fatalf("unexpected engine %q", cfg.Engine)
	}
	if cfg.Bedrock.Region != "eu-west-3" || cfg.Bedrock.ModelID != "anthropic.claude-3-haiku" {
		t.Fatalf("unexpected bedrock config %+v", cfg.Bedrock)
	}

	t.Setenv("BEDROCK_REGION", "us-east-1")
	if got := EngineConfigFromEnv().Bedrock.Region; got != "us-east-1" {
		t.Fatalf("BEDROCK_REGION should win, got %q", got)
	}
}

func TestNewEngine(t *testing.T) {
	invoker, label, err := NewEngine(context.Background(), EngineConfig{Engine: EngineOpenAI, OpenAI: Config{APIKey: "sk-test"}})
	if err != nil {
		t.Fatalf("openai engine: %v", err)
	}
	if _, ok := invoker.(*Client); !ok || label != "openai:gpt-4.1-mini" {
		t.Fatalf("unexpected engine %T %q", invoker, label)
	}

	if _, _, err := NewEngine(context.Background(), EngineConfig{Engine: EngineOpenAI}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
	if _, _, err := NewEngine(context.Background(), EngineConfig{Engine: "vertex"}); err == nil || !strings.Contains(err.Error(), "unknown LLM_ENGINE") {
		t.Fatalf("expected unknown engine error, got %v", err)
	}
}
