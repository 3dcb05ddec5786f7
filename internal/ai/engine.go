package ai

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	EngineBedrock = "bedrock"
	EngineOpenAI  = "openai"
)

// EngineConfig selects and configures the inference backend.
type EngineConfig struct {
	Engine  string
	Bedrock BedrockConfig
	OpenAI  Config
}

// EngineConfigFromEnv reads LLM_ENGINE, BEDROCK_* / AWS_REGION and OPENAI_* variables.
func EngineConfigFromEnv() EngineConfig {
	region := strings.TrimSpace(os.Getenv("BEDROCK_REGION"))
	if region == "" {
		region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	}
	return EngineConfig{
		Engine: strings.ToLower(strings.TrimSpace(os.Getenv("LLM_ENGINE"))),
		Bedrock: BedrockConfig{
			Region:  region,
			ModelID: os.Getenv("BEDROCK_MODEL_ID"),
		},
		OpenAI: Config{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   os.Getenv("OPENAI_MODEL"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
		},
	}
}

// NewEngine builds the configured Invoker. Bedrock is the default engine.
func NewEngine(ctx context.Context, cfg EngineConfig) (Invoker, string, error) {
	switch cfg.Engine {
	case "", EngineBedrock:
		client, err := NewBedrockClient(ctx, cfg.Bedrock)
		if err != nil {
			return nil, "", err
		}
		return client, EngineBedrock + ":" + client.ModelID(), nil
	case EngineOpenAI:
		client, err := NewClient(cfg.OpenAI)
		if err != nil {
			return nil, "", fmt.Errorf("openai engine: %w", err)
		}
		return client, EngineOpenAI + ":" + client.model, nil
	default:
		return nil, "", fmt.Errorf("unknown LLM_ENGINE %q (expected %s or %s)", cfg.Engine, EngineBedrock, EngineOpenAI)
	}
}
