package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const (
	DefaultBedrockModel  = "anthropic.claude-3-5-haiku-20241022-v1:0"
	DefaultBedrockRegion = "us-west-2"
	anthropicVersion     = "bedrock-2023-05-31"
)

// BedrockConfig selects the model and region. Credentials come from the SDK default chain.
type BedrockConfig struct {
	Region  string
	ModelID string
}

// runtimeAPI is the subset of the Bedrock runtime client used here.
type runtimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient invokes Anthropic models through the Bedrock runtime InvokeModel API.
type BedrockClient struct {
	runtime runtimeAPI
	modelID string
}

// NewBedrockClient loads the AWS configuration and builds a runtime client.
func NewBedrockClient(ctx context.Context, cfg BedrockConfig) (*BedrockClient, error) {
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = DefaultBedrockRegion
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newBedrockClient(bedrockruntime.NewFromConfig(awsCfg), cfg.ModelID), nil
}

func newBedrockClient(runtime runtimeAPI, modelID string) *BedrockClient {
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		modelID = DefaultBedrockModel
	}
	return &BedrockClient{runtime: runtime, modelID: modelID}
}

// ModelID reports the model the client targets.
func (c *BedrockClient) ModelID() string {
	return c.modelID
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	AnthropicVersion string             `json:"anthropic_version"`
	MaxTokens        int                `json:"max_tokens"`
	TopP             float64            `json:"top_p"`
	TopK             int                `json:"top_k"`
	System           string             `json:"system"`
	Temperature      float64            `json:"temperature"`
	Messages         []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
}

// Invoke sends req as a single user turn and returns the first content segment.
func (c *BedrockClient) Invoke(ctx context.Context, req Request) (string, error) {
	body, err := json.Marshal(buildAnthropicRequest(req))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	out, err := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return "", fmt.Errorf("bedrock invoke %s: %w", c.modelID, err)
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(out.Body, &decoded); err != nil {
		return "", fmt.Errorf("decode bedrock response: %w", err)
	}
	if len(decoded.Content) == 0 {
		return "", ErrEmptyReply
	}
	return decoded.Content[0].Text, nil
}

func buildAnthropicRequest(req Request) anthropicRequest {
	return anthropicRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        req.Params.MaxTokens,
		TopP:             req.Params.TopP,
		TopK:             req.Params.TopK,
		System:           req.System,
		Temperature:      req.Params.Temperature,
		Messages: []anthropicMessage{
			{
				Role:    "user",
				Content: []anthropicContent{{Type: "text", Text: req.Prompt}},
			},
		},
	}
}
