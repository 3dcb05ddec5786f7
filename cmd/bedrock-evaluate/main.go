package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/sirupsen/logrus"

	"call-quality-eval/backend/internal/ai"
	"call-quality-eval/backend/internal/evaluation"
	"call-quality-eval/backend/internal/prompts"
	"call-quality-eval/backend/internal/util"
)

func main() {
	util.ConfigureLogging(true)

	variant := evaluation.CallMining
	variant.MaxTokens = util.EnvInt("BEDROCK_MAX_TOKENS", variant.MaxTokens)

	cfg := ai.EngineConfigFromEnv()
	cfg.Engine = ai.EngineBedrock
	invoker, engine, err := ai.NewEngine(context.Background(), cfg)
	if err != nil {
		logrus.Fatalf("create bedrock client: %v", err)
	}

	cache := prompts.NewCache(prompts.DefaultPath())
	dispatcher := evaluation.NewDispatcher(variant, cache, invoker)

	logrus.WithFields(logrus.Fields{
		"variant":    variant.Name,
		"engine":     engine,
		"prompts":    cache.Path(),
		"max_tokens": variant.MaxTokens,
	}).Info("lambda handler ready")
	lambda.Start(dispatcher.Handle)
}
