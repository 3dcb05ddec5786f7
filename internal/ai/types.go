package ai

import (
	"context"
	"errors"
)

// SystemInstruction constrains tone and format of every field extraction.
const SystemInstruction = "Vous êtes un expert en management de la qualité spécialisé dans l'expérience client (CX). Répondez exclusivement en français avec une approche professionnelle et technique. Fournissez des réponses directes sans introduction inutile ni formatage markdown. Pour les listes, utilisez uniquement les balises HTML (<ul>, <li>, <ol>). Concentrez-vous sur des insights actionnables, des méthodologies concrètes et des bonnes pratiques terrain. Évitez les généralités et privilégiez l'expertise sectorielle"

// ErrEmptyReply is returned when the endpoint answers without a text segment.
var ErrEmptyReply = errors.New("model reply has no text content")

// Invoker sends one prompt to an inference endpoint and returns the first text segment of the reply.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Request is a single-turn completion request.
type Request struct {
	System string
	Prompt string
	Params Params
}

// Params holds the sampling parameters sent with every request.
type Params struct {
	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int
}

// DefaultParams returns the call-mining sampling parameters.
func DefaultParams() Params {
	return Params{
		MaxTokens:   2024,
		Temperature: 0.7,
		TopP:        0.999,
		TopK:        250,
	}
}
