package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-quality-eval/backend/internal/ai"
	"call-quality-eval/backend/internal/apierr"
	"call-quality-eval/backend/internal/prompts"
	"call-quality-eval/backend/internal/util"
)

const missingTextMessage = "Missing originalText in request"

// Request is the inbound transcript record.
type Request struct {
	OriginalText string          `json:"originalText"`
	FileNameKey  string          `json:"fileNameKey"`
	Analysis     json.RawMessage `json:"analysis,omitempty"`
}

// Response is the record handed back to the invoking environment.
type Response struct {
	StatusCode    int             `json:"statusCode"`
	Body          string          `json:"body,omitempty"`
	BedrockResult map[string]any  `json:"bedrockResult,omitempty"`
	FileNameKey   *string         `json:"fileNameKey,omitempty"`
	Analysis      json.RawMessage `json:"analysis,omitempty"`
}

// Outcome is the full account of one run, including timings.
type Outcome struct {
	RunID    string
	Variant  string
	Response Response
	Err      error
	Laps     []util.Lap
	Duration time.Duration
}

// Failed reports whether the run ended without a result.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// Dispatcher runs every field of a variant against one transcript.
type Dispatcher struct {
	variant       Variant
	cache         *prompts.Cache
	analyzer      *ai.Analyzer
	defaultPrompt ai.PromptResolver
}

// NewDispatcher wires a variant to its configuration cache and inference engine.
func NewDispatcher(variant Variant, cache *prompts.Cache, invoker ai.Invoker) *Dispatcher {
	cfg := variant.AnalyzerConfig(cache)
	// defaults are applied by resolvePrompts before any model call
	cfg.KeepEmptyPrompt = true
	return &Dispatcher{
		variant:       variant,
		cache:         cache,
		analyzer:      ai.NewAnalyzer(invoker, cfg),
		defaultPrompt: cfg.DefaultPrompt,
	}
}

// Variant returns the deployment this dispatcher serves.
func (d *Dispatcher) Variant() Variant {
	return d.variant
}

// Handle is the Lambda entry point. Failures are encoded in the response, so the
// returned error is always nil.
func (d *Dispatcher) Handle(ctx context.Context, req Request) (Response, error) {
	return d.Run(ctx, req).Response, nil
}

// Run evaluates req and maps any failure to its response shape.
func (d *Dispatcher) Run(ctx context.Context, req Request) Outcome {
	return d.RunWithID(ctx, uuid.NewString(), req)
}

// RunWithID is Run with a caller-chosen run id, so progress can be announced
// before the run starts.
func (d *Dispatcher) RunWithID(ctx context.Context, runID string, req Request) Outcome {
	outcome := Outcome{RunID: runID, Variant: d.variant.Name}
	log := logrus.WithFields(logrus.Fields{
		"run_id":        outcome.RunID,
		"variant":       d.variant.Name,
		"file_name_key": req.FileNameKey,
	})
	log.WithField("text_length", len(req.OriginalText)).Info("evaluation received")

	sw := util.NewStopwatch()
	result, err := d.evaluate(ctx, req, sw, log)
	outcome.Laps = sw.Laps()
	outcome.Duration = sw.Total()
	outcome.Err = err
	if err != nil {
		log.WithError(err).WithField("kind", apierr.KindOf(err)).Error("evaluation failed")
		outcome.Response = failure(req, err)
		return outcome
	}

	fileNameKey := req.FileNameKey
	outcome.Response = Response{
		StatusCode:    http.StatusOK,
		BedrockResult: result,
		FileNameKey:   &fileNameKey,
		Analysis:      req.Analysis,
	}
	log.WithField("duration_ms", outcome.Duration.Milliseconds()).Info("evaluation complete")
	return outcome
}

func (d *Dispatcher) evaluate(ctx context.Context, req Request, sw *util.Stopwatch, log *logrus.Entry) (map[string]any, error) {
	doc, err := d.cache.Get()
	if err != nil {
		return nil, err
	}
	if req.OriginalText == "" {
		return nil, apierr.Validation(missingTextMessage)
	}

	fieldPrompts, err := d.resolvePrompts(doc)
	if err != nil {
		return nil, err
	}
	sw.Lap("resolve_prompts")

	result := make(map[string]any, len(d.variant.Fields))
	for i, field := range d.variant.Fields {
		var value any
		if field.JSON {
			value, err = d.analyzer.AnalyzeJSON(ctx, req.OriginalText, fieldPrompts[i])
		} else {
			value, err = d.analyzer.Analyze(ctx, req.OriginalText, fieldPrompts[i])
		}
		elapsed := sw.Lap(field.Name)
		if err != nil {
			log.WithField("field", field.Name).WithError(err).Warn("field analysis aborted the run")
			return nil, err
		}
		log.WithFields(logrus.Fields{"field": field.Name, "duration_ms": elapsed.Milliseconds()}).Debug("field analysed")
		result[field.Name] = value
	}
	return result, nil
}

// resolvePrompts looks up every field prompt, substituting the variant default
// where its fallback rule applies, so a configuration gap fails the run before
// the first model call.
func (d *Dispatcher) resolvePrompts(doc *prompts.Document) ([]string, error) {
	out := make([]string, len(d.variant.Fields))
	for i, field := range d.variant.Fields {
		var (
			prompt string
			err    error
		)
		if field.Template != "" {
			prompt, err = prompts.Render(field.Template, doc)
		} else {
			prompt, err = doc.Prompt(field.Group, field.Key)
		}
		if err == nil && d.defaultPrompt != nil && d.variant.usesDefault(doc, field, prompt) {
			prompt, err = d.defaultPrompt()
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", field.Name, err)
		}
		out[i] = prompt
	}
	return out, nil
}

func failure(req Request, err error) Response {
	fileNameKey := req.FileNameKey
	switch apierr.KindOf(err) {
	case apierr.KindValidation:
		return Response{
			StatusCode:  http.StatusBadRequest,
			Body:        missingTextMessage,
			FileNameKey: &fileNameKey,
		}
	case apierr.KindConfiguration:
		return Response{
			StatusCode:  http.StatusInternalServerError,
			Body:        "Configuration error: " + err.Error(),
			FileNameKey: &fileNameKey,
			Analysis:    req.Analysis,
		}
	default:
		return Response{
			StatusCode: http.StatusInternalServerError,
			Body:       "Error: " + err.Error(),
		}
	}
}
