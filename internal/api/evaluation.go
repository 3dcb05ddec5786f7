package api

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"call-quality-eval/backend/internal/evaluation"
	"call-quality-eval/backend/internal/store"
)

// runEvaluation announces, runs and persists one dispatcher run. Storage
// failures are logged but never change the response handed to the caller.
func (s *Server) runEvaluation(ctx context.Context, dispatcher *evaluation.Dispatcher, req evaluation.Request) evaluation.Outcome {
	runID := uuid.NewString()
	variant := dispatcher.Variant().Name

	s.evalNotifier.Broadcast(EvaluationEvent{
		Type:        "started",
		RunID:       runID,
		Variant:     variant,
		FileNameKey: req.FileNameKey,
		Fields:      len(dispatcher.Variant().Fields),
	})

	outcome := dispatcher.RunWithID(ctx, runID, req)

	record := recordFromOutcome(outcome, req)
	if err := s.db.SaveEvaluation(record); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"run_id":        runID,
			"file_name_key": req.FileNameKey,
		}).Warn("persist evaluation")
	}

	event := EvaluationEvent{
		Type:        "completed",
		RunID:       runID,
		Variant:     variant,
		FileNameKey: req.FileNameKey,
		StatusCode:  outcome.Response.StatusCode,
	}
	if record.ID != 0 {
		dto := FromModel(*record)
		event.Evaluation = &dto
	}
	if outcome.Failed() {
		event.Type = "failed"
		event.Message = outcome.Response.Body
	}
	s.evalNotifier.Broadcast(event)
	return outcome
}

// recordFromOutcome mirrors the downstream store step: successful runs keep the
// result and analysis, failed runs keep the failure body as error detail.
func recordFromOutcome(outcome evaluation.Outcome, req evaluation.Request) *store.Evaluation {
	record := &store.Evaluation{
		RunID:      outcome.RunID,
		Variant:    outcome.Variant,
		StatusCode: outcome.Response.StatusCode,
		DurationMs: outcome.Duration.Milliseconds(),
	}
	record.SetFileNameKey(req.FileNameKey)

	timings := make([]store.FieldTiming, 0, len(outcome.Laps))
	for _, lap := range outcome.Laps {
		timings = append(timings, store.FieldTiming{Name: lap.Name, DurationMs: lap.Duration.Milliseconds()})
	}
	record.SetLaps(timings)

	if trimmed := strings.TrimSpace(string(req.Analysis)); trimmed != "" {
		record.AnalysisJSON = trimmed
	}

	if outcome.Failed() {
		record.Status = store.StatusFailed
		record.ErrorDetail = outcome.Response.Body
		return record
	}
	record.Status = store.StatusComplete
	if err := record.SetResult(outcome.Response.BedrockResult); err != nil {
		logrus.WithError(err).WithField("run_id", outcome.RunID).Warn("encode evaluation result")
	}
	return record
}
