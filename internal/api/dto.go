package api

import (
	"encoding/json"
	"strings"
	"time"

	"call-quality-eval/backend/internal/store"
)

// EvaluationDTO is the API representation for a persisted evaluation.
type EvaluationDTO struct {
	ID            uint                `json:"id"`
	RunID         string              `json:"run_id"`
	FileNameKey   string              `json:"file_name_key"`
	CampaignID    string              `json:"campaign_id"`
	FileName      string              `json:"file_name"`
	Variant       string              `json:"variant"`
	Status        string              `json:"status"`
	StatusCode    int                 `json:"status_code"`
	BedrockResult map[string]any      `json:"bedrock_result,omitempty"`
	Analysis      json.RawMessage     `json:"analysis,omitempty"`
	ErrorDetail   string              `json:"error_detail,omitempty"`
	DurationMs    int64               `json:"duration_ms"`
	Timings       []store.FieldTiming `json:"timings,omitempty"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// EvaluationsResponse is the paginated response for stored evaluations.
type EvaluationsResponse struct {
	Items []EvaluationDTO `json:"items"`
	Total int64           `json:"total"`
}

// RenderResponse carries a rendered categorization prompt.
type RenderResponse struct {
	Template string `json:"template"`
	Prompt   string `json:"prompt"`
}

// CleanRequest is the body of POST /api/clean.
type CleanRequest struct {
	Text string `json:"text"`
}

// CleanResponse holds the cleaned text.
type CleanResponse struct {
	Text string `json:"text"`
}

// FromModel converts a store.Evaluation into the DTO representation.
func FromModel(e store.Evaluation) EvaluationDTO {
	dto := EvaluationDTO{
		ID:            e.ID,
		RunID:         e.RunID,
		FileNameKey:   e.FileNameKey,
		CampaignID:    e.CampaignID,
		FileName:      e.FileName,
		Variant:       e.Variant,
		Status:        e.Status,
		StatusCode:    e.StatusCode,
		BedrockResult: e.Result(),
		ErrorDetail:   strings.TrimSpace(e.ErrorDetail),
		DurationMs:    e.DurationMs,
		Timings:       e.Laps(),
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if analysis := strings.TrimSpace(e.AnalysisJSON); analysis != "" && json.Valid([]byte(analysis)) {
		dto.Analysis = json.RawMessage(analysis)
	}
	return dto
}
