package store

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	StatusComplete = "COMPLETE"
	StatusFailed   = "FAILED"
)

// Evaluation is one dispatcher run persisted for the back office. Rows are keyed
// by file-name key and variant; a re-run of the same recording overwrites the row.
type Evaluation struct {
	ID           uint   `gorm:"primaryKey"`
	RunID        string `gorm:"size:36;uniqueIndex"`
	FileNameKey  string `gorm:"size:512;index"`
	CampaignID   string `gorm:"size:255;index"`
	FileName     string `gorm:"size:255"`
	Variant      string `gorm:"size:32;index"`
	Status       string `gorm:"size:16;index"`
	StatusCode   int
	ResultJSON   string `gorm:"type:text"`
	AnalysisJSON string `gorm:"type:text"`
	ErrorDetail  string `gorm:"type:text"`
	LapsJSON     string `gorm:"type:text"`
	DurationMs   int64
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time
}

// SetFileNameKey stores the key together with its parsed campaign and file name.
func (e *Evaluation) SetFileNameKey(key string) {
	e.FileNameKey = strings.TrimSpace(key)
	e.CampaignID, e.FileName, _ = ParseFileNameKey(e.FileNameKey)
}

// SetResult persists the bedrockResult mapping as JSON.
func (e *Evaluation) SetResult(result map[string]any) error {
	if result == nil {
		e.ResultJSON = ""
		return nil
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	e.ResultJSON = string(payload)
	return nil
}

// Result returns the decoded bedrockResult mapping.
func (e *Evaluation) Result() map[string]any {
	if strings.TrimSpace(e.ResultJSON) == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(e.ResultJSON), &out); err != nil {
		return nil
	}
	return out
}

// SetLaps persists per-field timings in milliseconds, in call order.
func (e *Evaluation) SetLaps(laps []FieldTiming) {
	if len(laps) == 0 {
		e.LapsJSON = ""
		return
	}
	payload, _ := json.Marshal(laps)
	e.LapsJSON = string(payload)
}

// Laps returns the decoded per-field timings.
func (e *Evaluation) Laps() []FieldTiming {
	if strings.TrimSpace(e.LapsJSON) == "" {
		return nil
	}
	var out []FieldTiming
	if err := json.Unmarshal([]byte(e.LapsJSON), &out); err != nil {
		return nil
	}
	return out
}

// FieldTiming is the latency of one step of a run.
type FieldTiming struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

// ParseFileNameKey splits "<campaign>/audio/<file>". Keys without exactly one
// "/audio/" separator yield no campaign and the whole key as file name.
func ParseFileNameKey(key string) (campaignID, fileName string, ok bool) {
	parts := strings.Split(key, "/audio/")
	if len(parts) != 2 {
		return "", key, false
	}
	return parts[0], parts[1], true
}
