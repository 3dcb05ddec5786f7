package store

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// utf8BOM lets spreadsheet tools detect the encoding of exported files.
const utf8BOM = "\ufeff"

var surveyCSVHeaders = []string{
	"Audio ID",
	"Creation Date",
	"Analysis Status",
	"CSAT Score",
	"NPS Score",
	"Assistance Adequacy",
	"Response Ease (CES)",
	"Time Adequacy",
	"Resolution Status",
	"Churn Risk Level",
	"Churn Probability",
	"Dominant Sentiment",
	"Agent Talk Ratio",
	"Interruption Count",
	"Peak Emotion",
	"Satisfaction Verbatim",
	"Critical Statement",
	"Positive Highlight",
	"Improvement Suggestions",
	"Urgent Callback Required",
}

var callMiningCSVHeaders = []string{
	"Audio ID",
	"Creation Date",
	"Analysis Status",
	"Overall Sentiment",
	"Positive Score (%)",
	"Negative Score (%)",
	"Neutral Score (%)",
	"Subject Identified",
	"Product/Service",
	"Client Problem",
	"Resolution Status",
	"Callback Required",
	"Politeness Evaluation",
	"Communication Clarity",
	"Global Quality Score (/10)",
	"Repetitions Detected",
	"Call Too Long",
	"Optimal Duration (min)",
	"Agent Actions Summary",
	"Conversation Results",
	"Improvement Suggestions",
}

// WriteSurveyCSV exports post-call survey runs, one line per recording.
func WriteSurveyCSV(w io.Writer, rows []Evaluation) error {
	return writeCSV(w, surveyCSVHeaders, rows, func(row Evaluation) []string {
		result := row.Result()
		analysis := nested(result, "conversation_analysis")
		risk := nested(analysis, "risk_assessment")
		metrics := nested(analysis, "conversation_metrics")
		verbatims := nested(analysis, "verbatims")
		return []string{
			row.FileName,
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.Status,
			resultString(result, "satisfaction_globale"),
			resultString(result, "net_promoter"),
			resultString(result, "assistance_adequacy"),
			resultString(result, "easy_of_response"),
			resultString(result, "time_adequacy"),
			resultString(result, "resolution_prompt_status"),
			resultString(risk, "churnrisklevel"),
			resultString(risk, "churn_probability"),
			resultString(metrics, "dominant_sentiment"),
			resultString(metrics, "agenttalkratio"),
			resultString(metrics, "interruption_count"),
			resultString(metrics, "peak_emotion"),
			resultString(result, "satisfaction_verbatim"),
			resultString(verbatims, "critical_statement"),
			resultString(verbatims, "positive_highlight"),
			resultString(result, "main_improvement_suggestions"),
			resultString(risk, "urgentcallbackrequired"),
		}
	})
}

// WriteCallMiningCSV exports call-mining runs. Sentiment comes from the
// upstream analysis payload; the quality columns from prompt_bilan_global.
func WriteCallMiningCSV(w io.Writer, rows []Evaluation) error {
	return writeCSV(w, callMiningCSVHeaders, rows, func(row Evaluation) []string {
		result := row.Result()
		sentiment := nested(decodeObject(row.AnalysisJSON), "sentiment")
		scores := nested(sentiment, "scores")
		bilan := decodeObject(resultString(result, "prompt_bilan_global"))
		return []string{
			row.FileName,
			row.CreatedAt.UTC().Format(time.RFC3339),
			row.Status,
			resultString(sentiment, "overall"),
			scorePercent(scores, "Positive"),
			scorePercent(scores, "Negative"),
			scorePercent(scores, "Neutral"),
			normalizeYesNo(resultString(result, "prompt_identification_sujet")),
			resultString(result, "prompt_identification_produit"),
			resultString(result, "prompt_probleme_client"),
			normalizeYesNo(resultString(result, "prompt_statut_resolution")),
			normalizeYesNo(resultString(result, "prompt_necessite_rappel")),
			normalizePoliteness(resultString(result, "prompt_evaluation_politesse")),
			yesNo(nested(bilan, "clarte_concision")["valeur"]),
			resultString(bilan, "scoreglobalsur_10"),
			yesNo(nested(bilan, "repetitions_detectees")["valeur"]),
			yesNo(nested(bilan, "appeltroplong")["valeur"]),
			resultString(bilan, "dureeestimeeoptimale_minutes"),
			resultString(result, "prompt_actions_agent"),
			resultString(result, "prompt_resultats_conversation"),
			joinList(bilan["suggestions_amelioration"]),
		}
	})
}

func writeCSV(w io.Writer, headers []string, rows []Evaluation, line func(Evaluation) []string) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	writer := csv.NewWriter(w)
	writer.Comma = ';'
	if err := writer.Write(headers); err != nil {
		return err
	}
	for _, row := range rows {
		fields := line(row)
		for i := range fields {
			fields[i] = stripAccents(fields[i])
		}
		if err := writer.Write(fields); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func decodeObject(raw string) map[string]any {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}

func scorePercent(scores map[string]any, key string) string {
	v, _ := scores[key].(float64)
	return fmt.Sprintf("%.1f", v*100)
}

func joinList(v any) string {
	items, ok := v.([]any)
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, resultString(map[string]any{"v": item}, "v"))
	}
	return strings.Join(parts, ", ")
}

// yesNo reports a decoded JSON flag: true, non-zero numbers and non-empty
// strings read as "Oui".
func yesNo(v any) string {
	switch value := v.(type) {
	case bool:
		if value {
			return "Oui"
		}
	case float64:
		if value != 0 {
			return "Oui"
		}
	case string:
		if value != "" {
			return "Oui"
		}
	case map[string]any, []any:
		return "Oui"
	}
	return "Non"
}

// normalizeYesNo maps a free-text yes/no answer to Oui, Non, N/A, Unknown or
// Transcript Error for long replies the model wrote instead of a verdict.
func normalizeYesNo(value string) string {
	folded := foldText(value)
	if folded == "" {
		return "N/A"
	}
	if startsWithNegation(folded) {
		return "Non"
	}
	for _, word := range words(folded) {
		switch word {
		case "oui", "yes", "y", "true", "1", "resolu":
			return "Oui"
		}
	}
	if len(folded) > 110 {
		return "Transcript Error"
	}
	return "Unknown"
}

func normalizePoliteness(value string) string {
	folded := foldText(value)
	if folded == "" {
		return "N/A"
	}
	for _, marker := range []string{"impoli", "unprofessional", "manque"} {
		if strings.Contains(folded, marker) {
			return "Unprofessional"
		}
	}
	for _, marker := range []string{"oui", "yes", "poli", "courtois", "professionnel"} {
		if strings.Contains(folded, marker) {
			return "Professional"
		}
	}
	if startsWithNegation(folded) {
		return "Unprofessional"
	}
	for _, marker := range []string{"transcript", "manquant", "incomplet"} {
		if strings.Contains(folded, marker) {
			return "Analysis Error"
		}
	}
	if len(folded) > 50 {
		return "Analysis Error"
	}
	return "Unknown"
}
