package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NPSSummary buckets net promoter answers: 9-10 promoters, 7-8 passives,
// 0-6 detractors. Answers without a leading integer are skipped.
type NPSSummary struct {
	Score                int `json:"nps_score"`
	Promoters            int `json:"promoters"`
	Passives             int `json:"passives"`
	Detractors           int `json:"detractors"`
	PromotersPercentage  int `json:"promoters_percentage"`
	PassivesPercentage   int `json:"passives_percentage"`
	DetractorsPercentage int `json:"detractors_percentage"`
	TotalResponses       int `json:"total_responses"`
	ValidResponses       int `json:"valid_responses"`
}

// CSATSummary buckets satisfaction answers on a 1-5 scale: 4-5 satisfied,
// 3 neutral, anything lower dissatisfied.
type CSATSummary struct {
	Score                  int `json:"csat_score"`
	Satisfied              int `json:"satisfied"`
	Neutral                int `json:"neutral"`
	Dissatisfied           int `json:"dissatisfied"`
	SatisfiedPercentage    int `json:"satisfied_percentage"`
	NeutralPercentage      int `json:"neutral_percentage"`
	DissatisfiedPercentage int `json:"dissatisfied_percentage"`
	TotalResponses         int `json:"total_responses"`
	ValidResponses         int `json:"valid_responses"`
}

// ResolutionCount is one resolution bucket; Percentage is relative to the
// non-empty statuses.
type ResolutionCount struct {
	Count      int `json:"count"`
	Percentage int `json:"percentage"`
}

// ResolutionVolume groups resolution_prompt_status answers.
type ResolutionVolume struct {
	Resolved   ResolutionCount `json:"resolu"`
	Partial    ResolutionCount `json:"partiellement_resolu"`
	Unresolved ResolutionCount `json:"non_resolu"`
	Other      ResolutionCount `json:"autre"`
}

// CampaignReport is the survey dashboard for one campaign and variant.
type CampaignReport struct {
	CampaignID                string           `json:"campaign_id"`
	Variant                   string           `json:"variant"`
	Complete                  int              `json:"complete"`
	Failed                    int              `json:"failed"`
	NPS                       NPSSummary       `json:"nps"`
	CSAT                      CSATSummary      `json:"csat"`
	AverageChurnProbability   float64          `json:"average_churn_probability"`
	AverageEaseOfResponse     float64          `json:"average_ease_of_response"`
	AverageAssistanceAdequacy float64          `json:"average_assistance_adequacy"`
	Resolution                ResolutionVolume `json:"resolution"`
}

// CampaignEvaluations returns every stored run of a campaign for one variant,
// newest first.
func (d *Database) CampaignEvaluations(campaignID, variant string) ([]Evaluation, error) {
	if d == nil {
		return nil, errors.New("database is nil")
	}
	if strings.TrimSpace(campaignID) == "" {
		return nil, errors.New("campaign id is required")
	}
	rows, _, err := d.ListEvaluations(EvaluationQuery{Campaign: campaignID, Variant: variant})
	if err != nil {
		return nil, fmt.Errorf("campaign evaluations: %w", err)
	}
	return rows, nil
}

// CampaignReport loads a campaign's runs and aggregates them.
func (d *Database) CampaignReport(campaignID, variant string) (*CampaignReport, error) {
	rows, err := d.CampaignEvaluations(campaignID, variant)
	if err != nil {
		return nil, err
	}
	report := BuildCampaignReport(campaignID, variant, rows)
	return &report, nil
}

// BuildCampaignReport aggregates survey scores over rows. Failed runs count
// towards the totals but carry no answers.
func BuildCampaignReport(campaignID, variant string, rows []Evaluation) CampaignReport {
	report := CampaignReport{CampaignID: campaignID, Variant: variant}
	var (
		churn, ease, adequacy average
		statuses              []string
	)
	nps := make([]string, 0, len(rows))
	csat := make([]string, 0, len(rows))

	for _, row := range rows {
		if row.Status == StatusComplete {
			report.Complete++
		} else {
			report.Failed++
		}
		result := row.Result()
		nps = append(nps, resultString(result, "net_promoter"))
		csat = append(csat, resultString(result, "satisfaction_globale"))
		ease.add(resultString(result, "easy_of_response"))
		adequacy.add(resultString(result, "assistance_adequacy"))
		churn.add(resultString(nested(result, "conversation_analysis", "risk_assessment"), "churn_probability"))
		statuses = append(statuses, resultString(result, "resolution_prompt_status"))
	}

	report.NPS = summarizeNPS(nps)
	report.CSAT = summarizeCSAT(csat)
	report.AverageChurnProbability = churn.value()
	report.AverageEaseOfResponse = ease.value()
	report.AverageAssistanceAdequacy = adequacy.value()
	report.Resolution = summarizeResolution(statuses)
	return report
}

func summarizeNPS(values []string) NPSSummary {
	out := NPSSummary{TotalResponses: len(values)}
	for _, raw := range values {
		score, ok := leadingInt(raw)
		if !ok {
			continue
		}
		out.ValidResponses++
		switch {
		case score >= 9 && score <= 10:
			out.Promoters++
		case score >= 7 && score <= 8:
			out.Passives++
		case score >= 0 && score <= 6:
			out.Detractors++
		}
	}
	if out.ValidResponses == 0 {
		return out
	}
	promoters := percentage(out.Promoters, out.ValidResponses)
	detractors := percentage(out.Detractors, out.ValidResponses)
	out.Score = roundHalfUp(promoters - detractors)
	out.PromotersPercentage = roundHalfUp(promoters)
	out.PassivesPercentage = roundHalfUp(percentage(out.Passives, out.ValidResponses))
	out.DetractorsPercentage = roundHalfUp(detractors)
	return out
}

func summarizeCSAT(values []string) CSATSummary {
	out := CSATSummary{TotalResponses: len(values)}
	for _, raw := range values {
		score, ok := leadingInt(raw)
		if !ok {
			continue
		}
		out.ValidResponses++
		switch {
		case score >= 4:
			out.Satisfied++
		case score == 3:
			out.Neutral++
		default:
			out.Dissatisfied++
		}
	}
	if out.ValidResponses == 0 {
		return out
	}
	out.SatisfiedPercentage = roundHalfUp(percentage(out.Satisfied, out.ValidResponses))
	out.NeutralPercentage = roundHalfUp(percentage(out.Neutral, out.ValidResponses))
	out.DissatisfiedPercentage = roundHalfUp(percentage(out.Dissatisfied, out.ValidResponses))
	out.Score = out.SatisfiedPercentage
	return out
}

func summarizeResolution(values []string) ResolutionVolume {
	var (
		out   ResolutionVolume
		total int
	)
	for _, raw := range values {
		status := foldText(raw)
		if status == "" {
			continue
		}
		total++
		switch {
		case strings.Contains(status, "partiel"):
			out.Partial.Count++
		case startsWithNegation(status):
			out.Unresolved.Count++
		case strings.Contains(status, "resolu"):
			out.Resolved.Count++
		default:
			out.Other.Count++
		}
	}
	for _, bucket := range []*ResolutionCount{&out.Resolved, &out.Partial, &out.Unresolved, &out.Other} {
		if total > 0 {
			bucket.Percentage = roundHalfUp(percentage(bucket.Count, total))
		}
	}
	return out
}

// average keeps a running mean of the values that start with a number.
type average struct {
	sum   float64
	count int
}

func (a *average) add(raw string) {
	if v, ok := leadingFloat(raw); ok {
		a.sum += v
		a.count++
	}
}

func (a average) value() float64 {
	if a.count == 0 {
		return 0
	}
	return float64(roundHalfUp(a.sum/float64(a.count)*100)) / 100
}

var (
	leadingIntPattern   = regexp.MustCompile(`^\s*([+-]?\d+)`)
	leadingFloatPattern = regexp.MustCompile(`^\s*([+-]?(?:\d+\.?\d*|\.\d+))`)
)

// leadingInt reads the integer a model answer starts with: "9", "8/10" and
// "7 sur 10" all count, "Note : 9" does not.
func leadingInt(raw string) (int, bool) {
	match := leadingIntPattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, false
	}
	v, err := strconv.Atoi(match[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

func leadingFloat(raw string) (float64, bool) {
	match := leadingFloatPattern.FindStringSubmatch(raw)
	if match == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func percentage(part, total int) float64 {
	return float64(part) / float64(total) * 100
}

// roundHalfUp rounds .5 towards positive infinity, so -12.5 becomes -12.
func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// stripAccents removes combining marks: "Résolu" becomes "Resolu".
func stripAccents(s string) string {
	out, _, err := transform.String(accentFolder, s)
	if err != nil {
		return s
	}
	return out
}

func foldText(s string) string {
	return strings.ToLower(strings.TrimSpace(stripAccents(s)))
}

func words(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func startsWithNegation(folded string) bool {
	tokens := words(folded)
	if len(tokens) == 0 {
		return false
	}
	switch tokens[0] {
	case "non", "no", "n", "false", "0", "pas":
		return true
	}
	return false
}

// nested walks decoded JSON objects along keys.
func nested(m map[string]any, keys ...string) map[string]any {
	current := m
	for _, key := range keys {
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// resultString renders a decoded JSON value as report text.
func resultString(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(payload)
	}
}
