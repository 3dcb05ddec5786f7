package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"call-quality-eval/backend/internal/ai"
	"call-quality-eval/backend/internal/prompts"
	"call-quality-eval/backend/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubInvoker struct {
	mu    sync.Mutex
	calls int
}

func (s *stubInvoker) Invoke(_ context.Context, req ai.Request) (string, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if strings.Contains(req.Prompt, "objet JSON") {
		return "```json\n{\"tonalite\": \"positive\", \"emotions_client\": [\"soulagement\"]}\n```", nil
	}
	return "Voici une réponse **claire**", nil
}

func newTestServer(t *testing.T, configPath string) (*Server, *gin.Engine, *stubInvoker) {
	t.Helper()
	if configPath == "" {
		configPath = filepath.Join("..", "..", "configs", "prompts-config.json")
	}
	invoker := &stubInvoker{}
	server, err := NewServer(Config{
		DBPath:   filepath.Join(t.TempDir(), "api.db"),
		SilentDB: true,
		Prompts:  prompts.NewCache(configPath),
		Invoker:  invoker,
		Engine:   "stub",
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })
	router, err := server.Router()
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return server, router, invoker
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthAndConfig(t *testing.T) {
	_, router, _ := newTestServer(t, "")

	if rec := doJSON(t, router, http.MethodGet, "/api/healthz", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}

	rec := doJSON(t, router, http.MethodGet, "/api/config", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("config: %d %s", rec.Code, rec.Body.String())
	}
	payload := decode[struct {
		Engine   string              `json:"engine"`
		Variants map[string][]string `json:"variants"`
		Document prompts.Summary     `json:"document"`
	}](t, rec)
	if payload.Engine != "stub" {
		t.Fatalf("unexpected engine %q", payload.Engine)
	}
	if len(payload.Variants["call-mining"]) != 11 || len(payload.Variants["post-call-survey"]) != 10 {
		t.Fatalf("unexpected variants %v", payload.Variants)
	}
	if len(payload.Document.Categories) == 0 || payload.Document.Categories[0] != "produits_bancaires" {
		t.Fatalf("categories should keep document order: %v", payload.Document.Categories)
	}
}

func TestConfigMissingFile(t *testing.T) {
	_, router, _ := newTestServer(t, filepath.Join(t.TempDir(), "absent.json"))
	rec := doJSON(t, router, http.MethodGet, "/api/config", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
}

func TestEvaluateCallMiningPersists(t *testing.T) {
	_, router, invoker := newTestServer(t, "")

	rec := doJSON(t, router, http.MethodPost, "/api/evaluate/call-mining", map[string]any{
		"originalText": "Bonjour, j'ai perdu ma carte Visa Premier.",
		"fileNameKey":  "camp-7/audio/appel-1.mp3",
		"analysis":     map[string]any{"sentiment": "NEGATIVE"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		StatusCode    int               `json:"statusCode"`
		BedrockResult map[string]string `json:"bedrockResult"`
		FileNameKey   string            `json:"fileNameKey"`
		Analysis      map[string]any    `json:"analysis"`
	}](t, rec)
	if resp.StatusCode != 200 || len(resp.BedrockResult) != 11 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.BedrockResult["prompt_resume_general"] != "une réponse claire" {
		t.Fatalf("reply not cleaned: %q", resp.BedrockResult["prompt_resume_general"])
	}
	if resp.Analysis["sentiment"] != "NEGATIVE" || resp.FileNameKey != "camp-7/audio/appel-1.mp3" {
		t.Fatalf("passthrough fields lost: %+v", resp)
	}
	if invoker.calls != 11 {
		t.Fatalf("expected 11 model calls, got %d", invoker.calls)
	}

	list := doJSON(t, router, http.MethodGet, "/api/evaluations?campaign=camp-7", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list: %d", list.Code)
	}
	page := decode[EvaluationsResponse](t, list)
	if page.Total != 1 || len(page.Items) != 1 {
		t.Fatalf("expected one stored evaluation, got %+v", page)
	}
	stored := page.Items[0]
	if stored.Status != "COMPLETE" || stored.FileName != "appel-1.mp3" || stored.Variant != "call-mining" {
		t.Fatalf("unexpected stored row %+v", stored)
	}
	if len(stored.Timings) != 12 {
		t.Fatalf("expected timings for prompt resolution and 11 fields, got %d", len(stored.Timings))
	}

	one := doJSON(t, router, http.MethodGet, "/api/evaluations/"+strconv.FormatUint(uint64(stored.ID), 10), nil)
	if one.Code != http.StatusOK {
		t.Fatalf("get: %d", one.Code)
	}
	if got := decode[EvaluationDTO](t, one); got.BedrockResult["prompt_bilan_global"] != "une réponse claire" {
		t.Fatalf("stored result mismatch: %+v", got.BedrockResult)
	}
}

func TestEvaluateSurveyDecodesJSONField(t *testing.T) {
	_, router, _ := newTestServer(t, "")
	rec := doJSON(t, router, http.MethodPost, "/api/evaluate/post-call-survey", map[string]any{
		"originalText": "Merci pour votre aide, tout est réglé.",
		"fileNameKey":  "camp-7/audio/appel-2.mp3",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decode[struct {
		BedrockResult map[string]any `json:"bedrockResult"`
	}](t, rec)
	analysis, ok := resp.BedrockResult["conversation_analysis"].(map[string]any)
	if !ok || analysis["tonalite"] != "positive" {
		t.Fatalf("conversation_analysis not decoded: %v", resp.BedrockResult["conversation_analysis"])
	}
}

func TestEvaluateFailures(t *testing.T) {
	_, router, invoker := newTestServer(t, "")

	rec := doJSON(t, router, http.MethodPost, "/api/evaluate/call-mining", map[string]any{"fileNameKey": "camp-9/audio/x.mp3"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	body := decode[map[string]any](t, rec)
	if body["body"] != "Missing originalText in request" || body["fileNameKey"] != "camp-9/audio/x.mp3" {
		t.Fatalf("unexpected 400 payload %v", body)
	}
	if invoker.calls != 0 {
		t.Fatalf("model must not be called")
	}

	failed := decode[EvaluationsResponse](t, doJSON(t, router, http.MethodGet, "/api/evaluations?status=failed", nil))
	if failed.Total != 1 || failed.Items[0].ErrorDetail != "Missing originalText in request" {
		t.Fatalf("failed run not stored: %+v", failed)
	}

	if rec := doJSON(t, router, http.MethodPost, "/api/evaluate/sentiment", map[string]any{"originalText": "x"}); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown variant: expected 404 got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/evaluate/call-mining", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/evaluate/call-mining", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	bad := httptest.NewRecorder()
	router.ServeHTTP(bad, req)
	if bad.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400 got %d", bad.Code)
	}
}

func TestGetEvaluationErrors(t *testing.T) {
	_, router, _ := newTestServer(t, "")
	tests := []struct {
		path string
		code int
	}{
		{"/api/evaluations/abc", http.StatusBadRequest},
		{"/api/evaluations/0", http.StatusBadRequest},
		{"/api/evaluations/999", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			if rec := doJSON(t, router, http.MethodGet, tc.path, nil); rec.Code != tc.code {
				t.Fatalf("expected %d got %d", tc.code, rec.Code)
			}
		})
	}
}

func TestCampaigns(t *testing.T) {
	_, router, _ := newTestServer(t, "")
	for _, key := range []string{"alpha/audio/1.mp3", "alpha/audio/2.mp3", "beta/audio/1.mp3"} {
		doJSON(t, router, http.MethodPost, "/api/evaluate/call-mining", map[string]any{"originalText": "texte", "fileNameKey": key})
	}
	rec := doJSON(t, router, http.MethodGet, "/api/campaigns", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("campaigns: %d", rec.Code)
	}
	payload := decode[struct {
		Items []struct {
			CampaignID string `json:"campaign_id"`
			Total      int    `json:"total"`
		} `json:"items"`
	}](t, rec)
	if len(payload.Items) != 2 || payload.Items[0].CampaignID != "alpha" || payload.Items[0].Total != 2 {
		t.Fatalf("unexpected campaigns %+v", payload.Items)
	}
}

func TestCampaignReportAndCSV(t *testing.T) {
	server, router, _ := newTestServer(t, "")
	seed := []*store.Evaluation{
		{RunID: "r1", FileNameKey: "alpha/audio/1.mp3", Variant: "post-call-survey", Status: store.StatusComplete,
			ResultJSON: `{"net_promoter":"10","satisfaction_globale":"5","resolution_prompt_status":"Résolu"}`},
		{RunID: "r2", FileNameKey: "alpha/audio/2.mp3", Variant: "post-call-survey", Status: store.StatusComplete,
			ResultJSON: `{"net_promoter":"3","satisfaction_globale":"2","resolution_prompt_status":"Non résolu"}`},
		{RunID: "r3", FileNameKey: "alpha/audio/3.mp3", Variant: "post-call-survey", Status: store.StatusFailed},
	}
	for _, row := range seed {
		if err := server.db.SaveEvaluation(row); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/api/campaigns/alpha/report", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report: %d %s", rec.Code, rec.Body.String())
	}
	report := decode[store.CampaignReport](t, rec)
	if report.Complete != 2 || report.Failed != 1 || report.NPS.Score != 0 || report.NPS.Promoters != 1 || report.CSAT.Score != 50 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Resolution.Resolved.Count != 1 || report.Resolution.Unresolved.Count != 1 {
		t.Fatalf("unexpected resolution %+v", report.Resolution)
	}

	rec = doJSON(t, router, http.MethodGet, "/api/campaigns/alpha/report.csv", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("csv: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(rec.Body.String(), "\ufeff")), "\n")
	if len(lines) != 4 || !strings.HasPrefix(lines[0], "Audio ID;Creation Date;Analysis Status;CSAT Score;NPS Score") {
		t.Fatalf("unexpected csv:\n%s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), ";Non resolu;") {
		t.Fatalf("expected accent-free resolution status:\n%s", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/api/campaigns/alpha/report.csv?variant=call-mining", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Overall Sentiment") {
		t.Fatalf("call-mining csv: %d %s", rec.Code, rec.Body.String())
	}

	if rec := doJSON(t, router, http.MethodGet, "/api/campaigns/alpha/report?variant=sentiment", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown variant, got %d", rec.Code)
	}
}

func TestRenderPrompt(t *testing.T) {
	_, router, _ := newTestServer(t, "")

	rec := doJSON(t, router, http.MethodPost, "/api/prompts/render/identification_sujet", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("render: %d %s", rec.Code, rec.Body.String())
	}
	rendered := decode[RenderResponse](t, rec)
	if !strings.Contains(rendered.Prompt, "Produits Bancaires: carte, prêt, découvert, compte courant") {
		t.Fatalf("missing category line in %q", rendered.Prompt)
	}
	if !strings.Contains(rendered.Prompt, "* Le client signale la perte de sa carte -> Produits Bancaires") {
		t.Fatalf("missing example line in %q", rendered.Prompt)
	}

	product := decode[RenderResponse](t, doJSON(t, router, http.MethodPost, "/api/prompts/render/identification_produit", nil))
	if !strings.Contains(product.Prompt, `{"famille": "...", "produit": "..."}`) {
		t.Fatalf("literal braces not restored in %q", product.Prompt)
	}

	if rec := doJSON(t, router, http.MethodPost, "/api/prompts/render/inconnu", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown template: expected 404 got %d", rec.Code)
	}
}

func TestClean(t *testing.T) {
	_, router, _ := newTestServer(t, "")
	rec := doJSON(t, router, http.MethodPost, "/api/clean", CleanRequest{Text: "# Titre\n- item un\n- item deux"})
	if rec.Code != http.StatusOK {
		t.Fatalf("clean: %d", rec.Code)
	}
	if got := decode[CleanResponse](t, rec).Text; got != "Titre • item un • item deux" {
		t.Fatalf("unexpected cleaned text %q", got)
	}
}

func TestEvaluateStream(t *testing.T) {
	server, router, _ := newTestServer(t, "")
	httpServer := httptest.NewServer(router)
	defer httpServer.Close()

	wsURL := "ws" + strings.TrimPrefix(httpServer.URL, "http") + "/api/evaluate/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for server.evalNotifier.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	payload, _ := json.Marshal(map[string]any{"originalText": "texte", "fileNameKey": "camp/audio/f.mp3"})
	resp, err := http.Post(httpServer.URL+"/api/evaluate/post-call-survey", "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var started, completed EvaluationEvent
	if err := conn.ReadJSON(&started); err != nil {
		t.Fatalf("read started: %v", err)
	}
	if err := conn.ReadJSON(&completed); err != nil {
		t.Fatalf("read completed: %v", err)
	}
	if started.Type != "started" || started.Fields != 10 || started.Variant != "post-call-survey" {
		t.Fatalf("unexpected started event %+v", started)
	}
	if completed.Type != "completed" || completed.RunID != started.RunID || completed.StatusCode != 200 {
		t.Fatalf("unexpected completed event %+v", completed)
	}
	if completed.Evaluation == nil || completed.Evaluation.Status != "COMPLETE" {
		t.Fatalf("completed event should carry the stored evaluation")
	}

	last := server.evalNotifier.LastStatus()
	if last == nil || last.Type != "completed" || last.Evaluation != nil {
		t.Fatalf("unexpected last status %+v", last)
	}
}
