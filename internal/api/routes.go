package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"call-quality-eval/backend/internal/ai"
	"call-quality-eval/backend/internal/apierr"
	"call-quality-eval/backend/internal/cleanup"
	"call-quality-eval/backend/internal/evaluation"
	"call-quality-eval/backend/internal/prompts"
	"call-quality-eval/backend/internal/store"
)

// Config defines server dependencies.
type Config struct {
	DBPath         string
	SilentDB       bool
	AllowedOrigins []string
	Prompts        *prompts.Cache
	Invoker        ai.Invoker
	// Engine names the inference backend for /api/config.
	Engine string
}

// Server wires HTTP handlers with persistence and the evaluation dispatchers.
type Server struct {
	db             *store.Database
	prompts        *prompts.Cache
	dispatchers    map[string]*evaluation.Dispatcher
	allowedOrigins []string
	evalNotifier   *EvaluationNotifier
	engine         string
}

// NewServer constructs the API server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("db path required")
	}
	if cfg.Prompts == nil {
		return nil, errors.New("prompts cache required")
	}
	if cfg.Invoker == nil {
		return nil, errors.New("inference engine required")
	}
	db, err := store.Open(cfg.DBPath, cfg.SilentDB)
	if err != nil {
		return nil, err
	}

	dispatchers := make(map[string]*evaluation.Dispatcher, len(evaluation.Variants))
	for name, variant := range evaluation.Variants {
		dispatchers[name] = evaluation.NewDispatcher(variant, cfg.Prompts, cfg.Invoker)
	}

	logrus.WithFields(logrus.Fields{
		"engine":   cfg.Engine,
		"variants": len(dispatchers),
		"prompts":  cfg.Prompts.Path(),
	}).Info("api server configured")

	return &Server{
		db:             db,
		prompts:        cfg.Prompts,
		dispatchers:    dispatchers,
		allowedOrigins: cfg.AllowedOrigins,
		evalNotifier:   NewEvaluationNotifier(),
		engine:         cfg.Engine,
	}, nil
}

// Close releases the database handle.
func (s *Server) Close() error {
	return s.db.Close()
}

// Router configures gin routes.
func (s *Server) Router() (*gin.Engine, error) {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowCredentials = true
	if len(s.allowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.allowedOrigins
	}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	r.Use(cors.New(corsCfg))

	r.GET("/api/healthz", s.handleHealth)
	r.GET("/api/config", s.handleConfig)

	api := r.Group("/api")
	{
		api.POST("/evaluate/:variant", s.handleEvaluate)
		api.GET("/evaluate/stream", s.handleEvaluateStream)
		api.GET("/evaluations", s.handleListEvaluations)
		api.GET("/evaluations/:id", s.handleGetEvaluation)
		api.GET("/campaigns", s.handleCampaigns)
		api.GET("/campaigns/:id/report", s.handleCampaignReport)
		api.GET("/campaigns/:id/report.csv", s.handleCampaignCSV)
		api.POST("/prompts/render/:template", s.handleRenderPrompt)
		api.POST("/clean", s.handleClean)
	}

	return r, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleConfig(c *gin.Context) {
	doc, err := s.prompts.Get()
	if err != nil {
		s.renderError(c, statusFor(err), err)
		return
	}

	variants := make(map[string][]string, len(s.dispatchers))
	for name, dispatcher := range s.dispatchers {
		variants[name] = dispatcher.Variant().FieldNames()
	}

	c.JSON(http.StatusOK, gin.H{
		"prompts_path": s.prompts.Path(),
		"engine":       s.engine,
		"variants":     variants,
		"document":     doc.Summarize(),
	})
}

func (s *Server) handleEvaluate(c *gin.Context) {
	name := strings.TrimSpace(c.Param("variant"))
	dispatcher, ok := s.dispatchers[name]
	if !ok {
		s.renderError(c, http.StatusNotFound, fmt.Errorf("unknown variant %q (expected one of %s)", name, strings.Join(s.variantNames(), ", ")))
		return
	}

	var req evaluation.Request
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}

	outcome := s.runEvaluation(c.Request.Context(), dispatcher, req)
	c.JSON(outcome.Response.StatusCode, outcome.Response)
}

func (s *Server) handleEvaluateStream(c *gin.Context) {
	upgrader := websocket.Upgrader{
		HandshakeTimeout:  5 * time.Second,
		EnableCompression: true,
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			return false
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("upgrade websocket")
		return
	}

	client := s.evalNotifier.Register(conn)
	logrus.WithField("remote", conn.RemoteAddr().String()).Info("evaluation websocket connected")
	defer s.evalNotifier.Unregister(client)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.WithField("remote", conn.RemoteAddr().String()).Info("evaluation websocket closed")
			} else {
				logrus.WithError(err).Warn("evaluation websocket unexpected close")
			}
			break
		}
	}
}

func (s *Server) handleListEvaluations(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	if page < 0 {
		page = 0
	}
	pageSize, _ := strconv.Atoi(c.Query("pageSize"))
	if pageSize <= 0 {
		pageSize = 25
	}
	if pageSize > 500 {
		pageSize = 500
	}

	rows, total, err := s.db.ListEvaluations(store.EvaluationQuery{
		Campaign: c.Query("campaign"),
		Variant:  c.Query("variant"),
		Status:   c.Query("status"),
		Offset:   page * pageSize,
		Limit:    pageSize,
	})
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	dtos := make([]EvaluationDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, FromModel(row))
	}
	c.JSON(http.StatusOK, EvaluationsResponse{Items: dtos, Total: total})
}

func (s *Server) handleGetEvaluation(c *gin.Context) {
	id, err := parseUintParam(c.Param("id"))
	if err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	row, err := s.db.GetEvaluation(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.renderError(c, http.StatusNotFound, fmt.Errorf("evaluation %d not found", id))
		} else {
			s.renderError(c, http.StatusInternalServerError, err)
		}
		return
	}
	c.JSON(http.StatusOK, FromModel(*row))
}

func (s *Server) handleCampaigns(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	summaries, err := s.db.CampaignSummaries(limit)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": summaries})
}

// reportVariant resolves the variant query parameter, defaulting to the survey.
func (s *Server) reportVariant(c *gin.Context) (evaluation.Variant, bool) {
	name := strings.TrimSpace(c.Query("variant"))
	if name == "" {
		name = evaluation.PostCallSurvey.Name
	}
	variant, ok := evaluation.Lookup(name)
	if !ok {
		s.renderError(c, http.StatusNotFound, fmt.Errorf("unknown variant %q", name))
	}
	return variant, ok
}

func (s *Server) handleCampaignReport(c *gin.Context) {
	variant, ok := s.reportVariant(c)
	if !ok {
		return
	}
	report, err := s.db.CampaignReport(c.Param("id"), variant.Name)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleCampaignCSV(c *gin.Context) {
	variant, ok := s.reportVariant(c)
	if !ok {
		return
	}
	campaignID := c.Param("id")
	rows, err := s.db.CampaignEvaluations(campaignID, variant.Name)
	if err != nil {
		s.renderError(c, http.StatusInternalServerError, err)
		return
	}

	write := store.WriteSurveyCSV
	if variant.Name == evaluation.CallMining.Name {
		write = store.WriteCallMiningCSV
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s-%s.csv", campaignID, variant.Name))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	if err := write(c.Writer, rows); err != nil {
		logrus.WithError(err).WithField("campaign_id", campaignID).Warn("write campaign csv")
	}
}

func (s *Server) handleRenderPrompt(c *gin.Context) {
	key := prompts.TemplateKey(strings.TrimSpace(c.Param("template")))
	doc, err := s.prompts.Get()
	if err != nil {
		s.renderError(c, statusFor(err), err)
		return
	}
	rendered, err := prompts.Render(key, doc)
	if err != nil {
		s.renderError(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, RenderResponse{Template: string(key), Prompt: rendered})
}

func (s *Server) handleClean(c *gin.Context) {
	var req CleanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.renderError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, CleanResponse{Text: cleanup.Clean(req.Text)})
}

func (s *Server) variantNames() []string {
	names := make([]string, 0, len(s.dispatchers))
	for name := range s.dispatchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) renderError(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps typed failures to HTTP codes; untyped errors are 500.
func statusFor(err error) int {
	if errors.Is(err, prompts.ErrUnknownTemplate) {
		return http.StatusNotFound
	}
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

func parseUintParam(value string) (uint, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, errors.New("identifier is required")
	}
	parsed, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid identifier: %w", err)
	}
	if parsed == 0 {
		return 0, errors.New("identifier must be greater than zero")
	}
	return uint(parsed), nil
}
