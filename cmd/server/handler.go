package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	aguievents "github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	ai "github.com/spetersoncode/stockagent"
	"github.com/spetersoncode/stockagent/agent"
	"github.com/spetersoncode/stockagent/agui"
	"github.com/spetersoncode/stockagent/chart"
	"github.com/spetersoncode/stockagent/event"
	"github.com/spetersoncode/stockagent/internal/store"
	"github.com/spetersoncode/stockagent/market"
	"github.com/spetersoncode/stockagent/model"
)

const (
	analyzingText = "🤔 正在分析您的查询..."
	emptyQueryMsg = "查询不能为空"
	defaultQuery  = "分析一下苹果公司(AAPL)最近三个月的股票表现，包括技术指标和相关新闻"
)

// Server holds the HTTP handlers and what they share.
type Server struct {
	agent    *agent.Agent
	charts   *chart.Builder
	sessions *store.Sessions
	config   *Config
	logger   *slog.Logger
	model    model.ChatModel
	priced   bool
}

// NewServer creates the handler set. sessions may be nil, which disables
// session history.
func NewServer(a *agent.Agent, charts *chart.Builder, sessions *store.Sessions, cfg *Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{agent: a, charts: charts, sessions: sessions, config: cfg, logger: logger}
}

// WithModel records the model answering requests so runs can report an
// estimated cost. Unknown models get no estimate.
func (s *Server) WithModel(id string) *Server {
	s.model, s.priced = model.Lookup(id)
	return s
}

// Routes returns the mux with every endpoint registered.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stream", s.handleStream)
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/visualization", s.handleVisualization)
	mux.HandleFunc("POST /api/agui", s.handleAGUI)
	mux.HandleFunc("GET /api/tools", s.handleTools)
	mux.HandleFunc("GET /health", healthHandler)
	return corsMiddleware(mux)
}

// queryRequest is the body of /api/stream and /api/analyze.
type queryRequest struct {
	Query     string       `json:"query"`
	SessionID string       `json:"session_id,omitempty"`
	History   []ai.Message `json:"history,omitempty"`
}

// history returns the turns preceding the query: the ones sent with the
// request, or else the stored session.
func (s *Server) history(ctx context.Context, req *queryRequest, log *slog.Logger) []ai.Message {
	if len(req.History) > 0 || req.SessionID == "" || s.sessions == nil {
		return req.History
	}
	stored, err := s.sessions.Load(ctx, req.SessionID)
	if err != nil {
		log.Warn("failed to load session", "error", err)
	}
	return stored
}

func (s *Server) runOptions(history []ai.Message, log *slog.Logger) []agent.Option {
	opts := []agent.Option{
		agent.WithMaxSteps(s.config.MaxSteps),
		agent.WithToolTimeout(s.config.ToolTimeout),
		agent.WithNativeTools(s.config.NativeTools),
		agent.WithLogger(log),
	}
	if len(history) > 0 {
		opts = append(opts, agent.WithHistory(history))
	}
	return opts
}

// saveSession appends the question and its final answer to history. Tool
// rounds are not stored.
func (s *Server) saveSession(ctx context.Context, id string, history []ai.Message, query, answer string, log *slog.Logger) {
	if id == "" || s.sessions == nil || answer == "" {
		return
	}
	turns := append(history[:len(history):len(history)],
		ai.NewUserMessage(query),
		ai.Message{ID: ai.GenerateMessageID(), Role: ai.RoleAssistant, Content: answer},
	)
	if err := s.sessions.Save(ctx, id, turns); err != nil {
		log.Warn("failed to save session", "error", err)
	}
}

// handleStream runs the agent and writes one JSON event per line.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": emptyQueryMsg})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()

	log := s.logger.With("endpoint", "stream", "session_id", req.SessionID)
	log.Info("request started", "query", req.Query)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	enc := json.NewEncoder(w)
	write := func(ev event.Event) error {
		if err := enc.Encode(ev); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := write(event.Event{Type: event.Thinking, Content: analyzingText}); err != nil {
		log.Warn("client went away", "error", err)
		return
	}

	history := s.history(ctx, &req, log)
	var (
		count int
		final string
	)
	for ev := range s.agent.RunStream(ctx, req.Query, s.runOptions(history, log)...) {
		if ev.Type == event.FinalComplete {
			final = ev.Content
		}
		if err := write(ev); err != nil {
			log.Warn("failed to write event", "error", err, "event_type", ev.Type)
			cancel()
			continue
		}
		count++
	}

	s.saveSession(r.Context(), req.SessionID, history, req.Query, final, log)

	log.Info("request completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"events_sent", count,
	)
}

// analyzeResponse is the body returned by /api/analyze.
type analyzeResponse struct {
	Status string        `json:"status"`
	RunID  string        `json:"run_id"`
	Answer string        `json:"answer,omitempty"`
	Steps  int           `json:"steps"`
	Usage  ai.Usage      `json:"usage"`
	Cost   *float64      `json:"cost_usd,omitempty"`
	Events []event.Event `json:"events"`
	Error  string        `json:"error,omitempty"`
}

// handleAnalyze runs the agent to completion and returns the collected result.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		req.Query = defaultQuery
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()

	log := s.logger.With("endpoint", "analyze", "session_id", req.SessionID)
	history := s.history(ctx, &req, log)
	res, err := s.agent.Run(ctx, req.Query, s.runOptions(history, log)...)

	body := analyzeResponse{
		Status: "success",
		RunID:  res.RunID,
		Answer: res.Answer,
		Steps:  res.Steps,
		Usage:  res.Usage,
		Events: res.Events,
	}
	if s.priced {
		cost := s.model.Cost(res.Usage)
		body.Cost = &cost
	}
	if err != nil {
		body.Status = "error"
		body.Error = err.Error()
		writeJSON(w, statusFor(err), body)
		return
	}
	s.saveSession(r.Context(), req.SessionID, history, req.Query, res.Answer, log)
	writeJSON(w, http.StatusOK, body)
}

// handleVisualization returns a chart.js payload.
func (s *Server) handleVisualization(w http.ResponseWriter, r *http.Request) {
	var req chart.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "error": "Invalid request body: " + err.Error()})
		return
	}

	payload, err := s.charts.Build(r.Context(), req)
	if err != nil {
		s.logger.Warn("chart failed", "ticker", req.Ticker, "chart_type", req.ChartType, "error", err)
		writeJSON(w, statusFor(err), map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleAGUI runs the agent and streams AG-UI protocol events over SSE.
func (s *Server) handleAGUI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var input agui.RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.logger.Warn("invalid request body", "error", err)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	log := s.logger.With(
		"endpoint", "agui",
		"run_id", input.RunID,
		"thread_id", input.ThreadID,
	)

	prepared, err := input.Prepare()
	if err != nil {
		log.Warn("invalid input", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout)
	defer cancel()

	log.Info("request started", "message_count", len(prepared.History)+1)

	mapper := agui.NewMapper(prepared.ThreadID, prepared.RunID)
	opts := []agent.Option{
		agent.WithMaxSteps(s.config.MaxSteps),
		agent.WithToolTimeout(s.config.ToolTimeout),
		agent.WithNativeTools(s.config.NativeTools),
		agent.WithHistory(prepared.History),
		agent.WithLogger(log),
	}

	var eventCount int
	var lastError error
	for ev := range mapper.MapStream(s.agent.RunStream(ctx, prepared.Question, opts...)) {
		if lastError != nil {
			continue
		}
		if err := writeSSE(w, flusher, ev); err != nil {
			log.Error("failed to write SSE event", "error", err, "event_type", ev.Type())
			lastError = err
			cancel()
			continue
		}
		eventCount++
	}

	duration := time.Since(start)
	if lastError != nil {
		log.Error("request failed",
			"duration_ms", duration.Milliseconds(),
			"events_sent", eventCount,
			"error", lastError,
		)
		return
	}
	log.Info("request completed",
		"duration_ms", duration.Milliseconds(),
		"events_sent", eventCount,
	)
}

// handleTools lists the tool descriptors.
func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.agent.Registry().DescribeAll()})
}

// writeSSE writes an AG-UI event in SSE format.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev aguievents.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), string(data)); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	flusher.Flush()
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	switch {
	case ai.IsUserInput(err), errors.Is(err, ai.ErrEmptyQuery), errors.Is(err, chart.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrNoData):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, agent.ErrAgentTimeout):
		return http.StatusGatewayTimeout
	case ai.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// corsMiddleware adds CORS headers for cross-origin frontend requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// healthHandler returns a simple health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
