package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ashita-ai/compass/internal/consensus"
	"github.com/ashita-ai/compass/internal/format"
	"github.com/ashita-ai/compass/internal/guardrail"
	"github.com/ashita-ai/compass/internal/memory"
	"github.com/ashita-ai/compass/internal/orchestrator"
)

// ModelLister is the subset of *router.Client the status handler uses
// to report the model set the Model Router currently advertises.
type ModelLister interface {
	ListModels(ctx context.Context) ([]ModelInfo, error)
}

// ModelInfo mirrors router.ModelInfo without requiring a direct import.
type ModelInfo struct {
	ID      string
	OwnedBy string
}

// StationStatus is the subset of station.Client the façade reads from.
type StationStatus interface {
	IsHealthy() bool
	IsActive() bool
	State() string
	Mode() string
	Uptime() time.Duration
}

// MetricsSnapshotter is the subset of metrics.Registry the façade reads from.
type MetricsSnapshotter interface {
	Snapshot() MetricsSnapshot
	WriteExposition(w io.Writer) error
}

// MetricsSnapshot mirrors metrics.Snapshot for use outside that package.
type MetricsSnapshot struct {
	QueriesTotal     int64
	SuccessfulTotal  int64
	FailedTotal      int64
	RequestsTotal    int64
	UnanimousTotal   int64
	SplitTotal       int64
	NoConsensusTotal int64
}

// Handlers holds HTTP handler dependencies for the Compass façade.
type Handlers struct {
	orch    *orchestrator.Orchestrator
	mem     *memory.Store
	station StationStatus
	metrics MetricsSnapshotter
	models  ModelLister
	logger  *slog.Logger

	startedAt        time.Time
	version          string
	configuredModels []string
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Mem, Models.
type HandlersDeps struct {
	Orchestrator     *orchestrator.Orchestrator
	Mem              *memory.Store
	Station          StationStatus
	Metrics          MetricsSnapshotter
	Models           ModelLister
	Logger           *slog.Logger
	Version          string
	ConfiguredModels []string
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		orch:             d.Orchestrator,
		mem:              d.Mem,
		station:          d.Station,
		metrics:          d.Metrics,
		models:           d.Models,
		logger:           d.Logger,
		startedAt:        time.Now(),
		version:          d.Version,
		configuredModels: d.ConfiguredModels,
	}
}

// queryRequest is the body of POST /query.
type queryRequest struct {
	Question string   `json:"question"`
	Context  string   `json:"context"`
	Models   []string `json:"models"`
	Format   string   `json:"format"`
}

// HandleQuery handles POST /query.
func (h *Handlers) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "question is required")
		return
	}

	sessionID := r.Header.Get("X-Session-Id")
	result, err := h.orch.ExecuteJuryQuery(r.Context(), orchestrator.Request{
		Question:  req.Question,
		Context:   req.Context,
		Models:    req.Models,
		SessionID: sessionID,
	})
	if err != nil {
		h.writeJuryError(w, r, err)
		return
	}

	h.writeFormattedResult(w, r, result, req.Format)
}

func (h *Handlers) writeFormattedResult(w http.ResponseWriter, r *http.Request, result consensus.Result, formatParam string) {
	switch format.ParseMode(formatParam) {
	case format.ModeMarkdown:
		writeJSON(w, r, http.StatusOK, format.Markdown(result))
	case format.ModeTwitter:
		writeJSON(w, r, http.StatusOK, format.Twitter(result))
	default:
		writeJSON(w, r, http.StatusOK, result)
	}
}

// writeJuryError maps an orchestrator error to the façade's error
// envelope. A *guardrail.BlockedError surfaces as GUARDRAIL_BLOCKED
// with its reason and risk level; anything else is a generic 400.
func (h *Handlers) writeJuryError(w http.ResponseWriter, r *http.Request, err error) {
	var blocked *guardrail.BlockedError
	if errors.As(err, &blocked) {
		writeErrorDetail(w, r, http.StatusBadRequest, errorDetail{
			Code:      "GUARDRAIL_BLOCKED",
			Message:   blocked.Error(),
			Reason:    blocked.Reason,
			RiskLevel: string(blocked.Risk),
		})
		return
	}
	writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

// chatHistoryTurn is one prior turn supplied to POST /api/chat.
type chatHistoryTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the body of POST /api/chat.
type chatRequest struct {
	Message string            `json:"message"`
	History []chatHistoryTurn `json:"history"`
}

// chatResponse is the compact chat-shaped object POST /api/chat returns.
type chatResponse struct {
	Answer            string            `json:"answer"`
	Verdict           string            `json:"verdict"`
	Score             float64           `json:"score"`
	ModelAnswers      map[string]string `json:"model_answers"`
	FailedModels      []string          `json:"failed_models"`
	SessionID         string            `json:"session_id"`
	MemoryUsed        bool              `json:"memory_used"`
	ReflectionApplied bool              `json:"reflection_applied"`
}

// HandleChat handles POST /api/chat.
func (h *Handlers) HandleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "message is required")
		return
	}

	sessionID := r.Header.Get("X-Session-Id")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	result, err := h.orch.ExecuteJuryQuery(r.Context(), orchestrator.Request{
		Question:  req.Message,
		Context:   historyToContext(req.History),
		SessionID: sessionID,
	})
	if err != nil {
		h.writeJuryError(w, r, err)
		return
	}

	resp := chatResponse{
		Verdict:      string(result.Verdict),
		Score:        result.Score,
		ModelAnswers: make(map[string]string, len(result.Responses)),
		SessionID:    sessionID,
		MemoryUsed:   result.MemoryUsed,
	}
	if result.Representative != nil {
		resp.Answer = result.Representative.Answer
	}
	if result.QualityScore != nil {
		resp.ReflectionApplied = true
	}
	for _, mr := range result.Responses {
		if mr.Success {
			resp.ModelAnswers[mr.Model] = mr.Answer
		} else {
			resp.FailedModels = append(resp.FailedModels, mr.Model)
		}
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// historyToContext flattens prior chat turns into the plain-text
// context format the orchestrator accepts, oldest first.
func historyToContext(history []chatHistoryTurn) string {
	if len(history) == 0 {
		return ""
	}
	var b strings.Builder
	for i, turn := range history {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", turn.Role, turn.Content)
	}
	return b.String()
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Uptime int64  `json:"uptime"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	httpStatus := http.StatusOK
	if h.station == nil || !h.station.IsHealthy() {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	state := ""
	uptime := int64(0)
	if h.station != nil {
		state = h.station.State()
		uptime = int64(h.station.Uptime().Seconds())
	}

	writeJSON(w, r, httpStatus, healthResponse{Status: status, State: state, Uptime: uptime})
}

// statusResponse is the body of GET /status.
type statusResponse struct {
	State            string          `json:"state"`
	Mode             string          `json:"mode"`
	Uptime           int64           `json:"uptime"`
	Metrics          MetricsSnapshot `json:"metrics"`
	ConfiguredModels []string        `json:"configured_models"`
	AvailableModels  []string        `json:"available_models,omitempty"`
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{ConfiguredModels: h.configuredModels}
	if h.station != nil {
		resp.State = h.station.State()
		resp.Mode = h.station.Mode()
		resp.Uptime = int64(h.station.Uptime().Seconds())
	}
	if h.metrics != nil {
		resp.Metrics = h.metrics.Snapshot()
	}
	if h.models != nil {
		if available, err := h.models.ListModels(r.Context()); err == nil {
			ids := make([]string, 0, len(available))
			for _, m := range available {
				ids = append(ids, m.ID)
			}
			resp.AvailableModels = ids
		} else {
			h.logger.Debug("status: list models failed, omitting available_models", "error", err)
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// HandleMetrics handles GET /metrics.
func (h *Handlers) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if h.metrics == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	if err := h.metrics.WriteExposition(w); err != nil {
		h.logger.Error("metrics: write exposition failed", "error", err)
	}
}

// memoryEntryResponse is one entry in the GET /api/chat/history response.
type memoryEntryResponse struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Verdict   string    `json:"verdict"`
	Score     float64   `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleChatHistory handles GET /api/chat/history/{sessionId}.
func (h *Handlers) HandleChatHistory(w http.ResponseWriter, r *http.Request) {
	if h.mem == nil {
		writeError(w, r, http.StatusServiceUnavailable, "MEMORY_DISABLED", "memory is not enabled")
		return
	}
	sessionID := r.PathValue("sessionId")
	if sessionID == "" {
		writeError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "sessionId is required")
		return
	}

	entries, err := h.mem.History(r.Context(), sessionID)
	if err != nil {
		h.writeInternalError(w, r, "failed to load session history", err)
		return
	}

	resp := make([]memoryEntryResponse, len(entries))
	for i, e := range entries {
		resp[i] = memoryEntryResponse{
			ID: e.ID, Question: e.Question, Answer: e.Answer,
			Verdict: e.Verdict, Score: e.Score, Timestamp: e.Timestamp,
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// memoryStatsResponse is the body of GET /api/memory/stats.
type memoryStatsResponse struct {
	ActiveSessions      int `json:"active_sessions"`
	TotalSessionQueries int `json:"total_session_queries"`
	LongTermMemorySize  int `json:"long_term_memory_size"`
}

// HandleMemoryStats handles GET /api/memory/stats.
func (h *Handlers) HandleMemoryStats(w http.ResponseWriter, r *http.Request) {
	if h.mem == nil {
		writeError(w, r, http.StatusServiceUnavailable, "MEMORY_DISABLED", "memory is not enabled")
		return
	}
	stats, err := h.mem.Stats(r.Context())
	if err != nil {
		h.writeInternalError(w, r, "failed to load memory stats", err)
		return
	}
	writeJSON(w, r, http.StatusOK, memoryStatsResponse{
		ActiveSessions:      stats.ActiveSessions,
		TotalSessionQueries: stats.TotalSessionQueries,
		LongTermMemorySize:  stats.LongTermMemorySize,
	})
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", msg)
}
