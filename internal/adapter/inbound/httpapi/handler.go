package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/janzheng/mcp-navigator/internal/domain"
	"github.com/janzheng/mcp-navigator/internal/observability"
	"github.com/janzheng/mcp-navigator/internal/usecase"
)

// HeaderRequestID carries the per-request correlation ID.
const HeaderRequestID = "X-Request-ID"

// HeaderUpstreamKey lets a caller supply their own upstream API key.
const HeaderUpstreamKey = "X-Upstream-Api-Key"

const maxBodyBytes = 1 << 20

// Dependencies groups what the handlers call into.
type Dependencies struct {
	Query     *usecase.HandleQueryUseCase
	Functions *usecase.ListFunctionsUseCase
	Curl      *usecase.CurlUseCase
	Registry  usecase.ToolRegistry
	Public    usecase.PublicRegistry // optional
	Metrics   *observability.Metrics
}

// Handlers serves the JSON API.
type Handlers struct {
	deps   Dependencies
	logger *slog.Logger
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(deps Dependencies, logger *slog.Logger) *Handlers {
	return &Handlers{
		deps:   deps,
		logger: logger.With("component", "httpapi"),
	}
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handlers) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("POST /api/query", h.withRequestID(h.handleQuery))
	mux.Handle("POST /api/execute", h.withRequestID(h.handleExecute))
	mux.Handle("POST /api/functions", h.withRequestID(h.handleFunctions))
	mux.Handle("POST /api/curl", h.withRequestID(h.handleCurl))
	mux.Handle("GET /api/tools", h.withRequestID(h.handleListTools))
	mux.Handle("GET /api/registry/search", h.withRequestID(h.handleRegistrySearch))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", h.deps.Metrics.Handler())
}

// Handler returns a mux with every route registered.
func (h *Handlers) Handler() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

type loggerKey struct{}

func (h *Handlers) withRequestID(next func(http.ResponseWriter, *http.Request)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		log := h.logger.With(slog.String("request_id", id), slog.String("path", r.URL.Path))
		next(w, r.WithContext(context.WithValue(r.Context(), loggerKey{}, log)))
	})
}

func (h *Handlers) log(r *http.Request) *slog.Logger {
	if l, ok := r.Context().Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return h.logger
}

// ToolList accepts either a JSON array of names or a comma-separated string.
type ToolList []string

func (t *ToolList) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*t = list
		return nil
	}
	var csv string
	if err := json.Unmarshal(b, &csv); err != nil {
		return fmt.Errorf("tools must be a string or an array of strings")
	}
	*t = usecase.SplitToolNames(csv)
	return nil
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query        string                       `json:"query"`
	Conversation []domain.ConversationTurn    `json:"conversation"`
	Headers      map[string]map[string]string `json:"headers"`
}

// ExecuteRequest is the body of POST /api/execute and POST /api/curl.
type ExecuteRequest struct {
	Tools        ToolList                     `json:"tools"`
	Query        string                       `json:"query"`
	Conversation []domain.ConversationTurn    `json:"conversation"`
	Headers      map[string]map[string]string `json:"headers"`
}

// FunctionsRequest is the body of POST /api/functions.
type FunctionsRequest struct {
	Tool         string                       `json:"tool"`
	Conversation []domain.ConversationTurn    `json:"conversation"`
	Headers      map[string]map[string]string `json:"headers"`
}

func (h *Handlers) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.log(r).Info("Received query", slog.Int("conversation_turns", len(req.Conversation)))
	resp, err := h.deps.Query.Handle(r.Context(), usecase.QueryRequest{
		Query:        req.Query,
		Conversation: req.Conversation,
		Headers:      req.Headers,
		APIKey:       r.Header.Get(HeaderUpstreamKey),
	})
	h.writeQueryResponse(w, r, resp, err)
}

func (h *Handlers) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.log(r).Info("Received execute request", slog.Any("tools", []string(req.Tools)))
	resp, err := h.deps.Query.Execute(r.Context(), usecase.ExecuteRequest{
		Tools:        strings.Join(req.Tools, ","),
		Query:        req.Query,
		Headers:      req.Headers,
		Conversation: req.Conversation,
		APIKey:       r.Header.Get(HeaderUpstreamKey),
	})
	h.writeQueryResponse(w, r, resp, err)
}

func (h *Handlers) writeQueryResponse(w http.ResponseWriter, r *http.Request, resp *usecase.QueryResponse, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if resp.Error != nil {
		status = resp.Error.StatusCode
		h.log(r).Warn("Query completed with error",
			slog.String("category", string(resp.Error.Category)),
			slog.Int("status_code", status))
	}
	writeJSON(w, status, resp)
}

func (h *Handlers) handleFunctions(w http.ResponseWriter, r *http.Request) {
	var req FunctionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	listing, err := h.deps.Functions.Execute(r.Context(), usecase.ListFunctionsRequest{
		Tool:         req.Tool,
		Headers:      req.Headers,
		Conversation: req.Conversation,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (h *Handlers) handleCurl(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if !h.decode(w, r, &req) {
		return
	}
	example, err := h.deps.Curl.Generate(r.Context(), usecase.CurlRequest{
		Tools:        req.Tools,
		Query:        req.Query,
		Headers:      req.Headers,
		Conversation: req.Conversation,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, example)
}

// ToolView is a registry entry with header values withheld.
type ToolView struct {
	Name        string            `json:"name"`
	ServerLabel string            `json:"server_label"`
	ServerURL   string            `json:"server_url"`
	Headers     []string          `json:"headers,omitempty"`
	Description string            `json:"description,omitempty"`
	Meta        *domain.ToolMeta  `json:"meta,omitempty"`
	Source      domain.ToolSource `json:"source"`
}

func viewOf(d domain.ToolDescriptor) ToolView {
	v := ToolView{
		Name:        d.Name,
		ServerLabel: d.ServerLabel,
		ServerURL:   d.ServerURL,
		Description: d.Description(),
		Meta:        d.Meta,
		Source:      d.Source,
	}
	for name := range d.Headers {
		v.Headers = append(v.Headers, name)
	}
	sort.Strings(v.Headers)
	return v
}

func (h *Handlers) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := h.deps.Registry.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]ToolView, 0, len(tools))
	for _, t := range tools {
		views = append(views, viewOf(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": views})
}

func (h *Handlers) handleRegistrySearch(w http.ResponseWriter, r *http.Request) {
	if h.deps.Public == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": &usecase.ErrorPayload{
			Category:   domain.CategoryUpstream,
			Message:    "public registry is not configured",
			StatusCode: http.StatusServiceUnavailable,
		}})
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		h.writeError(w, r, fmt.Errorf("%w: query parameter q is required", usecase.ErrInvalidInput))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.deps.Public.Search(r.Context(), q, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	views := make([]ToolView, 0, len(results))
	for _, t := range results {
		views = append(views, viewOf(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{"query": q, "results": views})
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		h.log(r).Warn("Failed to decode request body", slog.Any("error", err))
		h.writeError(w, r, fmt.Errorf("%w: invalid request body: %v", usecase.ErrInvalidInput, err))
		return false
	}
	return true
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	payload := usecase.DescribeError(err)
	if payload.StatusCode >= 500 && !errors.Is(err, usecase.ErrSelectionParse) {
		h.log(r).Error("Request failed", slog.String("category", string(payload.Category)), slog.Any("error", err))
	} else {
		h.log(r).Warn("Request rejected", slog.String("category", string(payload.Category)), slog.Any("error", err))
	}
	writeJSON(w, payload.StatusCode, map[string]any{"error": payload})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
