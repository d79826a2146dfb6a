package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/davidbz/hearth/internal/cache"
	"github.com/davidbz/hearth/internal/contextwindow"
	"github.com/davidbz/hearth/internal/domain"
	"github.com/davidbz/hearth/internal/gateway"
	"github.com/davidbz/hearth/internal/observability"
	"github.com/davidbz/hearth/internal/pipeline"
	"github.com/davidbz/hearth/internal/ratelimit"
	"github.com/davidbz/hearth/internal/stream"
)

// Handler handles HTTP requests.
type Handler struct {
	gateway *gateway.Service
}

// NewHandler creates a new HTTP handler (DI constructor).
func NewHandler(gateway *gateway.Service) *Handler {
	return &Handler{
		gateway: gateway,
	}
}

// generateRequest is the shared request body for text, chat, stream and
// image endpoints. Provider is optional; empty selects the default.
type generateRequest struct {
	Provider string                  `json:"provider,omitempty"`
	Prompt   string                  `json:"prompt,omitempty"`
	Messages []domain.Message        `json:"messages,omitempty"`
	Options  *domain.GenerateOptions `json:"options,omitempty"`
	Image    *domain.ImageOptions    `json:"image_options,omitempty"`
}

// HandleGenerateText processes single-prompt completion requests.
func (h *Handler) HandleGenerateText(w http.ResponseWriter, r *http.Request) {
	req, ctx, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}

	result, err := h.gateway.GenerateText(ctx, req.Provider, req.Prompt, req.Options)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, result)
}

// HandleGenerateChat processes multi-message completion requests.
func (h *Handler) HandleGenerateChat(w http.ResponseWriter, r *http.Request) {
	req, ctx, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}

	result, err := h.gateway.GenerateChat(ctx, req.Provider, req.Messages, req.Options)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, result)
}

// HandleEmbeddings processes embedding requests.
func (h *Handler) HandleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Provider string `json:"provider,omitempty"`
		Text     string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx := observability.WithProvider(r.Context(), req.Provider)
	result, err := h.gateway.GenerateEmbedding(ctx, req.Provider, req.Text)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, result)
}

// HandleImages processes image generation requests.
func (h *Handler) HandleImages(w http.ResponseWriter, r *http.Request) {
	req, ctx, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}

	result, err := h.gateway.GenerateImage(ctx, req.Provider, req.Prompt, req.Image)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, result)
}

// HandleStream serves completions over SSE. Chat messages take precedence
// over a bare prompt when both are present.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ctx, ok := h.decodeGenerate(w, r)
	if !ok {
		return
	}

	logger := observability.FromContext(ctx)

	var session *stream.Session
	var err error
	if len(req.Messages) > 0 {
		session, err = h.gateway.OpenChatStream(ctx, req.Provider, req.Messages, req.Options)
	} else {
		session, err = h.gateway.OpenTextStream(ctx, req.Provider, req.Prompt, req.Options)
	}
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	defer session.Cancel()

	flusher, ok2 := w.(http.Flusher)
	if !ok2 {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Stream-Session", session.ID())

	for {
		select {
		case ev, open := <-session.Events():
			if !open {
				return
			}
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-ctx.Done():
			logger.Info("client disconnected, cancelling stream",
				observability.String("session", session.ID()))
			return
		}
	}
}

// optimizeRequest is the body for context optimization requests.
type optimizeRequest struct {
	Messages  []domain.Message     `json:"messages"`
	MaxTokens int                  `json:"maxTokens"`
	Config    contextwindow.Config `json:"config"`
}

// HandleOptimizeContext compresses a conversation into a token budget.
func (h *Handler) HandleOptimizeContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req optimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	result, err := h.gateway.OptimizeContext(ctx, req.Messages, req.MaxTokens, req.Config)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, result)
}

// HandleStatus reports the operational snapshot.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, h.gateway.Status(r.Context()))
}

// configRequest mirrors gateway.RuntimeConfig with wire-friendly durations.
type configRequest struct {
	RateLimit *struct {
		MaxRequests   int `json:"max_requests"`
		IntervalMs    int `json:"interval_ms"`
		MinGapMs      int `json:"min_gap_ms"`
		MaxConcurrent int `json:"max_concurrent"`
		QueueDepth    int `json:"queue_depth"`
	} `json:"rate_limit,omitempty"`
	Retry *struct {
		MaxRetries  int `json:"max_retries"`
		BaseDelayMs int `json:"base_delay_ms"`
		MaxDelayMs  int `json:"max_delay_ms"`
	} `json:"retry,omitempty"`
	Cache *struct {
		Enabled    bool `json:"enabled"`
		TTLSeconds int  `json:"ttl_seconds"`
		MaxSize    int  `json:"max_size"`
	} `json:"cache,omitempty"`
}

// HandleConfig applies runtime configuration changes.
func (h *Handler) HandleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	runtime := gateway.RuntimeConfig{}
	if req.RateLimit != nil {
		runtime.RateLimit = &ratelimit.Config{
			Capacity:       req.RateLimit.MaxRequests,
			RefillInterval: time.Duration(req.RateLimit.IntervalMs) * time.Millisecond,
			MinGap:         time.Duration(req.RateLimit.MinGapMs) * time.Millisecond,
			MaxConcurrent:  req.RateLimit.MaxConcurrent,
			QueueDepth:     req.RateLimit.QueueDepth,
		}
	}
	if req.Retry != nil {
		runtime.Retry = &pipeline.RetryConfig{
			MaxRetries: req.Retry.MaxRetries,
			BaseDelay:  time.Duration(req.Retry.BaseDelayMs) * time.Millisecond,
			MaxDelay:   time.Duration(req.Retry.MaxDelayMs) * time.Millisecond,
		}
	}
	if req.Cache != nil {
		runtime.Cache = &cache.Options{
			Enabled: req.Cache.Enabled,
			TTL:     time.Duration(req.Cache.TTLSeconds) * time.Second,
			MaxSize: req.Cache.MaxSize,
		}
	}

	h.gateway.ApplyConfig(r.Context(), runtime)
	writeJSON(r.Context(), w, map[string]string{"status": "applied"})
}

// HandleHealth handles health check requests.
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
	}); err != nil {
		// Already written status, can't change it, just log.
		return
	}
}

// decodeGenerate performs the method check, body decode and context
// enrichment shared by the generation endpoints.
func (h *Handler) decodeGenerate(w http.ResponseWriter, r *http.Request) (*generateRequest, context.Context, bool) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, nil, false
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return nil, nil, false
	}

	ctx := observability.WithProvider(r.Context(), req.Provider)
	if req.Options != nil {
		ctx = observability.WithModel(ctx, req.Options.Model)
	}

	logger := observability.FromContext(ctx)
	logger.Info("generation request received",
		zap.String("provider", req.Provider),
		zap.String("path", r.URL.Path),
	)

	return &req, ctx, true
}

// statusFor maps taxonomy codes to HTTP status codes.
func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeValidationError:
		return http.StatusBadRequest
	case domain.ErrorCodeAuthenticationFailed:
		return http.StatusUnauthorized
	case domain.ErrorCodeModelNotFound:
		return http.StatusNotFound
	case domain.ErrorCodeContentFiltered:
		return http.StatusUnprocessableEntity
	case domain.ErrorCodeRateLimitExceeded, domain.ErrorCodeQuotaExceeded:
		return http.StatusTooManyRequests
	case domain.ErrorCodeFeatureNotSupported:
		return http.StatusNotImplemented
	case domain.ErrorCodeNetworkError:
		return http.StatusBadGateway
	case domain.ErrorCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a failure as a JSON error envelope with the HTTP status
// implied by its taxonomy code.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	logger := observability.FromContext(ctx)
	logger.Error("request failed", zap.Error(err))

	var typed *domain.Error
	if !errors.As(err, &typed) {
		typed = domain.NewError(domain.ErrorCodeUnknown, err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(typed.Code))
	_ = json.NewEncoder(w).Encode(map[string]any{"error": typed})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, payload any) {
	logger := observability.FromContext(ctx)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("failed to encode response", zap.Error(err))
	}
}
