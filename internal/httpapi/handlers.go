package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"bedrockchat/internal/providers"
	"bedrockchat/internal/providers/registry"
	"bedrockchat/internal/storage"
	"bedrockchat/internal/worker"
)

const (
	msgMissingPrompt   = "Missing 'prompt' in request body"
	msgUpstreamFailed  = "Failed to get response from Bedrock"
	msgListFailed      = "Failed to list models"
	msgRateLimited     = "Rate limit exceeded"
	msgHistoryDisabled = "History is not enabled"
	msgHistoryFailed   = "Failed to load history"

	defaultHistoryLimit = 50
)

type chatRequest struct {
	Prompt  *string `json:"prompt"`
	ModelID string  `json:"model_id"`
}

type chatResponse struct {
	Response string `json:"response"`
	Degraded bool   `json:"degraded,omitempty"`
}

type modelEntry struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type modelsResponse struct {
	Models []modelEntry `json:"models"`
}

type historyResponse struct {
	Entries []storage.ChatLogEntry `json:"entries"`
}

func (s *Service) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "API is running!")
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, "ok")
}

func (s *Service) handleHello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Hello from the API!"})
}

func (s *Service) handleModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.catalog.Models(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("failed to list models")
		writeError(w, http.StatusInternalServerError, msgListFailed)
		return
	}

	out := modelsResponse{Models: make([]modelEntry, 0, len(models))}
	for _, m := range models {
		out.Models = append(out.Models, modelEntry{Name: m.Alias, ID: m.ProviderID})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := requestID(ctx)
	log := s.logger.With().Str("request_id", reqID).Logger()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == nil || strings.TrimSpace(*req.Prompt) == "" {
		s.finishChat(w, http.StatusBadRequest, msgMissingPrompt)
		return
	}
	prompt := *req.Prompt

	target, err := s.catalog.Resolve(req.ModelID)
	if err != nil {
		if errors.Is(err, registry.ErrUnknownModel) {
			s.finishChat(w, http.StatusBadRequest, "Unknown model: "+strings.TrimSpace(req.ModelID))
			return
		}
		log.Error().Err(err).Str("model", req.ModelID).Msg("failed to resolve model")
		s.finishChat(w, http.StatusInternalServerError, msgUpstreamFailed)
		return
	}
	if target.Unregistered {
		log.Warn().
			Str("selector", req.ModelID).
			Str("model_id", target.ProviderID).
			Str("family", target.Family.String()).
			Msg("model not in catalog, using unknown-model policy")
	}

	if !s.allow(ctx, clientKey(r)) {
		s.finishChat(w, http.StatusTooManyRequests, msgRateLimited)
		return
	}

	invokeCtx := ctx
	if s.invokeTimeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, s.invokeTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := s.provider.Chat(invokeCtx, providers.ChatRequest{Prompt: prompt, Target: target})
	latency := time.Since(start)
	if err != nil {
		log.Error().Err(err).
			Str("model", target.Alias).
			Str("model_id", target.ProviderID).
			Msg("chat invocation failed")
		s.recordChat(reqID, prompt, target, http.StatusInternalServerError, false, latency)
		s.finishChat(w, http.StatusInternalServerError, msgUpstreamFailed)
		return
	}

	s.recordChat(reqID, prompt, target, http.StatusOK, resp.Degraded(), latency)
	s.metrics.ChatRequests.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	writeJSON(w, http.StatusOK, chatResponse{Response: resp.Text, Degraded: resp.Degraded()})
}

func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, msgHistoryDisabled)
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := s.history.ListRecentChatLogs(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Msg("failed to list chat history")
		writeError(w, http.StatusInternalServerError, msgHistoryFailed)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Entries: entries})
}

func (s *Service) finishChat(w http.ResponseWriter, status int, msg string) {
	s.metrics.ChatRequests.WithLabelValues(strconv.Itoa(status)).Inc()
	writeError(w, status, msg)
}

// allow fails open when the limiter backend is unavailable.
func (s *Service) allow(ctx context.Context, client string) bool {
	if s.rateLimiter == nil {
		return true
	}
	allowed, used, resetAt, err := s.rateLimiter.Allow(ctx, client, s.now())
	if err != nil {
		s.logger.Error().Err(err).Str("client", client).Msg("rate limiter unavailable")
		return true
	}
	if !allowed {
		s.metrics.RateLimited.Inc()
		s.logger.Warn().Str("client", client).Int64("used", used).Time("reset_at", resetAt).Msg("rate limit exceeded")
	}
	return allowed
}

func (s *Service) recordChat(reqID, prompt string, target providers.Target, status int, degraded bool, latency time.Duration) {
	if s.chatLog == nil {
		return
	}
	s.chatLog.Submit(worker.Record{
		Entry: storage.ChatLogEntry{
			RequestID:   reqID,
			ModelAlias:  target.Alias,
			ProviderID:  target.ProviderID,
			Family:      target.Family.String(),
			PromptChars: utf8.RuneCountInString(prompt),
			Status:      status,
			Degraded:    degraded,
			LatencyMS:   latency.Milliseconds(),
		},
		Prompt: prompt,
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
