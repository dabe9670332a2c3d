// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/askbase-go/internal/auth"
	"github.com/askbase-go/internal/llm"
	"github.com/askbase-go/internal/models"
)

// Handler defaults applied when the caller did not (or may not) override.
const (
	defaultTemperature      = float32(0.1)
	defaultTopP             = float32(1)
	defaultMatchCount       = 10
	defaultMatchThreshold   = float32(0.5)
	defaultFrequencyPenalty = float32(0)
	defaultPresencePenalty  = float32(0)
)

func floatOr(v *float32, def float32) float32 {
	if v != nil {
		return *v
	}
	return def
}

func intOr(v *int, def int) int {
	if v != nil {
		return *v
	}
	return def
}

func stringOr(v *string, def string) string {
	if v != nil && *v != "" {
		return *v
	}
	return def
}

// resolveOrigin extracts the project identifier and decides whether the
// request originates from the first-party dashboard. Path-segment requests
// are always external; the query-parameter form is dashboard-originated only
// when it carries a valid first-party token for the same project.
func (s *Server) resolveOrigin(c *gin.Context) (string, bool, error) {
	if projectID := c.Param("project"); projectID != "" {
		return projectID, false, nil
	}
	projectID := c.Query("project")
	if projectID == "" {
		return "", false, newAPIError(http.StatusBadRequest, "missing project identifier")
	}
	if token, ok := auth.BearerToken(c.GetHeader("Authorization")); ok {
		claims, err := auth.VerifyDashboardToken(token, s.cfg.Server.JWTSecret)
		if err == nil && claims.ProjectID == projectID {
			return projectID, true, nil
		}
	}
	return projectID, false, nil
}

// checkRateLimit enforces the per-project throttle. The limiter is advisory:
// an internal limiter error fails open.
func (s *Server) checkRateLimit(c *gin.Context, projectID string) error {
	allowed, err := s.limiter.Allow(c.Request.Context(), projectID)
	if err != nil {
		s.log.Warn().Err(err).Str("project", projectID).Msg("rate limiter check failed")
		return nil
	}
	if !allowed {
		s.log.Warn().Str("project", projectID).Str("ip", c.ClientIP()).Msg("rate limited")
		return newAPIError(http.StatusTooManyRequests, "too many requests")
	}
	return nil
}

// resolveParams applies handler defaults on top of whatever survived the tier
// gate and validates the model id against the endpoint's API kind.
func (s *Server) resolveParams(req *models.CompletionRequest, defaultModel string, kind llm.ModelKind) (llm.CompletionParams, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = defaultModel
	}
	model, err := llm.ParseModel(modelID)
	if err != nil {
		return llm.CompletionParams{}, newAPIError(http.StatusBadRequest, "%v", err)
	}
	if model.Kind != kind {
		return llm.CompletionParams{}, newAPIError(http.StatusBadRequest, "model %q is not valid for this endpoint", modelID)
	}
	return llm.CompletionParams{
		Model:            model,
		Temperature:      floatOr(req.Temperature, defaultTemperature),
		TopP:             floatOr(req.TopP, defaultTopP),
		FrequencyPenalty: floatOr(req.FrequencyPenalty, defaultFrequencyPenalty),
		PresencePenalty:  floatOr(req.PresencePenalty, defaultPresencePenalty),
		MaxTokens:        intOr(req.MaxTokens, s.cfg.Completion.MaxCompletionTokens),
	}, nil
}

// moderate runs every context message through the moderation gate. Nothing
// reaches the upstream model unmoderated.
func (s *Server) moderate(ctx context.Context, apiKey string, texts []string) error {
	for _, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		flagged, err := s.upstream.Moderate(ctx, apiKey, text)
		if err != nil {
			return newAPIError(http.StatusBadRequest, "moderation failed: %v", err)
		}
		if flagged {
			return newAPIError(http.StatusBadRequest, "content flagged by moderation")
		}
	}
	return nil
}

// persistPlaceholder writes a prompt record on the retrieval-failure path so
// the interaction is not silently lost even though the request fails. This is
// the one path where a record is created after an error.
func (s *Server) persistPlaceholder(ctx context.Context, projectID string, req *models.CompletionRequest, prompt string, embedding []float32, status string) {
	conversationID, err := s.store.EnsureConversation(ctx, projectID, req.ConversationID, req.ConversationMetadata)
	if err != nil {
		s.log.Error().Err(err).Str("project", projectID).Msg("failed to create conversation for placeholder record")
		return
	}
	rec := &models.PromptRecord{
		ProjectID:           projectID,
		ConversationID:      conversationID,
		Prompt:              prompt,
		Embedding:           embedding,
		Status:              status,
		ExcludeFromInsights: req.ExcludeFromInsights,
		Redact:              req.Redact,
	}
	if err := s.store.CreatePrompt(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("project", projectID).Msg("failed to persist placeholder record")
	}
}

// finalize updates the stored record once the response text is known. The
// client does not wait on this write.
func (s *Server) finalize(ctx context.Context, promptID, text, status string) {
	if err := s.store.FinalizePrompt(ctx, promptID, text, status); err != nil {
		s.log.Error().Err(err).Str("prompt", promptID).Msg("failed to finalize prompt record")
	}
}

// setResponseDataHeader attaches the URL-safe-encoded citation payload.
func setResponseDataHeader(c *gin.Context, payload gin.H) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	c.Header(responseDataHeader, url.QueryEscape(string(data)))
}

func streamingHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Transfer-Encoding", "chunked")
}
