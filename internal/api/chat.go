// internal/api/chat.go
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/askbase-go/internal/data"
	"github.com/askbase-go/internal/llm"
	"github.com/askbase-go/internal/models"
	"github.com/askbase-go/internal/rag"
	"github.com/askbase-go/pkg/tokens"
)

// handleChat serves the retrieval-augmented chat completions endpoint.
// Stage order: rate limit, validation, tier gate, moderation, retrieval,
// assembly with token capping, upstream call, relay/persist.
func (s *Server) handleChat(c *gin.Context) {
	ctx := c.Request.Context()

	projectID, dashboard, err := s.resolveOrigin(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.checkRateLimit(c, projectID); err != nil {
		respondError(c, err)
		return
	}

	var req models.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, newAPIError(http.StatusBadRequest, "invalid request: %v", err))
		return
	}
	if err := req.ValidateChat(); err != nil {
		respondError(c, newAPIError(http.StatusBadRequest, "%v", err))
		return
	}

	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, data.ErrProjectNotFound) {
			respondError(c, newAPIError(http.StatusBadRequest, "unknown project"))
			return
		}
		respondError(c, err)
		return
	}

	// Dashboard usage is always fully featured; everyone else needs the tier.
	if !dashboard && !project.AllowsCustomModelConfig() {
		StripUnlicensedFields(&req)
	}

	params, err := s.resolveParams(&req, s.cfg.OpenAI.ChatModel, llm.KindChatCompletions)
	if err != nil {
		respondError(c, err)
		return
	}
	idkMessage := req.IDontKnowMessage
	if idkMessage == "" {
		idkMessage = s.cfg.Completion.IDontKnowMessage
	}
	systemPrompt := stringOr(req.SystemPrompt, s.cfg.Completion.SystemPrompt)
	threshold := floatOr(req.SectionsMatchThreshold, defaultMatchThreshold)
	matchCount := intOr(req.SectionsMatchCount, defaultMatchCount)
	apiKey := project.OpenAIKey

	contents := make([]string, 0, len(req.Messages))
	for _, m := range req.Messages {
		contents = append(contents, m.Content)
	}
	if err := s.moderate(ctx, apiKey, contents); err != nil {
		respondError(c, err)
		return
	}

	query := req.LastUserMessage()
	sections, embedding, err := s.retriever.Retrieve(ctx, query, threshold, matchCount, apiKey)
	if err != nil {
		s.persistPlaceholder(ctx, projectID, &req, query, nil, models.StatusNoSections)
		respondError(c, newAPIError(http.StatusBadRequest, "%v", err))
		return
	}
	if len(sections) == 0 {
		s.persistPlaceholder(ctx, projectID, &req, query, embedding, models.StatusNoSections)
		respondError(c, newAPIError(http.StatusBadRequest, "%s", idkMessage))
		return
	}

	contextText, references := rag.RenderSections(sections, rag.ChatContextTokenCutoff)
	initMessages := rag.BuildChatMessages(systemPrompt, contextText, req.DoNotInjectContext)
	counter := tokens.MessageCounter(params.Model.ID)
	messages := tokens.CapMessages(counter, initMessages, req.Messages, params.MaxTokens, params.Model.ContextTokens())

	conversationID, err := s.store.EnsureConversation(ctx, projectID, req.ConversationID, req.ConversationMetadata)
	if err != nil {
		respondError(c, err)
		return
	}
	rec := &models.PromptRecord{
		ProjectID:           projectID,
		ConversationID:      conversationID,
		Prompt:              query,
		Embedding:           embedding,
		References:          references,
		ExcludeFromInsights: req.ExcludeFromInsights,
		Redact:              req.Redact,
	}
	if err := s.store.CreatePrompt(ctx, rec); err != nil {
		respondError(c, err)
		return
	}

	setResponseDataHeader(c, gin.H{
		"references":     references,
		"conversationId": conversationID,
		"promptId":       rec.ID,
	})

	if req.Streaming() {
		streamingHeaders(c)
		chunks, err := s.upstream.StreamChat(ctx, apiKey, params, messages)
		if err != nil {
			s.finalize(ctx, rec.ID, "", models.StatusAPIError)
			_, message := llm.UpstreamError(err)
			respondError(c, newAPIError(http.StatusBadRequest, "%s", message))
			return
		}
		outcome, err := relayStream(c, chunks, idkMessage, nil)
		if err != nil {
			// No mid-stream error frame exists; the stream just ends.
			s.log.Error().Err(err).Str("prompt", rec.ID).Msg("stream relay aborted")
			s.finalize(ctx, rec.ID, outcome.Text, models.StatusAPIError)
			return
		}
		s.finalize(ctx, rec.ID, outcome.Text, outcome.Status)
		return
	}

	text, err := s.upstream.Chat(ctx, apiKey, params, messages)
	if err != nil {
		s.finalize(ctx, rec.ID, "", models.StatusAPIError)
		_, message := llm.UpstreamError(err)
		respondError(c, newAPIError(http.StatusBadRequest, "%s", message))
		return
	}
	status := models.StatusNone
	if isIDontKnowResponse(text, idkMessage) {
		status = models.StatusIDK
	}
	s.finalize(ctx, rec.ID, text, status)

	resp := gin.H{
		"text":       text,
		"references": references,
		"responseId": rec.ID,
	}
	if req.Debug {
		resp["debugInfo"] = gin.H{"model": params.Model.ID, "messages": messages}
	}
	c.JSON(http.StatusOK, resp)
}
