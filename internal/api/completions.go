// internal/api/completions.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/askbase-go/internal/data"
	"github.com/askbase-go/internal/llm"
	"github.com/askbase-go/internal/models"
	"github.com/askbase-go/internal/rag"
)

// handleCompletions serves the legacy completions endpoint: a single prompt
// string, the tag-substitution template format, and an in-band reference
// prefix on streamed responses.
func (s *Server) handleCompletions(c *gin.Context) {
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
	if err := req.ValidateCompletion(); err != nil {
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

	if !dashboard && !project.AllowsCustomModelConfig() {
		StripUnlicensedFields(&req)
	}

	params, err := s.resolveParams(&req, s.cfg.OpenAI.CompletionsModel, llm.KindCompletions)
	if err != nil {
		respondError(c, err)
		return
	}
	idkMessage := req.IDontKnowMessage
	if idkMessage == "" {
		idkMessage = s.cfg.Completion.IDontKnowMessage
	}
	template := stringOr(req.PromptTemplate, stringOr(req.SystemPrompt, s.cfg.Completion.SystemPrompt))
	threshold := floatOr(req.SectionsMatchThreshold, defaultMatchThreshold)
	matchCount := intOr(req.SectionsMatchCount, defaultMatchCount)
	apiKey := project.OpenAIKey

	if err := s.moderate(ctx, apiKey, []string{req.Prompt}); err != nil {
		respondError(c, err)
		return
	}

	sections, embedding, err := s.retriever.Retrieve(ctx, req.Prompt, threshold, matchCount, apiKey)
	if err != nil {
		s.persistPlaceholder(ctx, projectID, &req, req.Prompt, nil, models.StatusNoSections)
		respondError(c, newAPIError(http.StatusBadRequest, "%v", err))
		return
	}
	if len(sections) == 0 {
		s.persistPlaceholder(ctx, projectID, &req, req.Prompt, embedding, models.StatusNoSections)
		respondError(c, newAPIError(http.StatusBadRequest, "%s", idkMessage))
		return
	}

	contextText, references := rag.RenderSections(sections, s.cfg.Completion.ContextTokensCutoff)
	prompt := rag.BuildCompletionPrompt(template, contextText, req.Prompt, idkMessage, req.DoNotInjectContext, req.DoNotInjectPrompt)

	conversationID, err := s.store.EnsureConversation(ctx, projectID, req.ConversationID, req.ConversationMetadata)
	if err != nil {
		respondError(c, err)
		return
	}
	rec := &models.PromptRecord{
		ProjectID:           projectID,
		ConversationID:      conversationID,
		Prompt:              req.Prompt,
		Embedding:           embedding,
		References:          references,
		ExcludeFromInsights: req.ExcludeFromInsights,
		Redact:              req.Redact,
	}
	if err := s.store.CreatePrompt(ctx, rec); err != nil {
		respondError(c, err)
		return
	}

	setResponseDataHeader(c, gin.H{"references": references})

	if req.Streaming() {
		streamingHeaders(c)
		chunks, err := s.upstream.StreamCompletion(ctx, apiKey, params, prompt)
		if err != nil {
			s.finalize(ctx, rec.ID, "", models.StatusAPIError)
			_, message := llm.UpstreamError(err)
			respondError(c, newAPIError(http.StatusBadRequest, "%s", message))
			return
		}
		outcome, err := relayStream(c, chunks, idkMessage, legacyStreamPrefix(references))
		if err != nil {
			s.log.Error().Err(err).Str("prompt", rec.ID).Msg("stream relay aborted")
			s.finalize(ctx, rec.ID, outcome.Text, models.StatusAPIError)
			return
		}
		s.finalize(ctx, rec.ID, outcome.Text, outcome.Status)
		return
	}

	text, err := s.upstream.Completion(ctx, apiKey, params, prompt)
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
		resp["debugInfo"] = gin.H{"model": params.Model.ID, "prompt": prompt}
	}
	c.JSON(http.StatusOK, resp)
}

// legacyStreamPrefix encodes the reference paths as a JSON array followed by
// the stream separator. Legacy clients split on the separator to recover the
// citations before reading completion text.
func legacyStreamPrefix(references []models.FileSectionReference) []byte {
	paths := make([]string, 0, len(references))
	for _, ref := range references {
		paths = append(paths, ref.Path)
	}
	encoded, err := json.Marshal(paths)
	if err != nil {
		return []byte("[]" + streamSeparator)
	}
	return append(encoded, []byte(streamSeparator)...)
}
