package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/askbase-go/internal/models"
)

// StreamChunk is one incremental delta from an upstream stream. A non-nil Err
// terminates the stream; no further chunks follow it.
type StreamChunk struct {
	Text string
	Err  error
}

// Client wraps the upstream OpenAI API for embeddings, moderation, and the
// chat/completions calls. The platform key is used unless the calling project
// brings its own key; selection happens once per request and the override is
// passed explicitly on every call.
type Client struct {
	platformKey    string
	embeddingModel string
	log            zerolog.Logger
}

// NewClient creates an upstream client bound to the platform API key.
func NewClient(platformKey, embeddingModel string, log zerolog.Logger) *Client {
	return &Client{
		platformKey:    platformKey,
		embeddingModel: embeddingModel,
		log:            log.With().Str("component", "llm").Logger(),
	}
}

func (c *Client) api(apiKeyOverride string) *openai.Client {
	if apiKeyOverride != "" {
		return openai.NewClient(apiKeyOverride)
	}
	return openai.NewClient(c.platformKey)
}

// Embed returns the embedding vector for a single input text.
func (c *Client) Embed(ctx context.Context, apiKeyOverride, text string) ([]float32, error) {
	resp, err := c.api(apiKeyOverride).CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.embeddingModel),
		Input: []string{text},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding call failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}
	return resp.Data[0].Embedding, nil
}

// Moderate classifies a text for policy violations. It returns true when the
// content is flagged.
func (c *Client) Moderate(ctx context.Context, apiKeyOverride, text string) (bool, error) {
	resp, err := c.api(apiKeyOverride).Moderations(ctx, openai.ModerationRequest{
		Input: text,
	})
	if err != nil {
		return false, fmt.Errorf("moderation call failed: %w", err)
	}
	for _, result := range resp.Results {
		if result.Flagged {
			return true, nil
		}
	}
	return false, nil
}

func toOpenAIMessages(msgs []models.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// StreamChat opens a streaming chat completion and relays its deltas on a
// channel. The channel is closed when the upstream stream ends; a terminal
// error is delivered as the final chunk.
func (c *Client) StreamChat(ctx context.Context, apiKeyOverride string, p CompletionParams, msgs []models.ChatMessage) (<-chan StreamChunk, error) {
	stream, err := c.api(apiKeyOverride).CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:            p.Model.ID,
		Messages:         toOpenAIMessages(msgs),
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		MaxTokens:        p.MaxTokens,
		Stream:           true,
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				chunks <- StreamChunk{Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			chunks <- StreamChunk{Text: resp.Choices[0].Delta.Content}
		}
	}()
	return chunks, nil
}

// Chat performs a buffered chat completion and returns the full text.
func (c *Client) Chat(ctx context.Context, apiKeyOverride string, p CompletionParams, msgs []models.ChatMessage) (string, error) {
	resp, err := c.api(apiKeyOverride).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            p.Model.ID,
		Messages:         toOpenAIMessages(msgs),
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		MaxTokens:        p.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("upstream returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// StreamCompletion opens a streaming legacy completion for a single prompt
// string and relays its deltas on a channel.
func (c *Client) StreamCompletion(ctx context.Context, apiKeyOverride string, p CompletionParams, prompt string) (<-chan StreamChunk, error) {
	stream, err := c.api(apiKeyOverride).CreateCompletionStream(ctx, openai.CompletionRequest{
		Model:            p.Model.ID,
		Prompt:           prompt,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		MaxTokens:        p.MaxTokens,
		Stream:           true,
	})
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				chunks <- StreamChunk{Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			chunks <- StreamChunk{Text: resp.Choices[0].Text}
		}
	}()
	return chunks, nil
}

// Completion performs a buffered legacy completion.
func (c *Client) Completion(ctx context.Context, apiKeyOverride string, p CompletionParams, prompt string) (string, error) {
	resp, err := c.api(apiKeyOverride).CreateCompletion(ctx, openai.CompletionRequest{
		Model:            p.Model.ID,
		Prompt:           prompt,
		Temperature:      p.Temperature,
		TopP:             p.TopP,
		FrequencyPenalty: p.FrequencyPenalty,
		PresencePenalty:  p.PresencePenalty,
		MaxTokens:        p.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("upstream returned no choices")
	}
	return resp.Choices[0].Text, nil
}

// UpstreamError extracts the HTTP status and message from an upstream API
// failure so the handler can relay the upstream body text to the caller.
func UpstreamError(err error) (int, string) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, reqErr.Error()
	}
	return http.StatusInternalServerError, err.Error()
}
