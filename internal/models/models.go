// internal/models/models.go
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Message roles accepted on the wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is a single turn of the running conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the request body shared by the chat and the legacy
// completions endpoints. Chat mode sends Messages; legacy mode sends Prompt.
// All model-configuration fields are pointers so the tier gate can null them
// out and the handler defaults can tell "absent" from "zero".
type CompletionRequest struct {
	Prompt               string          `json:"prompt,omitempty"`
	Messages             []ChatMessage   `json:"messages,omitempty"`
	ConversationID       string          `json:"conversationId,omitempty"`
	ConversationMetadata json.RawMessage `json:"conversationMetadata,omitempty"`

	Temperature            *float32 `json:"temperature,omitempty"`
	TopP                   *float32 `json:"topP,omitempty"`
	FrequencyPenalty       *float32 `json:"frequencyPenalty,omitempty"`
	PresencePenalty        *float32 `json:"presencePenalty,omitempty"`
	MaxTokens              *int     `json:"maxTokens,omitempty"`
	SectionsMatchCount     *int     `json:"sectionsMatchCount,omitempty"`
	SectionsMatchThreshold *float32 `json:"sectionsMatchThreshold,omitempty"`
	SystemPrompt           *string  `json:"systemPrompt,omitempty"`
	PromptTemplate         *string  `json:"promptTemplate,omitempty"`

	Model              string `json:"model,omitempty"`
	IDontKnowMessage   string `json:"iDontKnowMessage,omitempty"`
	Stream             *bool  `json:"stream,omitempty"`
	DoNotInjectContext bool   `json:"doNotInjectContext,omitempty"`
	DoNotInjectPrompt  bool   `json:"doNotInjectPrompt,omitempty"`

	ExcludeFromInsights bool `json:"excludeFromInsights,omitempty"`
	Redact              bool `json:"redact,omitempty"`
	Debug               bool `json:"debug,omitempty"`
}

// Streaming reports whether the caller asked for a streamed response.
// Streaming is the default when the field is omitted.
func (r *CompletionRequest) Streaming() bool {
	return r.Stream == nil || *r.Stream
}

// ValidateChat checks the invariants of a chat-mode request: every message
// carries a known role and at least one user message has non-empty trimmed
// content.
func (r *CompletionRequest) ValidateChat() error {
	if len(r.Messages) == 0 {
		return errors.New("no messages provided")
	}
	hasUserContent := false
	for i, m := range r.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("invalid message role %q at index %d", m.Role, i)
		}
		if m.Role == RoleUser && strings.TrimSpace(m.Content) != "" {
			hasUserContent = true
		}
	}
	if !hasUserContent {
		return errors.New("at least one user message with content is required")
	}
	return r.validateMetadata()
}

// ValidateCompletion checks the invariants of a legacy completion request.
func (r *CompletionRequest) ValidateCompletion() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return errors.New("no prompt provided")
	}
	return r.validateMetadata()
}

func (r *CompletionRequest) validateMetadata() error {
	if len(r.ConversationMetadata) == 0 {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(r.ConversationMetadata, &meta); err != nil {
		return errors.New("malformed conversation metadata")
	}
	return nil
}

// LastUserMessage returns the content of the most recent user turn.
func (r *CompletionRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// FileSectionMatch is one retrieved context unit, ordered by similarity
// descending. The file and source metadata are denormalized onto the match so
// references can be built without extra lookups.
type FileSectionMatch struct {
	FilePath    string                 `json:"file_path"`
	Content     string                 `json:"content"`
	TokenCount  int                    `json:"token_count"`
	Similarity  float32                `json:"similarity"`
	SectionMeta map[string]interface{} `json:"section_meta,omitempty"`
	FileMeta    map[string]interface{} `json:"file_meta,omitempty"`
	SourceType  string                 `json:"source_type,omitempty"`
	SourceData  map[string]interface{} `json:"source_data,omitempty"`
}

// FileSectionReference is a citation pointing back at the section that
// informed a completion.
type FileSectionReference struct {
	Path  string `json:"path"`
	Label string `json:"label,omitempty"`
	Href  string `json:"href,omitempty"`
}

// Prompt record status flags.
const (
	StatusNone       = ""
	StatusNoSections = "no_sections"
	StatusAPIError   = "api_error"
	StatusIDK        = "idk"
)

// PromptRecord is the persisted representation of one request/response turn.
// It is created with a placeholder response before the upstream call returns,
// so its ids can be sent in response headers, and finalized once the full
// response text is known.
type PromptRecord struct {
	ID                  string                 `json:"id"`
	ProjectID           string                 `json:"project_id"`
	ConversationID      string                 `json:"conversation_id"`
	Prompt              string                 `json:"prompt"`
	Response            string                 `json:"response"`
	Embedding           []float32              `json:"embedding,omitempty"`
	References          []FileSectionReference `json:"references,omitempty"`
	Status              string                 `json:"status,omitempty"`
	ExcludeFromInsights bool                   `json:"exclude_from_insights,omitempty"`
	Redact              bool                   `json:"redact,omitempty"`
	CreatedAt           time.Time              `json:"created_at"`
}

// Team plan tiers. Custom model configuration requires pro or above.
const (
	TierHobby      = "hobby"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

// Project is the stored per-project configuration resolved once per request.
type Project struct {
	ID        string `json:"id"`
	TeamID    string `json:"team_id"`
	Tier      string `json:"tier"`
	OpenAIKey string `json:"openai_key,omitempty"` // bring-your-own-key, optional
}

// AllowsCustomModelConfig reports whether the project's team tier entitles
// the caller to override model-configuration parameters.
func (p *Project) AllowsCustomModelConfig() bool {
	return p.Tier == TierPro || p.Tier == TierEnterprise
}
