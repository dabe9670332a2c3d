package llm

import "fmt"

// ModelKind tags which upstream API a model id belongs to.
type ModelKind string

const (
	KindChatCompletions ModelKind = "chat_completions"
	KindCompletions     ModelKind = "completions"
	KindEmbeddings      ModelKind = "embeddings"
)

// ModelInfo is a tagged model identifier. Values are only constructed through
// ParseModel, so an unknown id is a typed error rather than a silent fallback.
type ModelInfo struct {
	Kind ModelKind
	ID   string
}

// UnknownModelError is returned by ParseModel for ids outside the table.
type UnknownModelError struct {
	ID string
}

func (e *UnknownModelError) Error() string {
	return fmt.Sprintf("unknown model id %q", e.ID)
}

type modelEntry struct {
	kind          ModelKind
	contextTokens int
}

// Static per-model context window table. The budget engine treats these as
// hard ceilings; exceeding them is an upstream provider error.
var modelTable = map[string]modelEntry{
	"gpt-4o":                 {KindChatCompletions, 128000},
	"gpt-4o-mini":            {KindChatCompletions, 128000},
	"gpt-4":                  {KindChatCompletions, 8192},
	"gpt-4-32k":              {KindChatCompletions, 32768},
	"gpt-3.5-turbo":          {KindChatCompletions, 4096},
	"gpt-3.5-turbo-instruct": {KindCompletions, 4097},
	"text-davinci-003":       {KindCompletions, 4097},
	"text-curie-001":         {KindCompletions, 2049},
	"text-embedding-ada-002": {KindEmbeddings, 8191},
	"text-embedding-3-small": {KindEmbeddings, 8191},
}

// ParseModel resolves a model id to its tagged variant.
func ParseModel(id string) (ModelInfo, error) {
	entry, ok := modelTable[id]
	if !ok {
		return ModelInfo{}, &UnknownModelError{ID: id}
	}
	return ModelInfo{Kind: entry.kind, ID: id}, nil
}

// ContextTokens returns the model's maximum context window in tokens.
func (m ModelInfo) ContextTokens() int {
	return modelTable[m.ID].contextTokens
}

// CompletionParams are the resolved sampling parameters sent upstream, after
// tier gating and handler defaults have been applied.
type CompletionParams struct {
	Model            ModelInfo
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	MaxTokens        int
}
