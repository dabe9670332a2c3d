// pkg/tokens/tokens.go
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/askbase-go/internal/models"
)

// Per-message framing overhead of the chat encoding: every message is wrapped
// in role/separator tokens, and the reply is primed with an assistant header.
const (
	tokensPerMessage = 4
	replyPrimer      = 3
)

// Counter counts the tokens of a message list. It is a parameter of
// CapMessages so the budget loop can be exercised without a live encoder.
type Counter func(msgs []models.ChatMessage) int

var (
	encMu     sync.Mutex
	encodings = map[string]*tiktoken.Tiktoken{}
)

func encodingFor(model string) (*tiktoken.Tiktoken, error) {
	encMu.Lock()
	defer encMu.Unlock()
	if enc, ok := encodings[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, err
		}
	}
	encodings[model] = enc
	return enc, nil
}

// CountText returns the BPE token count of a text for the given model. If the
// encoder cannot be loaded it falls back to a word-count approximation so the
// budget loop still terminates.
func CountText(text, model string) int {
	enc, err := encodingFor(model)
	if err != nil {
		return int(float64(len(strings.Fields(text))) * 1.3)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessages returns the token count of a chat message list, including the
// per-message framing overhead and the reply primer.
func CountMessages(msgs []models.ChatMessage, model string) int {
	total := replyPrimer
	for _, m := range msgs {
		total += tokensPerMessage
		total += CountText(m.Role, model)
		total += CountText(m.Content, model)
	}
	return total
}

// MessageCounter returns a Counter bound to a model's encoding.
func MessageCounter(model string) Counter {
	return func(msgs []models.ChatMessage) int {
		return CountMessages(msgs, model)
	}
}

// CapMessages shrinks the conversation history until the assembled messages
// plus the completion reservation fit the model's context window. Init
// messages (system prompt and context) are never trimmed; history is removed
// from the front, oldest first, so retained turns keep their order and
// recency. When the history is exhausted the init messages are returned alone
// even if they exceed the budget; the upstream call surfaces that case as a
// provider error.
func CapMessages(count Counter, initMessages, contextMessages []models.ChatMessage, maxCompletionTokens, maxContextTokens int) []models.ChatMessage {
	history := make([]models.ChatMessage, len(contextMessages))
	copy(history, contextMessages)

	for len(history) > 0 {
		combined := make([]models.ChatMessage, 0, len(initMessages)+len(history))
		combined = append(combined, initMessages...)
		combined = append(combined, history...)
		if count(combined)+maxCompletionTokens < maxContextTokens {
			break
		}
		history = history[1:]
	}

	result := make([]models.ChatMessage, 0, len(initMessages)+len(history))
	result = append(result, initMessages...)
	result = append(result, history...)
	return result
}
