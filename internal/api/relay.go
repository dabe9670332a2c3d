// internal/api/relay.go
package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/askbase-go/internal/llm"
	"github.com/askbase-go/internal/models"
)

// streamSeparator terminates the in-band reference prefix in legacy
// completions mode; everything after it is raw completion text.
const streamSeparator = "___START_RESPONSE_STREAM___"

// relayOutcome carries what the relay accumulated for persistence.
type relayOutcome struct {
	Text   string
	Status string
}

// relayStream drains the upstream delta channel into the client connection,
// accumulating the full response text for persistence. The first two chunks
// get their leading newlines trimmed; chunks made entirely of newlines are
// suppressed, so responses never start with blank lines. A chunk error
// terminates the stream abruptly, as the protocol has no mid-stream error
// frame.
func relayStream(c *gin.Context, chunks <-chan llm.StreamChunk, idkMessage string, prefix []byte) (relayOutcome, error) {
	if len(prefix) > 0 {
		if _, err := c.Writer.Write(prefix); err != nil {
			return relayOutcome{Status: models.StatusAPIError}, err
		}
		c.Writer.Flush()
	}

	var accumulated strings.Builder
	forwarded := false
	seen := 0

	for chunk := range chunks {
		if chunk.Err != nil {
			return relayOutcome{Text: accumulated.String(), Status: models.StatusAPIError}, chunk.Err
		}

		text := chunk.Text
		if !forwarded && seen < 2 {
			text = strings.TrimLeft(text, "\n")
			seen++
			if text == "" {
				continue
			}
		}
		if text == "" {
			continue
		}

		accumulated.WriteString(text)
		if _, err := c.Writer.Write([]byte(text)); err != nil {
			// Client is gone; keep draining so the record is still finalized
			// with the full upstream text.
			forwarded = true
			continue
		}
		c.Writer.Flush()
		forwarded = true
	}

	outcome := relayOutcome{Text: accumulated.String()}
	if isIDontKnowResponse(outcome.Text, idkMessage) {
		outcome.Status = models.StatusIDK
	}
	return outcome, nil
}

// isIDontKnowResponse classifies a completion as non-substantive: empty, or
// ending with the configured marker (case-sensitive, exact suffix match).
func isIDontKnowResponse(text, marker string) bool {
	return text == "" || strings.HasSuffix(text, marker)
}
