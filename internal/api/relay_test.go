package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askbase-go/internal/llm"
	"github.com/askbase-go/internal/models"
)

func chunkChan(chunks ...llm.StreamChunk) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk, len(chunks))
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

func relayContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	return c, w
}

func text(s string) llm.StreamChunk { return llm.StreamChunk{Text: s} }

func TestRelayStreamForwardsAndAccumulates(t *testing.T) {
	c, w := relayContext()

	outcome, err := relayStream(c, chunkChan(text("Hello"), text(" world")), "idk", nil)

	require.NoError(t, err)
	assert.Equal(t, "Hello world", w.Body.String())
	assert.Equal(t, "Hello world", outcome.Text)
	assert.Equal(t, models.StatusNone, outcome.Status)
}

func TestRelayStreamTrimsLeadingNewlines(t *testing.T) {
	c, w := relayContext()

	outcome, err := relayStream(c, chunkChan(text("\n\n"), text("\nHello"), text(" there")), "idk", nil)

	require.NoError(t, err)
	assert.Equal(t, "Hello there", w.Body.String())
	assert.Equal(t, "Hello there", outcome.Text)
}

func TestRelayStreamEmptyResponseIsIDontKnow(t *testing.T) {
	// An upstream that produces only empty deltas forwards zero bytes and the
	// record is classified as non-substantive.
	c, w := relayContext()

	outcome, err := relayStream(c, chunkChan(text(""), text("\n"), text("")), "idk", nil)

	require.NoError(t, err)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, outcome.Text)
	assert.Equal(t, models.StatusIDK, outcome.Status)
}

func TestRelayStreamClassifiesMarkerSuffix(t *testing.T) {
	c, _ := relayContext()
	marker := "Sorry, I am not sure how to answer that."

	outcome, err := relayStream(c, chunkChan(text("Hmm. "), text(marker)), marker, nil)

	require.NoError(t, err)
	assert.Equal(t, models.StatusIDK, outcome.Status)
}

func TestRelayStreamWritesPrefixBeforeChunks(t *testing.T) {
	c, w := relayContext()
	prefix := legacyStreamPrefix([]models.FileSectionReference{{Path: "docs/a.md"}})

	outcome, err := relayStream(c, chunkChan(text("Answer")), "idk", prefix)

	require.NoError(t, err)
	assert.Equal(t, `["docs/a.md"]`+streamSeparator+"Answer", w.Body.String())
	// The prefix is protocol framing, not response text.
	assert.Equal(t, "Answer", outcome.Text)
}

func TestRelayStreamErrorChunkAborts(t *testing.T) {
	c, w := relayContext()
	boom := errors.New("connection reset")

	outcome, err := relayStream(c, chunkChan(text("partial"), llm.StreamChunk{Err: boom}), "idk", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "partial", outcome.Text)
	assert.Equal(t, models.StatusAPIError, outcome.Status)
	assert.Equal(t, "partial", w.Body.String())
}

func TestIsIDontKnowResponse(t *testing.T) {
	marker := "Sorry, I am not sure how to answer that."

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"empty", "", true},
		{"exact marker", marker, true},
		{"marker as suffix", "Well. " + marker, true},
		{"marker mid-text", marker + " But here is a guess: 42.", false},
		{"substantive", "The answer is 42.", false},
		{"case sensitive", "sorry, i am not sure how to answer that.", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isIDontKnowResponse(tt.text, marker))
		})
	}
}
