package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModelKnownIDs(t *testing.T) {
	tests := []struct {
		id   string
		kind ModelKind
	}{
		{"gpt-4o-mini", KindChatCompletions},
		{"gpt-4", KindChatCompletions},
		{"gpt-3.5-turbo-instruct", KindCompletions},
		{"text-davinci-003", KindCompletions},
		{"text-embedding-ada-002", KindEmbeddings},
	}
	for _, tt := range tests {
		model, err := ParseModel(tt.id)
		require.NoError(t, err, tt.id)
		assert.Equal(t, tt.kind, model.Kind)
		assert.Equal(t, tt.id, model.ID)
	}
}

func TestParseModelUnknownID(t *testing.T) {
	_, err := ParseModel("gpt-9000")

	require.Error(t, err)
	var unknown *UnknownModelError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "gpt-9000", unknown.ID)
	assert.Contains(t, err.Error(), "gpt-9000")
}

func TestContextTokens(t *testing.T) {
	model, err := ParseModel("gpt-4")
	require.NoError(t, err)
	assert.Equal(t, 8192, model.ContextTokens())

	model, err = ParseModel("gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, 128000, model.ContextTokens())
}
