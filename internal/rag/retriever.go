// internal/rag/retriever.go
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/askbase-go/internal/models"
)

// Retrieval failure classification. The handlers persist a placeholder
// prompt record before surfacing either of these to the caller.
var (
	ErrEmbedding = errors.New("query embedding failed")
	ErrSearch    = errors.New("section search failed")
)

// Embedder computes an embedding vector for a query string.
type Embedder interface {
	Embed(ctx context.Context, apiKeyOverride, text string) ([]float32, error)
}

// SectionSearcher runs a similarity search bounded by a minimum similarity
// and a maximum row count, returning rows ordered by similarity descending.
type SectionSearcher interface {
	Search(ctx context.Context, vector []float32, threshold float32, limit int) ([]models.FileSectionMatch, error)
}

// Retriever produces ranked matching content sections for a query. It owns
// query normalization, thresholding, count limiting, and error
// classification; the similarity ranking itself is delegated to the store.
type Retriever struct {
	embedder Embedder
	sections SectionSearcher
	log      zerolog.Logger
}

// NewRetriever wires a retriever from its collaborators.
func NewRetriever(embedder Embedder, sections SectionSearcher, log zerolog.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		sections: sections,
		log:      log.With().Str("component", "retriever").Logger(),
	}
}

func normalizeQuery(query string) string {
	return strings.TrimSpace(strings.ReplaceAll(query, "\n", " "))
}

// Retrieve embeds the normalized query and returns the matching sections
// along with the query embedding, for persistence on the prompt record.
func (r *Retriever) Retrieve(ctx context.Context, query string, threshold float32, limit int, apiKeyOverride string) ([]models.FileSectionMatch, []float32, error) {
	normalized := normalizeQuery(query)

	embedding, err := r.embedder.Embed(ctx, apiKeyOverride, normalized)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	matches, err := r.sections.Search(ctx, embedding, threshold, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrSearch, err)
	}

	r.log.Debug().Int("matches", len(matches)).Float32("threshold", threshold).Msg("retrieved sections")
	return matches, embedding, nil
}
