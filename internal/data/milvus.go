// internal/data/milvus.go
package data

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/rs/zerolog"

	"github.com/askbase-go/internal/config"
	"github.com/askbase-go/internal/models"
)

// SectionStore is the search-side interface to the milvus collection that
// holds embedded file sections. Ingestion is handled by external sync jobs;
// this service only reads.
type SectionStore struct {
	milvusClient client.Client
	collection   string
	dim          int
	log          zerolog.Logger
}

// NewSectionStore connects to milvus and makes sure the section collection
// exists and is loaded for search.
func NewSectionStore(ctx context.Context, cfg config.MilvusConfig, log zerolog.Logger) (*SectionStore, error) {
	milvusClient, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	s := &SectionStore{
		milvusClient: milvusClient,
		collection:   cfg.Collection,
		dim:          cfg.EmbeddingDimension,
		log:          log.With().Str("component", "sections").Logger(),
	}
	if err := s.ensureCollection(ctx); err != nil {
		milvusClient.Close()
		return nil, err
	}
	return s, nil
}

func (s *SectionStore) ensureCollection(ctx context.Context) error {
	has, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !has {
		s.log.Info().Str("collection", s.collection).Msg("creating section collection")
		schema := &entity.Schema{
			CollectionName: s.collection,
			Description:    "Embedded file sections for similarity search",
			AutoID:         false,
			Fields: []*entity.Field{
				{Name: "section_id", DataType: entity.FieldTypeInt64, PrimaryKey: true},
				{Name: "file_path", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "1024"}},
				{Name: "embedding", DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.dim)}},
				{Name: "content", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
				{Name: "token_count", DataType: entity.FieldTypeInt64},
				{Name: "section_meta", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
				{Name: "file_meta", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
				{Name: "source_type", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "64"}},
				{Name: "source_data", DataType: entity.FieldTypeVarChar, TypeParams: map[string]string{"max_length": "65535"}},
			},
		}
		if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection %q: %w", s.collection, err)
		}

		index, err := entity.NewIndexHNSW(entity.COSINE, 8, 200)
		if err != nil {
			return fmt.Errorf("failed to build HNSW index params: %w", err)
		}
		if err := s.milvusClient.CreateIndex(ctx, s.collection, "embedding", index, false); err != nil {
			return fmt.Errorf("failed to create embedding index: %w", err)
		}
	}

	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection %q: %w", s.collection, err)
	}
	return nil
}

// Close releases the milvus connection.
func (s *SectionStore) Close() {
	if s.milvusClient != nil {
		s.milvusClient.Close()
	}
}

var sectionOutputFields = []string{
	"file_path", "content", "token_count",
	"section_meta", "file_meta", "source_type", "source_data",
}

// Search runs a cosine-similarity search bounded by a minimum similarity and
// a maximum row count. Results come back ordered by similarity descending.
func (s *SectionStore) Search(ctx context.Context, vector []float32, threshold float32, limit int) ([]models.FileSectionMatch, error) {
	sp, err := entity.NewIndexHNSWSearchParam(64)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	results, err := s.milvusClient.Search(
		ctx, s.collection, nil, "", sectionOutputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding", entity.COSINE, limit, sp,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	var matches []models.FileSectionMatch
	for _, result := range results {
		pathCol, _ := result.Fields.GetColumn("file_path").(*entity.ColumnVarChar)
		contentCol, _ := result.Fields.GetColumn("content").(*entity.ColumnVarChar)
		tokenCol, _ := result.Fields.GetColumn("token_count").(*entity.ColumnInt64)
		sectionMetaCol, _ := result.Fields.GetColumn("section_meta").(*entity.ColumnVarChar)
		fileMetaCol, _ := result.Fields.GetColumn("file_meta").(*entity.ColumnVarChar)
		sourceTypeCol, _ := result.Fields.GetColumn("source_type").(*entity.ColumnVarChar)
		sourceDataCol, _ := result.Fields.GetColumn("source_data").(*entity.ColumnVarChar)
		if pathCol == nil || contentCol == nil {
			return nil, fmt.Errorf("search result missing expected columns")
		}

		for i := 0; i < result.ResultCount; i++ {
			if result.Scores[i] < threshold {
				continue
			}
			match := models.FileSectionMatch{Similarity: result.Scores[i]}
			match.FilePath, _ = pathCol.ValueByIdx(i)
			match.Content, _ = contentCol.ValueByIdx(i)
			if tokenCol != nil {
				count, _ := tokenCol.ValueByIdx(i)
				match.TokenCount = int(count)
			}
			if sectionMetaCol != nil {
				raw, _ := sectionMetaCol.ValueByIdx(i)
				match.SectionMeta = decodeMeta(raw)
			}
			if fileMetaCol != nil {
				raw, _ := fileMetaCol.ValueByIdx(i)
				match.FileMeta = decodeMeta(raw)
			}
			if sourceTypeCol != nil {
				match.SourceType, _ = sourceTypeCol.ValueByIdx(i)
			}
			if sourceDataCol != nil {
				raw, _ := sourceDataCol.ValueByIdx(i)
				match.SourceData = decodeMeta(raw)
			}
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func decodeMeta(raw string) map[string]interface{} {
	if raw == "" {
		return nil
	}
	var meta map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil
	}
	return meta
}
