package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/docgraph-io/docgraph/pkg/common"
)

// SimilarEntities returns the entities closest to the embedding by cosine
// distance. Entities stored with a different dimension are excluded so the
// operator never sees mixed vectors.
func (s *GraphDBStorage) SimilarEntities(
	ctx context.Context,
	graphID string,
	embedding []float32,
	limit int,
) ([]common.Entity, error) {
	if len(embedding) == 0 || limit <= 0 {
		return []common.Entity{}, nil
	}

	rows, err := s.conn.Query(ctx, `
		SELECT node_id, public_id, name, canonical, entity_type, confidence, embedding, mentions
		FROM graph_entities
		WHERE graph_id = $1
		  AND embedding IS NOT NULL
		  AND vector_dims(embedding) = $2
		ORDER BY embedding <=> $3, node_id
		LIMIT $4`,
		graphID, len(embedding), pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar entities: %w", err)
	}
	defer rows.Close()

	out := make([]common.Entity, 0, limit)
	for rows.Next() {
		var entity common.Entity
		var entityType string
		var stored *pgvector.Vector
		var mentions []byte
		if err := rows.Scan(&entity.ID, &entity.PublicID, &entity.Name, &entity.Canonical,
			&entityType, &entity.Confidence, &stored, &mentions); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entity.Type = common.EntityType(entityType)
		if stored != nil {
			entity.Embedding = stored.Slice()
		}
		if err := json.Unmarshal(mentions, &entity.Mentions); err != nil {
			return nil, fmt.Errorf("failed to decode mentions: %w", err)
		}
		out = append(out, entity)
	}
	return out, rows.Err()
}
