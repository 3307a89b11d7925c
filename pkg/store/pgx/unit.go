package pgx

import (
	"context"
	"errors"
	"fmt"

	pgxv5 "github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/logger"
	"github.com/docgraph-io/docgraph/pkg/store"
)

// SaveUnits upserts content units with their raw content in a single
// transaction per chunk.
func (s *GraphDBStorage) SaveUnits(ctx context.Context, graphID string, units []common.ContentUnit) error {
	if len(units) == 0 {
		return nil
	}

	logger.Debug("[Store][SaveUnits] Bulk upserting content units", "graph_id", graphID, "units", len(units))

	return store.ChunkRange(len(units), chunkSize, func(start, end int) error {
		tx, err := s.conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		for _, unit := range units[start:end] {
			_, err := tx.Exec(ctx, `
				INSERT INTO graph_units
					(graph_id, unit_id, modality, content, embedding, document_id, page, span_start, span_end)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				ON CONFLICT (graph_id, unit_id) DO UPDATE SET
					modality = EXCLUDED.modality,
					content = EXCLUDED.content,
					embedding = EXCLUDED.embedding,
					document_id = EXCLUDED.document_id,
					page = EXCLUDED.page,
					span_start = EXCLUDED.span_start,
					span_end = EXCLUDED.span_end`,
				graphID, unit.ID, string(unit.Modality), unit.Content, embeddingParam(unit.Embedding),
				unit.Provenance.DocumentID, unit.Provenance.Page, unit.Provenance.Start, unit.Provenance.End)
			if err != nil {
				return fmt.Errorf("failed to upsert unit %s: %w", unit.ID, err)
			}
		}

		return tx.Commit(ctx)
	})
}

// Unit fetches one content unit with its raw content.
func (s *GraphDBStorage) Unit(ctx context.Context, graphID string, unitID string) (common.ContentUnit, bool, error) {
	var unit common.ContentUnit
	var modality string
	var embedding *pgvector.Vector

	err := s.conn.QueryRow(ctx, `
		SELECT unit_id, modality, content, embedding, document_id, page, span_start, span_end
		FROM graph_units
		WHERE graph_id = $1 AND unit_id = $2`,
		graphID, unitID).Scan(
		&unit.ID, &modality, &unit.Content, &embedding,
		&unit.Provenance.DocumentID, &unit.Provenance.Page,
		&unit.Provenance.Start, &unit.Provenance.End)
	if errors.Is(err, pgxv5.ErrNoRows) {
		return common.ContentUnit{}, false, nil
	}
	if err != nil {
		return common.ContentUnit{}, false, fmt.Errorf("failed to query unit: %w", err)
	}

	unit.Modality = common.Modality(modality)
	if embedding != nil {
		unit.Embedding = embedding.Slice()
	}
	return unit, true, nil
}
