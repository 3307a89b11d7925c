package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/docgraph-io/docgraph/pkg/common"
	"github.com/docgraph-io/docgraph/pkg/kg"
	"github.com/docgraph-io/docgraph/pkg/logger"
	"github.com/docgraph-io/docgraph/pkg/store"
)

const chunkSize = 1000

// SaveSnapshot replaces the persisted state of a graph with the given
// snapshot in one transaction. Unit references are upserted without
// touching stored content, so a snapshot save never erases unit text
// written by SaveUnits.
func (s *GraphDBStorage) SaveSnapshot(ctx context.Context, graphID string, snap *kg.Snapshot) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	logger.Debug("[Store][SaveSnapshot] Persisting graph",
		"graph_id", graphID, "nodes", len(snap.Entities), "edges", len(snap.Relationships))

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM graph_entities WHERE graph_id = $1`, graphID); err != nil {
		return fmt.Errorf("failed to clear entities: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM graph_relationships WHERE graph_id = $1`, graphID); err != nil {
		return fmt.Errorf("failed to clear relationships: %w", err)
	}

	err = store.ChunkRange(len(snap.Entities), chunkSize, func(start, end int) error {
		for _, entity := range snap.Entities[start:end] {
			mentions, err := json.Marshal(entity.Mentions)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO graph_entities
					(graph_id, node_id, public_id, name, canonical, entity_type, confidence, embedding, mentions)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
				graphID, entity.ID, entity.PublicID, entity.Name, entity.Canonical,
				string(entity.Type), entity.Confidence, embeddingParam(entity.Embedding), mentions)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert entities: %w", err)
	}

	err = store.ChunkRange(len(snap.Relationships), chunkSize, func(start, end int) error {
		for _, rel := range snap.Relationships[start:end] {
			evidence, err := json.Marshal(rel.Evidence)
			if err != nil {
				return err
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO graph_relationships
					(graph_id, source_id, target_id, relationship_type, weight, confidence, evidence)
				VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				graphID, rel.Source, rel.Target, string(rel.Type), rel.Weight, rel.Confidence, evidence)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert relationships: %w", err)
	}

	for _, ref := range snap.Units {
		_, err := tx.Exec(ctx, `
			INSERT INTO graph_units
				(graph_id, unit_id, modality, content, embedding, document_id, page, span_start, span_end)
			VALUES ($1, $2, $3, '', $4, $5, $6, $7, $8)
			ON CONFLICT (graph_id, unit_id) DO UPDATE SET
				modality = EXCLUDED.modality,
				embedding = EXCLUDED.embedding,
				document_id = EXCLUDED.document_id,
				page = EXCLUDED.page,
				span_start = EXCLUDED.span_start,
				span_end = EXCLUDED.span_end`,
			graphID, ref.ID, string(ref.Modality), embeddingParam(ref.Embedding),
			ref.Provenance.DocumentID, ref.Provenance.Page, ref.Provenance.Start, ref.Provenance.End)
		if err != nil {
			return fmt.Errorf("failed to upsert unit reference: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// LoadSnapshot reads the full persisted state of a graph.
func (s *GraphDBStorage) LoadSnapshot(ctx context.Context, graphID string) (*kg.Snapshot, error) {
	snap := &kg.Snapshot{
		Entities:      []common.Entity{},
		Relationships: []common.Relationship{},
		Units:         []kg.UnitRef{},
	}

	rows, err := s.conn.Query(ctx, `
		SELECT node_id, public_id, name, canonical, entity_type, confidence, embedding, mentions
		FROM graph_entities
		WHERE graph_id = $1
		ORDER BY node_id`, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entity common.Entity
		var entityType string
		var embedding *pgvector.Vector
		var mentions []byte
		if err := rows.Scan(&entity.ID, &entity.PublicID, &entity.Name, &entity.Canonical,
			&entityType, &entity.Confidence, &embedding, &mentions); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entity.Type = common.EntityType(entityType)
		if embedding != nil {
			entity.Embedding = embedding.Slice()
		}
		if err := json.Unmarshal(mentions, &entity.Mentions); err != nil {
			return nil, fmt.Errorf("failed to decode mentions: %w", err)
		}
		snap.Entities = append(snap.Entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	relRows, err := s.conn.Query(ctx, `
		SELECT source_id, target_id, relationship_type, weight, confidence, evidence
		FROM graph_relationships
		WHERE graph_id = $1
		ORDER BY source_id, target_id, relationship_type`, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to query relationships: %w", err)
	}
	defer relRows.Close()

	for relRows.Next() {
		var rel common.Relationship
		var relType string
		var evidence []byte
		if err := relRows.Scan(&rel.Source, &rel.Target, &relType, &rel.Weight, &rel.Confidence, &evidence); err != nil {
			return nil, fmt.Errorf("failed to scan relationship: %w", err)
		}
		rel.Type = common.RelationshipType(relType)
		if err := json.Unmarshal(evidence, &rel.Evidence); err != nil {
			return nil, fmt.Errorf("failed to decode evidence: %w", err)
		}
		snap.Relationships = append(snap.Relationships, rel)
	}
	if err := relRows.Err(); err != nil {
		return nil, err
	}

	unitRows, err := s.conn.Query(ctx, `
		SELECT unit_id, modality, embedding, document_id, page, span_start, span_end
		FROM graph_units
		WHERE graph_id = $1
		ORDER BY unit_id`, graphID)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	defer unitRows.Close()

	for unitRows.Next() {
		var ref kg.UnitRef
		var modality string
		var embedding *pgvector.Vector
		if err := unitRows.Scan(&ref.ID, &modality, &embedding,
			&ref.Provenance.DocumentID, &ref.Provenance.Page,
			&ref.Provenance.Start, &ref.Provenance.End); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		ref.Modality = common.Modality(modality)
		if embedding != nil {
			ref.Embedding = embedding.Slice()
		}
		snap.Units = append(snap.Units, ref)
	}
	if err := unitRows.Err(); err != nil {
		return nil, err
	}

	return snap, nil
}

// DeleteGraph removes all persisted state of a graph.
func (s *GraphDBStorage) DeleteGraph(ctx context.Context, graphID string) error {
	s.dbLock.Lock()
	defer s.dbLock.Unlock()

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"graph_entities", "graph_relationships", "graph_units"} {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE graph_id = $1`, graphID); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	return tx.Commit(ctx)
}

func embeddingParam(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
