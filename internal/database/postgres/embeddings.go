package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/facematch"
)

// FetchByStation returns legacy embeddings followed by current embeddings
// for every person assigned to the station.
func (p *Pool) FetchByStation(ctx context.Context, stationID int64) ([]database.Candidate, error) {
	legacy, err := p.queryEmbeddings(ctx, true, `
		SELECT fd.id, fd.personnel_id, fd.embedding, NOW()
		FROM face_data fd
		JOIN personnel p ON p.id = fd.personnel_id
		WHERE p.station_id = $1 AND fd.embedding IS NOT NULL
		ORDER BY fd.personnel_id, fd.id
	`, stationID)
	if err != nil {
		return nil, fmt.Errorf("query legacy embeddings: %w", err)
	}

	current, err := p.queryEmbeddings(ctx, false, `
		SELECT fe.id, fe.personnel_id, fe.embedding, fe.created_at
		FROM face_embeddings fe
		JOIN personnel p ON p.id = fe.personnel_id
		WHERE p.station_id = $1
		ORDER BY fe.personnel_id, fe.id
	`, stationID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}

	candidates := make([]database.Candidate, 0, len(legacy)+len(current))
	for _, emb := range append(legacy, current...) {
		candidates = append(candidates, emb.Candidate())
	}
	return candidates, nil
}

// ListEmbeddings returns the current embedding rows of a person, oldest first.
func (p *Pool) ListEmbeddings(ctx context.Context, personnelID int64) ([]database.StoredEmbedding, error) {
	embeddings, err := p.queryEmbeddings(ctx, false, `
		SELECT id, personnel_id, embedding, created_at
		FROM face_embeddings
		WHERE personnel_id = $1
		ORDER BY id
	`, personnelID)
	if err != nil {
		return nil, fmt.Errorf("query personnel embeddings: %w", err)
	}
	return embeddings, nil
}

func (p *Pool) queryEmbeddings(ctx context.Context, legacy bool, query string, args ...any) ([]database.StoredEmbedding, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	var out []database.StoredEmbedding
	for rows.Next() {
		var emb database.StoredEmbedding
		var vec pgvector.Vector
		if err := rows.Scan(&emb.ID, &emb.PersonnelID, &vec, &emb.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan embedding: %w", err)
		}
		values := vec.Slice()
		if len(values) == 0 {
			log.Warnf("Skipping empty embedding %d for personnel %d", emb.ID, emb.PersonnelID)
			continue
		}
		emb.Embedding = facematch.L2Normalize(values)
		emb.Legacy = legacy
		out = append(out, emb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}
	return out, nil
}

// AppendEmbeddings inserts all embeddings for a person in one transaction.
func (p *Pool) AppendEmbeddings(ctx context.Context, personnelID int64, embeddings [][]float32) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, emb := range embeddings {
		if len(emb) == 0 {
			return fmt.Errorf("embedding %d: %w", i, database.ErrEmptyEmbedding)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO face_embeddings (personnel_id, embedding, created_at) VALUES ($1, $2, NOW())`,
			personnelID, pgvector.NewVector(emb))
		if err != nil {
			return fmt.Errorf("insert embedding %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// FetchStationOf returns the station a person belongs to.
func (p *Pool) FetchStationOf(ctx context.Context, personnelID int64) (int64, bool, error) {
	var stationID sql.NullInt64
	err := p.db.QueryRowContext(ctx, `SELECT station_id FROM personnel WHERE id = $1`, personnelID).Scan(&stationID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get station of personnel %d: %w", personnelID, err)
	}
	if !stationID.Valid {
		return 0, false, nil
	}
	return stationID.Int64, true, nil
}

// FetchStationsOf resolves several personnel in one query.
func (p *Pool) FetchStationsOf(ctx context.Context, personnelIDs []int64) (map[int64]int64, error) {
	out := make(map[int64]int64, len(personnelIDs))
	if len(personnelIDs) == 0 {
		return out, nil
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, station_id FROM personnel WHERE station_id IS NOT NULL AND id = ANY($1)`,
		pq.Array(personnelIDs))
	if err != nil {
		return nil, fmt.Errorf("query personnel stations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, station int64
		if err := rows.Scan(&id, &station); err != nil {
			return nil, fmt.Errorf("scan personnel station: %w", err)
		}
		out[id] = station
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personnel stations: %w", err)
	}
	return out, nil
}

// LegacyOnlyPersonnel lists personnel that have legacy embeddings and no current ones.
func (p *Pool) LegacyOnlyPersonnel(ctx context.Context) ([]int64, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT DISTINCT fd.personnel_id
		FROM face_data fd
		LEFT JOIN face_embeddings fe ON fe.personnel_id = fd.personnel_id
		WHERE fe.id IS NULL AND fd.embedding IS NOT NULL
		ORDER BY fd.personnel_id
	`)
	if err != nil {
		return nil, fmt.Errorf("query legacy personnel: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan legacy personnel: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy personnel: %w", err)
	}
	return ids, nil
}

var _ database.Store = (*Pool)(nil)
