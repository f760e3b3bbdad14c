// Package mariadb implements the embedding store on the MySQL/MariaDB schema
// shared with the attendance system (personnel, face_data, face_embeddings).
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/face-service/internal/database"
	"github.com/kozaktomas/face-service/internal/facematch"
	"github.com/kozaktomas/face-service/internal/logging"
)

var log = logging.Component("mariadb")

// errNoSuchTable is MySQL's ER_NO_SUCH_TABLE.
const errNoSuchTable = 1146

// isMissingTable reports whether err is a query against a table that does not exist.
// Deployments that never had the legacy model have no face_data table.
func isMissingTable(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errNoSuchTable
}

// Pool manages a MariaDB connection pool.
type Pool struct {
	db *sql.DB
}

// NewPool creates a new MariaDB connection pool.
func NewPool(dsn string, maxOpen, maxIdle int) (*Pool, error) {
	if dsn == "" {
		return nil, errors.New("MariaDB DSN is required")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MariaDB: %w", err)
	}

	if maxOpen <= 0 {
		maxOpen = 5
	}
	if maxIdle <= 0 {
		maxIdle = 2
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MariaDB: %w", err)
	}

	return &Pool{db: db}, nil
}

// NewPoolFromDB wraps an already opened handle.
func NewPoolFromDB(db *sql.DB) *Pool {
	return &Pool{db: db}
}

// Ping verifies the connection is usable.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping MariaDB: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db != nil {
		if err := p.db.Close(); err != nil {
			return fmt.Errorf("closing database connection: %w", err)
		}
	}
	return nil
}

// FetchByStation returns legacy embeddings followed by current embeddings
// for every person assigned to the station.
func (p *Pool) FetchByStation(ctx context.Context, stationID int64) ([]database.Candidate, error) {
	legacy, err := p.queryCandidates(ctx, `
		SELECT fd.personnel_id, fd.embedding
		FROM face_data fd
		JOIN personnel p ON p.id = fd.personnel_id
		WHERE p.station_id = ? AND fd.embedding IS NOT NULL
		ORDER BY fd.personnel_id`, stationID)
	if isMissingTable(err) {
		log.Debugf("No face_data table, skipping legacy embeddings for station %d", stationID)
		legacy, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query legacy embeddings: %w", err)
	}

	current, err := p.queryCandidates(ctx, `
		SELECT fe.personnel_id, fe.embedding
		FROM face_embeddings fe
		JOIN personnel p ON p.id = fe.personnel_id
		WHERE p.station_id = ?
		ORDER BY fe.personnel_id, fe.id`, stationID)
	if err != nil {
		return nil, fmt.Errorf("query embeddings: %w", err)
	}

	return append(legacy, current...), nil
}

func (p *Pool) queryCandidates(ctx context.Context, query string, args ...any) ([]database.Candidate, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}
	defer rows.Close()

	var out []database.Candidate
	for rows.Next() {
		var (
			personnelID int64
			raw         []byte
		)
		if err := rows.Scan(&personnelID, &raw); err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		vec, err := database.DecodeEmbeddingJSON(raw)
		if err != nil {
			log.Warnf("Skipping embedding for personnel %d: %v", personnelID, err)
			continue
		}
		out = append(out, database.Candidate{
			PersonnelID: personnelID,
			Embedding:   facematch.L2Normalize(vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embedding rows: %w", err)
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

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO face_embeddings (personnel_id, embedding, created_at) VALUES (?, ?, NOW())`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, emb := range embeddings {
		data, err := database.EncodeEmbeddingJSON(emb)
		if err != nil {
			return fmt.Errorf("embedding %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, personnelID, string(data)); err != nil {
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
	err := p.db.QueryRowContext(ctx,
		`SELECT station_id FROM personnel WHERE id = ?`, personnelID).Scan(&stationID)
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

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(personnelIDs)), ",")
	args := make([]any, len(personnelIDs))
	for i, id := range personnelIDs {
		args[i] = id
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, station_id FROM personnel WHERE station_id IS NOT NULL AND id IN (`+placeholders+`)`, args...)
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
		ORDER BY fd.personnel_id`)
	if isMissingTable(err) {
		return nil, nil
	}
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
