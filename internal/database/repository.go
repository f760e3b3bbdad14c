package database

import (
	"context"
)

// EmbeddingReader provides read-only access to enrolled face embeddings
type EmbeddingReader interface {
	// FetchByStation returns every embedding of every person assigned to the station,
	// legacy rows first. Embeddings are L2-normalized; rows that fail to decode are skipped.
	FetchByStation(ctx context.Context, stationID int64) ([]Candidate, error)
	// LegacyOnlyPersonnel returns personnel with legacy embeddings but no current ones
	LegacyOnlyPersonnel(ctx context.Context) ([]int64, error)
}

// EmbeddingWriter provides write access to enrolled face embeddings
type EmbeddingWriter interface {
	// AppendEmbeddings stores all embeddings for a person in a single transaction.
	// Existing embeddings are kept; newer enrollments supersede them only by being averaged in.
	AppendEmbeddings(ctx context.Context, personnelID int64, embeddings [][]float32) error
}

// PersonnelReader resolves personnel to their station
type PersonnelReader interface {
	// FetchStationOf returns the station of a person; found is false when the person does not exist
	FetchStationOf(ctx context.Context, personnelID int64) (stationID int64, found bool, err error)
	// FetchStationsOf resolves many personnel at once; unknown IDs are absent from the map
	FetchStationsOf(ctx context.Context, personnelIDs []int64) (map[int64]int64, error)
}

// Store is everything the recognition and enrollment pipelines need from storage.
type Store interface {
	EmbeddingReader
	EmbeddingWriter
	PersonnelReader
	// Ping verifies the connection is usable
	Ping(ctx context.Context) error
	// Close releases the connection pool
	Close() error
}
