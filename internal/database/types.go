package database

import (
	"time"
)

// Candidate is one enrolled embedding of a person, as seen by the matcher.
type Candidate struct {
	PersonnelID int64
	Embedding   []float32
}

// StoredEmbedding represents an embedding row as stored in the database
type StoredEmbedding struct {
	ID          int64
	PersonnelID int64
	Embedding   []float32
	Legacy      bool // true for rows from the legacy face_data table
	CreatedAt   time.Time
}

// Candidate converts a stored row into a matcher candidate.
func (s StoredEmbedding) Candidate() Candidate {
	return Candidate{PersonnelID: s.PersonnelID, Embedding: s.Embedding}
}

// LegacyReport summarizes personnel that still rely on legacy embeddings only.
type LegacyReport struct {
	PersonnelIDs []int64
	Stations     map[int64]int64 // personnel ID -> station ID, when known
}

// Dims returns the distinct embedding dimensions in a candidate set, in first-seen order.
func Dims(candidates []Candidate) []int {
	seen := make(map[int]struct{})
	var dims []int
	for _, c := range candidates {
		d := len(c.Embedding)
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		dims = append(dims, d)
	}
	return dims
}
