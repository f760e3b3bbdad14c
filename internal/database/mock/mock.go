// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"

	"github.com/kozaktomas/face-service/internal/database"
)

// MockStore is an in-memory database.Store.
type MockStore struct {
	mu        sync.RWMutex
	stations map[int64]int64 // personnel ID -> station ID
	legacy   map[int64][][]float32
	current  map[int64][][]float32
	order    []int64 // personnel in insertion order
	appends  int
	fetches  int
	closed   bool

	// Error injection
	FetchError   error
	AppendError  error
	StationError error
	LegacyError  error
	PingError    error
}

// NewMockStore creates an empty mock store
func NewMockStore() *MockStore {
	return &MockStore{
		stations: make(map[int64]int64),
		legacy:   make(map[int64][][]float32),
		current:  make(map[int64][][]float32),
	}
}

// AddPersonnel registers a person at a station
func (m *MockStore) AddPersonnel(personnelID, stationID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stations[personnelID]; !ok {
		m.order = append(m.order, personnelID)
	}
	m.stations[personnelID] = stationID
}

// AddLegacyEmbedding stores a legacy face_data embedding for a person
func (m *MockStore) AddLegacyEmbedding(personnelID int64, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.legacy[personnelID] = append(m.legacy[personnelID], embedding)
}

// FetchByStation returns legacy rows first, then current rows, in personnel insertion order
func (m *MockStore) FetchByStation(ctx context.Context, stationID int64) ([]database.Candidate, error) {
	if m.FetchError != nil {
		return nil, m.FetchError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++

	var out []database.Candidate
	for _, source := range []map[int64][][]float32{m.legacy, m.current} {
		for _, id := range m.order {
			if m.stations[id] != stationID {
				continue
			}
			for _, emb := range source[id] {
				out = append(out, database.Candidate{PersonnelID: id, Embedding: emb})
			}
		}
	}
	return out, nil
}

// AppendEmbeddings stores current embeddings for a person
func (m *MockStore) AppendEmbeddings(ctx context.Context, personnelID int64, embeddings [][]float32) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends++
	m.current[personnelID] = append(m.current[personnelID], embeddings...)
	return nil
}

// FetchStationOf returns the station of a person
func (m *MockStore) FetchStationOf(ctx context.Context, personnelID int64) (int64, bool, error) {
	if m.StationError != nil {
		return 0, false, m.StationError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	station, ok := m.stations[personnelID]
	return station, ok, nil
}

// FetchStationsOf resolves several personnel at once
func (m *MockStore) FetchStationsOf(ctx context.Context, personnelIDs []int64) (map[int64]int64, error) {
	if m.StationError != nil {
		return nil, m.StationError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]int64, len(personnelIDs))
	for _, id := range personnelIDs {
		if station, ok := m.stations[id]; ok {
			out[id] = station
		}
	}
	return out, nil
}

// LegacyOnlyPersonnel returns personnel with legacy embeddings and no current ones
func (m *MockStore) LegacyOnlyPersonnel(ctx context.Context) ([]int64, error) {
	if m.LegacyError != nil {
		return nil, m.LegacyError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for _, id := range m.order {
		if len(m.legacy[id]) > 0 && len(m.current[id]) == 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Ping returns PingError
func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingError
}

// Close marks the store closed
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Embeddings returns the current embeddings stored for a person
func (m *MockStore) Embeddings(personnelID int64) [][]float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current[personnelID]
}

// AppendCalls returns how many successful AppendEmbeddings calls were made
func (m *MockStore) AppendCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.appends
}

// FetchCalls returns how many successful FetchByStation calls were made
func (m *MockStore) FetchCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetches
}

// Closed reports whether Close was called
func (m *MockStore) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

var _ database.Store = (*MockStore)(nil)
