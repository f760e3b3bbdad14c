package database

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrEmptyEmbedding is returned when a stored embedding decodes to zero values.
var ErrEmptyEmbedding = errors.New("empty embedding")

// DecodeEmbeddingJSON parses an embedding stored as a JSON array of numbers.
// Some MySQL drivers hand JSON columns back double-encoded as a JSON string; that form is accepted too.
func DecodeEmbeddingJSON(raw []byte) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal(raw, &vec); err != nil {
		var inner string
		if strErr := json.Unmarshal(raw, &inner); strErr != nil {
			return nil, fmt.Errorf("decoding embedding: %w", err)
		}
		if err := json.Unmarshal([]byte(inner), &vec); err != nil {
			return nil, fmt.Errorf("decoding embedding: %w", err)
		}
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vec, nil
}

// EncodeEmbeddingJSON serializes an embedding as a JSON array.
func EncodeEmbeddingJSON(vec []float32) ([]byte, error) {
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("encoding embedding: %w", err)
	}
	return data, nil
}
