package facematch

import (
	"math"

	"github.com/kozaktomas/face-service/internal/constants"
	"github.com/kozaktomas/face-service/internal/database"
)

// Match is the best-scoring person for a query embedding.
type Match struct {
	PersonnelID int64
	Confidence  float64 // clamped to [0, 1], rounded to 4 decimals
}

// personGroup holds one person's embeddings in candidate order.
type personGroup struct {
	id         int64
	embeddings [][]float32
}

// groupByPerson groups candidates by personnel ID, keeping first-seen order.
func groupByPerson(candidates []database.Candidate) []personGroup {
	index := make(map[int64]int)
	var groups []personGroup
	for _, c := range candidates {
		i, ok := index[c.PersonnelID]
		if !ok {
			i = len(groups)
			index[c.PersonnelID] = i
			groups = append(groups, personGroup{id: c.PersonnelID})
		}
		groups[i].embeddings = append(groups[i].embeddings, c.Embedding)
	}
	return groups
}

// Centroid returns the arithmetic mean of equal-length vectors divided by
// (norm + CentroidEpsilon). It returns nil for an empty input.
func Centroid(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	sum := make([]float64, dim)
	for _, v := range vectors {
		for i := range dim {
			sum[i] += float64(v[i])
		}
	}

	var sq float64
	for i := range sum {
		sum[i] /= float64(len(vectors))
		sq += sum[i] * sum[i]
	}
	denom := math.Sqrt(sq) + constants.CentroidEpsilon

	out := make([]float32, dim)
	for i := range sum {
		out[i] = float32(sum[i] / denom)
	}
	return out
}

// personScore scores one person against the query. Embeddings with the query's
// dimension are averaged into a centroid; every other embedding is compared on
// the common prefix. The best of those scores wins.
func personScore(query []float32, embeddings [][]float32) (float64, bool) {
	var sameDim [][]float32
	best := math.Inf(-1)
	scored := false

	for _, e := range embeddings {
		if len(e) == len(query) {
			sameDim = append(sameDim, e)
			continue
		}
		n := min(len(query), len(e))
		if s := CosineSimilarity(query[:n], e[:n]); s > best {
			best = s
		}
		scored = true
	}

	if len(sameDim) > 0 {
		if s := CosineSimilarity(query, Centroid(sameDim)); s > best {
			best = s
		}
		scored = true
	}
	return best, scored
}

// FindBestMatch compares query against every person in candidates and returns
// the highest-scoring one. Ties keep the person seen first. ok is false only
// when candidates is empty.
func FindBestMatch(query []float32, candidates []database.Candidate) (Match, bool) {
	if len(candidates) == 0 {
		return Match{}, false
	}

	bestScore := -1.0
	var bestID int64
	found := false

	for _, g := range groupByPerson(candidates) {
		score, ok := personScore(query, g.embeddings)
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			bestID = g.id
			found = true
		}
	}
	if !found {
		return Match{}, false
	}

	return Match{PersonnelID: bestID, Confidence: roundConfidence(bestScore)}, true
}

func roundConfidence(score float64) float64 {
	score = max(0, min(1, score))
	scale := math.Pow10(constants.ConfidencePrecision)
	return math.Round(score*scale) / scale
}
