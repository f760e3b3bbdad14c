package liveness

import (
	"errors"
	"fmt"
	"math"
)

// OutputKind tags how a classifier's raw output becomes a "real" probability.
type OutputKind int

const (
	// Binary models emit one logit; the real probability is its sigmoid.
	Binary OutputKind = iota
	// MultiClass models emit one logit per class; the real probability is the
	// softmax entry at RealIndex.
	MultiClass
)

func (k OutputKind) String() string {
	switch k {
	case Binary:
		return "binary"
	case MultiClass:
		return "multiclass"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

// OutputContract is resolved once from the model's output shape at load time.
type OutputContract struct {
	Kind      OutputKind
	Classes   int
	RealIndex int
}

// ResolveContract picks the contract from the last dimension of the output shape.
func ResolveContract(outputShape []int, realIndex int) (OutputContract, error) {
	if len(outputShape) == 0 {
		return OutputContract{}, errors.New("empty output shape")
	}
	classes := outputShape[len(outputShape)-1]
	switch {
	case classes == 1:
		return OutputContract{Kind: Binary, Classes: 1}, nil
	case classes >= 2:
		if realIndex < 0 || realIndex >= classes {
			return OutputContract{}, fmt.Errorf("real class index %d out of range for %d classes", realIndex, classes)
		}
		return OutputContract{Kind: MultiClass, Classes: classes, RealIndex: realIndex}, nil
	default:
		return OutputContract{}, fmt.Errorf("unsupported output shape %v", outputShape)
	}
}

// RealScore converts one output row into the probability that the face is real.
func (c OutputContract) RealScore(output []float32) (float64, error) {
	switch c.Kind {
	case Binary:
		if len(output) < 1 {
			return 0, errors.New("empty model output")
		}
		return sigmoid(float64(output[0])), nil
	case MultiClass:
		if len(output) != c.Classes {
			return 0, fmt.Errorf("expected %d logits, got %d", c.Classes, len(output))
		}
		return softmax(output)[c.RealIndex], nil
	default:
		return 0, fmt.Errorf("unknown output kind %v", c.Kind)
	}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// softmax is shifted by the max logit for numerical stability.
func softmax(logits []float32) []float64 {
	maxLogit := math.Inf(-1)
	for _, l := range logits {
		maxLogit = max(maxLogit, float64(l))
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(float64(l) - maxLogit)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
