package facematch

import (
	"image"
	"testing"
)

func TestBBoxArea(t *testing.T) {
	tests := []struct {
		name string
		box  BBox
		want float64
	}{
		{"square", BBox{0, 0, 10, 10}, 100},
		{"offset rectangle", BBox{5, 10, 25, 20}, 200},
		{"inverted", BBox{10, 10, 0, 0}, 0},
		{"flat", BBox{0, 5, 10, 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.box.Area(); got != tt.want {
				t.Errorf("Area() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBBoxFromSlice(t *testing.T) {
	if _, ok := BBoxFromSlice([]float64{1, 2, 3}); ok {
		t.Error("expected short slice to be rejected")
	}
	b, ok := BBoxFromSlice([]float64{1, 2, 3, 4})
	if !ok || b != (BBox{1, 2, 3, 4}) {
		t.Errorf("unexpected result %v %v", b, ok)
	}
	if got := b.Scale(2); got != (BBox{2, 4, 6, 8}) {
		t.Errorf("Scale(2) = %v", got)
	}
}

func TestExpandSquare(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)

	tests := []struct {
		name  string
		box   BBox
		scale float64
		want  image.Rectangle
	}{
		{
			// centre (300, 200), longer edge 100, half side 135
			name:  "inside bounds",
			box:   BBox{250, 150, 350, 250},
			scale: 2.7,
			want:  image.Rect(165, 65, 435, 335),
		},
		{
			name:  "clipped at top left",
			box:   BBox{0, 0, 100, 80},
			scale: 2.7,
			want:  image.Rect(0, 0, 185, 175),
		},
		{
			name:  "clipped at bottom right",
			box:   BBox{600, 440, 640, 480},
			scale: 2.7,
			want:  image.Rect(566, 406, 640, 480),
		},
		{
			name:  "fractional coordinates truncated",
			box:   BBox{10.9, 10.9, 30.9, 30.9},
			scale: 1,
			want:  image.Rect(10, 10, 30, 30),
		},
		{
			name:  "entirely outside",
			box:   BBox{1000, 1000, 1010, 1010},
			scale: 1,
			want:  image.Rectangle{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandSquare(tt.box, tt.scale, bounds)
			if got != tt.want && !(got.Empty() && tt.want.Empty()) {
				t.Errorf("ExpandSquare() = %v, want %v", got, tt.want)
			}
		})
	}
}
