// Package facematch holds the identity matcher and the vector and bounding-box
// math it shares with the recognition and liveness stages.
package facematch

// BBox is a face bounding box [x1, y1, x2, y2] in raw pixel coordinates.
type BBox [4]float64

// Width returns x2 - x1.
func (b BBox) Width() float64 { return b[2] - b[0] }

// Height returns y2 - y1.
func (b BBox) Height() float64 { return b[3] - b[1] }

// Area returns the box area. Degenerate boxes have zero area.
func (b BBox) Area() float64 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// BBoxFromSlice converts a [x1, y1, x2, y2] slice; ok is false for any other length.
func BBoxFromSlice(s []float64) (BBox, bool) {
	if len(s) != 4 {
		return BBox{}, false
	}
	return BBox{s[0], s[1], s[2], s[3]}, true
}

// Scale multiplies every coordinate by f.
func (b BBox) Scale(f float64) BBox {
	return BBox{b[0] * f, b[1] * f, b[2] * f, b[3] * f}
}
