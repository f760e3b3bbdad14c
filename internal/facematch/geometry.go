package facematch

import (
	"image"
	"math"
)

// ExpandSquare returns a square region centred on the box whose side is scale
// times the longer box edge, clipped to bounds. Coordinates are truncated to
// whole pixels first. The result is empty when nothing of it lies inside bounds.
func ExpandSquare(b BBox, scale float64, bounds image.Rectangle) image.Rectangle {
	x1, y1 := math.Trunc(b[0]), math.Trunc(b[1])
	x2, y2 := math.Trunc(b[2]), math.Trunc(b[3])

	cx := math.Floor((x1 + x2) / 2)
	cy := math.Floor((y1 + y2) / 2)
	half := max(x2-x1, y2-y1) * scale / 2

	r := image.Rect(
		int(math.Trunc(cx-half)),
		int(math.Trunc(cy-half)),
		int(math.Trunc(cx+half)),
		int(math.Trunc(cy+half)),
	)
	return r.Intersect(bounds)
}
