// Package skew estimates the clockwise angle that straightens a diagonal tile
// scan and the crop that removes the blank canvas around it afterwards.
//
// A tile scan captured at a stage angle is a rotated rectangle of content on
// a zero background. Which top corner holds more content tells which way the
// rectangle leans; the image's aspect ratio tells by how much.
package skew

import (
	"errors"
	"image"
	"math"
)

// ErrBlankReference is returned when the reference image holds no non-zero
// pixel, so neither an angle nor a crop can be derived from it.
var ErrBlankReference = errors.New("reference image is blank")

// Orientation is the direction of the populated diagonal.
type Orientation int

const (
	// TopLeftToBottomRight: more content in the top-left corner block
	TopLeftToBottomRight Orientation = iota
	// BottomLeftToTopRight: more content in the top-right corner block
	BottomLeftToTopRight
)

func (o Orientation) String() string {
	if o == TopLeftToBottomRight {
		return "top-left to bottom-right"
	}
	return "bottom-left to top-right"
}

// AngleEstimate is the result of EstimateAngle together with the counts it
// was derived from.
type AngleEstimate struct {
	// Degrees is the clockwise rotation to apply
	Degrees float64

	// Magnitude is |Degrees|, half the angle of the image diagonal
	Magnitude float64

	// TopLeftCount and TopRightCount are the non-zero pixels found in the
	// half x half corner blocks
	TopLeftCount  int
	TopRightCount int

	Orientation Orientation
}

// EstimateAngle returns the clockwise rotation, in degrees, that brings the
// populated diagonal of a tile scan into vertical alignment.
//
// With half = floor(min(w, h)/2) the non-zero pixels of the top-left and
// top-right half x half blocks are counted. Equal counts are treated as
// top-left heavy. The magnitude is atan(short/long)/2 and the sign is:
//
//	h > w,  top-left heavy   -> -magnitude
//	h > w,  top-right heavy  -> +magnitude
//	w >= h, top-left heavy   -> +magnitude
//	w >= h, top-right heavy  -> -magnitude
//
// An image with no non-zero pixel yields a zero estimate and
// ErrBlankReference.
func EstimateAngle(img image.Image) (AngleEstimate, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if b.Empty() || !anyNonZero(img, b) {
		return AngleEstimate{}, ErrBlankReference
	}

	half := min(w, h) / 2
	est := AngleEstimate{
		TopLeftCount:  countNonZero(img, image.Rect(b.Min.X, b.Min.Y, b.Min.X+half, b.Min.Y+half)),
		TopRightCount: countNonZero(img, image.Rect(b.Max.X-half, b.Min.Y, b.Max.X, b.Min.Y+half)),
	}

	// Ties go to the top-left branch
	topLeftHeavy := est.TopLeftCount >= est.TopRightCount
	if topLeftHeavy {
		est.Orientation = TopLeftToBottomRight
	} else {
		est.Orientation = BottomLeftToTopRight
	}

	long, short := float64(w), float64(h)
	if h > w {
		long, short = float64(h), float64(w)
	}
	est.Magnitude = math.Atan(short/long) * 180 / math.Pi / 2

	switch {
	case h > w && topLeftHeavy:
		est.Degrees = -est.Magnitude
	case h > w:
		est.Degrees = est.Magnitude
	case topLeftHeavy:
		est.Degrees = est.Magnitude
	default:
		est.Degrees = -est.Magnitude
	}

	return est, nil
}

// signal returns a predicate reporting whether the pixel at (x, y) carries
// signal. Alpha is ignored so an opaque black background still counts as
// blank.
func signal(img image.Image) func(x, y int) bool {
	switch m := img.(type) {
	case *image.Gray16:
		return func(x, y int) bool { return m.Gray16At(x, y).Y != 0 }
	case *image.Gray:
		return func(x, y int) bool { return m.GrayAt(x, y).Y != 0 }
	default:
		return func(x, y int) bool {
			r, g, b, _ := img.At(x, y).RGBA()
			return r|g|b != 0
		}
	}
}

// countNonZero counts the non-zero pixels of img inside r.
func countNonZero(img image.Image, r image.Rectangle) int {
	r = r.Intersect(img.Bounds())
	on := signal(img)
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if on(x, y) {
				n++
			}
		}
	}
	return n
}

func anyNonZero(img image.Image, r image.Rectangle) bool {
	on := signal(img)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if on(x, y) {
				return true
			}
		}
	}
	return false
}
