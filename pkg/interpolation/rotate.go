// Package interpolation implements the one rotation convention used across
// the module: clockwise degrees about the image centre, canvas enlarged to
// hold the whole rotated image, uncovered pixels left at zero.
//
// Bounds are derived on a rotated reference and then applied to every other
// slice, so both sides must go through Rotate with the same Method.
package interpolation

import (
	"fmt"
	"image"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// Method selects the resampling kernel used by Rotate.
type Method int

const (
	// Bilinear matches ImageJ's "Rotate... interpolation=Bilinear"
	Bilinear Method = iota
	// NearestNeighbor copies the closest source pixel
	NearestNeighbor
)

func (m Method) String() string {
	switch m {
	case Bilinear:
		return "bilinear"
	case NearestNeighbor:
		return "nearest"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// ParseMethod accepts the names used in config files and on the command line.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bilinear":
		return Bilinear, nil
	case "nearest", "nearestneighbor", "nearest-neighbor":
		return NearestNeighbor, nil
	default:
		return 0, fmt.Errorf("unknown interpolation method %q", s)
	}
}

func (m Method) interpolator() draw.Interpolator {
	if m == NearestNeighbor {
		return draw.NearestNeighbor
	}
	return draw.BiLinear
}

// sinCos returns sin and cos of degrees with values within 1e-12 of zero
// snapped to zero, so quarter turns map pixel centres exactly.
func sinCos(degrees float64) (float64, float64) {
	s, c := math.Sincos(degrees * math.Pi / 180)
	if math.Abs(s) < 1e-12 {
		s = 0
	}
	if math.Abs(c) < 1e-12 {
		c = 0
	}
	return s, c
}

// RotatedSize returns the canvas needed to hold a w x h image rotated by
// degrees.
func RotatedSize(w, h int, degrees float64) (int, int) {
	s, c := sinCos(degrees)
	s, c = math.Abs(s), math.Abs(c)
	fw, fh := float64(w), float64(h)
	nw := int(math.Ceil(fw*c + fh*s - 1e-6))
	nh := int(math.Ceil(fw*s + fh*c - 1e-6))
	return max(nw, 1), max(nh, 1)
}

// Matrix returns the source-to-destination affine transform that rotates the
// rectangle src clockwise by degrees about its centre and places the result
// centred on a dw x dh canvas anchored at the origin.
func Matrix(src image.Rectangle, dw, dh int, degrees float64) f64.Aff3 {
	s, c := sinCos(degrees)
	cx := float64(src.Min.X+src.Max.X) / 2
	cy := float64(src.Min.Y+src.Max.Y) / 2

	toOrigin := mat.NewDense(3, 3, []float64{
		1, 0, -cx,
		0, 1, -cy,
		0, 0, 1,
	})
	// y grows downwards, so this is a clockwise turn on screen
	rotation := mat.NewDense(3, 3, []float64{
		c, -s, 0,
		s, c, 0,
		0, 0, 1,
	})
	toCanvas := mat.NewDense(3, 3, []float64{
		1, 0, float64(dw) / 2,
		0, 1, float64(dh) / 2,
		0, 0, 1,
	})

	var m mat.Dense
	m.Product(toCanvas, rotation, toOrigin)
	return f64.Aff3{
		m.At(0, 0), m.At(0, 1), m.At(0, 2),
		m.At(1, 0), m.At(1, 1), m.At(1, 2),
	}
}

// Rotate returns src rotated clockwise by degrees on an enlarged canvas.
// Pixels not covered by the rotated source stay zero. The result has the
// same pixel type as src where that type is one of the standard library's
// gray or RGBA images. A zero angle returns an exact copy.
func Rotate(src image.Image, degrees float64, method Method) draw.Image {
	b := src.Bounds()
	if degrees == 0 || b.Empty() {
		return Crop(src, b)
	}

	w, h := RotatedSize(b.Dx(), b.Dy(), degrees)
	dst := NewLike(src, w, h)
	method.interpolator().Transform(dst, Matrix(b, w, h, degrees), src, b, draw.Src, nil)
	return dst
}
