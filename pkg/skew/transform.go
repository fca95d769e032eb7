package skew

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"

	"tilescan/pkg/interpolation"
)

// ErrBoundsOutside is returned when a crop is empty or does not fit the
// rotated canvas.
var ErrBoundsOutside = errors.New("crop bounds outside rotated image")

// ErrSizeMismatch is returned by Estimate.Apply for an image whose size
// differs from the reference.
var ErrSizeMismatch = errors.New("image size differs from reference")

// ApplyTransform rotates img clockwise by degrees and crops the result to
// bounds. The rotation must use the same method the bounds were derived
// with.
func ApplyTransform(img image.Image, degrees float64, bounds CropBounds, method interpolation.Method) (draw.Image, error) {
	rotated := interpolation.Rotate(img, degrees, method)
	r := bounds.Rect()
	if r.Empty() || !r.In(rotated.Bounds()) {
		return nil, fmt.Errorf("%w: %v does not fit %dx%d", ErrBoundsOutside, bounds,
			rotated.Bounds().Dx(), rotated.Bounds().Dy())
	}
	return interpolation.Crop(rotated, r), nil
}

// Options control EstimateSkew.
type Options struct {
	// Method is the resampling used for rotation
	Method interpolation.Method

	// ManualAngle, when set, replaces the estimated angle
	ManualAngle *float64
}

// Estimate is the transform derived from one reference image and applied
// to every image of its group.
type Estimate struct {
	// Degrees is the clockwise rotation
	Degrees float64

	// Angle holds the corner counts behind Degrees; zero for a manual angle
	Angle AngleEstimate

	// Manual is true when Degrees came from Options.ManualAngle
	Manual bool

	// Bounds is the crop of the rotated canvas
	Bounds CropBounds

	// Width and Height are the dimensions of the reference before rotation
	Width, Height int

	Method interpolation.Method
}

// EstimateSkew derives the angle and crop for a group from its reference
// image: estimate the angle (unless a manual one is given), rotate the
// reference, then find the bounds of its content.
func EstimateSkew(ref image.Image, opts Options) (Estimate, error) {
	est := Estimate{
		Width:  ref.Bounds().Dx(),
		Height: ref.Bounds().Dy(),
		Method: opts.Method,
	}

	if opts.ManualAngle != nil {
		est.Degrees = *opts.ManualAngle
		est.Manual = true
	} else {
		angle, err := EstimateAngle(ref)
		if err != nil {
			return est, err
		}
		est.Angle = angle
		est.Degrees = angle.Degrees
	}

	bounds, err := ComputeCropBounds(interpolation.Rotate(ref, est.Degrees, opts.Method))
	if err != nil {
		return est, err
	}
	est.Bounds = bounds

	return est, nil
}

// Apply transforms one image of the group. Images must match the size of
// the reference.
func (e Estimate) Apply(img image.Image) (draw.Image, error) {
	b := img.Bounds()
	if b.Dx() != e.Width || b.Dy() != e.Height {
		return nil, fmt.Errorf("%w: image is %dx%d, reference was %dx%d", ErrSizeMismatch,
			b.Dx(), b.Dy(), e.Width, e.Height)
	}
	return ApplyTransform(img, e.Degrees, e.Bounds, e.Method)
}
