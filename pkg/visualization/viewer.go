package visualization

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"
	"gonum.org/v1/gonum/stat"

	"tilescan/pkg/zstack"
)

// DefaultSaturated is the fraction of pixels clipped at each end of the
// intensity range when stretching contrast.
const DefaultSaturated = 0.0035

// Viewer renders previews of one channel's z-stack so that the result of
// a rotation and crop can be checked by eye.
type Viewer struct {
	// stack holds the slices of the channel in z order
	stack *zstack.Stack

	// saturated is the fraction of pixels clipped at each end
	saturated float64
}

// NewViewer creates a viewer over stack
func NewViewer(stack *zstack.Stack) *Viewer {
	return &Viewer{
		stack:     stack,
		saturated: DefaultSaturated,
	}
}

// SetSaturated changes the fraction of pixels clipped at each end of the
// range. Values outside [0, 0.5) are rejected.
func (v *Viewer) SetSaturated(fraction float64) error {
	if fraction < 0 || fraction >= 0.5 || math.IsNaN(fraction) {
		return fmt.Errorf("saturated fraction %v outside [0, 0.5)", fraction)
	}
	v.saturated = fraction
	return nil
}

// Projection returns the maximum-intensity projection of the whole stack
func (v *Viewer) Projection() (*image.Gray16, error) {
	return v.stack.MaxProjection(0, v.stack.Len()-1)
}

// ContrastLimits returns the gray levels below and above which the given
// fraction of data lies. data is not modified.
func ContrastLimits(data []float64, saturated float64) (lo, hi float64) {
	if len(data) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	lo = stat.Quantile(saturated, stat.Empirical, sorted, nil)
	hi = stat.Quantile(1-saturated, stat.Empirical, sorted, nil)
	return lo, hi
}

// Stretch maps img to 8 bits, sending lo and below to black and hi and
// above to white with a linear ramp between.
func Stretch(img *image.Gray16, lo, hi float64) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	span := hi - lo
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			value := float64(img.Gray16At(x, y).Y)
			var level float64
			switch {
			case span <= 0:
				if value > lo {
					level = 255
				}
			default:
				level = math.Round((value - lo) / span * 255)
			}
			out.Pix[out.PixOffset(x-b.Min.X, y-b.Min.Y)] = uint8(math.Max(0, math.Min(255, level)))
		}
	}
	return out
}

// RenderPreview projects the stack, stretches its contrast and shrinks it
// to fit inside maxSize x maxSize. A maxSize of zero or less keeps the
// full resolution.
func (v *Viewer) RenderPreview(maxSize int) (*image.NRGBA, error) {
	proj, err := v.Projection()
	if err != nil {
		return nil, err
	}

	lo, hi := ContrastLimits(zstack.Intensities(proj), v.saturated)
	gray := Stretch(proj, lo, hi)

	if maxSize <= 0 {
		return imaging.Clone(gray), nil
	}
	return imaging.Fit(gray, maxSize, maxSize, imaging.Lanczos), nil
}

// SavePreview renders the preview and writes it to filename. The format
// follows the file extension.
func (v *Viewer) SavePreview(filename string, maxSize int) error {
	img, err := v.RenderPreview(maxSize)
	if err != nil {
		return err
	}
	if err := imaging.Save(img, filename); err != nil {
		return fmt.Errorf("failed to save preview %s: %w", filename, err)
	}
	return nil
}
