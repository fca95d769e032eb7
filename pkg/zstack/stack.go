// Package zstack holds the slices of one channel in z order and derives
// per-stack views from them: the brightest (in-focus) slice, a window of
// slices around it and maximum-intensity projections.
package zstack

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ErrEmpty is returned when a stack is built from no slices.
var ErrEmpty = errors.New("stack has no slices")

// ErrSizeMismatch is returned when slices differ in size.
var ErrSizeMismatch = errors.New("slices differ in size")

// Stack is an ordered list of equally sized slices. Index 0 is the first
// slice of the scan.
type Stack struct {
	slices []image.Image
	size   image.Point

	// means caches the mean intensity of each slice
	means []float64
}

// New creates a stack over slices. The slices are not copied.
func New(slices []image.Image) (*Stack, error) {
	if len(slices) == 0 {
		return nil, ErrEmpty
	}
	size := slices[0].Bounds().Size()
	for i, s := range slices[1:] {
		if s.Bounds().Size() != size {
			return nil, fmt.Errorf("%w: slice %d is %v, slice 0 is %v", ErrSizeMismatch,
				i+1, s.Bounds().Size(), size)
		}
	}
	return &Stack{slices: slices, size: size}, nil
}

// Len returns the number of slices.
func (s *Stack) Len() int {
	return len(s.slices)
}

// Slice returns slice i.
func (s *Stack) Slice(i int) image.Image {
	return s.slices[i]
}

// Bounds returns the size of every slice as a rectangle at the origin.
func (s *Stack) Bounds() image.Rectangle {
	return image.Rectangle{Max: s.size}
}

// MeanIntensities returns the mean 16-bit gray level of each slice.
func (s *Stack) MeanIntensities() []float64 {
	if s.means == nil {
		s.means = make([]float64, len(s.slices))
		for i, img := range s.slices {
			s.means[i] = stat.Mean(Intensities(img), nil)
		}
	}
	return s.means
}

// CenterOfStack returns the index of the slice with the highest mean
// intensity. The first one wins a tie.
func (s *Stack) CenterOfStack() int {
	return floats.MaxIdx(s.MeanIntensities())
}

// FocusRange returns the window of slices centred on CenterOfStack as an
// inclusive index range reaching n/2 slices either side, so an even n gives
// n+1 slices. ok is false when the centre is too close to either end of the
// stack for the window to fit.
func (s *Stack) FocusRange(n int) (from, to int, ok bool) {
	if n < 1 {
		return 0, 0, false
	}
	half := n / 2
	center := s.CenterOfStack()
	if center < half || center > len(s.slices)-1-half {
		return 0, 0, false
	}
	return center - half, center + half, true
}

// Sub returns the stack holding slices from..to inclusive.
func (s *Stack) Sub(from, to int) (*Stack, error) {
	if err := s.checkRange(from, to); err != nil {
		return nil, err
	}
	return New(s.slices[from : to+1])
}

func (s *Stack) checkRange(from, to int) error {
	if from < 0 || to >= len(s.slices) || from > to {
		return fmt.Errorf("slice range [%d,%d] outside stack of %d", from, to, len(s.slices))
	}
	return nil
}

// MaxProjection returns the per-pixel maximum of slices from..to inclusive.
func (s *Stack) MaxProjection(from, to int) (*image.Gray16, error) {
	if err := s.checkRange(from, to); err != nil {
		return nil, err
	}

	proj := image.NewGray16(s.Bounds())
	for _, img := range s.slices[from : to+1] {
		b := img.Bounds()
		at := grayAt(img)
		for y := 0; y < s.size.Y; y++ {
			for x := 0; x < s.size.X; x++ {
				v := at(b.Min.X+x, b.Min.Y+y)
				i := proj.PixOffset(x, y)
				if cur := uint16(proj.Pix[i])<<8 | uint16(proj.Pix[i+1]); v > cur {
					proj.Pix[i] = uint8(v >> 8)
					proj.Pix[i+1] = uint8(v)
				}
			}
		}
	}
	return proj, nil
}

// Intensities flattens img to 16-bit gray levels in row-major order.
func Intensities(img image.Image) []float64 {
	b := img.Bounds()
	at := grayAt(img)
	data := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			data = append(data, float64(at(x, y)))
		}
	}
	return data
}

// grayAt returns a 16-bit gray accessor for img.
func grayAt(img image.Image) func(x, y int) uint16 {
	switch m := img.(type) {
	case *image.Gray16:
		return func(x, y int) uint16 { return m.Gray16At(x, y).Y }
	case *image.Gray:
		return func(x, y int) uint16 { return uint16(m.GrayAt(x, y).Y) * 0x101 }
	}
	return func(x, y int) uint16 {
		return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
	}
}
