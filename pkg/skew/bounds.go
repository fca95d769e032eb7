package skew

import (
	"fmt"
	"image"
)

// Range is an inclusive run of row or column indices.
type Range struct {
	First, Last int
}

// Len returns the number of indices in r.
func (r Range) Len() int {
	return r.Last - r.First + 1
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.First, r.Last)
}

// CropBounds are the rows and columns of a rotated image that hold content.
type CropBounds struct {
	Rows Range
	Cols Range
}

// FullBounds covers every pixel of a w x h image.
func FullBounds(w, h int) CropBounds {
	return CropBounds{
		Rows: Range{First: 0, Last: h - 1},
		Cols: Range{First: 0, Last: w - 1},
	}
}

// Rect returns the bounds as a half-open image.Rectangle.
func (c CropBounds) Rect() image.Rectangle {
	return image.Rect(c.Cols.First, c.Rows.First, c.Cols.Last+1, c.Rows.Last+1)
}

// Size returns the width and height of the crop.
func (c CropBounds) Size() (int, int) {
	return c.Cols.Len(), c.Rows.Len()
}

func (c CropBounds) String() string {
	return fmt.Sprintf("rows %v cols %v", c.Rows, c.Cols)
}

// ComputeCropBounds returns the smallest row and column ranges of img that
// contain every non-zero pixel. Indices are relative to img.Bounds().Min.
// A blank image returns ErrBlankReference rather than an empty range.
func ComputeCropBounds(img image.Image) (CropBounds, error) {
	b := img.Bounds()
	on := signal(img)

	minRow, maxRow := -1, -1
	minCol, maxCol := b.Dx(), -1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := y - b.Min.Y
		for x := b.Min.X; x < b.Max.X; x++ {
			if !on(x, y) {
				continue
			}
			col := x - b.Min.X
			if minRow < 0 {
				minRow = row
			}
			maxRow = row
			if col < minCol {
				minCol = col
			}
			if col > maxCol {
				maxCol = col
			}
		}
	}

	if maxRow < 0 {
		return CropBounds{}, ErrBlankReference
	}

	return CropBounds{
		Rows: Range{First: minRow, Last: maxRow},
		Cols: Range{First: minCol, Last: maxCol},
	}, nil
}
