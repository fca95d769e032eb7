package interpolation

import (
	"image"

	"golang.org/x/image/draw"
)

// NewLike allocates a zeroed w x h image, anchored at the origin, of the
// same kind as src. Paletted and other image types become RGBA64.
func NewLike(src image.Image, w, h int) draw.Image {
	r := image.Rect(0, 0, w, h)
	switch src.(type) {
	case *image.Gray:
		return image.NewGray(r)
	case *image.Gray16:
		return image.NewGray16(r)
	case *image.RGBA:
		return image.NewRGBA(r)
	case *image.NRGBA:
		return image.NewNRGBA(r)
	case *image.NRGBA64:
		return image.NewNRGBA64(r)
	default:
		return image.NewRGBA64(r)
	}
}

// Crop copies the part of src inside r into a new image anchored at the
// origin. r is clipped to the bounds of src.
func Crop(src image.Image, r image.Rectangle) draw.Image {
	r = r.Intersect(src.Bounds())
	dst := NewLike(src, r.Dx(), r.Dy())
	draw.Copy(dst, image.Point{}, src, r, draw.Src, nil)
	return dst
}
