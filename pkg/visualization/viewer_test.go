package visualization

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"

	"tilescan/pkg/zstack"
)

// createTestStack builds a stack of depth slices whose brightness ramps
// left to right, slice z holding a bright square at (z, z)
func createTestStack(t *testing.T, width, height, depth int) *zstack.Stack {
	t.Helper()
	slices := make([]image.Image, depth)
	for z := 0; z < depth; z++ {
		img := image.NewGray16(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				img.SetGray16(x, y, color.Gray16{Y: uint16(x * 100)})
			}
		}
		img.SetGray16(z, z, color.Gray16{Y: 60000})
		slices[z] = img
	}
	stack, err := zstack.New(slices)
	if err != nil {
		t.Fatalf("Failed to build stack: %v", err)
	}
	return stack
}

// TestProjection verifies the projection keeps each slice's bright spot
func TestProjection(t *testing.T) {
	viewer := NewViewer(createTestStack(t, 20, 10, 4))

	proj, err := viewer.Projection()
	if err != nil {
		t.Fatalf("Projection failed: %v", err)
	}
	for z := 0; z < 4; z++ {
		if got := proj.Gray16At(z, z).Y; got != 60000 {
			t.Errorf("Expected spot of slice %d to survive projection, got %d", z, got)
		}
	}
	if got := proj.Gray16At(19, 9).Y; got != 1900 {
		t.Errorf("Expected background 1900, got %d", got)
	}
}

// TestContrastLimits verifies the saturated quantiles
func TestContrastLimits(t *testing.T) {
	data := make([]float64, 1000)
	for i := range data {
		data[999-i] = float64(i)
	}

	lo, hi := ContrastLimits(data, 0.01)
	if lo != 9 {
		t.Errorf("Expected low limit 9, got %v", lo)
	}
	if hi != 989 {
		t.Errorf("Expected high limit 989, got %v", hi)
	}
	if data[0] != 999 {
		t.Errorf("ContrastLimits modified its input")
	}

	lo, hi = ContrastLimits(nil, 0.01)
	if lo != 0 || hi != 0 {
		t.Errorf("Expected zero limits for no data, got %v %v", lo, hi)
	}
}

// TestStretch verifies clipping at both ends and the linear ramp between
func TestStretch(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 4, 1))
	for x, v := range []uint16{0, 1000, 2000, 3000} {
		img.SetGray16(x, 0, color.Gray16{Y: v})
	}

	out := Stretch(img, 1000, 2000)
	want := []uint8{0, 0, 255, 255}
	for x, w := range want {
		if got := out.GrayAt(x, 0).Y; got != w {
			t.Errorf("Pixel %d: expected %d, got %d", x, w, got)
		}
	}

	out = Stretch(img, 0, 3000)
	if got := out.GrayAt(1, 0).Y; got != 85 {
		t.Errorf("Expected mid ramp value 85, got %d", got)
	}

	// A flat image does not divide by zero
	out = Stretch(img, 1000, 1000)
	if out.GrayAt(0, 0).Y != 0 || out.GrayAt(3, 0).Y != 255 {
		t.Errorf("Unexpected flat stretch result %v", out.Pix)
	}
}

// TestRenderPreview verifies the preview fits the requested size
func TestRenderPreview(t *testing.T) {
	viewer := NewViewer(createTestStack(t, 200, 100, 3))

	preview, err := viewer.RenderPreview(50)
	if err != nil {
		t.Fatalf("RenderPreview failed: %v", err)
	}
	if preview.Bounds().Dx() != 50 || preview.Bounds().Dy() != 25 {
		t.Errorf("Expected 50x25 preview, got %v", preview.Bounds())
	}

	full, err := viewer.RenderPreview(0)
	if err != nil {
		t.Fatalf("RenderPreview failed: %v", err)
	}
	if full.Bounds().Dx() != 200 || full.Bounds().Dy() != 100 {
		t.Errorf("Expected full resolution preview, got %v", full.Bounds())
	}
	// Left column is darkest, right column saturates
	if full.NRGBAAt(0, 50).R != 0 {
		t.Errorf("Expected black left edge, got %v", full.NRGBAAt(0, 50))
	}
	if full.NRGBAAt(199, 50).R != 255 {
		t.Errorf("Expected white right edge, got %v", full.NRGBAAt(199, 50))
	}
}

// TestSavePreview verifies a PNG is written and can be read back
func TestSavePreview(t *testing.T) {
	viewer := NewViewer(createTestStack(t, 30, 30, 2))
	path := filepath.Join(t.TempDir(), "Preview_scan.png")

	if err := viewer.SavePreview(path, 16); err != nil {
		t.Fatalf("SavePreview failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Preview not written: %v", err)
	}

	img, err := imaging.Open(path)
	if err != nil {
		t.Fatalf("Failed to open preview: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 16 {
		t.Errorf("Expected 16x16 preview, got %v", img.Bounds())
	}
}

// TestSetSaturated verifies the fraction is range-checked
func TestSetSaturated(t *testing.T) {
	viewer := NewViewer(createTestStack(t, 4, 4, 1))
	if err := viewer.SetSaturated(0.5); err == nil {
		t.Errorf("Expected error for fraction 0.5")
	}
	if err := viewer.SetSaturated(-0.1); err == nil {
		t.Errorf("Expected error for negative fraction")
	}
	if err := viewer.SetSaturated(0.01); err != nil {
		t.Errorf("Unexpected error: %v", err)
	}
}
