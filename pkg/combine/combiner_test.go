package combine

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tilescan/internal/models"
	"tilescan/pkg/skew"
	"tilescan/pkg/tiffio"
)

// tiltedSlice draws a w x h slice with a rw x rh rectangle of value turned
// by tilt degrees about the centre
func tiltedSlice(w, h int, rw, rh, tilt float64, value uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	s, c := math.Sincos(tilt * math.Pi / 180)
	cx, cy := float64(w)/2, float64(h)/2
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			u := c*dx + s*dy
			v := -s*dx + c*dy
			if math.Abs(u) <= rw/2 && math.Abs(v) <= rh/2 {
				img.SetGray16(x, y, color.Gray16{Y: value})
			}
		}
	}
	return img
}

func scanMetadata() models.Metadata {
	return models.Metadata{}.
		WithDescription("ImageJ=1.53t\nunit=micron\n").
		WithResolution(models.XResolution, models.Rational{Num: 1000000, Den: 568000}).
		WithResolution(models.YResolution, models.Rational{Num: 1000000, Den: 568000}).
		WithUnit(tiffio.ResolutionCentimeter)
}

// writeSlice saves img as a single-page TIFF
func writeSlice(t *testing.T, path string, img image.Image, meta models.Metadata) {
	t.Helper()
	w, err := tiffio.CreateStack(path, tiffio.Options{})
	require.NoError(t, err)
	require.NoError(t, w.Append(img, meta))
	require.NoError(t, w.Close())
}

// createScanDir writes channels x slices tilted 100x100 slices named
// c<ch>z<z>_scan.tif into <tmp>/slices and returns that directory
func createScanDir(t *testing.T, channels, slices int) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "slices")
	require.NoError(t, os.Mkdir(dir, 0755))
	for ch := 1; ch <= channels; ch++ {
		for z := 1; z <= slices; z++ {
			img := tiltedSlice(100, 100, 50, 70, 25, uint16(1000*ch+100*z))
			writeSlice(t, filepath.Join(dir, fmt.Sprintf("c%dz%d_scan.tif", ch, z)), img, scanMetadata())
		}
	}
	return dir
}

func quietParams(dir string) *Params {
	p := DefaultParams(dir)
	p.NumCores = 2
	return p
}

func readStack(t *testing.T, path string) []*image.Gray16 {
	t.Helper()
	s, err := tiffio.OpenStack(path)
	require.NoError(t, err)
	defer s.Close()

	pages := make([]*image.Gray16, s.Len())
	for i := range pages {
		img, err := s.Page(i)
		require.NoError(t, err)
		g, ok := img.(*image.Gray16)
		require.True(t, ok, "page %d decoded as %T", i, img)
		pages[i] = g
	}
	return pages
}

func TestProcessEndToEnd(t *testing.T) {
	dir := createScanDir(t, 2, 2)
	parent := filepath.Dir(dir)

	c := NewCombiner(quietParams(dir))
	require.NoError(t, c.Process())
	res := c.Result()

	// Middle of two slices is round(2/2) = 1
	assert.Equal(t, models.ChannelSliceKey{Channel: 1, Slice: 1}, res.Reference)
	require.NotNil(t, res.Estimate)
	assert.Equal(t, []string{
		filepath.Join(parent, "c1_scan.tif"),
		filepath.Join(parent, "c2_scan.tif"),
	}, res.Outputs)

	ref, _, err := tiffio.ReadImage(filepath.Join(dir, "c1z1_scan.tif"))
	require.NoError(t, err)
	angle, err := skew.EstimateAngle(ref)
	require.NoError(t, err)
	assert.Equal(t, angle.Degrees, res.Estimate.Degrees)
	assert.NotZero(t, res.Estimate.Degrees)

	w, h := res.Estimate.Bounds.Size()
	for ch := 1; ch <= 2; ch++ {
		pages := readStack(t, filepath.Join(parent, fmt.Sprintf("c%d_scan.tif", ch)))
		require.Len(t, pages, 2)
		for z, page := range pages {
			assert.Equal(t, image.Rect(0, 0, w, h), page.Bounds())

			src, _, err := tiffio.ReadImage(filepath.Join(dir, fmt.Sprintf("c%dz%d_scan.tif", ch, z+1)))
			require.NoError(t, err)
			want, err := res.Estimate.Apply(src)
			require.NoError(t, err)
			assert.Equal(t, want.(*image.Gray16).Pix, page.Pix, "c%dz%d", ch, z+1)
		}
	}

	s, err := tiffio.OpenStack(filepath.Join(parent, "c2_scan.tif"))
	require.NoError(t, err)
	defer s.Close()
	meta, err := s.Metadata(1)
	require.NoError(t, err)
	assert.Equal(t, scanMetadata(), meta)

	text, err := os.ReadFile(filepath.Join(parent, "RotationInDegrees_scan.txt"))
	require.NoError(t, err)
	assert.Equal(t, strconv.FormatFloat(-res.Estimate.Degrees, 'f', -1, 64), string(text))
	assert.Equal(t, filepath.Join(parent, "RotationInDegrees_scan.txt"), res.AngleFile)
	assert.Empty(t, res.PreviewFile)
}

func TestProcessWithoutRotation(t *testing.T) {
	dir := createScanDir(t, 1, 3)
	parent := filepath.Dir(dir)

	params := quietParams(dir)
	params.NeedsRotation = false
	params.Compression = tiffio.Uncompressed
	c := NewCombiner(params)
	require.NoError(t, c.Process())

	assert.Nil(t, c.Result().Estimate)
	assert.Empty(t, c.Result().AngleFile)
	_, err := os.Stat(filepath.Join(parent, "RotationInDegrees_scan.txt"))
	assert.True(t, os.IsNotExist(err))

	pages := readStack(t, filepath.Join(parent, "c1_scan.tif"))
	require.Len(t, pages, 3)
	for z, page := range pages {
		want := tiltedSlice(100, 100, 50, 70, 25, uint16(1000+100*(z+1)))
		assert.Equal(t, want.Pix, page.Pix, "slice %d", z+1)
	}
}

func TestProcessManualAngle(t *testing.T) {
	dir := createScanDir(t, 1, 1)
	angle := -25.0

	params := quietParams(dir)
	params.ManualAngle = &angle
	c := NewCombiner(params)
	require.NoError(t, c.Process())

	est := c.Result().Estimate
	require.NotNil(t, est)
	assert.True(t, est.Manual)
	assert.Equal(t, -25.0, est.Degrees)

	text, err := os.ReadFile(c.Result().AngleFile)
	require.NoError(t, err)
	assert.Equal(t, "25", string(text))
}

func TestProcessBrightestReference(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "slices")
	require.NoError(t, os.Mkdir(dir, 0755))
	for z, value := range []uint16{100, 300, 200, 900} {
		img := tiltedSlice(60, 80, 30, 40, 15, value)
		writeSlice(t, filepath.Join(dir, fmt.Sprintf("c1z%d_stack.tif", z+1)), img, models.Metadata{})
	}

	params := quietParams(dir)
	params.ReferenceSlice = ReferenceBrightest
	c := NewCombiner(params)
	require.NoError(t, c.Process())
	// The middle slice would be 2
	assert.Equal(t, models.ChannelSliceKey{Channel: 1, Slice: 4}, c.Result().Reference)
}

func TestProcessWritesPreview(t *testing.T) {
	dir := createScanDir(t, 2, 2)

	params := quietParams(dir)
	params.WritePreview = true
	params.PreviewSize = 32
	params.BestChannel = 2
	c := NewCombiner(params)
	require.NoError(t, c.Process())

	res := c.Result()
	assert.Equal(t, filepath.Join(filepath.Dir(dir), "Preview_scan.png"), res.PreviewFile)
	info, err := os.Stat(res.PreviewFile)
	require.NoError(t, err)
	assert.NotZero(t, info.Size())
}

func TestProcessMissingReference(t *testing.T) {
	dir := createScanDir(t, 2, 2)
	params := quietParams(dir)
	params.BestChannel = 3

	err := NewCombiner(params).Process()
	assert.ErrorIs(t, err, ErrMissingReference)
}

func TestProcessBlankReference(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "slices")
	require.NoError(t, os.Mkdir(dir, 0755))
	writeSlice(t, filepath.Join(dir, "c1z1_scan.tif"), image.NewGray16(image.Rect(0, 0, 40, 40)), models.Metadata{})
	writeSlice(t, filepath.Join(dir, "c2z1_scan.tif"), tiltedSlice(40, 40, 20, 20, 10, 50), models.Metadata{})

	err := NewCombiner(quietParams(dir)).Process()
	assert.ErrorIs(t, err, skew.ErrBlankReference)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dir), "c1_scan.tif"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestProcessSizeMismatch(t *testing.T) {
	for _, rotate := range []bool{true, false} {
		t.Run(fmt.Sprintf("rotate=%v", rotate), func(t *testing.T) {
			dir := filepath.Join(t.TempDir(), "slices")
			require.NoError(t, os.Mkdir(dir, 0755))
			writeSlice(t, filepath.Join(dir, "c1z1_scan.tif"), tiltedSlice(40, 40, 20, 20, 10, 50), models.Metadata{})
			writeSlice(t, filepath.Join(dir, "c2z1_scan.tif"), tiltedSlice(40, 30, 20, 20, 10, 50), models.Metadata{})

			params := quietParams(dir)
			params.NeedsRotation = rotate
			err := NewCombiner(params).Process()
			assert.ErrorIs(t, err, ErrSizeMismatch)
		})
	}
}

func TestProcessRejectsBadChannel(t *testing.T) {
	params := quietParams(t.TempDir())
	params.BestChannel = 0
	assert.Error(t, NewCombiner(params).Process())
}
