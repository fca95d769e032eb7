package combine

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strconv"

	"tilescan/internal/models"
	"tilescan/pkg/interpolation"
	"tilescan/pkg/skew"
	"tilescan/pkg/tiffio"
	"tilescan/pkg/visualization"
	"tilescan/pkg/zstack"
)

// Reference slice selection modes
const (
	// ReferenceMiddle uses slice round(maxSlice/2) of the reference channel
	ReferenceMiddle = "middle"

	// ReferenceBrightest uses the slice with the highest mean intensity
	ReferenceBrightest = "brightest"
)

// Params holds the parameters of one combine run.
type Params struct {
	// InputDir holds the separated c<channel>z<slice>_<base> images.
	// Stacks are written to its parent directory.
	InputDir string

	// NeedsRotation enables straightening and cropping. Without it slices
	// are stacked as they are and no angle file is written.
	NeedsRotation bool

	// BestChannel is the channel with the strongest signal; its reference
	// slice defines the angle and crop for every channel.
	BestChannel int

	// ManualAngle, when set, is used instead of the estimated angle
	// (clockwise degrees).
	ManualAngle *float64

	// Interpolation is the resampling used for rotation
	Interpolation interpolation.Method

	// Compression is the storage of the written stacks
	Compression tiffio.Compression

	// NumCores bounds how many channels are written at once
	NumCores int

	// ReferenceSlice is ReferenceMiddle or ReferenceBrightest
	ReferenceSlice string

	// WritePreview saves Preview_<base>.png from the best channel's stack
	WritePreview bool

	// PreviewSize bounds the longer side of the preview in pixels
	PreviewSize int

	// Verbose prints progress
	Verbose bool
}

// DefaultParams returns the parameters used when only InputDir is known.
func DefaultParams(inputDir string) *Params {
	return &Params{
		InputDir:       inputDir,
		NeedsRotation:  true,
		BestChannel:    1,
		Interpolation:  interpolation.Bilinear,
		Compression:    tiffio.Deflate,
		NumCores:       1,
		ReferenceSlice: ReferenceMiddle,
		PreviewSize:    1024,
	}
}

// Result describes a finished run.
type Result struct {
	// Group is the scanned input
	Group *models.Group

	// Reference is the image the estimate was derived from
	Reference models.ChannelSliceKey

	// Estimate is nil when rotation was disabled
	Estimate *skew.Estimate

	// Outputs are the written stacks in channel order
	Outputs []string

	// AngleFile is the side file holding the angle, empty without rotation
	AngleFile string

	// PreviewFile is empty unless a preview was written
	PreviewFile string
}

// Combiner turns a directory of separated slices into one z-stack per
// channel. The run consists of these steps:
// 1. Scanning and validating the directory
// 2. Loading the reference image
// 3. Estimating the rotation angle and crop from the reference
// 4. Rotating, cropping and stacking every slice of every channel
// 5. Writing the angle side file
// 6. Rendering an optional preview
type Combiner struct {
	// params stores the run configuration
	params *Params

	// group is the scanned input directory
	group *models.Group

	// size is the dimension every image of the group must share
	size image.Point

	// result accumulates what the run produced
	result Result
}

// NewCombiner creates a combiner for params.
func NewCombiner(params *Params) *Combiner {
	return &Combiner{params: params}
}

// Result returns what the last Process call produced.
func (c *Combiner) Result() Result {
	return c.result
}

func (c *Combiner) logf(format string, args ...interface{}) {
	if c.params.Verbose {
		fmt.Printf(format, args...)
	}
}

// Process runs the complete combine pipeline
func (c *Combiner) Process() error {
	c.result = Result{}

	if c.params.BestChannel < 1 {
		return fmt.Errorf("best channel must be at least 1, got %d", c.params.BestChannel)
	}

	// Step 1: Scan the directory
	c.logf("Step 1: Scanning %s...\n", c.params.InputDir)
	group, err := ScanDir(c.params.InputDir)
	if err != nil {
		return fmt.Errorf("failed to scan input directory: %w", err)
	}
	c.group = group
	c.result.Group = group
	c.logf("Found %d channels x %d slices of %s\n", len(group.Channels), len(group.Slices), group.Base)

	// Step 2: Load the reference image
	c.logf("Step 2: Loading reference image...\n")
	key, ref, err := c.loadReference()
	if err != nil {
		return fmt.Errorf("failed to load reference image: %w", err)
	}
	c.result.Reference = key
	c.size = ref.Bounds().Size()
	c.logf("Reference is %s_%s (%dx%d)\n", key, group.Base, c.size.X, c.size.Y)

	// Step 3: Estimate the rotation and crop
	if c.params.NeedsRotation {
		c.logf("Step 3: Estimating rotation angle and crop bounds...\n")
		est, err := skew.EstimateSkew(ref, skew.Options{
			Method:      c.params.Interpolation,
			ManualAngle: c.params.ManualAngle,
		})
		if err != nil {
			return fmt.Errorf("failed to estimate skew from %s: %w", key, err)
		}
		c.result.Estimate = &est
		w, h := est.Bounds.Size()
		c.logf("Rotating %.4f degrees clockwise, cropping to %v (%dx%d)\n", est.Degrees, est.Bounds, w, h)
	}

	// Step 4: Write one stack per channel
	c.logf("Step 4: Writing %d channel stacks...\n", len(group.Channels))
	outputs, err := c.writeChannelsInParallel()
	if err != nil {
		return err
	}
	c.result.Outputs = outputs

	// Step 5: Save the angle for downstream tools
	if c.result.Estimate != nil {
		c.logf("Step 5: Saving rotation angle...\n")
		path, err := c.writeAngleFile(c.result.Estimate.Degrees)
		if err != nil {
			return fmt.Errorf("failed to write angle file: %w", err)
		}
		c.result.AngleFile = path
	}

	// Step 6: Render the preview
	if c.params.WritePreview {
		c.logf("Step 6: Rendering preview...\n")
		path, err := c.writePreview()
		if err != nil {
			fmt.Printf("Warning: Failed to write preview: %v\n", err)
		} else {
			c.result.PreviewFile = path
		}
	}

	return nil
}

// loadReference reads the image that defines the transform for the group:
// the middle slice of the best channel, or its brightest slice.
func (c *Combiner) loadReference() (models.ChannelSliceKey, image.Image, error) {
	key := models.ChannelSliceKey{Channel: c.params.BestChannel, Slice: c.group.MiddleSlice()}

	switch c.params.ReferenceSlice {
	case "", ReferenceMiddle:
	case ReferenceBrightest:
		if _, ok := c.group.Path(key); !ok {
			break
		}
		slices := make([]image.Image, len(c.group.Slices))
		for i, s := range c.group.Slices {
			img, _, err := tiffio.ReadImage(c.group.Files[models.ChannelSliceKey{Channel: key.Channel, Slice: s}])
			if err != nil {
				return key, nil, err
			}
			slices[i] = img
		}
		stack, err := zstack.New(slices)
		if err != nil {
			return key, nil, err
		}
		center := stack.CenterOfStack()
		key.Slice = c.group.Slices[center]
		return key, stack.Slice(center), nil
	default:
		return key, nil, fmt.Errorf("unknown reference slice mode %q", c.params.ReferenceSlice)
	}

	path, ok := c.group.Path(key)
	if !ok {
		return key, nil, fmt.Errorf("%w: %s_%s", ErrMissingReference, key, c.group.Base)
	}
	img, _, err := tiffio.ReadImage(path)
	if err != nil {
		return key, nil, err
	}
	return key, img, nil
}

// writeChannelsInParallel writes every channel's stack, running up to
// NumCores channels at once. Each channel has its own output file.
func (c *Combiner) writeChannelsInParallel() ([]string, error) {
	numCores := c.params.NumCores
	if numCores < 1 {
		numCores = 1
	}

	type channelResult struct {
		idx  int
		path string
		err  error
	}
	resultChan := make(chan channelResult, len(c.group.Channels))
	sem := make(chan struct{}, numCores)

	for i, ch := range c.group.Channels {
		go func(idx, channel int) {
			sem <- struct{}{}
			defer func() { <-sem }()

			path, err := c.writeChannel(channel)
			resultChan <- channelResult{idx: idx, path: path, err: err}
		}(i, ch)
	}

	outputs := make([]string, len(c.group.Channels))
	var firstErr error
	for completed := 1; completed <= len(c.group.Channels); completed++ {
		res := <-resultChan
		if res.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to write channel %d: %w", c.group.Channels[res.idx], res.err)
			}
			continue
		}
		outputs[res.idx] = res.path
		c.logf("Wrote %s (%d/%d channels)\n", res.path, completed, len(c.group.Channels))
	}

	if firstErr != nil {
		return nil, firstErr
	}
	return outputs, nil
}

// writeChannel transforms every slice of one channel in ascending order
// and appends it to the channel's stack.
func (c *Combiner) writeChannel(channel int) (string, error) {
	path := filepath.Join(c.group.OutputDir(), c.group.OutputName(channel))
	w, err := tiffio.CreateStack(path, tiffio.Options{Compression: c.params.Compression})
	if err != nil {
		return "", err
	}

	for _, s := range c.group.Slices {
		key := models.ChannelSliceKey{Channel: channel, Slice: s}
		page, err := c.transformSlice(key)
		if err == nil {
			err = w.Append(page, c.group.Metadata)
		}
		if err != nil {
			w.Close()
			return "", fmt.Errorf("%s: %w", key, err)
		}
	}

	if err := w.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// transformSlice reads one slice and applies the group's transform to it.
func (c *Combiner) transformSlice(key models.ChannelSliceKey) (image.Image, error) {
	img, _, err := tiffio.ReadImage(c.group.Files[key])
	if err != nil {
		return nil, err
	}

	if est := c.result.Estimate; est != nil {
		return est.Apply(img)
	}

	if size := img.Bounds().Size(); size != c.size {
		return nil, fmt.Errorf("%w: image is %dx%d, reference was %dx%d", ErrSizeMismatch,
			size.X, size.Y, c.size.X, c.size.Y)
	}
	return img, nil
}

// AngleFileName is the name of the side file for a scan base name.
func AngleFileName(baseName string) string {
	return "RotationInDegrees_" + baseName + ".txt"
}

// PreviewFileName is the name of the preview for a scan base name.
func PreviewFileName(baseName string) string {
	return "Preview_" + baseName + ".png"
}

// writeAngleFile saves the angle negated, which is the counter-clockwise
// convention the downstream viewer expects.
func (c *Combiner) writeAngleFile(degrees float64) (string, error) {
	path := filepath.Join(c.group.OutputDir(), AngleFileName(c.group.BaseName()))
	text := strconv.FormatFloat(-degrees, 'f', -1, 64)
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return "", err
	}
	return path, nil
}

// writePreview reads the best channel's stack back and saves its
// projection.
func (c *Combiner) writePreview() (string, error) {
	idx := -1
	for i, ch := range c.group.Channels {
		if ch == c.params.BestChannel {
			idx = i
		}
	}
	if idx < 0 {
		return "", fmt.Errorf("%w: channel %d", ErrMissingReference, c.params.BestChannel)
	}

	reader, err := tiffio.OpenStack(c.result.Outputs[idx])
	if err != nil {
		return "", err
	}
	defer reader.Close()

	pages := make([]image.Image, reader.Len())
	for i := range pages {
		if pages[i], err = reader.Page(i); err != nil {
			return "", err
		}
	}
	stack, err := zstack.New(pages)
	if err != nil {
		return "", err
	}

	path := filepath.Join(c.group.OutputDir(), PreviewFileName(c.group.BaseName()))
	if err := visualization.NewViewer(stack).SavePreview(path, c.params.PreviewSize); err != nil {
		return "", err
	}
	return path, nil
}
