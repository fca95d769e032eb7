package models

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedName is returned when a file name does not carry a
// c<channel>z<slice>_ token.
var ErrMalformedName = errors.New("malformed channel/slice file name")

// sliceNamePattern matches names like c2z10_scan.tif
var sliceNamePattern = regexp.MustCompile(`^c(\d+)z(\d+)_(.+)$`)

// ChannelSliceKey identifies one image inside a tile-scan group
type ChannelSliceKey struct {
	// Channel is the 1-based imaging channel
	Channel int

	// Slice is the 1-based z-plane
	Slice int
}

// String returns the key in the same form it takes inside a file name.
func (k ChannelSliceKey) String() string {
	return fmt.Sprintf("c%dz%d", k.Channel, k.Slice)
}

// ParseSliceName splits a file name of the form c<channel>z<slice>_<base>
// into its key and the shared base (which keeps its extension).
func ParseSliceName(name string) (ChannelSliceKey, string, error) {
	m := sliceNamePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return ChannelSliceKey{}, "", fmt.Errorf("%w: %q", ErrMalformedName, name)
	}

	channel, err := strconv.Atoi(m[1])
	if err != nil {
		return ChannelSliceKey{}, "", fmt.Errorf("%w: %q: channel: %v", ErrMalformedName, name, err)
	}
	slice, err := strconv.Atoi(m[2])
	if err != nil {
		return ChannelSliceKey{}, "", fmt.Errorf("%w: %q: slice: %v", ErrMalformedName, name, err)
	}
	if channel < 1 || slice < 1 {
		return ChannelSliceKey{}, "", fmt.Errorf("%w: %q: channel and slice must be positive", ErrMalformedName, name)
	}

	return ChannelSliceKey{Channel: channel, Slice: slice}, m[3], nil
}

// Group is one tile scan: every channel/slice image sharing a base name
// inside a directory.
type Group struct {
	// Dir is the directory holding the separated slices
	Dir string

	// Base is the shared suffix after the token, extension included (scan.tif)
	Base string

	// Channels and Slices are the distinct values found, ascending
	Channels []int
	Slices   []int

	// Files maps every key of the channel x slice cross product to its path
	Files map[ChannelSliceKey]string

	// Metadata is read once from the lowest channel and slice and carried
	// into every page written for it
	Metadata Metadata
}

// Path returns the file backing key.
func (g *Group) Path(key ChannelSliceKey) (string, bool) {
	p, ok := g.Files[key]
	return p, ok
}

// MaxSlice returns the largest slice number in the group.
func (g *Group) MaxSlice() int {
	if len(g.Slices) == 0 {
		return 0
	}
	return g.Slices[len(g.Slices)-1]
}

// MiddleSlice returns round(maxSlice/2), never less than 1.
func (g *Group) MiddleSlice() int {
	mid := int(math.Round(float64(g.MaxSlice()) / 2))
	if mid < 1 {
		mid = 1
	}
	return mid
}

// Ext returns the extension of the shared base, dot included.
func (g *Group) Ext() string {
	return filepath.Ext(g.Base)
}

// BaseName returns the shared base without its extension.
func (g *Group) BaseName() string {
	return strings.TrimSuffix(g.Base, g.Ext())
}

// OutputName is the file name of the combined stack for a channel.
func (g *Group) OutputName(channel int) string {
	return fmt.Sprintf("c%d_%s", channel, g.Base)
}

// OutputDir is where combined stacks and side files are written: the parent
// of the directory holding the separated slices.
func (g *Group) OutputDir() string {
	return filepath.Dir(filepath.Clean(g.Dir))
}

// Size returns the number of images in the group.
func (g *Group) Size() int {
	return len(g.Channels) * len(g.Slices)
}
