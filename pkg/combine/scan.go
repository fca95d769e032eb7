package combine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"tilescan/internal/models"
	"tilescan/pkg/skew"
	"tilescan/pkg/tiffio"
)

var (
	// ErrNoImages is returned for a directory without any slice files.
	ErrNoImages = errors.New("no channel/slice images found")

	// ErrMixedBase is returned when files in one directory name different
	// scans.
	ErrMixedBase = errors.New("files belong to more than one scan")

	// ErrDuplicateSlice is returned when two files parse to the same
	// channel and slice, e.g. c1z1_scan.tif and c01z1_scan.tif.
	ErrDuplicateSlice = errors.New("channel/slice given by more than one file")

	// ErrMissingSlice is returned when the channel x slice cross product has
	// a hole.
	ErrMissingSlice = errors.New("channel/slice image missing")

	// ErrMissingReference is returned when the reference channel is not part
	// of the group.
	ErrMissingReference = errors.New("reference image missing")

	// ErrSizeMismatch is returned when images of a group differ in size.
	ErrSizeMismatch = skew.ErrSizeMismatch
)

// ScanDir reads the names of the separated slices in dir and validates
// that they form one complete group. Hidden files and subdirectories are
// skipped; any other file must be named c<channel>z<slice>_<base>. The
// group's metadata is read from its lowest channel and slice.
func ScanDir(dir string) (*models.Group, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	group := &models.Group{
		Dir:   dir,
		Files: make(map[models.ChannelSliceKey]string),
	}
	channels := make(map[int]bool)
	slices := make(map[int]bool)

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		key, base, err := models.ParseSliceName(name)
		if err != nil {
			return nil, err
		}
		if group.Base == "" {
			group.Base = base
		} else if base != group.Base {
			return nil, fmt.Errorf("%w: %q and %q", ErrMixedBase, group.Base, base)
		}
		if prev, ok := group.Files[key]; ok {
			return nil, fmt.Errorf("%w: %s in %s and %s", ErrDuplicateSlice, key,
				filepath.Base(prev), name)
		}

		group.Files[key] = filepath.Join(dir, name)
		channels[key.Channel] = true
		slices[key.Slice] = true
	}

	if len(group.Files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoImages, dir)
	}

	group.Channels = sortedKeys(channels)
	group.Slices = sortedKeys(slices)

	var missing []string
	for _, c := range group.Channels {
		for _, s := range group.Slices {
			key := models.ChannelSliceKey{Channel: c, Slice: s}
			if _, ok := group.Files[key]; !ok {
				missing = append(missing, key.String()+"_"+group.Base)
			}
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingSlice, strings.Join(missing, ", "))
	}

	first := group.Files[models.ChannelSliceKey{Channel: group.Channels[0], Slice: group.Slices[0]}]
	meta, err := readMetadata(first)
	if err != nil {
		return nil, err
	}
	group.Metadata = meta

	return group, nil
}

func readMetadata(path string) (models.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Metadata{}, err
	}
	defer f.Close()

	meta, err := tiffio.ReadMetadata(f)
	if err != nil {
		return models.Metadata{}, fmt.Errorf("reading metadata of %s: %w", path, err)
	}
	return meta, nil
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
