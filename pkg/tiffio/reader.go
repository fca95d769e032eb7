package tiffio

import (
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"os"

	"golang.org/x/image/tiff"

	"tilescan/internal/models"
)

// ReadMetadata returns the metadata of the first page of a TIFF file.
func ReadMetadata(r io.ReaderAt) (models.Metadata, error) {
	order, off, err := readHeader(r)
	if err != nil {
		return models.Metadata{}, err
	}
	d, _, err := readIFD(r, order, off)
	if err != nil {
		return models.Metadata{}, err
	}
	return d.metadata(order), nil
}

// ReadImage decodes the first page of the TIFF file at path and returns it
// with its metadata.
func ReadImage(path string) (image.Image, models.Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, models.Metadata{}, err
	}
	defer f.Close()

	meta, err := ReadMetadata(f)
	if err != nil {
		return nil, models.Metadata{}, fmt.Errorf("reading metadata of %s: %w", path, err)
	}
	img, err := tiff.Decode(f)
	if err != nil {
		return nil, models.Metadata{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, meta, nil
}

// StackReader gives random access to the pages of a multi-page TIFF file.
type StackReader struct {
	f       *os.File
	size    int64
	order   binary.ByteOrder
	offsets []uint32
	dirs    []directory
}

// OpenStack opens the TIFF file at path and walks its IFD chain.
func OpenStack(path string) (*StackReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	s := &StackReader{f: f, size: info.Size()}
	if err := s.walk(); err != nil {
		f.Close()
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return s, nil
}

func (s *StackReader) walk() error {
	order, off, err := readHeader(s.f)
	if err != nil {
		return err
	}
	s.order = order

	seen := make(map[uint32]bool)
	for off != 0 {
		if seen[off] {
			return FormatError("IFD chain loops")
		}
		if len(s.offsets) == maxPages {
			return FormatError("too many pages")
		}
		seen[off] = true

		d, next, err := readIFD(s.f, order, off)
		if err != nil {
			return err
		}
		s.offsets = append(s.offsets, off)
		s.dirs = append(s.dirs, d)
		off = next
	}

	if len(s.offsets) == 0 {
		return FormatError("no pages")
	}
	return nil
}

// Len returns the number of pages.
func (s *StackReader) Len() int {
	return len(s.offsets)
}

// Metadata returns the metadata of page i.
func (s *StackReader) Metadata(i int) (models.Metadata, error) {
	if i < 0 || i >= len(s.dirs) {
		return models.Metadata{}, fmt.Errorf("page %d out of range [0,%d)", i, len(s.dirs))
	}
	return s.dirs[i].metadata(s.order), nil
}

// Page decodes page i.
func (s *StackReader) Page(i int) (image.Image, error) {
	if i < 0 || i >= len(s.offsets) {
		return nil, fmt.Errorf("page %d out of range [0,%d)", i, len(s.offsets))
	}
	img, err := tiff.Decode(newPageReader(s.f, s.size, s.order, s.offsets[i]))
	if err != nil {
		return nil, fmt.Errorf("decoding page %d: %w", i, err)
	}
	return img, nil
}

// Close releases the underlying file.
func (s *StackReader) Close() error {
	return s.f.Close()
}

// pageReader presents a multi-page file as if its first IFD were the one at
// ifd. The decoder only reads through ReadAt, so patching the header offset
// is enough to select a page.
type pageReader struct {
	*io.SectionReader
	header [8]byte
}

func newPageReader(r io.ReaderAt, size int64, order binary.ByteOrder, ifd uint32) *pageReader {
	p := &pageReader{SectionReader: io.NewSectionReader(r, 0, size)}
	if order == binary.LittleEndian {
		copy(p.header[:4], leHeader)
	} else {
		copy(p.header[:4], beHeader)
	}
	order.PutUint32(p.header[4:], ifd)
	return p
}

func (p *pageReader) ReadAt(b []byte, off int64) (int, error) {
	n, err := p.SectionReader.ReadAt(b, off)
	for i := off; i < int64(len(p.header)) && i-off < int64(n); i++ {
		b[i-off] = p.header[i]
	}
	return n, err
}
