package tiffio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strings"

	"golang.org/x/image/tiff"

	"tilescan/internal/models"
)

// ErrEmptyStack is returned by Close when no page was appended.
var ErrEmptyStack = errors.New("stack has no pages")

// ErrTooLarge is returned when a stack outgrows 32-bit file offsets.
var ErrTooLarge = errors.New("stack exceeds 4 GiB")

// Compression selects how page data is stored.
type Compression int

const (
	// Deflate is zlib compression. It is lossless and the default.
	Deflate Compression = iota
	Uncompressed
)

func (c Compression) String() string {
	switch c {
	case Deflate:
		return "deflate"
	case Uncompressed:
		return "none"
	}
	return fmt.Sprintf("Compression(%d)", int(c))
}

// ParseCompression accepts "deflate", "zip", "none" or "uncompressed".
// The empty string means Deflate.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "deflate", "zip", "zlib":
		return Deflate, nil
	case "none", "uncompressed":
		return Uncompressed, nil
	}
	return Deflate, fmt.Errorf("unknown compression %q", s)
}

func (c Compression) options() *tiff.Options {
	if c == Uncompressed {
		return &tiff.Options{Compression: tiff.Uncompressed}
	}
	return &tiff.Options{Compression: tiff.Deflate}
}

// Options control a StackWriter.
type Options struct {
	Compression Compression
}

// encodePage encodes img as a single-page TIFF and returns its strip data
// and IFD entries, with the strip offset and resolution entries removed so
// the caller can place the page and attach meta.
func encodePage(img image.Image, meta models.Metadata, c Compression) ([]byte, []entry, error) {
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, c.options()); err != nil {
		return nil, nil, err
	}

	r := bytes.NewReader(buf.Bytes())
	order, off, err := readHeader(r)
	if err != nil {
		return nil, nil, err
	}
	d, _, err := readIFD(r, order, off)
	if err != nil {
		return nil, nil, err
	}

	// The encoder writes a single strip straight after the header.
	counts, ok := d.find(tStripByteCounts)
	if !ok {
		return nil, nil, FormatError("encoder wrote no strip")
	}
	n := counts.uints(order)
	if len(n) != 1 || 8+int(n[0]) > buf.Len() {
		return nil, nil, FormatError("unexpected strip layout")
	}
	data := buf.Bytes()[8 : 8+n[0]]

	entries := d.without(tStripOffsets, tImageDescription, tXResolution, tYResolution, tResolutionUnit)
	return data, append(entries, metadataEntries(order, meta)...), nil
}

// metadataEntries converts meta to IFD entries. Keys absent from meta are
// absent from the result.
func metadataEntries(order binary.ByteOrder, meta models.Metadata) []entry {
	var entries []entry
	if s, ok := meta.Description(); ok {
		entries = append(entries, asciiEntry(tImageDescription, s))
	}
	for _, key := range []models.MetadataKey{models.XResolution, models.YResolution} {
		if r, ok := meta.Resolution(key); ok {
			entries = append(entries, rationalEntry(order, uint16(key), r))
		}
	}
	if u, ok := meta.Unit(); ok {
		entries = append(entries, shortEntry(order, tResolutionUnit, u))
	}
	return entries
}

// stackEncoder lays pages out as header, data 0, IFD 0, data 1, IFD 1 and
// so on. The IFD of a page is held back until the next page arrives, since
// its next-IFD pointer depends on the size of that page's data.
type stackEncoder struct {
	w       io.Writer
	order   binary.ByteOrder
	off     uint64
	pending []entry
	pages   int
}

func newStackEncoder(w io.Writer) *stackEncoder {
	return &stackEncoder{w: w, order: binary.LittleEndian}
}

func (e *stackEncoder) write(p []byte) error {
	if e.off+uint64(len(p)) > math.MaxUint32 {
		return ErrTooLarge
	}
	if _, err := e.w.Write(p); err != nil {
		return err
	}
	e.off += uint64(len(p))
	return nil
}

// padded returns len(p) rounded up to a word boundary.
func padded(p []byte) uint64 {
	return uint64(len(p) + len(p)%2)
}

func (e *stackEncoder) writePadded(p []byte) error {
	if err := e.write(p); err != nil {
		return err
	}
	if len(p)%2 == 1 {
		return e.write([]byte{0})
	}
	return nil
}

// flush writes the pending IFD pointing at next.
func (e *stackEncoder) flush(next uint64) error {
	return e.write(marshalIFD(e.order, e.pending, uint32(e.off), uint32(next)))
}

func (e *stackEncoder) add(data []byte, entries []entry) error {
	if e.pages == 0 {
		header := make([]byte, 8)
		copy(header, leHeader)
		e.order.PutUint32(header[4:], uint32(8+padded(data)))
		if err := e.write(header); err != nil {
			return err
		}
	} else {
		next := e.off + uint64(ifdSize(e.pending)) + padded(data)
		if next > math.MaxUint32 {
			return ErrTooLarge
		}
		if err := e.flush(next); err != nil {
			return err
		}
	}

	entries = append(entries, longsEntry(e.order, tStripOffsets, []uint32{uint32(e.off)}))
	if err := e.writePadded(data); err != nil {
		return err
	}
	e.pending = entries
	e.pages++
	return nil
}

func (e *stackEncoder) close() error {
	if e.pages == 0 {
		return ErrEmptyStack
	}
	return e.flush(0)
}

// StackWriter writes images as the pages of one TIFF file. Pages are
// written in the order they are appended.
type StackWriter struct {
	path string
	opts Options
	f    *os.File
	bw   *bufio.Writer
	enc  *stackEncoder
}

// CreateStack creates or truncates the file at path.
func CreateStack(path string, opts Options) (*StackWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(f)
	return &StackWriter{
		path: path,
		opts: opts,
		f:    f,
		bw:   bw,
		enc:  newStackEncoder(bw),
	}, nil
}

// Append encodes img as the next page and attaches meta to it.
func (w *StackWriter) Append(img image.Image, meta models.Metadata) error {
	data, entries, err := encodePage(img, meta, w.opts.Compression)
	if err != nil {
		return fmt.Errorf("encoding page %d of %s: %w", w.enc.pages, w.path, err)
	}
	if err := w.enc.add(data, entries); err != nil {
		return fmt.Errorf("writing page %d of %s: %w", w.enc.pages, w.path, err)
	}
	return nil
}

// Pages returns the number of pages appended so far.
func (w *StackWriter) Pages() int {
	return w.enc.pages
}

// Close writes the last IFD and closes the file.
func (w *StackWriter) Close() error {
	err := w.enc.close()
	if err == nil {
		err = w.bw.Flush()
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("closing %s: %w", w.path, err)
	}
	return nil
}
