package tiffio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"

	"tilescan/internal/models"
)

// FormatError reports that the input is not a valid TIFF file.
type FormatError string

func (e FormatError) Error() string {
	return "tiffio: invalid format: " + string(e)
}

// entry is one IFD entry with its data resolved to raw bytes in the byte
// order of the file it came from or is going to.
type entry struct {
	tag      uint16
	datatype uint16
	count    uint32
	data     []byte
}

// uints decodes BYTE, SHORT and LONG entries.
func (e entry) uints(order binary.ByteOrder) []uint32 {
	var u []uint32
	switch e.datatype {
	case dtByte:
		for _, b := range e.data {
			u = append(u, uint32(b))
		}
	case dtShort:
		for i := 0; i+2 <= len(e.data); i += 2 {
			u = append(u, uint32(order.Uint16(e.data[i:])))
		}
	case dtLong:
		for i := 0; i+4 <= len(e.data); i += 4 {
			u = append(u, order.Uint32(e.data[i:]))
		}
	}
	return u
}

// ascii decodes an ASCII entry, dropping the NUL terminator.
func (e entry) ascii() string {
	s := e.data
	for len(s) > 0 && s[len(s)-1] == 0 {
		s = s[:len(s)-1]
	}
	return string(s)
}

func asciiEntry(tag uint16, s string) entry {
	data := append([]byte(s), 0)
	return entry{tag: tag, datatype: dtASCII, count: uint32(len(data)), data: data}
}

func shortEntry(order binary.ByteOrder, tag uint16, v uint16) entry {
	data := make([]byte, 2)
	order.PutUint16(data, v)
	return entry{tag: tag, datatype: dtShort, count: 1, data: data}
}

func longsEntry(order binary.ByteOrder, tag uint16, vs []uint32) entry {
	data := make([]byte, 4*len(vs))
	for i, v := range vs {
		order.PutUint32(data[4*i:], v)
	}
	return entry{tag: tag, datatype: dtLong, count: uint32(len(vs)), data: data}
}

func rationalEntry(order binary.ByteOrder, tag uint16, r models.Rational) entry {
	data := make([]byte, 8)
	order.PutUint32(data[0:4], r.Num)
	order.PutUint32(data[4:8], r.Den)
	return entry{tag: tag, datatype: dtRational, count: 1, data: data}
}

// directory is the parsed content of one IFD.
type directory struct {
	entries []entry
}

func (d directory) find(tag uint16) (entry, bool) {
	for _, e := range d.entries {
		if e.tag == tag {
			return e, true
		}
	}
	return entry{}, false
}

// without returns the entries whose tag is not listed.
func (d directory) without(tags ...uint16) []entry {
	var out []entry
next:
	for _, e := range d.entries {
		for _, t := range tags {
			if e.tag == t {
				continue next
			}
		}
		out = append(out, e)
	}
	return out
}

// metadata extracts the closed metadata key set from the directory.
func (d directory) metadata(order binary.ByteOrder) models.Metadata {
	var m models.Metadata
	if e, ok := d.find(tImageDescription); ok && e.datatype == dtASCII {
		m = m.WithDescription(e.ascii())
	}
	for _, key := range []models.MetadataKey{models.XResolution, models.YResolution} {
		if e, ok := d.find(uint16(key)); ok && e.datatype == dtRational && len(e.data) >= 8 {
			m = m.WithResolution(key, models.Rational{
				Num: order.Uint32(e.data[0:4]),
				Den: order.Uint32(e.data[4:8]),
			})
		}
	}
	if e, ok := d.find(tResolutionUnit); ok {
		if u := e.uints(order); len(u) > 0 {
			m = m.WithUnit(uint16(u[0]))
		}
	}
	return m
}

// readHeader returns the byte order and first IFD offset of a TIFF file.
func readHeader(r io.ReaderAt) (binary.ByteOrder, uint32, error) {
	p := make([]byte, 8)
	if _, err := r.ReadAt(p, 0); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, 0, err
	}
	var order binary.ByteOrder
	switch string(p[0:4]) {
	case leHeader:
		order = binary.LittleEndian
	case beHeader:
		order = binary.BigEndian
	default:
		return nil, 0, FormatError("malformed header")
	}
	return order, order.Uint32(p[4:8]), nil
}

// readIFD parses the IFD at off and returns it with the offset of the next
// one.
func readIFD(r io.ReaderAt, order binary.ByteOrder, off uint32) (directory, uint32, error) {
	p := make([]byte, 2)
	if _, err := r.ReadAt(p, int64(off)); err != nil {
		return directory{}, 0, fmt.Errorf("reading IFD count at %d: %w", off, err)
	}
	n := int(order.Uint16(p))

	p = make([]byte, ifdLen*n+4)
	if _, err := r.ReadAt(p, int64(off)+2); err != nil {
		return directory{}, 0, fmt.Errorf("reading IFD at %d: %w", off, err)
	}

	var d directory
	for i := 0; i < n; i++ {
		raw := p[ifdLen*i : ifdLen*(i+1)]
		e := entry{
			tag:      order.Uint16(raw[0:2]),
			datatype: order.Uint16(raw[2:4]),
			count:    order.Uint32(raw[4:8]),
		}
		if e.datatype == 0 || int(e.datatype) >= len(lengths) {
			// Unknown types cannot be sized, so they cannot be copied.
			continue
		}
		size := uint64(e.count) * uint64(lengths[e.datatype])
		switch {
		case size <= 4:
			e.data = append([]byte(nil), raw[8:8+size]...)
		case size > maxEntryData:
			return directory{}, 0, FormatError(fmt.Sprintf("tag %d data too large", e.tag))
		default:
			e.data = make([]byte, size)
			if _, err := r.ReadAt(e.data, int64(order.Uint32(raw[8:12]))); err != nil {
				return directory{}, 0, fmt.Errorf("reading tag %d data: %w", e.tag, err)
			}
		}
		d.entries = append(d.entries, e)
	}

	return d, order.Uint32(p[ifdLen*n:]), nil
}

// ifdSize returns the number of bytes marshalIFD produces for entries.
func ifdSize(entries []entry) uint32 {
	size := uint32(2 + ifdLen*len(entries) + 4)
	for _, e := range entries {
		if len(e.data) > 4 {
			size += uint32(len(e.data) + len(e.data)%2)
		}
	}
	return size
}

// marshalIFD lays out entries as an IFD located at off, followed by the
// out-of-line data of entries longer than four bytes. Entries are sorted
// by tag as the format requires.
func marshalIFD(order binary.ByteOrder, entries []entry, off, next uint32) []byte {
	sorted := append([]entry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].tag < sorted[j].tag })

	head := make([]byte, 2+ifdLen*len(sorted)+4)
	var parea []byte
	pstart := off + uint32(len(head))

	order.PutUint16(head[0:2], uint16(len(sorted)))
	for i, e := range sorted {
		raw := head[2+ifdLen*i : 2+ifdLen*(i+1)]
		order.PutUint16(raw[0:2], e.tag)
		order.PutUint16(raw[2:4], e.datatype)
		order.PutUint32(raw[4:8], e.count)
		if len(e.data) <= 4 {
			copy(raw[8:12], e.data)
			continue
		}
		order.PutUint32(raw[8:12], pstart+uint32(len(parea)))
		parea = append(parea, e.data...)
		if len(e.data)%2 == 1 {
			parea = append(parea, 0)
		}
	}
	order.PutUint32(head[len(head)-4:], next)

	return append(head, parea...)
}
