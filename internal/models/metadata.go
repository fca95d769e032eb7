package models

import "fmt"

// MetadataKey names one of the TIFF fields carried from the separated slices
// into the combined stacks. Values equal the TIFF tag numbers.
type MetadataKey uint16

const (
	ImageDescription MetadataKey = 270
	XResolution      MetadataKey = 282
	YResolution      MetadataKey = 283
	ResolutionUnit   MetadataKey = 296
)

// MetadataKeys is the closed set of keys a Metadata may hold.
var MetadataKeys = []MetadataKey{ImageDescription, XResolution, YResolution, ResolutionUnit}

func (k MetadataKey) String() string {
	switch k {
	case ImageDescription:
		return "ImageDescription"
	case XResolution:
		return "XResolution"
	case YResolution:
		return "YResolution"
	case ResolutionUnit:
		return "ResolutionUnit"
	default:
		return fmt.Sprintf("MetadataKey(%d)", uint16(k))
	}
}

// Known reports whether k belongs to the closed key set.
func (k MetadataKey) Known() bool {
	for _, known := range MetadataKeys {
		if k == known {
			return true
		}
	}
	return false
}

// Rational is a TIFF RATIONAL: Num/Den.
type Rational struct {
	Num, Den uint32
}

// Float returns the value of r, or 0 when the denominator is zero.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// Metadata maps keys of the closed set to their values. A key the source
// file did not carry is simply absent. Values are stored by kind:
// ImageDescription as string, X/YResolution as Rational, ResolutionUnit as
// uint16. Use the With* methods to derive modified copies.
type Metadata struct {
	text      map[MetadataKey]string
	rationals map[MetadataKey]Rational
	shorts    map[MetadataKey]uint16
}

// Description returns the ImageDescription string.
func (m Metadata) Description() (string, bool) {
	s, ok := m.text[ImageDescription]
	return s, ok
}

// Resolution returns XResolution or YResolution.
func (m Metadata) Resolution(key MetadataKey) (Rational, bool) {
	r, ok := m.rationals[key]
	return r, ok
}

// Unit returns ResolutionUnit.
func (m Metadata) Unit() (uint16, bool) {
	u, ok := m.shorts[ResolutionUnit]
	return u, ok
}

// Has reports whether key is present.
func (m Metadata) Has(key MetadataKey) bool {
	if _, ok := m.text[key]; ok {
		return true
	}
	if _, ok := m.rationals[key]; ok {
		return true
	}
	_, ok := m.shorts[key]
	return ok
}

// Keys returns the present keys in tag order.
func (m Metadata) Keys() []MetadataKey {
	var keys []MetadataKey
	for _, k := range MetadataKeys {
		if m.Has(k) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Len returns the number of present keys.
func (m Metadata) Len() int {
	return len(m.text) + len(m.rationals) + len(m.shorts)
}

func (m Metadata) clone() Metadata {
	c := Metadata{
		text:      make(map[MetadataKey]string, len(m.text)),
		rationals: make(map[MetadataKey]Rational, len(m.rationals)),
		shorts:    make(map[MetadataKey]uint16, len(m.shorts)),
	}
	for k, v := range m.text {
		c.text[k] = v
	}
	for k, v := range m.rationals {
		c.rationals[k] = v
	}
	for k, v := range m.shorts {
		c.shorts[k] = v
	}
	return c
}

// WithDescription returns a copy of m with ImageDescription set.
func (m Metadata) WithDescription(s string) Metadata {
	c := m.clone()
	c.text[ImageDescription] = s
	return c
}

// WithResolution returns a copy of m with XResolution or YResolution set.
// Other keys are ignored.
func (m Metadata) WithResolution(key MetadataKey, r Rational) Metadata {
	c := m.clone()
	if key == XResolution || key == YResolution {
		c.rationals[key] = r
	}
	return c
}

// WithUnit returns a copy of m with ResolutionUnit set.
func (m Metadata) WithUnit(u uint16) Metadata {
	c := m.clone()
	c.shorts[ResolutionUnit] = u
	return c
}
