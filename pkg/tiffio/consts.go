package tiffio

// A TIFF file holds one Image File Directory (IFD) per page. Each IFD is a
// list of 12-byte entries (tag, data type, count, value or offset) followed
// by the offset of the next IFD, zero on the last page.

const (
	leHeader = "II\x2A\x00" // Header for little-endian files.
	beHeader = "MM\x00\x2A" // Header for big-endian files.

	ifdLen = 12 // Length of an IFD entry in bytes.

	// maxEntryData bounds the out-of-line data of a single entry.
	maxEntryData = 1 << 28
	// maxPages bounds the IFD chain, guarding against offset loops.
	maxPages = 1 << 16
)

// Data types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

// The length of one instance of each data type in bytes.
var lengths = [...]uint32{0, 1, 1, 2, 4, 8, 1, 1, 2, 4, 8, 4, 8}

// Tags.
const (
	tImageWidth       = 256
	tImageLength      = 257
	tBitsPerSample    = 258
	tImageDescription = 270
	tStripOffsets     = 273
	tStripByteCounts  = 279
	tXResolution      = 282
	tYResolution      = 283
	tResolutionUnit   = 296
)

// Values for the ResolutionUnit tag.
const (
	ResolutionNone       = 1
	ResolutionInch       = 2
	ResolutionCentimeter = 3
)
