package sectable

import "errors"

// Magic bytes at the start of every sector file.
var magic = []byte{'S', 'C', 'T', '1'}

const sectorVersion = 1

const (
	// MinKeyLen is the smallest permitted table key length. Keys of
	// exactly MinKeyLen bytes double as short keys for prefix matching.
	MinKeyLen = 4

	// MaxRecordLen is the largest record payload the 2-byte framing can
	// carry: the total-length field includes its sibling payload-length
	// field, leaving 65533 bytes for the payload itself.
	MaxRecordLen = 1<<16 - 3

	// MaxBlobLen bounds the decompressed size of a single archive entry.
	MaxBlobLen = 4 << 20

	// ArchiveKeyLen is the length of an archive content hash key.
	ArchiveKeyLen = 16
)

// MatchMode selects how Fetch matches stored records against a key.
type MatchMode uint8

const (
	// MatchExact visits records whose full key equals the given key.
	MatchExact MatchMode = iota

	// MatchPrefix visits every record whose first four key bytes equal
	// the given 4-byte key, regardless of the remaining key bytes.
	MatchPrefix
)

// VisitFunc is invoked by Fetch for every matching record. Both slices are
// temporary buffers and must be copied if used beyond the callback. Return
// false to stop the fetch early.
type VisitFunc func(key, payload []byte) bool

// ErrNotFound is returned when a key cannot be found.
var ErrNotFound = errors.New("sectable: not found")

var (
	// ErrInvalidEncoding is returned for malformed hex input.
	ErrInvalidEncoding = errors.New("sectable: invalid hex encoding")

	// ErrInvalidName is returned for invalid database or table names.
	ErrInvalidName = errors.New("sectable: invalid name")

	// ErrInvalidKey is returned when a key has the wrong length for the
	// requested operation.
	ErrInvalidKey = errors.New("sectable: invalid key length")

	// ErrInvalidTable is returned when a table is missing, malformed, or
	// configured with impossible parameters.
	ErrInvalidTable = errors.New("sectable: invalid table")

	// ErrExists is returned when a database or table already exists.
	ErrExists = errors.New("sectable: already exists")

	// ErrIncompatibleTables is returned by merge when the two tables
	// disagree on key or record length configuration.
	ErrIncompatibleTables = errors.New("sectable: incompatible tables")

	// ErrSizeMismatch is returned when a payload disagrees with the
	// table's fixed record length.
	ErrSizeMismatch = errors.New("sectable: payload disagrees with fixed record length")

	// ErrRecordTooLarge is returned when a payload exceeds MaxRecordLen.
	ErrRecordTooLarge = errors.New("sectable: record exceeds maximum node size")

	// ErrLengthMismatch is returned when a collation record length cap
	// disagrees with the table configuration.
	ErrLengthMismatch = errors.New("sectable: max record length disagrees with table configuration")

	// ErrCorruptArchive is returned when an archive entry is damaged or
	// its content no longer hashes to the requested key.
	ErrCorruptArchive = errors.New("sectable: corrupt archive entry")

	// ErrBlobTooLarge is returned when an archive blob exceeds MaxBlobLen.
	ErrBlobTooLarge = errors.New("sectable: archive blob exceeds maximum size")
)

var (
	errNoSector       = errors.New("sectable: no such sector")
	errBadMagic       = errors.New("sectable: bad magic byte sequence")
	errBadCompression = errors.New("sectable: bad compression codec")
	errBadOffset      = errors.New("sectable: offset out of bounds")
)

// Archive blob compression tags.
const (
	blobNoCompression     = 0
	blobSnappyCompression = 1
)
