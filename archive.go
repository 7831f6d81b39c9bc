package sectable

import (
	"bufio"
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
)

// Archive is a content-addressable store of compressed blobs. Entries are
// keyed by the MD5 digest of their uncompressed content: the first two key
// bytes select a block file, the remaining fourteen are stored with each
// entry.
//
//	Block file layout:
//
//	+--------------------+-----------------+----------------------+-------+
//	| key remainder (14) | length (4, LE)  | blob + tag (1 byte)  |  ...  |
//	+--------------------+-----------------+----------------------+-------+
//
// The tag byte trails each stored blob and records whether it is snappy
// compressed or plain.
type Archive struct {
	path string
}

const (
	archiveExt      = ".arc"
	archiveRemLen   = ArchiveKeyLen - 2
	archiveEntryHdr = archiveRemLen + 4
)

// CreateArchive creates an empty archive table, along with its parent
// database directory when absent.
func (s *Store) CreateArchive(db, name string) (*Archive, error) {
	if !validName(db) || !validName(name) {
		return nil, ErrInvalidName
	}
	path := filepath.Join(s.root, db, name)
	if dirExists(path) {
		return nil, ErrExists
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("sectable: create archive: %w", err)
	}
	return &Archive{path: path}, nil
}

// OpenArchive returns a handle on an existing archive table.
func (s *Store) OpenArchive(db, name string) (*Archive, error) {
	if !validName(db) || !validName(name) {
		return nil, ErrInvalidName
	}
	path := filepath.Join(s.root, db, name)
	if !dirExists(path) {
		return nil, ErrInvalidTable
	}
	return &Archive{path: path}, nil
}

// Path returns the archive table directory.
func (a *Archive) Path() string { return a.path }

// Put stores blob and returns its content key. Blobs are compressed with
// snappy unless compression does not pay.
func (a *Archive) Put(blob []byte) ([]byte, error) {
	if len(blob) > MaxBlobLen {
		return nil, ErrBlobTooLarge
	}
	sum := md5.Sum(blob)

	stored := blob
	tag := byte(blobNoCompression)
	if snp := snappy.Encode(nil, blob); len(snp) < len(blob)-len(blob)/4 {
		stored, tag = snp, blobSnappyCompression
	}

	buf := make([]byte, archiveEntryHdr+len(stored)+1)
	copy(buf, sum[2:])
	putU32(buf[archiveRemLen:], uint32(len(stored)+1))
	copy(buf[archiveEntryHdr:], stored)
	buf[len(buf)-1] = tag

	f, err := os.OpenFile(a.blockPath(sum[:2]), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("sectable: open archive block: %w", err)
	}
	_, err = f.Write(buf)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("sectable: write archive entry: %w", err)
	}

	key := make([]byte, ArchiveKeyLen)
	copy(key, sum[:])
	return key, nil
}

// Fetch locates the entry for key, decompresses it, and verifies that the
// decompressed content still hashes to the requested key. A hash mismatch
// is reported as ErrCorruptArchive, distinct from ErrNotFound, so callers
// can tell absent from damaged.
func (a *Archive) Fetch(key []byte) ([]byte, error) {
	if len(key) != ArchiveKeyLen {
		return nil, ErrInvalidKey
	}

	f, err := os.Open(a.blockPath(key[:2]))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sectable: open archive block: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	hdr := make([]byte, archiveEntryHdr)
	maxStored := snappy.MaxEncodedLen(MaxBlobLen) + 1

	for {
		if _, err := io.ReadFull(r, hdr); err == io.EOF {
			return nil, ErrNotFound
		} else if err != nil {
			return nil, ErrCorruptArchive
		}

		n := int(getU32(hdr[archiveRemLen:]))
		if n < 1 || n > maxStored {
			return nil, ErrCorruptArchive
		}
		if !bytes.Equal(hdr[:archiveRemLen], key[2:]) {
			if _, err := r.Discard(n); err != nil {
				return nil, ErrCorruptArchive
			}
			continue
		}

		stored := make([]byte, n)
		if _, err := io.ReadFull(r, stored); err != nil {
			return nil, ErrCorruptArchive
		}
		return decodeEntry(key, stored)
	}
}

func decodeEntry(key, stored []byte) ([]byte, error) {
	tag := stored[len(stored)-1]
	stored = stored[:len(stored)-1]

	var blob []byte
	switch tag {
	case blobNoCompression:
		blob = stored
	case blobSnappyCompression:
		sz, err := snappy.DecodedLen(stored)
		if err != nil {
			return nil, ErrCorruptArchive
		}
		if sz > MaxBlobLen {
			return nil, ErrBlobTooLarge
		}
		if blob, err = snappy.Decode(make([]byte, sz), stored); err != nil {
			return nil, ErrCorruptArchive
		}
	default:
		return nil, errBadCompression
	}

	if sum := md5.Sum(blob); !bytes.Equal(sum[:], key) {
		return nil, ErrCorruptArchive
	}
	return blob, nil
}

func (a *Archive) blockPath(id []byte) string {
	return filepath.Join(a.path, BinToHex(id)+archiveExt)
}
