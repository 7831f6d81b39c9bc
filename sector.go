package sectable

import (
	"bytes"
	"fmt"
	"os"
)

// Sector file layout:
//
//	+------------+---------------+-----------------------+
//	| magic (4)  | version (4)   | index head offset (8) |
//	+------------+---------------+-----------------------+
//	| node arena: index nodes and record nodes, appended |
//	+----------------------------------------------------+
//
// Index node (one per 4-byte key prefix present in the sector):
//
//	+----------+----------+----------+-----------------+
//	| next (8) | head (8) | tail (8) | key bytes 1..3  |
//	+----------+----------+----------+-----------------+
//
// Record node:
//
//	+----------+----------------------+-----------+----------+---------+
//	| next (8) | key bytes 4..keyLen  | total (2) | dlen (2) | payload |
//	+----------+----------------------+-----------+----------+---------+
const (
	sectorHeaderLen = 16
	indexNodeLen    = 27
)

type sectorMode int

const (
	sectorRead   sectorMode = iota // read-only, absent sectors report errNoSector
	sectorWrite                    // read-write, creates the sector when absent
	sectorUpdate                   // read-write, absent sectors report errNoSector
)

// chain captures one index entry: the head and tail offsets of the record
// chain stored for a 4-byte key prefix. A zero head marks an unlinked
// chain whose record bytes remain orphaned until the next collation.
type chain struct {
	off    int64 // offset of the index node
	head   int64 // first record node, 0 when unlinked or empty
	tail   int64 // last record node
	prefix [3]byte
}

// sector is an open handle on one sector file. Handles are exclusively
// owned by the operation that opened them and must be closed on every exit
// path before the owning function returns.
type sector struct {
	t    *Table
	f    *os.File
	idx  byte
	size int64

	chains map[uint32]*chain
	order  []uint32 // prefixes in index chain (creation) order
	last   int64    // offset of the last index node, 0 when the index is empty
}

func (t *Table) openSector(idx byte, mode sectorMode) (*sector, error) {
	flags := os.O_RDWR
	switch mode {
	case sectorRead:
		flags = os.O_RDONLY
	case sectorWrite:
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(t.sectorPath(idx), flags, 0644)
	if err != nil {
		if os.IsNotExist(err) && mode != sectorWrite {
			return nil, errNoSector
		}
		return nil, fmt.Errorf("sectable: open sector: %w", err)
	}
	return t.newSector(f, idx, mode != sectorRead)
}

// openStaging opens a fresh staging sector, truncating any stale leftover
// from an interrupted collation.
func (t *Table) openStaging(idx byte) (*sector, error) {
	f, err := os.OpenFile(t.stagingPath(idx), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("sectable: open staging sector: %w", err)
	}
	return t.newSector(f, idx, true)
}

func (t *Table) newSector(f *os.File, idx byte, writable bool) (*sector, error) {
	s := &sector{t: t, f: f, idx: idx, chains: make(map[uint32]*chain)}
	if err := s.init(writable); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *sector) init(writable bool) error {
	st, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("sectable: stat sector: %w", err)
	}
	s.size = st.Size()

	if s.size == 0 {
		if !writable {
			return nil
		}
		hdr := make([]byte, sectorHeaderLen)
		copy(hdr, magic)
		putU32(hdr[4:], sectorVersion)
		if _, err := s.f.WriteAt(hdr, 0); err != nil {
			return fmt.Errorf("sectable: write sector header: %w", err)
		}
		s.size = sectorHeaderLen
		return nil
	}

	if s.size < sectorHeaderLen {
		return errBadMagic
	}
	hdr := make([]byte, sectorHeaderLen)
	if _, err := s.f.ReadAt(hdr, 0); err != nil {
		return fmt.Errorf("sectable: read sector header: %w", err)
	}
	if !bytes.Equal(hdr[:4], magic) || getU32(hdr[4:]) != sectorVersion {
		return errBadMagic
	}
	return s.loadIndex(int64(getU64(hdr[8:])))
}

// loadIndex walks the on-disk index chain. Nodes are appended over time,
// so offsets must advance strictly forward; anything else is corruption.
func (s *sector) loadIndex(off int64) error {
	buf := make([]byte, indexNodeLen)
	for off != 0 {
		if off < sectorHeaderLen || off+indexNodeLen > s.size {
			return errBadOffset
		}
		if _, err := s.f.ReadAt(buf, off); err != nil {
			return fmt.Errorf("sectable: read index node: %w", err)
		}

		c := &chain{
			off:  off,
			head: int64(getU64(buf[8:])),
			tail: int64(getU64(buf[16:])),
		}
		copy(c.prefix[:], buf[24:])
		p := prefixKey(c.prefix[:])
		s.chains[p] = c
		s.order = append(s.order, p)
		s.last = off

		next := int64(getU64(buf))
		if next != 0 && next <= off {
			return errBadOffset
		}
		off = next
	}
	return nil
}

func (s *sector) close() error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("sectable: close sector: %w", err)
	}
	return nil
}

// append writes a new length-prefixed record node at the end of the arena
// and links it into the chain for key, creating the chain when absent.
func (s *sector) append(key, payload []byte) error {
	rest := key[4:s.t.KeyLen]
	buf := make([]byte, 8+len(rest)+4+len(payload))
	copy(buf[8:], rest)
	n := 8 + len(rest)
	putU16(buf[n:], uint16(len(payload)+2))
	putU16(buf[n+2:], uint16(len(payload)))
	copy(buf[n+4:], payload)

	off := s.size
	if _, err := s.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("sectable: append record: %w", err)
	}
	s.size += int64(len(buf))

	c := s.chains[prefixKey(key[1:4])]
	switch {
	case c == nil:
		return s.appendIndexNode(key[1:4], off)
	case c.head == 0:
		// relink a previously unlinked chain
		if err := s.patchChain(c, off, off); err != nil {
			return err
		}
		c.head, c.tail = off, off
	default:
		if err := s.writeOffset(c.tail, off); err != nil {
			return err
		}
		if err := s.writeOffset(c.off+16, off); err != nil {
			return err
		}
		c.tail = off
	}
	return nil
}

func (s *sector) appendIndexNode(prefix []byte, rec int64) error {
	buf := make([]byte, indexNodeLen)
	putU64(buf[8:], uint64(rec))
	putU64(buf[16:], uint64(rec))
	copy(buf[24:], prefix)

	off := s.size
	if _, err := s.f.WriteAt(buf, off); err != nil {
		return fmt.Errorf("sectable: append index node: %w", err)
	}
	s.size += indexNodeLen

	// link from the previous index node, or from the header for the first
	at := int64(8)
	if s.last != 0 {
		at = s.last
	}
	if err := s.writeOffset(at, off); err != nil {
		return err
	}
	s.last = off

	c := &chain{off: off, head: rec, tail: rec}
	copy(c.prefix[:], prefix)
	p := prefixKey(prefix)
	s.chains[p] = c
	s.order = append(s.order, p)
	return nil
}

func (s *sector) patchChain(c *chain, head, tail int64) error {
	buf := make([]byte, 16)
	putU64(buf, uint64(head))
	putU64(buf[8:], uint64(tail))
	if _, err := s.f.WriteAt(buf, c.off+8); err != nil {
		return fmt.Errorf("sectable: update index node: %w", err)
	}
	return nil
}

func (s *sector) writeOffset(at, off int64) error {
	buf := make([]byte, 8)
	putU64(buf, uint64(off))
	if _, err := s.f.WriteAt(buf, at); err != nil {
		return fmt.Errorf("sectable: link node: %w", err)
	}
	return nil
}

// fetch visits records for key in chain (append) order. With MatchPrefix
// the whole chain is visited; with MatchExact only records whose full key
// equals the given key. The count of visited records is returned.
func (s *sector) fetch(key []byte, mode MatchMode, visit VisitFunc) (int, error) {
	c := s.chains[prefixKey(key[1:4])]
	if c == nil || c.head == 0 {
		return 0, nil
	}

	n := 0
	err := s.fetchChain(c, func(k, payload []byte) bool {
		if mode == MatchExact && !bytes.Equal(k, key) {
			return true
		}
		n++
		return visit(k, payload)
	})
	return n, err
}

// fetchChain walks one record chain in append order, invoking visit for
// every record. Both callback arguments are scratch buffers, reused across
// iterations. Walking stops early when visit returns false.
func (s *sector) fetchChain(c *chain, visit VisitFunc) error {
	restLen := s.t.KeyLen - 4
	hdr := make([]byte, 8+restLen+4)
	full := make([]byte, s.t.KeyLen)
	full[0] = s.idx
	copy(full[1:4], c.prefix[:])

	for off := c.head; off != 0; {
		if off < sectorHeaderLen || off+int64(len(hdr)) > s.size {
			return errBadOffset
		}
		if _, err := s.f.ReadAt(hdr, off); err != nil {
			return fmt.Errorf("sectable: read record: %w", err)
		}

		total := int(getU16(hdr[8+restLen:]))
		dlen := int(getU16(hdr[8+restLen+2:]))
		if total < dlen+2 || off+int64(len(hdr)+dlen) > s.size {
			return errBadOffset
		}

		payload := make([]byte, dlen)
		if _, err := s.f.ReadAt(payload, off+int64(len(hdr))); err != nil {
			return fmt.Errorf("sectable: read record: %w", err)
		}
		copy(full[4:], hdr[8:8+restLen])
		if !visit(full, payload) {
			return nil
		}

		next := int64(getU64(hdr))
		if next != 0 && next <= off {
			return errBadOffset
		}
		off = next
	}
	return nil
}

// unlink detaches the chain for a 4-byte key from the sector index with a
// single in-place write. The record bytes stay behind; a later collation
// reclaims the space.
func (s *sector) unlink(key []byte) (bool, error) {
	c := s.chains[prefixKey(key[1:4])]
	if c == nil || c.head == 0 {
		return false, nil
	}
	if err := s.patchChain(c, 0, 0); err != nil {
		return false, err
	}
	c.head, c.tail = 0, 0
	return true, nil
}

// forEachSector visits all 256 possible sectors in order, skipping absent
// files without error.
func (t *Table) forEachSector(fn func(idx byte, s *sector) error) error {
	for i := 0; i < 256; i++ {
		s, err := t.openSector(byte(i), sectorRead)
		if err == errNoSector {
			continue
		} else if err != nil {
			return err
		}

		err = fn(byte(i), s)
		if cerr := s.close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}
