package sectable

import (
	"fmt"
	"io"
)

// Dump writes every record of the table to w, one line per record: the key
// in hex, the first hexBytes payload bytes in hex, and the remaining
// payload verbatim. A sector of -1 dumps all sectors; 0..255 restricts the
// dump to one sector. Dump never modifies the table.
func (t *Table) Dump(w io.Writer, hexBytes int, sec int) error {
	if sec >= 0 && sec < 256 {
		s, err := t.openSector(byte(sec), sectorRead)
		if err == errNoSector {
			return nil
		} else if err != nil {
			return err
		}

		err = dumpSector(w, s, hexBytes)
		if cerr := s.close(); err == nil {
			err = cerr
		}
		return err
	}
	return t.forEachSector(func(idx byte, s *sector) error {
		return dumpSector(w, s, hexBytes)
	})
}

func dumpSector(w io.Writer, s *sector, hexBytes int) error {
	for _, p := range s.order {
		c := s.chains[p]
		if c == nil || c.head == 0 {
			continue
		}

		var werr error
		err := s.fetchChain(c, func(key, payload []byte) bool {
			werr = dumpRecord(w, key, payload, hexBytes)
			return werr == nil
		})
		if werr != nil {
			return werr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func dumpRecord(w io.Writer, key, payload []byte, hexBytes int) error {
	if hexBytes > len(payload) {
		hexBytes = len(payload)
	}

	var err error
	if hexBytes > 0 {
		_, err = fmt.Fprintf(w, "%s %s %s\n", BinToHex(key), BinToHex(payload[:hexBytes]), payload[hexBytes:])
	} else {
		_, err = fmt.Fprintf(w, "%s %s\n", BinToHex(key), payload)
	}
	if err != nil {
		return fmt.Errorf("sectable: dump record: %w", err)
	}
	return nil
}

// DumpKeys writes the unique list of full keys present in the table as
// concatenated binary, in sector order. DumpKeys never modifies the table.
func (t *Table) DumpKeys(w io.Writer) error {
	return t.forEachSector(func(idx byte, s *sector) error {
		for _, p := range s.order {
			c := s.chains[p]
			if c == nil || c.head == 0 {
				continue
			}

			seen := make(map[string]bool)
			var werr error
			err := s.fetchChain(c, func(key, payload []byte) bool {
				k := string(key)
				if seen[k] {
					return true
				}
				seen[k] = true
				_, werr = w.Write([]byte(k))
				return werr == nil
			})
			if werr != nil {
				return fmt.Errorf("sectable: dump keys: %w", werr)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}
