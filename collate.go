package sectable

import (
	"bytes"
	"fmt"
	"os"
	"sort"
)

// testHookPreSwap, when set, runs after an in-place collation finishes
// building its staging sectors and before they replace the originals.
var testHookPreSwap func()

// Collate rewrites the table sector by sector, removing exact-duplicate
// records and records whose payload exceeds max bytes. The rewrite is
// built into staging sectors and only replaces the originals once every
// sector succeeded, so a failed collation leaves the table untouched and
// can safely be re-run.
func (t *Table) Collate(max int) error {
	return t.collate(t, max, nil, false)
}

// Delete removes all records for the given keys while collating the table
// with max as the record length cap. Every key must have the table's key
// length and share the same first byte; the batch is a sector-local pass,
// which makes the shared first byte a documented caller contract.
func (t *Table) Delete(keys [][]byte, max int) error {
	if len(keys) == 0 {
		return ErrInvalidKey
	}
	sorted := make([][]byte, len(keys))
	for i, k := range keys {
		if len(k) != t.KeyLen || k[0] != keys[0][0] {
			return ErrInvalidKey
		}
		sorted[i] = k
	}
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i], sorted[j]) < 0 })
	return t.collate(t, max, sorted, false)
}

// MergeInto copies every surviving record of t into dst and erases t when
// done. Both tables must agree on key and record length configuration and
// must be distinct; a table cannot be merged into itself.
func (t *Table) MergeInto(dst *Table, max int) error {
	if t.path == dst.path {
		return ErrIncompatibleTables
	}
	if err := dst.readCfg(); err != nil {
		return err
	}
	if t.KeyLen != dst.KeyLen || t.RecLen != dst.RecLen {
		return ErrIncompatibleTables
	}
	return t.collate(dst, max, nil, true)
}

// collate is the single engine behind Collate, Delete and MergeInto: copy
// every surviving record from t into dst, sector by sector, list by list.
// The variants differ only in which records survive and whether dst starts
// empty (in-place staging) or pre-populated (merge).
func (t *Table) collate(dst *Table, max int, exclude [][]byte, eraseSource bool) error {
	if err := t.readCfg(); err != nil {
		return err
	}
	if max < t.KeyLen || max > MaxRecordLen {
		return ErrLengthMismatch
	}
	if t.RecLen != 0 && max != t.RecLen {
		return ErrLengthMismatch
	}

	lk, err := t.lock()
	if err != nil {
		return err
	}
	defer t.unlock(lk)

	inPlace := t.path == dst.path
	if !inPlace {
		dlk, err := dst.lock()
		if err != nil {
			return err
		}
		defer dst.unlock(dlk)
	} else {
		t.discardStaging() // clear leftovers of an interrupted run
	}

	for i := 0; i < 256; i++ {
		if err := t.collateSector(byte(i), dst, max, exclude, inPlace); err != nil {
			t.discardStaging()
			return err
		}
	}

	if inPlace {
		if testHookPreSwap != nil {
			testHookPreSwap()
		}
		if err := t.swapStaging(); err != nil {
			return err
		}
	}
	if eraseSource {
		if err := os.RemoveAll(t.path); err != nil {
			return fmt.Errorf("sectable: erase source table: %w", err)
		}
	}
	return nil
}

func (t *Table) collateSector(idx byte, dst *Table, max int, exclude [][]byte, inPlace bool) error {
	src, err := t.openSector(idx, sectorRead)
	if err == errNoSector {
		return nil
	} else if err != nil {
		return err
	}
	defer src.close()

	var out *sector
	if inPlace {
		out, err = t.openStaging(idx)
	} else {
		out, err = dst.openSector(idx, sectorWrite)
	}
	if err != nil {
		return err
	}

	kept, err := copySurvivors(src, out, max, exclude)
	if cerr := out.close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if inPlace && kept == 0 {
		// nothing survived; dropping the staging file makes the swap
		// remove the original sector
		if err := os.Remove(t.stagingPath(idx)); err != nil {
			return fmt.Errorf("sectable: remove staging sector: %w", err)
		}
	}
	return nil
}

// copySurvivors streams every record chain of src into out, skipping
// excluded keys, oversized payloads and records byte-identical to one
// already appended for the same key in this pass.
func copySurvivors(src, out *sector, max int, exclude [][]byte) (int, error) {
	kept := 0
	for _, p := range src.order {
		c := src.chains[p]
		if c == nil || c.head == 0 {
			continue
		}

		seen := make(map[string]map[string]bool) // key -> appended payloads
		var werr error
		err := src.fetchChain(c, func(key, payload []byte) bool {
			if excluded(exclude, key) || len(payload) > max {
				return true
			}
			k := string(key)
			dups := seen[k]
			if dups == nil {
				dups = make(map[string]bool)
				seen[k] = dups
			}
			v := string(payload)
			if dups[v] {
				return true
			}
			dups[v] = true

			if werr = out.append(key, payload); werr != nil {
				return false
			}
			kept++
			return true
		})
		if werr != nil {
			return kept, werr
		}
		if err != nil {
			return kept, err
		}
	}
	return kept, nil
}

// excluded reports whether key is present in the pre-sorted exclusion
// list, using a full-key byte comparator.
func excluded(list [][]byte, key []byte) bool {
	if len(list) == 0 {
		return false
	}
	i := sort.Search(len(list), func(i int) bool { return bytes.Compare(list[i], key) >= 0 })
	return i < len(list) && bytes.Equal(list[i], key)
}

func (t *Table) discardStaging() {
	for i := 0; i < 256; i++ {
		_ = os.Remove(t.stagingPath(byte(i)))
	}
}

// swapStaging promotes staging sectors over the originals. Each rename is
// atomic, so a concurrent reader observes either the old or the new
// version of a sector, never a partial mix.
func (t *Table) swapStaging() error {
	for i := 0; i < 256; i++ {
		idx := byte(i)
		tmp, live := t.stagingPath(idx), t.sectorPath(idx)

		if _, err := os.Stat(tmp); err != nil {
			if !os.IsNotExist(err) {
				return fmt.Errorf("sectable: stat staging sector: %w", err)
			}
			if err := os.Remove(live); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("sectable: remove sector: %w", err)
			}
			continue
		}
		if err := os.Rename(tmp, live); err != nil {
			return fmt.Errorf("sectable: swap sector: %w", err)
		}
	}
	return nil
}
