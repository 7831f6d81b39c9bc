package sectable

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	cfgFile    = ".cfg"
	lockName   = "LOCK"
	sectorExt  = ".sct"
	stagingExt = ".tmp"
)

// Table is a handle on a named table and its configuration record. The
// configuration is immutable after creation: every record written to the
// table stores a key of exactly KeyLen bytes and, when RecLen is non-zero,
// a payload of exactly RecLen bytes.
type Table struct {
	KeyLen int // key length in bytes, >= MinKeyLen
	RecLen int // fixed record length in bytes, 0 for variable-length records

	store *Store
	db    string
	name  string
	path  string
}

// Name returns the db/table identifier.
func (t *Table) Name() string { return t.db + "/" + t.name }

// Path returns the table directory.
func (t *Table) Path() string { return t.path }

func (t *Table) readCfg() error {
	raw, err := os.ReadFile(filepath.Join(t.path, cfgFile))
	if err != nil {
		return ErrInvalidTable
	}
	if _, err := fmt.Sscanf(string(raw), "%d,%d", &t.KeyLen, &t.RecLen); err != nil {
		return ErrInvalidTable
	}
	if t.KeyLen < MinKeyLen || t.RecLen < 0 || t.RecLen > MaxRecordLen {
		return ErrInvalidTable
	}
	return nil
}

func (t *Table) writeCfg() error {
	data := fmt.Sprintf("%d,%d\n", t.KeyLen, t.RecLen)
	if err := os.WriteFile(filepath.Join(t.path, cfgFile), []byte(data), 0644); err != nil {
		return fmt.Errorf("sectable: write table config: %w", err)
	}
	return nil
}

func (t *Table) sectorPath(idx byte) string {
	return filepath.Join(t.path, fmt.Sprintf("%02x%s", idx, sectorExt))
}

func (t *Table) stagingPath(idx byte) string {
	return filepath.Join(t.path, fmt.Sprintf("%02x%s", idx, stagingExt))
}

// lock takes the table-scoped advisory lock. It must be held for the
// duration of any write-class operation and released only after all sector
// handles touched by the operation are closed.
func (t *Table) lock() (*os.File, error) {
	return lockFile(filepath.Join(t.path, lockName))
}

func (t *Table) unlock(f *os.File) {
	unlockFile(f)
}

// checkKey validates an operation key against the table configuration and
// returns its authoritative prefix. Callers may pass longer keys; only the
// first KeyLen bytes address sectors and lists.
func (t *Table) checkKey(key []byte) ([]byte, error) {
	if len(key) < t.KeyLen {
		return nil, ErrInvalidKey
	}
	return key[:t.KeyLen], nil
}
