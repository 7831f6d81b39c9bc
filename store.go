package sectable

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Store provides access to the databases kept under a single root
// directory. Multiple independent stores may coexist in one process.
type Store struct {
	root string
}

// Open initialises a store rooted at dir, creating the directory when
// absent.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("sectable: open root: %w", err)
	}
	return &Store{root: dir}, nil
}

// Root returns the storage root directory.
func (s *Store) Root() string { return s.root }

// CreateDatabase creates an empty database.
func (s *Store) CreateDatabase(db string) error {
	if !validName(db) {
		return ErrInvalidName
	}
	path := filepath.Join(s.root, db)
	if dirExists(path) {
		return ErrExists
	}
	if err := os.Mkdir(path, 0755); err != nil {
		return fmt.Errorf("sectable: create database: %w", err)
	}
	return nil
}

// CreateTable creates an empty table with the given key length (>=
// MinKeyLen) and record length (0 for variable-length records). The parent
// database directory is created when absent.
func (s *Store) CreateTable(db, name string, keyLen, recLen int) (*Table, error) {
	if !validName(db) || !validName(name) {
		return nil, ErrInvalidName
	}
	if keyLen < MinKeyLen || recLen < 0 || recLen > MaxRecordLen {
		return nil, ErrInvalidTable
	}

	path := filepath.Join(s.root, db, name)
	if dirExists(path) {
		return nil, ErrExists
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("sectable: create table: %w", err)
	}

	t := &Table{KeyLen: keyLen, RecLen: recLen, store: s, db: db, name: name, path: path}
	if err := t.writeCfg(); err != nil {
		return nil, err
	}
	return t, nil
}

// OpenTable opens an existing table, reading its configuration record. It
// returns ErrInvalidTable when the table does not exist.
func (s *Store) OpenTable(db, name string) (*Table, error) {
	if !validName(db) || !validName(name) {
		return nil, ErrInvalidName
	}
	t := &Table{store: s, db: db, name: name, path: filepath.Join(s.root, db, name)}
	if err := t.readCfg(); err != nil {
		return nil, err
	}
	return t, nil
}

// Databases lists the databases in the store, sorted by name.
func (s *Store) Databases() ([]string, error) {
	return listDirs(s.root)
}

// Tables lists the tables of a database, sorted by name.
func (s *Store) Tables(db string) ([]string, error) {
	if !validName(db) {
		return nil, ErrInvalidName
	}
	return listDirs(filepath.Join(s.root, db))
}

func listDirs(path string) ([]string, error) {
	ents, err := os.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sectable: list directory: %w", err)
	}

	var names []string
	for _, ent := range ents {
		if ent.IsDir() && ent.Name()[0] != '.' {
			names = append(names, ent.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// validName accepts database and table names of up to 64 characters from
// [A-Za-z0-9._-], not starting with a dot.
func validName(name string) bool {
	if name == "" || len(name) > 64 || name[0] == '.' {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '.' || c == '_' || c == '-':
		default:
			return false
		}
	}
	return true
}

func dirExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.IsDir()
}
