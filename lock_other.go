//go:build !unix

package sectable

import (
	"fmt"
	"os"
)

// lockFile keeps the lock file open without an advisory lock on platforms
// that lack flock(2).
func lockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("sectable: open lock file: %w", err)
	}
	return f, nil
}

func unlockFile(f *os.File) {
	_ = f.Close()
}
