package sectable

// Insert appends payload as a new record under key. Keys must carry at
// least KeyLen bytes; only the first KeyLen bytes address the sector and
// list. Records are never rewritten in place.
func (t *Table) Insert(key, payload []byte) error {
	key, err := t.checkKey(key)
	if err != nil {
		return err
	}
	if t.RecLen != 0 && len(payload) != t.RecLen {
		return ErrSizeMismatch
	}
	if len(payload) > MaxRecordLen {
		return ErrRecordTooLarge
	}

	lk, err := t.lock()
	if err != nil {
		return err
	}
	defer t.unlock(lk)

	s, err := t.openSector(key[0], sectorWrite)
	if err != nil {
		return err
	}
	err = s.append(key, payload)
	if cerr := s.close(); err == nil {
		err = cerr
	}
	return err
}

// Fetch produces all records for key in chain (append) order, invoking
// visit for each. With MatchPrefix the key must be exactly MinKeyLen bytes
// and every list sharing those four leading bytes is visited, each fully,
// before Fetch returns; no ordering is guaranteed across different lists.
// The count of visited records is returned; zero is not an error.
func (t *Table) Fetch(key []byte, mode MatchMode, visit VisitFunc) (int, error) {
	if mode == MatchPrefix {
		if len(key) != MinKeyLen {
			return 0, ErrInvalidKey
		}
	} else {
		var err error
		if key, err = t.checkKey(key); err != nil {
			return 0, err
		}
	}

	s, err := t.openSector(key[0], sectorRead)
	if err == errNoSector {
		return 0, nil
	} else if err != nil {
		return 0, err
	}

	n, err := s.fetch(key, mode, visit)
	if cerr := s.close(); err == nil {
		err = cerr
	}
	return n, err
}

// Unlink detaches the list for a 4-byte key from the sector index and
// reports whether a list existed. The underlying bytes are not erased;
// reclaiming the space is deferred to the next collation, which keeps
// unlinking cheap and safe to do online.
func (t *Table) Unlink(key []byte) (bool, error) {
	if len(key) != MinKeyLen {
		return false, ErrInvalidKey
	}

	lk, err := t.lock()
	if err != nil {
		return false, err
	}
	defer t.unlock(lk)

	s, err := t.openSector(key[0], sectorUpdate)
	if err == errNoSector {
		return false, nil
	} else if err != nil {
		return false, err
	}

	ok, err := s.unlink(key)
	if cerr := s.close(); err == nil {
		err = cerr
	}
	return ok, err
}
