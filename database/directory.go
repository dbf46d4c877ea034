// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package database

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/sha3"
)

// DirectoryDatabase stores examples in a directory tree. Each key gets
// a sub-directory named after the key's hash, each value a file inside
// it named after the value's hash. The layout is stable across runs, so
// a checked-in directory can be shared between machines.
type DirectoryDatabase struct {
	path string
	mu   sync.Mutex
}

func NewDirectoryDatabase(path string) *DirectoryDatabase {
	return &DirectoryDatabase{path: path}
}

// contentHash shortens a key or value to a fixed-width file name.
func contentHash(data []byte) string {
	hash := sha3.Sum256(data)
	return hex.EncodeToString(hash[:8])
}

func (db *DirectoryDatabase) keyPath(key []byte) string {
	return filepath.Join(db.path, contentHash(key))
}

func (db *DirectoryDatabase) valuePath(key, value []byte) string {
	return filepath.Join(db.keyPath(key), contentHash(value))
}

func (db *DirectoryDatabase) Save(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	dir := db.keyPath(key)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	target := db.valuePath(key, value)
	if _, err := os.Stat(target); err == nil {
		return nil
	}
	// Write to a temporary file first so a crash can never leave a
	// partially written value behind.
	tmp, err := os.CreateTemp(dir, contentHash(value)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write value: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	return os.Rename(tmp.Name(), target)
}

func (db *DirectoryDatabase) Delete(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	err := os.Remove(db.valuePath(key, value))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (db *DirectoryDatabase) Fetch(key []byte) ([][]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	entries, err := os.ReadDir(db.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var res [][]byte
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".tmp" {
			continue
		}
		value, err := os.ReadFile(filepath.Join(db.keyPath(key), entry.Name()))
		if errors.Is(err, fs.ErrNotExist) {
			continue // deleted concurrently
		}
		if err != nil {
			return nil, err
		}
		res = append(res, value)
	}
	return res, nil
}

func (db *DirectoryDatabase) Close() error {
	return nil
}
