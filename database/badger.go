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
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/crypto/sha3"
)

// BadgerDatabase stores examples in a single Badger key-value store.
// Compared to the directory backend it avoids one file per value, which
// matters for corpora with many thousands of entries. Each (key, value)
// pair is stored under the concatenation of their hashes, so membership
// checks and deletes are single lookups and Fetch is a prefix scan.
type BadgerDatabase struct {
	db *badger.DB
}

func OpenBadgerDatabase(path string) (*BadgerDatabase, error) {
	options := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerDatabase{db: db}, nil
}

func entryKey(key, value []byte) []byte {
	keyHash := sha3.Sum256(key)
	valueHash := sha3.Sum256(value)
	return append(keyHash[:], valueHash[:]...)
}

func (db *BadgerDatabase) Save(key, value []byte) error {
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(key, value), value)
	})
}

func (db *BadgerDatabase) Delete(key, value []byte) error {
	return db.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(entryKey(key, value))
	})
}

func (db *BadgerDatabase) Fetch(key []byte) ([][]byte, error) {
	var res [][]byte
	keyHash := sha3.Sum256(key)
	err := db.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = keyHash[:]
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			res = append(res, value)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (db *BadgerDatabase) Close() error {
	return db.db.Close()
}
