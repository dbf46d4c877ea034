// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package database provides persistent storage for failing examples. A
// database is a multimap from keys to sets of distinct byte values.
// Saving an existing value or deleting a missing one is a silent no-op,
// so callers never have to check for presence first.
package database

//go:generate mockgen -source database.go -destination database_mock.go -package database

// Database maps keys to sets of byte values. Implementations must be
// safe for concurrent use.
type Database interface {
	// Save adds value to the set stored under key.
	Save(key, value []byte) error
	// Delete removes value from the set stored under key.
	Delete(key, value []byte) error
	// Fetch returns all values stored under key, in unspecified order.
	Fetch(key []byte) ([][]byte, error)
	// Close releases resources held by the database.
	Close() error
}

// Move transfers a value from one key to another. Implementations with a
// cheaper native move are used directly; everyone else gets the generic
// delete-then-save, so Move is a helper rather than part of the Database
// interface.
func Move(db Database, src, dest, value []byte) error {
	if mover, ok := db.(interface{ Move(src, dest, value []byte) error }); ok {
		return mover.Move(src, dest, value)
	}
	if err := db.Delete(src, value); err != nil {
		return err
	}
	return db.Save(dest, value)
}
