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

import "sync"

// InMemoryDatabase keeps examples in process memory. It is the default
// when no persistent database is configured and is also handy in tests.
type InMemoryDatabase struct {
	mu   sync.Mutex
	data map[string]map[string]bool
}

func NewInMemoryDatabase() *InMemoryDatabase {
	return &InMemoryDatabase{data: map[string]map[string]bool{}}
}

func (db *InMemoryDatabase) Save(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	values, found := db.data[string(key)]
	if !found {
		values = map[string]bool{}
		db.data[string(key)] = values
	}
	values[string(value)] = true
	return nil
}

func (db *InMemoryDatabase) Delete(key, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	values, found := db.data[string(key)]
	if !found {
		return nil
	}
	delete(values, string(value))
	if len(values) == 0 {
		delete(db.data, string(key))
	}
	return nil
}

func (db *InMemoryDatabase) Fetch(key []byte) ([][]byte, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	values := db.data[string(key)]
	res := make([][]byte, 0, len(values))
	for value := range values {
		res = append(res, []byte(value))
	}
	return res, nil
}

func (db *InMemoryDatabase) Close() error {
	return nil
}
