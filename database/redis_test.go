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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedisDatabase(t *testing.T, options ...RedisOption) (*RedisDatabase, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	return NewRedisDatabase(client, options...), server
}

func TestRedisDatabase_UntouchedKeysExpire(t *testing.T) {
	db, server := newTestRedisDatabase(t, WithExpiry(time.Hour))
	defer db.Close()
	require.NoError(t, db.Save([]byte("key"), []byte{1}))

	server.FastForward(2 * time.Hour)
	require.Empty(t, fetchSorted(t, db, []byte("key")))
}

func TestRedisDatabase_EveryAccessRefreshesTheExpiry(t *testing.T) {
	db, server := newTestRedisDatabase(t, WithExpiry(time.Hour))
	defer db.Close()
	require.NoError(t, db.Save([]byte("key"), []byte{1}))

	for i := 0; i < 3; i++ {
		server.FastForward(45 * time.Minute)
		require.Equal(t, [][]byte{{1}}, fetchSorted(t, db, []byte("key")))
	}
}

func TestRedisDatabase_KeyPrefixSeparatesCorpora(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	a := NewRedisDatabase(client, WithKeyPrefix("a:"))
	b := NewRedisDatabase(client, WithKeyPrefix("b:"))

	require.NoError(t, a.Save([]byte("key"), []byte{1}))
	require.Empty(t, fetchSorted(t, b, []byte("key")))
	require.Equal(t, [][]byte{{1}}, fetchSorted(t, a, []byte("key")))
}

func TestRedisDatabase_MoveIsASingleSetOperation(t *testing.T) {
	db, _ := newTestRedisDatabase(t)
	defer db.Close()
	require.NoError(t, db.Save([]byte("src"), []byte{1}))
	require.NoError(t, db.Move([]byte("src"), []byte("dest"), []byte{1}))
	require.Empty(t, fetchSorted(t, db, []byte("src")))
	require.Equal(t, [][]byte{{1}}, fetchSorted(t, db, []byte("dest")))
}
