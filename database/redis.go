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
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "conjecture-example:"
	// Entries that have not been touched for this long are expired. A
	// corpus entry that no run has read or refreshed in over a week is
	// almost certainly stale.
	defaultRedisExpiry = 8 * 24 * time.Hour
)

// RedisDatabase stores examples in a shared Redis instance, one set per
// key. It lets a CI fleet share a failure corpus. Every operation on a
// key refreshes its expiry so actively used corpora never vanish while
// abandoned ones get cleaned up.
type RedisDatabase struct {
	client redis.UniversalClient
	prefix string
	expiry time.Duration
}

// RedisOption adjusts the configuration of a RedisDatabase.
type RedisOption func(*RedisDatabase)

// WithKeyPrefix overrides the prefix prepended to every Redis key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(db *RedisDatabase) { db.prefix = prefix }
}

// WithExpiry overrides how long untouched keys are retained.
func WithExpiry(expiry time.Duration) RedisOption {
	return func(db *RedisDatabase) { db.expiry = expiry }
}

func NewRedisDatabase(client redis.UniversalClient, options ...RedisOption) *RedisDatabase {
	db := &RedisDatabase{
		client: client,
		prefix: defaultRedisPrefix,
		expiry: defaultRedisExpiry,
	}
	for _, option := range options {
		option(db)
	}
	return db
}

func (db *RedisDatabase) redisKey(key []byte) string {
	return db.prefix + string(key)
}

func (db *RedisDatabase) Save(key, value []byte) error {
	ctx := context.Background()
	_, err := db.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, db.redisKey(key), value)
		pipe.Expire(ctx, db.redisKey(key), db.expiry)
		return nil
	})
	return err
}

func (db *RedisDatabase) Delete(key, value []byte) error {
	return db.client.SRem(context.Background(), db.redisKey(key), value).Err()
}

func (db *RedisDatabase) Fetch(key []byte) ([][]byte, error) {
	ctx := context.Background()
	values, err := db.client.SMembers(ctx, db.redisKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) > 0 {
		if err := db.client.Expire(ctx, db.redisKey(key), db.expiry).Err(); err != nil {
			return nil, err
		}
	}
	res := make([][]byte, 0, len(values))
	for _, value := range values {
		res = append(res, []byte(value))
	}
	return res, nil
}

// Move transfers a value between keys in a single round trip.
func (db *RedisDatabase) Move(src, dest, value []byte) error {
	return db.client.SMove(context.Background(), db.redisKey(src), db.redisKey(dest), value).Err()
}

func (db *RedisDatabase) Close() error {
	return db.client.Close()
}
