/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const releaseScript = "if redis.call('get', KEYS[1]) == ARGV[1] then return redis.call('del', KEYS[1]) else return 0 end"

// RedisLocker keeps locks as SETNX keys whose expiry is the lock TTL, so a crashed
// holder's lock lapses on its own.
type RedisLocker struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisLocker(client redis.UniversalClient) *RedisLocker {
	return &RedisLocker{client: client, prefix: "grantflow:fifo_lock"}
}

func (l *RedisLocker) key(segregationRef, actor string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, actor, segregationRef)
}

func (l *RedisLocker) Acquire(ctx context.Context, segregationRef, actor, holder string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, l.key(segregationRef, actor), holder, ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, segregationRef, actor, holder string) error {
	result, err := l.client.Eval(ctx, releaseScript, []string{l.key(segregationRef, actor)}, holder).Result()
	if err != nil {
		return err
	}
	if result == int64(0) {
		return ErrNotHolder
	}
	return nil
}
