// Package syncutil holds locking helpers shared by the risk stores.
package syncutil

import (
	"hash/maphash"
	"sync"
)

const shardCount = 256

var seed = maphash.MakeSeed()

// ShardedMutex serializes work per key using a fixed pool of mutexes, so
// memory stays bounded no matter how many users are seen. Two keys that
// land on the same shard wait on each other. The zero value is ready to use.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock blocks until key's shard is held and returns its unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := &s.shards[Shard(key)]
	mu.Lock()
	return mu.Unlock
}

// Shard returns the shard index key maps to.
func Shard(key string) int {
	return int(maphash.String(seed, key) % shardCount)
}
