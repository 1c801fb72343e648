// Package syncutil provides keyed locking for per-contract serialization.
package syncutil

import (
	"hash/fnv"
	"strconv"
	"sync"
)

const shardCount = 256

// ShardedMutex provides a fixed-size pool of mutexes keyed by string.
// Memory stays bounded regardless of how many keys are seen; two keys that
// hash to the same shard serialize against each other.
type ShardedMutex struct {
	shards [shardCount]sync.Mutex
}

// Lock acquires the mutex for the given key and returns an unlock function.
func (s *ShardedMutex) Lock(key string) func() {
	mu := s.shard(key)
	mu.Lock()
	return mu.Unlock
}

// LockID is Lock for numeric keys such as contract ids.
func (s *ShardedMutex) LockID(id int64) func() {
	return s.Lock(strconv.FormatInt(id, 10))
}

func (s *ShardedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &s.shards[h.Sum32()%shardCount]
}
