// Package hashtable implements the bucket-locked concurrent hash table
// the server's workers execute operations against. The table is
// process-local: unlike the request and response queues it never lives
// in shared memory, so its locks are ordinary in-process sync.RWMutex
// values rather than the futex-based primitives in internal/shm.
//
// The per-bucket locking discipline — one lock per shard, no global
// table lock, readers and a single writer per shard — lets concurrent
// operations on different buckets proceed without contending at all.
package hashtable

import (
	"hash/maphash"
	"sync"

	"github.com/shadowcpy/hashtable/internal/protocol"
)

// Table is a fixed-size array of independently-locked buckets.
type Table struct {
	seed    maphash.Seed
	buckets []bucket
}

type bucket struct {
	mu      sync.RWMutex
	entries []protocol.Entry
}

// New builds a table with the given fixed bucket count. S must be > 0.
func New(s int) *Table {
	t := &Table{
		seed:    maphash.MakeSeed(),
		buckets: make([]bucket, s),
	}
	return t
}

// Buckets returns the fixed bucket count S.
func (t *Table) Buckets() int { return len(t.buckets) }

func (t *Table) bucketIndex(k protocol.Key) int {
	var h maphash.Hash
	h.SetSeed(t.seed)
	h.Write(k.Slice())
	return int(h.Sum64() % uint64(len(t.buckets)))
}

// Insert adds or overwrites (k, v) in its bucket. Always returns Ok.
func (t *Table) Insert(k protocol.Key, v uint32) protocol.Status {
	b := &t.buckets[t.bucketIndex(k)]
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		if b.entries[i].Key.Equal(k) {
			b.entries[i].Value = v
			return protocol.StatusOk
		}
	}
	b.entries = append(b.entries, protocol.Entry{Key: k, Value: v})
	return protocol.StatusOk
}

// Delete removes k from its bucket if present.
func (t *Table) Delete(k protocol.Key) protocol.Status {
	b := &t.buckets[t.bucketIndex(k)]
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		if b.entries[i].Key.Equal(k) {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return protocol.StatusOk
		}
	}
	return protocol.StatusNotFound
}

// dump copies up to MaxDumpEntries entries from a bucket into resp,
// setting EntryCount and Payload, and BucketOverflow status if the
// bucket holds more entries than fit.
func dump(b *bucket, resp *protocol.Response) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	resp.Payload = protocol.PayloadBucketDump
	n := len(b.entries)
	if n > len(resp.Entries) {
		resp.Status = protocol.StatusBucketOverflow
		n = len(resp.Entries)
	} else {
		resp.Status = protocol.StatusOk
	}
	resp.EntryCount = uint32(n)
	for i := 0; i < n; i++ {
		resp.Entries[i] = b.entries[i]
	}
}

// DumpByKey hashes k to find its bucket and dumps it. The dump happens
// regardless of whether k itself is present — only the bucket the key
// hashes to is reported.
func (t *Table) DumpByKey(k protocol.Key, resp *protocol.Response) {
	dump(&t.buckets[t.bucketIndex(k)], resp)
}

// DumpByIndex dumps bucket i directly. Returns InvalidOp via resp.Status
// if i is out of range.
func (t *Table) DumpByIndex(i uint32, resp *protocol.Response) {
	if int(i) >= len(t.buckets) {
		resp.Status = protocol.StatusInvalidOp
		resp.Payload = protocol.PayloadEmpty
		resp.EntryCount = 0
		return
	}
	dump(&t.buckets[i], resp)
}
