package buffer_pool_manager

import "sync/atomic"

type stats struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	evictions     atomic.Uint64
	flushes       atomic.Uint64
	failedFlushes atomic.Uint64
}

// Stats is a point in time snapshot of buffer pool counters.
type Stats struct {
	// Hits counts fetches served from a resident frame, Misses counts fetches read from disk.
	Hits   uint64
	Misses uint64

	Evictions     uint64
	Flushes       uint64
	FailedFlushes uint64
}

func (pool *BufferPoolManager) Stats() Stats {
	return Stats{
		Hits:          pool.stats.hits.Load(),
		Misses:        pool.stats.misses.Load(),
		Evictions:     pool.stats.evictions.Load(),
		Flushes:       pool.stats.flushes.Load(),
		FailedFlushes: pool.stats.failedFlushes.Load(),
	}
}

// HitRatio returns hits over total fetches, or 0 before the first fetch.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
