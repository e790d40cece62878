package buffer_pool_manager

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Adarsh-Kmt/KestrelDB/disk_manager"
	"github.com/Adarsh-Kmt/KestrelDB/logger"
)

// BufferPoolManager caches disk pages in a fixed number of in-memory frames.
//
// Pages are accessed through ReadGuard and WriteGuard, which keep the page pinned and latched
// until Done is called. A pinned page is never evicted. When no frame is free, the LRU-K replacer
// picks an unpinned victim, which is written back first if it is dirty.
//
// mutex protects the page table, the free list and every frame's pin count. It is never held
// while waiting on disk I/O, and never taken by a goroutine blocked on a page latch.
type BufferPoolManager struct {
	mutex *sync.Mutex

	frames     []*Frame
	pageTable  map[PageID]FrameID
	freeFrames []FrameID

	replacer  *LRUKReplacer
	disk      *disk_manager.DiskManager
	scheduler *disk_manager.DiskScheduler

	closed bool

	stats  stats
	logger logger.Logger
}

// NewBufferPoolManager opens (or creates) the database file at filePath and returns a buffer pool
// with poolSize frames, using an LRU-K replacer with the given k.
func NewBufferPoolManager(filePath string, poolSize int, k int, opts ...Option) (*BufferPoolManager, error) {

	if poolSize <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidPoolSize, poolSize)
	}
	if k <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, k)
	}

	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = logger.Discard
	}

	diskOptions := append([]disk_manager.Option{disk_manager.WithLogger(options.Logger)}, options.DiskOptions...)

	disk, err := disk_manager.NewDiskManager(filePath, diskOptions...)
	if err != nil {
		return nil, err
	}

	pool := newBufferPoolManager(poolSize, k, disk, options.Logger)

	options.Logger.Info("opened buffer pool manager", "filePath", filePath, "poolSize", poolSize, "k", k, "function", "NewBufferPoolManager", "at", "BufferPoolManager")

	return pool, nil
}

func newBufferPoolManager(poolSize int, k int, disk *disk_manager.DiskManager, log logger.Logger) *BufferPoolManager {

	frames := make([]*Frame, poolSize)
	freeFrames := make([]FrameID, poolSize)

	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(FrameID(i))
		freeFrames[i] = FrameID(i)
	}

	return &BufferPoolManager{
		mutex:      &sync.Mutex{},
		frames:     frames,
		pageTable:  make(map[PageID]FrameID, poolSize),
		freeFrames: freeFrames,
		replacer:   NewLRUKReplacer(poolSize, k),
		disk:       disk,
		scheduler:  disk_manager.NewDiskScheduler(disk, log),
		logger:     log,
	}
}

// Size returns the number of frames in the pool.
func (pool *BufferPoolManager) Size() int {
	return len(pool.frames)
}

// NewPage allocates a fresh page on disk and returns it zeroed and exclusively latched.
// The page starts clean since its slot on disk is already zero.
func (pool *BufferPoolManager) NewPage() (*WriteGuard, error) {

	pool.mutex.Lock()
	closed := pool.closed
	pool.mutex.Unlock()

	if closed {
		return nil, ErrBufferPoolClosed
	}

	pageId, err := pool.disk.AllocatePage()
	if err != nil {
		if errors.Is(err, disk_manager.ErrDiskManagerClosed) {
			return nil, ErrBufferPoolClosed
		}
		return nil, fmt.Errorf("%w: allocate page: %w", ErrIO, err)
	}

	frame, err := pool.acquireFrame(pageId)
	if err != nil {
		// nobody has seen the page ID yet, so retire it instead of leaking an empty page.
		pool.disk.DeallocatePage(pageId)
		pool.logger.Warn("failed to find a frame for new page", "pageId", pageId, "error", err.Error(), "function", "NewPage", "at", "BufferPoolManager")
		return nil, err
	}

	clear(frame.data)

	pool.logger.Debug("created new page", "pageId", pageId, "frameId", frame.frameId, "function", "NewPage", "at", "BufferPoolManager")

	return &WriteGuard{
		active:     true,
		page:       frame,
		pageId:     pageId,
		bufferPool: pool,
	}, nil
}

// fetchPage returns the frame holding pageId, pinned and latched in the given mode,
// reading the page from disk if it is not resident.
func (pool *BufferPoolManager) fetchPage(pageId PageID, mode latchMode) (*Frame, error) {

	for {
		pool.mutex.Lock()

		if pool.closed {
			pool.mutex.Unlock()
			return nil, ErrBufferPoolClosed
		}

		if frameId, resident := pool.pageTable[pageId]; resident {

			frame := pool.frames[frameId]
			pool.pinFrame(frame)
			pool.mutex.Unlock()

			frame.latch(mode)

			// the load that mapped this frame may have failed while we waited on the latch.
			if frame.getPageId() != pageId {
				frame.unlatch(mode)
				pool.unpinFrame(frame)
				continue
			}

			pool.stats.hits.Add(1)
			return frame, nil
		}

		allocated := pool.disk.IsAllocated(pageId)
		pool.mutex.Unlock()

		if !allocated {
			return nil, fmt.Errorf("%w: page %d", ErrPageNotFound, pageId)
		}

		frame, err := pool.acquireFrame(pageId)
		if errors.Is(err, errPageAlreadyLoaded) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := pool.scheduler.ScheduleAndWait(disk_manager.READ, pageId, frame.data); err != nil {
			pool.abandonFrame(frame)
			pool.logger.Error("failed to read page", "pageId", pageId, "error", err.Error(), "function", "fetchPage", "at", "BufferPoolManager")
			return nil, fmt.Errorf("%w: read page %d: %w", ErrIO, pageId, err)
		}

		pool.stats.misses.Add(1)

		if mode == SHARED {
			// downgrade, waiting readers may share the latch from here on.
			frame.mutex.Unlock()
			frame.mutex.RLock()
		}

		return frame, nil
	}
}

// acquireFrame finds a frame for pageId, maps it, pins it once and takes its exclusive latch.
// The returned frame's contents are stale, the caller must fill them before releasing the latch.
func (pool *BufferPoolManager) acquireFrame(pageId PageID) (*Frame, error) {

	for {
		pool.mutex.Lock()

		if pool.closed {
			pool.mutex.Unlock()
			return nil, ErrBufferPoolClosed
		}

		if _, resident := pool.pageTable[pageId]; resident {
			pool.mutex.Unlock()
			return nil, errPageAlreadyLoaded
		}

		if len(pool.freeFrames) > 0 {
			frameId := pool.freeFrames[len(pool.freeFrames)-1]
			pool.freeFrames = pool.freeFrames[:len(pool.freeFrames)-1]

			frame := pool.frames[frameId]
			pool.installFrame(frame, pageId)
			pool.mutex.Unlock()

			return frame, nil
		}

		frameId, found := pool.replacer.victim()
		if !found {
			pool.mutex.Unlock()
			return nil, ErrOutOfFrames
		}

		frame := pool.frames[frameId]

		if frame.dirty.Load() {
			// write the victim back first. It stays tracked by the replacer with its history intact,
			// pinned so no other goroutine picks it while the pool mutex is released.
			pool.pinFrameWithoutAccess(frame)
			pool.mutex.Unlock()

			err := pool.flushFrame(frame, true)
			pool.unpinFrame(frame)

			if err != nil {
				return nil, err
			}
			continue
		}

		// replacer state only changes under the pool mutex, so evict removes the same frame.
		pool.replacer.evict()
		pool.evictFrame(frame)
		pool.installFrame(frame, pageId)
		pool.mutex.Unlock()

		return frame, nil
	}
}

// installFrame maps an unpinned frame to pageId with a pin count of one and takes its exclusive latch.
// Must be called with the pool mutex held.
func (pool *BufferPoolManager) installFrame(frame *Frame, pageId PageID) {

	frame.setPageId(pageId)
	frame.pinCount = 1
	frame.dirty.Store(false)

	pool.pageTable[pageId] = frame.frameId

	pool.replacer.remove(frame.frameId)
	pool.replacer.recordAccess(frame.frameId)
	pool.replacer.setEvictable(frame.frameId, false)

	// an unpinned frame is never latched, so this does not block.
	frame.mutex.Lock()
}

// evictFrame drops the page table entry of a victim. Must be called with the pool mutex held.
func (pool *BufferPoolManager) evictFrame(frame *Frame) {

	oldPageId := frame.getPageId()
	delete(pool.pageTable, oldPageId)

	pool.stats.evictions.Add(1)

	pool.logger.Debug("evicted page", "pageId", oldPageId, "frameId", frame.frameId, "function", "evictFrame", "at", "BufferPoolManager")
}

// abandonFrame undoes acquireFrame after a failed load. The caller holds the exclusive latch.
func (pool *BufferPoolManager) abandonFrame(frame *Frame) {

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	delete(pool.pageTable, frame.getPageId())
	frame.setPageId(INVALID_PAGE_ID)
	frame.dirty.Store(false)

	frame.mutex.Unlock()
	pool.releasePin(frame)
}

// pinFrame records an access and makes the frame non-evictable. Must be called with the pool mutex held.
func (pool *BufferPoolManager) pinFrame(frame *Frame) {

	frame.pinCount++
	pool.replacer.recordAccess(frame.frameId)
	pool.replacer.setEvictable(frame.frameId, false)
}

// pinFrameWithoutAccess keeps the frame resident for an internal write back, which is not a use of
// the page. Must be called with the pool mutex held.
func (pool *BufferPoolManager) pinFrameWithoutAccess(frame *Frame) {

	frame.pinCount++
	pool.replacer.setEvictable(frame.frameId, false)
}

// unpinFrame drops one pin. The caller must have released the frame's latch first.
func (pool *BufferPoolManager) unpinFrame(frame *Frame) {

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	pool.releasePin(frame)
}

func (pool *BufferPoolManager) releasePin(frame *Frame) {

	if frame.pinCount <= 0 {
		pool.logger.Error("unpinned a frame with no pins", "frameId", frame.frameId, "function", "releasePin", "at", "BufferPoolManager")
		return
	}

	frame.pinCount--
	if frame.pinCount > 0 {
		return
	}

	// a frame whose load failed goes back to the free list once the last waiter leaves.
	if frame.getPageId() == INVALID_PAGE_ID {
		pool.replacer.remove(frame.frameId)
		pool.freeFrames = append(pool.freeFrames, frame.frameId)
		return
	}

	pool.replacer.setEvictable(frame.frameId, true)
}

// DeletePage removes the page from the pool and retires its page ID on disk.
//
// It returns ErrPageInUse if the page is pinned and ErrPageNotFound if the page ID was never
// allocated or was already deleted. Deleting an allocated page that is not resident succeeds.
func (pool *BufferPoolManager) DeletePage(pageId PageID) (bool, error) {

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if pool.closed {
		return false, ErrBufferPoolClosed
	}

	frameId, resident := pool.pageTable[pageId]
	if !resident {
		if !pool.disk.IsAllocated(pageId) {
			return false, fmt.Errorf("%w: page %d", ErrPageNotFound, pageId)
		}
		pool.disk.DeallocatePage(pageId)
		return true, nil
	}

	frame := pool.frames[frameId]
	if frame.pinCount > 0 {
		return false, fmt.Errorf("%w: page %d has %d pins", ErrPageInUse, pageId, frame.pinCount)
	}

	pool.retireFrame(frame)

	return true, nil
}

// retireFrame unmaps an unpinned frame, resets it and returns it to the free list.
// Must be called with the pool mutex held.
func (pool *BufferPoolManager) retireFrame(frame *Frame) {

	pageId := frame.getPageId()

	delete(pool.pageTable, pageId)
	pool.replacer.remove(frame.frameId)
	frame.reset()
	pool.freeFrames = append(pool.freeFrames, frame.frameId)

	pool.disk.DeallocatePage(pageId)

	pool.logger.Debug("deleted page", "pageId", pageId, "frameId", frame.frameId, "function", "DeletePage", "at", "BufferPoolManager")
}

// FlushPage writes the page to disk if it is resident and dirty.
//
// It waits for any writer holding the page to finish, so it must not be called while the
// calling goroutine holds a WriteGuard on the same page. Use WriteGuard.Flush for that.
func (pool *BufferPoolManager) FlushPage(pageId PageID) error {
	return pool.flushPage(pageId, true)
}

// flushPage writes back a resident page. Without wait, a page whose latch is held exclusively
// is skipped and reported with ErrPageInUse.
func (pool *BufferPoolManager) flushPage(pageId PageID, wait bool) error {

	pool.mutex.Lock()

	if pool.closed {
		pool.mutex.Unlock()
		return ErrBufferPoolClosed
	}

	frameId, resident := pool.pageTable[pageId]
	if !resident {
		allocated := pool.disk.IsAllocated(pageId)
		pool.mutex.Unlock()

		if !allocated {
			return fmt.Errorf("%w: page %d", ErrPageNotFound, pageId)
		}
		// a non-resident page is already on disk.
		return nil
	}

	frame := pool.frames[frameId]

	pool.pinFrameWithoutAccess(frame)
	pool.mutex.Unlock()

	err := pool.flushFrame(frame, wait)

	pool.unpinFrame(frame)

	return err
}

// FlushAllPages writes every resident dirty page to disk. Failures do not stop the remaining
// flushes and are returned joined together.
func (pool *BufferPoolManager) FlushAllPages() error {
	return pool.flushAllPages(true)
}

func (pool *BufferPoolManager) flushAllPages(wait bool) error {

	pool.mutex.Lock()

	if pool.closed {
		pool.mutex.Unlock()
		return ErrBufferPoolClosed
	}

	pageIds := make([]PageID, 0, len(pool.pageTable))
	for pageId := range pool.pageTable {
		pageIds = append(pageIds, pageId)
	}
	pool.mutex.Unlock()

	var err error

	for _, pageId := range pageIds {

		// pages deleted since the snapshot have nothing left to flush.
		if e := pool.flushPage(pageId, wait); e != nil && !errors.Is(e, ErrPageNotFound) {
			err = errors.Join(err, e)
		}
	}

	return err
}

// flushFrame takes the shared latch on a pinned frame and writes it back. Without wait it gives up
// with ErrPageInUse instead of blocking on a held WriteGuard.
func (pool *BufferPoolManager) flushFrame(frame *Frame, wait bool) error {

	if wait {
		frame.mutex.RLock()
	} else if !frame.mutex.TryRLock() {
		return fmt.Errorf("%w: page %d is held for writing and was not flushed", ErrPageInUse, frame.getPageId())
	}
	defer frame.mutex.RUnlock()

	return pool.writeBack(frame)
}

// writeBack writes a dirty frame to disk and clears its dirty flag only once the write succeeded.
// The caller must hold the frame's latch.
func (pool *BufferPoolManager) writeBack(frame *Frame) error {

	if !frame.dirty.Load() {
		return nil
	}

	pageId := frame.getPageId()

	if err := pool.scheduler.ScheduleAndWait(disk_manager.WRITE, pageId, frame.data); err != nil {
		pool.stats.failedFlushes.Add(1)
		pool.logger.Error("failed to write back page", "pageId", pageId, "error", err.Error(), "function", "writeBack", "at", "BufferPoolManager")
		return fmt.Errorf("%w: write page %d: %w", ErrIO, pageId, err)
	}

	frame.dirty.Store(false)
	pool.stats.flushes.Add(1)

	return nil
}

// GetPinCount returns the pin count of a resident page, and false if the page is not resident.
func (pool *BufferPoolManager) GetPinCount(pageId PageID) (int, bool) {

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	frameId, resident := pool.pageTable[pageId]
	if !resident {
		return 0, false
	}

	return pool.frames[frameId].pinCount, true
}

// Close flushes every dirty page, stops the disk scheduler and closes the database file.
//
// Close does not wait for guards. A page held by a WriteGuard is not flushed and is reported with
// ErrPageInUse. Held guards can still be read and released, every other operation returns ErrBufferPoolClosed.
func (pool *BufferPoolManager) Close() error {

	pool.mutex.Lock()
	if pool.closed {
		pool.mutex.Unlock()
		return nil
	}
	pool.mutex.Unlock()

	err := pool.flushAllPages(false)

	pool.mutex.Lock()
	pool.closed = true
	pool.mutex.Unlock()

	pool.scheduler.Shutdown()

	if e := pool.disk.Close(); e != nil {
		err = errors.Join(err, e)
	}

	pool.logger.Info("closed buffer pool manager", "filePath", pool.disk.FilePath(), "function", "Close", "at", "BufferPoolManager")

	return err
}
