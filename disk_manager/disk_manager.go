package disk_manager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"unsafe"

	"github.com/Adarsh-Kmt/KestrelDB/logger"
	"github.com/dustin/go-humanize"
	"github.com/ncw/directio"
	"golang.org/x/time/rate"
)

// PageID names a logical page. Page N lives at byte offset N*PAGE_SIZE of the backing file.
type PageID uint64

const INVALID_PAGE_ID = PageID(math.MaxUint64)

// DiskManager reads and writes fixed size pages of a single backing file, grows the file on demand,
// and hands out page IDs.
//
// Direct I/O bypasses the kernel page cache, which prevents pages being cached twice,
// once by the kernel and once in the buffer pool. It is opt in because some file systems (tmpfs) reject O_DIRECT.
type DiskManager struct {
	file     *os.File
	filePath string

	// guards capacity, metadata and closed.
	mutex *sync.Mutex

	// number of pages the backing file currently holds.
	capacity uint64
	metadata *MetaData
	closed   bool

	// page IDs below this bound are covered by the sidecar on disk, so a crash never
	// hands them out again.
	reservedPageId PageID

	directIO   bool
	syncWrites bool
	limiter    *rate.Limiter
	logger     logger.Logger
}

// NewDiskManager opens (or creates) the backing file at filePath and takes an exclusive lock on it.
func NewDiskManager(filePath string, opts ...Option) (*DiskManager, error) {

	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.Logger == nil {
		options.Logger = logger.Discard
	}

	log := options.Logger

	var (
		file *os.File
		err  error
	)

	if options.DirectIO {
		log.Info("opening file in DIRECT I/O mode", "filePath", filePath, "function", "NewDiskManager", "at", "DiskManager")
		file, err = directio.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	} else {
		log.Info("opening file", "filePath", filePath, "function", "NewDiskManager", "at", "DiskManager")
		file, err = os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	}

	if err != nil {
		return nil, err
	}

	if err := lockFile(file); err != nil {
		file.Close()
		return nil, err
	}

	disk := &DiskManager{
		file:       file,
		filePath:   filePath,
		mutex:      &sync.Mutex{},
		directIO:   options.DirectIO,
		syncWrites: options.SyncWrites,
		logger:     log,
	}

	if options.RateLimit > 0 {
		disk.limiter = rate.NewLimiter(rate.Limit(options.RateLimit), max(options.RateBurst, PAGE_SIZE))
	}

	if err := disk.load(options.InitialCapacity); err != nil {
		unlockFile(file)
		file.Close()
		return nil, err
	}

	return disk, nil
}

// load derives the capacity from the file size and reads the metadata sidecar.
func (disk *DiskManager) load(initialCapacity uint64) error {

	fileStats, err := disk.file.Stat()
	if err != nil {
		return err
	}

	size := uint64(fileStats.Size())
	disk.capacity = (size + PAGE_SIZE - 1) / PAGE_SIZE

	// a torn trailing page is padded to a full page.
	if size%PAGE_SIZE != 0 {
		if err := disk.file.Truncate(int64(disk.capacity * PAGE_SIZE)); err != nil {
			return fmt.Errorf("%w: %w", ErrCapacityGrowth, err)
		}
	}

	metadata, err := readMetaData(metaDataPath(disk.filePath))
	if err != nil {
		disk.logger.Error("failed to read metadata", "error", err.Error(), "function", "load", "at", "DiskManager")
		return err
	}

	if metadata == nil {
		// every slot already present in an existing file counts as allocated.
		metadata = newMetaData(PageID(disk.capacity))
		disk.logger.Info("no metadata found, deriving allocation state from file size", "pages", disk.capacity, "function", "load", "at", "DiskManager")
	}
	disk.metadata = metadata
	disk.reservedPageId = metadata.NextPageId

	disk.mutex.Lock()
	defer disk.mutex.Unlock()

	return disk.increaseDiskSpace(max(initialCapacity, uint64(metadata.NextPageId)))
}

// ReadPage reads the page with the given ID into buf, which must be exactly PAGE_SIZE bytes long.
func (disk *DiskManager) ReadPage(pageId PageID, buf []byte) error {

	if len(buf) != PAGE_SIZE {
		return ErrInvalidPageBuffer
	}

	disk.mutex.Lock()
	capacity, closed := disk.capacity, disk.closed
	disk.mutex.Unlock()

	if closed {
		return ErrDiskManagerClosed
	}
	if uint64(pageId) >= capacity {
		return fmt.Errorf("%w: page %d, capacity %d", ErrPageOutOfBounds, pageId, capacity)
	}

	disk.throttle()

	target := buf
	if disk.directIO && !isAligned(buf) {
		target = directio.AlignedBlock(PAGE_SIZE)
	}

	// ReadAt issues pread, so concurrent readers never race on the file offset.
	n, err := disk.file.ReadAt(target, int64(pageId)*PAGE_SIZE)

	if err != nil && !(errors.Is(err, io.EOF) && n == PAGE_SIZE) {
		disk.logger.Error("failed to read page", "pageId", pageId, "error", err.Error(), "function", "ReadPage", "at", "DiskManager")
		return err
	}
	if n != PAGE_SIZE {
		return fmt.Errorf("%w: page %d, read %d bytes", ErrShortRead, pageId, n)
	}

	if &target[0] != &buf[0] {
		copy(buf, target)
	}

	return nil
}

// WritePage writes buf, which must be exactly PAGE_SIZE bytes long, to the slot of the given page,
// growing the file first if the slot lies past its end.
func (disk *DiskManager) WritePage(pageId PageID, buf []byte) error {

	if len(buf) != PAGE_SIZE {
		return ErrInvalidPageBuffer
	}

	if err := disk.IncreaseDiskSpace(uint64(pageId) + 1); err != nil {
		return err
	}

	disk.throttle()

	source := buf
	if disk.directIO && !isAligned(buf) {
		source = directio.AlignedBlock(PAGE_SIZE)
		copy(source, buf)
	}

	n, err := disk.file.WriteAt(source, int64(pageId)*PAGE_SIZE)

	if err != nil {
		disk.logger.Error("failed to write page", "pageId", pageId, "error", err.Error(), "function", "WritePage", "at", "DiskManager")
		return err
	}
	if n != PAGE_SIZE {
		return fmt.Errorf("%w: page %d, wrote %d bytes", ErrShortWrite, pageId, n)
	}

	if disk.syncWrites {
		return syncFile(disk.file)
	}

	return nil
}

// IncreaseDiskSpace doubles the file capacity until it covers the given number of pages.
// The file never shrinks.
func (disk *DiskManager) IncreaseDiskSpace(pages uint64) error {

	disk.mutex.Lock()
	defer disk.mutex.Unlock()

	if disk.closed {
		return ErrDiskManagerClosed
	}

	return disk.increaseDiskSpace(pages)
}

func (disk *DiskManager) increaseDiskSpace(pages uint64) error {

	if pages <= disk.capacity {
		return nil
	}

	newCapacity := max(disk.capacity, 1)
	for newCapacity < pages {
		newCapacity *= 2
	}

	if err := disk.file.Truncate(int64(newCapacity * PAGE_SIZE)); err != nil {
		disk.logger.Error("failed to extend file", "pages", newCapacity, "error", err.Error(), "function", "IncreaseDiskSpace", "at", "DiskManager")
		return fmt.Errorf("%w: %w", ErrCapacityGrowth, err)
	}

	disk.logger.Info("increased disk space", "from", disk.capacity, "to", newCapacity, "size", humanize.IBytes(newCapacity*PAGE_SIZE), "function", "IncreaseDiskSpace", "at", "DiskManager")

	disk.capacity = newCapacity
	return nil
}

// AllocatePage returns a fresh page ID and makes sure the file has a zeroed slot for it.
// Page IDs are handed out monotonically and are never reused.
func (disk *DiskManager) AllocatePage() (PageID, error) {

	disk.mutex.Lock()
	defer disk.mutex.Unlock()

	if disk.closed {
		return INVALID_PAGE_ID, ErrDiskManagerClosed
	}

	pageId := disk.metadata.NextPageId

	if err := disk.increaseDiskSpace(uint64(pageId) + 1); err != nil {
		return INVALID_PAGE_ID, err
	}

	if pageId >= disk.reservedPageId {
		if err := disk.reservePageIds(max(PageID(disk.capacity), pageId+1)); err != nil {
			return INVALID_PAGE_ID, err
		}
	}

	disk.metadata.NextPageId++

	disk.logger.Debug("allocated page", "pageId", pageId, "function", "AllocatePage", "at", "DiskManager")

	return pageId, nil
}

// DeallocatePage retires a page ID. A retired ID is not handed out again.
func (disk *DiskManager) DeallocatePage(pageId PageID) {

	disk.mutex.Lock()
	defer disk.mutex.Unlock()

	if pageId < disk.metadata.NextPageId {
		disk.metadata.DeallocatedPageIds[pageId] = struct{}{}
	}
}

// IsAllocated reports whether the page ID was handed out and has not been retired.
func (disk *DiskManager) IsAllocated(pageId PageID) bool {

	disk.mutex.Lock()
	defer disk.mutex.Unlock()

	if pageId >= disk.metadata.NextPageId {
		return false
	}
	_, retired := disk.metadata.DeallocatedPageIds[pageId]
	return !retired
}

// Capacity returns the number of page slots in the backing file.
func (disk *DiskManager) Capacity() uint64 {

	disk.mutex.Lock()
	defer disk.mutex.Unlock()

	return disk.capacity
}

func (disk *DiskManager) FilePath() string {
	return disk.filePath
}

// SyncMetaData persists the allocation state to the sidecar file.
func (disk *DiskManager) SyncMetaData() error {

	disk.mutex.Lock()
	defer disk.mutex.Unlock()

	return disk.syncMetaData()
}

func (disk *DiskManager) syncMetaData() error {

	if err := writeMetaData(metaDataPath(disk.filePath), disk.metadata); err != nil {
		disk.logger.Error("failed to write metadata", "error", err.Error(), "function", "SyncMetaData", "at", "DiskManager")
		return err
	}
	disk.reservedPageId = disk.metadata.NextPageId
	return nil
}

// reservePageIds persists bound as the next page ID before any ID below it is handed out.
// After a crash the file reopens with NextPageId at bound, so IDs in between are skipped rather than reused.
// Must be called with the mutex held.
func (disk *DiskManager) reservePageIds(bound PageID) error {

	reservation := &MetaData{
		NextPageId:         bound,
		DeallocatedPageIds: disk.metadata.DeallocatedPageIds,
	}

	if err := writeMetaData(metaDataPath(disk.filePath), reservation); err != nil {
		disk.logger.Error("failed to reserve page ids", "bound", bound, "error", err.Error(), "function", "AllocatePage", "at", "DiskManager")
		return err
	}

	disk.logger.Debug("reserved page ids", "bound", bound, "function", "AllocatePage", "at", "DiskManager")

	disk.reservedPageId = bound
	return nil
}

// Close writes the metadata sidecar, syncs and unlocks the backing file, then closes it.
// Calling Close more than once is a no-op.
func (disk *DiskManager) Close() error {

	disk.mutex.Lock()
	defer disk.mutex.Unlock()

	if disk.closed {
		return nil
	}
	disk.closed = true

	disk.logger.Info("closing disk manager", "filePath", disk.filePath, "function", "Close", "at", "DiskManager")

	var err error

	if e := disk.syncMetaData(); e != nil {
		err = errors.Join(err, fmt.Errorf("write metadata: %w", e))
	}
	if e := disk.file.Sync(); e != nil {
		err = errors.Join(err, fmt.Errorf("sync file: %w", e))
	}
	if e := unlockFile(disk.file); e != nil {
		err = errors.Join(err, fmt.Errorf("unlock file: %w", e))
	}
	if e := disk.file.Close(); e != nil {
		err = errors.Join(err, fmt.Errorf("close file: %w", e))
	}

	return err
}

// throttle blocks until the rate limiter grants one page worth of bytes.
func (disk *DiskManager) throttle() {

	if disk.limiter == nil {
		return
	}
	// burst is never smaller than PAGE_SIZE and the context never ends, so WaitN cannot fail.
	_ = disk.limiter.WaitN(context.Background(), PAGE_SIZE)
}

// isAligned reports whether buf starts on a directio.AlignSize boundary.
func isAligned(buf []byte) bool {
	alignSize := uintptr(directio.AlignSize)
	if alignSize == 0 || len(buf) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&buf[0]))&(alignSize-1) == 0
}
