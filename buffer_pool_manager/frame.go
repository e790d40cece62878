package buffer_pool_manager

import (
	"sync"
	"sync/atomic"

	"github.com/Adarsh-Kmt/KestrelDB/disk_manager"
	"github.com/ncw/directio"
)

type PageID = disk_manager.PageID

type FrameID int

const (
	PAGE_SIZE       = disk_manager.PAGE_SIZE
	INVALID_PAGE_ID = disk_manager.INVALID_PAGE_ID
)

// Frame is one page sized slot of the buffer pool.
type Frame struct {
	frameId FrameID

	// pageId is only changed under the buffer pool mutex. It is atomic so a goroutine that
	// waited on the latch can check whether the frame still holds the page it asked for.
	pageId atomic.Uint64

	// guarded by the buffer pool mutex.
	pinCount int

	dirty atomic.Bool

	// mutex is the page latch over data. It is only taken through guards, or by the buffer
	// pool on a frame it has pinned. A frame with a pin count of zero is never latched.
	mutex *sync.RWMutex

	// aligned to the block size so the same buffer works for direct I/O.
	data []byte
}

func newFrame(frameId FrameID) *Frame {

	frame := &Frame{
		frameId: frameId,
		mutex:   &sync.RWMutex{},
		data:    directio.AlignedBlock(PAGE_SIZE),
	}
	frame.pageId.Store(uint64(INVALID_PAGE_ID))

	return frame
}

func (frame *Frame) getPageId() PageID {
	return PageID(frame.pageId.Load())
}

func (frame *Frame) setPageId(pageId PageID) {
	frame.pageId.Store(uint64(pageId))
}

// reset unmaps the frame and zeroes its memory. The caller must own the frame,
// either through the latch or because nothing has it pinned.
func (frame *Frame) reset() {
	frame.setPageId(INVALID_PAGE_ID)
	frame.dirty.Store(false)
	clear(frame.data)
}

type latchMode int

const (
	SHARED latchMode = iota
	EXCLUSIVE
)

func (frame *Frame) latch(mode latchMode) {
	if mode == SHARED {
		frame.mutex.RLock()
	} else {
		frame.mutex.Lock()
	}
}

func (frame *Frame) unlatch(mode latchMode) {
	if mode == SHARED {
		frame.mutex.RUnlock()
	} else {
		frame.mutex.Unlock()
	}
}
