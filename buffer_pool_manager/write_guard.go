package buffer_pool_manager

import "fmt"

// WriteGuard is used to provide exclusive write access to a page stored in a frame in the buffer pool manager.
// A guard is not safe for use by multiple goroutines.
type WriteGuard struct {

	// active is used to prevent users from using a write guard once it's Done/DeletePage function has been called.
	active     bool
	page       *Frame
	pageId     PageID
	bufferPool *BufferPoolManager
}

// NewWriteGuard returns an active write guard.
// All guards corresponding to a page share a RW lock, so the call blocks while any other guard holds the page.
func (bufferPool *BufferPoolManager) NewWriteGuard(pageId PageID) (*WriteGuard, error) {

	page, err := bufferPool.fetchPage(pageId, EXCLUSIVE)

	if err != nil {
		bufferPool.logger.Debug("failed to fetch page for write guard", "pageId", pageId, "error", err.Error(), "function", "NewWriteGuard", "at", "BufferPoolManager")
		return nil, err
	}

	guard := &WriteGuard{
		active:     true,
		page:       page,
		pageId:     pageId,
		bufferPool: bufferPool,
	}

	return guard, nil
}

// IsActive returns false once Done or a successful DeletePage has been called.
func (guard *WriteGuard) IsActive() bool {
	return guard.active
}

// GetPageId returns the page ID of the page corresponding to the write guard.
func (guard *WriteGuard) GetPageId() PageID {

	if !guard.active {
		return INVALID_PAGE_ID
	}

	return guard.pageId
}

// GetData returns the page contents without marking the page dirty.
func (guard *WriteGuard) GetData() []byte {

	if !guard.active {
		return nil
	}

	return guard.page.data
}

// GetDataMut returns the page contents for modification and marks the page dirty.
func (guard *WriteGuard) GetDataMut() []byte {

	if !guard.active {
		return nil
	}

	guard.page.dirty.Store(true)

	return guard.page.data
}

// SetDirtyFlag is used to set the dirty flag of the frame in the buffer pool manager
// where the page is stored.
func (guard *WriteGuard) SetDirtyFlag() bool {

	if !guard.active {
		return false
	}

	guard.page.dirty.Store(true)

	return true
}

// Flush writes the page to disk if it is dirty, while keeping the exclusive lock.
func (guard *WriteGuard) Flush() error {

	if !guard.active {
		return fmt.Errorf("%w: inactive write guard", ErrPageNotFound)
	}

	return guard.bufferPool.writeBack(guard.page)
}

// DeletePage deletes the page while the guard still holds it.
// It fails with ErrPageInUse if any other guard has the page pinned.
// A guard becomes inactive and cannot be reused if this function returns true.
func (guard *WriteGuard) DeletePage() (bool, error) {

	if !guard.active {
		return false, fmt.Errorf("%w: inactive write guard", ErrPageNotFound)
	}

	pool := guard.bufferPool

	pool.mutex.Lock()
	defer pool.mutex.Unlock()

	if guard.page.pinCount != 1 {
		return false, fmt.Errorf("%w: page %d has %d pins", ErrPageInUse, guard.pageId, guard.page.pinCount)
	}

	guard.page.pinCount = 0
	pool.retireFrame(guard.page)

	// unlatched under the pool mutex, so the frame cannot be handed out before the latch is free.
	guard.page.mutex.Unlock()

	guard.active = false
	guard.page = nil
	guard.bufferPool = nil

	return true, nil
}

// Done releases the exclusive lock, then decreases the pin count of the page.
// A guard becomes inactive and cannot be reused if this function returns true.
func (guard *WriteGuard) Done() bool {

	if !guard.active {
		return false
	}
	guard.active = false

	guard.page.mutex.Unlock()
	guard.bufferPool.unpinFrame(guard.page)

	guard.page = nil
	guard.bufferPool = nil

	return true
}
