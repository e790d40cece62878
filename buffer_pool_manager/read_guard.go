package buffer_pool_manager

// ReadGuard is used to provide shared read access to a page stored in a frame in the buffer pool manager.
// A guard is not safe for use by multiple goroutines.
type ReadGuard struct {
	active     bool
	page       *Frame
	pageId     PageID
	bufferPool *BufferPoolManager
}

// NewReadGuard returns an active read guard.
// All guards corresponding to a page share a RW lock, so the call blocks while a writer holds the page.
func (bufferPool *BufferPoolManager) NewReadGuard(pageId PageID) (*ReadGuard, error) {

	page, err := bufferPool.fetchPage(pageId, SHARED)

	if err != nil {
		bufferPool.logger.Debug("failed to fetch page for read guard", "pageId", pageId, "error", err.Error(), "function", "NewReadGuard", "at", "BufferPoolManager")
		return nil, err
	}

	guard := &ReadGuard{
		active:     true,
		page:       page,
		pageId:     pageId,
		bufferPool: bufferPool,
	}

	return guard, nil
}

// IsActive returns false once Done has been called.
func (guard *ReadGuard) IsActive() bool {
	return guard.active
}

// GetPageId returns the page ID of the page corresponding to the read guard.
func (guard *ReadGuard) GetPageId() PageID {

	if !guard.active {
		return INVALID_PAGE_ID
	}

	return guard.pageId
}

// GetData returns the page contents. The slice must not be modified, and must not be used after Done.
func (guard *ReadGuard) GetData() []byte {

	if !guard.active {
		return nil
	}

	return guard.page.data
}

// Done releases the shared lock, then decreases the pin count of the page.
// A guard becomes inactive and cannot be reused if this function returns true.
func (guard *ReadGuard) Done() bool {

	if !guard.active {
		return false
	}
	guard.active = false

	guard.page.mutex.RUnlock()
	guard.bufferPool.unpinFrame(guard.page)

	guard.page = nil
	guard.bufferPool = nil

	return true
}
