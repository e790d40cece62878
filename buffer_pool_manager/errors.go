package buffer_pool_manager

import "errors"

var (
	ErrOutOfFrames       = errors.New("no free or evictable frame available")
	ErrPageNotFound      = errors.New("page not found")
	ErrPageInUse         = errors.New("page is pinned")
	ErrIO                = errors.New("disk I/O failed")
	ErrInvalidPoolSize   = errors.New("pool size must be positive")
	ErrInvalidK          = errors.New("k must be positive")
	ErrBufferPoolClosed  = errors.New("buffer pool manager is closed")
	errPageAlreadyLoaded = errors.New("page was loaded by another goroutine")
)
