package disk_manager

import "errors"

var (
	ErrCapacityGrowth    = errors.New("could not extend backing file")
	ErrShortRead         = errors.New("incomplete read")
	ErrShortWrite        = errors.New("incomplete write")
	ErrInvalidPageBuffer = errors.New("page buffer must be exactly one page long")
	ErrPageOutOfBounds   = errors.New("page out of bounds")
	ErrInvalidOperation  = errors.New("invalid disk request operation")
	ErrSchedulerClosed   = errors.New("disk scheduler is shut down")
	ErrUnbufferedDone    = errors.New("disk request Done channel must be buffered")
	ErrDatabaseLocked    = errors.New("database file is locked by another process")
	ErrDiskManagerClosed = errors.New("disk manager is closed")
	ErrInvalidMetaData   = errors.New("invalid metadata record")
	ErrChecksumMismatch  = errors.New("metadata checksum mismatch")
)
