package disk_manager

import "github.com/Adarsh-Kmt/KestrelDB/logger"

const (
	PAGE_SIZE = 4096

	// number of pages a brand new file is extended to.
	DEFAULT_INITIAL_CAPACITY = 16
)

// Options configures a DiskManager.
type Options struct {
	Logger logger.Logger

	// DirectIO opens the backing file with O_DIRECT (F_NOCACHE on darwin),
	// bypassing the kernel page cache.
	DirectIO bool

	// SyncWrites fsyncs the backing file after every page write.
	SyncWrites bool

	InitialCapacity uint64

	// RateLimit caps page I/O in bytes per second, 0 disables the limiter.
	RateLimit int
	// RateBurst is the token bucket size in bytes. It is raised to PAGE_SIZE if smaller.
	RateBurst int
}

// DefaultOptions returns buffered I/O without a rate limiter.
func DefaultOptions() Options {
	return Options{
		Logger:          logger.Default(),
		InitialCapacity: DEFAULT_INITIAL_CAPACITY,
	}
}

// Option configures Options using the functional options pattern.
type Option func(*Options)

func WithLogger(log logger.Logger) Option {
	return func(opts *Options) {
		opts.Logger = log
	}
}

func WithDirectIO(enabled bool) Option {
	return func(opts *Options) {
		opts.DirectIO = enabled
	}
}

func WithSyncWrites(enabled bool) Option {
	return func(opts *Options) {
		opts.SyncWrites = enabled
	}
}

// WithInitialCapacity sets the page count a new or smaller file is grown to on open.
func WithInitialCapacity(pages uint64) Option {
	return func(opts *Options) {
		opts.InitialCapacity = pages
	}
}

// WithRateLimit throttles page reads and writes to bytesPerSecond.
func WithRateLimit(bytesPerSecond int, burst int) Option {
	return func(opts *Options) {
		opts.RateLimit = bytesPerSecond
		opts.RateBurst = burst
	}
}
