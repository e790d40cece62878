package buffer_pool_manager

import (
	"github.com/Adarsh-Kmt/KestrelDB/disk_manager"
	"github.com/Adarsh-Kmt/KestrelDB/logger"
)

// Options configures a BufferPoolManager.
type Options struct {
	Logger logger.Logger

	// DiskOptions are passed to the disk manager after the pool's logger,
	// so they can override it.
	DiskOptions []disk_manager.Option
}

func DefaultOptions() Options {
	return Options{
		Logger: logger.Default(),
	}
}

type Option func(*Options)

func WithLogger(log logger.Logger) Option {
	return func(opts *Options) {
		opts.Logger = log
	}
}

func WithDiskOptions(diskOptions ...disk_manager.Option) Option {
	return func(opts *Options) {
		opts.DiskOptions = append(opts.DiskOptions, diskOptions...)
	}
}
