package disk_manager

import (
	"fmt"
	"sync"

	"github.com/Adarsh-Kmt/KestrelDB/logger"
)

type Operation int

const (
	READ Operation = iota
	WRITE
)

func (op Operation) String() string {
	switch op {
	case READ:
		return "READ"
	case WRITE:
		return "WRITE"
	default:
		return fmt.Sprintf("Operation(%d)", int(op))
	}
}

// DiskRequest is a single page read or write handed to the DiskScheduler.
type DiskRequest struct {
	Operation Operation
	PageId    PageID

	// Data is the page buffer read into or written from. It must not be touched
	// by the issuer until Done has delivered a value.
	Data []byte

	// Done receives exactly one value, nil on success.
	Done chan error
}

func NewDiskRequest(op Operation, pageId PageID, data []byte) *DiskRequest {
	return &DiskRequest{
		Operation: op,
		PageId:    pageId,
		Data:      data,
		Done:      make(chan error, 1),
	}
}

// DiskScheduler runs page I/O on a single background goroutine, strictly in submission order.
//
// FIFO order is the only ordering guarantee. A caller that needs to read back a page it is
// writing must wait for the write's Done before scheduling the read, or schedule both from the
// same goroutine.
type DiskScheduler struct {
	disk *DiskManager

	mutex *sync.Mutex
	cond  *sync.Cond

	// a nil entry is the shutdown marker.
	queue  []*DiskRequest
	closed bool

	workerDone chan struct{}
	logger     logger.Logger
}

// NewDiskScheduler starts the background worker.
func NewDiskScheduler(disk *DiskManager, log logger.Logger) *DiskScheduler {

	if log == nil {
		log = logger.Discard
	}

	mutex := &sync.Mutex{}

	scheduler := &DiskScheduler{
		disk:       disk,
		mutex:      mutex,
		cond:       sync.NewCond(mutex),
		queue:      make([]*DiskRequest, 0),
		workerDone: make(chan struct{}),
		logger:     log,
	}

	go scheduler.startWorker()

	log.Info("disk scheduler worker started", "function", "NewDiskScheduler", "at", "DiskScheduler")

	return scheduler
}

// Schedule enqueues a request. After Shutdown the request is rejected: Done receives
// ErrSchedulerClosed and the same error is returned.
//
// A nil Done is replaced by a buffered channel. A caller supplied Done must have room for one
// value, otherwise the request is rejected with ErrUnbufferedDone since the worker never blocks on it.
func (scheduler *DiskScheduler) Schedule(request *DiskRequest) error {

	if request.Done == nil {
		request.Done = make(chan error, 1)
	}
	if cap(request.Done) == 0 {
		return ErrUnbufferedDone
	}

	scheduler.mutex.Lock()

	if scheduler.closed {
		scheduler.mutex.Unlock()
		request.Done <- ErrSchedulerClosed
		return ErrSchedulerClosed
	}

	scheduler.queue = append(scheduler.queue, request)
	scheduler.cond.Signal()
	scheduler.mutex.Unlock()

	return nil
}

// ScheduleAndWait enqueues a request and blocks until the worker has executed it.
func (scheduler *DiskScheduler) ScheduleAndWait(op Operation, pageId PageID, data []byte) error {

	request := NewDiskRequest(op, pageId, data)

	if err := scheduler.Schedule(request); err != nil {
		return err
	}

	return <-request.Done
}

// Pending returns the number of queued requests not yet picked up by the worker.
func (scheduler *DiskScheduler) Pending() int {

	scheduler.mutex.Lock()
	defer scheduler.mutex.Unlock()

	pending := len(scheduler.queue)
	if scheduler.closed && pending > 0 {
		// the shutdown marker is not a request.
		pending--
	}
	return pending
}

// Shutdown enqueues the shutdown marker and waits for the worker to drain every request
// submitted before it. It is safe to call more than once.
func (scheduler *DiskScheduler) Shutdown() {

	scheduler.mutex.Lock()

	if !scheduler.closed {
		scheduler.closed = true
		scheduler.queue = append(scheduler.queue, nil)
		scheduler.cond.Signal()
		scheduler.logger.Info("disk scheduler shutting down", "pending", len(scheduler.queue)-1, "function", "Shutdown", "at", "DiskScheduler")
	}

	scheduler.mutex.Unlock()

	<-scheduler.workerDone
}

func (scheduler *DiskScheduler) startWorker() {

	defer close(scheduler.workerDone)

	for {
		scheduler.mutex.Lock()
		for len(scheduler.queue) == 0 {
			scheduler.cond.Wait()
		}
		request := scheduler.queue[0]
		scheduler.queue[0] = nil
		scheduler.queue = scheduler.queue[1:]
		scheduler.mutex.Unlock()

		if request == nil {
			scheduler.logger.Info("disk scheduler worker stopped", "function", "startWorker", "at", "DiskScheduler")
			return
		}

		request.Done <- scheduler.execute(request)
	}
}

// execute never panics on a malformed request, the error is reported through Done instead.
func (scheduler *DiskScheduler) execute(request *DiskRequest) error {

	scheduler.logger.Debug("executing disk request", "operation", request.Operation.String(), "pageId", request.PageId, "function", "execute", "at", "DiskScheduler")

	var err error

	switch request.Operation {
	case READ:
		err = scheduler.disk.ReadPage(request.PageId, request.Data)
	case WRITE:
		err = scheduler.disk.WritePage(request.PageId, request.Data)
	default:
		err = fmt.Errorf("%w: %s", ErrInvalidOperation, request.Operation)
	}

	if err != nil {
		scheduler.logger.Error("disk request failed", "operation", request.Operation.String(), "pageId", request.PageId, "error", err.Error(), "function", "execute", "at", "DiskScheduler")
	}

	return err
}
