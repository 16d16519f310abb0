// internal/services/dispatcher.go
package services

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrQueueFull = errors.New("sync queue is full")

// OperationExecutor runs a queued sync operation to completion. Implemented
// by SyncService; the indirection keeps the dispatcher free of database
// concerns.
type OperationExecutor interface {
	Execute(ctx context.Context, operationID uuid.UUID)
}

// Dispatcher owns the bounded work queue and the worker pool that drains it.
// Each running operation gets its own cancellable context so a single
// operation can be stopped without touching its siblings.
type Dispatcher struct {
	queue    chan uuid.UUID
	workers  int
	executor OperationExecutor

	cancels sync.Map // uuid.UUID -> context.CancelFunc

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(executor OperationExecutor, queueSize, workers int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workers <= 0 {
		workers = 4
	}
	return &Dispatcher{
		queue:    make(chan uuid.UUID, queueSize),
		workers:  workers,
		executor: executor,
	}
}

func (d *Dispatcher) Start() {
	d.baseCtx, d.stop = context.WithCancel(context.Background())
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	logrus.WithField("workers", d.workers).Info("Sync dispatcher started")
}

// Stop cancels running operations and waits for the workers to drain.
func (d *Dispatcher) Stop() {
	if d.stop != nil {
		d.stop()
	}
	close(d.queue)
	d.wg.Wait()
	logrus.Info("Sync dispatcher stopped")
}

// Enqueue submits an operation without blocking; a full queue is an error the
// caller surfaces instead of an invisible stall.
func (d *Dispatcher) Enqueue(operationID uuid.UUID) error {
	select {
	case d.queue <- operationID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel stops a running operation. Returns false when the operation is not
// currently executing on any worker.
func (d *Dispatcher) Cancel(operationID uuid.UUID) bool {
	if cancel, ok := d.cancels.Load(operationID); ok {
		cancel.(context.CancelFunc)()
		return true
	}
	return false
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for operationID := range d.queue {
		opCtx, cancel := context.WithCancel(d.baseCtx)
		d.cancels.Store(operationID, cancel)

		logrus.WithFields(logrus.Fields{
			"worker":       id,
			"operation_id": operationID,
		}).Debug("Worker picked up operation")

		d.executor.Execute(opCtx, operationID)

		d.cancels.Delete(operationID)
		cancel()
	}
}
