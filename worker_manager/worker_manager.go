package worker_manager

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/fornellas/slogxt/log"
)

type workerType struct {
	name  string
	fn    func(context.Context) error
	errCh chan error
}

// WorkerManager manages a group of workers and coordinates their execution: when any worker
// returns, all others are cancelled.
type WorkerManager struct {
	mu         sync.Mutex
	workers    []*workerType
	doneCh     chan struct{}
	cancelFunc context.CancelFunc
}

func NewWorkerManager() *WorkerManager {
	return &WorkerManager{
		doneCh: make(chan struct{}),
	}
}

// AddWorker must be called before Start.
func (wm *WorkerManager) AddWorker(name string, fn func(context.Context) error) {
	wm.workers = append(wm.workers, &workerType{name: name, fn: fn})
}

func (wm *WorkerManager) Start(ctx context.Context) {
	ctx, logger := log.MustWithGroup(ctx, "Worker Manager > Workers")
	logger.Debug("Starting workers")

	groupCtx, cancelFunc := context.WithCancel(ctx)
	wm.mu.Lock()
	wm.cancelFunc = cancelFunc
	wm.mu.Unlock()
	go func() {
		<-groupCtx.Done()
		close(wm.doneCh)
	}()

	for _, worker := range wm.workers {
		workerCtx, workerLogger := log.MustWithGroup(groupCtx, worker.name)
		worker.errCh = make(chan error, 1)
		go func() {
			var err error
			defer func() {
				if r := recover(); r != nil {
					workerLogger.Error("Panic", "recovered", r, "stack", string(debug.Stack()))
					err = fmt.Errorf("panic: %v", r)
				}
				workerLogger.Debug("Finished", "err", err)
				cancelFunc()
				worker.errCh <- err
			}()
			workerLogger.Debug("Starting")
			err = worker.fn(workerCtx)
		}()
	}
	logger.Debug("All workers started")
}

// Done is closed once workers start to be cancelled, either by Cancel or because one returned.
func (wm *WorkerManager) Done() <-chan struct{} {
	return wm.doneCh
}

// Cancel cancels all workers.
func (wm *WorkerManager) Cancel(ctx context.Context) {
	logger := log.MustLogger(ctx).WithGroup("Worker Manager > Cancel")
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if wm.cancelFunc == nil {
		return
	}
	logger.Debug("Cancelling")
	wm.cancelFunc()
}

// Wait blocks until all workers return, and returns their errors by name.
func (wm *WorkerManager) Wait(ctx context.Context) map[string]error {
	logger := log.MustLogger(ctx).WithGroup("Worker Manager > Wait")
	logger.Debug("Waiting for all workers")
	errMap := map[string]error{}
	for _, worker := range wm.workers {
		if worker.errCh == nil {
			continue
		}
		logger.Debug("Waiting", "name", worker.name)
		errMap[worker.name] = <-worker.errCh
	}
	wm.workers = nil
	logger.Debug("All workers returned")
	return errMap
}

// Err joins errors returned by Wait, ignoring context cancellation.
func Err(errMap map[string]error) error {
	var err error
	for name, workerErr := range errMap {
		if errors.Is(workerErr, context.Canceled) {
			continue
		}
		if workerErr != nil {
			err = errors.Join(err, fmt.Errorf("%s: %w", name, workerErr))
		}
	}
	return err
}
