/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package service

import (
	"context"
)

// WorkerUnit presents a Worker as a Unit: Start blocks in the worker's Run,
// and Stop cancels the context the worker was started with.
type WorkerUnit struct {
	worker    Worker
	ctx       context.Context
	ctxCancel context.CancelFunc
	runDone   chan struct{}
}

// NewWorkerUnit creates a new instance of WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	ctx, ctxCancel := context.WithCancel(context.Background())
	return &WorkerUnit{
		worker:    worker,
		ctx:       ctx,
		ctxCancel: ctxCancel,
		runDone:   make(chan struct{}),
	}
}

// Start runs the underlying Worker and blocks until its Run returns.
// A non-nil error from Run is reported as fatal.
func (u *WorkerUnit) Start(fatalError chan<- error) {
	defer close(u.runDone)
	if err := u.worker.Run(u.ctx); err != nil {
		fatalError <- err
	}
}

// Stop cancels the underlying Worker's context.
// A graceful stop additionally waits until Run returns.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.ctxCancel()
	if gracefully {
		<-u.runDone
	}
	return nil
}
