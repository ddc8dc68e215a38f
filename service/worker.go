/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/dialcoach/dialcoach/log"
)

// ErrPeriodicWorkerStop stops the PeriodicWorker's loop
// when the underlying worker returns it.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker")

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run is a part of Worker interface.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker invokes the underlying worker with a constant interval between runs.
// It implements Worker itself, so it can be wrapped into a WorkerUnit like any other worker.
type PeriodicWorker struct {
	worker   Worker
	interval time.Duration
	logger   log.FieldLogger
}

// NewPeriodicWorker creates a new instance of PeriodicWorker.
func NewPeriodicWorker(worker Worker, interval time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return &PeriodicWorker{worker: worker, interval: interval, logger: logger}
}

// Run runs the underlying worker every interval until ctx is canceled
// or the worker returns ErrPeriodicWorkerStop.
// Other errors from the worker are logged and the loop continues.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", stack))
			panic(p)
		}
	}()

	pw.logger.Info("running periodic worker", log.Duration("interval", pw.interval))

	// The first run happens without a delay.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			pw.logger.Info("periodic worker stopped")
			return nil
		case <-timer.C:
		}

		if err := pw.worker.Run(ctx); err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) {
				pw.logger.Info("periodic worker stopped")
				return nil
			}
			pw.logger.Error("periodic worker iteration failed", log.Error(err))
		}

		timer.Reset(pw.interval)
	}
}
