/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dialcoach/dialcoach/log"
)

// Service registers the unit's metrics, starts the unit,
// and stops it gracefully on SIGINT/SIGTERM or context cancellation.
type Service struct {
	unit    Unit
	signals chan os.Signal
	logger  log.FieldLogger
}

// New creates a new Service which will start and stop the passed unit.
func New(logger log.FieldLogger, unit Unit) *Service {
	return &Service{
		unit:    unit,
		signals: make(chan os.Signal, 1),
		logger:  logger,
	}
}

// Start wraps StartContext using the background context.
func (s *Service) Start() error {
	return s.StartContext(context.Background())
}

// StartContext starts the service unit in a separate goroutine and
// blocks until a fatal error occurs, a shutdown signal is received, or ctx is canceled.
func (s *Service) StartContext(ctx context.Context) error {
	if mr, ok := s.unit.(MetricsRegisterer); ok {
		mr.MustRegisterMetrics()
		defer mr.UnregisterMetrics()
	}

	fatalError := make(chan error, 1)

	go s.unit.Start(fatalError)

	signal.Notify(s.signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.signals)

	select {
	case <-ctx.Done():
		s.logger.Info("context is canceled, service will be stopped")
		if err := s.unit.Stop(true); err != nil {
			return fmt.Errorf("stop service gracefully: %w", err)
		}
	case err := <-fatalError:
		s.logger.Error("service fatal error", log.Error(err))
		return fmt.Errorf("fatal error: %w", err)
	case sig := <-s.signals:
		s.logger.Info("service got signal", log.String("signal", sig.String()))
		if err := s.unit.Stop(true); err != nil {
			return fmt.Errorf("stop service gracefully: %w", err)
		}
	}

	return nil
}
