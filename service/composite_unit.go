/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package service

import (
	"errors"
	"strings"
	"sync"
)

// CompositeUnit combines several units into one: they are started and stopped together.
type CompositeUnit struct {
	Units []Unit
}

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{units}
}

// Start launches all units concurrently, each in its own goroutine, and blocks
// until every Start invocation returns or one of the units reports an error.
// On a unit error the remaining units are stopped non-gracefully and a single
// CompositeUnitError collecting everything is sent to fatalError.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	unitErrs := make([]chan error, len(cu.Units))
	failed := make(chan struct{}, len(cu.Units))

	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for i := range cu.Units {
		unitErrs[i] = make(chan error, 1)
		go func(unit Unit, unitErr chan error) {
			defer wg.Done()
			unit.Start(unitErr)
			if len(unitErr) != 0 {
				failed <- struct{}{}
			}
		}(cu.Units[i], unitErrs[i])
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	select {
	case <-allDone:
	case <-failed:
	}

	var errs []error
	collectErrs := func() {
		for _, unitErr := range unitErrs {
			select {
			case err := <-unitErr:
				errs = append(errs, err)
			default:
			}
		}
	}
	collectErrs()
	if len(errs) == 0 {
		return
	}

	if stopErr := cu.Stop(false); stopErr != nil {
		var cuErr *CompositeUnitError
		if errors.As(stopErr, &cuErr) {
			errs = append(errs, cuErr.UnitErrors...)
		}
	}
	collectErrs()

	fatalError <- &CompositeUnitError{errs}
}

// Stop stops all units in the composition, each in its own goroutine.
// Errors that occurred while stopping are collected into a single CompositeUnitError.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	stopErrs := make(chan error, len(cu.Units))

	var wg sync.WaitGroup
	wg.Add(len(cu.Units))
	for _, unit := range cu.Units {
		go func(unit Unit) {
			defer wg.Done()
			stopErrs <- unit.Stop(gracefully)
		}(unit)
	}
	wg.Wait()
	close(stopErrs)

	var errs []error
	for err := range stopErrs {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &CompositeUnitError{errs}
	}
	return nil
}

// MustRegisterMetrics registers metrics of all units implementing MetricsRegisterer.
func (cu *CompositeUnit) MustRegisterMetrics() {
	for _, unit := range cu.Units {
		if mr, ok := unit.(MetricsRegisterer); ok {
			mr.MustRegisterMetrics()
		}
	}
}

// UnregisterMetrics unregisters metrics of all units implementing MetricsRegisterer.
func (cu *CompositeUnit) UnregisterMetrics() {
	for _, unit := range cu.Units {
		if mr, ok := unit.(MetricsRegisterer); ok {
			mr.UnregisterMetrics()
		}
	}
}

// CompositeUnitError collects the errors of the units in a composition.
type CompositeUnitError struct {
	UnitErrors []error
}

// Error returns a string representation of a units composition error.
func (cue *CompositeUnitError) Error() string {
	msgs := make([]string, 0, len(cue.UnitErrors))
	for _, err := range cue.UnitErrors {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}
