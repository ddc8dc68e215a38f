/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

// Package testutil provides helpers for asserting on HTTP responses,
// Prometheus metrics, and network listeners in tests.
package testutil

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tHelper interface {
	Helper()
}

// AssertSamplesCountInHistogram asserts that passed prometheus.Histogram contains the specified number of samples.
func AssertSamplesCountInHistogram(t assert.TestingT, hist prometheus.Histogram, wantSamplesCount int) bool {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	reg := prometheus.NewPedanticRegistry()
	if !assert.NoError(t, reg.Register(hist)) {
		return false
	}
	gotMetrics, err := reg.Gather()
	if !assert.NoError(t, err) {
		return false
	}
	if !assert.Equal(t, 1, len(gotMetrics)) {
		return false
	}
	return assert.Equal(t, wantSamplesCount, int(gotMetrics[0].GetMetric()[0].Histogram.GetSampleCount()))
}

// RequireSamplesCountInHistogram calls AssertSamplesCountInHistogram and fail test immediately in case of error.
func RequireSamplesCountInHistogram(t require.TestingT, hist prometheus.Histogram, wantSamplesCount int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	if AssertSamplesCountInHistogram(t, hist, wantSamplesCount) {
		return
	}
	t.FailNow()
}
