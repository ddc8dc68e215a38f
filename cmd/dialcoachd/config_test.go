/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dialcoach/dialcoach/config"
)

func TestAppConfigDefaults(t *testing.T) {
	cfg := NewAppConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewReader(nil), config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.Equal(t, DefaultQuotaLimit, cfg.API.Quota.Limit)
	require.Equal(t, DefaultQuotaWindow, time.Duration(cfg.API.Quota.Window))
	require.Equal(t, defaultQuotaRoutes, cfg.API.Quota.Routes)
	require.Equal(t, DefaultRateLimitMaxReqs, cfg.API.RateLimit.MaxRequests)
	require.Equal(t, DefaultRateLimitWindow, time.Duration(cfg.API.RateLimit.Window))
	require.Equal(t, ":8080", cfg.Server.Address)
}

func TestAppConfigFromYAML(t *testing.T) {
	cfgData := bytes.NewBufferString(`
server:
  address: ":9090"
api:
  quota:
    limit: 25
    window: 30m
    routes:
      - /api/dialcoach/v1/recordings/*/feedback
  rateLimit:
    maxRequests: 0
`)
	cfg := NewAppConfig()
	err := config.NewDefaultLoader("").LoadFromReader(cfgData, config.DataTypeYAML, cfg)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Server.Address)
	require.Equal(t, 25, cfg.API.Quota.Limit)
	require.Equal(t, 30*time.Minute, time.Duration(cfg.API.Quota.Window))
	require.Equal(t, []string{"/api/dialcoach/v1/recordings/*/feedback"}, cfg.API.Quota.Routes)
	require.Equal(t, 0, cfg.API.RateLimit.MaxRequests)
	require.Equal(t, 0, cfg.API.MaxRate().Count)
}

func TestAPIConfigInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "non-positive quota limit",
			yaml:    "api:\n  quota:\n    limit: 0\n",
			wantErr: "quota.limit",
		},
		{
			name:    "non-positive quota window",
			yaml:    "api:\n  quota:\n    window: 0s\n",
			wantErr: "quota.window",
		},
		{
			name:    "negative rate limit",
			yaml:    "api:\n  rateLimit:\n    maxRequests: -1\n",
			wantErr: "rateLimit.maxRequests",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewAppConfig()
			err := config.NewDefaultLoader("").LoadFromReader(
				bytes.NewBufferString(tt.yaml), config.DataTypeYAML, cfg)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}
