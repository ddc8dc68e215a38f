/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package main

import (
	"fmt"
	"time"

	"github.com/dialcoach/dialcoach/coach"
	"github.com/dialcoach/dialcoach/config"
	"github.com/dialcoach/dialcoach/httpserver"
	"github.com/dialcoach/dialcoach/log"
	"github.com/dialcoach/dialcoach/ratelimit"
	"github.com/dialcoach/dialcoach/storage"
	"github.com/dialcoach/dialcoach/transcribe"
)

const cfgDefaultAPIKeyPrefix = "api"

const (
	cfgKeyQuotaLimit       = "quota.limit"
	cfgKeyQuotaWindow      = "quota.window"
	cfgKeyQuotaRoutes      = "quota.routes"
	cfgKeyRateLimitMaxReqs = "rateLimit.maxRequests"
	cfgKeyRateLimitWindow  = "rateLimit.window"
)

// Default values.
const (
	DefaultQuotaLimit       = 100
	DefaultQuotaWindow      = time.Hour
	DefaultRateLimitMaxReqs = 100
	DefaultRateLimitWindow  = time.Second
)

var defaultQuotaRoutes = []string{"/api/dialcoach/*"}

// QuotaConfig is the per-user fixed-window quota configuration.
type QuotaConfig struct {
	Limit  int                 `mapstructure:"limit" yaml:"limit" json:"limit"`
	Window config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`
	Routes []string            `mapstructure:"routes" yaml:"routes" json:"routes"`
}

// RateLimitConfig is the global flood-protection rate limit configuration.
type RateLimitConfig struct {
	MaxRequests int                 `mapstructure:"maxRequests" yaml:"maxRequests" json:"maxRequests"`
	Window      config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`
}

// APIConfig holds the API usage limits.
type APIConfig struct {
	Quota     QuotaConfig     `mapstructure:"quota" yaml:"quota" json:"quota"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`

	keyPrefix string
}

var _ config.Config = (*APIConfig)(nil)
var _ config.KeyPrefixProvider = (*APIConfig)(nil)

// NewAPIConfig creates a new instance of the APIConfig.
func NewAPIConfig() *APIConfig {
	return &APIConfig{keyPrefix: cfgDefaultAPIKeyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *APIConfig) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultAPIKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *APIConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyQuotaLimit, DefaultQuotaLimit)
	dp.SetDefault(cfgKeyQuotaWindow, DefaultQuotaWindow.String())
	dp.SetDefault(cfgKeyQuotaRoutes, defaultQuotaRoutes)
	dp.SetDefault(cfgKeyRateLimitMaxReqs, DefaultRateLimitMaxReqs)
	dp.SetDefault(cfgKeyRateLimitWindow, DefaultRateLimitWindow.String())
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *APIConfig) Set(dp config.DataProvider) error {
	var err error

	if c.Quota.Limit, err = dp.GetInt(cfgKeyQuotaLimit); err != nil {
		return err
	}
	if c.Quota.Limit <= 0 {
		return dp.WrapKeyErr(cfgKeyQuotaLimit, fmt.Errorf("must be positive"))
	}

	var d time.Duration
	if d, err = dp.GetDuration(cfgKeyQuotaWindow); err != nil {
		return err
	}
	if d <= 0 {
		return dp.WrapKeyErr(cfgKeyQuotaWindow, fmt.Errorf("must be positive"))
	}
	c.Quota.Window = config.TimeDuration(d)

	if c.Quota.Routes, err = dp.GetStringSlice(cfgKeyQuotaRoutes); err != nil {
		return err
	}

	if c.RateLimit.MaxRequests, err = dp.GetInt(cfgKeyRateLimitMaxReqs); err != nil {
		return err
	}
	if c.RateLimit.MaxRequests < 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitMaxReqs, fmt.Errorf("must not be negative"))
	}

	if d, err = dp.GetDuration(cfgKeyRateLimitWindow); err != nil {
		return err
	}
	if d <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimitWindow, fmt.Errorf("must be positive"))
	}
	c.RateLimit.Window = config.TimeDuration(d)

	return nil
}

// MaxRate returns the global rate limit in the form the HTTP server expects.
// Zero Count disables the limiting.
func (c *APIConfig) MaxRate() ratelimit.Rate {
	return ratelimit.Rate{Count: c.RateLimit.MaxRequests, Duration: time.Duration(c.RateLimit.Window)}
}

// AppConfig is the top-level configuration of dialcoachd.
type AppConfig struct {
	Server     *httpserver.Config
	Log        *log.Config
	Storage    *storage.Config
	Transcribe *transcribe.Config
	Coach      *coach.Config
	API        *APIConfig
}

// NewAppConfig creates a new AppConfig with all sections initialized.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Server:     httpserver.NewConfig(),
		Log:        log.NewConfig(),
		Storage:    storage.NewConfig(),
		Transcribe: transcribe.NewConfig(),
		Coach:      coach.NewConfig(),
		API:        NewAPIConfig(),
	}
}

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}
