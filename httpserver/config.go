/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package httpserver

import (
	"fmt"
	"time"

	"github.com/dialcoach/dialcoach/config"
)

const cfgDefaultKeyPrefix = "server"

const (
	cfgKeyServerAddress              = "address"
	cfgKeyServerTimeoutsWrite        = "timeouts.write"
	cfgKeyServerTimeoutsRead         = "timeouts.read"
	cfgKeyServerTimeoutsReadHeader   = "timeouts.readHeader"
	cfgKeyServerTimeoutsIdle         = "timeouts.idle"
	cfgKeyServerTimeoutsShutdown     = "timeouts.shutdown"
	cfgKeyServerLimitsMaxBodySize    = "limits.maxBodySize"
	cfgKeyServerLogRequestStart      = "log.requestStart"
	cfgKeyServerLogExcludedEndpoints = "log.excludedEndpoints"
)

const (
	defaultServerAddress            = ":8080"
	defaultServerTimeoutsWrite      = time.Minute
	defaultServerTimeoutsRead       = time.Second * 15
	defaultServerTimeoutsReadHeader = time.Second * 10
	defaultServerTimeoutsIdle       = time.Minute
	defaultServerTimeoutsShutdown   = time.Second * 5
	defaultServerLimitsMaxBodySize  = 32 * 1024 * 1024 // audio uploads are the largest accepted bodies
)

// Config represents a set of configuration parameters for HTTPServer.
type Config struct {
	Address  string         `mapstructure:"address" yaml:"address" json:"address"`
	Timeouts TimeoutsConfig `mapstructure:"timeouts" yaml:"timeouts" json:"timeouts"`
	Limits   LimitsConfig   `mapstructure:"limits" yaml:"limits" json:"limits"`
	Log      LogConfig      `mapstructure:"log" yaml:"log" json:"log"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix(cfgDefaultKeyPrefix)
}

// NewConfigWithKeyPrefix creates a new instance of the Config with a key prefix.
// This prefix will be used by config.Loader.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for HTTPServer in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyServerAddress, defaultServerAddress)

	dp.SetDefault(cfgKeyServerTimeoutsWrite, defaultServerTimeoutsWrite)
	dp.SetDefault(cfgKeyServerTimeoutsRead, defaultServerTimeoutsRead)
	dp.SetDefault(cfgKeyServerTimeoutsReadHeader, defaultServerTimeoutsReadHeader)
	dp.SetDefault(cfgKeyServerTimeoutsIdle, defaultServerTimeoutsIdle)
	dp.SetDefault(cfgKeyServerTimeoutsShutdown, defaultServerTimeoutsShutdown)

	dp.SetDefault(cfgKeyServerLimitsMaxBodySize, config.ByteSize(defaultServerLimitsMaxBodySize).String())

	dp.SetDefault(cfgKeyServerLogRequestStart, false)
}

// Set sets server configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Address, err = dp.GetString(cfgKeyServerAddress); err != nil {
		return err
	}
	if err = c.Timeouts.Set(dp); err != nil {
		return err
	}
	if err = c.Limits.Set(dp); err != nil {
		return err
	}
	if err = c.Log.Set(dp); err != nil {
		return err
	}

	return nil
}

// TimeoutsConfig represents a set of configuration parameters for HTTPServer relating to timeouts.
type TimeoutsConfig struct {
	Write      config.TimeDuration `mapstructure:"write" yaml:"write" json:"write"`
	Read       config.TimeDuration `mapstructure:"read" yaml:"read" json:"read"`
	ReadHeader config.TimeDuration `mapstructure:"readHeader" yaml:"readHeader" json:"readHeader"`
	Idle       config.TimeDuration `mapstructure:"idle" yaml:"idle" json:"idle"`
	Shutdown   config.TimeDuration `mapstructure:"shutdown" yaml:"shutdown" json:"shutdown"`
}

// Set sets timeout server configuration values from config.DataProvider.
func (t *TimeoutsConfig) Set(dp config.DataProvider) error {
	var err error
	var dur time.Duration

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsWrite); err != nil {
		return err
	}
	t.Write = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsRead); err != nil {
		return err
	}
	t.Read = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsReadHeader); err != nil {
		return err
	}
	t.ReadHeader = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsIdle); err != nil {
		return err
	}
	t.Idle = config.TimeDuration(dur)

	if dur, err = dp.GetDuration(cfgKeyServerTimeoutsShutdown); err != nil {
		return err
	}
	t.Shutdown = config.TimeDuration(dur)

	return nil
}

// LimitsConfig represents a set of configuration parameters for HTTPServer relating to limits.
type LimitsConfig struct {
	// MaxBodySizeBytes is the maximum size of the request body in bytes.
	MaxBodySizeBytes config.ByteSize `mapstructure:"maxBodySize" yaml:"maxBodySize" json:"maxBodySize"`
}

// Set sets limit server configuration values from config.DataProvider.
func (l *LimitsConfig) Set(dp config.DataProvider) error {
	maxBodySize, err := dp.GetSizeInBytes(cfgKeyServerLimitsMaxBodySize)
	if err != nil {
		return dp.WrapKeyErr(cfgKeyServerLimitsMaxBodySize, err)
	}
	if maxBodySize == 0 {
		return dp.WrapKeyErr(cfgKeyServerLimitsMaxBodySize, fmt.Errorf("maxBodySize must be positive"))
	}
	l.MaxBodySizeBytes = config.ByteSize(maxBodySize)
	return nil
}

// LogConfig represents a set of configuration parameters for HTTPServer relating to logging.
type LogConfig struct {
	RequestStart      bool     `mapstructure:"requestStart" yaml:"requestStart" json:"requestStart"`
	ExcludedEndpoints []string `mapstructure:"excludedEndpoints" yaml:"excludedEndpoints" json:"excludedEndpoints"`
}

// Set sets log server configuration values from config.DataProvider.
func (l *LogConfig) Set(dp config.DataProvider) error {
	var err error

	if l.RequestStart, err = dp.GetBool(cfgKeyServerLogRequestStart); err != nil {
		return err
	}
	if l.ExcludedEndpoints, err = dp.GetStringSlice(cfgKeyServerLogExcludedEndpoints); err != nil {
		return err
	}

	return nil
}
