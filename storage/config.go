/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package storage

import (
	"fmt"
	"time"

	"github.com/dialcoach/dialcoach/config"
)

const cfgDefaultKeyPrefix = "storage"

const (
	cfgKeyPath        = "path"
	cfgKeyBusyTimeout = "busyTimeout"
)

// Default values.
const (
	DefaultPath        = "dialcoach.db"
	DefaultBusyTimeout = 5 * time.Second
)

// Config represents a set of configuration parameters for the SQLite storage.
type Config struct {
	// Path is the SQLite database file path. ":memory:" gives a private in-memory database.
	Path string `mapstructure:"path" yaml:"path" json:"path"`

	// BusyTimeout is how long a connection waits on a locked database before failing.
	BusyTimeout config.TimeDuration `mapstructure:"busyTimeout" yaml:"busyTimeout" json:"busyTimeout"`

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return &Config{keyPrefix: cfgDefaultKeyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig() *Config {
	return &Config{
		keyPrefix:   cfgDefaultKeyPrefix,
		Path:        DefaultPath,
		BusyTimeout: config.TimeDuration(DefaultBusyTimeout),
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for storage in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyPath, DefaultPath)
	dp.SetDefault(cfgKeyBusyTimeout, DefaultBusyTimeout.String())
}

// Set sets storage configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.Path, err = dp.GetString(cfgKeyPath); err != nil {
		return err
	}
	if c.Path == "" {
		return dp.WrapKeyErr(cfgKeyPath, fmt.Errorf("cannot be empty"))
	}

	var busyTimeout time.Duration
	if busyTimeout, err = dp.GetDuration(cfgKeyBusyTimeout); err != nil {
		return err
	}
	if busyTimeout < 0 {
		return dp.WrapKeyErr(cfgKeyBusyTimeout, fmt.Errorf("cannot be negative"))
	}
	c.BusyTimeout = config.TimeDuration(busyTimeout)

	return nil
}
