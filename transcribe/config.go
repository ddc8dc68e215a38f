/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package transcribe

import (
	"fmt"
	"time"

	"github.com/dialcoach/dialcoach/config"
)

const cfgDefaultKeyPrefix = "transcribe"

const (
	cfgKeyBaseURL      = "baseUrl"
	cfgKeyAPIKey       = "apiKey"
	cfgKeyRateLimit    = "rateLimit"
	cfgKeyPollInterval = "pollInterval"
	cfgKeyPollTimeout  = "pollTimeout"
)

// Default values.
const (
	DefaultRateLimit    = 5
	DefaultPollInterval = 3 * time.Second
	DefaultPollTimeout  = 10 * time.Minute
)

// Config represents a set of configuration parameters for the transcription provider client.
type Config struct {
	BaseURL      string              `mapstructure:"baseUrl" yaml:"baseUrl" json:"baseUrl"`
	APIKey       string              `mapstructure:"apiKey" yaml:"apiKey" json:"apiKey"`
	RateLimit    int                 `mapstructure:"rateLimit" yaml:"rateLimit" json:"rateLimit"`
	PollInterval config.TimeDuration `mapstructure:"pollInterval" yaml:"pollInterval" json:"pollInterval"`
	PollTimeout  config.TimeDuration `mapstructure:"pollTimeout" yaml:"pollTimeout" json:"pollTimeout"`

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
		keyPrefix:    cfgDefaultKeyPrefix,
		RateLimit:    DefaultRateLimit,
		PollInterval: config.TimeDuration(DefaultPollInterval),
		PollTimeout:  config.TimeDuration(DefaultPollTimeout),
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

// SetProviderDefaults sets default configuration values in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRateLimit, DefaultRateLimit)
	dp.SetDefault(cfgKeyPollInterval, DefaultPollInterval.String())
	dp.SetDefault(cfgKeyPollTimeout, DefaultPollTimeout.String())
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	if c.APIKey, err = dp.GetString(cfgKeyAPIKey); err != nil {
		return err
	}

	if c.RateLimit, err = dp.GetInt(cfgKeyRateLimit); err != nil {
		return err
	}
	if c.RateLimit <= 0 {
		return dp.WrapKeyErr(cfgKeyRateLimit, fmt.Errorf("must be positive"))
	}

	var d time.Duration
	if d, err = dp.GetDuration(cfgKeyPollInterval); err != nil {
		return err
	}
	if d <= 0 {
		return dp.WrapKeyErr(cfgKeyPollInterval, fmt.Errorf("must be positive"))
	}
	c.PollInterval = config.TimeDuration(d)

	if d, err = dp.GetDuration(cfgKeyPollTimeout); err != nil {
		return err
	}
	if d <= 0 {
		return dp.WrapKeyErr(cfgKeyPollTimeout, fmt.Errorf("must be positive"))
	}
	c.PollTimeout = config.TimeDuration(d)

	return nil
}
