/*
Copyright © 2025 Dialcoach, Inc.

Released under MIT license.
*/

package coach

import (
	"fmt"

	"github.com/dialcoach/dialcoach/config"
)

const cfgDefaultKeyPrefix = "coach"

const (
	cfgKeyAPIKey    = "apiKey"
	cfgKeyBaseURL   = "baseUrl"
	cfgKeyModel     = "model"
	cfgKeyMaxTokens = "maxTokens"
)

// Default values.
const (
	DefaultModel     = "gpt-4o-mini"
	DefaultMaxTokens = 1024
)

// Config represents a set of configuration parameters for the coaching feedback generator.
type Config struct {
	APIKey    string `mapstructure:"apiKey" yaml:"apiKey" json:"apiKey"`
	BaseURL   string `mapstructure:"baseUrl" yaml:"baseUrl" json:"baseUrl"`
	Model     string `mapstructure:"model" yaml:"model" json:"model"`
	MaxTokens int    `mapstructure:"maxTokens" yaml:"maxTokens" json:"maxTokens"`

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
		keyPrefix: cfgDefaultKeyPrefix,
		Model:     DefaultModel,
		MaxTokens: DefaultMaxTokens,
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
	dp.SetDefault(cfgKeyModel, DefaultModel)
	dp.SetDefault(cfgKeyMaxTokens, DefaultMaxTokens)
}

// Set sets configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.APIKey, err = dp.GetString(cfgKeyAPIKey); err != nil {
		return err
	}
	if c.BaseURL, err = dp.GetString(cfgKeyBaseURL); err != nil {
		return err
	}
	if c.Model, err = dp.GetString(cfgKeyModel); err != nil {
		return err
	}
	if c.MaxTokens, err = dp.GetInt(cfgKeyMaxTokens); err != nil {
		return err
	}
	if c.MaxTokens <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxTokens, fmt.Errorf("must be positive"))
	}
	return nil
}
