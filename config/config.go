package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the application-level configuration, normally read from
// config.yaml. Durations are in milliseconds in the file.
type Config struct {
	InitialEstimatedRTTms int  `yaml:"initialEstimatedRttMs"` // starting smoothed RTT
	InitialDevRTTms       int  `yaml:"initialDevRttMs"`       // starting RTT deviation
	MinRTOms              int  `yaml:"minRtoMs"`              // retransmission timeout floor
	TimeWaitMs            int  `yaml:"timeWaitMs"`            // TIME_WAIT window at teardown
	PayloadPoolSize       int  `yaml:"payloadPoolSize"`       // number of payload chunks in the ring pool
	PoolDebug             bool `yaml:"poolDebug"`             // ring pool debug setting
}

var AppConfig *Config

// DefaultConfig returns the built-in defaults, matching the protocol's
// classic starting values.
func DefaultConfig() *Config {
	return &Config{
		InitialEstimatedRTTms: 100,
		InitialDevRTTms:       10,
		MinRTOms:              1,
		TimeWaitMs:            4000,
		PayloadPoolSize:       2000,
		PoolDebug:             false,
	}
}

// ReadConfig loads configuration from the given yaml file. Fields absent
// from the file keep their default values.
func ReadConfig(filename string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", filename, err)
	}
	return config, nil
}

func (c *Config) InitialEstimatedRTT() time.Duration {
	return time.Duration(c.InitialEstimatedRTTms) * time.Millisecond
}

func (c *Config) InitialDevRTT() time.Duration {
	return time.Duration(c.InitialDevRTTms) * time.Millisecond
}

func (c *Config) MinRTO() time.Duration {
	return time.Duration(c.MinRTOms) * time.Millisecond
}

func (c *Config) TimeWait() time.Duration {
	return time.Duration(c.TimeWaitMs) * time.Millisecond
}
