// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"lightshow/internal/analysis"
	"lightshow/internal/log"
	"lightshow/pkg/bitint"
)

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches the default locations. If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides, normalizes the chunk size and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			filepath.Join(cfg.Home, "config", "overrides.yaml"),
			filepath.Join(cfg.Home, "config", "defaults.yaml"),
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		log.Debugf("Config: loaded %s", path)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalize repairs values the original installations tolerated.
func (c *Config) normalize() {
	if !bitint.IsAligned(c.Audio.ChunkSize, ChunkAlignment) {
		log.Warnf("Config: chunk_size %d must be a positive multiple of %d, using %d",
			c.Audio.ChunkSize, ChunkAlignment, DefaultChunkSize)
		c.Audio.ChunkSize = DefaultChunkSize
	} else if !bitint.IsPowerOfTwo(c.Audio.ChunkSize) {
		log.Debugf("Config: chunk_size %d is not a power of two, %d transforms faster",
			c.Audio.ChunkSize, bitint.NextPowerOfTwo(c.Audio.ChunkSize))
	}
	if c.Audio.InputGate < 0 || c.Audio.InputGate > 1 {
		log.Warnf("Config: input_gate %.2f outside 0.0-1.0, gate disabled", c.Audio.InputGate)
		c.Audio.InputGate = 0
	}
	if c.Network.QueueSize <= 0 {
		c.Network.QueueSize = DefaultQueueSize
	}
}

// Validate checks the configuration for values that would make a show
// impossible. Every error wraps ErrInvalid.
func (c *Config) Validate() error {
	n := c.ChannelCount()
	if n == 0 {
		return fmt.Errorf("%w: hardware.gpio_pins must list at least one pin", ErrInvalid)
	}
	if len(c.Hardware.PinModes) > 1 && len(c.Hardware.PinModes) != n {
		return fmt.Errorf("%w: hardware.pin_modes has %d entries for %d channels",
			ErrInvalid, len(c.Hardware.PinModes), n)
	}
	for _, m := range c.Hardware.PinModes {
		if m != PinModePWM && m != PinModeOnOff {
			return fmt.Errorf("%w: unknown pin mode %q", ErrInvalid, m)
		}
	}
	if c.Hardware.PWMRange <= 0 {
		return fmt.Errorf("%w: hardware.pwm_range must be positive", ErrInvalid)
	}
	switch c.Hardware.Driver {
	case DriverLog, DriverWebSocket:
	default:
		return fmt.Errorf("%w: unknown hardware.driver %q", ErrInvalid, c.Hardware.Driver)
	}
	for name, list := range map[string][]int{
		"always_on_channels":  c.Hardware.AlwaysOnChannels,
		"always_off_channels": c.Hardware.AlwaysOffChannels,
		"invert_channels":     c.Hardware.InvertedChannels,
	} {
		if err := checkChannels(name, list, n); err != nil {
			return err
		}
	}

	if err := c.Audio.ValidateAnalysis(n); err != nil {
		return err
	}

	for _, script := range []*ShowScript{c.Lightshow.Preshow, c.Lightshow.Postshow} {
		if script == nil {
			continue
		}
		for i, tr := range script.Transitions {
			if tr.Type != "on" && tr.Type != "off" {
				return fmt.Errorf("%w: transition %d has type %q", ErrInvalid, i, tr.Type)
			}
			if tr.Duration < 0 {
				return fmt.Errorf("%w: transition %d has negative duration", ErrInvalid, i)
			}
			if err := checkChannels("channel_control.on", tr.ChannelControl.On, n); err != nil {
				return err
			}
			if err := checkChannels("channel_control.off", tr.ChannelControl.Off, n); err != nil {
				return err
			}
		}
	}

	switch c.Network.Mode {
	case NetworkNone, NetworkServer, NetworkClient:
	default:
		return fmt.Errorf("%w: unknown network.mode %q", ErrInvalid, c.Network.Mode)
	}
	if c.Network.Mode != NetworkNone && (c.Network.Port <= 0 || c.Network.Port > 65535) {
		return fmt.Errorf("%w: network.port %d out of range", ErrInvalid, c.Network.Port)
	}

	return nil
}

// ValidateAnalysis checks the fingerprint-affecting settings for a show with
// the given number of channels. Per-song overrides are re-validated with it.
func (a AudioConfig) ValidateAnalysis(channels int) error {
	if a.MinFrequency <= 0 {
		return fmt.Errorf("%w: min_frequency must be positive", ErrInvalid)
	}
	if a.MaxFrequency <= a.MinFrequency {
		return fmt.Errorf("%w: max_frequency %.1f must exceed min_frequency %.1f",
			ErrInvalid, a.MaxFrequency, a.MinFrequency)
	}
	if len(a.CustomChannelMapping) > 0 {
		if len(a.CustomChannelMapping) != channels {
			return fmt.Errorf("%w: custom_channel_mapping has %d entries for %d channels",
				ErrInvalid, len(a.CustomChannelMapping), channels)
		}
		for _, m := range a.CustomChannelMapping {
			if m < 1 {
				return fmt.Errorf("%w: custom_channel_mapping entry %d is not 1-based", ErrInvalid, m)
			}
		}
	}
	if _, err := analysis.ComputeBands(a.MinFrequency, a.MaxFrequency, channels,
		a.CustomChannelMapping, a.CustomChannelFrequencies); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func checkChannels(name string, list []int, n int) error {
	for _, ch := range list {
		if ch < 1 || ch > n {
			return fmt.Errorf("%w: %s entry %d outside 1..%d", ErrInvalid, name, ch, n)
		}
	}
	return nil
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
func (c *Config) applyEnvOverrides() {
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("Config: overriding log_level from env: %s", val)
	}

	// ENV_CHUNK_SIZE
	if val, ok := os.LookupEnv("ENV_CHUNK_SIZE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Audio.ChunkSize = n
			log.Infof("Config: overriding audio_processing.chunk_size from env: %d", n)
		}
	}

	// ENV_HARDWARE_DRIVER
	if val, ok := os.LookupEnv("ENV_HARDWARE_DRIVER"); ok {
		c.Hardware.Driver = val
		log.Infof("Config: overriding hardware.driver from env: %s", val)
	}

	// ENV_NETWORK_{...}
	// These are specific to the broadcast channel.

	// ENV_NETWORK_MODE
	if val, ok := os.LookupEnv("ENV_NETWORK_MODE"); ok {
		c.Network.Mode = val
		log.Infof("Config: overriding network.mode from env: %s", val)
	}
	// ENV_NETWORK_PORT
	if val, ok := os.LookupEnv("ENV_NETWORK_PORT"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Network.Port = n
			log.Infof("Config: overriding network.port from env: %d", n)
		}
	}
	// ENV_BROADCAST_ADDRESS
	if val, ok := os.LookupEnv("ENV_BROADCAST_ADDRESS"); ok {
		c.Network.BroadcastAddress = val
		log.Infof("Config: overriding network.broadcast_address from env: %s", val)
	}
}
