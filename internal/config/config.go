package config

import (
	"errors"
	"os"
	"path/filepath"
)

// Core configuration constants that define the boundaries and defaults
// for the light show.
const (
	DefaultLogLevel         = "info"
	DefaultChunkSize        = 2048  // Frames per analysis chunk
	DefaultMinFrequency     = 20.0  // Hz
	DefaultMaxFrequency     = 15000 // Hz
	DefaultPWMRange         = 100
	DefaultDriver           = DriverLog
	DefaultSimulatorAddress = "127.0.0.1:8080"
	DefaultPort             = 8888
	DefaultBroadcastAddress = "255.255.255.255"
	DefaultQueueSize        = 64
	DefaultSampleRate       = 44100 // Live input capture rate
	DefaultInputChannels    = 2

	// ChunkAlignment is the granularity chunk_size must honour.
	ChunkAlignment = 8

	MinDeviceID = -1 // -1 represents system default device
)

// Pin modes.
const (
	PinModePWM   = "pwm"
	PinModeOnOff = "onoff"
)

// Light drivers.
const (
	DriverLog       = "log"
	DriverWebSocket = "websocket"
)

// Network roles.
const (
	NetworkNone   = ""
	NetworkServer = "server"
	NetworkClient = "client"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config holds all runtime configuration for the light show, loaded from YAML.
// It is passed explicitly to each component's constructor.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Lightshow LightshowConfig `yaml:"lightshow"`
	Audio     AudioConfig     `yaml:"audio_processing"`
	Network   NetworkConfig   `yaml:"network"`

	// Home is the installation root, taken from LIGHTSHOW_HOME.
	Home string `yaml:"-"`
}

// HardwareConfig describes the output channels and how they are driven.
type HardwareConfig struct {
	GPIOPins          []int    `yaml:"gpio_pins"`           // One pin per output channel.
	PinModes          []string `yaml:"pin_modes"`           // "pwm" or "onoff"; a single entry applies to every channel.
	PWMRange          int      `yaml:"pwm_range"`           // Maximum PWM value written to a dimmable pin.
	ActiveLowMode     bool     `yaml:"active_low_mode"`     // Pins are wired active-low.
	AlwaysOnChannels  []int    `yaml:"always_on_channels"`  // 1-based.
	AlwaysOffChannels []int    `yaml:"always_off_channels"` // 1-based.
	InvertedChannels  []int    `yaml:"invert_channels"`     // 1-based.
	Driver            string   `yaml:"driver"`              // "log" or "websocket".
	SimulatorAddress  string   `yaml:"simulator_address"`   // Listen address for the websocket light simulator.
}

// LightshowConfig holds playlist and show sequencing settings.
type LightshowConfig struct {
	PlaylistPath string      `yaml:"playlist_path"`
	Randomize    bool        `yaml:"randomize_playlist"`
	Preshow      *ShowScript `yaml:"preshow,omitempty"`
	Postshow     *ShowScript `yaml:"postshow,omitempty"`
}

// ShowScript is a timed sequence of light transitions run around a song.
type ShowScript struct {
	Transitions []Transition `yaml:"transitions"`
}

// Transition turns every light on or off for Duration seconds, then applies
// per-channel exceptions.
type Transition struct {
	Type           string         `yaml:"type"`     // "on" or "off"
	Duration       float64        `yaml:"duration"` // seconds
	ChannelControl ChannelControl `yaml:"channel_control,omitempty"`
}

// ChannelControl lists 1-based channels forced on or off during a transition.
type ChannelControl struct {
	On  []int `yaml:"on,omitempty"`
	Off []int `yaml:"off,omitempty"`
}

// AudioConfig holds the fingerprint-affecting analysis settings and the audio
// device settings.
type AudioConfig struct {
	ChunkSize                int       `yaml:"chunk_size"`
	MinFrequency             float64   `yaml:"min_frequency"`
	MaxFrequency             float64   `yaml:"max_frequency"`
	CustomChannelMapping     []int     `yaml:"custom_channel_mapping"`     // 1-based, one entry per channel.
	CustomChannelFrequencies []float64 `yaml:"custom_channel_frequencies"` // Explicit band boundaries.

	OutputDevice  int     `yaml:"output_device"` // PortAudio device index (-1 for default).
	InputDevice   int     `yaml:"input_device"`  // Capture device for audio-in mode (-1 for default).
	InputRate     float64 `yaml:"input_sample_rate"`
	InputChannels int     `yaml:"input_channels"`
	InputGate     float64 `yaml:"input_gate"` // Noise gate for audio-in, 0.0-1.0 of full scale; 0 disables.
	FMCommand     string  `yaml:"fm_command"`  // Optional transmitter fed raw PCM on stdin.
	RecordPath    string  `yaml:"record_path"` // Optional WAV copy of everything played.
}

// NetworkConfig configures the broadcast channel.
type NetworkConfig struct {
	Mode             string        `yaml:"mode"` // "", "server" or "client"
	Port             int           `yaml:"port"`
	BroadcastAddress string        `yaml:"broadcast_address"`
	QueueSize        int           `yaml:"queue_size"`
	Channels         map[int][]int `yaml:"channels"` // Logical channel → local channels (client only).
}

// Default returns the built-in configuration.
func Default() Config {
	home := os.Getenv("LIGHTSHOW_HOME")
	if home == "" {
		if wd, err := os.Getwd(); err == nil {
			home = wd
		}
	}
	return Config{
		LogLevel: DefaultLogLevel,
		Home:     home,
		Hardware: HardwareConfig{
			GPIOPins:         []int{0, 1, 2, 3, 4, 5, 6, 7},
			PinModes:         []string{PinModePWM},
			PWMRange:         DefaultPWMRange,
			Driver:           DefaultDriver,
			SimulatorAddress: DefaultSimulatorAddress,
		},
		Lightshow: LightshowConfig{
			PlaylistPath: filepath.Join("$LIGHTSHOW_HOME", "music", "playlist"),
		},
		Audio: AudioConfig{
			ChunkSize:     DefaultChunkSize,
			MinFrequency:  DefaultMinFrequency,
			MaxFrequency:  DefaultMaxFrequency,
			OutputDevice:  MinDeviceID,
			InputDevice:   MinDeviceID,
			InputRate:     DefaultSampleRate,
			InputChannels: DefaultInputChannels,
		},
		Network: NetworkConfig{
			Port:             DefaultPort,
			BroadcastAddress: DefaultBroadcastAddress,
			QueueSize:        DefaultQueueSize,
		},
	}
}

// ChannelCount is the number of output channels.
func (c *Config) ChannelCount() int {
	return len(c.Hardware.GPIOPins)
}

// IsPWM reports whether channel i is dimmable.
func (h HardwareConfig) IsPWM(i int) bool {
	switch len(h.PinModes) {
	case 0:
		return true
	case 1:
		return h.PinModes[0] == PinModePWM
	}
	if i < 0 || i >= len(h.PinModes) {
		return false
	}
	return h.PinModes[i] == PinModePWM
}

// StatePath is the persisted state file.
func (c *Config) StatePath() string {
	return filepath.Join(c.Home, "config", "state.yaml")
}

// PlaylistFile resolves the playlist path against the home directory.
func (c *Config) PlaylistFile() string {
	return c.ExpandHome(c.Lightshow.PlaylistPath)
}

// ExpandHome replaces $LIGHTSHOW_HOME and $SYNCHRONIZED_LIGHTS_HOME with Home.
func (c *Config) ExpandHome(path string) string {
	return os.Expand(path, func(key string) string {
		switch key {
		case "LIGHTSHOW_HOME", "SYNCHRONIZED_LIGHTS_HOME":
			return c.Home
		}
		return os.Getenv(key)
	})
}
