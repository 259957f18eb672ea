package evloop

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

const (
	TriggerEdge  = "edge"
	TriggerLevel = "level"
)

type Interest uint32

const (
	Readable Interest = 1 << iota
	Writable
)

type TriggerMode int

const (
	LevelTriggered TriggerMode = iota
	EdgeTriggered
)

func (m TriggerMode) String() string {
	if m == EdgeTriggered {
		return TriggerEdge
	}
	return TriggerLevel
}

const (
	defFdLimit           = 65535
	defEventBufferSize   = 1024
	defReadBufferSize    = 64
	defTimeSlotSec       = 5
	defTimeoutMultiplier = 3
	defBacklog           = 1024
	defEvictionTTLSec    = 300
)

type Global struct {
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

type ListenerConfig struct {
	Net         string `yaml:"net" toml:"net"`
	Address     string `yaml:"address" toml:"address"`
	Backlog     int    `yaml:"backlog" toml:"backlog"`
	ReusePort   bool   `yaml:"reuse_port" toml:"reuse_port"`
	RcvBuffer   int    `yaml:"rcv_buffer" toml:"rcv_buffer"`
	SndBuffer   int    `yaml:"snd_buffer" toml:"snd_buffer"`
	NoDelay     bool   `yaml:"no_delay" toml:"no_delay"`
	RaiseNoFile bool   `yaml:"raise_nofile" toml:"raise_nofile"`
}

type ReactorConfig struct {
	Name              string `yaml:"name" toml:"name"`
	LockOsThread      bool   `yaml:"lock_os_thread" toml:"lock_os_thread"`
	FdLimit           int    `yaml:"fd_limit" toml:"fd_limit"`
	EventBufferSize   int    `yaml:"event_buffer_size" toml:"event_buffer_size"`
	ReadBufferSize    int    `yaml:"read_buffer_size" toml:"read_buffer_size"`
	Trigger           string `yaml:"trigger" toml:"trigger"`
	OneShot           bool   `yaml:"one_shot" toml:"one_shot"`
	Workers           int    `yaml:"workers" toml:"workers"`
	TimeSlotSec       int    `yaml:"time_slot_sec" toml:"time_slot_sec"`
	TimeoutMultiplier int    `yaml:"timeout_multiplier" toml:"timeout_multiplier"`
	TimerStore        string `yaml:"timer_store" toml:"timer_store"`
	WheelSlots        int    `yaml:"wheel_slots" toml:"wheel_slots"`
	WheelIntervalSec  int    `yaml:"wheel_interval_sec" toml:"wheel_interval_sec"`
}

type EventsConfig struct {
	KafkaBrokers string `yaml:"kafka_brokers" toml:"kafka_brokers"`
	KafkaTopic   string `yaml:"kafka_topic" toml:"kafka_topic"`
}

type EvictionsConfig struct {
	Enabled     bool `yaml:"enabled" toml:"enabled"`
	RejectAfter int  `yaml:"reject_after" toml:"reject_after"`
	TTLSec      int  `yaml:"ttl_sec" toml:"ttl_sec"`
	MaxPeers    int  `yaml:"max_peers" toml:"max_peers"`
}

type Config struct {
	Global    Global          `yaml:"global" toml:"global"`
	Listener  ListenerConfig  `yaml:"listener" toml:"listener"`
	Reactor   ReactorConfig   `yaml:"reactor" toml:"reactor"`
	Events    EventsConfig    `yaml:"events" toml:"events"`
	Evictions EvictionsConfig `yaml:"evictions" toml:"evictions"`
}

// TimeSlot is the period of the sorted-list tick.
func (c ReactorConfig) TimeSlot() time.Duration {
	return time.Duration(c.TimeSlotSec) * time.Second
}

// IdleTimeout is how long a connection may stay silent before eviction.
func (c ReactorConfig) IdleTimeout() time.Duration {
	return time.Duration(c.TimeoutMultiplier) * c.TimeSlot()
}

func (c ReactorConfig) WheelInterval() time.Duration {
	return time.Duration(c.WheelIntervalSec) * time.Second
}

func (c ReactorConfig) TriggerMode() TriggerMode {
	if c.Trigger == TriggerLevel {
		return LevelTriggered
	}
	return EdgeTriggered
}

func (c ReactorConfig) delegated() bool {
	return c.OneShot && c.Workers > 0
}

func LoadConfig(filePath string) (*Config, error) {
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	if strings.HasSuffix(filePath, ".toml") {
		err = toml.Unmarshal(file, config)
	} else if strings.HasSuffix(filePath, ".yaml") || strings.HasSuffix(filePath, ".yml") {
		err = yaml.Unmarshal(file, config)
	} else {
		return nil, fmt.Errorf("%w: unsupported config format: %s", ErrInvalidConfig, filePath)
	}
	if err != nil {
		return nil, err
	}
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a configuration listening on all interfaces with
// every default applied.
func DefaultConfig() *Config {
	config := &Config{
		Listener: ListenerConfig{Net: "tcp4", Address: "0.0.0.0:9000"},
	}
	_ = validateConfig(config)
	return config
}

func validateConfig(config *Config) error {
	if config.Global.LogLevel == "" {
		config.Global.LogLevel = "info"
	}
	if config.Listener.Net == "" {
		config.Listener.Net = "tcp4"
	}
	if config.Listener.Backlog <= 0 {
		config.Listener.Backlog = defBacklog
	}
	return validateReactorConfig(&config.Reactor, config)
}

func validateReactorConfig(rc *ReactorConfig, config *Config) error {
	if rc.Name == "" {
		rc.Name = "main"
	}
	if rc.FdLimit <= 0 {
		rc.FdLimit = defFdLimit
	}
	if rc.EventBufferSize <= 0 {
		rc.EventBufferSize = defEventBufferSize
	}
	if rc.ReadBufferSize <= 0 {
		rc.ReadBufferSize = defReadBufferSize
	}
	if rc.TimeSlotSec <= 0 {
		rc.TimeSlotSec = defTimeSlotSec
	}
	if rc.TimeoutMultiplier <= 0 {
		rc.TimeoutMultiplier = defTimeoutMultiplier
	}
	if rc.TimerStore == "" {
		rc.TimerStore = TimerStoreList
	}
	if rc.WheelSlots <= 0 {
		rc.WheelSlots = defaultWheelSlots
	}
	if rc.WheelIntervalSec <= 0 {
		rc.WheelIntervalSec = int(defaultWheelInterval / time.Second)
	}
	if rc.Trigger == "" {
		rc.Trigger = TriggerEdge
	}
	switch {
	case rc.TimerStore != TimerStoreList && rc.TimerStore != TimerStoreWheel:
		return fmt.Errorf("%w: timer_store %q", ErrInvalidConfig, rc.TimerStore)
	case rc.Trigger != TriggerEdge && rc.Trigger != TriggerLevel:
		return fmt.Errorf("%w: trigger %q", ErrInvalidConfig, rc.Trigger)
	case rc.Workers < 0:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, rc.Workers)
	}
	if config == nil {
		return nil
	}
	if config.Evictions.TTLSec <= 0 {
		config.Evictions.TTLSec = defEvictionTTLSec
	}
	if config.Evictions.MaxPeers <= 0 {
		config.Evictions.MaxPeers = rc.FdLimit
	}
	if config.Events.KafkaBrokers != "" && config.Events.KafkaTopic == "" {
		return fmt.Errorf("%w: kafka_topic is required with kafka_brokers", ErrInvalidConfig)
	}
	return nil
}
