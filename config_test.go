package evloop

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yamlConfig, err := LoadConfig("./cmd/evloop/config.yaml")
	require.NoError(t, err)
	t.Logf("%+v", yamlConfig)
	require.Equal(t, "debug", yamlConfig.Global.LogLevel)
	require.Equal(t, "0.0.0.0:9000", yamlConfig.Listener.Address)
	require.Equal(t, 4096, yamlConfig.Reactor.FdLimit)
	require.Equal(t, TimerStoreWheel, yamlConfig.Reactor.TimerStore)
	require.Equal(t, EdgeTriggered, yamlConfig.Reactor.TriggerMode())
	require.Equal(t, 15*time.Second, yamlConfig.Reactor.IdleTimeout())
	require.True(t, yamlConfig.Evictions.Enabled)
	require.Equal(t, 5, yamlConfig.Evictions.RejectAfter)
	require.Equal(t, 4096, yamlConfig.Evictions.MaxPeers)

	tomlConfig, err := LoadConfig("./cmd/evloop/config.toml")
	require.NoError(t, err)
	t.Logf("%+v", tomlConfig)
	require.Equal(t, "127.0.0.1:9001", tomlConfig.Listener.Address)
	require.Equal(t, 8192, tomlConfig.Listener.RcvBuffer)
	require.Equal(t, LevelTriggered, tomlConfig.Reactor.TriggerMode())
	require.True(t, tomlConfig.Reactor.delegated())
	require.Equal(t, "evloop-events", tomlConfig.Events.KafkaTopic)
	// defaults
	require.Equal(t, defFdLimit, tomlConfig.Reactor.FdLimit)
	require.Equal(t, defReadBufferSize, tomlConfig.Reactor.ReadBufferSize)
	require.Equal(t, TimerStoreList, tomlConfig.Reactor.TimerStore)
	require.Equal(t, 5*time.Second, tomlConfig.Reactor.TimeSlot())
	require.Equal(t, defBacklog, tomlConfig.Listener.Backlog)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"store.yaml":   "reactor:\n  timer_store: heap\n",
		"trigger.yaml": "reactor:\n  trigger: both\n",
		"workers.yaml": "reactor:\n  workers: -1\n",
		"kafka.yaml":   "events:\n  kafka_brokers: localhost:9092\n",
		"config.json":  "{}",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		_, err := LoadConfig(path)
		require.ErrorIs(t, err, ErrInvalidConfig, name)
	}

	_, err := LoadConfig(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "tcp4", config.Listener.Net)
	require.Equal(t, "info", config.Global.LogLevel)
	require.Equal(t, 15*time.Second, config.Reactor.IdleTimeout())
	require.Equal(t, time.Second, config.Reactor.WheelInterval())
	require.Equal(t, 60, config.Reactor.WheelSlots)
	require.False(t, config.Reactor.delegated())
}
