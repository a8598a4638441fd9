package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

func validConfig() *StreamConfig {
	cfg := Default()
	cfg.Source = "focus.nev"
	cfg.Transport.Topic = "FOCUS_detector"
	return cfg
}

func TestValidateBytesMultiplierConflict(t *testing.T) {
	tests := []struct {
		name       string
		bytes      int
		multiplier int
		wantErr    bool
	}{
		{"both set", 1024, 2, true},
		{"bytes only", 1024, 1, false},
		{"multiplier only", 0, 3, false},
		{"neither", 0, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Bytes = tt.bytes
			cfg.Multiplier = tt.multiplier

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeConfig))
				assert.Contains(t, err.Error(), "`bytes` and `multiplier`")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateConflictCheckedFirst(t *testing.T) {
	cfg := &StreamConfig{Bytes: 1024, Multiplier: 2}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict")
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*StreamConfig)
	}{
		{"missing source", func(c *StreamConfig) { c.Source = "" }},
		{"missing topic", func(c *StreamConfig) { c.Transport.Topic = "" }},
		{"zero multiplier", func(c *StreamConfig) { c.Multiplier = 0 }},
		{"negative bytes", func(c *StreamConfig) { c.Bytes = -1 }},
		{"zero chunk", func(c *StreamConfig) { c.Flow.EventsPerMessage = 0 }},
		{"zero repeat", func(c *StreamConfig) { c.Flow.Repeat = 0 }},
		{"negative delay", func(c *StreamConfig) { c.Flow.Delay = -time.Second }},
		{"negative rate", func(c *StreamConfig) { c.Flow.Rate = -1 }},
		{"unknown format", func(c *StreamConfig) { c.Format = "protobuf" }},
		{"unknown transport", func(c *StreamConfig) { c.Transport.Kind = "amqp" }},
		{"no brokers", func(c *StreamConfig) { c.Transport.Brokers = nil }},
		{"negative retries", func(c *StreamConfig) { c.Transport.Retries = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeConfig))
		})
	}
}

func TestFileTransportNeedsNoBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Transport.Kind = TransportFile
	cfg.Transport.Brokers = nil
	assert.NoError(t, cfg.Validate())
}

func TestEventsPerMessage(t *testing.T) {
	cfg := validConfig()
	cfg.Flow.EventsPerMessage = 250
	assert.Equal(t, 250, cfg.EventsPerMessage())

	cfg.Bytes = 1200
	assert.Equal(t, 100, cfg.EventsPerMessage())

	cfg.Bytes = 5
	assert.Equal(t, 1, cfg.EventsPerMessage())
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("NEVENTGEN_TEST_TOPIC", "AMOR_events")

	path := filepath.Join(t.TempDir(), "stream.yaml")
	content := `
source: data/amor.nev
multiplier: 4
transport:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: ${NEVENTGEN_TEST_TOPIC}
flow:
  events_per_message: 500
  delay: 250ms
log:
  level: ${NEVENTGEN_TEST_UNSET_LEVEL:-warn}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data/amor.nev", cfg.Source)
	assert.Equal(t, 4, cfg.Multiplier)
	assert.Equal(t, "AMOR_events", cfg.Transport.Topic)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Transport.Brokers)
	assert.Equal(t, 250*time.Millisecond, cfg.Flow.Delay)
	assert.Equal(t, "warn", cfg.Log.Level)
	// untouched defaults survive
	assert.Equal(t, "all", cfg.Transport.Acks)
	assert.Equal(t, 1, cfg.Flow.Repeat)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestSaveAndEffective(t *testing.T) {
	cfg := validConfig()
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)

	out, err := cfg.Effective()
	require.NoError(t, err)
	assert.Contains(t, out, "source: focus.nev")
	assert.Contains(t, out, "timeout: 10s")
}

func TestResolvePrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.yaml")
	content := `
source: from-file.nev
multiplier: 2
transport:
  topic: file-topic
flow:
  events_per_message: 64
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("NEVENTGEN_TRANSPORT_TOPIC", "env-topic")

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--multiplier", "5", "--delay", "20ms", "--broker", "a:1,b:2"}))

	cfg, err := Resolve(fs, path)
	require.NoError(t, err)
	assert.Equal(t, "from-file.nev", cfg.Source)
	assert.Equal(t, 5, cfg.Multiplier, "flag beats file")
	assert.Equal(t, "env-topic", cfg.Transport.Topic, "env beats file")
	assert.Equal(t, 64, cfg.Flow.EventsPerMessage)
	assert.Equal(t, 20*time.Millisecond, cfg.Flow.Delay)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Transport.Brokers)
	assert.Equal(t, "all", cfg.Transport.Acks)
}

func TestResolveBadFile(t *testing.T) {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	RegisterFlags(fs)
	_, err := Resolve(fs, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, nerrors.IsType(err, nerrors.ErrorTypeConfig))
}
