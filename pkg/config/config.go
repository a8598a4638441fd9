// Package config provides the stream configuration for neventgen.
// A single StreamConfig value describes one generator run: where the raw
// events come from, how they are amplified, how they are framed into
// messages, how fast they are produced and where they are sent.
//
// The configuration is organized into logical sections:
//   - Source: identifier, name, multiplier, byte-size override
//   - Transport: broker kind, endpoints, topic, producer tuning
//   - Flow: events per message, pacing, repetition, duration budget
//   - Observability: logging, metrics endpoint, tracing
//
// A StreamConfig is passed explicitly to every component and must not be
// mutated once a run has started.
//
// Example usage:
//
//	cfg := config.Default()
//	cfg.Source = "focus.nev"
//	cfg.Transport.Topic = "FOCUS_detector"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/logger"
)

// Transport kinds
const (
	TransportKafka = "kafka"
	TransportNATS  = "nats"
	TransportFile  = "file"
)

// Wire formats
const (
	FormatEV42 = "ev42"
	FormatJSON = "json"
)

// EventSize is the payload size of one event, used to derive the chunk size
// from a byte target.
const EventSize = 12

// StreamConfig is the validated, read-only configuration of a generator run.
type StreamConfig struct {
	// Source identifies the raw event data (path, s3://, gs:// or synth://)
	Source string `yaml:"source" mapstructure:"source"`
	// SourceName is written into every message
	SourceName string `yaml:"source_name" mapstructure:"source_name"`
	// Multiplier is the amplification factor applied to the source batch
	Multiplier int `yaml:"multiplier" mapstructure:"multiplier"`
	// TimeOffset shifts the timestamps of each amplified copy
	TimeOffset int32 `yaml:"time_offset" mapstructure:"time_offset"`
	// Bytes is the target payload size per message; mutually exclusive with Multiplier > 1
	Bytes int `yaml:"bytes" mapstructure:"bytes"`
	// Format selects the wire encoding
	Format string `yaml:"format" mapstructure:"format"`
	// MemoryLimit caps the size of a single event batch in bytes (0 = host available memory)
	MemoryLimit int64 `yaml:"memory_limit" mapstructure:"memory_limit"`

	Transport TransportConfig `yaml:"transport" mapstructure:"transport"`
	Flow      FlowConfig      `yaml:"flow" mapstructure:"flow"`

	// ReportInterval controls periodic progress logging (0 disables)
	ReportInterval time.Duration `yaml:"report_interval" mapstructure:"report_interval"`
	// MetricsAddr is the prometheus listen address (empty disables)
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	// Tracing enables OpenTelemetry spans on stdout
	Tracing bool `yaml:"tracing" mapstructure:"tracing"`

	Log logger.Config `yaml:"log" mapstructure:"log"`
}

// TransportConfig describes the message transport.
type TransportConfig struct {
	// Kind is one of kafka, nats, file
	Kind string `yaml:"kind" mapstructure:"kind"`
	// Brokers lists the broker endpoints (Kafka brokers or NATS servers)
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	// Topic is the Kafka topic, NATS subject or output file path
	Topic string `yaml:"topic" mapstructure:"topic"`
	// ClientID identifies the producer to the broker
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	// Acks is the Kafka acknowledgement level: all, 1, 0
	Acks string `yaml:"acks" mapstructure:"acks"`
	// Compression is the Kafka batch compression: none, gzip, snappy, lz4, zstd
	Compression string `yaml:"compression" mapstructure:"compression"`
	// Idempotent enables the idempotent Kafka producer
	Idempotent bool `yaml:"idempotent" mapstructure:"idempotent"`
	// MaxMessageBytes bounds a single produced message
	MaxMessageBytes int `yaml:"max_message_bytes" mapstructure:"max_message_bytes"`
	// Timeout bounds a single send
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
	// Retries is the number of retries for retryable failures
	Retries int `yaml:"retries" mapstructure:"retries"`
	// RetryBackoff is the initial delay between retries
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
	// MaxRetryBackoff caps the delay between retries
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff" mapstructure:"max_retry_backoff"`
}

// FlowConfig describes pacing.
type FlowConfig struct {
	// EventsPerMessage is the nominal chunk size
	EventsPerMessage int `yaml:"events_per_message" mapstructure:"events_per_message"`
	// Delay is the pause between consecutive messages
	Delay time.Duration `yaml:"delay" mapstructure:"delay"`
	// Rate caps messages per second (0 = unlimited)
	Rate float64 `yaml:"rate" mapstructure:"rate"`
	// Repeat is the number of passes over the event sequence
	Repeat int `yaml:"repeat" mapstructure:"repeat"`
	// Duration bounds the run's wall-clock time (0 = unlimited)
	Duration time.Duration `yaml:"duration" mapstructure:"duration"`
}

// Default returns a configuration with every optional field set.
func Default() *StreamConfig {
	return &StreamConfig{
		SourceName: "neventgen",
		Multiplier: 1,
		Format:     FormatEV42,
		Transport: TransportConfig{
			Kind:            TransportKafka,
			Brokers:         []string{"localhost:9092"},
			ClientID:        "neventgen",
			Acks:            "all",
			Compression:     "none",
			MaxMessageBytes: 10 << 20,
			Timeout:         10 * time.Second,
			Retries:         3,
			RetryBackoff:    100 * time.Millisecond,
			MaxRetryBackoff: 5 * time.Second,
		},
		Flow: FlowConfig{
			EventsPerMessage: 1000,
			Repeat:           1,
		},
		ReportInterval: 10 * time.Second,
		Log: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration before any I/O takes place.
func (c *StreamConfig) Validate() error {
	if c.Bytes > 0 && c.Multiplier > 1 {
		return nerrors.New(nerrors.ErrorTypeConfig, "conflict between parameters `bytes` and `multiplier`").
			WithDetail("bytes", c.Bytes).
			WithDetail("multiplier", c.Multiplier)
	}
	if c.Source == "" {
		return configErr("source is required")
	}
	if c.Multiplier < 1 {
		return configErr("multiplier must be >= 1, got %d", c.Multiplier)
	}
	if c.Bytes < 0 {
		return configErr("bytes cannot be negative")
	}
	if c.Bytes == 0 && c.Flow.EventsPerMessage < 1 {
		return configErr("events_per_message must be positive")
	}
	if c.Flow.Repeat < 1 {
		return configErr("repeat must be >= 1, got %d", c.Flow.Repeat)
	}
	if c.Flow.Delay < 0 || c.Flow.Duration < 0 || c.ReportInterval < 0 {
		return configErr("durations cannot be negative")
	}
	if c.Flow.Rate < 0 {
		return configErr("rate cannot be negative")
	}
	if c.MemoryLimit < 0 {
		return configErr("memory_limit cannot be negative")
	}
	switch c.Format {
	case FormatEV42, FormatJSON:
	default:
		return configErr("unknown format %q", c.Format)
	}
	return c.Transport.validate()
}

func (t *TransportConfig) validate() error {
	if t.Topic == "" {
		return configErr("topic is required")
	}
	switch t.Kind {
	case TransportKafka, TransportNATS:
		if len(t.Brokers) == 0 {
			return configErr("at least one broker is required for %s", t.Kind)
		}
	case TransportFile:
	default:
		return configErr("unknown transport kind %q", t.Kind)
	}
	if t.Retries < 0 {
		return configErr("retries cannot be negative")
	}
	if t.Timeout < 0 || t.RetryBackoff < 0 || t.MaxRetryBackoff < 0 {
		return configErr("transport durations cannot be negative")
	}
	return nil
}

func configErr(format string, args ...interface{}) error {
	return nerrors.Newf(nerrors.ErrorTypeConfig, format, args...)
}

// EventsPerMessage returns the effective chunk size. A byte target takes
// precedence over the configured events per message.
func (c *StreamConfig) EventsPerMessage() int {
	if c.Bytes > 0 {
		n := c.Bytes / EventSize
		if n < 1 {
			n = 1
		}
		return n
	}
	return c.Flow.EventsPerMessage
}

// Effective renders the configuration as YAML for the startup banner.
func (c *StreamConfig) Effective() (string, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to render configuration: %w", err)
	}
	return string(out), nil
}
