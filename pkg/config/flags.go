package config

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override configuration keys.
const EnvPrefix = "NEVENTGEN"

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"source":             "source",
	"source-name":        "source_name",
	"multiplier":         "multiplier",
	"time-offset":        "time_offset",
	"bytes":              "bytes",
	"format":             "format",
	"memory-limit":       "memory_limit",
	"transport":          "transport.kind",
	"broker":             "transport.brokers",
	"topic":              "transport.topic",
	"client-id":          "transport.client_id",
	"acks":               "transport.acks",
	"compression":        "transport.compression",
	"idempotent":         "transport.idempotent",
	"max-message-bytes":  "transport.max_message_bytes",
	"send-timeout":       "transport.timeout",
	"retries":            "transport.retries",
	"retry-backoff":      "transport.retry_backoff",
	"max-retry-backoff":  "transport.max_retry_backoff",
	"events-per-message": "flow.events_per_message",
	"delay":              "flow.delay",
	"rate":               "flow.rate",
	"repeat":             "flow.repeat",
	"duration":           "flow.duration",
	"report-interval":    "report_interval",
	"metrics-addr":       "metrics_addr",
	"tracing":            "tracing",
	"log-level":          "log.level",
	"log-encoding":       "log.encoding",
	"log-development":    "log.development",
}

// RegisterFlags adds every stream configuration flag to fs, using the
// defaults as flag defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()

	fs.StringP("source", "s", d.Source, "Source identifier: file path, s3://bucket/key, gs://bucket/object or synth://?events=N")
	fs.String("source-name", d.SourceName, "Source name written into every message")
	fs.IntP("multiplier", "m", d.Multiplier, "Amplification factor applied to the source events")
	fs.Int32("time-offset", d.TimeOffset, "Timestamp shift added to each amplified copy")
	fs.IntP("bytes", "b", d.Bytes, "Target payload bytes per message (conflicts with --multiplier > 1)")
	fs.String("format", d.Format, "Wire format (ev42, json)")
	fs.Int64("memory-limit", d.MemoryLimit, "Maximum bytes per event batch (0 = available host memory)")

	fs.String("transport", d.Transport.Kind, "Transport kind (kafka, nats, file)")
	fs.StringSlice("broker", d.Transport.Brokers, "Broker endpoints, comma separated")
	fs.StringP("topic", "t", d.Transport.Topic, "Destination topic, subject or file path")
	fs.String("client-id", d.Transport.ClientID, "Producer client ID")
	fs.String("acks", d.Transport.Acks, "Required acknowledgements (all, 1, 0)")
	fs.String("compression", d.Transport.Compression, "Producer compression (none, gzip, snappy, lz4, zstd)")
	fs.Bool("idempotent", d.Transport.Idempotent, "Enable the idempotent producer")
	fs.Int("max-message-bytes", d.Transport.MaxMessageBytes, "Maximum size of a produced message")
	fs.Duration("send-timeout", d.Transport.Timeout, "Timeout for a single send")
	fs.Int("retries", d.Transport.Retries, "Retries for retryable send failures")
	fs.Duration("retry-backoff", d.Transport.RetryBackoff, "Initial delay between retries")
	fs.Duration("max-retry-backoff", d.Transport.MaxRetryBackoff, "Maximum delay between retries")

	fs.IntP("events-per-message", "n", d.Flow.EventsPerMessage, "Events per message")
	fs.Duration("delay", d.Flow.Delay, "Delay between messages")
	fs.Float64("rate", d.Flow.Rate, "Maximum messages per second (0 = unlimited)")
	fs.Int("repeat", d.Flow.Repeat, "Number of passes over the event data")
	fs.Duration("duration", d.Flow.Duration, "Stop producing after this long (0 = unlimited)")

	fs.Duration("report-interval", d.ReportInterval, "Progress log interval (0 disables)")
	fs.String("metrics-addr", d.MetricsAddr, "Prometheus listen address, e.g. :9100")
	fs.Bool("tracing", d.Tracing, "Print OpenTelemetry spans to stdout")
	fs.String("log-level", d.Log.Level, "Log level (debug, info, warn, error)")
	fs.String("log-encoding", d.Log.Encoding, "Log encoding (json, console)")
	fs.Bool("log-development", d.Log.Development, "Development logging")
}

// Resolve merges flags, NEVENTGEN_* environment variables and an optional
// YAML file into a configuration. Explicit flags win over the environment,
// which wins over the file, which wins over defaults.
func Resolve(fs *pflag.FlagSet, configFile string) (*StreamConfig, error) {
	v := viper.New()

	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("failed to bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		data, err := ReadFile(configFile)
		if err != nil {
			return nil, configErr("%v", err)
		}
		v.SetConfigType("yaml")
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, configErr("failed to parse config file %s: %v", configFile, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, configErr("failed to decode configuration: %v", err)
	}
	return cfg, nil
}
