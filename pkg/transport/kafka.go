package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/neventgen/pkg/config"
	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/observability"
)

// Message headers attached to every produced record
const (
	HeaderRunID       = "run-id"
	HeaderFormat      = "format"
	HeaderSeq         = "seq"
	HeaderContentType = "content-type"
)

// KafkaTransmitter produces messages through a synchronous sarama producer.
// The producer keeps a single in-flight request per broker and all records
// of a run share one key, so they land on one partition in send order.
type KafkaTransmitter struct {
	producer sarama.SyncProducer
	opts     Options
	key      sarama.Encoder
	seq      uint64
	closed   int32
	logger   *zap.Logger
}

// NewKafkaTransmitter connects a sync producer to cfg.Brokers.
func NewKafkaTransmitter(cfg *config.TransportConfig, opts Options) (*KafkaTransmitter, error) {
	saramaConfig, err := buildSaramaConfig(cfg)
	if err != nil {
		return nil, err
	}

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, nerrors.Transmission(err, isRetryableKafka(err), "failed to create kafka producer").
			WithDetail("brokers", cfg.Brokers)
	}

	t := NewKafkaTransmitterWithProducer(producer, cfg.ClientID, opts)
	t.logger.Info("connected to Kafka",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("acks", cfg.Acks),
		zap.String("compression", cfg.Compression))
	return t, nil
}

// NewKafkaTransmitterWithProducer wraps an existing producer. key is used as
// the record key of every message.
func NewKafkaTransmitterWithProducer(producer sarama.SyncProducer, key string, opts Options) *KafkaTransmitter {
	return &KafkaTransmitter{
		producer: producer,
		opts:     opts,
		key:      sarama.StringEncoder(key),
		logger:   opts.logger().With(zap.String("transport", config.TransportKafka)),
	}
}

// Send implements Transmitter.
func (kt *KafkaTransmitter) Send(ctx context.Context, topic string, buf []byte) error {
	if atomic.LoadInt32(&kt.closed) == 1 {
		return nerrors.Transmission(sarama.ErrClosedClient, false, "kafka transmitter is closed")
	}
	if err := ctx.Err(); err != nil {
		return nerrors.Wrap(err, nerrors.ErrorTypeCancelled, "send cancelled")
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   kt.key,
		Value: sarama.ByteEncoder(buf),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderRunID), Value: []byte(kt.opts.RunID)},
			{Key: []byte(HeaderFormat), Value: []byte(kt.opts.Format)},
			{Key: []byte(HeaderSeq), Value: []byte(strconv.FormatUint(kt.seq, 10))},
			{Key: []byte(HeaderContentType), Value: []byte(contentType(kt.opts.Format))},
		},
	}
	for k, v := range observability.InjectHeaders(ctx) {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}

	partition, offset, err := kt.producer.SendMessage(msg)
	if err != nil {
		return nerrors.Transmission(err, isRetryableKafka(err), "failed to produce message").
			WithDetail("topic", topic).
			WithDetail("seq", kt.seq)
	}
	kt.seq++

	kt.logger.Debug("message produced",
		zap.String("topic", topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.Int("bytes", len(buf)))
	return nil
}

// Close implements Transmitter.
func (kt *KafkaTransmitter) Close() error {
	if !atomic.CompareAndSwapInt32(&kt.closed, 0, 1) {
		return nil
	}
	if err := kt.producer.Close(); err != nil {
		return nerrors.Wrap(err, nerrors.ErrorTypeTransmission, "failed to close kafka producer")
	}
	return nil
}

// buildSaramaConfig builds the producer configuration.
func buildSaramaConfig(cfg *config.TransportConfig) (*sarama.Config, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Version = sarama.V2_1_0_0

	switch cfg.Acks {
	case "all", "-1", "":
		sc.Producer.RequiredAcks = sarama.WaitForAll
	case "1":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "unknown acks value %q", cfg.Acks)
	}

	switch cfg.Compression {
	case "none", "":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
	default:
		return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "unknown compression %q", cfg.Compression)
	}

	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	// Retries happen above the producer so every attempt is classified.
	sc.Producer.Retry.Max = 0
	sc.Net.MaxOpenRequests = 1

	if cfg.MaxMessageBytes > 0 {
		sc.Producer.MaxMessageBytes = cfg.MaxMessageBytes
	}
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
		sc.Net.DialTimeout = cfg.Timeout
		sc.Net.WriteTimeout = cfg.Timeout
		sc.Net.ReadTimeout = cfg.Timeout
	}

	if cfg.Idempotent {
		if sc.Producer.RequiredAcks != sarama.WaitForAll {
			return nil, nerrors.New(nerrors.ErrorTypeConfig, "idempotent producer requires acks=all")
		}
		sc.Producer.Idempotent = true
		sc.Producer.Retry.Max = 1
	}

	if err := sc.Validate(); err != nil {
		return nil, nerrors.Wrap(err, nerrors.ErrorTypeConfig, "invalid kafka producer configuration")
	}
	return sc, nil
}

var retryableKErrors = map[sarama.KError]struct{}{
	sarama.ErrLeaderNotAvailable:           {},
	sarama.ErrNotLeaderForPartition:        {},
	sarama.ErrRequestTimedOut:              {},
	sarama.ErrBrokerNotAvailable:           {},
	sarama.ErrReplicaNotAvailable:          {},
	sarama.ErrNetworkException:             {},
	sarama.ErrNotEnoughReplicas:            {},
	sarama.ErrNotEnoughReplicasAfterAppend: {},
	sarama.ErrKafkaStorageError:            {},
	sarama.ErrNotController:                {},
	sarama.ErrUnknownTopicOrPartition:      {},
}

// isRetryableKafka reports whether a produce failure may succeed when retried.
func isRetryableKafka(err error) bool {
	var kerr sarama.KError
	if errors.As(err, &kerr) {
		_, ok := retryableKErrors[kerr]
		return ok
	}

	switch {
	case errors.Is(err, sarama.ErrOutOfBrokers),
		errors.Is(err, sarama.ErrNotConnected),
		errors.Is(err, io.EOF),
		errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, sarama.ErrClosedClient),
		errors.Is(err, sarama.ErrShuttingDown),
		errors.Is(err, context.Canceled):
		return false
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func contentType(format string) string {
	if format == config.FormatJSON {
		return "application/json"
	}
	return "application/x-flatbuffers"
}
