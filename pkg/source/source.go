// Package source turns a source identifier into an event batch.
//
// Acquire validates the configuration, resolves the identifier through an
// Opener chosen by URL scheme, strips a compression suffix, decodes the
// remaining format and finally amplifies the batch when the configured
// multiplier is greater than one.
//
// Identifiers:
//
//	focus.nev                      local file
//	file:///data/focus.nev.zst     local file
//	s3://bucket/runs/focus.avro    Amazon S3 object (?region=, ?endpoint=)
//	gs://bucket/runs/focus.arrow   Google Cloud Storage object
//	synth://?events=1000&seed=7    deterministic synthetic events
package source

import (
	"context"
	"io"
	"net/url"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ajitpratap0/neventgen/pkg/compression"
	"github.com/ajitpratap0/neventgen/pkg/config"
	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/events"
)

// Resource is an opened source.
type Resource struct {
	// Name carries the file name used for compression and format detection
	Name string
	Body io.ReadCloser
}

// Opener resolves one URL scheme.
type Opener interface {
	Open(ctx context.Context, u *url.URL) (*Resource, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, u *url.URL) (*Resource, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, u *url.URL) (*Resource, error) {
	return f(ctx, u)
}

// Decoder reads one source format into a batch allocated from alloc.
type Decoder func(r io.Reader, alloc *events.Allocator) (*events.Batch, error)

var decoders = map[string]Decoder{
	".nev":   decodeNEV,
	".bin":   decodeNEV,
	".json":  decodeJSON,
	".csv":   decodeCSV,
	".avro":  decodeAvro,
	".arrow": decodeArrow,
}

// Adapter acquires event batches.
type Adapter struct {
	openers   map[string]Opener
	allocator *events.Allocator
	logger    *zap.Logger
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithOpener registers o for scheme, replacing any built-in opener.
func WithOpener(scheme string, o Opener) Option {
	return func(a *Adapter) {
		a.openers[scheme] = o
	}
}

// WithAllocator fixes the allocator used for decoding and amplification.
// Without it the limit comes from the configuration's memory_limit or, when
// that is zero, from the host's available memory.
func WithAllocator(alloc *events.Allocator) Option {
	return func(a *Adapter) {
		a.allocator = alloc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Adapter) {
		a.logger = logger
	}
}

// NewAdapter returns an adapter with the built-in openers.
func NewAdapter(opts ...Option) *Adapter {
	a := &Adapter{
		openers: map[string]Opener{
			"file":  OpenerFunc(openFile),
			"s3":    newS3Opener(),
			"gs":    newGCSOpener(),
			"synth": OpenerFunc(openSynth),
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "source"))
	return a
}

// Acquire produces the event batch described by cfg. The configuration is
// validated before any opener runs. The caller owns the returned batch.
func (a *Adapter) Acquire(ctx context.Context, cfg *config.StreamConfig) (*events.Batch, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	alloc, err := a.allocatorFor(cfg)
	if err != nil {
		return nil, err
	}

	batch, err := a.load(ctx, cfg.Source, alloc)
	if err != nil {
		return nil, err
	}
	a.logger.Info("source loaded",
		zap.String("source", cfg.Source),
		zap.Int("events", batch.Len()))

	if cfg.Multiplier <= 1 {
		return batch, nil
	}

	amplified, err := events.Amplify(batch, cfg.Multiplier,
		events.WithAllocator(alloc),
		events.WithTimeOffset(cfg.TimeOffset))
	batch.Release()
	if err != nil {
		return nil, err
	}
	a.logger.Info("source amplified",
		zap.Int("multiplier", cfg.Multiplier),
		zap.Int("events", amplified.Len()))
	return amplified, nil
}

// Load resolves and decodes id without validation or amplification.
func (a *Adapter) Load(ctx context.Context, id string) (*events.Batch, error) {
	alloc := a.allocator
	if alloc == nil {
		alloc = events.NewAllocator(0)
	}
	return a.load(ctx, id, alloc)
}

func (a *Adapter) load(ctx context.Context, id string, alloc *events.Allocator) (*events.Batch, error) {
	u, err := ParseIdentifier(id)
	if err != nil {
		return nil, err
	}

	opener, ok := a.openers[u.Scheme]
	if !ok {
		return nil, nerrors.Newf(nerrors.ErrorTypeSourceUnavailable, "unsupported source scheme %q", u.Scheme).
			WithDetail("source", id)
	}

	res, err := opener.Open(ctx, u)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	alg, inner := compression.FromPath(res.Name)
	decode, ok := decoders[strings.ToLower(path.Ext(inner))]
	if !ok {
		return nil, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "unrecognized source format %q", res.Name)
	}

	r, err := compression.NewReader(alg, res.Body)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return decode(r, alloc)
}

func (a *Adapter) allocatorFor(cfg *config.StreamConfig) (*events.Allocator, error) {
	if a.allocator != nil {
		return a.allocator, nil
	}
	if cfg.MemoryLimit > 0 {
		return events.NewAllocator(cfg.MemoryLimit), nil
	}
	alloc, err := events.HostAllocator()
	if err != nil {
		a.logger.Warn("cannot read host memory, batch size is unbounded", zap.Error(err))
		return events.NewAllocator(0), nil
	}
	return alloc, nil
}

// ParseIdentifier turns a source identifier into a URL. Identifiers without
// a scheme are local file paths.
func ParseIdentifier(id string) (*url.URL, error) {
	if id == "" {
		return nil, nerrors.New(nerrors.ErrorTypeSourceUnavailable, "empty source identifier")
	}
	if !strings.Contains(id, "://") {
		return &url.URL{Scheme: "file", Path: id}, nil
	}
	u, err := url.Parse(id)
	if err != nil {
		return nil, nerrors.Wrap(err, nerrors.ErrorTypeSourceUnavailable, "unresolvable source identifier").
			WithDetail("source", id)
	}
	return u, nil
}

func malformed(err error, format string) error {
	return nerrors.Wrap(err, nerrors.ErrorTypeMalformedSource, "invalid "+format+" source")
}
