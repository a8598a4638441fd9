// Package flow paces a stream of events into chunks.
//
// A Controller walks an event sequence of known length and hands out
// contiguous (offset, length) ranges in order. It owns the pacing policy:
// the fixed delay between messages, an optional messages-per-second rate,
// the number of passes over the data and an optional wall-clock budget.
//
// States:
//
//	Idle -> Streaming -> Draining -> Done
//	          |             |
//	          +--> Faulted <+
//
// Draining is entered when the last chunk of the final pass is shorter than
// the nominal chunk size; that chunk is still emitted.
package flow

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
)

// State is the controller state.
type State int

const (
	// Idle is the initial state
	Idle State = iota
	// Streaming hands out full-size chunks
	Streaming
	// Draining has handed out the final short chunk
	Draining
	// Done is terminal: every event was dispatched or the duration budget ran out
	Done
	// Faulted is terminal: a downstream failure aborted the stream
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Streaming:
		return "streaming"
	case Draining:
		return "draining"
	case Done:
		return "done"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Params holds the pacing parameters.
type Params struct {
	// ChunkSize is the nominal number of events per chunk
	ChunkSize int
	// Delay is the pause before every chunk but the first
	Delay time.Duration
	// Rate caps chunks per second (0 = unlimited)
	Rate float64
	// Repeat is the number of passes over the sequence
	Repeat int
	// Duration stops the stream after this much wall-clock time (0 = unlimited)
	Duration time.Duration
}

// Chunk is a contiguous range of the event sequence.
type Chunk struct {
	// Seq numbers chunks from 0 across all passes
	Seq uint64
	// Pass is the 0-based pass the chunk belongs to
	Pass   int
	Offset int
	Length int
}

// End returns the exclusive end offset of the chunk.
func (c Chunk) End() int {
	return c.Offset + c.Length
}

// Controller is the pacing state machine. It is not safe for concurrent use;
// a run drives it from a single goroutine.
type Controller struct {
	total  int
	params Params

	state   State
	pass    int
	offset  int
	seq     uint64
	err     error
	limiter *rate.Limiter

	now      func() time.Time
	deadline time.Time
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// New returns an Idle controller for total events.
func New(total int, params Params, opts ...Option) (*Controller, error) {
	if total < 0 {
		return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "negative event total %d", total)
	}
	if params.ChunkSize < 1 {
		return nil, nerrors.Newf(nerrors.ErrorTypeConfig, "chunk size must be positive, got %d", params.ChunkSize)
	}
	if params.Repeat < 1 {
		params.Repeat = 1
	}

	c := &Controller{
		total:  total,
		params: params,
		now:    time.Now,
	}
	if params.Rate > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(params.Rate), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Err returns the failure recorded by Fail.
func (c *Controller) Err() error {
	return c.err
}

// Emitted returns the number of chunks handed out so far.
func (c *Controller) Emitted() uint64 {
	return c.seq
}

// Next blocks for the pacing delay and returns the next chunk. It returns
// false once the controller is Done. A cancelled context faults the
// controller and is returned as an error.
func (c *Controller) Next(ctx context.Context) (Chunk, bool, error) {
	switch c.state {
	case Done:
		return Chunk{}, false, nil
	case Faulted:
		return Chunk{}, false, c.err
	case Idle:
		if c.params.Duration > 0 {
			c.deadline = c.now().Add(c.params.Duration)
		}
		if c.total == 0 {
			c.state = Done
			return Chunk{}, false, nil
		}
		c.state = Streaming
	default:
		if c.pass >= c.params.Repeat {
			c.state = Done
			return Chunk{}, false, nil
		}
		if err := c.pace(ctx); err != nil {
			c.Fail(err)
			return Chunk{}, false, err
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			err = nerrors.Wrap(err, nerrors.ErrorTypeCancelled, "rate limiter wait interrupted")
			c.Fail(err)
			return Chunk{}, false, err
		}
	}

	if !c.deadline.IsZero() && !c.now().Before(c.deadline) {
		c.state = Done
		return Chunk{}, false, nil
	}

	length := c.params.ChunkSize
	if remaining := c.total - c.offset; remaining < length {
		length = remaining
	}
	chunk := Chunk{
		Seq:    c.seq,
		Pass:   c.pass,
		Offset: c.offset,
		Length: length,
	}

	c.seq++
	c.offset += length
	if c.offset == c.total {
		c.offset = 0
		c.pass++
	}
	if c.pass >= c.params.Repeat && length < c.params.ChunkSize {
		c.state = Draining
	}

	return chunk, true, nil
}

// Fail moves a Streaming or Draining controller to Faulted. It returns
// false when the controller was in any other state.
func (c *Controller) Fail(err error) bool {
	if c.state != Streaming && c.state != Draining {
		return false
	}
	c.state = Faulted
	c.err = err
	return true
}

func (c *Controller) pace(ctx context.Context) error {
	if c.params.Delay <= 0 {
		if err := ctx.Err(); err != nil {
			return nerrors.Wrap(err, nerrors.ErrorTypeCancelled, "stream cancelled")
		}
		return nil
	}

	timer := time.NewTimer(c.params.Delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nerrors.Wrap(ctx.Err(), nerrors.ErrorTypeCancelled, "stream cancelled during pacing delay")
	case <-timer.C:
		return nil
	}
}

// ChunkCount returns the number of chunks one pass over total events yields.
func ChunkCount(total, chunkSize int) int {
	if total <= 0 || chunkSize <= 0 {
		return 0
	}
	return (total + chunkSize - 1) / chunkSize
}
