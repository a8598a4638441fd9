package source

import (
	"context"
	"io"
	"math/rand"
	"net/url"
	"strconv"

	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/events"
)

// SynthParams describes a synthetic event sequence.
type SynthParams struct {
	// Events is the number of events
	Events int
	// Detectors bounds detector IDs to [1, Detectors]
	Detectors int64
	// Seed makes the sequence reproducible
	Seed int64
	// Period bounds time-of-flight values to [0, Period)
	Period int32
}

// DefaultSynthParams returns the parameters used for omitted query values.
func DefaultSynthParams() SynthParams {
	return SynthParams{
		Events:    1000,
		Detectors: 1 << 16,
		Seed:      1,
		Period:    71_428_571, // one 14 Hz pulse in ns
	}
}

func normalizeSynthParams(p SynthParams) SynthParams {
	d := DefaultSynthParams()
	if p.Events < 0 {
		p.Events = d.Events
	}
	if p.Detectors <= 0 {
		p.Detectors = d.Detectors
	}
	if p.Period <= 0 {
		p.Period = d.Period
	}
	return p
}

// synthStream draws the events of a synthetic sequence one at a time.
type synthStream struct {
	p    SynthParams
	rnd  *rand.Rand
	step int32
	tof  int64
}

func newSynthStream(p SynthParams) *synthStream {
	step := p.Period / 64
	if step < 1 {
		step = 1
	}
	return &synthStream{p: p, rnd: rand.New(rand.NewSource(p.Seed)), step: step}
}

func (s *synthStream) next() events.Event {
	// int64 keeps periods close to MaxInt32 from overflowing.
	s.tof = (s.tof + int64(s.rnd.Int31n(s.step))) % int64(s.p.Period)
	return events.Event{
		DetectorID: 1 + s.rnd.Int63n(s.p.Detectors),
		Timestamp:  int32(s.tof),
	}
}

// Synthesize fills a batch with a deterministic pseudo-random sequence.
// Time-of-flight values ascend within each pulse and wrap at Period.
func Synthesize(p SynthParams, alloc *events.Allocator) (*events.Batch, error) {
	p = normalizeSynthParams(p)
	if alloc == nil {
		alloc = events.NewAllocator(0)
	}

	batch, err := alloc.New(p.Events)
	if err != nil {
		return nil, err
	}
	stream := newSynthStream(p)
	for i := 0; i < p.Events; i++ {
		batch.Set(i, stream.next())
	}
	return batch, nil
}

// ParseSynthParams reads events, detectors, seed and period from a synth URL.
func ParseSynthParams(u *url.URL) (SynthParams, error) {
	p := DefaultSynthParams()
	q := u.Query()

	if v := q.Get("events"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return p, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "invalid synthetic event count %q", v)
		}
		p.Events = n
	}
	if v := q.Get("detectors"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return p, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "invalid synthetic detector count %q", v)
		}
		p.Detectors = n
	}
	if v := q.Get("seed"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return p, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "invalid synthetic seed %q", v)
		}
		p.Seed = n
	}
	if v := q.Get("period"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n < 1 {
			return p, nerrors.Newf(nerrors.ErrorTypeMalformedSource, "invalid synthetic period %q", v)
		}
		p.Period = int32(n)
	}
	return p, nil
}

// openSynth serves the synthetic sequence in the .nev layout without
// materializing it, so the decoder's allocator is the only one that holds
// the events.
func openSynth(_ context.Context, u *url.URL) (*Resource, error) {
	p, err := ParseSynthParams(u)
	if err != nil {
		return nil, err
	}
	p = normalizeSynthParams(p)

	// The .nev layout stores all detector IDs before all timestamps, so each
	// column replays the sequence from the seed.
	ids, tofs := newSynthStream(p), newSynthStream(p)
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeNEV(pw, p.Events,
			func() int64 { return ids.next().DetectorID },
			func() int32 { return tofs.next().Timestamp }))
	}()

	return &Resource{Name: "synth.nev", Body: pr}, nil
}
