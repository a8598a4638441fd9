// Package neventgen streams raw neutron detector events to a message broker.
//
// A run loads a batch of (detector id, time of flight) events from a NEV
// file, an object store or a synthetic generator, optionally amplifies it,
// and publishes it as a paced, strictly ordered sequence of self-describing
// wire messages.
//
// # Quick Start
//
//	neventgen synth --events 1000000 --output events.nev.zst
//	neventgen run --source events.nev.zst --broker localhost:9092 --topic detector_events
//
// # Key Packages
//
//	pkg/source       - Loads event batches (file, s3://, gs://, synth://)
//	pkg/events       - Event batch and memory allocator
//	pkg/flow         - Chunking, pacing and run state
//	pkg/wire         - ev42 flatbuffer and JSON message encoding
//	pkg/transport    - Kafka, NATS and file transmitters
//	pkg/pvfield      - Typed access to process variable fields
//	pkg/config       - Configuration resolution (file, env, flags)
//	internal/generator - The streaming run itself
//
// # Configuration
//
// Settings are resolved from defaults, an optional YAML file, environment
// variables prefixed with NEVENTGEN_ and command line flags, in that order.
//
// # Performance
//
// Encoders reuse flatbuffer builders through pkg/pool and large source files
// are read through a memory mapping. The --cpuprofile and --memprofile flags
// write pprof profiles for any command.
package neventgen
