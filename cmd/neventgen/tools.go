package main

import (
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/neventgen/pkg/compression"
	"github.com/ajitpratap0/neventgen/pkg/config"
	nerrors "github.com/ajitpratap0/neventgen/pkg/errors"
	"github.com/ajitpratap0/neventgen/pkg/events"
	"github.com/ajitpratap0/neventgen/pkg/source"
	"github.com/ajitpratap0/neventgen/pkg/transport"
	"github.com/ajitpratap0/neventgen/pkg/wire"
)

func newEncodeCmd() *cobra.Command {
	var (
		configFile string
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode events into length-prefixed wire messages without a broker",
		Long: `Run the generator against the file transport. Messages are written as
little-endian uint32 length prefixed frames to --topic, or to stdout when the
topic is "-". With --verify every frame is decoded again and checked.

Example:
  neventgen encode --source synth://?events=100000 --topic frames.bin --verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd.Flags(), configFile)
			if err != nil {
				return err
			}
			cfg.Transport.Kind = config.TransportFile
			if cfg.Transport.Topic == "" {
				cfg.Transport.Topic = transport.Stdout
			}
			out := cfg.Transport.Topic
			if verify && out == transport.Stdout {
				return nerrors.New(nerrors.ErrorTypeConfig, "--verify needs an output file in --topic")
			}
			if out != transport.Stdout {
				if err := os.Truncate(out, 0); err != nil && !os.IsNotExist(err) {
					return nerrors.Wrap(err, nerrors.ErrorTypeConfig, "cannot reset output file")
				}
			}
			if err := printEffective(cmd.ErrOrStderr(), cfg); err != nil {
				return err
			}

			report, err := runStream(cmd.Context(), cfg, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			if verify {
				messages, eventCount, err := verifyFrames(out, cfg.Format)
				if err != nil {
					return err
				}
				if uint64(messages) != report.MessagesSent || eventCount != report.EventsSent {
					return nerrors.Newf(nerrors.ErrorTypeEncoding,
						"verification found %d messages with %d events, sent %d with %d",
						messages, eventCount, report.MessagesSent, report.EventsSent)
				}
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "encoded %d messages (%d events, %d bytes)\n",
				report.MessagesSent, report.EventsSent, report.BytesSent)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to a YAML configuration file")
	cmd.Flags().BoolVar(&verify, "verify", false, "Decode the written frames and compare them with the run report")
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// verifyFrames decodes every frame in path and returns the message and
// event counts. Message IDs must be consecutive from zero.
func verifyFrames(path, format string) (int, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, nerrors.Wrap(err, nerrors.ErrorTypeSourceUnavailable, "cannot open encoded output")
	}
	defer f.Close()

	frames, err := transport.ReadFrames(f)
	if err != nil {
		return 0, 0, err
	}

	decode := wire.Decode
	if format == config.FormatJSON {
		decode = wire.DecodeJSON
	}

	var total int64
	for i, frame := range frames {
		msg, err := decode(frame)
		if err != nil {
			return 0, 0, nerrors.Wrap(err, nerrors.TypeOf(err), fmt.Sprintf("frame %d does not decode", i))
		}
		if msg.MessageID != uint64(i) {
			return 0, 0, nerrors.Newf(nerrors.ErrorTypeEncoding, "frame %d carries message id %d", i, msg.MessageID)
		}
		total += int64(msg.Len())
	}
	return len(frames), total, nil
}

func newSynthCmd() *cobra.Command {
	d := source.DefaultSynthParams()
	var (
		p      = d
		output string
		level  int
	)

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic .nev source file",
		Long: `Generate a reproducible pseudo-random event sequence and write it in the .nev
layout. A compression suffix on --output (.gz, .zst, .lz4, .s2, .snappy)
compresses the file.

Example:
  neventgen synth --events 1000000 --seed 7 --output events.nev.zst`,
		RunE: func(cmd *cobra.Command, args []string) error {
			batch, err := source.Synthesize(p, nil)
			if err != nil {
				return err
			}
			defer batch.Release()

			alg, err := writeSource(output, batch, compression.Level(level))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d events to %s (%s)\n", batch.Len(), output, alg)
			return nil
		},
	}

	cmd.Flags().IntVar(&p.Events, "events", d.Events, "Number of events")
	cmd.Flags().Int64Var(&p.Detectors, "detectors", d.Detectors, "Detector IDs are drawn from [1, detectors]")
	cmd.Flags().Int64Var(&p.Seed, "seed", d.Seed, "Random seed")
	cmd.Flags().Int32Var(&p.Period, "period", d.Period, "Time-of-flight period")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output path (required)")
	cmd.Flags().IntVar(&level, "level", int(compression.Default), "Compression level (1 fastest to 9 best)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// writeSource writes batch to path in the .nev layout, compressed with the
// algorithm implied by the path suffix.
func writeSource(path string, batch *events.Batch, level compression.Level) (compression.Algorithm, error) {
	alg, _ := compression.FromPath(path)

	f, err := os.Create(path)
	if err != nil {
		return alg, nerrors.Wrap(err, nerrors.ErrorTypeConfig, "cannot create output file").WithDetail("path", path)
	}
	defer f.Close()

	w, err := compression.NewWriter(alg, f, level)
	if err != nil {
		return alg, err
	}
	if err := source.Write(w, batch); err != nil {
		w.Close()
		return alg, err
	}
	if err := w.Close(); err != nil {
		return alg, nerrors.Wrap(err, nerrors.ErrorTypeInternal, "failed to finish compressed stream")
	}
	if err := f.Close(); err != nil {
		return alg, nerrors.Wrap(err, nerrors.ErrorTypeInternal, "failed to close output file")
	}
	return alg, nil
}
