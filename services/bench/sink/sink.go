// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package sink exports per-sample measurements to an external time-series store.
package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement name for classifier samples.
const Measurement = "classifier_evaluations"

// ErrClosed is returned when writing to a closed sink.
var ErrClosed = errors.New("sink is closed")

// Sample is one classified (or failed) test case.
type Sample struct {
	RunID        string
	ClassifierID string
	Index        int
	Verdict      string
	Runtime      time.Duration
	Failed       bool
	Timestamp    time.Time
}

// Sink receives samples as a run progresses. Errors from a sink are never
// fatal to the run.
type Sink interface {
	Write(ctx context.Context, s Sample) error
	Flush(ctx context.Context) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Write(context.Context, Sample) error { return nil }
func (Nop) Flush(context.Context) error         { return nil }
func (Nop) Close() error                        { return nil }

// InfluxConfig configures the InfluxDB sink.
type InfluxConfig struct {
	URL       string
	Token     string
	Org       string
	Bucket    string
	BatchSize int
}

// InfluxSink writes samples as points through the blocking write API.
//
// Description:
//
//	Points are buffered and written in batches of BatchSize, and on every
//	Flush. The orchestrator flushes at the end of each classifier pass.
//
// Thread Safety: Safe for concurrent use.
type InfluxSink struct {
	mu        sync.Mutex
	client    influxdb2.Client
	writeAPI  api.WriteAPIBlocking
	buffer    []*write.Point
	batchSize int
	closed    bool
}

// NewInflux creates an InfluxDB sink. No connection is made until the first
// flush.
func NewInflux(cfg InfluxConfig) (*InfluxSink, error) {
	if cfg.URL == "" || cfg.Org == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("influx sink: url, org and bucket are required")
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client:    client,
		writeAPI:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		batchSize: batch,
	}, nil
}

// Point converts a sample to an InfluxDB point.
func Point(s Sample) *write.Point {
	ts := s.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return influxdb2.NewPointWithMeasurement(Measurement).
		AddTag("run_id", s.RunID).
		AddTag("classifier", s.ClassifierID).
		AddTag("test_case", strconv.Itoa(s.Index)).
		AddField("verdict", s.Verdict).
		AddField("runtime_ns", s.Runtime.Nanoseconds()).
		AddField("failed", s.Failed).
		SetTime(ts)
}

// Write buffers a sample, flushing when the batch is full.
func (k *InfluxSink) Write(ctx context.Context, s Sample) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return ErrClosed
	}
	k.buffer = append(k.buffer, Point(s))
	if len(k.buffer) >= k.batchSize {
		return k.flushLocked(ctx)
	}
	return nil
}

// Flush writes all buffered points.
func (k *InfluxSink) Flush(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.flushLocked(ctx)
}

func (k *InfluxSink) flushLocked(ctx context.Context) error {
	if len(k.buffer) == 0 {
		return nil
	}
	points := k.buffer
	k.buffer = nil
	if err := k.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("influx write %d points: %w", len(points), err)
	}
	return nil
}

// Close flushes remaining points and releases the client.
func (k *InfluxSink) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	err := k.flushLocked(context.Background())
	k.closed = true
	k.client.Close()
	return err
}
