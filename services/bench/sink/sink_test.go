// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package sink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInflux struct {
	mu     sync.Mutex
	bodies []string
	status int
}

func (f *fakeInflux) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/write", r.URL.Path)
		assert.Equal(t, "bench", r.URL.Query().Get("bucket"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		f.mu.Lock()
		f.bodies = append(f.bodies, string(body))
		status := f.status
		f.mu.Unlock()

		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	})
}

func (f *fakeInflux) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func TestPoint(t *testing.T) {
	p := Point(Sample{
		RunID:        "r1",
		ClassifierID: "bayes",
		Index:        4,
		Verdict:      "spam",
		Runtime:      1500 * time.Nanosecond,
		Timestamp:    time.Unix(10, 0),
	})

	assert.Equal(t, Measurement, p.Name())
	tags := map[string]string{}
	for _, tag := range p.TagList() {
		tags[tag.Key] = tag.Value
	}
	assert.Equal(t, map[string]string{"run_id": "r1", "classifier": "bayes", "test_case": "4"}, tags)

	fields := map[string]interface{}{}
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	assert.Equal(t, "spam", fields["verdict"])
	assert.Equal(t, int64(1500), fields["runtime_ns"])
	assert.Equal(t, false, fields["failed"])
}

func TestInfluxSink_BatchesAndFlushes(t *testing.T) {
	fake := &fakeInflux{}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	s, err := NewInflux(InfluxConfig{URL: srv.URL, Token: "t", Org: "o", Bucket: "bench", BatchSize: 2})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, Sample{RunID: "r", ClassifierID: "a", Index: 0, Verdict: "valid"}))
	assert.Empty(t, fake.writes(), "below batch size")

	require.NoError(t, s.Write(ctx, Sample{RunID: "r", ClassifierID: "a", Index: 1, Verdict: "spam"}))
	require.Len(t, fake.writes(), 1)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(fake.writes()[0]), "\n")+1)

	require.NoError(t, s.Write(ctx, Sample{RunID: "r", ClassifierID: "a", Index: 2, Failed: true}))
	require.NoError(t, s.Flush(ctx))
	writes := fake.writes()
	require.Len(t, writes, 2)
	assert.Contains(t, writes[1], Measurement)
	assert.Contains(t, writes[1], "test_case=2")
	assert.Contains(t, writes[1], "failed=true")

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Write(ctx, Sample{}), ErrClosed)
	assert.NoError(t, s.Close())
}

func TestInfluxSink_ServerError(t *testing.T) {
	fake := &fakeInflux{status: http.StatusUnauthorized}
	srv := httptest.NewServer(fake.handler(t))
	defer srv.Close()

	s, err := NewInflux(InfluxConfig{URL: srv.URL, Org: "o", Bucket: "bench"})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Write(context.Background(), Sample{ClassifierID: "a"}))
	assert.Error(t, s.Flush(context.Background()))
}

func TestNewInflux_RequiresFields(t *testing.T) {
	_, err := NewInflux(InfluxConfig{URL: "http://x"})
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	assert.NoError(t, s.Write(context.Background(), Sample{}))
	assert.NoError(t, s.Flush(context.Background()))
	assert.NoError(t, s.Close())
}
