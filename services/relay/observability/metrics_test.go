// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// ============================================================================
// Test Helper: Create isolated metrics for testing
// ============================================================================

// newTestMetrics creates a StreamingMetrics instance with a custom registry.
// This avoids conflicts with the global Prometheus registry and allows
// parallel testing.
func newTestMetrics(t *testing.T) *StreamingMetrics {
	t.Helper()

	reg := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "requests_total",
			Help:      "Total number of streaming requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	framesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "frames_total",
			Help:      "Total wire frames written by frame type",
		},
		[]string{"frame_type"},
	)

	fileReadsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "file_reads_total",
			Help:      "Total file retrieval attempts by outcome",
		},
		[]string{"outcome"},
	)

	incrementsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "increments_total",
			Help:      "Total generation increments received by backend",
		},
		[]string{"backend"},
	)

	timeToFirstIncrementSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "time_to_first_increment_seconds",
			Help:      "Time from request to first generation increment in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
		},
		[]string{"endpoint"},
	)

	streamDurationSeconds := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Total stream duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"endpoint", "status"},
	)

	activeStreams := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "active_streams",
			Help:      "Number of currently active streaming connections",
		},
		[]string{"endpoint"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: streamingSubsystem,
			Name:      "errors_total",
			Help:      "Total streaming errors by type and endpoint",
		},
		[]string{"endpoint", "error_code"},
	)

	reg.MustRegister(
		requestsTotal,
		framesTotal,
		fileReadsTotal,
		incrementsTotal,
		timeToFirstIncrementSeconds,
		streamDurationSeconds,
		activeStreams,
		errorsTotal,
	)

	return &StreamingMetrics{
		RequestsTotal:               requestsTotal,
		FramesTotal:                 framesTotal,
		FileReadsTotal:              fileReadsTotal,
		IncrementsTotal:             incrementsTotal,
		TimeToFirstIncrementSeconds: timeToFirstIncrementSeconds,
		StreamDurationSeconds:       streamDurationSeconds,
		ActiveStreams:               activeStreams,
		ErrorsTotal:                 errorsTotal,
	}
}

// ============================================================================
// Constants Tests
// ============================================================================

func TestConstants(t *testing.T) {
	if metricsNamespace != "chatrelay" {
		t.Errorf("metricsNamespace = %q, want %q", metricsNamespace, "chatrelay")
	}
	if streamingSubsystem != "streaming" {
		t.Errorf("streamingSubsystem = %q, want %q", streamingSubsystem, "streaming")
	}
	if EndpointChatStream != "chat_stream" {
		t.Errorf("EndpointChatStream = %q, want %q", EndpointChatStream, "chat_stream")
	}
}

// ============================================================================
// RecordRequest Tests
// ============================================================================

func TestStreamingMetrics_RecordRequest(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordRequest(EndpointChatStream, true)
	m.RecordRequest(EndpointChatStream, true)
	m.RecordRequest(EndpointChatStream, false)

	successVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "success"))
	if successVal != 2 {
		t.Errorf("RequestsTotal[chat_stream,success] = %f, want 2", successVal)
	}

	errorVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "error"))
	if errorVal != 1 {
		t.Errorf("RequestsTotal[chat_stream,error] = %f, want 1", errorVal)
	}
}

// ============================================================================
// RecordFrame Tests
// ============================================================================

func TestStreamingMetrics_RecordFrame(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordFrame("text")
	m.RecordFrame("text")
	m.RecordFrame("data")
	m.RecordFrame("finish")

	textVal := testutil.ToFloat64(m.FramesTotal.WithLabelValues("text"))
	if textVal != 2 {
		t.Errorf("FramesTotal[text] = %f, want 2", textVal)
	}

	finishVal := testutil.ToFloat64(m.FramesTotal.WithLabelValues("finish"))
	if finishVal != 1 {
		t.Errorf("FramesTotal[finish] = %f, want 1", finishVal)
	}
}

// ============================================================================
// RecordFileRead Tests
// ============================================================================

func TestStreamingMetrics_RecordFileRead(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordFileRead("served")
	m.RecordFileRead("served")
	m.RecordFileRead("not_found")
	m.RecordFileRead("path_escape")

	servedVal := testutil.ToFloat64(m.FileReadsTotal.WithLabelValues("served"))
	if servedVal != 2 {
		t.Errorf("FileReadsTotal[served] = %f, want 2", servedVal)
	}

	escapeVal := testutil.ToFloat64(m.FileReadsTotal.WithLabelValues("path_escape"))
	if escapeVal != 1 {
		t.Errorf("FileReadsTotal[path_escape] = %f, want 1", escapeVal)
	}
}

// ============================================================================
// RecordIncrements Tests
// ============================================================================

func TestStreamingMetrics_RecordIncrements(t *testing.T) {
	m := newTestMetrics(t)

	m.RecordIncrements(10, "openai")
	m.RecordIncrements(5, "openai")
	m.RecordIncrements(7, "ollama")

	openaiVal := testutil.ToFloat64(m.IncrementsTotal.WithLabelValues("openai"))
	if openaiVal != 15 {
		t.Errorf("IncrementsTotal[openai] = %f, want 15", openaiVal)
	}

	ollamaVal := testutil.ToFloat64(m.IncrementsTotal.WithLabelValues("ollama"))
	if ollamaVal != 7 {
		t.Errorf("IncrementsTotal[ollama] = %f, want 7", ollamaVal)
	}
}

// ============================================================================
// Stream Lifecycle Tests
// ============================================================================

func TestStreamingMetrics_StreamLifecycle(t *testing.T) {
	m := newTestMetrics(t)

	m.StreamStarted(EndpointChatStream)
	m.StreamStarted(EndpointChatStream)

	val := testutil.ToFloat64(m.ActiveStreams.WithLabelValues("chat_stream"))
	if val != 2 {
		t.Errorf("After 2 starts: ActiveStreams = %f, want 2", val)
	}

	m.StreamEnded(EndpointChatStream)
	m.StreamEnded(EndpointChatStream)

	val = testutil.ToFloat64(m.ActiveStreams.WithLabelValues("chat_stream"))
	if val != 0 {
		t.Errorf("After all ends: ActiveStreams = %f, want 0", val)
	}
}

// ============================================================================
// Scenario Tests
// ============================================================================

func TestStreamingMetrics_CompleteStreamScenario(t *testing.T) {
	m := newTestMetrics(t)

	// Simulate a complete successful stream
	m.StreamStarted(EndpointChatStream)
	m.RecordFileRead("served")
	m.RecordFrame("data")
	m.RecordTimeToFirstIncrement(EndpointChatStream, 0.4)
	m.RecordFrame("text")
	m.RecordFrame("text")
	m.RecordIncrements(2, "openai")
	m.RecordFrame("finish")
	m.RecordStreamDuration(EndpointChatStream, 3.0, true)
	m.StreamEnded(EndpointChatStream)
	m.RecordRequest(EndpointChatStream, true)

	activeVal := testutil.ToFloat64(m.ActiveStreams.WithLabelValues("chat_stream"))
	if activeVal != 0 {
		t.Errorf("ActiveStreams should be 0 after stream ended, got %f", activeVal)
	}

	requestsVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "success"))
	if requestsVal != 1 {
		t.Errorf("RequestsTotal[success] should be 1, got %f", requestsVal)
	}
}

func TestStreamingMetrics_FailedStreamScenario(t *testing.T) {
	m := newTestMetrics(t)

	// Simulate a mid-stream provider failure
	m.StreamStarted(EndpointChatStream)
	m.RecordTimeToFirstIncrement(EndpointChatStream, 0.3)
	m.RecordError(EndpointChatStream, ErrorCodeLLMError)
	m.RecordFrame("error")
	m.RecordFrame("finish")
	m.RecordStreamDuration(EndpointChatStream, 5.0, false)
	m.StreamEnded(EndpointChatStream)
	m.RecordRequest(EndpointChatStream, false)

	errorsVal := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("chat_stream", "llm_error"))
	if errorsVal != 1 {
		t.Errorf("ErrorsTotal[llm_error] should be 1, got %f", errorsVal)
	}

	requestsVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "error"))
	if requestsVal != 1 {
		t.Errorf("RequestsTotal[error] should be 1, got %f", requestsVal)
	}
}

// ============================================================================
// Concurrent Safety Tests
// ============================================================================

func TestStreamingMetrics_ConcurrentSafety(t *testing.T) {
	m := newTestMetrics(t)

	done := make(chan bool, 60)

	for i := 0; i < 20; i++ {
		go func() {
			m.RecordRequest(EndpointChatStream, true)
			done <- true
		}()
	}

	for i := 0; i < 20; i++ {
		go func() {
			m.RecordFrame("text")
			m.RecordIncrements(1, "openai")
			done <- true
		}()
	}

	for i := 0; i < 20; i++ {
		go func() {
			m.StreamStarted(EndpointChatStream)
			m.StreamEnded(EndpointChatStream)
			done <- true
		}()
	}

	for i := 0; i < 60; i++ {
		<-done
	}

	requestsVal := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("chat_stream", "success"))
	if requestsVal != 20 {
		t.Errorf("RequestsTotal[chat_stream,success] = %f, want 20", requestsVal)
	}

	framesVal := testutil.ToFloat64(m.FramesTotal.WithLabelValues("text"))
	if framesVal != 20 {
		t.Errorf("FramesTotal[text] = %f, want 20", framesVal)
	}
}
