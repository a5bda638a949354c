// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	Cancelled int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Chunk metrics (only for streams)
	TotalContentChunks int64
	TotalCitations     int64
	TotalArtifacts     int64
	MinContentChunks   int64
	MaxContentChunks   int64
}

// ChunkCounts is what one stream delivered.
type ChunkCounts struct {
	Content   int64
	Citations int64
	Artifacts int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	Failures    int64
	Cancelled   int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64

	// Chunk stats (nil if not applicable)
	TotalContentChunks *int64
	AvgContentChunks   *float64
	MinContentChunks   *int64
	MaxContentChunks   *int64
	TotalCitations     *int64
	TotalArtifacts     *int64
}

// Snapshot represents the client statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	ChatStream    *OperationSnapshot
	FirstChunk    *OperationSnapshot
	ChatSend      *OperationSnapshot
	APIRequest    *OperationSnapshot
}

// Operation names for the collector.
const (
	OpChatStream = "chat_stream"
	OpFirstChunk = "first_chunk"
	OpChatSend   = "chat_send"
	OpAPIRequest = "api_request"
)

// Outcome classifies how an operation ended.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeFailed
	OutcomeCancelled
)

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and a nil *Collector records nothing.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime:          time.Duration(math.MaxInt64),
			MinContentChunks: math.MaxInt64,
		}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) addTiming(duration time.Duration, outcome Outcome) {
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}

	switch outcome {
	case OutcomeFailed:
		m.Failures++
	case OutcomeCancelled:
		m.Cancelled++
	}
}

// RecordTiming records a successful operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.RecordOutcome(op, duration, OutcomeOK)
}

// RecordOutcome records timing and how the operation ended.
func (c *Collector) RecordOutcome(op string, duration time.Duration, outcome Outcome) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).addTiming(duration, outcome)
}

// RecordStream records timing, outcome and chunk counts for one chat stream.
func (c *Collector) RecordStream(duration time.Duration, outcome Outcome, counts ChunkCounts) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(OpChatStream)
	m.addTiming(duration, outcome)

	m.TotalContentChunks += counts.Content
	m.TotalCitations += counts.Citations
	m.TotalArtifacts += counts.Artifacts

	if counts.Content < m.MinContentChunks {
		m.MinContentChunks = counts.Content
	}
	if counts.Content > m.MaxContentChunks {
		m.MaxContentChunks = counts.Content
	}
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeChunks bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		Cancelled:   m.Cancelled,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeChunks {
		total := m.TotalContentChunks
		avg := float64(m.TotalContentChunks) / float64(m.Count)
		minC := m.MinContentChunks
		maxC := m.MaxContentChunks
		cits := m.TotalCitations
		arts := m.TotalArtifacts

		// Reset sentinel value for display
		if minC == math.MaxInt64 {
			minC = 0
		}

		snap.TotalContentChunks = &total
		snap.AvgContentChunks = &avg
		snap.MinContentChunks = &minC
		snap.MaxContentChunks = &maxC
		snap.TotalCitations = &cits
		snap.TotalArtifacts = &arts
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		ChatStream:    snapshotOp(c.ops[OpChatStream], true),
		FirstChunk:    snapshotOp(c.ops[OpFirstChunk], false),
		ChatSend:      snapshotOp(c.ops[OpChatSend], false),
		APIRequest:    snapshotOp(c.ops[OpAPIRequest], false),
	}
}
