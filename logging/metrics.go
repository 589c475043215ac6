package logging

import (
	"sort"
	"sync"
)

// Metric keys maintained by the router itself.
const (
	MetricEventsTotal   = "logging_events_total"
	MetricEventsDropped = "logging_events_dropped"
)

// Metrics is a set of named counters and gauges. The zero value is ready to
// use.
type Metrics struct {
	mu     sync.Mutex
	values map[string]uint64
}

// TelemetryAdd increments key by delta.
func (m *Metrics) TelemetryAdd(key string, delta uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	if m.values == nil {
		m.values = make(map[string]uint64)
	}
	m.values[key] += delta
	m.mu.Unlock()
}

// TelemetryStore overwrites key with value.
func (m *Metrics) TelemetryStore(key string, value uint64) {
	if m == nil || key == "" {
		return
	}
	m.mu.Lock()
	if m.values == nil {
		m.values = make(map[string]uint64)
	}
	m.values[key] = value
	m.mu.Unlock()
}

// Value returns the current value of key.
func (m *Metrics) Value(key string) uint64 {
	if m == nil {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key]
}

// Snapshot copies every value.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64)
	if m == nil {
		return out
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.values {
		out[k] = v
	}
	return out
}

// Keys returns the metric names in sorted order.
func (m *Metrics) Keys() []string {
	snapshot := m.Snapshot()
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
