package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters for requests and engine
// outcomes (routing, escalation, lock contention).
type Metrics struct {
	mu             sync.Mutex
	requestCount   map[string]int64
	errorCount     map[string]int64
	routingCount   map[string]int64
	escalations    int64
	lockContention int64
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		routingCount: make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + strconv.Itoa(status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordRouting counts one routing outcome (spatial, category,
// saps_spatial, saps_category, saps_gap, none).
func (m *Metrics) RecordRouting(outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routingCount[outcome]++
}

// RecordEscalation counts one completed escalation.
func (m *Metrics) RecordEscalation() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations++
}

// RecordLockContention counts one skipped escalation due to a held lock.
func (m *Metrics) RecordLockContention() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockContention++
}

// RoutingCount reads a routing outcome counter.
func (m *Metrics) RoutingCount(outcome string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routingCount[outcome]
}

// Escalations reads the escalation counter.
func (m *Metrics) Escalations() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.escalations
}

// LockContention reads the lock contention counter.
func (m *Metrics) LockContention() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lockContention
}
