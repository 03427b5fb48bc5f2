package storage

import (
	"sync"
	"time"
)

// Health statuses reported by sinks
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Health is the last known state of one sink
type Health struct {
	LastCheck   time.Time `json:"lastCheck"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	RowsWritten int64     `json:"rowsWritten"`
}

// HealthManager keeps sink health in memory
type HealthManager struct {
	mu     sync.RWMutex
	health map[string]Health
}

// GlobalHealthManager is the process-wide health registry
var GlobalHealthManager = NewHealthManager()

// NewHealthManager creates a new health manager
func NewHealthManager() *HealthManager {
	return &HealthManager{
		health: make(map[string]Health),
	}
}

// RecordWrite marks a successful row write for the named sink
func (hm *HealthManager) RecordWrite(name string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	h := hm.health[name]
	h.LastCheck = time.Now()
	h.Status = StatusHealthy
	h.Message = ""
	h.Error = ""
	h.RowsWritten++
	hm.health[name] = h
}

// RecordError marks a failed operation for the named sink
func (hm *HealthManager) RecordError(name string, err error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	h := hm.health[name]
	h.LastCheck = time.Now()
	h.Status = StatusUnhealthy
	h.Message = "write failed"
	h.Error = err.Error()
	hm.health[name] = h
}

// UpdateHealth replaces status and message for the named sink, keeping its row count
func (hm *HealthManager) UpdateHealth(name, status, message string) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	h := hm.health[name]
	h.LastCheck = time.Now()
	h.Status = status
	h.Message = message
	h.Error = ""
	hm.health[name] = h
}

// GetHealth retrieves the health status for a specific sink
func (hm *HealthManager) GetHealth(name string) (Health, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	h, exists := hm.health[name]
	return h, exists
}

// GetAllHealth returns a copy of every sink's health
func (hm *HealthManager) GetAllHealth() map[string]Health {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	result := make(map[string]Health, len(hm.health))
	for k, v := range hm.health {
		result[k] = v
	}
	return result
}

// IsHealthy reports whether the sink is healthy and was checked within maxAge
func (hm *HealthManager) IsHealthy(name string, maxAge time.Duration) bool {
	h, exists := hm.GetHealth(name)
	if !exists {
		return false
	}

	if time.Since(h.LastCheck) > maxAge {
		return false
	}

	return h.Status == StatusHealthy
}
