// Package health aggregates worker stats, queue depth and memory pressure
// into an overall service status served over HTTP.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/mediamill/mediamill/internal/events"
	"github.com/mediamill/mediamill/internal/logger"
	"github.com/mediamill/mediamill/internal/media"
	"github.com/mediamill/mediamill/internal/queue"
	"github.com/mediamill/mediamill/internal/worker"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Backlog thresholds per media type. Video queues degrade at much smaller
// depths because each job runs minutes, not milliseconds.
var degradedDepth = map[media.Type]int64{
	media.TypeImage: 100,
	media.TypeVideo: 10,
}

const memoryDegradedPercent = 85.0

type QueueHealth struct {
	Waiting int64  `json:"waiting"`
	Active  int64  `json:"active"`
	Status  Status `json:"status"`
}

type Response struct {
	Status    Status                     `json:"status"`
	Queues    map[string]QueueHealth     `json:"queues,omitempty"`
	Workers   map[string]worker.Snapshot `json:"workers,omitempty"`
	MemoryPct float64                    `json:"memoryUsedPercent"`
	Redis     Status                     `json:"redis"`
	Timestamp time.Time                  `json:"timestamp"`
}

// Monitor computes the service status on demand and announces transitions on
// the event bus.
type Monitor struct {
	client    *redis.Client
	inspector *queue.Inspector
	engines   map[media.Type]*worker.Engine
	bus       *events.Bus

	mu   sync.Mutex
	last Status
}

func NewMonitor(client *redis.Client, inspector *queue.Inspector, engines map[media.Type]*worker.Engine, bus *events.Bus) *Monitor {
	return &Monitor{
		client:    client,
		inspector: inspector,
		engines:   engines,
		bus:       bus,
		last:      StatusHealthy,
	}
}

func (m *Monitor) Check(ctx context.Context) Response {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp := Response{
		Status:    StatusHealthy,
		Queues:    make(map[string]QueueHealth),
		Workers:   make(map[string]worker.Snapshot),
		Redis:     StatusHealthy,
		Timestamp: time.Now().UTC(),
	}

	if err := m.client.Ping(ctx).Err(); err != nil {
		resp.Redis = StatusUnhealthy
		resp.Status = StatusUnhealthy
	}

	if resp.Redis == StatusHealthy {
		depths, err := m.inspector.All(ctx)
		if err != nil {
			logger.Default().Warn("queue depth check failed", "error", err)
			resp.Status = worse(resp.Status, StatusDegraded)
		} else {
			for mediaType, d := range depths {
				qh := QueueHealth{Waiting: d.Waiting, Active: d.Active, Status: StatusHealthy}
				if threshold, ok := degradedDepth[mediaType]; ok && d.Waiting > threshold {
					qh.Status = StatusDegraded
					resp.Status = worse(resp.Status, StatusDegraded)
				}
				resp.Queues[string(mediaType)] = qh
			}
		}
	}

	for mediaType, engine := range m.engines {
		resp.Workers[string(mediaType)] = engine.Stats().Snapshot()
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp.MemoryPct = vm.UsedPercent
		if vm.UsedPercent > memoryDegradedPercent {
			resp.Status = worse(resp.Status, StatusDegraded)
		}
	}

	m.announce(resp.Status)
	return resp
}

// announce publishes a transition event when the status changes between checks.
func (m *Monitor) announce(current Status) {
	m.mu.Lock()
	previous := m.last
	m.last = current
	m.mu.Unlock()

	if current == previous || m.bus == nil {
		return
	}
	logger.Default().Info("health status changed",
		"from", string(previous), "to", string(current))
	m.bus.Publish(events.Event{
		Kind:   events.HealthChanged,
		Detail: string(current),
	})
}

// Handler serves the full health report. Unhealthy maps to 503 so load
// balancers stop routing.
func (m *Monitor) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := m.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == StatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.Default().Error("failed to encode health response", "error", err)
		}
	}
}

// LivenessHandler only proves the process is serving; no dependencies.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
}

func worse(current, candidate Status) Status {
	rank := map[Status]int{StatusHealthy: 0, StatusDegraded: 1, StatusUnhealthy: 2}
	if rank[candidate] > rank[current] {
		return candidate
	}
	return current
}
