package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/SpanFreight/tracking/internal/config"
	"github.com/SpanFreight/tracking/internal/metrics"
)

// Status represents the health status of a component.
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name so JSON shows "healthy" rather
// than a number.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Pinger is anything that can report its own liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ComponentHealth holds health information for a component.
type ComponentHealth struct {
	Status              Status    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// Checker performs periodic health checks on registered components.
type Checker struct {
	mu         sync.RWMutex
	components map[string]Pinger
	state      map[string]*ComponentHealth
	metrics    *metrics.Collector

	interval         time.Duration
	failureThreshold int
	timeout          time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewChecker creates a new health checker with configurable parameters.
func NewChecker(m *metrics.Collector, hcCfg config.HealthCheckConfig) *Checker {
	c := &Checker{
		components: make(map[string]Pinger),
		state:      make(map[string]*ComponentHealth),
		metrics:    m,
		stopCh:     make(chan struct{}),
	}
	c.UpdateConfig(hcCfg)
	return c
}

// Register adds a component to be checked.
func (c *Checker) Register(name string, p Pinger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.components[name] = p
}

// UpdateConfig applies new check settings. The interval takes effect on the
// next tick.
func (c *Checker) UpdateConfig(hcCfg config.HealthCheckConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.interval = hcCfg.Interval
	if c.interval <= 0 {
		c.interval = 30 * time.Second
	}
	c.failureThreshold = hcCfg.FailureThreshold
	if c.failureThreshold < 1 {
		c.failureThreshold = 1
	}
	c.timeout = hcCfg.Timeout
	if c.timeout <= 0 {
		c.timeout = 5 * time.Second
	}
}

// Start begins periodic health checking.
func (c *Checker) Start() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run()
	}()
	c.mu.RLock()
	slog.Info("health checker started", "interval", c.interval, "threshold", c.failureThreshold)
	c.mu.RUnlock()
}

// Stop stops the health checker. Safe to call multiple times.
func (c *Checker) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
	})
	c.wg.Wait()
	slog.Info("health checker stopped")
}

func (c *Checker) run() {
	// Run immediately on start
	c.CheckAll()

	for {
		c.mu.RLock()
		interval := c.interval
		c.mu.RUnlock()

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
			c.CheckAll()
		case <-c.stopCh:
			timer.Stop()
			return
		}
	}
}

// CheckAll pings every registered component once, in parallel.
func (c *Checker) CheckAll() {
	c.mu.RLock()
	components := make(map[string]Pinger, len(c.components))
	for name, p := range c.components {
		components[name] = p
	}
	timeout := c.timeout
	c.mu.RUnlock()

	var wg sync.WaitGroup
	for name, p := range components {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()

			start := time.Now()
			err := p.Ping(ctx)
			elapsed := time.Since(start)
			if c.metrics != nil {
				c.metrics.HealthCheckCompleted(name, elapsed, err == nil)
			}
			c.updateStatus(name, err)
		}()
	}
	wg.Wait()
}

func (c *Checker) updateStatus(name string, pingErr error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := c.getOrCreate(name)
	ch.LastCheck = time.Now()

	if pingErr == nil {
		if ch.ConsecutiveFailures > 0 {
			slog.Info("component recovered", "component", name, "failures", ch.ConsecutiveFailures)
		}
		ch.Status = StatusHealthy
		ch.ConsecutiveFailures = 0
		ch.LastError = ""
	} else {
		ch.ConsecutiveFailures++
		ch.LastError = pingErr.Error()
		if ch.ConsecutiveFailures >= c.failureThreshold {
			if ch.Status != StatusUnhealthy {
				slog.Warn("component marked unhealthy", "component", name, "failures", ch.ConsecutiveFailures, "error", ch.LastError)
			}
			ch.Status = StatusUnhealthy
		}
	}

	if c.metrics != nil {
		c.metrics.SetComponentHealth(name, ch.Status == StatusHealthy)
	}
}

func (c *Checker) getOrCreate(name string) *ComponentHealth {
	ch, ok := c.state[name]
	if !ok {
		ch = &ComponentHealth{Status: StatusUnknown}
		c.state[name] = ch
	}
	return ch
}

// IsHealthy returns whether a component is healthy (or unknown, which is treated as healthy).
func (c *Checker) IsHealthy(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch, ok := c.state[name]
	if !ok {
		return true
	}
	return ch.Status != StatusUnhealthy
}

// GetStatus returns the health status for a component.
func (c *Checker) GetStatus(name string) ComponentHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ch, ok := c.state[name]
	if !ok {
		return ComponentHealth{Status: StatusUnknown}
	}
	return *ch
}

// GetAllStatuses returns health statuses for all checked components.
func (c *Checker) GetAllStatuses() map[string]ComponentHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]ComponentHealth, len(c.state))
	for name, ch := range c.state {
		result[name] = *ch
	}
	return result
}

// Components returns the registered component names, sorted.
func (c *Checker) Components() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.components))
	for name := range c.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OverallHealthy returns true if no component is unhealthy.
func (c *Checker) OverallHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, ch := range c.state {
		if ch.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}
