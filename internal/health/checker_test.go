package health

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/SpanFreight/tracking/internal/config"
	"github.com/SpanFreight/tracking/internal/metrics"
)

var testHealthCfg = config.HealthCheckConfig{
	Interval:         30 * time.Second,
	FailureThreshold: 3,
	Timeout:          time.Second,
}

type fakePinger struct {
	err   atomic.Value
	calls atomic.Int32
}

func (f *fakePinger) Ping(ctx context.Context) error {
	f.calls.Add(1)
	if err, ok := f.err.Load().(error); ok && err != nil {
		return err
	}
	return nil
}

func (f *fakePinger) fail(err error) {
	f.err.Store(err)
}

type blockingPinger struct{}

func (blockingPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestCheckerInitialState(t *testing.T) {
	c := NewChecker(nil, testHealthCfg)

	// Unknown component should be treated as healthy
	if !c.IsHealthy("unknown") {
		t.Error("unknown component should be treated as healthy")
	}

	status := c.GetStatus("unknown")
	if status.Status != StatusUnknown {
		t.Errorf("expected StatusUnknown, got %v", status.Status)
	}
}

func TestCheckerUpdateStatus(t *testing.T) {
	c := NewChecker(nil, testHealthCfg)

	c.updateStatus("store", nil)
	if !c.IsHealthy("store") {
		t.Error("should be healthy after healthy update")
	}

	// Single failure shouldn't make it unhealthy (threshold is 3)
	c.updateStatus("store", errors.New("disk I/O error"))
	if !c.IsHealthy("store") {
		t.Error("should still be healthy after one failure")
	}

	status := c.GetStatus("store")
	if status.ConsecutiveFailures != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", status.ConsecutiveFailures)
	}
	if status.LastError != "disk I/O error" {
		t.Errorf("expected last error to be recorded, got %q", status.LastError)
	}
}

func TestCheckerThreshold(t *testing.T) {
	c := NewChecker(nil, testHealthCfg)

	for i := 0; i < 3; i++ {
		c.updateStatus("store", errors.New("down"))
	}

	if c.IsHealthy("store") {
		t.Error("should be unhealthy after 3 consecutive failures")
	}
	if c.OverallHealthy() {
		t.Error("should not be overall healthy")
	}
}

func TestCheckerRecovery(t *testing.T) {
	c := NewChecker(nil, testHealthCfg)

	for i := 0; i < 3; i++ {
		c.updateStatus("store", errors.New("down"))
	}
	c.updateStatus("store", nil)

	if !c.IsHealthy("store") {
		t.Error("should be healthy after recovery")
	}
	status := c.GetStatus("store")
	if status.ConsecutiveFailures != 0 || status.LastError != "" {
		t.Errorf("expected clean state after recovery, got %+v", status)
	}
}

func TestCheckAllPingsComponents(t *testing.T) {
	m := metrics.New()
	c := NewChecker(m, testHealthCfg)

	good := &fakePinger{}
	bad := &fakePinger{}
	bad.fail(errors.New("no such table"))
	c.Register("store", good)
	c.Register("cache", bad)

	c.CheckAll()

	if good.calls.Load() != 1 || bad.calls.Load() != 1 {
		t.Errorf("expected one ping each, got %d and %d", good.calls.Load(), bad.calls.Load())
	}
	if c.GetStatus("store").Status != StatusHealthy {
		t.Errorf("expected store healthy, got %v", c.GetStatus("store").Status)
	}
	if got := c.GetStatus("cache").ConsecutiveFailures; got != 1 {
		t.Errorf("expected 1 failure for cache, got %d", got)
	}
	if len(c.GetAllStatuses()) != 2 {
		t.Errorf("expected 2 statuses, got %d", len(c.GetAllStatuses()))
	}
}

func TestCheckAllHonoursTimeout(t *testing.T) {
	c := NewChecker(nil, config.HealthCheckConfig{
		Interval:         time.Minute,
		FailureThreshold: 1,
		Timeout:          20 * time.Millisecond,
	})
	c.Register("slow", blockingPinger{})

	done := make(chan struct{})
	go func() {
		c.CheckAll()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("CheckAll did not respect the timeout")
	}
	if c.IsHealthy("slow") {
		t.Error("timed out component should be unhealthy with threshold 1")
	}
}

func TestUpdateConfig(t *testing.T) {
	c := NewChecker(nil, testHealthCfg)
	c.UpdateConfig(config.HealthCheckConfig{Interval: time.Second, FailureThreshold: 1, Timeout: time.Second})

	c.updateStatus("store", errors.New("down"))
	if c.IsHealthy("store") {
		t.Error("new threshold of 1 should apply immediately")
	}
}

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusUnknown, "unknown"},
		{StatusHealthy, "healthy"},
		{StatusUnhealthy, "unhealthy"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	data, err := json.Marshal(ComponentHealth{Status: StatusHealthy})
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["status"] != "healthy" {
		t.Errorf("expected status encoded by name, got %v", decoded["status"])
	}
}

func TestDoubleStop(t *testing.T) {
	c := NewChecker(nil, testHealthCfg)
	c.Register("store", &fakePinger{})
	c.Start()

	// Should not panic
	c.Stop()
	c.Stop()
}
