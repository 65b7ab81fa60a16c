package router

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Status is the backend's liveness as seen by the console.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusSleeping Status = "sleeping"
	StatusWaking   Status = "waking"
	StatusWarm     Status = "warm"
	// StatusActive is reported while a run is in flight.
	StatusActive Status = "active"
)

// CheckStatus sends an OPTIONS probe to the MoE endpoint. A fast answer is
// warm, a slow one waking; a non-2xx answer or a timeout means the backend
// is asleep.
func (c *Client) CheckStatus(ctx context.Context) Status {
	return c.probe(ctx, http.MethodOptions, c.config.Endpoints.MoE, c.config.ProbeTimeout, func(latency time.Duration) Status {
		if latency < c.config.WarmLatency {
			return StatusWarm
		}
		return StatusWaking
	})
}

// Warmup hits the MoE /health route, which starts a cold backend. A slow
// answer means it was asleep and is now waking.
func (c *Client) Warmup(ctx context.Context) Status {
	if c.config.Endpoints.MoE == "" {
		return StatusUnknown
	}
	return c.probe(ctx, http.MethodGet, c.config.Endpoints.MoE+"/health", c.config.WarmupTimeout, func(latency time.Duration) Status {
		if latency > c.config.ColdStartLatency {
			return StatusWaking
		}
		return StatusWarm
	})
}

func (c *Client) probe(ctx context.Context, method, url string, timeout time.Duration, classify func(time.Duration) Status) Status {
	if url == "" {
		return StatusUnknown
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		c.logger.Warn("status probe request failed", zap.Error(err))
		return StatusUnknown
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return StatusSleeping
		}
		c.logger.Debug("status probe failed", zap.String("method", method), zap.Error(err))
		return StatusUnknown
	}
	resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusSleeping
	}
	return classify(latency)
}

// Monitor polls the backend status in the background and remembers the
// last answer.
type Monitor struct {
	client   *Client
	interval time.Duration
	logger   *zap.Logger

	busy    atomic.Int32
	mu      sync.RWMutex
	status  Status
	checked time.Time
}

// NewMonitor creates a monitor polling every interval.
func NewMonitor(client *Client, interval time.Duration, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Monitor{client: client, interval: interval, logger: logger, status: StatusUnknown}
}

// Run polls until ctx is done. Polls are skipped while a run is in flight.
func (m *Monitor) Run(ctx context.Context) {
	m.Refresh(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.busy.Load() > 0 {
				continue
			}
			m.Refresh(ctx)
		}
	}
}

// Refresh probes now and records the result.
func (m *Monitor) Refresh(ctx context.Context) Status {
	s := m.client.CheckStatus(ctx)
	m.record(s)
	return s
}

// Warmup triggers a warmup and records the result.
func (m *Monitor) Warmup(ctx context.Context) Status {
	s := m.client.Warmup(ctx)
	m.record(s)
	return s
}

// Begin marks a run as in flight; the returned func ends it.
func (m *Monitor) Begin() func() {
	m.busy.Add(1)
	var once sync.Once
	return func() { once.Do(func() { m.busy.Add(-1) }) }
}

// Status returns the last probe result, or active while a run is in flight.
func (m *Monitor) Status() (Status, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.busy.Load() > 0 {
		return StatusActive, m.checked
	}
	return m.status, m.checked
}

func (m *Monitor) record(s Status) {
	m.mu.Lock()
	prev := m.status
	m.status = s
	m.checked = time.Now()
	m.mu.Unlock()
	if prev != s {
		m.logger.Info("backend status changed", zap.String("from", string(prev)), zap.String("to", string(s)))
	}
}
