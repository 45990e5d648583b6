package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultMonitorInterval = 30 * time.Second
	defaultProbeLimit      = 8
)

// ProbeFunc reports whether the agent behind origin answers
type ProbeFunc func(ctx context.Context, origin string) bool

// Monitor sweeps idle sessions and probes every origin's agent on a fixed
// interval. It runs beside request handling and never holds registry locks
// while probing.
type Monitor struct {
	registry *Registry
	probe    ProbeFunc
	interval time.Duration
	limit    int
	log      zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMonitor(registry *Registry, probe ProbeFunc, interval time.Duration, log zerolog.Logger) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		registry: registry,
		probe:    probe,
		interval: interval,
		limit:    defaultProbeLimit,
		log:      log,
	}
}

// Start launches the loop; it stops when ctx is done or Stop is called
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.log.Info().Msg("session monitor stopped")
				return
			case <-ticker.C:
				m.RunOnce(ctx)
			}
		}
	}()

	m.log.Info().Dur("interval", m.interval).Msg("session monitor started")
}

// Stop cancels the loop and waits for it to exit
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// RunOnce sweeps, then probes the remaining sessions concurrently
func (m *Monitor) RunOnce(ctx context.Context) {
	m.registry.Sweep(m.registry.now())
	if m.probe == nil {
		return
	}

	sessions := m.registry.List()

	var g errgroup.Group
	g.SetLimit(m.limit)
	for _, s := range sessions {
		g.Go(func() error {
			status := StatusDisconnected
			if m.probe(ctx, s.Origin) {
				status = StatusConnected
			}
			m.registry.SetStatus(s.Origin, status)
			return nil
		})
	}
	_ = g.Wait()

	m.log.Debug().Int("sessions", len(sessions)).Msg("liveness pass complete")
}
