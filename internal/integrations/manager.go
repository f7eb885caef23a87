package integrations

import (
	"context"
	"sync"
	"time"

	"github.com/haasonsaas/hive/internal/observability"
)

// RestartDelay is how long the manager waits before restarting a crashed
// adapter.
const RestartDelay = 30 * time.Second

// StatusInfo is an adapter's current state plus the last error, if any.
type StatusInfo struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Manager owns the adapter lifecycle: it starts one goroutine per adapter,
// restarts crashed adapters after RestartDelay, and restarts everything on
// reload.
type Manager struct {
	adapters   []Adapter
	auth       *Auth
	handle     func(context.Context, Inbound) Outbound
	logger     *observability.Logger
	retryDelay time.Duration

	mu      sync.Mutex
	status  map[string]StatusInfo
	parent  context.Context
	genStop context.CancelFunc
	genWG   *sync.WaitGroup
}

// NewManager wires a Manager. handle is invoked for every inbound message.
func NewManager(adapters []Adapter, auth *Auth, handle func(context.Context, Inbound) Outbound, logger *observability.Logger) *Manager {
	return &Manager{
		adapters:   adapters,
		auth:       auth,
		handle:     handle,
		logger:     logger,
		retryDelay: RestartDelay,
		status:     map[string]StatusInfo{},
	}
}

// Start launches all adapters. Non-blocking.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.parent = ctx
	m.mu.Unlock()
	m.startGeneration()
}

// Reload stops all adapters and starts them again, re-reading the disabled
// list. Safe to call repeatedly.
func (m *Manager) Reload() {
	m.stopGeneration()
	m.startGeneration()
}

// Stop shuts all adapters down and waits for them to exit.
func (m *Manager) Stop() {
	m.stopGeneration()
}

// Statuses returns a snapshot of adapter states.
func (m *Manager) Statuses() map[string]StatusInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]StatusInfo, len(m.status))
	for k, v := range m.status {
		out[k] = v
	}
	return out
}

func (m *Manager) startGeneration() {
	m.mu.Lock()
	if m.parent == nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.parent)
	wg := &sync.WaitGroup{}
	m.genStop = cancel
	m.genWG = wg
	m.mu.Unlock()

	for _, adapter := range m.adapters {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			m.runAdapter(ctx, a)
		}(adapter)
	}
}

func (m *Manager) stopGeneration() {
	m.mu.Lock()
	cancel := m.genStop
	wg := m.genWG
	m.genStop = nil
	m.genWG = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if wg != nil {
		wg.Wait()
	}

	// Drop the finished generation's entries so stopped adapters are not
	// still reported as running.
	m.mu.Lock()
	m.status = map[string]StatusInfo{}
	m.mu.Unlock()
}

// runAdapter drives one adapter until the generation ends, restarting it
// after retryDelay on failure.
func (m *Manager) runAdapter(ctx context.Context, a Adapter) {
	platform := a.Platform()

	if !a.Configured() {
		m.setStatus(platform, StatusNotConfigured, "")
		return
	}
	if m.auth != nil && m.auth.IsDisabled(platform) {
		m.setStatus(platform, StatusDisabled, "")
		return
	}

	for {
		m.setStatus(platform, StatusStarting, "")
		m.setStatus(platform, StatusRunning, "")
		err := a.Run(ctx, m.handle)

		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// A clean return outside shutdown still counts as a crash.
			err = context.Canceled
		}
		m.setStatus(platform, StatusError, err.Error())
		if m.logger != nil {
			m.logger.Error(ctx, "integration adapter crashed",
				"platform", platform, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(m.retryDelay):
		}
	}
}

func (m *Manager) setStatus(platform string, status Status, errText string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status[platform] = StatusInfo{Status: status, Error: errText}
}
