package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/aegix-network/aegix/internal/core/descriptor"
)

// Manager sequences the start and stop of every registered Service. Its
// contract (Register before Start, Start in registration order, Stop in
// reverse) is inferred from how application.go drives it: services are
// registered in a fixed order during construction, then started and
// stopped together as a unit.
type Manager struct {
	mu       sync.Mutex
	services []Service
	started  bool
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds svc to the set Start/Stop will manage. Registering after
// Start has been called returns an error rather than silently leaving svc
// unstarted.
func (m *Manager) Register(svc Service) error {
	if svc == nil {
		return fmt.Errorf("system: cannot register nil service")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("system: cannot register %s after Start", svc.Name())
	}
	for _, existing := range m.services {
		if existing.Name() == svc.Name() {
			return fmt.Errorf("system: service %s already registered", svc.Name())
		}
	}
	m.services = append(m.services, svc)
	return nil
}

// Start starts every registered service in registration order, stopping
// and returning the first error. Services already started are left
// running; callers should treat a Start error as fatal and exit.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	m.started = true
	services := append([]Service(nil), m.services...)
	m.mu.Unlock()

	for _, svc := range services {
		if err := svc.Start(ctx); err != nil {
			return fmt.Errorf("system: start %s: %w", svc.Name(), err)
		}
	}
	return nil
}

// Stop stops every registered service in reverse registration order,
// collecting (not short-circuiting on) errors so a failure in one service's
// shutdown doesn't leave others running.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	services := append([]Service(nil), m.services...)
	m.mu.Unlock()

	var firstErr error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		if err := svc.Stop(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("system: stop %s: %w", svc.Name(), err)
		}
	}
	return firstErr
}

// Descriptors collects descriptors from every registered service that
// implements DescriptorProvider.
func (m *Manager) Descriptors() []descriptor.Descriptor {
	m.mu.Lock()
	defer m.mu.Unlock()

	providers := make([]DescriptorProvider, 0, len(m.services))
	for _, svc := range m.services {
		if dp, ok := svc.(DescriptorProvider); ok {
			providers = append(providers, dp)
		}
	}
	return CollectDescriptors(providers)
}
