// Package system provides the lifecycle-management primitives Core uses to
// start and stop its background components deterministically, mirroring
// the service-layer's internal/app/system package.
package system

import (
	"context"

	"github.com/aegix-network/aegix/internal/core/descriptor"
)

// Service is a lifecycle-managed component. Every long-running piece of
// Core (the orphan reconciler, the HTTP server) implements this so Manager
// can start and stop them in a fixed order.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider optionally advertises a Service's placement and
// capabilities for introspection.
type DescriptorProvider interface {
	Descriptor() descriptor.Descriptor
}

// NoopService is a named placeholder for a component that has no
// independent start/stop behavior of its own (its lifecycle is entirely
// request-driven) but still wants a Descriptor entry.
type NoopService struct {
	ServiceName string
}

func (n NoopService) Name() string                    { return n.ServiceName }
func (n NoopService) Start(ctx context.Context) error { return nil }
func (n NoopService) Stop(ctx context.Context) error  { return nil }
