package core

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/aegix-network/aegix/internal/core/descriptor"
	"github.com/aegix-network/aegix/internal/logging"
	"github.com/aegix-network/aegix/internal/payment"
)

// reconciler schedules PaymentEngine.ReconcileOrphans on a fixed cadence,
// the way the service-layer's automation scheduler drives its own runners
// via robfig/cron rather than a bare time.Ticker. Both schedules call the
// same method: a failed-leg-2+ orphan and a failed-leg-4 close retry are
// indistinguishable from ReconcileOrphans' point of view (both are
// sessions with a sealed burner key and no recorded recovery leg), so one
// tighter cadence and one looser one are sufficient instead of two
// separate code paths.
type reconciler struct {
	engine *payment.Engine
	log    *logging.Logger
	cron   *cron.Cron
}

func newReconciler(engine *payment.Engine, log *logging.Logger) *reconciler {
	c := cron.New()
	r := &reconciler{engine: engine, log: log, cron: c}

	entries := []string{"@every 30s", "@every 5m"}
	for _, spec := range entries {
		spec := spec
		if _, err := c.AddFunc(spec, r.run); err != nil {
			log.WithError(err).WithField("schedule", spec).Warn("register reconciler schedule")
		}
	}
	return r
}

func (r *reconciler) run() {
	ctx := context.Background()
	n, err := r.engine.ReconcileOrphans(ctx)
	if err != nil {
		r.log.WithError(err).Warn("reconcile orphaned burners")
		return
	}
	if n > 0 {
		r.log.WithField("swept", n).Info("reconciled orphaned burners")
	}
}

func (r *reconciler) Name() string { return "payment-reconciler" }

func (r *reconciler) Start(ctx context.Context) error {
	r.cron.Start()
	return nil
}

func (r *reconciler) Stop(ctx context.Context) error {
	stopCtx := r.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	return nil
}

func (r *reconciler) Descriptor() descriptor.Descriptor {
	return descriptor.Descriptor{
		Name:   r.Name(),
		Domain: "payment",
		Layer:  descriptor.LayerEngine,
	}.WithCapabilities("orphan-sweep", "close-retry")
}
