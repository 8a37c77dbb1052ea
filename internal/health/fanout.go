package health

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"github.com/orrn/labeldispatch/internal/core"
)

// Fanout publishes to every sink concurrently. A failing sink does not stop
// the others; all failures are joined into the returned error.
type Fanout struct {
	sinks []core.HealthSink
}

func NewFanout(sinks ...core.HealthSink) *Fanout {
	var kept []core.HealthSink
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Fanout{sinks: kept}
}

func (f *Fanout) Publish(ctx context.Context, snapshot core.HealthSnapshot) error {
	var g errgroup.Group
	errs := make([]error, len(f.sinks))
	for i, sink := range f.sinks {
		i, sink := i, sink
		g.Go(func() error {
			errs[i] = sink.Publish(ctx, snapshot)
			return errs[i]
		})
	}
	// Wait reports only the first failure; the slice keeps the rest.
	if err := g.Wait(); err == nil {
		return nil
	}
	return errors.Join(errs...)
}

func (f *Fanout) Len() int {
	return len(f.sinks)
}
