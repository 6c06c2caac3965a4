package architect

import (
	"context"
	"time"

	"github.com/ramoncreager/matrix/component"
	"github.com/ramoncreager/matrix/keymaster/tree"
	"github.com/ramoncreager/matrix/matrixerrors"
)

// Broadcast writes event's name to the well-known Architect.control path,
// so any component or external observer subscribed to it learns the
// lifecycle event fired. Components this Architect manages in-process are
// driven directly by RunLifecycle's own errgroup fan-out rather than by
// round-tripping through their own Keymaster subscription — Broadcast's
// write is for visibility (and for out-of-process components sharing the
// same Keymaster), not the sole delivery path for the ones we own.
func (a *Architect) Broadcast(ctx context.Context, event component.Event) error {
	if err := a.km.Put(ctx, tree.Path(PathControl), tree.NewNode(event.String()), true); err != nil {
		return matrixerrors.WrapFatal(err, "architect", "Broadcast", "put control")
	}
	return nil
}

// publishStatus writes an aggregated snapshot of every managed component's
// name and state under Architect.status after a lifecycle transition.
func (a *Architect) publishStatus(ctx context.Context) error {
	a.mu.Lock()
	snapshot := make(map[string]any, len(a.managed))
	for name, m := range a.managed {
		snapshot[name] = map[string]any{
			"state":      m.State.String(),
			"start_order": m.StartOrder,
			"updated_at": time.Now().UTC().Format(time.RFC3339Nano),
		}
	}
	a.mu.Unlock()

	if err := a.km.Put(ctx, tree.Path(PathStatus), tree.NewNode(snapshot), true); err != nil {
		return matrixerrors.WrapFatal(err, "architect", "publishStatus", "put status")
	}
	return nil
}
