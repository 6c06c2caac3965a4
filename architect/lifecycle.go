package architect

import (
	"context"
	"errors"

	"github.com/ramoncreager/matrix/component"
	"github.com/ramoncreager/matrix/matrixerrors"
)

// RunLifecycle drives every managed component from Standby to Running, per
// spec.md §4.E item 5: Initialize must land every component in Ready before
// Start is broadcast at all. A component failing Initialize stands the rest
// down and reports the aggregate failure; a component failing Start is
// reported without rolling back its peers, since Start is only atomic on a
// best-effort basis. mode selects the connections.<mode> edges Connect
// wires between Initialize (once every source has bound and published its
// transports) and Start (so data can flow the instant components go
// Running); an empty mode skips wiring entirely.
func (a *Architect) RunLifecycle(ctx context.Context, mode string) error {
	if err := a.Broadcast(ctx, component.EventInitialize); err != nil {
		return err
	}
	if err := a.applyToAll(ctx, component.EventInitialize, false); err != nil {
		a.log.Error("component failed to initialize, standing the rest down", "error", err)
		if sdErr := a.applyToAll(ctx, component.EventStandDown, true); sdErr != nil {
			a.log.Error("error standing down components after failed initialize", "error", sdErr)
		}
		_ = a.Broadcast(ctx, component.EventStandDown)
		_ = a.publishStatus(ctx)
		return matrixerrors.WrapFatal(err, "architect", "RunLifecycle", "initialize")
	}
	if err := a.publishStatus(ctx); err != nil {
		return err
	}

	if mode != "" {
		if err := a.Connect(ctx, mode); err != nil {
			return matrixerrors.WrapFatal(err, "architect", "RunLifecycle", "connect")
		}
	}

	if err := a.Broadcast(ctx, component.EventStart); err != nil {
		return err
	}
	if err := a.applyToAll(ctx, component.EventStart, false); err != nil {
		a.log.Error("component failed to start", "error", err)
		_ = a.publishStatus(ctx)
		return matrixerrors.Wrap(err, "architect", "RunLifecycle", "start")
	}
	return a.publishStatus(ctx)
}

// Shutdown drives every managed component from Running back to Standby —
// Stop then Stand_down, applied in reverse instantiation order — and
// reports every error encountered rather than stopping at the first.
func (a *Architect) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Broadcast(ctx, component.EventStop); err != nil {
		errs = append(errs, err)
	}
	if err := a.applyToAll(ctx, component.EventStop, true); err != nil {
		errs = append(errs, err)
	}
	if err := a.Broadcast(ctx, component.EventStandDown); err != nil {
		errs = append(errs, err)
	}
	if err := a.applyToAll(ctx, component.EventStandDown, true); err != nil {
		errs = append(errs, err)
	}
	_ = a.publishStatus(ctx)
	return errors.Join(errs...)
}
