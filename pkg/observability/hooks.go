package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/sqlsession/pkg/domain"
)

// LogHooks returns lifecycle hooks that emit one debug line per event.
// Lock and sweep failures are logged at warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRead: func(ctx context.Context, e *domain.ReadEvent) {
			logger.DebugContext(ctx, "session_read",
				"session_id", e.SessionID,
				"strategy", e.Strategy,
				"outcome", e.Outcome,
				"bytes", e.Bytes,
			)
		},
		OnWrite: func(ctx context.Context, e *domain.WriteEvent) {
			logger.DebugContext(ctx, "session_write",
				"session_id", e.SessionID,
				"strategy", e.Strategy,
				"bytes", e.Bytes,
				"expiry", e.Expiry,
			)
		},
		OnLock: func(ctx context.Context, e *domain.LockEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "session_lock_failed",
					"session_id", e.SessionID,
					"strategy", e.Strategy,
					"wait", e.Wait,
					"err", e.Err,
				)
				return
			}
			logger.DebugContext(ctx, "session_lock",
				"session_id", e.SessionID,
				"strategy", e.Strategy,
				"wait", e.Wait,
			)
		},
		OnDestroy: func(ctx context.Context, e *domain.DestroyEvent) {
			logger.DebugContext(ctx, "session_destroy", "session_id", e.SessionID)
		},
		OnSweep: func(ctx context.Context, e *domain.SweepEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "session_sweep_failed", "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "session_sweep", "deleted", e.Deleted)
		},
	}
}

// Combine returns hooks that call every non-nil hook of each set in order.
func Combine(sets ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range sets {
		out.OnRead = chain(out.OnRead, h.OnRead)
		out.OnWrite = chain(out.OnWrite, h.OnWrite)
		out.OnLock = chain(out.OnLock, h.OnLock)
		out.OnDestroy = chain(out.OnDestroy, h.OnDestroy)
		out.OnSweep = chain(out.OnSweep, h.OnSweep)
	}
	return out
}

func chain[E any](a, b func(context.Context, E)) func(context.Context, E) {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return func(ctx context.Context, e E) {
		a(ctx, e)
		b(ctx, e)
	}
}
