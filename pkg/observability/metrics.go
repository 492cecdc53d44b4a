package observability

import (
	"context"
	"errors"

	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the session store collectors.
type Metrics struct {
	reads        *prometheus.CounterVec
	writes       *prometheus.CounterVec
	writeBytes   prometheus.Histogram
	lockWait     *prometheus.HistogramVec
	lockFailures *prometheus.CounterVec
	destroys     prometheus.Counter
	swept        prometheus.Counter
	sweepErrors  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlsession_reads_total",
			Help: "Session reads by locking strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlsession_writes_total",
			Help: "Session writes by locking strategy.",
		}, []string{"strategy"}),
		writeBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlsession_write_bytes",
			Help:    "Size of written session payloads.",
			Buckets: prometheus.ExponentialBuckets(64, 4, 8),
		}),
		lockWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sqlsession_lock_wait_seconds",
			Help:    "Time spent acquiring the per-session lock.",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 50},
		}, []string{"strategy"}),
		lockFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlsession_lock_failures_total",
			Help: "Failed lock acquisitions by strategy and reason.",
		}, []string{"strategy", "reason"}),
		destroys: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlsession_destroys_total",
			Help: "Sessions deleted by id.",
		}),
		swept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlsession_swept_rows_total",
			Help: "Expired rows removed by garbage collection.",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sqlsession_sweep_errors_total",
			Help: "Garbage collection sweeps that failed.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.reads, m.writes, m.writeBytes, m.lockWait, m.lockFailures, m.destroys, m.swept, m.sweepErrors,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns lifecycle hooks that record into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRead: func(_ context.Context, e *domain.ReadEvent) {
			m.reads.WithLabelValues(e.Strategy, string(e.Outcome)).Inc()
		},
		OnWrite: func(_ context.Context, e *domain.WriteEvent) {
			m.writes.WithLabelValues(e.Strategy).Inc()
			m.writeBytes.Observe(float64(e.Bytes))
		},
		OnLock: func(_ context.Context, e *domain.LockEvent) {
			m.lockWait.WithLabelValues(e.Strategy).Observe(e.Wait.Seconds())
			if e.Err != nil {
				m.lockFailures.WithLabelValues(e.Strategy, failureReason(e.Err)).Inc()
			}
		},
		OnDestroy: func(context.Context, *domain.DestroyEvent) {
			m.destroys.Inc()
		},
		OnSweep: func(_ context.Context, e *domain.SweepEvent) {
			if e.Err != nil {
				m.sweepErrors.Inc()
				return
			}
			m.swept.Add(float64(e.Deleted))
		},
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrLockTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
