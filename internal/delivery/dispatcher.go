package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/carnetapp/carnetd/internal/obs"
)

const (
	// DefaultAttemptTimeout bounds each individual delivery attempt.
	DefaultAttemptTimeout = 15 * time.Second
	// maxAttempts is the total attempt budget per job.
	maxAttempts = 3
)

// defaultBackoff is the wait after the 1st, 2nd and 3rd failed attempt.
// The wait after the final failure runs before the job is dropped, so a
// persistently failing job occupies the dispatcher for the full schedule.
var defaultBackoff = []time.Duration{time.Second, 3 * time.Second, 7 * time.Second}

// Dispatcher drains the queue and pushes each job through the transport,
// retrying in place on failure. Retrying in place means a failing job
// delays everything queued behind it; that head-of-line blocking is the
// accepted cost of keeping delivery strictly ordered.
type Dispatcher struct { //nolint:govet // fieldalignment not critical here
	queue          *Queue
	transport      Transport
	attemptTimeout time.Duration
	backoff        []time.Duration
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAttemptTimeout overrides the per-attempt timeout.
func WithAttemptTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.attemptTimeout = d
	}
}

// WithBackoff overrides the backoff schedule, for tests.
func WithBackoff(schedule []time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.backoff = schedule
	}
}

// NewDispatcher creates a dispatcher bound to a queue and a transport.
func NewDispatcher(queue *Queue, transport Transport, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:          queue,
		transport:      transport,
		attemptTimeout: DefaultAttemptTimeout,
		backoff:        defaultBackoff,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run drains the queue until ctx is cancelled. Start it once at boot in its
// own goroutine. A job mid-attempt at shutdown is abandoned, not requeued.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("delivery dispatcher started", "attempt_timeout", d.attemptTimeout)
	for {
		select {
		case <-ctx.Done():
			slog.Info("delivery dispatcher stopped")
			return
		case job := <-d.queue.Jobs():
			obs.QueueDepth.Set(float64(d.queue.Len()))
			d.deliver(ctx, job)
		}
	}
}

// deliver pushes one job through the transport with the fixed retry
// schedule. Exhausting the budget drops the job; there is no dead-letter
// store.
func (d *Dispatcher) deliver(ctx context.Context, job Job) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := d.attempt(ctx, job)
		if err == nil {
			slog.Info("delivery succeeded",
				"job", job.ID, "recipient", job.Recipient, "attempt", attempt)
			return
		}
		if ctx.Err() != nil {
			// Shutdown mid-job: abandon it.
			return
		}

		obs.DeliveryFailures.Inc()
		slog.Warn("delivery attempt failed",
			"job", job.ID, "recipient", job.Recipient, "attempt", attempt, "error", err)

		if !d.wait(ctx, d.backoff[attempt-1]) {
			return
		}
	}

	obs.DeliveryDropped.Inc()
	slog.Error("delivery failed permanently, dropping job",
		"job", job.ID, "recipient", job.Recipient, "attempts", maxAttempts)
}

func (d *Dispatcher) attempt(ctx context.Context, job Job) error {
	obs.DeliveryAttempts.Inc()
	attemptCtx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()
	return d.transport.Send(attemptCtx, job)
}

// wait sleeps for the backoff delay, returning false if ctx is cancelled
// first.
func (d *Dispatcher) wait(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
