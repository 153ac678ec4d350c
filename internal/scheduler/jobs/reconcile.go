// Package jobs holds the scheduled job implementations.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/autoinvest/internal/contracts"
	"github.com/wonny/autoinvest/internal/engine"
	"github.com/wonny/autoinvest/internal/schedule"
	"github.com/wonny/autoinvest/pkg/logger"
)

// ReconcileJob runs one engine cycle per minute.
//
// Error policy: session loss and configuration errors are pushed onto
// the fatal channel so the daemon shuts down (the supervisor restarts
// it once the session or configuration is fixed). Anything else is
// notified and retried on the next tick.
type ReconcileJob struct {
	engine *engine.Engine
	notify engine.Notifier
	fatal  chan<- error
	log    *logger.Logger
}

// NewReconcileJob creates the job. fatal receives at most one error.
func NewReconcileJob(eng *engine.Engine, notify engine.Notifier, fatal chan<- error, log *logger.Logger) *ReconcileJob {
	return &ReconcileJob{
		engine: eng,
		notify: notify,
		fatal:  fatal,
		log:    log,
	}
}

// Name returns the job name.
func (j *ReconcileJob) Name() string {
	return "reconcile"
}

// Schedule fires at the top of every minute.
func (j *ReconcileJob) Schedule() string {
	return "0 * * * * *"
}

// Run executes one reconcile cycle.
func (j *ReconcileJob) Run(ctx context.Context) error {
	err := j.engine.ReconcileCycle(ctx, time.Now())
	if err == nil {
		return nil
	}

	if isFatal(err) {
		select {
		case j.fatal <- err:
		default:
		}
		return err
	}

	j.notify.Send(ctx, fmt.Sprintf("Reconcile cycle failed: %v. Retrying next minute.", err))
	return err
}

// isFatal reports whether the error cannot be fixed by retrying.
func isFatal(err error) bool {
	var unschedulable *schedule.UnschedulableInstrumentError
	return errors.Is(err, contracts.ErrSessionExpired) ||
		errors.Is(err, schedule.ErrEmptyScheduleWindow) ||
		errors.As(err, &unschedulable)
}
