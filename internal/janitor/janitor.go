package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"leadnotify/internal/store"
	logx "leadnotify/pkg/logx"
)

const defaultSchedule = "@hourly"

// Janitor garbage-collects expired events so the backing log does not
// grow without bound. Expired events are never part of the deliverable
// window, so deletion is invisible to subscribers.
type Janitor struct {
	store store.Store
	log   logx.Logger
	cron  *cron.Cron
}

func New(st store.Store, schedule string, log logx.Logger) (*Janitor, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if schedule == "" {
		schedule = defaultSchedule
	}

	j := &Janitor{store: st, log: log, cron: cron.New()}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() { j.cron.Start() }

// Stop halts scheduling and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep deletes events whose expiry has passed. Exposed for notifyctl
// and tests; scheduled runs go through the same path.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	n, err := j.store.DeleteExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.log.Info("expired events pruned", logx.Int64("removed", n))
	}
	return n, nil
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := j.Sweep(ctx); err != nil {
		j.log.Warn("prune failed", logx.Err(err))
	}
}
