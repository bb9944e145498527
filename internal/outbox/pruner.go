package outbox

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Pruner periodically deletes events that were seen longer than Retention ago.
type Pruner struct {
	outbox    *Outbox
	retention time.Duration
	log       logrus.FieldLogger
	cron      *cron.Cron
}

// NewPruner schedules Outbox.Prune on schedule, a cron expression such as "@every 1h"
// or "0 3 * * *".
func NewPruner(o *Outbox, schedule string, retention time.Duration, log logrus.FieldLogger) (*Pruner, error) {
	p := &Pruner{
		outbox:    o,
		retention: retention,
		log:       log.WithField("component", "pruner"),
		cron:      cron.New(),
	}
	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pruner) run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := p.RunOnce(ctx)
	if err != nil {
		p.log.WithError(err).Error("prune failed")
		return
	}
	p.log.WithField("deleted", n).Info("pruned seen events")
}

// RunOnce prunes immediately.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	return p.outbox.Prune(ctx, p.outbox.now().Add(-p.retention))
}

func (p *Pruner) Start() { p.cron.Start() }

// Stop halts the schedule and waits for a running prune to finish or ctx to expire.
func (p *Pruner) Stop(ctx context.Context) {
	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
	}
}
