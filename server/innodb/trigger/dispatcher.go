// Package trigger defines the on-commit trigger payload a
// TransactionContext queues, and fires it in registration order once
// the owning transaction has durably committed. A failing trigger is
// logged, never propagated — it must not retroactively invalidate a
// transaction that has already committed.
package trigger

import (
	"context"

	"github.com/kovadb/kovadb/logger"
)

// Data is a queued on-commit side effect: a name (for logging), the
// table it is attached to, and the callback to run once the owning
// transaction has durably committed.
type Data struct {
	Name    string
	TableID uint64
	Fire    func(ctx context.Context) error
}

// Dispatcher runs queued triggers in registration order.
type Dispatcher struct{}

// NewDispatcher builds a Dispatcher. It holds no state of its own.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// FireAll runs every trigger in triggers, in order, under ctx.
func (d *Dispatcher) FireAll(ctx context.Context, triggers []Data) {
	for _, t := range triggers {
		d.fireOne(ctx, t)
	}
}

func (d *Dispatcher) fireOne(ctx context.Context, t Data) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("trigger %q panicked: %v", t.Name, r)
		}
	}()
	if err := t.Fire(ctx); err != nil {
		logger.Errorf("trigger %q failed for table %d: %v", t.Name, t.TableID, err)
	}
}
