package concurrency

import (
	"context"

	"github.com/kovadb/kovadb/server/innodb/trigger"
)

// TriggerData is the queued on-commit side effect a transaction
// registers via AddOnCommitTrigger. It is a type alias for
// trigger.Data so callers outside this package never need to import
// the trigger package directly just to build one.
type TriggerData = trigger.Data

// dispatcher is the shared policy object that actually fires queued
// triggers; ExecOnCommitTriggers delegates to it rather than
// duplicating the "log, don't propagate" logic inline.
var dispatcher = trigger.NewDispatcher()

// triggerList is allocated lazily on first AddOnCommitTrigger call, so
// the common case of a transaction with no triggers costs nothing.
type triggerList struct {
	triggers []TriggerData
}

func (l *triggerList) append(t TriggerData) {
	l.triggers = append(l.triggers, t)
}

// triggerContext is the context handed to each fired trigger. Triggers
// run after commit with no per-transaction deadline of their own.
func triggerContext() context.Context {
	return context.Background()
}
