// Command txnctx-demo exercises the transaction-context core end to
// end: begin a transaction, record an insert, a read and an update,
// commit it, then begin a second transaction and abort it.
// It is a demonstration harness, not a server.
package main

import (
	"context"
	"flag"

	"github.com/kovadb/kovadb/logger"
	"github.com/kovadb/kovadb/server/innodb/concurrency"
	"github.com/kovadb/kovadb/server/innodb/manager"
)

func main() {
	configPath := flag.String("config", "", "path to an ini config file (optional)")
	flag.Parse()

	cfg := manager.DefaultConfig()
	if *configPath != "" {
		loaded, err := manager.LoadConfig(*configPath)
		if err != nil {
			panic(err)
		}
		cfg = loaded
	}

	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: cfg.LogErrorPath,
		InfoLogPath:  cfg.LogInfoPath,
		LogLevel:     cfg.LogLevel,
	}); err != nil {
		panic(err)
	}

	tm := manager.NewTxManager(cfg)

	runCommittedSession(tm)
	runAbortedSession(tm)
}

func runCommittedSession(tm *manager.TxManager) {
	ctx, _, err := tm.Begin(1, concurrency.RepeatableReads)
	if err != nil {
		logger.Fatalf("begin: %v", err)
	}

	slot := concurrency.SlotLocation{BlockID: 1, Offset: 0}
	ctx.RecordInsert(slot)
	ctx.RecordRead(concurrency.SlotLocation{BlockID: 1, Offset: 1})
	ctx.RecordUpdate(concurrency.SlotLocation{BlockID: 1, Offset: 1})

	ctx.AddOnCommitTrigger(concurrency.TriggerData{
		Name:    "log-insert",
		TableID: 1,
		Fire: func(context.Context) error {
			logger.Infof("trigger fired for table 1")
			return nil
		},
	})

	if err := tm.Commit(ctx); err != nil {
		logger.Fatalf("commit: %v", err)
	}
}

func runAbortedSession(tm *manager.TxManager) {
	ctx, _, err := tm.Begin(2, concurrency.RepeatableReads)
	if err != nil {
		logger.Fatalf("begin: %v", err)
	}

	ctx.RecordInsert(concurrency.SlotLocation{BlockID: 2, Offset: 0})

	if err := tm.Rollback(ctx); err != nil {
		logger.Fatalf("rollback: %v", err)
	}
}
