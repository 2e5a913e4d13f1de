package manager

import (
	"sync"
	"sync/atomic"
	"time"

	jerrors "github.com/juju/errors"

	"github.com/kovadb/kovadb/logger"
	"github.com/kovadb/kovadb/server/innodb/basic"
	"github.com/kovadb/kovadb/server/innodb/concurrency"
	"github.com/kovadb/kovadb/server/innodb/gc"
	"github.com/kovadb/kovadb/server/innodb/mvcc"
)

var (
	ErrTooManyTransactions = jerrors.New("too many active transactions")
	ErrTransactionNotFound = jerrors.New("transaction not found")
	ErrTransactionNotLive  = jerrors.New("transaction is not active")
)

// TxManager begins, commits, and rolls back TransactionContexts, and
// is the sole caller of their GC-set move-out methods.
// It is an external collaborator of the transaction-context core: it
// never touches rw_set directly except to walk it read-only during
// rollback.
type TxManager struct {
	mu                 sync.RWMutex
	activeTransactions map[uint64]*concurrency.TransactionContext
	startTimes         map[uint64]time.Time

	nextEpoch    uint64
	nextInEpoch  uint32
	nextCommitID uint64

	collector *gc.Collector

	cfg *Config
}

// NewTxManager builds a manager from cfg, wiring up a GC collector
// sized for a fixed worker count.
func NewTxManager(cfg *Config) *TxManager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &TxManager{
		activeTransactions: make(map[uint64]*concurrency.TransactionContext),
		startTimes:         make(map[uint64]time.Time),
		nextEpoch:          1,
		collector:          gc.NewCollector(4),
		cfg:                cfg,
	}
}

// nextReadID packs a monotonically increasing epoch into the high 32
// bits and a monotonically increasing per-epoch counter into the low
// 32 bits, matching §4.1's epoch_id = read_id >> 32 derivation.
func (m *TxManager) nextReadID() uint64 {
	seq := atomic.AddUint32(&m.nextInEpoch, 1)
	if seq == 0 {
		atomic.AddUint64(&m.nextEpoch, 1)
	}
	epoch := atomic.LoadUint64(&m.nextEpoch)
	return epoch<<32 | uint64(seq)
}

// Begin allocates a fresh read id, constructs a TransactionContext, and
// — for every isolation level except Serializable — snapshots a
// ReadView of the currently active transactions and the new one.
func (m *TxManager) Begin(threadID uint64, isolation concurrency.IsolationLevel) (*concurrency.TransactionContext, *mvcc.ReadView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.activeTransactions) >= m.cfg.MaxActiveTransactions {
		return nil, nil, ErrTooManyTransactions
	}

	readID := m.nextReadID()
	ctx := concurrency.NewTransactionContext(threadID, isolation, readID)

	var view *mvcc.ReadView
	if isolation != concurrency.Serializable {
		view = m.buildReadView(readID)
	}

	m.activeTransactions[readID] = ctx
	m.startTimes[readID] = time.Now()

	return ctx, view, nil
}

// buildReadView snapshots every currently active transaction id, plus
// the creator itself (a transaction always sees its own writes).
func (m *TxManager) buildReadView(creatorID uint64) *mvcc.ReadView {
	activeIDs := make([]uint64, 0, len(m.activeTransactions)+1)
	activeIDs = append(activeIDs, creatorID)
	minID := creatorID
	for id := range m.activeTransactions {
		activeIDs = append(activeIDs, id)
		if id < minID {
			minID = id
		}
	}
	return mvcc.NewReadView(activeIDs, minID, creatorID+1, creatorID)
}

// Commit assigns ctx a commit id, drains its garbage sets to the GC
// subsystem, marks it Success, and fires its on-commit triggers.
func (m *TxManager) Commit(ctx *concurrency.TransactionContext) error {
	if err := m.forget(ctx); err != nil {
		return err
	}

	commitID := atomic.AddUint64(&m.nextCommitID, 1)
	ctx.SetCommitID(commitID)
	ctx.SetTransactionID(commitID)

	m.collector.Reclaim(ctx.EpochID(), ctx.TakeGCSet())
	m.collector.DropObjects(ctx.TakeGCObjectSet())

	ctx.SetResult(concurrency.Success)
	ctx.ExecOnCommitTriggers()

	logger.Infof("committed %s", ctx.GetInfo())
	return nil
}

// Rollback walks ctx's read/write set to direct the storage layer to
// undo inserts/updates (logged here; applying the undo is the storage
// layer's job and out of scope for this core), marks ctx Aborted, and
// discards its trigger list without firing it.
func (m *TxManager) Rollback(ctx *concurrency.TransactionContext) error {
	if err := m.forget(ctx); err != nil {
		return err
	}

	for loc, mode := range ctx.RWSet() {
		switch mode {
		case concurrency.Insert, concurrency.Update, concurrency.Delete, concurrency.InsDel:
			logger.Debugf("rollback: undo %s at block=%d offset=%d", mode, loc.BlockID, loc.Offset)
		}
	}

	ctx.TakeGCSet()
	ctx.TakeGCObjectSet()
	ctx.SetResult(concurrency.Aborted)

	logger.Infof("%s: %s", basic.ErrTransactionAborted, ctx.GetInfo())
	return nil
}

func (m *TxManager) forget(ctx *concurrency.TransactionContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Result() != concurrency.Unknown {
		return ErrTransactionNotLive
	}

	if _, ok := m.activeTransactions[ctx.ReadID()]; !ok {
		return ErrTransactionNotFound
	}

	delete(m.activeTransactions, ctx.ReadID())
	delete(m.startTimes, ctx.ReadID())
	return nil
}

// Cleanup rolls back every active transaction whose start time exceeds
// the configured timeout.
func (m *TxManager) Cleanup() {
	m.mu.RLock()
	var expired []*concurrency.TransactionContext
	now := time.Now()
	for id, ctx := range m.activeTransactions {
		if now.Sub(m.startTimes[id]) > m.cfg.TransactionTimeout {
			expired = append(expired, ctx)
		}
	}
	m.mu.RUnlock()

	for _, ctx := range expired {
		logger.Warnf("%s: read_id=%d", basic.ErrTransactionTimeout, ctx.ReadID())
		if err := m.Rollback(ctx); err != nil {
			logger.Warnf("cleanup: failed to roll back expired transaction: %v", err)
		}
	}
}

// ActiveCount returns the number of currently active transactions.
func (m *TxManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeTransactions)
}
