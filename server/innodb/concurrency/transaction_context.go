package concurrency

import (
	"fmt"
	"sync/atomic"

	"github.com/kovadb/kovadb/logger"
	"github.com/kovadb/kovadb/server/innodb/basic"
)

// TransactionContext is the per-transaction state the rest of the
// engine consults to decide what a running transaction has touched and
// how. Exactly one worker goroutine mutates a given context between its
// construction and its commit/abort; other goroutines only read the
// three atomically-published fields (transaction id, commit id,
// result) to resolve tuple-version visibility.
//
// A TransactionContext must never be copied by value — always pass
// *TransactionContext — both because two copies would desynchronize
// from the tuple-version headers that embed its identifier, and
// because it embeds atomics that go vet will flag on copy.
type TransactionContext struct {
	threadID       uint64
	isolationLevel IsolationLevel

	readID  uint64
	epochID uint64

	commitID      atomic.Uint64
	transactionID atomic.Uint64
	result        atomic.Int32

	rwSet       map[SlotLocation]AccessMode
	insertCount int64
	isWritten   bool

	gcSet       GCSet
	gcObjectSet GCObjectSet
	triggers    *triggerList
}

// NewTransactionContext constructs a context whose commit id is not yet
// assigned (InvalidCID); the manager fills it in at commit time.
func NewTransactionContext(threadID uint64, isolation IsolationLevel, readID uint64) *TransactionContext {
	ctx := &TransactionContext{}
	ctx.Init(threadID, isolation, readID, InvalidCID)
	return ctx
}

// NewTransactionContextWithCommitID constructs a context that already
// knows its commit id (e.g. a transaction replayed at a known point in
// the commit order).
func NewTransactionContextWithCommitID(threadID uint64, isolation IsolationLevel, readID, commitID uint64) *TransactionContext {
	ctx := &TransactionContext{}
	ctx.Init(threadID, isolation, readID, commitID)
	return ctx
}

// Init is the sole entry point that restores default state; nothing
// else is permitted to touch these fields in bulk.
func (t *TransactionContext) Init(threadID uint64, isolation IsolationLevel, readID, commitID uint64) {
	t.readID = readID
	t.commitID.Store(commitID)
	t.transactionID.Store(commitID)
	t.epochID = epochOf(readID)

	t.threadID = threadID
	t.isolationLevel = isolation

	t.isWritten = false
	t.insertCount = 0
	t.rwSet = make(map[SlotLocation]AccessMode)

	t.gcSet = newGCSet()
	t.gcObjectSet = nil
	t.triggers = nil

	t.result.Store(int32(Unknown))
}

// GetRWType returns the current access mode recorded for loc, or
// Invalid if the transaction has not touched it. This is a pure read:
// unlike the mutators, it never asserts.
func (t *TransactionContext) GetRWType(loc SlotLocation) AccessMode {
	if mode, ok := t.rwSet[loc]; ok {
		return mode
	}
	return Invalid
}

func (t *TransactionContext) illegalTransition(op string, loc SlotLocation, current AccessMode) {
	logger.Fatalf("%s: op=%s location=(%d,%d) current_mode=%s txn_id=%d",
		basic.ErrInvalidTransactionState, op, loc.BlockID, loc.Offset, current, t.transactionID.Load())
}

// RecordRead marks loc as read without write intent. No-op if the slot
// is already Read, ReadOwn, Update or Insert; fatal on Delete or InsDel.
func (t *TransactionContext) RecordRead(loc SlotLocation) {
	t.apply("RecordRead", opRead, loc)
}

// RecordReadOwn marks loc as read with ownership (shared-to-exclusive
// upgrade) intent.
func (t *TransactionContext) RecordReadOwn(loc SlotLocation) {
	t.apply("RecordReadOwn", opReadOwn, loc)
}

// RecordUpdate marks loc as modified by this transaction. Promotes a
// prior Read/ReadOwn entry and sets is_written.
func (t *TransactionContext) RecordUpdate(loc SlotLocation) {
	t.apply("RecordUpdate", opUpdate, loc)
}

// RecordInsert marks loc as created by this transaction.
func (t *TransactionContext) RecordInsert(loc SlotLocation) {
	t.apply("RecordInsert", opInsert, loc)
}

// RecordDelete marks loc as deleted by this transaction. It returns
// true iff loc was inserted by this same transaction and is now purely
// vanishing (Insert -> InsDel); the caller uses this to suppress
// inserting a tombstone version for an insert that never needs to be
// visible to anyone.
func (t *TransactionContext) RecordDelete(loc SlotLocation) bool {
	current := t.GetRWType(loc)
	collapsed := current == Insert
	t.apply("RecordDelete", opDelete, loc)
	return collapsed
}

// apply drives one cell of the §4.2 transition table.
func (t *TransactionContext) apply(opName string, op recordOp, loc SlotLocation) {
	current := t.GetRWType(loc)
	cell := transitionTable[current][op]

	if !cell.legal {
		t.illegalTransition(opName, loc, current)
		return
	}

	if cell.noop {
		return
	}

	t.rwSet[loc] = cell.next

	switch {
	case op == opInsert && current == Invalid:
		t.insertCount++
	case op == opDelete && current == Insert:
		t.insertCount--
	case op == opUpdate && (current == Read || current == ReadOwn):
		t.isWritten = true
	case op == opDelete && (current == Read || current == ReadOwn):
		t.isWritten = true
	}
}

// GetInfo returns a human-readable one-line summary for logging. Format
// stability is not a contract.
func (t *TransactionContext) GetInfo() string {
	return fmt.Sprintf(" Txn :: @%p ID : %4d Read ID : %4d Commit ID : %4d Result : %s",
		t, t.transactionID.Load(), t.readID, t.commitID.Load(), t.Result())
}

// AddOnCommitTrigger lazily allocates the trigger list on first use and
// appends trigger, preserving registration order as execution order.
func (t *TransactionContext) AddOnCommitTrigger(trigger TriggerData) {
	if t.triggers == nil {
		t.triggers = &triggerList{}
	}
	t.triggers.append(trigger)
}

// ExecOnCommitTriggers runs every queued trigger in registration order.
// It is a no-op when no triggers were registered. Called by the manager
// after the transaction has durably committed.
func (t *TransactionContext) ExecOnCommitTriggers() {
	if t.triggers == nil {
		return
	}
	dispatcher.FireAll(triggerContext(), t.triggers.triggers)
}

// --- accessors exposed to the transaction manager ---

func (t *TransactionContext) ThreadID() uint64               { return t.threadID }
func (t *TransactionContext) IsolationLevel() IsolationLevel  { return t.isolationLevel }
func (t *TransactionContext) ReadID() uint64                  { return t.readID }
func (t *TransactionContext) EpochID() uint64                 { return t.epochID }
func (t *TransactionContext) CommitID() uint64                { return t.commitID.Load() }
func (t *TransactionContext) SetCommitID(id uint64)           { t.commitID.Store(id) }
func (t *TransactionContext) TransactionID() uint64           { return t.transactionID.Load() }
func (t *TransactionContext) SetTransactionID(id uint64)      { t.transactionID.Store(id) }
func (t *TransactionContext) Result() ResultKind              { return ResultKind(t.result.Load()) }
func (t *TransactionContext) SetResult(r ResultKind)          { t.result.Store(int32(r)) }
func (t *TransactionContext) IsWritten() bool                 { return t.isWritten }
func (t *TransactionContext) InsertCount() int64              { return t.insertCount }

// RWSet exposes the read/write set built so far. Callers must treat it
// as read-only except through the Record* methods above.
func (t *TransactionContext) RWSet() map[SlotLocation]AccessMode { return t.rwSet }

// GCSet exposes the slot-level garbage set as a mutable reference
// during execution (the executor can add entries directly).
func (t *TransactionContext) GCSet() GCSet { return t.gcSet }

// AddGCObject queues a schema object to be dropped on commit.
func (t *TransactionContext) AddGCObject(entry ObjectGCEntry) {
	t.gcObjectSet = append(t.gcObjectSet, entry)
}

// GCObjectSet exposes the schema-object garbage set accumulated so far.
func (t *TransactionContext) GCObjectSet() GCObjectSet { return t.gcObjectSet }

// TakeGCSet moves the slot-level garbage set out of the context for the
// GC subsystem to consume; the context's own reference is cleared so
// the set is never shared between the context and its consumer.
func (t *TransactionContext) TakeGCSet() GCSet {
	s := t.gcSet
	t.gcSet = newGCSet()
	return s
}

// TakeGCObjectSet moves the schema-object garbage set out of the
// context, analogous to TakeGCSet.
func (t *TransactionContext) TakeGCObjectSet() GCObjectSet {
	s := t.gcObjectSet
	t.gcObjectSet = nil
	return s
}
