package concurrency

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kovadb/kovadb/logger"
)

// TestMain wires the shared logger so illegal-transition assertions can
// be observed as a panic instead of terminating the test binary: logrus
// calls Logger.ExitFunc after logging a Fatal record, and we replace
// that with a panic so the scenario is assert.Panics-able.
func TestMain(m *testing.M) {
	_ = logger.InitLogger(logger.LogConfig{LogLevel: "fatal"})
	logger.ErrorLogger.ExitFunc = func(int) { panic("fatal transition") }
	m.Run()
}

func loc(b uint64, o uint32) SlotLocation { return SlotLocation{BlockID: b, Offset: o} }

func TestFreshReadOnly(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	ctx.RecordRead(loc(1, 0))
	ctx.RecordRead(loc(1, 1))

	assert.EqualValues(t, 0, ctx.InsertCount())
	assert.False(t, ctx.IsWritten())
	assert.Equal(t, map[SlotLocation]AccessMode{
		loc(1, 0): Read,
		loc(1, 1): Read,
	}, ctx.RWSet())
}

func TestReadThenUpdate(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	ctx.RecordRead(loc(1, 0))
	ctx.RecordUpdate(loc(1, 0))

	assert.Equal(t, Update, ctx.GetRWType(loc(1, 0)))
	assert.True(t, ctx.IsWritten())
	assert.EqualValues(t, 0, ctx.InsertCount())
}

func TestInsertThenDeleteCollapses(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	ctx.RecordInsert(loc(2, 3))
	assert.EqualValues(t, 1, ctx.InsertCount())

	collapsed := ctx.RecordDelete(loc(2, 3))
	assert.True(t, collapsed)
	assert.EqualValues(t, 0, ctx.InsertCount())
	assert.Equal(t, InsDel, ctx.GetRWType(loc(2, 3)))
}

func TestInsertThenReadReadOwnUpdateAreNoops(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	ctx.RecordInsert(loc(2, 4))
	ctx.RecordRead(loc(2, 4))
	ctx.RecordReadOwn(loc(2, 4))
	ctx.RecordUpdate(loc(2, 4))

	assert.Equal(t, Insert, ctx.GetRWType(loc(2, 4)))
	assert.EqualValues(t, 1, ctx.InsertCount())
	assert.False(t, ctx.IsWritten())
}

func TestDeleteOfUnseenSlot(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	collapsed := ctx.RecordDelete(loc(3, 0))

	assert.False(t, collapsed)
	assert.Equal(t, Delete, ctx.GetRWType(loc(3, 0)))
	assert.False(t, ctx.IsWritten())
}

func TestUpgradeChain(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	ctx.RecordRead(loc(4, 0))
	ctx.RecordReadOwn(loc(4, 0))
	ctx.RecordUpdate(loc(4, 0))
	collapsed := ctx.RecordDelete(loc(4, 0))

	assert.Equal(t, Delete, ctx.GetRWType(loc(4, 0)))
	assert.True(t, ctx.IsWritten())
	assert.False(t, collapsed)
}

func TestTriggerOrdering(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	var order []string

	for _, name := range []string{"T1", "T2", "T3"} {
		name := name
		ctx.AddOnCommitTrigger(TriggerData{
			Name: name,
			Fire: func(context.Context) error {
				order = append(order, name)
				return nil
			},
		})
	}

	ctx.ExecOnCommitTriggers()
	assert.Equal(t, []string{"T1", "T2", "T3"}, order)
}

func TestExecOnCommitTriggersNoopWhenEmpty(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	assert.NotPanics(t, func() { ctx.ExecOnCommitTriggers() })
}

func TestTriggerErrorIsLoggedNotPropagated(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	fired := false
	ctx.AddOnCommitTrigger(TriggerData{
		Name: "boom",
		Fire: func(context.Context) error {
			fired = true
			return assertErr
		},
	})

	assert.NotPanics(t, func() { ctx.ExecOnCommitTriggers() })
	assert.True(t, fired)
}

func TestEpochDerivation(t *testing.T) {
	readID := uint64(7)<<32 | 42
	ctx := NewTransactionContext(1, RepeatableReads, readID)
	assert.EqualValues(t, 7, ctx.EpochID())

	ctx.Init(1, RepeatableReads, readID, 99)
	assert.EqualValues(t, 7, ctx.EpochID())
}

func TestConstructorWithCommitID(t *testing.T) {
	ctx := NewTransactionContextWithCommitID(1, ReadCommitted, 1<<32, 55)
	assert.EqualValues(t, 55, ctx.CommitID())
	assert.EqualValues(t, 55, ctx.TransactionID())
	assert.Equal(t, Unknown, ctx.Result())
}

// terminalOps is every mutator, used to check that none of them
// complete normally once a slot has reached a terminal mode (P4).
func terminalOps(l SlotLocation) map[string]func(*TransactionContext){
	return map[string]func(*TransactionContext){
		"read":      func(c *TransactionContext) { c.RecordRead(l) },
		"read-own":  func(c *TransactionContext) { c.RecordReadOwn(l) },
		"update":    func(c *TransactionContext) { c.RecordUpdate(l) },
		"insert":    func(c *TransactionContext) { c.RecordInsert(l) },
		"delete":    func(c *TransactionContext) { c.RecordDelete(l) },
	}
}

func TestIllegalTransitionsAfterDeleteAbort(t *testing.T) {
	l := loc(9, 0)
	for name, op := range terminalOps(l) {
		name, op := name, op
		t.Run(name, func(t *testing.T) {
			ctx := NewTransactionContext(1, Serializable, 1<<32)
			ctx.RecordDelete(l)
			assert.Panics(t, func() { op(ctx) })
		})
	}
}

func TestIllegalTransitionsAfterInsDelAbort(t *testing.T) {
	l := loc(9, 1)
	for name, op := range terminalOps(l) {
		name, op := name, op
		t.Run(name, func(t *testing.T) {
			ctx := NewTransactionContext(1, Serializable, 1<<32)
			ctx.RecordInsert(l)
			ctx.RecordDelete(l)
			assert.Panics(t, func() { op(ctx) })
		})
	}
}

func TestRecordInsertOnExistingReadIsIllegal(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	ctx.RecordRead(loc(5, 0))
	assert.Panics(t, func() { ctx.RecordInsert(loc(5, 0)) })
}

func TestRecordInsertOnUpdateIsIllegal(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	ctx.RecordUpdate(loc(5, 1))
	assert.Panics(t, func() { ctx.RecordInsert(loc(5, 1)) })
}

func TestGetInfoContainsIdentifiers(t *testing.T) {
	ctx := NewTransactionContextWithCommitID(1, Serializable, 1<<32, 7)
	info := ctx.GetInfo()
	require.Contains(t, info, "ID :")
	require.Contains(t, info, "Read ID :")
	require.Contains(t, info, "Commit ID :")
	require.Contains(t, info, "Result :")
}

func TestTakeGCSetClearsContext(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	ctx.GCSet().Add(1, 0, VersionDelete)

	taken := ctx.TakeGCSet()
	require.Len(t, taken, 1)
	assert.Len(t, ctx.GCSet(), 0)
}

func TestAddGCObjectAndTake(t *testing.T) {
	ctx := NewTransactionContext(1, Serializable, 1<<32)
	ctx.AddGCObject(ObjectGCEntry{DatabaseID: 1, TableID: 2})

	taken := ctx.TakeGCObjectSet()
	require.Len(t, taken, 1)
	assert.Nil(t, ctx.GCObjectSet())
}

var assertErr = errTriggerBoom{}

type errTriggerBoom struct{}

func (errTriggerBoom) Error() string { return "boom" }
