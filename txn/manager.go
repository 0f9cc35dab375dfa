package txn

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/wasm-jit/errors"
)

// Manager hands out transactions to query execution. The compilation
// manager stores a Manager for its callers and never uses it itself.
type Manager interface {
	Begin() *Transaction
	Commit(tx *Transaction) error
	Abort(tx *Transaction) error
	Active() int
}

// Transaction is a snapshot handle.
type Transaction struct {
	ID       uint64
	StartTS  uint64
	CommitTS uint64
}

// TimestampManager issues monotonically increasing timestamps from a single
// counter shared by start and commit.
type TimestampManager struct {
	clock  atomic.Uint64
	nextID atomic.Uint64
	active sync.Map
	count  atomic.Int64
}

var _ Manager = (*TimestampManager)(nil)

func NewManager() *TimestampManager {
	return &TimestampManager{}
}

func (m *TimestampManager) Begin() *Transaction {
	tx := &Transaction{
		ID:      m.nextID.Add(1),
		StartTS: m.clock.Add(1),
	}
	m.active.Store(tx.ID, tx)
	m.count.Add(1)
	return tx
}

// Commit stamps tx with a commit timestamp later than every start issued so
// far.
func (m *TimestampManager) Commit(tx *Transaction) error {
	if err := m.finish(tx); err != nil {
		return err
	}
	tx.CommitTS = m.clock.Add(1)
	return nil
}

func (m *TimestampManager) Abort(tx *Transaction) error {
	return m.finish(tx)
}

func (m *TimestampManager) finish(tx *Transaction) error {
	if tx == nil {
		return errors.InvalidInput(errors.PhaseRuntime, "nil transaction")
	}
	if _, ok := m.active.LoadAndDelete(tx.ID); !ok {
		return errors.New(errors.PhaseRuntime, errors.KindNotFound).
			Detail("transaction %d is not active", tx.ID).
			Value(tx.ID).
			Build()
	}
	m.count.Add(-1)
	return nil
}

// Active returns the number of open transactions.
func (m *TimestampManager) Active() int {
	return int(m.count.Load())
}
