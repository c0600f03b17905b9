package core

// executor.go – parallel batch execution with per-account locking.
//
// Each transaction runs in its own goroutine holding exclusive locks on every
// key it touches, so disjoint transactions proceed in parallel while
// conflicting ones serialize into an order equivalent to some serial run.

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Executor applies transaction batches to the account cache under the lock
// manager's guards.
type Executor struct {
	cache   *AccountCache
	locks   *AccountLocks
	runtime ProgramRuntime
	logger  *logrus.Logger
}

// NewExecutor wires an executor over the shared cache and lock manager with
// the stub program runtime.
func NewExecutor(cache *AccountCache, locks *AccountLocks, lg *logrus.Logger) *Executor {
	return &Executor{cache: cache, locks: locks, runtime: StubRuntime{}, logger: lg}
}

// SetRuntime swaps the program runtime invoked for executable receivers.
func (ex *Executor) SetRuntime(rt ProgramRuntime) { ex.runtime = rt }

// ExecuteBatch runs every transaction concurrently and returns receipts in
// input order. A worker panic is captured as a failed receipt; it never
// aborts the batch. The cache is flushed once after all workers settle.
func (ex *Executor) ExecuteBatch(txs []Tx) []Receipt {
	receipts := make([]Receipt, len(txs))
	done := make(chan struct{}, len(txs))

	for i, tx := range txs {
		go func(i int, tx Tx) {
			defer func() {
				if r := recover(); r != nil {
					receipts[i] = Receipt{Success: false, Err: fmt.Sprintf("task error: %v", r)}
				}
				done <- struct{}{}
			}()
			receipts[i] = ex.executeOne(tx)
		}(i, tx)
	}
	for range txs {
		<-done
	}

	if err := ex.cache.Flush(); err != nil {
		ex.logger.Errorf("cache flush failed: %v", err)
	}
	return receipts
}

func (ex *Executor) executeOne(tx Tx) Receipt {
	guard := ex.locks.Acquire([]AccountKey{tx.From, tx.To})
	defer guard.Release()

	from, ok, err := ex.cache.Get(tx.From)
	if err != nil {
		return Receipt{Tx: tx, Success: false, Err: fmt.Sprintf("load sender: %v", err)}
	}
	if !ok {
		from = NewAccount(0, "system", nil)
	}
	to, ok, err := ex.cache.Get(tx.To)
	if err != nil {
		return Receipt{Tx: tx, Success: false, Err: fmt.Sprintf("load receiver: %v", err)}
	}
	if !ok {
		to = NewAccount(0, "system", nil)
	}

	if from.Balance < tx.Amount {
		return Receipt{Tx: tx, Success: false, Err: "insufficient funds"}
	}

	if len(tx.Payload) > 0 && to.Executable {
		if _, err := ex.runtime.Execute(to, tx.Payload); err != nil {
			return Receipt{Tx: tx, Success: false, Err: fmt.Sprintf("program error: %v", err)}
		}
	}

	from.Balance = saturatingSub(from.Balance, tx.Amount)
	if tx.From == tx.To {
		// self-transfer: both views are the same account
		to = from
	} else {
		to.Balance = saturatingAdd(to.Balance, tx.Amount)
	}
	if err := ex.cache.Insert(tx.From, from); err != nil {
		return Receipt{Tx: tx, Success: false, Err: fmt.Sprintf("write sender: %v", err)}
	}
	if err := ex.cache.Insert(tx.To, to); err != nil {
		return Receipt{Tx: tx, Success: false, Err: fmt.Sprintf("write receiver: %v", err)}
	}
	return Receipt{Tx: tx, Success: true, PostFrom: from.Balance, PostTo: to.Balance}
}

func saturatingAdd(a, b uint64) uint64 {
	if s := a + b; s >= a {
		return s
	}
	return ^uint64(0)
}

func saturatingSub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
