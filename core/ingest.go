package core

// ingest.go – transaction admission: light validation then pool insert.
// Validation is pluggable so the RPC layer and tests can swap policies.

import "fmt"

// TxValidator decides whether a transaction may enter the pool. A non-nil
// error carries the human-readable rejection reason.
type TxValidator interface {
	Validate(tx *Tx) error
}

// BalanceValidator checks the sender can cover amount plus fee against the
// cached account state.
type BalanceValidator struct {
	cache *AccountCache
}

// NewBalanceValidator builds the default validator over the shared cache.
func NewBalanceValidator(cache *AccountCache) *BalanceValidator {
	return &BalanceValidator{cache: cache}
}

func (v *BalanceValidator) Validate(tx *Tx) error {
	from, ok, err := v.cache.Get(tx.From)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("sender account not found")
	}
	required := saturatingAdd(tx.Amount, tx.Fee)
	if from.Balance < required {
		return fmt.Errorf("insufficient funds")
	}
	return nil
}

// IngestResult reports the outcome of one admission attempt.
type IngestResult struct {
	Accepted bool
	ID       Hash
	Reason   string
}

// TxIngestor validates and admits transactions arriving from RPC or gossip.
type TxIngestor struct {
	pool      *TxPool
	validator TxValidator
}

// NewTxIngestor wires an ingestor over the pool with the given validator.
func NewTxIngestor(pool *TxPool, validator TxValidator) *TxIngestor {
	return &TxIngestor{pool: pool, validator: validator}
}

// Ingest validates tx and inserts it into the pool. Validation failures and
// duplicates come back as rejections; pool errors other than Duplicate
// propagate so the caller can surface capacity problems.
func (ing *TxIngestor) Ingest(tx Tx) (IngestResult, error) {
	if err := ing.validator.Validate(&tx); err != nil {
		return IngestResult{Accepted: false, Reason: err.Error()}, nil
	}
	meta, err := ing.pool.Insert(tx)
	if err == ErrDuplicateTx {
		return IngestResult{Accepted: false, ID: tx.ID(), Reason: "duplicate tx"}, nil
	}
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{Accepted: true, ID: meta.ID}, nil
}
