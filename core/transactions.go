package core

// transactions.go – canonical transaction model, hashing and priority.
//
// A transaction's identity (TxId) is the SHA-256 of its canonical RLP
// encoding; the same bytes travel on the wire inside Payload frames, so any
// two nodes agree on identity without trusting the sender.

import (
	"crypto/sha256"

	"github.com/ethereum/go-ethereum/rlp"
)

// Tx is a value transfer with an optional program payload. It carries no
// signature field.
type Tx struct {
	From    AccountKey `json:"from"`
	To      AccountKey `json:"to"`
	Amount  uint64     `json:"amount"`
	Fee     uint64     `json:"fee"`
	Nonce   uint64     `json:"nonce"`
	Payload []byte     `json:"payload"`
}

// Serialized returns the canonical RLP encoding of the transaction.
func (tx *Tx) Serialized() []byte {
	b, err := rlp.EncodeToBytes(tx)
	if err != nil {
		// Tx contains only strings, uints and bytes; RLP cannot fail here.
		panic(err)
	}
	return b
}

// ID computes the transaction identity: SHA-256 over the canonical encoding.
func (tx *Tx) ID() Hash {
	return sha256.Sum256(tx.Serialized())
}

// Size is the canonical encoded length, used by the fee-per-byte metric.
func (tx *Tx) Size() int {
	return len(tx.Serialized())
}

// Priority is fee per serialized byte; a zero-size transaction falls back to
// the raw fee.
func (tx *Tx) Priority() float64 {
	size := tx.Size()
	if size == 0 {
		return float64(tx.Fee)
	}
	return float64(tx.Fee) / float64(size)
}

// DecodeTx parses a canonical transaction encoding.
func DecodeTx(data []byte) (*Tx, error) {
	var tx Tx
	if err := rlp.DecodeBytes(data, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
