package core

// common_structs.go – centralised data model declarations shared across the
// node core. This file declares only data structures (no behaviour) so the
// remaining files can reference them without import cycles.

import (
	"encoding/hex"
	"time"
)

//---------------------------------------------------------------------
// Primitive identifiers
//---------------------------------------------------------------------

// Hash is a 32-byte SHA-256 digest used as a content address.
type Hash [32]byte

// Hex returns the lowercase hex encoding of the hash.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// AccountKey identifies an account (hex-encoded public key).
type AccountKey = string

// ValidatorId identifies a staked participant.
type ValidatorId = string

// Slot labels a consensus attempt; monotonically increasing.
type Slot = uint64

// Epoch groups slots. Tracked but not functionally used by the core.
type Epoch = uint64

//---------------------------------------------------------------------
// Accounts
//---------------------------------------------------------------------

// Account is the unit of chain state. Balance arithmetic saturates.
type Account struct {
	Balance    uint64 `json:"balance"`
	Owner      string `json:"owner"`
	Data       []byte `json:"data"`
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rent_epoch"`
}

// NewAccount builds an account with the given balance, owner and data.
func NewAccount(balance uint64, owner string, data []byte) Account {
	return Account{Balance: balance, Owner: owner, Data: data}
}

//---------------------------------------------------------------------
// Transactions
//---------------------------------------------------------------------

// TxMeta is the pool-side bookkeeping attached to an admitted transaction.
type TxMeta struct {
	ID         Hash
	InsertedAt time.Time
	Priority   float64
	LastSeen   time.Time
	TTL        time.Duration
}

// Receipt records the execution outcome of one transaction.
type Receipt struct {
	Tx      Tx     `json:"tx"`
	Success bool   `json:"success"`
	Err     string `json:"err,omitempty"`
	// Post-transfer balances, present only on success.
	PostFrom uint64 `json:"post_from,omitempty"`
	PostTo   uint64 `json:"post_to,omitempty"`
}

//---------------------------------------------------------------------
// Consensus
//---------------------------------------------------------------------

// BlockProposal announces a candidate block for a slot.
type BlockProposal struct {
	Proposer  ValidatorId `json:"proposer"`
	Slot      Slot        `json:"slot"`
	BlockHash []byte      `json:"block_hash"`
	PoHHash   string      `json:"poh_hash"`
}

// Vote endorses a proposal. Whether a vote counts is decided by the
// engine's VoteVerifier; the default verifier accepts every vote, including
// one with an empty signature.
type Vote struct {
	Validator ValidatorId `json:"validator"`
	Slot      Slot        `json:"slot"`
	BlockHash []byte      `json:"block_hash"`
	Signature []byte      `json:"signature"`
}

// FinalizedBlock is the irreversible record appended to the ledger sequence.
type FinalizedBlock struct {
	Slot      Slot        `json:"slot"`
	BlockHash []byte      `json:"block_hash"`
	Proposer  ValidatorId `json:"proposer"`
}

// ConsensusSnapshot is a read-only view of consensus state for RPC and
// debugging.
type ConsensusSnapshot struct {
	Epoch            Epoch            `json:"epoch"`
	Slot             Slot             `json:"slot"`
	TotalStake       uint64           `json:"total_stake"`
	PendingProposals []PendingSummary `json:"pending_proposals"`
	Finalized        []FinalizedBlock `json:"finalized"`
}

// PendingSummary pairs a pending proposal's slot with its block hash.
type PendingSummary struct {
	Slot      Slot   `json:"slot"`
	BlockHash []byte `json:"block_hash"`
}

//---------------------------------------------------------------------
// Networking
//---------------------------------------------------------------------

// PeerInfo is the metadata tracked per known peer, keyed by node id.
type PeerInfo struct {
	NodeID   string    `json:"node_id"`
	Addr     string    `json:"addr"`
	LastSeen time.Time `json:"last_seen"`
	BanUntil time.Time `json:"ban_until,omitempty"`
}

// Healthy reports whether the peer is currently usable (not banned).
func (p PeerInfo) Healthy() bool {
	return p.BanUntil.IsZero() || time.Now().After(p.BanUntil)
}

// InboundMsg is one decoded wire message with the address it arrived from.
type InboundMsg struct {
	Addr string
	Msg  WireMessage
}
