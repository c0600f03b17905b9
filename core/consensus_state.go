package core

// consensus_state.go – pending proposals, vote aggregation and finalization
// bookkeeping. All transitions go through one mutex, so state changes for a
// given block hash are linearizable.

import (
	"math/big"
	"sync"
)

// VoteWeighting selects how much weight one recorded vote contributes.
type VoteWeighting int

const (
	// WeightPerVote counts every vote as one unit against total stake.
	// With large stakes and few voters the threshold can be unreachable;
	// deployments with stake-denominated totals want WeightByStake.
	WeightPerVote VoteWeighting = iota
	// WeightByStake sums the voter's registered stake.
	WeightByStake
)

type voteRecord struct {
	voters    map[ValidatorId]struct{}
	yesWeight uint64
}

// ConsensusState owns the live consensus bookkeeping. Callers interact only
// through message-style operations; no internal references escape.
type ConsensusState struct {
	mu sync.Mutex

	currentEpoch Epoch
	currentSlot  Slot
	totalStake   uint64

	pending        map[string]BlockProposal
	votes          map[string]*voteRecord
	finalized      []FinalizedBlock
	finalizedHash  map[string]struct{}
	finalizedSlots map[Slot]struct{}

	weighting VoteWeighting
	stakeOf   func(ValidatorId) uint64
}

// NewConsensusState builds empty state with per-vote weighting.
func NewConsensusState() *ConsensusState {
	return &ConsensusState{
		pending:        make(map[string]BlockProposal),
		votes:          make(map[string]*voteRecord),
		finalizedHash:  make(map[string]struct{}),
		finalizedSlots: make(map[Slot]struct{}),
	}
}

// SetWeighting switches the vote weighting strategy. stakeOf resolves a
// voter's stake and is required for WeightByStake.
func (st *ConsensusState) SetWeighting(w VoteWeighting, stakeOf func(ValidatorId) uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.weighting = w
	st.stakeOf = stakeOf
}

// SetTotalStake updates the finalization denominator.
func (st *ConsensusState) SetTotalStake(total uint64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.totalStake = total
}

// NextSlot increments and returns the slot counter.
func (st *ConsensusState) NextSlot() Slot {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.currentSlot++
	return st.currentSlot
}

// InsertPendingProposal registers a proposal under its block hash. Hashes
// that already finalized are refused: a block is pending or finalized, never
// both, and finalization never rolls back.
func (st *ConsensusState) InsertPendingProposal(p BlockProposal) bool {
	key := string(p.BlockHash)
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, done := st.finalizedHash[key]; done {
		return false
	}
	if _, dup := st.pending[key]; dup {
		return false
	}
	st.pending[key] = p
	return true
}

// HasPending reports whether a proposal with this hash awaits finalization.
func (st *ConsensusState) HasPending(blockHash []byte) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.pending[string(blockHash)]
	return ok
}

// HasFinalizedSlot reports whether any block finalized at the given slot.
func (st *ConsensusState) HasFinalizedSlot(slot Slot) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.finalizedSlots[slot]
	return ok
}

// RecordVote returns true only when the (validator, block hash) pair is new;
// a duplicate changes nothing. The vote weight follows the configured
// strategy.
func (st *ConsensusState) RecordVote(v *Vote) bool {
	key := string(v.BlockHash)
	st.mu.Lock()
	defer st.mu.Unlock()

	rec, ok := st.votes[key]
	if !ok {
		rec = &voteRecord{voters: make(map[ValidatorId]struct{})}
		st.votes[key] = rec
	}
	if _, dup := rec.voters[v.Validator]; dup {
		return false
	}
	rec.voters[v.Validator] = struct{}{}

	weight := uint64(1)
	if st.weighting == WeightByStake && st.stakeOf != nil {
		weight = st.stakeOf(v.Validator)
	}
	rec.yesWeight = saturatingAdd(rec.yesWeight, weight)
	return true
}

// TryFinalize reports whether the block's yes-weight crossed two thirds of
// total stake. Zero total stake never finalizes.
func (st *ConsensusState) TryFinalize(blockHash []byte) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	rec, ok := st.votes[string(blockHash)]
	if !ok || st.totalStake == 0 {
		return false
	}
	// yes*3 >= total*2, in wide arithmetic so huge stakes cannot overflow
	yes := new(big.Int).Mul(new(big.Int).SetUint64(rec.yesWeight), big.NewInt(3))
	total := new(big.Int).Mul(new(big.Int).SetUint64(st.totalStake), big.NewInt(2))
	return yes.Cmp(total) >= 0
}

// FinalizeBlock moves a pending proposal into the finalized sequence and
// returns it. Slots may skip but the sequence never re-admits a hash.
func (st *ConsensusState) FinalizeBlock(blockHash []byte) (FinalizedBlock, bool) {
	key := string(blockHash)
	st.mu.Lock()
	defer st.mu.Unlock()

	p, ok := st.pending[key]
	if !ok {
		return FinalizedBlock{}, false
	}
	delete(st.pending, key)
	fb := FinalizedBlock{Slot: p.Slot, BlockHash: append([]byte(nil), p.BlockHash...), Proposer: p.Proposer}
	st.finalized = append(st.finalized, fb)
	st.finalizedHash[key] = struct{}{}
	st.finalizedSlots[p.Slot] = struct{}{}
	return fb, true
}

// Snapshot copies the observable state for RPC and debugging.
func (st *ConsensusState) Snapshot() ConsensusSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()

	snap := ConsensusSnapshot{
		Epoch:      st.currentEpoch,
		Slot:       st.currentSlot,
		TotalStake: st.totalStake,
	}
	for _, p := range st.pending {
		snap.PendingProposals = append(snap.PendingProposals, PendingSummary{
			Slot:      p.Slot,
			BlockHash: append([]byte(nil), p.BlockHash...),
		})
	}
	snap.Finalized = make([]FinalizedBlock, len(st.finalized))
	copy(snap.Finalized, st.finalized)
	return snap
}
