package core

// consensus.go – the engine that wires PoH ordering, PoS leader election,
// vote aggregation and network side-effects into the finalization flow.
//
// State transitions for one block hash:
//
//	none ──insert──▶ pending ──threshold──▶ finalized
//
// with no transition back.

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

//---------------------------------------------------------------------
// Wire-up interfaces (keeps the engine independent of concrete impls)
//---------------------------------------------------------------------

// NetworkSender carries consensus messages to peers. The integration layer
// supplies an adapter that reaches the connection manager.
type NetworkSender interface {
	SendProposal(p BlockProposal)
	SendVote(v Vote)
}

// VoteVerifier gates votes before they are counted. The core ships a
// permissive default; deployments plug in a signature check.
type VoteVerifier interface {
	VerifyVote(v *Vote) error
}

type acceptAllVotes struct{}

func (acceptAllVotes) VerifyVote(*Vote) error { return nil }

//---------------------------------------------------------------------
// Engine
//---------------------------------------------------------------------

// ConsensusEngine drives proposal, voting and finalization for one node.
type ConsensusEngine struct {
	nodeID ValidatorId
	poh    *PoH
	pos    *ProofOfStake
	tower  *Tower
	state  *ConsensusState
	net    NetworkSender
	logger *logrus.Logger

	iterations  int
	verifier    VoteVerifier
	onProposed  func(BlockProposal)
	onFinalized func(FinalizedBlock)
}

// NewConsensusEngine builds an engine. pohIterations controls how much
// sequential hashing backs each proposal attempt.
func NewConsensusEngine(nodeID ValidatorId, tickMS, pohIterations int, net NetworkSender, lg *logrus.Logger) *ConsensusEngine {
	return &ConsensusEngine{
		nodeID:     nodeID,
		poh:        NewPoH(tickMS),
		pos:        NewProofOfStake(),
		tower:      NewTower(),
		state:      NewConsensusState(),
		net:        net,
		logger:     lg,
		iterations: pohIterations,
		verifier:   acceptAllVotes{},
	}
}

// SetVoteVerifier installs a vote admission check.
func (ce *ConsensusEngine) SetVoteVerifier(v VoteVerifier) { ce.verifier = v }

// SetOnProposed installs the local-leader hook (batch execution).
func (ce *ConsensusEngine) SetOnProposed(f func(BlockProposal)) { ce.onProposed = f }

// SetOnFinalized installs the finalization hook (ledger append).
func (ce *ConsensusEngine) SetOnFinalized(f func(FinalizedBlock)) { ce.onFinalized = f }

// SetVoteWeighting selects the weighting strategy; WeightByStake resolves
// voter stakes through the engine's own registry.
func (ce *ConsensusEngine) SetVoteWeighting(w VoteWeighting) {
	ce.state.SetWeighting(w, ce.pos.StakeOf)
}

// PoS exposes the stake registry for integration wiring.
func (ce *ConsensusEngine) PoS() *ProofOfStake { return ce.pos }

// State exposes the consensus state for integration wiring and tests.
func (ce *ConsensusEngine) State() *ConsensusState { return ce.state }

// Tower exposes the vote history.
func (ce *ConsensusEngine) Tower() *Tower { return ce.tower }

// RegisterValidator records stake and refreshes the finalization
// denominator.
func (ce *ConsensusEngine) RegisterValidator(validator ValidatorId, stake uint64) {
	ce.pos.Register(validator, stake)
	ce.state.SetTotalStake(ce.pos.TotalStake())
}

//---------------------------------------------------------------------
// Public service API – Start
//---------------------------------------------------------------------

// Start runs the proposal loop until ctx is cancelled.
func (ce *ConsensusEngine) Start(ctx context.Context) {
	tick := ce.poh.TickInterval()
	if tick <= 0 {
		tick = 500
	}
	go func() {
		ticker := time.NewTicker(time.Duration(tick) * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ce.ProposeIfLeader()
			}
		}
	}()
	ce.logger.Info("consensus engine started")
}

//---------------------------------------------------------------------
// Proposal path
//---------------------------------------------------------------------

// ProposalHash derives the content address of a bodyless local proposal.
func ProposalHash(proposer ValidatorId, slot Slot) []byte {
	sum := sha256.Sum256([]byte(fmt.Sprintf("proposal:%s:%d", proposer, slot)))
	return sum[:]
}

// ProposeIfLeader draws a PoH seed, selects the leader for it, and if the
// local node won, builds and broadcasts a proposal for the next slot.
func (ce *ConsensusEngine) ProposeIfLeader() (BlockProposal, bool) {
	seed := ce.poh.Generate(ce.iterations)

	leader, ok := ce.pos.SelectLeaderWithSeed([]byte(seed))
	if !ok || leader != ce.nodeID {
		return BlockProposal{}, false
	}

	slot := ce.state.NextSlot()
	proposal := BlockProposal{
		Proposer:  ce.nodeID,
		Slot:      slot,
		BlockHash: ProposalHash(ce.nodeID, slot),
		PoHHash:   seed,
	}
	if !ce.state.InsertPendingProposal(proposal) {
		return BlockProposal{}, false
	}
	ce.logger.Infof("proposing slot %d (hash %x)", slot, proposal.BlockHash)
	ce.net.SendProposal(proposal)
	if ce.onProposed != nil {
		ce.onProposed(proposal)
	}
	return proposal, true
}

// HandleProposal registers a peer's proposal, votes for it locally and
// broadcasts the vote. Proposals for finalized slots or already-pending
// hashes are dropped.
func (ce *ConsensusEngine) HandleProposal(p BlockProposal) {
	if ce.state.HasFinalizedSlot(p.Slot) {
		ce.logger.Debugf("ignoring proposal for finalized slot %d", p.Slot)
		return
	}
	if ce.state.HasPending(p.BlockHash) {
		ce.logger.Debugf("already have proposal %x", p.BlockHash)
		return
	}
	if !ce.state.InsertPendingProposal(p) {
		return
	}

	vote := Vote{
		Validator: ce.nodeID,
		Slot:      p.Slot,
		BlockHash: append([]byte(nil), p.BlockHash...),
		Signature: []byte{},
	}
	ce.HandleVote(vote)
	ce.net.SendVote(vote)
}

// HandleVote counts a vote (own or remote). When a newly recorded vote
// crosses the threshold the block moves to the finalized sequence and the
// finalization hook fires.
func (ce *ConsensusEngine) HandleVote(v Vote) {
	if err := ce.verifier.VerifyVote(&v); err != nil {
		ce.logger.Warnf("dropping vote from %s: %v", v.Validator, err)
		return
	}
	if !ce.state.RecordVote(&v) {
		return
	}
	if !ce.state.TryFinalize(v.BlockHash) {
		return
	}
	ce.tower.RecordVote(&v)
	if fb, ok := ce.state.FinalizeBlock(v.BlockHash); ok {
		ce.logger.Infof("block finalized for slot %d hash %x", fb.Slot, fb.BlockHash)
		if ce.onFinalized != nil {
			ce.onFinalized(fb)
		}
	}
}

// Snapshot exposes consensus state for RPC and inspection.
func (ce *ConsensusEngine) Snapshot() ConsensusSnapshot {
	return ce.state.Snapshot()
}
