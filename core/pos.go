package core

// pos.go – Proof-of-Stake registry and deterministic leader selection.

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"
	"sort"
	"sync"
)

// StakeInfo pairs a validator with its registered stake.
type StakeInfo struct {
	Validator ValidatorId
	Stake     uint64
}

// ProofOfStake tracks validator stakes and selects leaders. The ordered
// cache is sorted by validator id so every node walks stakes identically.
type ProofOfStake struct {
	mu      sync.RWMutex
	stakes  map[ValidatorId]uint64
	ordered []StakeInfo
	total   uint64
}

// NewProofOfStake returns an empty registry.
func NewProofOfStake() *ProofOfStake {
	return &ProofOfStake{stakes: make(map[ValidatorId]uint64)}
}

// Register sets (or replaces) a validator's stake and rebuilds the ordered
// cache. Total stake arithmetic saturates.
func (pos *ProofOfStake) Register(validator ValidatorId, stake uint64) {
	pos.mu.Lock()
	defer pos.mu.Unlock()

	pos.total = saturatingSub(pos.total, pos.stakes[validator])
	pos.stakes[validator] = stake
	pos.total = saturatingAdd(pos.total, stake)

	pos.ordered = pos.ordered[:0]
	for v, s := range pos.stakes {
		pos.ordered = append(pos.ordered, StakeInfo{Validator: v, Stake: s})
	}
	sort.Slice(pos.ordered, func(i, j int) bool {
		return pos.ordered[i].Validator < pos.ordered[j].Validator
	})
}

// StakeOf returns the registered stake for a validator (zero if unknown).
func (pos *ProofOfStake) StakeOf(validator ValidatorId) uint64 {
	pos.mu.RLock()
	defer pos.mu.RUnlock()
	return pos.stakes[validator]
}

// TotalStake returns the sum of all registered stakes.
func (pos *ProofOfStake) TotalStake() uint64 {
	pos.mu.RLock()
	defer pos.mu.RUnlock()
	return pos.total
}

// Validators returns the ordered stake table.
func (pos *ProofOfStake) Validators() []StakeInfo {
	pos.mu.RLock()
	defer pos.mu.RUnlock()
	out := make([]StakeInfo, len(pos.ordered))
	copy(out, pos.ordered)
	return out
}

// SelectLeaderWithSeed picks a validator weighted by stake: the first 16
// bytes of SHA-256(seed), read big-endian, are reduced mod total stake and
// mapped onto the cumulative stake walk. Same table + same seed gives the
// same leader on every node.
func (pos *ProofOfStake) SelectLeaderWithSeed(seed []byte) (ValidatorId, bool) {
	pos.mu.RLock()
	defer pos.mu.RUnlock()

	if len(pos.ordered) == 0 || pos.total == 0 {
		return "", false
	}

	digest := sha256.Sum256(seed)
	hi := binary.BigEndian.Uint64(digest[0:8])
	lo := binary.BigEndian.Uint64(digest[8:16])
	pick := new(big.Int).Lsh(new(big.Int).SetUint64(hi), 64)
	pick.Or(pick, new(big.Int).SetUint64(lo))
	pick.Mod(pick, new(big.Int).SetUint64(pos.total))

	acc := new(big.Int)
	for _, info := range pos.ordered {
		acc.Add(acc, new(big.Int).SetUint64(info.Stake))
		if pick.Cmp(acc) < 0 {
			return info.Validator, true
		}
	}
	return pos.ordered[len(pos.ordered)-1].Validator, true
}

// SelectLeader is the seedless round-robin fallback over the ordered table.
func (pos *ProofOfStake) SelectLeader(slot Slot) (ValidatorId, bool) {
	pos.mu.RLock()
	defer pos.mu.RUnlock()
	if len(pos.ordered) == 0 {
		return "", false
	}
	return pos.ordered[int(slot%uint64(len(pos.ordered)))].Validator, true
}
