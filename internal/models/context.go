package models

import (
	"sync"

	"github.com/holiman/uint256"
)

// ContextRequest asks the context provider for its current snapshot.
type ContextRequest struct{}

// BlockRuleContext carries the parameters block-level consensus rules are evaluated against.
type BlockRuleContext struct {
	Height                     uint64
	CurrentHardFork            HardFork
	MedianWeightForBlockReward uint64
	EffectiveMedianWeight      uint64
	AlreadyGeneratedCoins      uint64
	MedianTimestamp            uint64
}

// Snapshot is a point-in-time view of chain state. Providers hand out a
// snapshot that is never mutated afterwards; a new state means a new Snapshot.
type Snapshot struct {
	ChainHeight          uint64
	TopHash              Hash
	CurrentHardFork      HardFork
	NextDifficulty       uint256.Int
	CumulativeDifficulty uint256.Int
	// TimeForTimeLock is the adjusted timestamp time-locked outputs are compared against.
	TimeForTimeLock uint64
	Rules           BlockRuleContext
	// LongTermWeight maps a block weight to its long-term weight. Nil means identity.
	LongTermWeight func(blockWeight uint64) uint64
	ReorgToken     *ReorgToken
}

// NextBlockLongTermWeight returns the long-term weight of a block of the given
// weight at the next height.
func (s *Snapshot) NextBlockLongTermWeight(blockWeight uint64) uint64 {
	if s.LongTermWeight == nil {
		return blockWeight
	}
	return s.LongTermWeight(blockWeight)
}

// ReorgToken is closed by the context provider when the chain it was handed
// out with is reorganised. The zero value is not usable; use NewReorgToken.
type ReorgToken struct {
	once sync.Once
	done chan struct{}
}

func NewReorgToken() *ReorgToken {
	return &ReorgToken{done: make(chan struct{})}
}

// Invalidate marks the token as reorged. Safe to call more than once.
func (t *ReorgToken) Invalidate() {
	t.once.Do(func() { close(t.done) })
}

// Done is closed once the token has been invalidated.
func (t *ReorgToken) Done() <-chan struct{} {
	return t.done
}

// Reorged reports whether the chain moved since the token was issued.
// A nil token never reports a reorg.
func (t *ReorgToken) Reorged() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}
