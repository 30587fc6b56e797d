package consensus

import (
	"fmt"

	"github.com/manifest-network/chainguard/internal/models"
)

// BlockRules applies the block-level consensus rules: size, weight, fee,
// coinbase emission and hard-fork version/vote. It returns the block's hard
// fork vote and the coins the block generates. Violations must be reported
// through Reject so callers can tell them apart from infrastructure failures.
type BlockRules interface {
	CheckBlock(block *models.Block, totalFees, weight, size uint64, rules *models.BlockRuleContext) (vote models.HardFork, generatedCoins uint64, err error)
}

// BlockRulesFunc adapts a function to BlockRules.
type BlockRulesFunc func(block *models.Block, totalFees, weight, size uint64, rules *models.BlockRuleContext) (models.HardFork, uint64, error)

func (f BlockRulesFunc) CheckBlock(block *models.Block, totalFees, weight, size uint64, rules *models.BlockRuleContext) (models.HardFork, uint64, error) {
	return f(block, totalFees, weight, size, rules)
}

// HardForkFromVersion decodes a header's major version.
func HardForkFromVersion(version uint8) (models.HardFork, error) {
	hf := models.HardFork(version)
	if !hf.Valid() {
		return 0, Reject("hard fork version", fmt.Errorf("%w: %d", ErrUnknownHardFork, version))
	}
	return hf, nil
}

// HardForkFromVote decodes a header's minor version as a vote. Zero counts as
// a vote for the first ruleset and votes past the newest known ruleset are
// capped to it.
func HardForkFromVote(vote uint8) models.HardFork {
	switch {
	case vote == 0:
		return models.HardForkV1
	case models.HardFork(vote) > models.LatestHardFork:
		return models.LatestHardFork
	default:
		return models.HardFork(vote)
	}
}
