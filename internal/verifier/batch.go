package verifier

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/chainguard/internal/consensus"
	"github.com/manifest-network/chainguard/internal/models"
)

// PrepareBatch runs the header checks and pow hashing for an ordered run of
// blocks that will be committed one after another on top of the current
// chain. Pow hashes are computed concurrently on the offload pool. The
// returned slice is in input order; on error nothing is returned.
func (v *Verifier) PrepareBatch(ctx context.Context, blocks []*models.Block) ([]models.PrePreparedBlock, error) {
	if len(blocks) == 0 {
		return nil, nil
	}

	snapshot, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	prepared := make([]models.PrePreparedBlock, len(blocks))
	prevID := snapshot.TopHash
	for i, block := range blocks {
		if block == nil {
			return nil, fmt.Errorf("nil block at batch index %d", i)
		}
		if block.PrevID != prevID {
			return nil, consensus.Reject("previous id", fmt.Errorf("%w: block %d expects %s, have %s",
				consensus.ErrPrevIDMismatch, i, block.PrevID, prevID))
		}

		version, err := consensus.HardForkFromVersion(block.MajorVersion)
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}

		id := block.ID()
		prepared[i] = models.PrePreparedBlock{
			Block:           block,
			BlockBlob:       block.Blob,
			HardForkVote:    consensus.HardForkFromVote(block.MinorVersion),
			HardForkVersion: version,
			BlockHash:       id,
			MinerTxWeight:   block.MinerTxWeight,
		}
		prevID = id
	}

	eg, egCtx := errgroup.WithContext(ctx)
	// more workers than pool slots would only park on the pool
	eg.SetLimit(v.pool.Size())
	for i := range prepared {
		eg.Go(func() error {
			height := snapshot.ChainHeight + uint64(i)
			powHash, err := v.powHash(egCtx, prepared[i].Block.HashingBlob, height, prepared[i].HardForkVersion)
			if err != nil {
				return fmt.Errorf("block %d at height %d: %w", i, height, err)
			}
			prepared[i].PowHash = powHash
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	v.logger.Debug("Prepared block batch", "start", snapshot.ChainHeight, "count", len(prepared))
	return prepared, nil
}
