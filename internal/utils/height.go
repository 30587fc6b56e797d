package utils

import (
	"context"

	"github.com/pkg/errors"

	"github.com/manifest-network/chainguard/internal/rpc"
)

// GetChainHeightWithRetry gets the node's chain height, replacing the
// connection if it fails at the transport level.
func GetChainHeightWithRetry(ctx context.Context, r *Reconnector) (uint64, error) {
	var height uint64
	err := r.Do(ctx, func(ctx context.Context, adapter *rpc.Adapter) error {
		h, err := adapter.ChainHeight(ctx)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	if err != nil {
		return 0, errors.WithMessage(err, "error getting chain height")
	}
	return height, nil
}

// GetTopBlockHeight returns the height of the newest block. The chain height
// counts blocks, so the top block sits one below it.
func GetTopBlockHeight(ctx context.Context, r *Reconnector) (uint64, error) {
	height, err := GetChainHeightWithRetry(ctx, r)
	if err != nil {
		return 0, err
	}
	if height == 0 {
		return 0, errors.New("node reports an empty chain")
	}
	return height - 1, nil
}
