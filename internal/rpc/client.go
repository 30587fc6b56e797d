package rpc

import (
	"context"
	"fmt"

	"github.com/manifest-network/chainguard/internal/models"
)

// ChainHeight asks the node for its current height on a fresh clone.
func (a *Adapter) ChainHeight(ctx context.Context) (uint64, error) {
	resp, err := a.Clone().Oneshot(ctx, ChainHeightRequest{})
	if err != nil {
		return 0, err
	}
	r, ok := resp.(ChainHeightResponse)
	if !ok {
		return 0, unexpected(resp)
	}
	return r.Height, nil
}

// BlockHeader fetches the header of the block identified by id on a fresh clone.
func (a *Adapter) BlockHeader(ctx context.Context, id BlockID) (models.BlockHeader, error) {
	resp, err := a.Clone().Oneshot(ctx, BlockHeaderRequest{ID: id})
	if err != nil {
		return models.BlockHeader{}, err
	}
	r, ok := resp.(BlockHeaderResponse)
	if !ok {
		return models.BlockHeader{}, unexpected(resp)
	}
	return r.Header, nil
}

// BlockPOWInfo fetches the timestamp and cumulative difficulty of a block on a fresh clone.
func (a *Adapter) BlockPOWInfo(ctx context.Context, id BlockID) (models.BlockPOWInfo, error) {
	resp, err := a.Clone().Oneshot(ctx, BlockPOWInfoRequest{ID: id})
	if err != nil {
		return models.BlockPOWInfo{}, err
	}
	r, ok := resp.(BlockPOWInfoResponse)
	if !ok {
		return models.BlockPOWInfo{}, unexpected(resp)
	}
	return r.Info, nil
}

func unexpected(resp Response) error {
	return fmt.Errorf("unexpected rpc response %T", resp)
}
