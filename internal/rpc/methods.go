package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"

	"github.com/manifest-network/chainguard/internal/models"
)

const statusOK = "OK"

func getChainHeight(ctx context.Context, conn Conn) (Response, error) {
	var res struct {
		Height json.Number `json:"height"`
		Status string      `json:"status"`
	}
	if err := conn.Call(ctx, "/get_height", nil, &res); err != nil {
		return nil, transport(err)
	}
	if res.Status != "" && res.Status != statusOK {
		return nil, transport(fmt.Errorf("get_height status %q", res.Status))
	}

	if res.Height == "" {
		return nil, transport(errors.New("get_height reply has no height"))
	}
	height, err := strconv.ParseUint(res.Height.String(), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrHeightOutOfRange, res.Height.String())
	}
	return ChainHeightResponse{Height: height}, nil
}

type blockHeaderJSON struct {
	MajorVersion uint8       `json:"major_version"`
	MinorVersion uint8       `json:"minor_version"`
	Timestamp    uint64      `json:"timestamp"`
	PrevHash     models.Hash `json:"prev_hash"`
	Nonce        uint32      `json:"nonce"`
	Hash         models.Hash `json:"hash"`
	Height       uint64      `json:"height"`
}

func getBlockHeader(ctx context.Context, conn Conn, id BlockID) (Response, error) {
	var res struct {
		BlockHeader blockHeaderJSON `json:"block_header"`
	}
	if err := conn.JSONRPC(ctx, "get_block", id.params(), &res); err != nil {
		return nil, transport(err)
	}

	h := res.BlockHeader
	return BlockHeaderResponse{Header: models.BlockHeader{
		MajorVersion: h.MajorVersion,
		MinorVersion: h.MinorVersion,
		Timestamp:    h.Timestamp,
		PrevID:       h.PrevHash,
		Nonce:        h.Nonce,
		Hash:         h.Hash,
		Height:       h.Height,
	}}, nil
}

func getBlockPOWInfo(ctx context.Context, conn Conn, id BlockID) (Response, error) {
	var res struct {
		BlockHeader struct {
			CumulativeDifficulty      uint64 `json:"cumulative_difficulty"`
			CumulativeDifficultyTop64 uint64 `json:"cumulative_difficulty_top64"`
			Timestamp                 uint64 `json:"timestamp"`
		} `json:"block_header"`
	}

	method := "get_block_header_by_height"
	if _, ok := id.Hash(); ok {
		method = "get_block_header_by_hash"
	}
	if err := conn.JSONRPC(ctx, method, id.params(), &res); err != nil {
		return nil, transport(err)
	}

	h := res.BlockHeader
	return BlockPOWInfoResponse{Info: models.BlockPOWInfo{
		Timestamp:            h.Timestamp,
		CumulativeDifficulty: difficultyFromHalves(h.CumulativeDifficulty, h.CumulativeDifficultyTop64),
	}}, nil
}

// difficultyFromHalves rebuilds (high << 64) | low.
func difficultyFromHalves(low, high uint64) uint256.Int {
	return uint256.Int{low, high, 0, 0}
}
