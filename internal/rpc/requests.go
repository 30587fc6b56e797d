package rpc

import (
	"fmt"

	"github.com/manifest-network/chainguard/internal/models"
)

// BlockID identifies a block by hash or by height.
type BlockID struct {
	hash   models.Hash
	height uint64
	byHash bool
}

func ByHash(hash models.Hash) BlockID {
	return BlockID{hash: hash, byHash: true}
}

func ByHeight(height uint64) BlockID {
	return BlockID{height: height}
}

// Hash returns the hash and true when the id is hash based.
func (id BlockID) Hash() (models.Hash, bool) {
	return id.hash, id.byHash
}

// Height returns the height and true when the id is height based.
func (id BlockID) Height() (uint64, bool) {
	return id.height, !id.byHash
}

func (id BlockID) String() string {
	if id.byHash {
		return "hash " + id.hash.String()
	}
	return fmt.Sprintf("height %d", id.height)
}

func (id BlockID) params() map[string]any {
	if id.byHash {
		return map[string]any{"hash": id.hash}
	}
	return map[string]any{"height": id.height}
}

// Request is one of ChainHeightRequest, BlockHeaderRequest or BlockPOWInfoRequest.
type Request interface {
	isRequest()
}

type ChainHeightRequest struct{}

type BlockHeaderRequest struct {
	ID BlockID
}

type BlockPOWInfoRequest struct {
	ID BlockID
}

func (ChainHeightRequest) isRequest()  {}
func (BlockHeaderRequest) isRequest()  {}
func (BlockPOWInfoRequest) isRequest() {}

// Response is the reply matching the Request type.
type Response interface {
	isResponse()
}

type ChainHeightResponse struct {
	Height uint64
}

type BlockHeaderResponse struct {
	Header models.BlockHeader
}

type BlockPOWInfoResponse struct {
	Info models.BlockPOWInfo
}

func (ChainHeightResponse) isResponse()  {}
func (BlockHeaderResponse) isResponse()  {}
func (BlockPOWInfoResponse) isResponse() {}
