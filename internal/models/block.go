package models

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"
)

// Block is a candidate block. Decoding the wire format happens before a block
// reaches this module; the parsed fields and both byte forms are supplied by the caller.
// A Block must not be modified while it is being verified.
type Block struct {
	MajorVersion uint8
	MinorVersion uint8
	Timestamp    uint64
	PrevID       Hash
	Nonce        uint32

	// MinerTxWeight is the weight of the coinbase transaction.
	MinerTxWeight uint64
	// TxHashes lists the non-coinbase transactions in block order.
	TxHashes []Hash

	// Blob is the full serialized block.
	Blob []byte
	// HashingBlob is the pre-image used for the block id and the pow hash.
	HashingBlob []byte
}

// ID returns the block id: Keccak-256 over the varint encoded length of the
// hashing blob followed by the hashing blob itself.
func (b *Block) ID() Hash {
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(b.HashingBlob)))

	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(prefix[:n])
	hasher.Write(b.HashingBlob)

	var id Hash
	copy(id[:], hasher.Sum(nil))
	return id
}

// Size is the serialized size in bytes.
func (b *Block) Size() uint64 {
	return uint64(len(b.Blob))
}

// BlockHeader is the header of a historical block as reported by a node.
type BlockHeader struct {
	MajorVersion uint8
	MinorVersion uint8
	Timestamp    uint64
	PrevID       Hash
	Nonce        uint32
	Hash         Hash
	Height       uint64
}
