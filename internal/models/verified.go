package models

import "github.com/holiman/uint256"

// VerifiedBlockInformation is produced once per successful verification and
// handed to the commit stage. It must not be modified.
type VerifiedBlockInformation struct {
	Block                *Block
	HardForkVote         HardFork
	Txs                  []*TxVerificationData
	BlockHash            Hash
	PowHash              Hash
	Height               uint64
	GeneratedCoins       uint64
	Weight               uint64
	LongTermWeight       uint64
	CumulativeDifficulty uint256.Int
}

// PrePreparedBlock is a block from a batch that has had its cheap header
// checks and pow hash computed ahead of sequential commit.
type PrePreparedBlock struct {
	Block           *Block
	BlockBlob       []byte
	HardForkVote    HardFork
	HardForkVersion HardFork
	BlockHash       Hash
	PowHash         Hash
	MinerTxWeight   uint64
}

// BlockPOWInfo is the timestamp and cumulative difficulty of a historical block.
type BlockPOWInfo struct {
	Timestamp            uint64
	CumulativeDifficulty uint256.Int
}
