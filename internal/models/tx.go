package models

import "errors"

// ErrTxNotInPool is returned by a transaction pool that cannot resolve a hash.
var ErrTxNotInPool = errors.New("transaction not in pool")

// TxVerificationData is a parsed transaction ready for verification.
// Values are shared by pointer between the pool and verified blocks and must
// be treated as read-only.
type TxVerificationData struct {
	Hash   Hash
	Blob   []byte
	Weight uint64
	Fee    uint64
	// Tx is the decoded transaction, opaque to this module.
	Tx any
}

// TxPoolRequest asks the pool to resolve transactions by hash.
type TxPoolRequest struct {
	Hashes []Hash
}

// VerifyTxRequest asks the transaction verifier to check a block's transactions.
type VerifyTxRequest struct {
	Txs                []*TxVerificationData
	CurrentChainHeight uint64
	TimeForTimeLock    uint64
	HardFork           HardFork
	ReorgToken         *ReorgToken
}
