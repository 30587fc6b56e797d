// Package verifier validates candidate main-chain blocks against a snapshot
// of chain state before they are handed to the commit stage.
//
// The Verifier keeps no state between calls, so concurrent verifications are
// independent. Two different blocks that are both valid on the same snapshot
// will both be approved; choosing which one extends the chain is the job of
// the single-writer commit stage.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"time"

	"github.com/manifest-network/chainguard/internal/consensus"
	"github.com/manifest-network/chainguard/internal/metrics"
	"github.com/manifest-network/chainguard/internal/models"
	"github.com/manifest-network/chainguard/internal/offload"
	"github.com/manifest-network/chainguard/internal/service"
)

type (
	// ContextService returns the current chain state snapshot.
	ContextService = service.Service[models.ContextRequest, *models.Snapshot]
	// TxPool resolves transaction hashes. Unknown hashes fail with models.ErrTxNotInPool.
	TxPool = service.Service[models.TxPoolRequest, []*models.TxVerificationData]
	// TxVerifier checks a batch of transactions for inclusion in a block.
	// Invalid transactions are reported with consensus.Reject.
	TxVerifier = service.Service[models.VerifyTxRequest, struct{}]
)

// Request is MainChainRequest or BatchPrepareRequest.
type Request interface {
	isRequest()
}

// MainChainRequest verifies a block that would extend the main chain.
type MainChainRequest struct {
	Block *models.Block
}

// BatchPrepareRequest pre-validates an ordered run of blocks.
type BatchPrepareRequest struct {
	Blocks []*models.Block
}

func (MainChainRequest) isRequest()    {}
func (BatchPrepareRequest) isRequest() {}

// Response holds MainChain for a MainChainRequest and Batch for a BatchPrepareRequest.
type Response struct {
	MainChain *models.VerifiedBlockInformation
	Batch     []models.PrePreparedBlock
}

// Verifier checks candidate blocks against the current chain state.
type Verifier struct {
	contextSvc ContextService
	txPool     TxPool
	txVerifier TxVerifier
	rules      consensus.BlockRules
	hasher     consensus.PowHasher

	pool    *offload.Pool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithOffloadPool sets the pool pow hashes are computed on.
func WithOffloadPool(pool *offload.Pool) Option {
	return func(v *Verifier) { v.pool = pool }
}

// WithMetrics records verification outcomes and pow hash latency on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(v *Verifier) { v.metrics = m }
}

// WithLogger replaces slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) { v.logger = logger }
}

// New builds a Verifier. Without WithOffloadPool it hashes on a pool sized to GOMAXPROCS.
func New(contextSvc ContextService, txPool TxPool, txVerifier TxVerifier, rules consensus.BlockRules, hasher consensus.PowHasher, opts ...Option) *Verifier {
	v := &Verifier{
		contextSvc: contextSvc,
		txPool:     txPool,
		txVerifier: txVerifier,
		rules:      rules,
		hasher:     hasher,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.pool == nil {
		v.pool = offload.New(0)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// Call dispatches req. It makes Verifier a service.Service[Request, Response].
func (v *Verifier) Call(ctx context.Context, req Request) (Response, error) {
	switch req := req.(type) {
	case MainChainRequest:
		info, err := v.VerifyMainChain(ctx, req.Block)
		return Response{MainChain: info}, err
	case BatchPrepareRequest:
		batch, err := v.PrepareBatch(ctx, req.Blocks)
		return Response{Batch: batch}, err
	default:
		return Response{}, fmt.Errorf("unsupported verifier request %T", req)
	}
}

// VerifyMainChain runs the full verification pipeline for block. Every step
// stops the pipeline on failure; on error no partial result is returned.
func (v *Verifier) VerifyMainChain(ctx context.Context, block *models.Block) (*models.VerifiedBlockInformation, error) {
	info, err := v.verifyMainChain(ctx, block)
	class := Classify(err)
	v.metrics.BlockVerified(class.String())
	if err != nil {
		v.logger.Debug("Block verification failed", "outcome", class.String(), "error", err)
		return nil, err
	}
	return info, nil
}

func (v *Verifier) verifyMainChain(ctx context.Context, block *models.Block) (*models.VerifiedBlockInformation, error) {
	if block == nil {
		return nil, errors.New("nil block")
	}

	snapshot, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	v.logger.Debug("Got blockchain context",
		"height", snapshot.ChainHeight,
		"hardFork", snapshot.CurrentHardFork,
		"nextDifficulty", snapshot.NextDifficulty.Dec())

	txs, err := v.resolveTxs(ctx, block)
	if err != nil {
		return nil, err
	}

	_, err = v.txVerifier.Call(ctx, models.VerifyTxRequest{
		Txs:                txs,
		CurrentChainHeight: snapshot.ChainHeight,
		TimeForTimeLock:    snapshot.TimeForTimeLock,
		HardFork:           snapshot.CurrentHardFork,
		ReorgToken:         snapshot.ReorgToken,
	})
	if err != nil {
		if consensus.IsRejection(err) {
			return nil, fmt.Errorf("failed to verify transactions: %w", err)
		}
		return nil, upstream("transaction verifier", err)
	}

	weight, totalFees, err := blockTotals(block.MinerTxWeight, txs)
	if err != nil {
		return nil, err
	}

	hfVote, generatedCoins, err := v.rules.CheckBlock(block, totalFees, weight, block.Size(), &snapshot.Rules)
	if err != nil {
		if !consensus.IsRejection(err) {
			err = consensus.Reject("block", err)
		}
		return nil, err
	}

	// pow goes last so that the cheap checks above fail first
	powHash, err := v.powHash(ctx, block.HashingBlob, snapshot.ChainHeight, snapshot.CurrentHardFork)
	if err != nil {
		return nil, err
	}

	if err := consensus.CheckPOW(powHash, &snapshot.NextDifficulty); err != nil {
		return nil, err
	}

	info := &models.VerifiedBlockInformation{
		Block:          block,
		HardForkVote:   hfVote,
		Txs:            txs,
		BlockHash:      block.ID(),
		PowHash:        powHash,
		Height:         snapshot.ChainHeight,
		GeneratedCoins: generatedCoins,
		Weight:         weight,
		LongTermWeight: snapshot.NextBlockLongTermWeight(weight),
	}
	info.CumulativeDifficulty.Add(&snapshot.CumulativeDifficulty, &snapshot.NextDifficulty)

	v.logger.Debug("Block verified",
		"height", info.Height,
		"hash", info.BlockHash.String(),
		"weight", info.Weight,
		"cumulativeDifficulty", info.CumulativeDifficulty.Dec())
	return info, nil
}

// blockTotals sums the block weight and the fees paid by txs.
func blockTotals(minerTxWeight uint64, txs []*models.TxVerificationData) (weight, fees uint64, err error) {
	weight = minerTxWeight
	for _, tx := range txs {
		var carry uint64
		if weight, carry = bits.Add64(weight, tx.Weight, 0); carry != 0 {
			return 0, 0, consensus.Reject("weight", fmt.Errorf("%w: tx %s", consensus.ErrOverflow, tx.Hash))
		}
		if fees, carry = bits.Add64(fees, tx.Fee, 0); carry != 0 {
			return 0, 0, consensus.Reject("fee", fmt.Errorf("%w: tx %s", consensus.ErrOverflow, tx.Hash))
		}
	}
	return weight, fees, nil
}

func (v *Verifier) snapshot(ctx context.Context) (*models.Snapshot, error) {
	snapshot, err := v.contextSvc.Call(ctx, models.ContextRequest{})
	if err != nil {
		return nil, upstream("context", err)
	}
	if snapshot == nil {
		return nil, upstream("context", errors.New("no snapshot returned"))
	}
	return snapshot, nil
}

func (v *Verifier) resolveTxs(ctx context.Context, block *models.Block) ([]*models.TxVerificationData, error) {
	if len(block.TxHashes) == 0 {
		return nil, nil
	}

	txs, err := v.txPool.Call(ctx, models.TxPoolRequest{Hashes: block.TxHashes})
	if err != nil {
		if errors.Is(err, models.ErrTxNotInPool) {
			return nil, fmt.Errorf("failed to resolve block transactions: %w", err)
		}
		return nil, upstream("transaction pool", err)
	}
	if len(txs) != len(block.TxHashes) {
		return nil, fmt.Errorf("%w: pool resolved %d of %d transactions", models.ErrTxNotInPool, len(txs), len(block.TxHashes))
	}
	for i, tx := range txs {
		if tx == nil {
			return nil, fmt.Errorf("%w: %s", models.ErrTxNotInPool, block.TxHashes[i])
		}
	}
	return txs, nil
}

func (v *Verifier) powHash(ctx context.Context, hashingBlob []byte, height uint64, hf models.HardFork) (models.Hash, error) {
	start := time.Now()
	powHash, err := offload.Run(ctx, v.pool, func() (models.Hash, error) {
		return v.hasher.PowHash(hashingBlob, height, hf)
	})
	if err != nil {
		if ctx.Err() != nil {
			return models.Hash{}, fmt.Errorf("pow hash aborted: %w", err)
		}
		return models.Hash{}, consensus.Reject("pow hash", err)
	}
	v.metrics.PowHashed(time.Since(start))
	return powHash, nil
}

var _ service.Service[Request, Response] = (*Verifier)(nil)
