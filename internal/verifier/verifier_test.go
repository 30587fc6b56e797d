package verifier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/chainguard/internal/consensus"
	"github.com/manifest-network/chainguard/internal/metrics"
	"github.com/manifest-network/chainguard/internal/models"
	"github.com/manifest-network/chainguard/internal/offload"
	"github.com/manifest-network/chainguard/internal/service"
)

// harness wires fake collaborators and records the order they were used in.
type harness struct {
	mu    sync.Mutex
	steps []string

	snapshot   *models.Snapshot
	contextErr error
	pool       map[models.Hash]*models.TxVerificationData
	poolErr    error
	verifyErr  error
	rulesErr   error
	powHash    *models.Hash

	verifyReq models.VerifyTxRequest
	rulesFees uint64
	rulesWt   uint64
}

func (h *harness) record(step string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.steps = append(h.steps, step)
}

func (h *harness) recorded() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.steps...)
}

func newHarness() *harness {
	return &harness{
		snapshot: &models.Snapshot{
			ChainHeight:          100,
			CurrentHardFork:      models.HardForkV16,
			NextDifficulty:       *uint256.NewInt(500),
			CumulativeDifficulty: *uint256.NewInt(10000),
			TimeForTimeLock:      1_700_000_000,
			LongTermWeight:       func(w uint64) uint64 { return w / 2 },
			ReorgToken:           models.NewReorgToken(),
		},
		pool: map[models.Hash]*models.TxVerificationData{},
	}
}

func (h *harness) addTx(id byte, weight, fee uint64) models.Hash {
	hash := models.Hash{id}
	h.pool[hash] = &models.TxVerificationData{Hash: hash, Weight: weight, Fee: fee}
	return hash
}

func (h *harness) verifier(opts ...Option) *Verifier {
	contextSvc := service.Func[models.ContextRequest, *models.Snapshot](func(ctx context.Context, _ models.ContextRequest) (*models.Snapshot, error) {
		h.record("context")
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return h.snapshot, h.contextErr
	})

	txPool := service.Func[models.TxPoolRequest, []*models.TxVerificationData](func(_ context.Context, req models.TxPoolRequest) ([]*models.TxVerificationData, error) {
		h.record("pool")
		if h.poolErr != nil {
			return nil, h.poolErr
		}
		txs := make([]*models.TxVerificationData, 0, len(req.Hashes))
		for _, hash := range req.Hashes {
			tx, ok := h.pool[hash]
			if !ok {
				return nil, fmt.Errorf("%w: %s", models.ErrTxNotInPool, hash)
			}
			txs = append(txs, tx)
		}
		return txs, nil
	})

	txVerifier := service.Func[models.VerifyTxRequest, struct{}](func(_ context.Context, req models.VerifyTxRequest) (struct{}, error) {
		h.record("verify")
		h.mu.Lock()
		h.verifyReq = req
		h.mu.Unlock()
		return struct{}{}, h.verifyErr
	})

	rules := consensus.BlockRulesFunc(func(_ *models.Block, totalFees, weight, _ uint64, _ *models.BlockRuleContext) (models.HardFork, uint64, error) {
		h.record("rules")
		h.mu.Lock()
		h.rulesFees, h.rulesWt = totalFees, weight
		h.mu.Unlock()
		return models.HardForkV16, 600_000_000_000, h.rulesErr
	})

	hasher := consensus.PowHasherFunc(func(blob []byte, height uint64, hf models.HardFork) (models.Hash, error) {
		h.record("pow")
		if h.powHash != nil {
			return *h.powHash, nil
		}
		return consensus.KeccakHasher{}.PowHash(blob, height, hf)
	})

	return New(contextSvc, txPool, txVerifier, rules, hasher, opts...)
}

func testBlock(prev models.Hash, nonce uint32, txs ...models.Hash) *models.Block {
	hashingBlob := []byte(fmt.Sprintf("header-%s-%d", prev, nonce))
	return &models.Block{
		MajorVersion:  16,
		MinorVersion:  16,
		PrevID:        prev,
		Nonce:         nonce,
		MinerTxWeight: 600,
		TxHashes:      txs,
		Blob:          append(append([]byte{}, hashingBlob...), "-body"...),
		HashingBlob:   hashingBlob,
	}
}

func TestVerifyMainChain(t *testing.T) {
	h := newHarness()
	// difficulty 1 accepts every hash
	h.snapshot.NextDifficulty = *uint256.NewInt(1)
	h.snapshot.CumulativeDifficulty = *uint256.NewInt(10000)
	tx1 := h.addTx(1, 300, 10)
	tx2 := h.addTx(2, 300, 10)
	block := testBlock(models.Hash{}, 7, tx1, tx2)

	info, err := h.verifier().VerifyMainChain(context.Background(), block)
	require.NoError(t, err)

	assert.Equal(t, []string{"context", "pool", "verify", "rules", "pow"}, h.recorded())
	assert.Equal(t, uint64(1200), info.Weight)
	assert.Equal(t, uint64(1200), h.rulesWt)
	assert.Equal(t, uint64(20), h.rulesFees)
	assert.Equal(t, uint64(600), info.LongTermWeight)
	assert.Equal(t, uint64(100), info.Height)
	assert.Equal(t, models.HardForkV16, info.HardForkVote)
	assert.Equal(t, uint64(600_000_000_000), info.GeneratedCoins)
	assert.Equal(t, block.ID(), info.BlockHash)
	assert.Same(t, block, info.Block)
	assert.Equal(t, "10001", info.CumulativeDifficulty.Dec())

	require.Len(t, info.Txs, 2)
	assert.Same(t, h.pool[tx1], info.Txs[0])
	assert.Same(t, h.pool[tx2], info.Txs[1])

	wantPow, err := consensus.KeccakHasher{}.PowHash(block.HashingBlob, 100, models.HardForkV16)
	require.NoError(t, err)
	assert.Equal(t, wantPow, info.PowHash)

	assert.Equal(t, uint64(100), h.verifyReq.CurrentChainHeight)
	assert.Equal(t, uint64(1_700_000_000), h.verifyReq.TimeForTimeLock)
	assert.Equal(t, models.HardForkV16, h.verifyReq.HardFork)
	assert.Same(t, h.snapshot.ReorgToken, h.verifyReq.ReorgToken)
}

func TestVerifyMainChainCumulativeDifficulty(t *testing.T) {
	h := newHarness()
	// the all-zero hash meets any non-zero difficulty
	h.powHash = &models.Hash{}
	tx1 := h.addTx(1, 300, 10)
	tx2 := h.addTx(2, 300, 10)

	info, err := h.verifier().VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1, tx1, tx2))
	require.NoError(t, err)

	assert.Equal(t, uint64(1200), info.Weight)
	assert.Equal(t, uint64(20), h.rulesFees)
	assert.Equal(t, uint64(10500), info.CumulativeDifficulty.Uint64())
}

func TestVerifyMainChainNoTransactions(t *testing.T) {
	h := newHarness()
	h.powHash = &models.Hash{}

	info, err := h.verifier().VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1))
	require.NoError(t, err)

	assert.Equal(t, uint64(600), info.Weight)
	assert.Empty(t, info.Txs)
	assert.Equal(t, []string{"context", "verify", "rules", "pow"}, h.recorded())
}

func TestVerifyMainChainMissingTransaction(t *testing.T) {
	h := newHarness()
	tx1 := h.addTx(1, 300, 10)
	unknown := models.Hash{0xEE}

	info, err := h.verifier().VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1, tx1, unknown))

	assert.Nil(t, info)
	assert.ErrorIs(t, err, models.ErrTxNotInPool)
	assert.Equal(t, ClassMissingData, Classify(err))
	assert.Equal(t, []string{"context", "pool"}, h.recorded())
}

func TestVerifyMainChainTotalsOverflow(t *testing.T) {
	tests := []struct {
		name     string
		weight   uint64
		fee      uint64
		wantRule string
	}{
		{name: "weight", weight: math.MaxUint64 - 100, fee: 10, wantRule: "weight"},
		{name: "fee", weight: 300, fee: math.MaxUint64, wantRule: "fee"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			tx1 := h.addTx(1, 300, 10)
			tx2 := h.addTx(2, tt.weight, tt.fee)

			info, err := h.verifier().VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1, tx1, tx2))

			assert.Nil(t, info)
			assert.ErrorIs(t, err, consensus.ErrRejected)
			assert.ErrorIs(t, err, consensus.ErrOverflow)
			var ruleErr *consensus.RuleError
			require.ErrorAs(t, err, &ruleErr)
			assert.Equal(t, tt.wantRule, ruleErr.Rule)
			assert.Equal(t, []string{"context", "pool", "verify"}, h.recorded())
		})
	}
}

func TestVerifyMainChainShortPoolResponse(t *testing.T) {
	h := newHarness()
	tx1 := h.addTx(1, 300, 10)
	v := h.verifier()
	v.txPool = service.Func[models.TxPoolRequest, []*models.TxVerificationData](func(context.Context, models.TxPoolRequest) ([]*models.TxVerificationData, error) {
		return []*models.TxVerificationData{h.pool[tx1]}, nil
	})

	info, err := v.VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1, tx1, models.Hash{9}))

	assert.Nil(t, info)
	assert.ErrorIs(t, err, models.ErrTxNotInPool)
}

func TestVerifyMainChainPowCheckedLast(t *testing.T) {
	h := newHarness()
	// all ones is the largest possible hash and fails any difficulty above 1
	var worst models.Hash
	for i := range worst {
		worst[i] = 0xFF
	}
	h.powHash = &worst
	tx1 := h.addTx(1, 300, 10)

	info, err := h.verifier().VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1, tx1))

	assert.Nil(t, info)
	assert.ErrorIs(t, err, consensus.ErrInsufficientPOW)
	assert.Equal(t, ClassRejected, Classify(err))
	assert.Equal(t, []string{"context", "pool", "verify", "rules", "pow"}, h.recorded())
}

func TestVerifyMainChainRuleFailureSkipsPow(t *testing.T) {
	h := newHarness()
	h.rulesErr = errors.New("block too big")
	tx1 := h.addTx(1, 300, 10)

	_, err := h.verifier().VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1, tx1))

	assert.ErrorIs(t, err, consensus.ErrRejected)
	assert.ErrorContains(t, err, "block too big")
	assert.NotContains(t, h.recorded(), "pow")
}

func TestVerifyMainChainErrorClasses(t *testing.T) {
	cases := []struct {
		name      string
		setup     func(h *harness)
		wantClass Class
		wantSteps []string
	}{
		{
			name:      "context failure",
			setup:     func(h *harness) { h.contextErr = errors.New("db closed") },
			wantClass: ClassUpstream,
			wantSteps: []string{"context"},
		},
		{
			name:      "nil snapshot",
			setup:     func(h *harness) { h.snapshot = nil },
			wantClass: ClassUpstream,
			wantSteps: []string{"context"},
		},
		{
			name:      "pool failure",
			setup:     func(h *harness) { h.poolErr = errors.New("pool shut down") },
			wantClass: ClassUpstream,
			wantSteps: []string{"context", "pool"},
		},
		{
			name:      "verifier failure",
			setup:     func(h *harness) { h.verifyErr = errors.New("verifier overloaded") },
			wantClass: ClassUpstream,
			wantSteps: []string{"context", "pool", "verify"},
		},
		{
			name: "transaction rejected",
			setup: func(h *harness) {
				h.verifyErr = consensus.Reject("ring signature", errors.New("bad signature"))
			},
			wantClass: ClassRejected,
			wantSteps: []string{"context", "pool", "verify"},
		},
		{
			name:      "rule rejection",
			setup:     func(h *harness) { h.rulesErr = consensus.Reject("coinbase", errors.New("too much emission")) },
			wantClass: ClassRejected,
			wantSteps: []string{"context", "pool", "verify", "rules"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			tc.setup(h)
			tx1 := h.addTx(1, 300, 10)

			info, err := h.verifier().VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1, tx1))

			require.Error(t, err)
			assert.Nil(t, info)
			assert.Equal(t, tc.wantClass, Classify(err))
			assert.Equal(t, tc.wantSteps, h.recorded())
		})
	}
}

func TestUpstreamErrorNamesService(t *testing.T) {
	h := newHarness()
	h.poolErr = errors.New("pool shut down")
	tx1 := h.addTx(1, 300, 10)

	_, err := h.verifier().VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1, tx1))

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "transaction pool", upErr.Service)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.False(t, consensus.IsRejection(err))
}

func TestVerifyMainChainCancelled(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.verifier().VerifyMainChain(ctx, testBlock(models.Hash{}, 1))

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ClassCancelled, Classify(err))
}

func TestVerifyMainChainPowHasherFailureIsRejection(t *testing.T) {
	h := newHarness()
	v := h.verifier()
	v.hasher = consensus.PowHasherFunc(func([]byte, uint64, models.HardFork) (models.Hash, error) {
		return models.Hash{}, errors.New("hashing blob too short")
	})

	_, err := v.VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1))

	assert.ErrorIs(t, err, consensus.ErrRejected)
}

// Two different blocks that are valid on the same snapshot are both approved.
// Picking one is left to the commit stage.
func TestConcurrentDivergentBlocksBothVerify(t *testing.T) {
	h := newHarness()
	h.powHash = &models.Hash{}
	v := h.verifier(WithOffloadPool(offload.New(2)))

	blocks := []*models.Block{
		testBlock(models.Hash{0xAA}, 1),
		testBlock(models.Hash{0xAA}, 2),
	}

	var wg sync.WaitGroup
	results := make([]*models.VerifiedBlockInformation, len(blocks))
	errs := make([]error, len(blocks))
	for i, block := range blocks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = v.VerifyMainChain(context.Background(), block)
		}()
	}
	wg.Wait()

	for i := range blocks {
		require.NoError(t, errs[i])
		assert.Equal(t, uint64(100), results[i].Height)
	}
	assert.NotEqual(t, results[0].BlockHash, results[1].BlockHash)
}

func TestVerifierRecordsMetrics(t *testing.T) {
	h := newHarness()
	h.powHash = &models.Hash{}
	reg := prometheus.NewRegistry()
	v := h.verifier(WithMetrics(metrics.New(reg)))

	_, err := v.VerifyMainChain(context.Background(), testBlock(models.Hash{}, 1))
	require.NoError(t, err)
	_, err = v.VerifyMainChain(context.Background(), testBlock(models.Hash{}, 2, models.Hash{0x42}))
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	outcomes := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "chainguard_verifier_blocks_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			outcomes[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, map[string]float64{"verified": 1, "missing_data": 1}, outcomes)
}

func TestCallDispatchesRequests(t *testing.T) {
	h := newHarness()
	h.powHash = &models.Hash{}
	var svc service.Service[Request, Response] = h.verifier()

	resp, err := svc.Call(context.Background(), MainChainRequest{Block: testBlock(models.Hash{}, 1)})
	require.NoError(t, err)
	require.NotNil(t, resp.MainChain)
	assert.Nil(t, resp.Batch)

	resp, err = svc.Call(context.Background(), BatchPrepareRequest{Blocks: []*models.Block{testBlock(models.Hash{}, 1)}})
	require.NoError(t, err)
	assert.Nil(t, resp.MainChain)
	assert.Len(t, resp.Batch, 1)
}

func TestClassString(t *testing.T) {
	assert.Equal(t, "verified", ClassNone.String())
	assert.Equal(t, "rejected", ClassRejected.String())
	assert.Equal(t, "unknown", Classify(errors.New("other")).String())
}
