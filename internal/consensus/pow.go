package consensus

import (
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/manifest-network/chainguard/internal/models"
)

// CheckPOW checks powHash against difficulty. The hash is read as a
// little-endian 256 bit integer and passes when hash*difficulty fits in 256 bits.
func CheckPOW(powHash models.Hash, difficulty *uint256.Int) error {
	if difficulty.IsZero() {
		return Reject("pow", ErrZeroDifficulty)
	}

	var be [models.HashSize]byte
	for i := range powHash {
		be[models.HashSize-1-i] = powHash[i]
	}
	value := new(uint256.Int).SetBytes32(be[:])

	if _, overflow := new(uint256.Int).MulOverflow(value, difficulty); overflow {
		return Reject("pow", ErrInsufficientPOW)
	}
	return nil
}

// PowHasher computes the proof-of-work hash of a hashing blob.
// Implementations are CPU-bound and are run on the offload pool.
type PowHasher interface {
	PowHash(hashingBlob []byte, height uint64, hf models.HardFork) (models.Hash, error)
}

// PowHasherFunc adapts a function to PowHasher.
type PowHasherFunc func(hashingBlob []byte, height uint64, hf models.HardFork) (models.Hash, error)

func (f PowHasherFunc) PowHash(hashingBlob []byte, height uint64, hf models.HardFork) (models.Hash, error) {
	return f(hashingBlob, height, hf)
}

// KeccakHasher is a fast PowHasher for private test networks. It is not the
// mainnet algorithm.
type KeccakHasher struct{}

func (KeccakHasher) PowHash(hashingBlob []byte, _ uint64, _ models.HardFork) (models.Hash, error) {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(hashingBlob)

	var h models.Hash
	copy(h[:], hasher.Sum(nil))
	return h, nil
}
