package output

import (
	"context"

	"github.com/manifest-network/chainguard/internal/models"
)

type OutputHandler interface {
	// WriteBlockPOWInfo writes the pow info of the block at height.
	WriteBlockPOWInfo(ctx context.Context, height uint64, info models.BlockPOWInfo) error

	// Close flushes and closes the output.
	Close() error
}
