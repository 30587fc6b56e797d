package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/manifest-network/chainguard/internal/config"
	"github.com/manifest-network/chainguard/internal/output"
	"github.com/manifest-network/chainguard/internal/utils"
)

// ScanLive scans from start to the chain tip and then follows the tip,
// polling every cfg.BlockTime until ctx ends.
func ScanLive(ctx context.Context, r *utils.Reconnector, start uint64, outputHandler output.OutputHandler, cfg config.ScanConfig) error {
	next := start
	ticker := time.NewTicker(cfg.BlockTime)
	defer ticker.Stop()

	for {
		top, err := utils.GetTopBlockHeight(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to get top block height: %w", err)
		}

		if top >= next {
			if err := ScanRange(ctx, r, next, top, outputHandler, cfg); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			next = top + 1
		} else {
			slog.Debug("No new blocks", "top", top)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
