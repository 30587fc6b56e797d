// Package scanner pulls pow info for ranges of blocks from a node. Every
// worker uses its own adapter clone, so requests queue on the single node
// connection instead of racing on it.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/chainguard/internal/config"
	"github.com/manifest-network/chainguard/internal/output"
	"github.com/manifest-network/chainguard/internal/rpc"
	"github.com/manifest-network/chainguard/internal/utils"
)

// ScanRange writes the pow info of every block in [start, stop] to outputHandler.
func ScanRange(ctx context.Context, r *utils.Reconnector, start, stop uint64, outputHandler output.OutputHandler, cfg config.ScanConfig) error {
	if stop < start {
		return fmt.Errorf("invalid range [%d, %d]", start, stop)
	}

	displayProgress := cfg.Progress && start != stop
	if start != stop {
		slog.Info("Scanning blocks", "range", fmt.Sprintf("[%d, %d]", start, stop))
	} else {
		slog.Info("Scanning block", "height", start)
	}

	var bar *progressbar.ProgressBar
	if displayProgress {
		bar = progressbar.NewOptions64(
			int64(stop-start+1),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("Scanning blocks..."),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
		)
		if err := bar.RenderBlank(); err != nil {
			return fmt.Errorf("failed to render progress bar: %w", err)
		}
	}

	if err := scanBlocks(ctx, r, start, stop, outputHandler, cfg, bar); err != nil {
		return fmt.Errorf("failed to scan blocks: %w", err)
	}

	if bar != nil {
		if err := bar.Finish(); err != nil {
			return fmt.Errorf("failed to finish progress bar: %w", err)
		}
	}
	return nil
}

// scanBlocks fans the range out over at most cfg.MaxConcurrency goroutines.
func scanBlocks(ctx context.Context, r *utils.Reconnector, start, stop uint64, outputHandler output.OutputHandler, cfg config.ScanConfig, bar *progressbar.ProgressBar) error {
	eg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, max(cfg.MaxConcurrency, 1))

	for height := start; height <= stop; height++ {
		select {
		case <-ctx.Done():
			slog.Info("Scan cancelled", "height", height)
			// surface the worker error that cancelled the group, if any
			if err := eg.Wait(); err != nil {
				return err
			}
			return ctx.Err()
		case sem <- struct{}{}:
		}

		eg.Go(func() error {
			defer func() { <-sem }()

			if err := scanBlock(ctx, r, height, outputHandler); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Error("Block scan error", "height", height, "error", err)
				}
				return fmt.Errorf("failed to scan block %d: %w", height, err)
			}

			if bar != nil {
				if err := bar.Add(1); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}
			return nil
		})

		if height == stop {
			break
		}
	}

	return eg.Wait()
}

func scanBlock(ctx context.Context, r *utils.Reconnector, height uint64, outputHandler output.OutputHandler) error {
	return r.Do(ctx, func(ctx context.Context, adapter *rpc.Adapter) error {
		info, err := adapter.BlockPOWInfo(ctx, rpc.ByHeight(height))
		if err != nil {
			return err
		}
		return outputHandler.WriteBlockPOWInfo(ctx, height, info)
	})
}
