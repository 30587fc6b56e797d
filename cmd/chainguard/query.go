package chainguard

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/manifest-network/chainguard/internal/models"
	"github.com/manifest-network/chainguard/internal/output"
	"github.com/manifest-network/chainguard/internal/rpc"
	"github.com/manifest-network/chainguard/internal/service"
	"github.com/manifest-network/chainguard/internal/utils"
)

var heightCmd = &cobra.Command{
	Use:   "height",
	Short: "Print the node's chain height",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := newReconnector()
		if err != nil {
			return err
		}
		height, err := utils.GetChainHeightWithRetry(cmd.Context(), r)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), height)
		return nil
	},
}

var headerCmd = &cobra.Command{
	Use:   "header <hash|height>...",
	Short: "Print block headers as JSON lines",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lookupEach(cmd, args, func(ctx context.Context, svc lookupService, id rpc.BlockID, out *output.JSONLinesHandler) error {
			header, err := fetchHeader(ctx, svc, id)
			if err != nil {
				return err
			}
			return out.WriteBlockHeader(ctx, header)
		})
	},
}

var powInfoCmd = &cobra.Command{
	Use:   "powinfo <hash|height>...",
	Short: "Print block timestamps and cumulative difficulties as JSON lines",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return lookupEach(cmd, args, func(ctx context.Context, svc lookupService, id rpc.BlockID, out *output.JSONLinesHandler) error {
			height, ok := id.Height()
			if !ok {
				header, err := fetchHeader(ctx, svc, id)
				if err != nil {
					return err
				}
				height = header.Height
			}
			resp, err := svc.Call(ctx, rpc.BlockPOWInfoRequest{ID: id})
			if err != nil {
				return err
			}
			info, ok := resp.(rpc.BlockPOWInfoResponse)
			if !ok {
				return fmt.Errorf("unexpected rpc response %T", resp)
			}
			return out.WriteBlockPOWInfo(ctx, height, info.Info)
		})
	},
}

type lookupService = service.Service[rpc.Request, rpc.Response]

func fetchHeader(ctx context.Context, svc lookupService, id rpc.BlockID) (models.BlockHeader, error) {
	resp, err := svc.Call(ctx, rpc.BlockHeaderRequest{ID: id})
	if err != nil {
		return models.BlockHeader{}, err
	}
	header, ok := resp.(rpc.BlockHeaderResponse)
	if !ok {
		return models.BlockHeader{}, fmt.Errorf("unexpected rpc response %T", resp)
	}
	return header.Header, nil
}

// ParseBlockID reads a 64 character hex string as a block hash and anything
// else as a height.
func ParseBlockID(s string) (rpc.BlockID, error) {
	s = strings.TrimSpace(s)
	if len(s) == 2*models.HashSize {
		hash, err := models.HashFromHex(s)
		if err != nil {
			return rpc.BlockID{}, err
		}
		return rpc.ByHash(hash), nil
	}
	height, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return rpc.BlockID{}, fmt.Errorf("invalid block id %q: expected a height or a 64 character hash", s)
	}
	return rpc.ByHeight(height), nil
}

func lookupEach(cmd *cobra.Command, args []string, lookup func(ctx context.Context, svc lookupService, id rpc.BlockID, out *output.JSONLinesHandler) error) error {
	ids := make([]rpc.BlockID, 0, len(args))
	for _, arg := range args {
		id, err := ParseBlockID(arg)
		if err != nil {
			return err
		}
		ids = append(ids, id)
	}

	r, err := newReconnector()
	if err != nil {
		return err
	}
	lookups := &cachedLookups{size: cfg.RPC.CacheSize}
	out := output.NewJSONLinesHandler(cmd.OutOrStdout())

	for _, id := range ids {
		err := r.Do(cmd.Context(), func(ctx context.Context, adapter *rpc.Adapter) error {
			svc, err := lookups.service(adapter)
			if err != nil {
				return err
			}
			return lookup(ctx, svc, id, out)
		})
		if err != nil {
			return fmt.Errorf("failed to look up block %s: %w", id, err)
		}
	}
	return nil
}

// cachedLookups keeps one by-hash cache per adapter. A replaced adapter
// starts with an empty cache.
type cachedLookups struct {
	size    int
	adapter *rpc.Adapter
	svc     lookupService
}

func (c *cachedLookups) service(adapter *rpc.Adapter) (lookupService, error) {
	if c.adapter == adapter && c.svc != nil {
		return c.svc, nil
	}
	c.adapter = adapter
	if c.size <= 0 {
		c.svc = adapter.Service()
		return c.svc, nil
	}
	cached, err := rpc.NewCached(adapter, c.size)
	if err != nil {
		return nil, err
	}
	c.svc = cached
	return c.svc, nil
}
