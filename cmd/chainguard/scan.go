package chainguard

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/chainguard/internal/config"
	"github.com/manifest-network/chainguard/internal/output"
	"github.com/manifest-network/chainguard/internal/scanner"
	"github.com/manifest-network/chainguard/internal/utils"
)

var scanCmd = &cobra.Command{
	Use:   "scan <start> [stop]",
	Short: "Stream block timestamps and cumulative difficulties as JSON lines",
	Long: `Fetch the timestamp and cumulative difficulty of every block from start to
stop (inclusive). Without stop the scan runs up to the current top block. With
--live it keeps following the chain tip once the range is done.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid start height %q: %w", args[0], err)
		}

		r, err := newReconnector()
		if err != nil {
			return err
		}

		var stop uint64
		if len(args) == 2 {
			stop, err = strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid stop height %q: %w", args[1], err)
			}
		} else {
			stop, err = utils.GetTopBlockHeight(cmd.Context(), r)
			if err != nil {
				return err
			}
		}

		out := output.NewJSONLinesHandler(cmd.OutOrStdout())
		defer out.Close()

		slog.Info("Starting scan", "start", start, "stop", stop, "live", cfg.Scan.Live)
		if err := scanner.ScanRange(cmd.Context(), r, start, stop, out, cfg.Scan); err != nil {
			return err
		}
		if !cfg.Scan.Live {
			return nil
		}
		return scanner.ScanLive(cmd.Context(), r, stop+1, out, cfg.Scan)
	},
}

func init() {
	flags := scanCmd.Flags()
	flags.Uint(config.KeyMaxConcurrency, 1, "number of blocks fetched at once")
	flags.Duration(config.KeyBlockTime, 2*time.Minute, "how often to poll for new blocks in live mode")
	flags.Bool(config.KeyLive, false, "keep following the chain tip after the range is done")
	flags.Bool(config.KeyProgress, true, "show a progress bar on stderr")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
}
