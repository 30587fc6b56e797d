package chainguard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/chainguard/internal/config"
	"github.com/manifest-network/chainguard/internal/metrics"
	"github.com/manifest-network/chainguard/internal/rpc"
	"github.com/manifest-network/chainguard/internal/utils"
)

var (
	cfgFile string
	cfg     config.Config
	m       *metrics.Metrics
)

var rootCmd = &cobra.Command{
	Use:          "chainguard",
	Short:        "Query a node's chain data over a single shared connection",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("failed to read config file: %w", err)
			}
		}

		var err error
		cfg, err = config.Load(viper.GetViper())
		if err != nil {
			return err
		}

		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))
		m = newMetrics(cmd.Context(), cfg.PrometheusAddr)
		return nil
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func init() {
	config.SetDefaults(viper.GetViper())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.String(config.KeyNode, "http://127.0.0.1:18081", "node RPC address")
	flags.Duration(config.KeyTimeout, 30*time.Second, "timeout of a single node request")
	flags.Int(config.KeyCacheSize, 1024, "number of by-hash lookups to cache, 0 disables the cache")
	flags.Uint(config.KeyMaxRetries, 3, "times to replace a failed node connection before giving up")
	flags.Duration(config.KeyRetryBackoff, time.Second, "initial backoff between connection attempts")
	flags.String(config.KeyLogLevel, "info", "log level (debug, info, warn, error)")
	flags.String(config.KeyPrometheusAddr, "", "serve prometheus metrics on this address, e.g. :2112")

	if err := viper.BindPFlags(flags); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("CHAINGUARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(heightCmd, headerCmd, powInfoCmd, scanCmd)
}

func newMetrics(ctx context.Context, addr string) *metrics.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mm := metrics.New(reg)
	if addr == "" {
		return mm
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	return mm
}

func dial() (*rpc.Adapter, error) {
	conn, err := rpc.NewHTTPConn(cfg.RPC.Address, cfg.RPC.Timeout)
	if err != nil {
		return nil, err
	}
	return rpc.New(conn, rpc.WithMetrics(m), rpc.WithLogger(slog.Default().With("node", cfg.RPC.Address))), nil
}

func newReconnector() (*utils.Reconnector, error) {
	return utils.NewReconnector(dial, cfg.RPC.MaxRetries, cfg.RPC.RetryBackoff)
}
