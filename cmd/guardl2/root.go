package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/config"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/logging"
)

var (
	// Global flags
	cfgFile   string
	ifaceName string
	peerMAC   string
	logLevel  string
	logFormat string

	// Shared state set during PersistentPreRun
	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd is the base command for guardl2.
var rootCmd = &cobra.Command{
	Use:   "guardl2",
	Short: "Reliable payload relay over raw Ethernet frames",
	Long: `guardl2 moves payloads between the two halves of a data-loss-prevention
gateway over a dedicated Ethernet segment, using EtherType 0x88B5 frames
with acknowledgements, retransmission and congestion control instead of IP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path := cfgFile
		if path == "" {
			path = config.DefaultPath()
		}
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with flags
		if ifaceName != "" {
			cfg.Interface = ifaceName
		}
		if peerMAC != "" {
			cfg.PeerMAC = peerMAC
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFormat != "" {
			cfg.Log.Format = logFormat
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		logger, err = logging.New(cfg.Log.Level, cfg.Log.Format)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logger.Sync()
		}
	},
}

// Execute runs the root command, cancelling it on SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

// RootCmd returns the root cobra.Command for testing purposes.
func RootCmd() *cobra.Command {
	return rootCmd
}

// transportOptions builds the guardl2 options shared by every command.
func transportOptions() []guardl2.Option {
	return []guardl2.Option{
		guardl2.WithConfig(cfg.TransportConfig()),
		guardl2.WithLogger(logger),
		guardl2.WithLossObserver(func(ev guardl2.LossEvent) {
			logger.Debug("loss response",
				zap.Uint32("session", ev.SessionID),
				zap.Int("segments", len(ev.Seqs)),
				zap.Duration("rto", ev.RTO),
				zap.Float64("cwnd", ev.After.Cwnd),
				zap.Uint32("ssthresh", ev.After.Ssthresh))
		}),
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.guardl2/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&ifaceName, "interface", "i", "", "network interface carrying the guard link")
	rootCmd.PersistentFlags().StringVar(&peerMAC, "peer", "", "hardware address of the peer gateway")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (default \"info\")")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console, json (default \"console\")")
}
