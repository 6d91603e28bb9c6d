package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/relay"
)

var (
	pullDecap  bool
	pullLinger time.Duration
)

var pullCmd = &cobra.Command{
	Use:   "pull <file>",
	Short: "Receive one transfer from the guard link and write it to a file",
	Long: `pull waits for a single transfer and writes it to a file ("-" for standard
output). Afterwards it keeps answering retransmissions for --linger so the
sender can finish if the final acknowledgement was lost.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		iface, err := ethernet.OpenInterface(cfg.Interface)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", cfg.Interface, err)
		}
		defer iface.Close()

		receiver := guardl2.NewReceiver(iface, iface.MACAddress(), transportOptions()...)
		data, err := receiver.Receive(cmd.Context())
		if err != nil {
			return fmt.Errorf("transfer failed: %w", err)
		}

		if pullDecap {
			h, body, err := relay.Decapsulate(data, nil)
			if err != nil {
				return fmt.Errorf("relay sub-header: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "relay %s -> %s\n", h.Source, h.Destination)
			data = body
		}

		if args[0] == "-" {
			if _, err := cmd.OutOrStdout().Write(data); err != nil {
				return err
			}
		} else {
			if err := os.WriteFile(args[0], data, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", len(data), args[0])
		}

		linger(cmd.Context(), receiver, pullLinger)
		return nil
	},
}

// linger keeps servicing the link so that late retransmissions of the
// completed transfer are acknowledged.
func linger(ctx context.Context, r *guardl2.Receiver, d time.Duration) {
	if d <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	for ctx.Err() == nil {
		_, err := r.Receive(ctx)
		switch {
		case err == nil:
			logger.Warn("transfer received while lingering was discarded")
		case errors.Is(err, ethernet.ErrClosed):
			logger.Debug("link closed while lingering")
			return
		}
	}
	logger.Debug("linger finished", zap.Duration("linger", d))
}

func init() {
	pullCmd.Flags().BoolVar(&pullDecap, "decap", false, "strip the relay sub-header before writing")
	pullCmd.Flags().DurationVar(&pullLinger, "linger", 3*time.Second, "how long to answer retransmissions after completion")
	rootCmd.AddCommand(pullCmd)
}
