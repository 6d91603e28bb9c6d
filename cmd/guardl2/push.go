package main

import (
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/relay"
)

var (
	pushRelaySrc string
	pushRelayDst string
)

var pushCmd = &cobra.Command{
	Use:   "push <file>",
	Short: "Send one file across the guard link",
	Long: `push sends the contents of a file ("-" for standard input) as a single
transfer. With --relay-src and --relay-dst the payload is wrapped in the
relay sub-header so that a peer in recv mode forwards it over TCP.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peer, err := cfg.Peer()
		if err != nil {
			return err
		}

		payload, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}
		payload, err = encapsulate(payload, pushRelaySrc, pushRelayDst)
		if err != nil {
			return err
		}

		var stats guardl2.TransferStats
		opts := append(transportOptions(), guardl2.WithStatsObserver(func(st guardl2.TransferStats) {
			stats = st
		}))
		if err := guardl2.SendReliable(cmd.Context(), cfg.Interface, common.MACAddress{}, peer, payload, opts...); err != nil {
			return fmt.Errorf("transfer over %s failed: %w", cfg.Interface, err)
		}
		printTransferStats(cmd.OutOrStdout(), stats)
		return nil
	},
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	if name == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(name)
}

// encapsulate wraps payload in a relay sub-header when both endpoints are
// given. Transforms are applied upstream, so the pipeline is empty.
func encapsulate(payload []byte, src, dst string) ([]byte, error) {
	if src == "" && dst == "" {
		return payload, nil
	}
	if src == "" || dst == "" {
		return nil, errors.New("--relay-src and --relay-dst must be used together")
	}
	s, err := netip.ParseAddrPort(src)
	if err != nil {
		return nil, fmt.Errorf("--relay-src: %w", err)
	}
	d, err := netip.ParseAddrPort(dst)
	if err != nil {
		return nil, fmt.Errorf("--relay-dst: %w", err)
	}
	return relay.Encapsulate(relay.Header{Source: s, Destination: d}, nil, payload)
}

func printTransferStats(w io.Writer, st guardl2.TransferStats) {
	fmt.Fprintf(w, "session %08x: %d bytes in %d segments, %s\n",
		st.SessionID, st.Bytes, st.Segments, st.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "transmissions %d, retransmissions %d, timeouts %d\n",
		st.Transmissions, st.Retransmissions, st.Timeouts)
	fmt.Fprintf(w, "cwnd %.2f, ssthresh %d, srtt %s, rto %s\n",
		st.Cwnd, st.Ssthresh, st.SRTT, st.RTO)
}

func init() {
	pushCmd.Flags().StringVar(&pushRelaySrc, "relay-src", "", "source address:port recorded in the relay sub-header")
	pushCmd.Flags().StringVar(&pushRelayDst, "relay-dst", "", "destination address:port the peer forwards to")
	rootCmd.AddCommand(pushCmd)
}
