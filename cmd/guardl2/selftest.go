package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
)

var (
	selftestSize     int
	selftestLoss     float64
	selftestMinDelay time.Duration
	selftestMaxDelay time.Duration
	selftestSeed     int64
	selftestTimeout  time.Duration
)

var (
	selftestSenderMAC   = common.MACAddress{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	selftestReceiverMAC = common.MACAddress{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Run a transfer over an in-memory lossy link",
	Long: `selftest sends a generated payload between two endpoints joined by a
simulated Ethernet segment with configurable loss and latency, using the
transport parameters from the configuration. No interface is opened.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if selftestSize < 0 {
			return fmt.Errorf("--size must not be negative, got %d", selftestSize)
		}
		if selftestLoss < 0 || selftestLoss >= 1 {
			return fmt.Errorf("--loss must be in [0, 1), got %g", selftestLoss)
		}
		if selftestMaxDelay < selftestMinDelay {
			return fmt.Errorf("--max-delay %s below --min-delay %s", selftestMaxDelay, selftestMinDelay)
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), selftestTimeout)
		defer cancel()

		return runSelftest(ctx, cmd.OutOrStdout(), ethernet.PipeConfig{
			LossRate: selftestLoss,
			MinDelay: selftestMinDelay,
			MaxDelay: selftestMaxDelay,
			Seed:     selftestSeed,
		}, selftestPayload(selftestSize))
	},
}

func selftestPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*31 + i>>8)
	}
	return p
}

type selftestResult struct {
	data []byte
	err  error
}

func runSelftest(ctx context.Context, out io.Writer, pc ethernet.PipeConfig, payload []byte) error {
	a, b := ethernet.NewPipe(selftestSenderMAC, selftestReceiverMAC, pc)
	defer a.Close()
	defer b.Close()

	rctx, stopReceiver := context.WithCancel(ctx)
	results := make(chan selftestResult, 1)
	done := make(chan struct{})
	receiver := guardl2.NewReceiver(b, selftestReceiverMAC, transportOptions()...)
	go func() {
		defer close(done)
		data, err := receiver.Receive(rctx)
		results <- selftestResult{data, err}
		if err == nil {
			linger(rctx, receiver, time.Hour)
		}
	}()
	defer func() {
		stopReceiver()
		<-done
	}()

	sender := guardl2.NewSender(a, selftestSenderMAC, selftestReceiverMAC, transportOptions()...)
	if err := sender.Send(ctx, payload); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	var res selftestResult
	select {
	case res = <-results:
	case <-ctx.Done():
		return ctx.Err()
	}
	if res.err != nil {
		return fmt.Errorf("receive failed: %w", res.err)
	}
	if !bytes.Equal(res.data, payload) {
		return errors.New("received payload differs from sent payload")
	}

	printTransferStats(out, sender.Stats())
	rs := receiver.Stats()
	ws := a.Stats()
	fmt.Fprintf(out, "receiver: frames %d, duplicates %d, out of window %d, dropped %d\n",
		rs.Frames, rs.Duplicates, rs.OutOfWindow, rs.Dropped)
	fmt.Fprintf(out, "link: written %d, lost %d\n", ws.Written, ws.Lost)
	fmt.Fprintln(out, "selftest passed")
	return nil
}

func init() {
	selftestCmd.Flags().IntVar(&selftestSize, "size", 1<<20, "payload size in bytes")
	selftestCmd.Flags().Float64Var(&selftestLoss, "loss", 0.02, "probability that a frame is lost")
	selftestCmd.Flags().DurationVar(&selftestMinDelay, "min-delay", time.Millisecond, "minimum one-way latency")
	selftestCmd.Flags().DurationVar(&selftestMaxDelay, "max-delay", 3*time.Millisecond, "maximum one-way latency")
	selftestCmd.Flags().Int64Var(&selftestSeed, "seed", 1, "random seed for loss and latency (0 uses the clock)")
	selftestCmd.Flags().DurationVar(&selftestTimeout, "timeout", 5*time.Minute, "abort the selftest after this long")
	rootCmd.AddCommand(selftestCmd)
}
