package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/relay"
)

var recvCmd = &cobra.Command{
	Use:   "recv",
	Short: "Receive guard link transfers and forward them to their TCP destination",
	RunE: func(cmd *cobra.Command, args []string) error {
		iface, err := ethernet.OpenInterface(cfg.Interface)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", cfg.Interface, err)
		}
		defer iface.Close()

		receiver := guardl2.NewReceiver(iface, iface.MACAddress(), transportOptions()...)
		eg := relay.NewEgress(receiver, cfg.EgressConfig(), logger)

		logger.Info("recv mode",
			zap.String("interface", cfg.Interface),
			zap.String("own", iface.MACAddress().String()))

		runErr := eg.Run(cmd.Context())

		st := eg.Stats()
		rs := receiver.Stats()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "received %d, forwarded %d, failed %d\n", st.Received, st.Forwarded, st.Failed)
		fmt.Fprintf(out, "frames %d, dropped %d, duplicates %d, out of window %d\n",
			rs.Frames, rs.Dropped, rs.Duplicates, rs.OutOfWindow)
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(recvCmd)
}
