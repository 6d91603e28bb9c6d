package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/relay"
)

var sendListen string

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Accept TCP producers and relay each connection across the guard link",
	Long: `send listens for TCP connections and forwards the bytes of each one,
read to EOF, as a single guard link transfer to the peer. Producers are
expected to prefix the relay sub-header naming the final destination.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendListen != "" {
			cfg.ListenAddr = sendListen
		}
		peer, err := cfg.Peer()
		if err != nil {
			return err
		}

		iface, err := ethernet.OpenInterface(cfg.Interface)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", cfg.Interface, err)
		}
		defer iface.Close()

		sender := guardl2.NewSender(iface, iface.MACAddress(), peer, transportOptions()...)
		in := relay.NewIngress(sender, cfg.IngressConfig(), logger)

		logger.Info("send mode",
			zap.String("interface", cfg.Interface),
			zap.String("own", iface.MACAddress().String()),
			zap.String("peer", peer.String()))

		if err := in.ListenAndServe(cmd.Context(), cfg.ListenAddr); err != nil {
			return err
		}

		st := in.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "accepted %d, relayed %d, rejected %d, failed %d\n",
			st.Accepted, st.Relayed, st.Rejected, st.Failed)
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendListen, "listen", "", "TCP address to accept producers on (overrides listen_addr)")
	rootCmd.AddCommand(sendCmd)
}
