package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/common"
	"github.com/therealutkarshpriyadarshi/guardlink/pkg/guardl2"
)

const guardl2Version = "0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show guardl2 version and protocol parameters",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "guardl2 version %s\n", guardl2Version)
		fmt.Fprintf(out, "EtherType: 0x%04x (%s)\n", uint16(common.EtherTypeGuardL2), common.EtherTypeGuardL2)
		fmt.Fprintf(out, "Header: %d bytes, max payload %d bytes\n", guardl2.HeaderSize, guardl2.MaxPayloadSize)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
