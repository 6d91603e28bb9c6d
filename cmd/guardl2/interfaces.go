package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/therealutkarshpriyadarshi/guardlink/pkg/ethernet"
)

var interfacesVerbose bool

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List Ethernet interfaces usable for the guard link",
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := ethernet.ListInterfaces()
		if err != nil {
			return fmt.Errorf("failed to list interfaces: %w", err)
		}
		out := cmd.OutOrStdout()
		if len(names) == 0 {
			fmt.Fprintln(out, "no usable interfaces")
			return nil
		}
		for _, name := range names {
			if !interfacesVerbose {
				fmt.Fprintln(out, name)
				continue
			}
			info, err := ethernet.GetInterfaceInfo(name)
			if err != nil {
				return err
			}
			fmt.Fprint(out, info)
		}
		return nil
	},
}

func init() {
	interfacesCmd.Flags().BoolVarP(&interfacesVerbose, "verbose", "v", false, "show index, MTU, address and flags")
	rootCmd.AddCommand(interfacesCmd)
}
