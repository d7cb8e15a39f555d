package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func chainsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chains",
		Short: "List supported networks",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, c := range client.Registry().Chains() {
				network := "mainnet"
				if c.IsTestnet() {
					network = "testnet"
				}
				fmt.Fprintf(out, "%-10d %-14s %-8s %s\n", c.ChainID, c.Name, network, c.RPCURL)
			}
			return nil
		},
	}
}

func connectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connectors",
		Short: "List configured wallet connectors in priority order",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, d := range client.Connectors().Available() {
				ready := "unavailable"
				if d.Ready {
					ready = "ready"
				}
				fmt.Fprintf(out, "%-18s %-20s %s\n", d.Kind, d.Name, ready)
			}
			return nil
		},
	}
}
