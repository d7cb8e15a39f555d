package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vitwit/walletlink/apperror"
	"github.com/vitwit/walletlink/types"
)

func probeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [chain-id...]",
		Short: "Check that chain RPC endpoints answer with the expected chain id",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]types.ChainID, 0, len(args))
			for _, a := range args {
				id, err := strconv.ParseUint(a, 10, 64)
				if err != nil {
					return apperror.NewValidation(fmt.Sprintf("invalid chain id %q", a), err)
				}
				ids = append(ids, types.ChainID(id))
			}
			if len(ids) == 0 {
				for _, c := range client.Registry().Chains() {
					ids = append(ids, c.ChainID)
				}
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, id := range ids {
				if err := client.Probe(cmd.Context(), id); err != nil {
					failed++
					ae := apperror.Classify(err)
					fmt.Fprintf(out, "%-10d FAIL %s: %s\n", id, ae.Code(), ae.Message())
					continue
				}
				fmt.Fprintf(out, "%-10d OK\n", id)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d chains failed the probe", failed, len(ids))
			}
			return nil
		},
	}
}
