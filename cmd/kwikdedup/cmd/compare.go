package cmd

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/clusterio"
	"github.com/spf13/cobra"
)

func newCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <a> <b>",
		Short: "Print the pair agreement between two clusterings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := clusterio.ReadFile(args[0])
			if err != nil {
				return err
			}
			b, err := clusterio.ReadFile(args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "clusters=%d/%d documents=%d/%d pair_agreement=%.4f\n",
				len(a), len(b), a.Len(), b.Len(), cluster.PairAgreement(a, b))
			return nil
		},
	}
}
