package cmd

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/lsh"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/spf13/cobra"
)

func newBandwidthCmd() *cobra.Command {
	var (
		hashes    int
		threshold float64
	)
	cmd := &cobra.Command{
		Use:   "bandwidth",
		Short: "Show the band layout chosen for a hash count and threshold",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if hashes < 1 || threshold <= 0 || threshold >= 1 {
				return apperrors.Newf(apperrors.ErrInvalidConfig, "need -f >= 1 and 0 < -t < 1, got %d and %g", hashes, threshold)
			}
			rows := lsh.Bandwidth(hashes, threshold)
			bands := hashes / rows
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "hashes=%d threshold=%g rows=%d bands=%d unused_rows=%d\n",
				hashes, threshold, rows, bands, hashes-rows*bands)
			for _, s := range []float64{threshold / 2, threshold, (1 + threshold) / 2} {
				fmt.Fprintf(w, "P(candidate | J=%.3f) = %.4f\n", s, lsh.CollisionProbability(s, rows, bands))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&hashes, "hash-functions", "f", 200, "Number of MinHash functions")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0.5, "Jaccard threshold")
	return cmd
}
