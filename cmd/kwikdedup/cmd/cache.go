package cmd

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/sigcache"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/redis"
	"github.com/spf13/cobra"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the shared signature cache in Redis",
	}
	var all bool
	flush := &cobra.Command{
		Use:   "flush",
		Short: "Delete cached signatures for the configured hash family",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc, err := redis.NewClient(root.cfg.Redis)
			if err != nil {
				return err
			}
			defer rc.Close()
			pattern := sigcache.KeyPattern(root.cfg.MinHash.NumHashes, root.cfg.MinHash.Seed)
			if all {
				pattern = sigcache.KeyPrefix + "*"
			}
			n, err := rc.FlushByPattern(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d keys matching %s\n", n, pattern)
			return nil
		},
	}
	flush.Flags().BoolVar(&all, "all", false, "Delete signatures of every hash family")
	cmd.AddCommand(flush)
	return cmd
}
