package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

func newCheckCmd(root *rootOptions) *cobra.Command {
	f := backendFlags{}
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe the configured Redis, Postgres and Kafka endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := openBackends(cmd.Context(), root.cfg, f)
			if err != nil {
				return err
			}
			defer b.Close()
			report := b.checker.Run(cmd.Context())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			return report.Err()
		},
	}
	cmd.Flags().BoolVar(&f.redis, "redis", false, "Probe Redis")
	cmd.Flags().BoolVar(&f.postgres, "postgres", false, "Probe Postgres")
	cmd.Flags().BoolVar(&f.kafkaIn, "kafka", false, "Probe Kafka brokers")
	return cmd
}
