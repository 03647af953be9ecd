package cmd

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/clusterio"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/sink"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/tracing"
	"github.com/spf13/cobra"
)

type consensusFlags struct {
	output   string
	seed     uint64
	seedSet  bool
	truth    string
	backends backendFlags
}

func newConsensusCmd(root *rootOptions) *cobra.Command {
	f := &consensusFlags{}
	cmd := &cobra.Command{
		Use:   "consensus <clustering>...",
		Short: "Combine several clusterings of the same documents into one",
		Long: `Run KwikCluster over the consensus of the given clusterings: a document
joins a pivot's cluster with probability equal to the fraction of input
clusterings that put the two together. Inputs use the cluster output format.`,
		Example: `  kwikdedup consensus run1.txt run2.txt run3.txt -o consensus.txt --seed 7`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.seedSet = cmd.Flags().Changed("seed")
			return runConsensus(cmd.Context(), root.cfg, f, args)
		},
	}
	cmd.Flags().StringVarP(&f.output, "output", "o", "-", "Output file, - for stdout")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "Seed for pivots and draws (default random)")
	cmd.Flags().StringVar(&f.truth, "truth", "", "Reference clustering to score the result against")
	cmd.Flags().BoolVar(&f.backends.postgres, "postgres", false, "Store clusters in Postgres")
	cmd.Flags().BoolVar(&f.backends.publish, "publish", false, "Publish clusters to Kafka")
	return cmd
}

func runConsensus(ctx context.Context, cfg *config.Config, f *consensusFlags, paths []string) error {
	runID := sink.NewRunID()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "consensus", runID)

	m := metrics.New()
	defer startMetrics(cfg, m)()

	inputs := make([]cluster.Clustering, 0, len(paths))
	for _, p := range paths {
		c, err := clusterio.ReadFile(p)
		if err != nil {
			return err
		}
		inputs = append(inputs, c)
	}

	b, err := openBackends(ctx, cfg, f.backends)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := []cluster.Option{cluster.WithMetrics(m), cluster.WithLogger(log)}
	switch {
	case f.seedSet:
		opts = append(opts, cluster.WithSeed(f.seed))
	case cfg.Cluster.Seed != nil:
		opts = append(opts, cluster.WithSeed(*cfg.Cluster.Seed))
	}
	out, err := cluster.Consensus(ctx, inputs, opts...)
	if err != nil {
		return err
	}
	span.SetAttr("inputs", len(inputs))
	span.SetAttr("clusters", len(out))
	m.ObserveStage("consensus", span.End().Seconds())
	span.Log(log)

	for i, in := range inputs {
		log.Info("agreement with input", "input", paths[i], "pair_agreement", cluster.PairAgreement(out, in))
	}
	if err := score(log, out, f.truth); err != nil {
		return err
	}

	fan, err := b.sinks(ctx, f.output, m)
	if err != nil {
		return err
	}
	return fan.Write(ctx, runID, out)
}
