package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/clusterio"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/dedup"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/sink"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/metrics"
	"github.com/spf13/cobra"
)

type clusterFlags struct {
	input            string
	output           string
	source           string
	headerLines      int
	firstID          uint64
	maxLines         int
	threshold        float64
	clusterThreshold float64
	hashFunctions    int
	threads          int
	seed             uint64
	preserveIndex    bool
	tokenizer        string
	delimiter        string
	shingle          int
	idleTimeout      time.Duration
	truth            string
	backends         backendFlags
}

func newClusterCmd(root *rootOptions) *cobra.Command {
	f := &clusterFlags{}
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster a corpus of documents into near-duplicate groups",
		Long: `Hash every document of a corpus, band the signatures and run KwikCluster.

The corpus is a text file with one document per line (optionally gzipped),
a JSON lines file of {"id", "tokens"|"text"} records, or a Kafka topic of
document events. Clusters are written one per line as space separated ids.`,
		Example: `  kwikdedup cluster -i corpus.txt -o clusters.txt -t 0.8 -f 200 -c 8
  kwikdedup cluster --source kafka --postgres --publish -t 0.7`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := f.apply(cmd, root.cfg); err != nil {
				return err
			}
			return runCluster(cmd.Context(), root.cfg, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.input, "input", "i", "", "Corpus file (.txt, .gz, .jsonl)")
	fl.StringVarP(&f.output, "output", "o", "-", "Output file for clusters, - for stdout")
	fl.StringVar(&f.source, "source", "file", "Corpus source: file or kafka")
	fl.IntVarP(&f.headerLines, "header-lines", "d", 0, "Header lines to skip in a text corpus")
	fl.Uint64Var(&f.firstID, "first-id", 0, "Id of the first document in a text corpus")
	fl.IntVarP(&f.maxLines, "max-lines", "m", 0, "Stop after this many documents (0 = all)")
	fl.Float64VarP(&f.threshold, "threshold", "t", 0, "Jaccard threshold for banding (default from config)")
	fl.Float64Var(&f.clusterThreshold, "cluster-threshold", 0, "Jaccard threshold for clustering, >= banding threshold")
	fl.IntVarP(&f.hashFunctions, "hash-functions", "f", 0, "Number of MinHash functions (default from config)")
	fl.IntVarP(&f.threads, "threads", "c", 0, "Hashing and banding workers (default from config)")
	fl.Uint64Var(&f.seed, "seed", 0, "Pivot seed for a reproducible run (default: cluster.seed, else random)")
	fl.BoolVar(&f.preserveIndex, "preserve-index", false, "Cluster against a copy of the banding index")
	fl.StringVar(&f.tokenizer, "tokenizer", string(corpus.ModeSplit), "Tokenizer: split or normalize")
	fl.StringVar(&f.delimiter, "delimiter", " ", "Token delimiter for the split tokenizer")
	fl.IntVar(&f.shingle, "shingle", 0, "Word shingle size for the normalize tokenizer")
	fl.DurationVar(&f.idleTimeout, "idle-timeout", 10*time.Second, "Stop reading Kafka after this long without a message")
	fl.StringVar(&f.truth, "truth", "", "Reference clustering to score the result against")
	fl.BoolVar(&f.backends.redis, "redis", false, "Share signatures through Redis")
	fl.BoolVar(&f.backends.postgres, "postgres", false, "Store clusters in Postgres")
	fl.BoolVar(&f.backends.publish, "publish", false, "Publish clusters to Kafka")
	return cmd
}

// apply folds explicitly set flags into cfg and revalidates it.
func (f *clusterFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fl := cmd.Flags()
	if fl.Changed("threshold") {
		cfg.Banding.Threshold = f.threshold
	}
	if fl.Changed("cluster-threshold") {
		cfg.Cluster.Threshold = f.clusterThreshold
	}
	if fl.Changed("hash-functions") {
		cfg.MinHash.NumHashes = f.hashFunctions
	}
	if fl.Changed("threads") {
		cfg.Pipeline.Workers = f.threads
		cfg.Banding.Workers = f.threads
	}
	if fl.Changed("seed") {
		seed := f.seed
		cfg.Cluster.Seed = &seed
	}
	if f.preserveIndex {
		cfg.Cluster.Destructive = false
	}
	switch f.source {
	case "file":
		if f.input == "" {
			return apperrors.New(apperrors.ErrInvalidConfig, "--input is required for a file source")
		}
	case "kafka":
		f.backends.kafkaIn = true
	default:
		return apperrors.Newf(apperrors.ErrInvalidConfig, "unknown source %q", f.source)
	}
	if _, err := f.tokenizerConfig(); err != nil {
		return err
	}
	return cfg.Validate()
}

func (f *clusterFlags) tokenizerConfig() (corpus.Tokenizer, error) {
	t := corpus.Tokenizer{Mode: corpus.TokenMode(f.tokenizer), Delimiter: f.delimiter, Shingle: f.shingle}
	return t, t.Validate()
}

func (f *clusterFlags) openSource(ctx context.Context, cfg *config.Config) (corpus.Source, error) {
	tok, err := f.tokenizerConfig()
	if err != nil {
		return nil, err
	}
	if f.source == "kafka" {
		newConsumer := func(h kafka.MessageHandler) *kafka.Consumer {
			return kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Documents, h, kafka.WithIdleTimeout(f.idleTimeout))
		}
		return ingest.NewKafkaSource(ctx, newConsumer, tok, f.maxLines), nil
	}
	return corpus.Open(f.input, corpus.TextOptions{
		HeaderLines:  f.headerLines,
		FirstID:      f.firstID,
		MaxDocuments: f.maxLines,
		Tokenizer:    tok,
	})
}

func runCluster(ctx context.Context, cfg *config.Config, f *clusterFlags) error {
	runID := sink.NewRunID()
	ctx = logger.WithRunID(ctx, runID)
	log := logger.FromContext(ctx)

	m := metrics.New()
	defer startMetrics(cfg, m)()

	b, err := openBackends(ctx, cfg, f.backends)
	if err != nil {
		return err
	}
	defer b.Close()

	opts := []dedup.Option{dedup.WithMetrics(m)}
	if b.redis != nil {
		opts = append(opts, dedup.WithRemoteCache(b.redis, cfg.Redis.CacheTTL))
	}
	runner, err := dedup.NewRunner(*cfg, opts...)
	if err != nil {
		return err
	}

	src, err := f.openSource(ctx, cfg)
	if err != nil {
		return err
	}
	log.Info("starting run",
		"source", f.source,
		"input", f.input,
		"hashes", cfg.MinHash.NumHashes,
		"banding_threshold", cfg.Banding.Threshold,
		"cluster_threshold", cfg.ClusterThreshold(),
		"workers", cfg.Pipeline.Workers,
	)
	res, err := runner.Run(ctx, runID, src)
	if err != nil {
		return err
	}
	res.Trace.Log(log)
	log.Info("signature cache",
		"lru_hits", res.Cache.LRUHits,
		"remote_hits", res.Cache.RemoteHits,
		"misses", res.Cache.Misses,
	)

	if err := score(log, res.Clustering, f.truth); err != nil {
		return err
	}

	fan, err := b.sinks(ctx, f.output, m)
	if err != nil {
		return err
	}
	return fan.Write(ctx, runID, res.Clustering)
}

// score logs how well c agrees with the reference clustering at path.
func score(log *slog.Logger, c cluster.Clustering, path string) error {
	if path == "" {
		return nil
	}
	ref, err := clusterio.ReadFile(path)
	if err != nil {
		return err
	}
	log.Info("agreement with reference",
		"reference", path,
		"pair_agreement", fmt.Sprintf("%.4f", cluster.PairAgreement(c, ref)),
		"clusters", len(c),
		"reference_clusters", len(ref),
	)
	return nil
}
