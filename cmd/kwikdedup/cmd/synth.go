package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/ingest"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/sink"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/synth"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/resilience"
	"github.com/spf13/cobra"
)

type synthFlags struct {
	cfg     synth.Config
	output  string
	truth   string
	publish bool
}

func newSynthCmd(root *rootOptions) *cobra.Command {
	f := &synthFlags{}
	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic corpus with known clusters",
		Long: `Draw documents from latent clusters: every document carries its cluster's
shared features (each dropped with --drop probability) plus --noise tokens of
its own. The corpus is written as JSON lines, or published as document events
to the configured Kafka topic with --publish.`,
		Example: `  kwikdedup synth -n 10000 -k 50 -o corpus.jsonl --truth truth.txt`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSynth(cmd.Context(), root.cfg, f)
		},
	}
	fl := cmd.Flags()
	fl.IntVarP(&f.cfg.Documents, "documents", "n", 1000, "Number of documents")
	fl.IntVarP(&f.cfg.Clusters, "clusters", "k", 10, "Number of latent clusters")
	fl.IntVar(&f.cfg.Features, "features", 20, "Shared tokens per cluster")
	fl.IntVar(&f.cfg.Noise, "noise", 5, "Private tokens per document")
	fl.Float64Var(&f.cfg.DropRate, "drop", 0, "Probability of dropping each shared token")
	fl.Uint64Var(&f.cfg.Seed, "seed", 1, "Generator seed")
	fl.StringVarP(&f.output, "output", "o", "-", "JSON lines output, - for stdout")
	fl.StringVar(&f.truth, "truth", "", "Write the true clustering here")
	fl.BoolVar(&f.publish, "publish", false, "Publish documents to Kafka instead of writing them")
	return cmd
}

func runSynth(ctx context.Context, cfg *config.Config, f *synthFlags) error {
	if f.cfg.Documents < 0 || f.cfg.Clusters < 1 || f.cfg.DropRate < 0 || f.cfg.DropRate > 1 {
		return apperrors.New(apperrors.ErrInvalidConfig, "need documents >= 0, clusters >= 1 and 0 <= drop <= 1")
	}
	data := synth.Draw(f.cfg)

	if f.publish {
		if err := publishDocuments(ctx, cfg, data.Documents); err != nil {
			return err
		}
	} else if err := writeDocuments(f.output, data.Documents); err != nil {
		return err
	}

	if f.truth != "" {
		sets := make([][]cluster.DocID, f.cfg.Clusters)
		for _, d := range data.Documents {
			l := data.Labels[d.ID] - 1
			sets[l] = append(sets[l], d.ID)
		}
		truth := cluster.FromSets(sets...)
		nonEmpty := truth[:0]
		for _, bm := range truth {
			if !bm.IsEmpty() {
				nonEmpty = append(nonEmpty, bm)
			}
		}
		s := &sink.FileSink{Path: f.truth}
		if err := s.Write(ctx, "", nonEmpty); err != nil {
			return err
		}
	}
	slog.Info("synthetic corpus generated",
		"documents", len(data.Documents),
		"clusters", f.cfg.Clusters,
		"published", f.publish,
	)
	return nil
}

func writeDocuments(path string, docs []corpus.Document) error {
	out := os.Stdout
	if path != "" && path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
		defer file.Close()
		out = file
	}
	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for _, d := range docs {
		if err := enc.Encode(corpus.Record{ID: d.ID, Tokens: d.Tokens}); err != nil {
			return err
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if out != os.Stdout {
		return out.Close()
	}
	return nil
}

func publishDocuments(ctx context.Context, cfg *config.Config, docs []corpus.Document) error {
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Documents)
	defer producer.Close()

	batch := make([]kafka.Event, 0, sink.DefaultBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := resilience.Retry(ctx, "publish-documents", sinkRetry, func(ctx context.Context) error {
			return producer.PublishBatch(ctx, batch)
		})
		batch = batch[:0]
		return err
	}
	for _, d := range docs {
		batch = append(batch, kafka.Event{
			Key:   strconv.FormatUint(d.ID, 10),
			Value: ingest.DocumentEvent{ID: d.ID, Tokens: d.Tokens},
		})
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}
