// Package synth draws synthetic corpora with known cluster structure for
// tests, benchmarks and the CLI's demo mode.
package synth

import (
	"fmt"
	"math/rand/v2"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/minhash"
)

type Config struct {
	Documents int
	Clusters  int
	// Features is the number of tokens every document of a cluster shares.
	Features int
	// Noise is the number of document-specific tokens added to each
	// document.
	Noise int
	// DropRate is the probability of leaving out each shared feature.
	DropRate float64
	Seed     uint64
}

// Corpus holds the drawn documents and their true cluster labels.
type Corpus struct {
	Documents []corpus.Document
	Labels    map[minhash.DocID]int
}

// Draw assigns documents to clusters round robin, so every cluster gets
// at least one document when Documents >= Clusters. Ids start at 1.
func Draw(cfg Config) Corpus {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed+1))
	out := Corpus{
		Documents: make([]corpus.Document, 0, cfg.Documents),
		Labels:    make(map[minhash.DocID]int, cfg.Documents),
	}
	for i := range cfg.Documents {
		id := minhash.DocID(i + 1)
		label := i % max(cfg.Clusters, 1)
		tokens := make([]string, 0, cfg.Features+cfg.Noise)
		for f := range cfg.Features {
			if cfg.DropRate > 0 && rng.Float64() < cfg.DropRate {
				continue
			}
			tokens = append(tokens, fmt.Sprintf("c%d-f%d", label, f))
		}
		for n := range cfg.Noise {
			tokens = append(tokens, fmt.Sprintf("d%d-n%d-%d", id, n, rng.IntN(1_000_000)))
		}
		out.Documents = append(out.Documents, corpus.Document{ID: id, Tokens: tokens})
		out.Labels[id] = label + 1
	}
	return out
}
