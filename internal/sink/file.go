package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/cluster"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/internal/clusterio"
)

// FileSink writes the clusterio text format. The file is replaced
// atomically, so readers never see a partial clustering.
type FileSink struct {
	Path string
}

func (s *FileSink) Name() string { return "file" }

func (s *FileSink) Write(ctx context.Context, _ string, c cluster.Clustering) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.Path), "."+filepath.Base(s.Path)+".*")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", s.Path, err)
	}
	defer os.Remove(tmp.Name())

	if err := clusterio.Write(tmp, c); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", s.Path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("renaming into %s: %w", s.Path, err)
	}
	return nil
}

// StdoutSink writes the text format to standard output.
type StdoutSink struct{}

func (StdoutSink) Name() string { return "stdout" }

func (StdoutSink) Write(_ context.Context, _ string, c cluster.Clustering) error {
	return clusterio.Write(os.Stdout, c)
}
