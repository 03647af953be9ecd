// Package cmd holds the kwikdedup command tree.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/kwikdedup/pkg/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        *config.Config
}

// NewRootCmd builds the command tree. Configuration is loaded before any
// subcommand runs and is available through opts.cfg.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "kwikdedup",
		Short: "Near-duplicate document clustering with MinHash, LSH and KwikCluster",
		Long: `kwikdedup estimates Jaccard similarity between documents with MinHash
signatures, finds candidate pairs with LSH banding and groups near-duplicates
with the KwikCluster correlation clustering algorithm.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Log format: text or json")

	cmd.AddCommand(newClusterCmd(opts))
	cmd.AddCommand(newConsensusCmd(opts))
	cmd.AddCommand(newBandwidthCmd())
	cmd.AddCommand(newSynthCmd(opts))
	cmd.AddCommand(newCompareCmd())
	cmd.AddCommand(newCheckCmd(opts))
	cmd.AddCommand(newCacheCmd(opts))
	return cmd
}

func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, cmd.ErrOrStderr())
	o.cfg = cfg
	return nil
}

// Execute runs the command tree until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}
