package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nurpe/tender-eval/internal/config"
	"github.com/nurpe/tender-eval/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "tender-eval",
	Short:         "Tender price evaluation service",
	Long:          "Serves tender price evaluations: hierarchical line items priced per shortlisted firm, with category, table and grand totals.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func setup(requireAuth bool) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(requireAuth)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, logger.New(cfg.Environment), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tender-eval: %v\n", err)
		os.Exit(1)
	}
}
