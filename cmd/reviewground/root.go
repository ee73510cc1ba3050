package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/xhad/reviewground/pkg/config"
	"github.com/xhad/reviewground/pkg/pipeline"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "reviewground",
	Short: "Measure how well LLM peer reviews are grounded in the paper",
	Long: `reviewground generates peer reviews for scientific papers with and
without retrieved excerpts, extracts the factual claims each review makes,
and checks every claim against the paper with embedding similarity, NLI
or an LLM judge. The experiment commands compare hallucination and
grounding between the two arms.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if logger, err = newLogger(logLevel, logFormat); err != nil {
			return err
		}
		slog.SetDefault(logger)

		if cfg, err = config.LoadConfig(cfgFile); err != nil {
			return err
		}
		if problems := cfg.Validate(); len(problems) > 0 {
			errs := make([]error, len(problems))
			for i, p := range problems {
				errs[i] = p
			}
			return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, then ~/.config/reviewground/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// openPipeline connects to the configured services. Callers must Close it.
func openPipeline(cmd *cobra.Command) (*pipeline.Pipeline, error) {
	return pipeline.New(cmd.Context(), cfg, logger)
}
