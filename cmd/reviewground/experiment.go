package main

import (
	"fmt"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/reviewground/internal/models"
	"github.com/xhad/reviewground/pkg/experiment"
	"github.com/xhad/reviewground/server"
)

var (
	batchPapers  int
	experimentID string
	asJSON       bool
	port         string
)

var experimentCmd = &cobra.Command{
	Use:   "experiment",
	Short: "Compare RAG and no-RAG reviews for one paper",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		r, err := spin("Running experiment", func() (models.PaperExperimentResult, error) {
			return p.Runner.RunPaper(cmd.Context(), paperIndex)
		})
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(r)
		}

		color.Green("✓ %s (%s, scored by %s)", r.PaperTitle, r.PaperID, r.Method)
		printMetrics("RAG", r.RAG.Metrics)
		printMetrics("No RAG", r.NoRAG.Metrics)
		printDeltas(r.Comparison)
		return nil
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Run the experiment over the first N papers and store the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		total := batchPapers
		if all, err := p.Papers.Papers(cmd.Context()); err != nil {
			return err
		} else if total <= 0 || total > len(all) {
			total = len(all)
		}

		bar := getProgressBar(total, "Running experiments")
		var (
			mu     sync.Mutex
			failed []string
		)
		runner := p.Runner.WithProgress(func(e experiment.ProgressEvent) {
			switch e.Stage {
			case experiment.StagePaperDone:
				_ = bar.Add(1)
			case experiment.StagePaperFailed:
				_ = bar.Add(1)
				mu.Lock()
				failed = append(failed, fmt.Sprintf("%s: %s", e.PaperID, e.Error))
				mu.Unlock()
			}
		})

		batch, err := runner.RunBatch(cmd.Context(), total)
		_ = bar.Finish()
		fmt.Println()
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(batch)
		}

		for _, f := range failed {
			color.Red("✗ %s", f)
		}
		color.Green("✓ Experiment %s: %d of %d papers", batch.ExperimentID, batch.TotalPapers, total)
		printAggregate("RAG", batch.Aggregated.RAG)
		printAggregate("No RAG", batch.Aggregated.NoRAG)
		printDeltas(batch.Aggregated.Deltas)
		return nil
	},
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "List stored experiments, or print one with --experiment",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()
		if p.Results == nil {
			return fmt.Errorf("output.results_path is not configured")
		}

		if experimentID != "" {
			batch, err := p.Results.Get(cmd.Context(), experimentID)
			if err != nil {
				return err
			}
			return printJSON(batch)
		}

		summaries, err := p.Results.List(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(summaries)
		}
		for _, s := range summaries {
			fmt.Printf("%s  %s  %3d papers  hallucination %+.3f  grounding %+.3f\n",
				color.CyanString(s.ExperimentID),
				s.Timestamp.Format("2006-01-02 15:04"),
				s.TotalPapers,
				s.Aggregated.Deltas.HallucinationDelta,
				s.Aggregated.Deltas.GroundingDelta)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP and websocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		if port == "" {
			port = cfg.Server.Port
		}
		return server.New(p, logger).Run(cmd.Context(), ":"+port)
	},
}

func init() {
	experimentCmd.Flags().IntVar(&paperIndex, "paper", 0, "paper index")
	batchCmd.Flags().IntVar(&batchPapers, "papers", 0, "number of papers (0 for all loaded)")
	resultsCmd.Flags().StringVar(&experimentID, "experiment", "", "experiment id")
	serveCmd.Flags().StringVar(&port, "port", "", "listen port (default from config)")

	for _, c := range []*cobra.Command{experimentCmd, batchCmd, resultsCmd} {
		c.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	}
	rootCmd.AddCommand(experimentCmd, batchCmd, resultsCmd, serveCmd)
}
