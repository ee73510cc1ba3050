package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/xhad/reviewground/internal/models"
)

var (
	paperIndex int
	noRAG      bool
	lookupID   string
)

var papersCmd = &cobra.Command{
	Use:   "papers",
	Short: "List the loaded papers",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		if lookupID != "" {
			paper, index, err := p.Papers.PaperByID(cmd.Context(), lookupID)
			if err != nil {
				return err
			}
			return printJSON(struct {
				Index int          `json:"index"`
				Paper models.Paper `json:"paper"`
			}{index, paper})
		}

		papers, err := p.Papers.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, s := range papers {
			fmt.Printf("%s %s %s\n",
				color.YellowString("%3d", s.Index),
				color.CyanString("%-28s", s.ID),
				s.Title)
		}
		color.Green("✓ %d papers", len(papers))
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk, embed and store a paper in the vector index",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		paper, err := p.Papers.Paper(cmd.Context(), paperIndex)
		if err != nil {
			return err
		}
		written, err := spin("Indexing "+paper.ID, func() (int, error) {
			return p.Indexer.IndexPaper(cmd.Context(), paper)
		})
		if err != nil {
			return err
		}
		if written == 0 {
			color.Yellow("Paper %s is already indexed", paper.ID)
			return nil
		}
		color.Green("✓ Indexed %s into %d chunks", paper.ID, written)
		return nil
	},
}

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Print the excerpts retrieved for a paper",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		paper, err := p.Papers.Paper(cmd.Context(), paperIndex)
		if err != nil {
			return err
		}
		if _, err := p.Indexer.IndexPaper(cmd.Context(), paper); err != nil {
			return err
		}
		excerpts, err := p.Retriever.RetrieveContext(cmd.Context(), paper.ID)
		if err != nil {
			return err
		}
		fmt.Println(excerpts)
		return nil
	},
}

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Generate a peer review for a paper",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx := cmd.Context()
		paper, err := p.Papers.Paper(ctx, paperIndex)
		if err != nil {
			return err
		}

		review, err := spin("Generating review", func() (string, error) {
			if noRAG {
				return p.Reviewer.GenerateWithoutRAG(ctx, paper)
			}
			if _, err := p.Indexer.IndexPaper(ctx, paper); err != nil {
				return "", err
			}
			return p.Reviewer.GenerateWithRAG(ctx, paper)
		})
		if err != nil {
			return err
		}
		color.Cyan("%s", paper.Title)
		fmt.Println(review)
		return nil
	},
}

var claimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Extract or validate review claims",
}

var claimsExtractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract claims from a review read on stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		review, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		extracted, err := p.Extractor.ExtractClaims(cmd.Context(), string(review))
		if err != nil {
			return err
		}
		return printJSON(extracted)
	},
}

var claimsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a JSON array of extracted claims read on stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		var extracted []models.ExtractedClaim
		if err := json.NewDecoder(os.Stdin).Decode(&extracted); err != nil {
			return fmt.Errorf("failed to read claims: %w", err)
		}
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		validated, err := p.Extractor.ValidateClaims(cmd.Context(), extracted)
		if err != nil {
			return err
		}
		return printJSON(validated)
	},
}

func init() {
	for _, c := range []*cobra.Command{indexCmd, contextCmd, reviewCmd} {
		c.Flags().IntVar(&paperIndex, "paper", 0, "paper index")
	}
	papersCmd.Flags().StringVar(&lookupID, "id", "", "print the paper with this id")
	reviewCmd.Flags().BoolVar(&noRAG, "no-rag", false, "review from the full text instead of retrieved excerpts")

	claimsCmd.AddCommand(claimsExtractCmd, claimsValidateCmd)
	rootCmd.AddCommand(papersCmd, indexCmd, contextCmd, reviewCmd, claimsCmd)
}
