package main

import (
	"github.com/spf13/cobra"
	"github.com/xhad/reviewground/pkg/hallucination"
)

var (
	detectMethod string
	paperID      string
)

var detectCmd = &cobra.Command{
	Use:   "detect [claim...]",
	Short: "Check claims against a paper with one detection method",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method, err := hallucination.ParseMethod(detectMethod)
		if err != nil {
			return err
		}
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		d, err := p.Detectors.Detector(method)
		if err != nil {
			return err
		}
		if len(args) == 1 {
			v, err := d.Detect(cmd.Context(), args[0], paperID)
			if err != nil {
				return err
			}
			return printJSON(v)
		}
		vs, err := d.DetectBatch(cmd.Context(), args, paperID)
		if err != nil {
			return err
		}
		return printJSON(vs)
	},
}

var compareCmd = &cobra.Command{
	Use:   "compare <claim>",
	Short: "Run all three detection methods on one claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := openPipeline(cmd)
		if err != nil {
			return err
		}
		defer p.Close()

		comparison, err := p.Detectors.CompareAll(cmd.Context(), args[0], paperID)
		if err != nil {
			return err
		}
		return printJSON(comparison)
	},
}

func init() {
	detectCmd.Flags().StringVar(&detectMethod, "method", "judge", "detection method (similarity, nli, judge)")
	for _, c := range []*cobra.Command{detectCmd, compareCmd} {
		c.Flags().StringVar(&paperID, "paper-id", "", "id of an indexed paper")
		_ = c.MarkFlagRequired("paper-id")
	}
	rootCmd.AddCommand(detectCmd, compareCmd)
}
