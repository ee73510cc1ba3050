package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/reviewground/internal/models"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("papers"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// spin runs fn behind a spinner.
func spin[T any](description string, fn func() (T, error)) (T, error) {
	spinner := getSpinner(description)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = spinner.Add(1)
			}
		}
	}()
	v, err := fn()
	close(done)
	_ = spinner.Finish()
	fmt.Fprintln(os.Stderr)
	return v, err
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printMetrics(label string, m models.ReviewMetrics) {
	color.Cyan("%s", label)
	fmt.Printf("  hallucination rate  %.3f\n", m.HallucinationRate)
	fmt.Printf("  grounding score     %.3f\n", m.GroundingScore)
	fmt.Printf("  claim density       %.4f\n", m.ClaimDensity)
	fmt.Printf("  avg confidence      %.3f\n", m.AvgConfidence)
	fmt.Printf("  claims              %d (%d words)\n", m.TotalClaims, m.ReviewWordCount)
}

func printAggregate(label string, m models.AggregateMetrics) {
	color.Cyan("%s", label)
	fmt.Printf("  avg hallucination rate  %.3f\n", m.AvgHallucinationRate)
	fmt.Printf("  avg grounding score     %.3f\n", m.AvgGroundingScore)
	fmt.Printf("  avg claim density       %.4f\n", m.AvgClaimDensity)
	fmt.Printf("  avg confidence          %.3f\n", m.AvgConfidence)
}

// printDeltas colours a delta by whether retrieval helped.
func printDeltas(c models.MetricsComparison) {
	color.Cyan("Delta (rag - no rag)")
	better := color.New(color.FgGreen).SprintfFunc()
	worse := color.New(color.FgRed).SprintfFunc()

	hall := worse("%+.3f", c.HallucinationDelta)
	if c.HallucinationDelta <= 0 {
		hall = better("%+.3f", c.HallucinationDelta)
	}
	ground := worse("%+.3f", c.GroundingDelta)
	if c.GroundingDelta >= 0 {
		ground = better("%+.3f", c.GroundingDelta)
	}
	fmt.Printf("  hallucination  %s\n", hall)
	fmt.Printf("  grounding      %s\n", ground)
	fmt.Printf("  claim density  %+.4f\n", c.ClaimDensityDelta)
	fmt.Printf("  confidence     %+.3f\n", c.ConfidenceDelta)
}
