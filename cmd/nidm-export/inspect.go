// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/nidm-export/internal/fsl"
	"github.com/pdiddy/nidm-export/internal/pipeline"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <results-dir>",
	Short: "Scan a results directory without writing anything",
	Long: `Inspect runs the same scan as export and prints what the graph would
contain: FEAT version, threshold kind, regressors, parameter estimates, and
the clusters and peaks of each contrast. Nothing is written.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := exportConfig(cmd)
	if err != nil {
		return err
	}
	conv, err := pipeline.NewConverter(cfg, nil, logger)
	if err != nil {
		return err
	}
	summary, err := conv.Inspect(args[0])
	if err != nil {
		return err
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	printSummary(os.Stdout, args[0], summary)
	return nil
}

func printSummary(w io.Writer, dir string, s fsl.ScanSummary) {
	fmt.Fprintf(w, "Directory:            %s\n", dir)
	fmt.Fprintf(w, "FEAT version:         %s\n", s.FeatVersion)
	fmt.Fprintf(w, "Thresholds:           %s\n", s.ThresholdKind)
	fmt.Fprintf(w, "Regressors:           %d\n", s.Regressors)
	fmt.Fprintf(w, "Parameter estimates:  %d\n", s.ParameterEstimates)
	fmt.Fprintln(w)

	if len(s.Contrasts) == 0 {
		fmt.Fprintln(w, "No thresholded contrasts found.")
		return
	}

	fmt.Fprintf(w, "%-5s  %-40s  %8s  %6s\n", "Index", "Contrast", "Clusters", "Peaks")
	fmt.Fprintln(w, strings.Repeat("-", 65))
	for _, c := range s.Contrasts {
		name := c.Name
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		fmt.Fprintf(w, "%-5d  %-40s  %8d  %6d\n", c.Index, name, c.Clusters, c.Peaks)
	}
	fmt.Fprintf(w, "\n%d contrasts\n", len(s.Contrasts))
}

func init() {
	addConfigFlags(inspectCmd)
	inspectCmd.Flags().Bool("json", false, "output the summary as JSON")

	rootCmd.AddCommand(inspectCmd)
}
