// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/nidm-export/internal/pipeline"
	"github.com/pdiddy/nidm-export/internal/provenance"
	"github.com/pdiddy/nidm-export/internal/render"
)

var exportCmd = &cobra.Command{
	Use:   "export <results-dir>...",
	Short: "Convert FEAT results directories into NIDM graphs",
	Long: `Export scans each FEAT results directory and writes its NIDM graph
(nidm.provn, nidm.json, nidm.yaml, nidm.dot, design_matrix.csv) into
<results-dir>/nidm, or into --export-dir. Every run is recorded in the
SQLite database (default <export dir>/nidm.db).

A directory with a missing file or unreadable metadata is reported and
nothing is written for it; the remaining directories are still converted.
With --render the graph is also drawn to nidm.png using a local dot
binary or a graphviz container.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := exportConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var renderer provenance.Renderer
	if cfg.Render.Enabled {
		r, err := render.New(ctx, cfg.Render)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Graph rendering disabled: %v\n", err)
		} else {
			logger.Debug("graph renderer selected", zap.String("renderer", r.Name()))
			renderer = r
		}
	}

	conv, err := pipeline.NewConverter(cfg, renderer, logger)
	if err != nil {
		return err
	}
	result := conv.ConvertBatch(ctx, args, os.Stdout)
	if result.HasFailures() {
		return fmt.Errorf("%d of %d directories failed", result.Failed, result.Total())
	}
	return nil
}

func init() {
	addConfigFlags(exportCmd)
	exportCmd.Flags().String("export-dir", "", "directory for the graph files (default <results-dir>/nidm)")
	exportCmd.Flags().String("db", "", "SQLite database recording every run (default <export dir>/nidm.db)")
	exportCmd.Flags().Bool("render", false, "also draw the graph to nidm.png")
	exportCmd.Flags().String("render-runtime", "", "renderer: auto, dot, docker or podman (default auto)")
	exportCmd.Flags().String("render-image", "", "graphviz container image (default "+render.DefaultImage+")")

	rootCmd.AddCommand(exportCmd)
}
