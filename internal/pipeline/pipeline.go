// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline converts FEAT results directories into persisted NIDM
// graphs: scan, then persist only if the scan succeeded.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pdiddy/nidm-export/internal/fsl"
	"github.com/pdiddy/nidm-export/internal/provenance"
	"github.com/pdiddy/nidm-export/pkg/types"
)

// exportSubdir is the default export directory inside a results directory.
const exportSubdir = "nidm"

var validate = validator.New()

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() types.ExportConfig {
	return types.ExportConfig{
		Layout: fsl.FEAT.Name,
		Render: types.RenderConfig{Runtime: types.RenderAuto},
	}
}

// ValidateConfig checks cfg field constraints.
func ValidateConfig(cfg types.ExportConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Converter turns results directories into persisted graphs.
type Converter struct {
	cfg      types.ExportConfig
	layout   fsl.Layout
	renderer provenance.Renderer
	logger   *zap.Logger
}

// NewConverter validates cfg and resolves its layout. renderer may be nil.
func NewConverter(cfg types.ExportConfig, renderer provenance.Renderer, logger *zap.Logger) (*Converter, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	layout, err := fsl.LayoutByName(cfg.Layout)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{
		cfg:      cfg,
		layout:   layout.WithImageExt(cfg.ImageExt),
		renderer: renderer,
		logger:   logger,
	}, nil
}

// Result describes one converted directory.
type Result struct {
	Dir     string
	Summary fsl.ScanSummary
	Persist provenance.PersistResult
}

// Convert scans dir and persists its graph into exportDir (default
// dir/nidm). A scan error leaves nothing on disk.
func (c *Converter) Convert(ctx context.Context, dir, exportDir string) (Result, error) {
	if exportDir == "" {
		exportDir = filepath.Join(dir, exportSubdir)
	}
	log := c.logger.With(zap.String("dir", dir))

	graph := provenance.NewGraph(dir, log)
	scanner := fsl.NewScanner(c.layout, graph,
		fsl.WithLogger(log),
		fsl.WithIncompleteThresholds(c.cfg.AllowIncompleteThresholds))

	summary, err := scanner.Scan(dir)
	if err != nil {
		return Result{Dir: dir}, fmt.Errorf("scanning %s: %w", dir, err)
	}

	res, err := graph.Persist(ctx, provenance.PersistConfig{
		ExportDir: exportDir,
		Database:  c.cfg.Database,
		Renderer:  c.renderer,
	})
	if err != nil {
		return Result{Dir: dir, Summary: summary}, fmt.Errorf("persisting %s: %w", dir, err)
	}
	return Result{Dir: dir, Summary: summary, Persist: res}, nil
}

// BatchResult holds the outcome of a batch conversion.
type BatchResult struct {
	Converted int
	Failed    int
}

// Total returns the number of directories processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Failed
}

// HasFailures reports whether any directory failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// ConvertBatch converts each directory in turn, printing one status line per
// directory to w. A failing directory does not stop the batch. With more
// than one directory and a configured export directory, each graph goes to
// a subdirectory named after its results directory.
func (c *Converter) ConvertBatch(ctx context.Context, dirs []string, w io.Writer) BatchResult {
	var result BatchResult
	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			fmt.Fprintf(w, "failed:    %s (%v)\n", dir, err)
			result.Failed++
			continue
		}

		exportDir := c.cfg.ExportDir
		if exportDir != "" && len(dirs) > 1 {
			exportDir = filepath.Join(exportDir, filepath.Base(filepath.Clean(dir)))
		}

		res, err := c.Convert(ctx, dir, exportDir)
		if err != nil {
			fmt.Fprintf(w, "failed:    %s (%v)\n", dir, err)
			result.Failed++
			continue
		}
		fmt.Fprintf(w, "converted: %s -> %s (%d contrasts, run %s)\n",
			dir, filepath.Dir(res.Persist.Files[0]), len(res.Summary.Contrasts), res.Persist.RunID)
		result.Converted++
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d failed (total: %d)\n",
		result.Converted, result.Failed, result.Total())
	return result
}

// Inspect scans dir without persisting anything.
func (c *Converter) Inspect(dir string) (fsl.ScanSummary, error) {
	scanner := fsl.NewScanner(c.layout, discard{},
		fsl.WithLogger(c.logger),
		fsl.WithIncompleteThresholds(c.cfg.AllowIncompleteThresholds))
	return scanner.Scan(dir)
}

var (
	_ fsl.Sink = (*provenance.Graph)(nil)
	_ fsl.Sink = discard{}
)

// discard is a sink that drops every record.
type discard struct{}

func (discard) CreateSoftware(types.Software)                   {}
func (discard) CreateThresholds(types.Thresholds)               {}
func (discard) CreateModelFitting(types.ModelFitting)           {}
func (discard) CreateSearchSpace(types.SearchSpace)             {}
func (discard) CreateParameterEstimate(types.ParameterEstimate) {}
func (discard) CreateContrast(types.Contrast)                   {}
func (discard) CreateExcursionSet(types.ExcursionSet)           {}
func (discard) CreateCluster(types.Cluster)                     {}
func (discard) CreatePeak(types.Peak)                           {}
