// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fsl recovers NIDM provenance records from an FSL FEAT results
// directory. It parses the status report, the design files and the cluster
// tables, and hands every record to a Sink in dependency order.
package fsl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/pdiddy/nidm-export/pkg/types"
)

// softwareName is the agent recorded for every FEAT directory.
const softwareName = "FSL"

// Sink receives records as soon as they are built. Slices inside a record
// are shared with the scanner and must not be modified.
type Sink interface {
	CreateSoftware(types.Software)
	CreateThresholds(types.Thresholds)
	CreateModelFitting(types.ModelFitting)
	CreateSearchSpace(types.SearchSpace)
	CreateParameterEstimate(types.ParameterEstimate)
	CreateContrast(types.Contrast)
	CreateExcursionSet(types.ExcursionSet)
	CreateCluster(types.Cluster)
	CreatePeak(types.Peak)
}

// Scanner walks one results directory per Scan call. A Scanner holds no
// state between calls; distinct directories may be scanned concurrently
// with distinct sinks.
type Scanner struct {
	layout          Layout
	sink            Sink
	logger          *zap.Logger
	allowIncomplete bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the structured logger (default: no-op).
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithIncompleteThresholds lets Scan continue when the status report
// matches neither threshold template. The thresholds are then emitted with
// kind "unknown" and a warning is logged.
func WithIncompleteThresholds(allow bool) Option {
	return func(s *Scanner) { s.allowIncomplete = allow }
}

// NewScanner creates a Scanner emitting records for layout l into sink.
func NewScanner(l Layout, sink Sink, opts ...Option) *Scanner {
	s := &Scanner{layout: l, sink: sink, logger: zap.NewNop()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ContrastSummary counts what one contrast contributed to the graph.
type ContrastSummary struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	Clusters int    `json:"clusters"`
	Peaks    int    `json:"peaks"`
}

// ScanSummary describes a completed scan.
type ScanSummary struct {
	FeatVersion        string              `json:"feat_version"`
	ThresholdKind      types.ThresholdKind `json:"threshold_kind"`
	Regressors         int                 `json:"regressors"`
	ParameterEstimates int                 `json:"parameter_estimates"`
	Contrasts          []ContrastSummary   `json:"contrasts"`
}

// Scan reads dir in a fixed order (report, model fitting, search space,
// parameter estimates, then each contrast in ascending index order with
// its excursion set, clusters and peaks) and emits each record to the sink
// as soon as it is built. Any error aborts the scan; records already emitted
// must then be discarded by the caller.
func (s *Scanner) Scan(dir string) (ScanSummary, error) {
	var summary ScanSummary
	l := s.layout
	log := s.logger.With(zap.String("dir", dir), zap.String("layout", l.Name))

	report, err := ReadReport(filepath.Join(dir, l.ReportFile), l)
	if err != nil {
		if !errors.Is(err, ErrUnrecognizedReport) || !s.allowIncomplete {
			return summary, fmt.Errorf("reading status report: %w", err)
		}
		log.Warn("status report matches no threshold template, thresholds left undefined", zap.Error(err))
		report.Thresholds = types.Thresholds{Kind: types.ThresholdUnknown}
	}
	s.sink.CreateSoftware(types.Software{Name: softwareName, Version: report.FeatVersion})
	s.sink.CreateThresholds(report.Thresholds)
	summary.FeatVersion = report.FeatVersion
	summary.ThresholdKind = report.Thresholds.Kind
	log.Debug("thresholds", zap.String("kind", string(report.Thresholds.Kind)), zap.String("feat_version", report.FeatVersion))

	model, err := s.modelFitting(dir)
	if err != nil {
		return summary, fmt.Errorf("building model fitting: %w", err)
	}
	s.sink.CreateModelFitting(model)
	summary.Regressors = model.Regressors()

	space, err := s.searchSpace(dir)
	if err != nil {
		return summary, fmt.Errorf("building search space: %w", err)
	}
	s.sink.CreateSearchSpace(space)

	pes, err := discover(filepath.Join(dir, l.StatsDir), l.pePattern(), l.peIndex())
	if err != nil {
		return summary, fmt.Errorf("finding parameter estimates: %w", err)
	}
	for _, pe := range pes {
		s.sink.CreateParameterEstimate(types.ParameterEstimate{Index: pe.Index, Map: pe.Path})
	}
	summary.ParameterEstimates = len(pes)
	log.Debug("parameter estimates", zap.Int("count", len(pes)))

	threshMaps, err := discover(dir, l.threshPattern(), l.threshIndex())
	if err != nil {
		return summary, fmt.Errorf("finding thresholded statistic maps: %w", err)
	}
	if len(threshMaps) == 0 {
		log.Info("no thresholded statistic maps found")
		return summary, nil
	}

	design, err := NewDesignReader(filepath.Join(dir, l.DesignFile), l.DesignFormat, filepath.Join(dir, l.DOFFile))
	if err != nil {
		return summary, fmt.Errorf("reading design: %w", err)
	}

	for _, tm := range threshMaps {
		cs, err := s.contrast(dir, design, tm)
		if err != nil {
			return summary, fmt.Errorf("contrast %d: %w", tm.Index, err)
		}
		summary.Contrasts = append(summary.Contrasts, cs)
		log.Debug("contrast",
			zap.Int("index", cs.Index),
			zap.String("name", cs.Name),
			zap.Int("clusters", cs.Clusters),
			zap.Int("peaks", cs.Peaks))
	}

	log.Info("scan complete",
		zap.Int("parameter_estimates", summary.ParameterEstimates),
		zap.Int("contrasts", len(summary.Contrasts)))
	return summary, nil
}

func (s *Scanner) modelFitting(dir string) (types.ModelFitting, error) {
	l := s.layout
	residuals := l.image(dir, l.Residuals)
	if err := requireFile(residuals); err != nil {
		return types.ModelFitting{}, err
	}
	matPath := filepath.Join(dir, l.DesignMatrixFile)
	matrix, err := ReadDesignMatrix(matPath, l.DesignMatrixHeader)
	if err != nil {
		return types.ModelFitting{}, err
	}
	return types.ModelFitting{
		ResidualsMap:     residuals,
		DesignMatrixFile: matPath,
		DesignMatrix:     matrix,
	}, nil
}

func (s *Scanner) searchSpace(dir string) (types.SearchSpace, error) {
	l := s.layout
	mask := l.image(dir, l.Mask)
	if err := requireFile(mask); err != nil {
		return types.SearchSpace{}, err
	}
	sm, err := ReadSmoothness(filepath.Join(dir, l.SmoothnessFile))
	if err != nil {
		return types.SearchSpace{}, err
	}
	return types.SearchSpace{
		Mask:         mask,
		SearchVolume: int(sm.Volume),
		ReselSize:    sm.Resels,
		DLH:          sm.DLH,
	}, nil
}

func (s *Scanner) contrast(dir string, design *DesignReader, tm artifact) (ContrastSummary, error) {
	l := s.layout
	n := tm.Index

	meta, err := design.Contrast(n)
	if err != nil {
		return ContrastSummary{}, err
	}
	c := types.Contrast{
		Index:         n,
		Name:          meta.Name,
		Weights:       meta.Weights,
		DOF:           meta.DOF,
		ContrastMap:   l.statsImage(dir, l.ContrastPrefix, n),
		VarianceMap:   l.statsImage(dir, l.VariancePrefix, n),
		StatisticMap:  l.statsImage(dir, l.StatisticPrefix, n),
		ZStatisticMap: l.statsImage(dir, l.ZStatisticPrefix, n),
	}
	for _, p := range []string{c.ContrastMap, c.VarianceMap, c.StatisticMap, c.ZStatisticMap} {
		if err := requireFile(p); err != nil {
			return ContrastSummary{}, err
		}
	}

	join, err := JoinClusters(dir, l, n)
	if err != nil {
		return ContrastSummary{}, err
	}

	excursion := types.ExcursionSet{StatIndex: n, Map: tm.Path}
	rendered := filepath.Join(dir, l.RenderedPrefix+l.threshName(n)+l.RasterExt)
	if _, err := os.Stat(rendered); err == nil {
		excursion.Visualisation = rendered
	}

	s.sink.CreateContrast(c)
	s.sink.CreateExcursionSet(excursion)
	for _, cl := range join.Clusters {
		s.sink.CreateCluster(cl)
	}
	for _, p := range join.Peaks {
		s.sink.CreatePeak(p)
	}

	return ContrastSummary{Index: n, Name: c.Name, Clusters: len(join.Clusters), Peaks: len(join.Peaks)}, nil
}

// artifact is a discovered file with the index embedded in its name.
type artifact struct {
	Index int
	Path  string
}

// discover lists the files of dir matching pattern and returns them in
// ascending order of the index captured by re.
func discover(dir, pattern string, re *regexp.Regexp) ([]artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ArtifactError{Path: dir, Err: err}
	}

	byIndex := make(map[int]string)
	var found []artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ok, _ := doublestar.Match(pattern, name); !ok {
			continue
		}
		m := re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		if prev, dup := byIndex[n]; dup {
			return nil, &MetadataError{
				Path:   filepath.Join(dir, name),
				Field:  "index " + m[1],
				Reason: ReasonMismatch,
				Detail: "also claimed by " + prev,
			}
		}
		byIndex[n] = name
		found = append(found, artifact{Index: n, Path: filepath.Join(dir, name)})
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Index < found[j].Index })
	return found, nil
}
