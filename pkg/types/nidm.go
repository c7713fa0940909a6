// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines the records recovered from an FSL FEAT results
// directory. Each record becomes one node of the NIDM provenance graph.
// Records are plain values: they are built once by the scanner, handed to
// the graph sink and never modified afterwards.
package types

import (
	"strconv"
	"strings"
)

// ThresholdKind identifies which inference threshold template matched the
// FEAT status report.
type ThresholdKind string

const (
	ThresholdVoxelwise   ThresholdKind = "voxelwise"
	ThresholdClusterwise ThresholdKind = "clusterwise"
	// ThresholdUnknown marks a report that matched neither template. It is
	// only ever emitted when incomplete thresholds are explicitly allowed.
	ThresholdUnknown ThresholdKind = "unknown"
)

// Software describes the analysis package that produced the results.
type Software struct {
	// Name is the package name (e.g. "FSL").
	Name string `json:"name" yaml:"name"`

	// Version is the FEAT version string from the status report (e.g. "6.00").
	Version string `json:"version" yaml:"version"`
}

// Thresholds holds the height and extent thresholds of the inference.
// Kind decides which side is authoritative: voxelwise inference sets
// VoxelPCorr and leaves the extent at its trivial values (0 voxels, p=1);
// clusterwise inference sets VoxelThreshold and ExtentPCorr and leaves
// every voxel p-value nil.
type Thresholds struct {
	Kind ThresholdKind `json:"kind" yaml:"kind"`

	// VoxelThreshold is the Z height threshold (clusterwise only).
	VoxelThreshold *float64 `json:"voxel_threshold,omitempty" yaml:"voxel_threshold,omitempty"`
	VoxelPUncorr   *float64 `json:"voxel_p_uncorr,omitempty" yaml:"voxel_p_uncorr,omitempty"`
	VoxelPCorr     *float64 `json:"voxel_p_corr,omitempty" yaml:"voxel_p_corr,omitempty"`

	// Extent is the cluster-extent threshold in voxels.
	Extent        *float64 `json:"extent,omitempty" yaml:"extent,omitempty"`
	ExtentPUncorr *float64 `json:"extent_p_uncorr,omitempty" yaml:"extent_p_uncorr,omitempty"`
	ExtentPCorr   *float64 `json:"extent_p_corr,omitempty" yaml:"extent_p_corr,omitempty"`
}

// ModelFitting is the GLM estimation step: one per results directory.
type ModelFitting struct {
	// ResidualsMap is the path of the residual variance image.
	ResidualsMap string `json:"residuals_map" yaml:"residuals_map"`

	// DesignMatrixFile is the path of design.mat.
	DesignMatrixFile string `json:"design_matrix_file" yaml:"design_matrix_file"`

	// DesignMatrix has one row per observation and one column per regressor.
	DesignMatrix [][]float64 `json:"design_matrix" yaml:"design_matrix"`
}

// Regressors returns the number of design matrix columns.
func (m ModelFitting) Regressors() int {
	if len(m.DesignMatrix) == 0 {
		return 0
	}
	return len(m.DesignMatrix[0])
}

// ParameterEstimate is one regressor's beta map.
type ParameterEstimate struct {
	// Index is the 1-based regressor number parsed from the filename.
	Index int    `json:"index" yaml:"index"`
	Map   string `json:"map" yaml:"map"`
}

// Contrast is one T-contrast with its estimation outputs.
type Contrast struct {
	// Index is the 1-based contrast number shared by every per-contrast file.
	Index   int       `json:"index" yaml:"index"`
	Name    string    `json:"name" yaml:"name"`
	Weights []float64 `json:"weights" yaml:"weights"`

	// DOF is the error degrees of freedom from stats/dof.
	DOF float64 `json:"dof" yaml:"dof"`

	ContrastMap   string `json:"contrast_map" yaml:"contrast_map"`
	VarianceMap   string `json:"variance_map" yaml:"variance_map"`
	StatisticMap  string `json:"statistic_map" yaml:"statistic_map"`
	ZStatisticMap string `json:"z_statistic_map" yaml:"z_statistic_map"`
}

// WeightsString renders the weight vector as "[1, 0, -1]".
func (c Contrast) WeightsString() string {
	parts := make([]string, len(c.Weights))
	for i, w := range c.Weights {
		parts[i] = strconv.FormatFloat(w, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// SearchSpace is the analysis mask with its smoothness estimates.
type SearchSpace struct {
	Mask string `json:"mask" yaml:"mask"`

	// SearchVolume is the number of voxels in the mask.
	SearchVolume int `json:"search_volume" yaml:"search_volume"`

	// ReselSize is the size of one resel in voxels.
	ReselSize float64 `json:"resel_size" yaml:"resel_size"`

	// DLH is the smoothness estimate reported by smoothest.
	DLH float64 `json:"dlh" yaml:"dlh"`
}

// ExcursionSet is the thresholded statistic map of one contrast.
type ExcursionSet struct {
	StatIndex int    `json:"stat_index" yaml:"stat_index"`
	Map       string `json:"map" yaml:"map"`

	// Visualisation is the rendered overlay image, empty when FEAT did not
	// produce one.
	Visualisation string `json:"visualisation,omitempty" yaml:"visualisation,omitempty"`
}

// Cluster is one row of the joined native/standard cluster tables.
type Cluster struct {
	StatIndex int `json:"stat_index" yaml:"stat_index"`

	// ID comes from the table's first column and is unique per excursion set.
	ID     int        `json:"id" yaml:"id"`
	Size   int        `json:"size" yaml:"size"`
	PFWER  float64    `json:"p_fwer" yaml:"p_fwer"`
	COG    [3]float64 `json:"cog" yaml:"cog"`
	COGStd [3]float64 `json:"cog_std" yaml:"cog_std"`
}

// Peak is one local maximum from the joined native/standard lmax tables.
type Peak struct {
	StatIndex int `json:"stat_index" yaml:"stat_index"`
	ClusterID int `json:"cluster_id" yaml:"cluster_id"`

	// Index is 1-based within the owning cluster.
	Index    int        `json:"index" yaml:"index"`
	EquivZ   float64    `json:"equiv_z" yaml:"equiv_z"`
	Coord    [3]int     `json:"coord" yaml:"coord"`
	CoordStd [3]float64 `json:"coord_std" yaml:"coord_std"`
}
