// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsl

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/nidm-export/internal/fsl/fsltest"
	"github.com/pdiddy/nidm-export/pkg/types"
)

// recorder is a Sink that keeps every record and the order of calls.
type recorder struct {
	calls      []string
	software   []types.Software
	thresholds []types.Thresholds
	models     []types.ModelFitting
	spaces     []types.SearchSpace
	pes        []types.ParameterEstimate
	contrasts  []types.Contrast
	excursions []types.ExcursionSet
	clusters   []types.Cluster
	peaks      []types.Peak
}

func (r *recorder) CreateSoftware(s types.Software) {
	r.calls = append(r.calls, "software")
	r.software = append(r.software, s)
}

func (r *recorder) CreateThresholds(t types.Thresholds) {
	r.calls = append(r.calls, "thresholds")
	r.thresholds = append(r.thresholds, t)
}

func (r *recorder) CreateModelFitting(m types.ModelFitting) {
	r.calls = append(r.calls, "model")
	r.models = append(r.models, m)
}

func (r *recorder) CreateSearchSpace(s types.SearchSpace) {
	r.calls = append(r.calls, "space")
	r.spaces = append(r.spaces, s)
}

func (r *recorder) CreateParameterEstimate(p types.ParameterEstimate) {
	r.calls = append(r.calls, "pe")
	r.pes = append(r.pes, p)
}

func (r *recorder) CreateContrast(c types.Contrast) {
	r.calls = append(r.calls, "contrast")
	r.contrasts = append(r.contrasts, c)
}

func (r *recorder) CreateExcursionSet(e types.ExcursionSet) {
	r.calls = append(r.calls, "excursion")
	r.excursions = append(r.excursions, e)
}

func (r *recorder) CreateCluster(c types.Cluster) {
	r.calls = append(r.calls, "cluster")
	r.clusters = append(r.clusters, c)
}

func (r *recorder) CreatePeak(p types.Peak) {
	r.calls = append(r.calls, "peak")
	r.peaks = append(r.peaks, p)
}

func TestScanSingleContrast(t *testing.T) {
	dir := fsltest.Write(t, fsltest.Options{Contrasts: []fsltest.Contrast{fsltest.OneContrast()}})
	rec := &recorder{}

	summary, err := NewScanner(FEAT, rec).Scan(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"software", "thresholds", "model", "space", "pe", "pe",
		"contrast", "excursion", "cluster", "cluster", "peak", "peak", "peak",
	}, rec.calls)

	assert.Equal(t, types.Software{Name: "FSL", Version: "6.00"}, rec.software[0])
	assert.Equal(t, types.ThresholdClusterwise, rec.thresholds[0].Kind)

	model := rec.models[0]
	assert.Equal(t, filepath.Join(dir, "stats", "sigmasquareds.nii.gz"), model.ResidualsMap)
	assert.Equal(t, 2, model.Regressors())
	assert.Len(t, model.DesignMatrix, 4)

	assert.Equal(t, types.SearchSpace{
		Mask:         filepath.Join(dir, "mask.nii.gz"),
		SearchVolume: 226981,
		ReselSize:    72.4,
		DLH:          0.0465,
	}, rec.spaces[0])

	c := rec.contrasts[0]
	assert.Equal(t, 1, c.Index)
	assert.Equal(t, "task > rest", c.Name)
	assert.Equal(t, []float64{1, -1}, c.Weights)
	assert.Equal(t, "[1, -1]", c.WeightsString())
	assert.Equal(t, 100.0, c.DOF)
	assert.Equal(t, filepath.Join(dir, "stats", "cope1.nii.gz"), c.ContrastMap)
	assert.Equal(t, filepath.Join(dir, "stats", "varcope1.nii.gz"), c.VarianceMap)
	assert.Equal(t, filepath.Join(dir, "stats", "tstat1.nii.gz"), c.StatisticMap)
	assert.Equal(t, filepath.Join(dir, "stats", "zstat1.nii.gz"), c.ZStatisticMap)

	assert.Equal(t, types.ExcursionSet{
		StatIndex:     1,
		Map:           filepath.Join(dir, "thresh_zstat1.nii.gz"),
		Visualisation: filepath.Join(dir, "rendered_thresh_zstat1.png"),
	}, rec.excursions[0])

	assert.Equal(t, ScanSummary{
		FeatVersion:        "6.00",
		ThresholdKind:      types.ThresholdClusterwise,
		Regressors:         2,
		ParameterEstimates: 2,
		Contrasts:          []ContrastSummary{{Index: 1, Name: "task > rest", Clusters: 2, Peaks: 3}},
	}, summary)
}

func TestScanContrastsInNumericOrder(t *testing.T) {
	var contrasts []fsltest.Contrast
	for _, n := range []int{10, 2, 1} {
		c := fsltest.OneContrast()
		c.Index = n
		c.Name = fmt.Sprintf("contrast %d", n)
		contrasts = append(contrasts, c)
	}
	dir := fsltest.Write(t, fsltest.Options{Contrasts: contrasts, Regressors: 11})
	rec := &recorder{}

	_, err := NewScanner(FEAT, rec).Scan(dir)
	require.NoError(t, err)

	var got []int
	for _, c := range rec.contrasts {
		got = append(got, c.Index)
	}
	assert.Equal(t, []int{1, 2, 10}, got)
	require.Len(t, rec.excursions, 3)
	assert.Equal(t, 10, rec.excursions[2].StatIndex)

	var pes []int
	for _, p := range rec.pes {
		pes = append(pes, p.Index)
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, pes)
}

func TestScanEveryContrastHasOneExcursionSet(t *testing.T) {
	contrasts := make([]fsltest.Contrast, 4)
	for i := range contrasts {
		contrasts[i] = fsltest.OneContrast()
	}
	dir := fsltest.Write(t, fsltest.Options{Contrasts: contrasts})
	rec := &recorder{}

	summary, err := NewScanner(FEAT, rec).Scan(dir)
	require.NoError(t, err)
	assert.Len(t, rec.contrasts, 4)
	assert.Len(t, rec.excursions, 4)
	assert.Len(t, summary.Contrasts, 4)

	for _, p := range rec.peaks {
		found := false
		for _, c := range rec.clusters {
			if c.StatIndex == p.StatIndex && c.ID == p.ClusterID {
				found = true
			}
		}
		assert.True(t, found, "peak %d of cluster %d in contrast %d has no cluster", p.Index, p.ClusterID, p.StatIndex)
	}
}

func TestScanNoThresholdedMaps(t *testing.T) {
	dir := fsltest.Write(t, fsltest.Options{})
	rec := &recorder{}

	summary, err := NewScanner(FEAT, rec).Scan(dir)
	require.NoError(t, err)
	assert.Empty(t, rec.contrasts)
	assert.Empty(t, summary.Contrasts)
	assert.Len(t, rec.pes, 2)
}

func TestScanWithoutRenderedImage(t *testing.T) {
	c := fsltest.OneContrast()
	c.Rendered = false
	dir := fsltest.Write(t, fsltest.Options{Contrasts: []fsltest.Contrast{c}})
	rec := &recorder{}

	_, err := NewScanner(FEAT, rec).Scan(dir)
	require.NoError(t, err)
	assert.Empty(t, rec.excursions[0].Visualisation)
}

func TestScanMissingArtifacts(t *testing.T) {
	tests := []struct {
		name    string
		remove  string
		wantErr error
	}{
		{"report", "report_poststats.html", ErrMissingArtifact},
		{"dof", "stats/dof", ErrMissingArtifact},
		{"design", "design.fsf", ErrMissingArtifact},
		{"design matrix", "design.mat", ErrMissingArtifact},
		{"residuals", "stats/sigmasquareds.nii.gz", ErrMissingArtifact},
		{"mask", "mask.nii.gz", ErrMissingArtifact},
		{"smoothness", "stats/smoothness", ErrMissingArtifact},
		{"variance map", "stats/varcope1.nii.gz", ErrMissingArtifact},
		{"z map", "stats/zstat1.nii.gz", ErrMissingArtifact},
		{"cluster table", "cluster_zstat1.txt", ErrMissingArtifact},
		{"standard peak table", "lmax_zstat1_std.txt", ErrMissingArtifact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := fsltest.Write(t, fsltest.Options{Contrasts: []fsltest.Contrast{fsltest.OneContrast()}})
			fsltest.Remove(t, dir, tt.remove)

			_, err := NewScanner(FEAT, &recorder{}).Scan(dir)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), filepath.Base(tt.remove))
		})
	}
}

func TestScanUnrecognizedReport(t *testing.T) {
	opts := fsltest.Options{
		Report:    "Post-stats were run with custom settings.",
		Contrasts: []fsltest.Contrast{fsltest.OneContrast()},
	}

	t.Run("fatal by default", func(t *testing.T) {
		dir := fsltest.Write(t, opts)
		rec := &recorder{}

		_, err := NewScanner(FEAT, rec).Scan(dir)
		require.ErrorIs(t, err, ErrUnrecognizedReport)
		assert.ErrorIs(t, err, ErrMissingMetadata)
		assert.Empty(t, rec.calls)
	})

	t.Run("lenient option", func(t *testing.T) {
		dir := fsltest.Write(t, opts)
		rec := &recorder{}

		summary, err := NewScanner(FEAT, rec, WithIncompleteThresholds(true)).Scan(dir)
		require.NoError(t, err)
		assert.Equal(t, types.ThresholdUnknown, summary.ThresholdKind)
		require.Len(t, rec.thresholds, 1)
		assert.Equal(t, types.Thresholds{Kind: types.ThresholdUnknown}, rec.thresholds[0])
		assert.Len(t, rec.contrasts, 1)
	})
}

func TestScanLegacyLayout(t *testing.T) {
	first := fsltest.OneContrast()
	second := fsltest.OneContrast()
	second.Name = "rest > task"
	second.Weights = []float64{-1, 1}
	dir := fsltest.Write(t, fsltest.Options{Legacy: true, Contrasts: []fsltest.Contrast{first, second}})
	rec := &recorder{}

	_, err := NewScanner(FEATLegacy, rec).Scan(dir)
	require.NoError(t, err)
	require.Len(t, rec.contrasts, 2)
	assert.Equal(t, "rest > task", rec.contrasts[1].Name)
	assert.Equal(t, []float64{-1, 1}, rec.contrasts[1].Weights)

	_, err = NewScanner(FEAT, &recorder{}).Scan(dir)
	assert.ErrorIs(t, err, ErrMissingArtifact, "design.fsf is not written for the legacy layout")
}

func TestScanImageExtension(t *testing.T) {
	dir := fsltest.Write(t, fsltest.Options{})
	fsltest.WriteFile(t, dir, "mask.nii", "nii")
	fsltest.WriteFile(t, dir, "stats/sigmasquareds.nii", "nii")
	fsltest.WriteFile(t, dir, "stats/pe1.nii", "nii")
	rec := &recorder{}

	_, err := NewScanner(FEAT.WithImageExt(".nii"), rec).Scan(dir)
	require.NoError(t, err)
	require.Len(t, rec.pes, 1)
	assert.Equal(t, filepath.Join(dir, "stats", "pe1.nii"), rec.pes[0].Map)
}

func TestDiscoverDuplicateIndex(t *testing.T) {
	dir := t.TempDir()
	fsltest.WriteFile(t, dir, "pe1.nii.gz", "nii")
	fsltest.WriteFile(t, dir, "pe01.nii.gz", "nii")

	_, err := discover(dir, FEAT.pePattern(), FEAT.peIndex())
	assert.ErrorIs(t, err, ErrMissingMetadata)
}

func TestDiscoverSkipsNonMatching(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"pe3.nii.gz", "pe1.nii.gz", "pe2.nii", "pe.nii.gz", "pe10.nii.gz", "res4d.nii.gz"} {
		fsltest.WriteFile(t, dir, name, "nii")
	}

	found, err := discover(dir, FEAT.pePattern(), FEAT.peIndex())
	require.NoError(t, err)
	var got []int
	for _, a := range found {
		got = append(got, a.Index)
	}
	assert.Equal(t, []int{1, 3, 10}, got)
}
