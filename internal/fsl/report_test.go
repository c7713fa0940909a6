// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsl

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/nidm-export/internal/fsl/fsltest"
	"github.com/pdiddy/nidm-export/pkg/types"
)

func TestParseReportVoxelwise(t *testing.T) {
	html := fsltest.ReportHTML(fsltest.VoxelwiseReport("6.00", "0.050"))

	rep, err := ParseReport(strings.NewReader(html), FEAT)
	require.NoError(t, err)

	assert.Equal(t, "6.00", rep.FeatVersion)
	th := rep.Thresholds
	assert.Equal(t, types.ThresholdVoxelwise, th.Kind)
	require.NotNil(t, th.VoxelPCorr)
	assert.InDelta(t, 0.05, *th.VoxelPCorr, 1e-12)
	assert.Nil(t, th.VoxelThreshold)
	assert.Nil(t, th.VoxelPUncorr)
	require.NotNil(t, th.Extent)
	assert.Equal(t, 0.0, *th.Extent)
	require.NotNil(t, th.ExtentPCorr)
	assert.Equal(t, 1.0, *th.ExtentPCorr)
	require.NotNil(t, th.ExtentPUncorr)
	assert.Equal(t, 1.0, *th.ExtentPUncorr)
}

func TestParseReportClusterwise(t *testing.T) {
	html := fsltest.ReportHTML(fsltest.ClusterwiseReport("5.98", "2.30", "0.01"))

	rep, err := ParseReport(strings.NewReader(html), FEAT)
	require.NoError(t, err)

	assert.Equal(t, "5.98", rep.FeatVersion)
	th := rep.Thresholds
	assert.Equal(t, types.ThresholdClusterwise, th.Kind)
	require.NotNil(t, th.VoxelThreshold)
	assert.InDelta(t, 2.30, *th.VoxelThreshold, 1e-12)
	require.NotNil(t, th.ExtentPCorr)
	assert.InDelta(t, 0.01, *th.ExtentPCorr, 1e-12)
	assert.Nil(t, th.VoxelPCorr)
	assert.Nil(t, th.VoxelPUncorr)
	assert.Nil(t, th.Extent)
	assert.Nil(t, th.ExtentPUncorr)
}

func TestParseReportIgnoresLinkText(t *testing.T) {
	intro := fsltest.VoxelwiseReport("4.10", "0.001")
	html := `<html><body>
<a href="old.html">` + fsltest.ClusterwiseReport("9.99", "3.1", "0.5") + `</a>
<p>` + intro + `</p>
</body></html>`

	rep, err := ParseReport(strings.NewReader(html), FEAT)
	require.NoError(t, err)

	assert.Equal(t, "4.10", rep.FeatVersion)
	assert.Equal(t, types.ThresholdVoxelwise, rep.Thresholds.Kind)
	assert.Equal(t, []string{"old.html"}, rep.Links)
	require.Len(t, rep.LinkText, 1)
	assert.Contains(t, rep.LinkText[0], "9.99")
}

func TestParseReportAnchorWithoutHref(t *testing.T) {
	html := `<html><body><a name="top"><h2>Post-stats</h2>
<p>` + fsltest.ClusterwiseReport("6.00", "3.1", "0.05") + `</p></body></html>`

	rep, err := ParseReport(strings.NewReader(html), FEAT)
	require.NoError(t, err)
	assert.Equal(t, "6.00", rep.FeatVersion)
	assert.Equal(t, types.ThresholdClusterwise, rep.Thresholds.Kind)
	assert.Empty(t, rep.Links)
	assert.Empty(t, rep.LinkText)
}

func TestParseReportFirstMatchWins(t *testing.T) {
	html := "<p>" + fsltest.ClusterwiseReport("6.00", "3.1", "0.05") + "</p><p>" +
		fsltest.VoxelwiseReport("5.00", "0.01") + "</p>"

	rep, err := ParseReport(strings.NewReader(html), FEAT)
	require.NoError(t, err)
	assert.Equal(t, "6.00", rep.FeatVersion)
	assert.Equal(t, types.ThresholdClusterwise, rep.Thresholds.Kind)
}

func TestParseReportCollectsLinks(t *testing.T) {
	html := fsltest.ReportHTML(fsltest.ClusterwiseReport("6.00", "2.3", "0.05"))

	rep, err := ParseReport(strings.NewReader(html), FEAT)
	require.NoError(t, err)
	assert.Equal(t, []string{"report.html", "http://www.fmrib.ox.ac.uk/fsl"}, rep.Links)
}

func TestParseReportUnrecognized(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"empty", ""},
		{"no intro", "<html><body><p>Nothing to see here.</p></body></html>"},
		{"intro only inside link", `<a href="x">` + fsltest.VoxelwiseReport("6.00", "0.05") + `</a>`},
		{"p-value without decimals", "<p>" + fsltest.VoxelwiseReport("6.00", "1") + "</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReport(strings.NewReader(tt.html), FEAT)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnrecognizedReport)
			assert.ErrorIs(t, err, ErrMissingMetadata)
			assert.NotErrorIs(t, err, ErrMissingArtifact)
		})
	}
}

func TestReadReport(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := ReadReport(filepath.Join(t.TempDir(), "report_poststats.html"), FEAT)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingArtifact)
	})

	t.Run("unrecognized names the file", func(t *testing.T) {
		dir := t.TempDir()
		fsltest.WriteFile(t, dir, "report_poststats.html", "<p>no thresholds</p>")
		path := filepath.Join(dir, "report_poststats.html")

		_, err := ReadReport(path, FEAT)
		var me *MetadataError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, path, me.Path)
		assert.Equal(t, ReasonAbsent, me.Reason)
	})
}
