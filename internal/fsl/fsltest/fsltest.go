// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fsltest builds synthetic FEAT results directories for tests.
package fsltest

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// Peak is one lmax row. The standard-space row mirrors it unless
// CoordStd is set.
type Peak struct {
	Z        float64
	Coord    [3]int
	CoordStd [3]float64
}

// Cluster is one cluster table row with its peaks.
type Cluster struct {
	ID     int
	Size   int
	P      float64
	COG    [3]float64
	COGStd [3]float64
	Peaks  []Peak
}

// Contrast describes everything FEAT writes for one contrast.
type Contrast struct {
	// Index defaults to the position in Options.Contrasts plus one.
	Index    int
	Name     string
	Weights  []float64
	Clusters []Cluster
	Rendered bool
}

// Options controls what Write produces.
type Options struct {
	// Report is the narrative sentence of the status report. Empty means a
	// clusterwise report with Z>2.3 and P=0.05.
	Report string

	// Legacy writes design.con instead of design.fsf.
	Legacy bool

	// Regressors is the design matrix width (default 2).
	Regressors int

	// Rows is the number of design matrix rows (default 4).
	Rows int

	DOF       string
	Contrasts []Contrast
}

// ClusterwiseReport returns a FEAT intro sentence for cluster thresholding.
func ClusterwiseReport(version, z, p string) string {
	return "FMRI data processing was carried out using FEAT (FMRI Expert Analysis Tool) Version " + version +
		", part of FSL (FMRIB's Software Library). Z (Gaussianised T/F) statistic images were thresholded" +
		" using clusters determined by Z&gt;" + z + " and a (corrected) cluster significance threshold of P=" + p +
		" (Worsley 2001)."
}

// VoxelwiseReport returns a FEAT intro sentence for voxel thresholding.
func VoxelwiseReport(version, p string) string {
	return "FMRI data processing was carried out using FEAT (FMRI Expert Analysis Tool) Version " + version +
		", part of FSL (FMRIB's Software Library). Z (Gaussianised T/F) statistic images were thresholded" +
		" using GRF-theory-based maximum height thresholding with a corrected significance threshold of P=" + p +
		" (Worsley 2001)."
}

// ReportHTML wraps an intro sentence in a report page with surrounding
// hyperlinks.
func ReportHTML(intro string) string {
	return `<HTML><HEAD><TITLE>FSL</TITLE></HEAD><BODY>
<a href="report.html" target="_top">Up to main FEAT report</a>
<hr><h2>Post-stats</h2>
<p>` + intro + `
<a href="http://www.fmrib.ox.ac.uk/fsl">www.fmrib.ox.ac.uk/fsl</a>
</BODY></HTML>
`
}

// OneContrast is a single contrast with two clusters, the first holding two
// peaks.
func OneContrast() Contrast {
	return Contrast{
		Name:    "task > rest",
		Weights: []float64{1, -1},
		Clusters: []Cluster{
			{
				ID: 2, Size: 1200, P: 1.2e-10,
				COG: [3]float64{30.5, 40.25, 20}, COGStd: [3]float64{-12.5, 18, 44.75},
				Peaks: []Peak{
					{Z: 5.1, Coord: [3]int{31, 41, 22}, CoordStd: [3]float64{-12, 18, 46}},
					{Z: 4.2, Coord: [3]int{28, 38, 19}, CoordStd: [3]float64{-16, 14, 40}},
				},
			},
			{
				ID: 1, Size: 300, P: 0.003,
				COG: [3]float64{60, 22, 30}, COGStd: [3]float64{48, -20, 10},
				Peaks: []Peak{
					{Z: 3.9, Coord: [3]int{61, 23, 31}, CoordStd: [3]float64{50, -18, 12}},
				},
			},
		},
		Rendered: true,
	}
}

// Write builds a results directory under t.TempDir and returns its path.
func Write(t *testing.T, opts Options) string {
	t.Helper()
	dir := t.TempDir()

	if opts.Report == "" {
		opts.Report = ClusterwiseReport("6.00", "2.3", "0.05")
	}
	if opts.Regressors == 0 {
		opts.Regressors = 2
	}
	if opts.Rows == 0 {
		opts.Rows = 4
	}
	if opts.DOF == "" {
		opts.DOF = "100"
	}
	for i := range opts.Contrasts {
		if opts.Contrasts[i].Index == 0 {
			opts.Contrasts[i].Index = i + 1
		}
	}

	WriteFile(t, dir, "report_poststats.html", ReportHTML(opts.Report))
	WriteFile(t, dir, "design.mat", designMatrix(opts.Regressors, opts.Rows))
	if opts.Legacy {
		WriteFile(t, dir, "design.con", designCon(opts))
	} else {
		WriteFile(t, dir, "design.fsf", designFSF(opts))
	}
	WriteFile(t, dir, "mask.nii.gz", "nii")
	WriteFile(t, dir, "stats/sigmasquareds.nii.gz", "nii")
	WriteFile(t, dir, "stats/smoothness", "DLH 0.0465\nVOLUME 226981\nRESELS 72.4\n")
	WriteFile(t, dir, "stats/dof", opts.DOF+"\n")
	for i := 1; i <= opts.Regressors; i++ {
		WriteFile(t, dir, fmt.Sprintf("stats/pe%d.nii.gz", i), "nii")
	}

	for _, c := range opts.Contrasts {
		n := c.Index
		for _, prefix := range []string{"cope", "varcope", "tstat", "zstat"} {
			WriteFile(t, dir, fmt.Sprintf("stats/%s%d.nii.gz", prefix, n), "nii")
		}
		WriteFile(t, dir, fmt.Sprintf("thresh_zstat%d.nii.gz", n), "nii")
		if c.Rendered {
			WriteFile(t, dir, fmt.Sprintf("rendered_thresh_zstat%d.png", n), "png")
		}
		native, std := ClusterTables(c.Clusters)
		WriteFile(t, dir, fmt.Sprintf("cluster_zstat%d.txt", n), native)
		WriteFile(t, dir, fmt.Sprintf("cluster_zstat%d_std.txt", n), std)
		native, std = PeakTables(c.Clusters)
		WriteFile(t, dir, fmt.Sprintf("lmax_zstat%d.txt", n), native)
		WriteFile(t, dir, fmt.Sprintf("lmax_zstat%d_std.txt", n), std)
	}
	return dir
}

// WriteFile writes content to dir/rel, creating parent directories.
func WriteFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// Remove deletes dir/rel.
func Remove(t *testing.T, dir, rel string) {
	t.Helper()
	if err := os.Remove(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
		t.Fatal(err)
	}
}

const (
	clusterHeader = "Cluster Index\tVoxels\tP\t-log10(P)\tZ-MAX\tZ-MAX X (vox)\tZ-MAX Y (vox)\tZ-MAX Z (vox)\tZ-COG X (vox)\tZ-COG Y (vox)\tZ-COG Z (vox)\tCOPE-MAX\tCOPE-MAX X (vox)\tCOPE-MAX Y (vox)\tCOPE-MAX Z (vox)\tCOPE-MEAN\n"
	peakHeader    = "Cluster Index\tZ\tx\ty\tz\t\n"
)

// ClusterTables renders the native and standard-space cluster tables.
func ClusterTables(clusters []Cluster) (native, std string) {
	var nb, sb strings.Builder
	nb.WriteString(clusterHeader)
	sb.WriteString(clusterHeader)
	for _, c := range clusters {
		nb.WriteString(clusterRow(c, c.COG))
		sb.WriteString(clusterRow(c, c.COGStd))
	}
	return nb.String(), sb.String()
}

func clusterRow(c Cluster, cog [3]float64) string {
	cols := []float64{
		float64(c.ID), float64(c.Size), c.P, 9.9, 5.1,
		31, 41, 22,
		cog[0], cog[1], cog[2],
		120.5, 30, 40, 21, 60.2,
	}
	return join(cols)
}

// PeakTables renders the native and standard-space lmax tables with peaks
// grouped by cluster in the order given.
func PeakTables(clusters []Cluster) (native, std string) {
	var nb, sb strings.Builder
	nb.WriteString(peakHeader)
	sb.WriteString(peakHeader)
	for _, c := range clusters {
		for _, p := range c.Peaks {
			nb.WriteString(join([]float64{float64(c.ID), p.Z, float64(p.Coord[0]), float64(p.Coord[1]), float64(p.Coord[2])}))
			sb.WriteString(join([]float64{float64(c.ID), p.Z, p.CoordStd[0], p.CoordStd[1], p.CoordStd[2]}))
		}
	}
	return nb.String(), sb.String()
}

func join(cols []float64) string {
	s := make([]string, len(cols))
	for i, v := range cols {
		s[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(s, "\t") + "\n"
}

func designMatrix(regressors, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "/NumWaves\t%d\n/NumPoints\t%d\n/PPheights\t\t", regressors, rows)
	for i := 0; i < regressors; i++ {
		b.WriteString("1.000000e+00\t")
	}
	b.WriteString("\n\n/Matrix\n")
	for r := 0; r < rows; r++ {
		row := make([]float64, regressors)
		for i := range row {
			row[i] = float64((r+i)%2) - 0.5
		}
		b.WriteString(join(row))
	}
	return b.String()
}

func designFSF(opts Options) string {
	var b strings.Builder
	b.WriteString("# FEAT version number\nset fmri(version) 6.00\n\n")
	fmt.Fprintf(&b, "# Number of contrasts\nset fmri(ncon_real) %d\n\n", len(opts.Contrasts))
	for _, c := range opts.Contrasts {
		fmt.Fprintf(&b, "# Title for contrast_real %d\nset fmri(conname_real.%d) \"%s\"\n\n", c.Index, c.Index, c.Name)
		for i, w := range c.Weights {
			fmt.Fprintf(&b, "# Real contrast_real vector %d element %d\nset fmri(con_real%d.%d) %s\n\n",
				c.Index, i+1, c.Index, i+1, strconv.FormatFloat(w, 'g', -1, 64))
		}
	}
	return b.String()
}

// designCon writes one /Matrix row per contrast index; contrasts must then
// be numbered 1..K without gaps.
func designCon(opts Options) string {
	var b strings.Builder
	for _, c := range opts.Contrasts {
		fmt.Fprintf(&b, "/ContrastName%d\t%s\n", c.Index, c.Name)
	}
	fmt.Fprintf(&b, "/NumWaves\t%d\n/NumContrasts\t%d\n/PPheights\t\t1.0\t1.0\n/RequiredEffect\t\t1.2\t1.2\n\n/Matrix\n",
		opts.Regressors, len(opts.Contrasts))
	for _, c := range opts.Contrasts {
		b.WriteString(join(c.Weights))
	}
	return b.String()
}
