// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsl

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// DesignFormat selects how contrast names and weights are stored.
type DesignFormat string

const (
	// DesignFSF is the Tcl setup file written by the FEAT GUI.
	DesignFSF DesignFormat = "fsf"
	// DesignCon is the /ContrastName + /Matrix file written by feat_model.
	DesignCon DesignFormat = "con"
)

// Layout describes where FEAT writes each artifact inside a results
// directory. Paths are relative to the results directory; image paths
// carry no extension, ImageExt is appended.
type Layout struct {
	Name string

	ReportFile string

	DesignFile   string
	DesignFormat DesignFormat

	DesignMatrixFile string
	// DesignMatrixHeader is the number of header lines before the matrix rows.
	DesignMatrixHeader int

	Mask           string
	Residuals      string
	SmoothnessFile string
	DOFFile        string

	StatsDir  string
	ImageExt  string
	RasterExt string

	PEPrefix         string
	ContrastPrefix   string
	VariancePrefix   string
	StatisticPrefix  string
	ZStatisticPrefix string

	// StatTerm is the statistic whose thresholded map defines a contrast's
	// excursion set.
	StatTerm       string
	ThreshPrefix   string
	RenderedPrefix string

	// Table name templates take the stat term and the contrast index.
	ClusterTable    string
	ClusterStdTable string
	PeakTable       string
	PeakStdTable    string

	// TableHeader is the number of header lines in cluster and peak tables.
	TableHeader int

	// VoxelwiseReport must capture featversion and pvalue.
	VoxelwiseReport *regexp.Regexp
	// ClusterwiseReport must capture featversion, zvalue and pvalue.
	ClusterwiseReport *regexp.Regexp
}

var (
	voxelwiseReport   = regexp.MustCompile(`.*Version (?P<featversion>\d+\.\d+),.* thresholded using (?P<threshtype>.*) thresholding .* P=(?P<pvalue>\d+\.\d+)`)
	clusterwiseReport = regexp.MustCompile(`.*Version (?P<featversion>\d+\.\d+),.* thresholded using (?P<threshtype>.*) determined by Z>(?P<zvalue>\d+\.\d+) and a .* P=(?P<pvalue>\d+\.\d+) .*`)
)

// FEAT is the layout of current FEAT output, with contrasts read from
// design.fsf.
var FEAT = Layout{
	Name:               "fsl",
	ReportFile:         "report_poststats.html",
	DesignFile:         "design.fsf",
	DesignFormat:       DesignFSF,
	DesignMatrixFile:   "design.mat",
	DesignMatrixHeader: 5,
	Mask:               "mask",
	Residuals:          filepath.Join("stats", "sigmasquareds"),
	SmoothnessFile:     filepath.Join("stats", "smoothness"),
	DOFFile:            filepath.Join("stats", "dof"),
	StatsDir:           "stats",
	ImageExt:           ".nii.gz",
	RasterExt:          ".png",
	PEPrefix:           "pe",
	ContrastPrefix:     "cope",
	VariancePrefix:     "varcope",
	StatisticPrefix:    "tstat",
	ZStatisticPrefix:   "zstat",
	StatTerm:           "zstat",
	ThreshPrefix:       "thresh_",
	RenderedPrefix:     "rendered_",
	ClusterTable:       "cluster_%s%d.txt",
	ClusterStdTable:    "cluster_%s%d_std.txt",
	PeakTable:          "lmax_%s%d.txt",
	PeakStdTable:       "lmax_%s%d_std.txt",
	TableHeader:        1,
	VoxelwiseReport:    voxelwiseReport,
	ClusterwiseReport:  clusterwiseReport,
}

// FEATLegacy is the older layout where contrast names and weights come from
// design.con instead of design.fsf.
var FEATLegacy = func() Layout {
	l := FEAT
	l.Name = "fsl-legacy"
	l.DesignFile = "design.con"
	l.DesignFormat = DesignCon
	return l
}()

var layouts = map[string]Layout{
	FEAT.Name:       FEAT,
	FEATLegacy.Name: FEATLegacy,
}

// LayoutByName returns the built-in layout with the given name.
func LayoutByName(name string) (Layout, error) {
	l, ok := layouts[name]
	if !ok {
		names := make([]string, 0, len(layouts))
		for n := range layouts {
			names = append(names, n)
		}
		sort.Strings(names)
		return Layout{}, fmt.Errorf("unknown layout %q: use one of %v", name, names)
	}
	return l, nil
}

// WithImageExt returns a copy of l using ext for every image path.
func (l Layout) WithImageExt(ext string) Layout {
	if ext != "" {
		l.ImageExt = ext
	}
	return l
}

func (l Layout) image(dir, rel string) string {
	return filepath.Join(dir, rel+l.ImageExt)
}

func (l Layout) statsImage(dir, prefix string, n int) string {
	return l.image(dir, filepath.Join(l.StatsDir, prefix+strconv.Itoa(n)))
}

func (l Layout) threshName(n int) string {
	return l.ThreshPrefix + l.StatTerm + strconv.Itoa(n)
}

// threshPattern matches thresholded statistic maps by name.
func (l Layout) threshPattern() string {
	return l.ThreshPrefix + l.StatTerm + "[0-9]*" + l.ImageExt
}

func (l Layout) threshIndex() *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(l.ThreshPrefix+l.StatTerm) + `(\d+)` + regexp.QuoteMeta(l.ImageExt) + `$`)
}

// pePattern matches parameter estimate maps by name inside StatsDir.
func (l Layout) pePattern() string {
	return l.PEPrefix + "[0-9]*" + l.ImageExt
}

func (l Layout) peIndex() *regexp.Regexp {
	return regexp.MustCompile(`^` + regexp.QuoteMeta(l.PEPrefix) + `(\d+)` + regexp.QuoteMeta(l.ImageExt) + `$`)
}

// clusterTables holds the four tables describing one excursion set.
type clusterTables struct {
	Clusters    string
	ClustersStd string
	Peaks       string
	PeaksStd    string
}

func (l Layout) clusterTables(dir string, n int) clusterTables {
	name := func(tmpl string) string {
		return filepath.Join(dir, fmt.Sprintf(tmpl, l.StatTerm, n))
	}
	return clusterTables{
		Clusters:    name(l.ClusterTable),
		ClustersStd: name(l.ClusterStdTable),
		Peaks:       name(l.PeakTable),
		PeaksStd:    name(l.PeakStdTable),
	}
}
