// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"golang.org/x/net/html"

	"github.com/pdiddy/nidm-export/pkg/types"
)

// Report is the metadata recovered from report_poststats.html.
type Report struct {
	FeatVersion string
	Thresholds  types.Thresholds

	// Links and LinkText hold the hyperlinks of the report in document order.
	Links    []string
	LinkText []string
}

// ReadReport parses the status report at path. A missing file is an
// ErrMissingArtifact. A report matching neither threshold template returns
// the partial Report together with an error matching ErrUnrecognizedReport.
func ReadReport(path string, l Layout) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, &ArtifactError{Path: path, Err: err}
	}
	defer f.Close()

	rep, err := ParseReport(f, l)
	var me *MetadataError
	if errors.As(err, &me) {
		me.Path = path
	}
	return rep, err
}

// ParseReport tokenizes an HTML status report and extracts the FEAT version
// and thresholds from the first narrative text block that matches the
// layout's voxelwise or clusterwise template. Text inside hyperlinks is
// collected separately and never matched.
func ParseReport(r io.Reader, l Layout) (Report, error) {
	var (
		rep        Report
		insideLink bool
		foundIntro bool
	)

	z := html.NewTokenizer(r)
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return rep, fmt.Errorf("tokenizing report: %w", err)
			}
			if !foundIntro {
				return rep, &MetadataError{
					Path:   "report",
					Field:  "thresholds",
					Reason: ReasonAbsent,
					Detail: "no text matches the voxelwise or clusterwise template",
					Err:    ErrUnrecognizedReport,
				}
			}
			return rep, nil

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) == "href" {
					insideLink = true
					rep.Links = append(rep.Links, string(val))
				}
			}

		case html.EndTagToken:
			if name, _ := z.TagName(); string(name) == "a" {
				insideLink = false
			}

		case html.TextToken:
			text := string(z.Text())
			switch {
			case insideLink:
				rep.LinkText = append(rep.LinkText, text)
			case !foundIntro:
				foundIntro = matchIntro(text, l, &rep)
			}
		}
	}
}

// matchIntro tries the voxelwise template, then the clusterwise one.
func matchIntro(text string, l Layout, rep *Report) bool {
	if m := submatches(l.VoxelwiseReport, text); m != nil {
		p, err := strconv.ParseFloat(m["pvalue"], 64)
		if err != nil {
			return false
		}
		rep.FeatVersion = m["featversion"]
		rep.Thresholds = types.Thresholds{
			Kind:          types.ThresholdVoxelwise,
			VoxelPCorr:    ptr(p),
			Extent:        ptr(0),
			ExtentPUncorr: ptr(1),
			ExtentPCorr:   ptr(1),
		}
		return true
	}

	if m := submatches(l.ClusterwiseReport, text); m != nil {
		z, errZ := strconv.ParseFloat(m["zvalue"], 64)
		p, errP := strconv.ParseFloat(m["pvalue"], 64)
		if errZ != nil || errP != nil {
			return false
		}
		rep.FeatVersion = m["featversion"]
		rep.Thresholds = types.Thresholds{
			Kind:           types.ThresholdClusterwise,
			VoxelThreshold: ptr(z),
			ExtentPCorr:    ptr(p),
		}
		return true
	}

	return false
}

// submatches returns the named groups of the first match, or nil.
func submatches(re *regexp.Regexp, s string) map[string]string {
	if re == nil {
		return nil
	}
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = m[i]
		}
	}
	return out
}

func ptr(v float64) *float64 { return &v }
