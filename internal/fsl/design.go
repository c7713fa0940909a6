// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsl

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ContrastMetadata is what the design files say about one contrast.
type ContrastMetadata struct {
	Name    string
	Weights []float64
	DOF     float64
}

// DesignReader extracts contrast names, weights and degrees of freedom.
// The design file is read once on construction; the dof file is read on the
// first Contrast call and cached.
type DesignReader struct {
	path    string
	format  DesignFormat
	text    string
	dofPath string

	dof    float64
	dofErr error
	dofSet bool
}

// NewDesignReader reads the design file at path.
func NewDesignReader(path string, format DesignFormat, dofPath string) (*DesignReader, error) {
	text, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case DesignFSF, DesignCon:
	default:
		return nil, fmt.Errorf("unsupported design format %q", format)
	}
	return &DesignReader{path: path, format: format, text: text, dofPath: dofPath}, nil
}

// Contrast returns the metadata of the 1-based contrast n.
func (d *DesignReader) Contrast(n int) (ContrastMetadata, error) {
	var (
		meta ContrastMetadata
		err  error
	)
	switch d.format {
	case DesignFSF:
		meta, err = d.fsfContrast(n)
	case DesignCon:
		meta, err = d.conContrast(n)
	}
	if err != nil {
		return ContrastMetadata{}, err
	}

	if !d.dofSet {
		d.dof, d.dofErr = readFloat(d.dofPath, "dof")
		d.dofSet = true
	}
	if d.dofErr != nil {
		return ContrastMetadata{}, d.dofErr
	}
	meta.DOF = d.dof
	return meta, nil
}

func (d *DesignReader) fsfContrast(n int) (ContrastMetadata, error) {
	idx := strconv.Itoa(n)
	nameRe := regexp.MustCompile(`set fmri\(conname_real\.` + idx + `\)\s+"([^"\n]*)"`)
	m := nameRe.FindStringSubmatch(d.text)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return ContrastMetadata{}, absent(d.path, "conname_real."+idx)
	}
	name := strings.TrimSpace(m[1])

	weightRe := regexp.MustCompile(`set fmri\(con_real` + idx + `\.(\d+)\)\s+(\S+)`)
	type column struct {
		pos int
		w   float64
	}
	var cols []column
	for _, wm := range weightRe.FindAllStringSubmatch(d.text, -1) {
		pos, _ := strconv.Atoi(wm[1])
		w, err := strconv.ParseFloat(wm[2], 64)
		if err != nil {
			return ContrastMetadata{}, malformed(d.path, "con_real"+idx+"."+wm[1], fmt.Sprintf("%q is not a number", wm[2]))
		}
		cols = append(cols, column{pos, w})
	}
	if len(cols) == 0 {
		return ContrastMetadata{}, absent(d.path, "con_real"+idx)
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].pos < cols[j].pos })

	weights := make([]float64, len(cols))
	for i, c := range cols {
		weights[i] = c.w
	}
	return ContrastMetadata{Name: name, Weights: weights}, nil
}

var conMatrixRe = regexp.MustCompile(`(?m)^/Matrix\s*$`)

func (d *DesignReader) conContrast(n int) (ContrastMetadata, error) {
	idx := strconv.Itoa(n)
	nameRe := regexp.MustCompile(`(?m)^/ContrastName` + idx + `[ \t]+(.*?)\s*$`)
	m := nameRe.FindStringSubmatch(d.text)
	if m == nil || m[1] == "" {
		return ContrastMetadata{}, absent(d.path, "/ContrastName"+idx)
	}

	loc := conMatrixRe.FindStringIndex(d.text)
	if loc == nil {
		return ContrastMetadata{}, absent(d.path, "/Matrix")
	}
	var rows []string
	for _, line := range strings.Split(d.text[loc[1]:], "\n") {
		if line = strings.TrimSpace(line); line != "" {
			rows = append(rows, line)
		}
	}
	if n < 1 || n > len(rows) {
		return ContrastMetadata{}, absent(d.path, "/Matrix row "+idx)
	}

	fields := strings.Fields(rows[n-1])
	weights := make([]float64, len(fields))
	for i, f := range fields {
		w, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return ContrastMetadata{}, malformed(d.path, "/Matrix row "+idx, fmt.Sprintf("%q is not a number", f))
		}
		weights[i] = w
	}
	return ContrastMetadata{Name: m[1], Weights: weights}, nil
}
