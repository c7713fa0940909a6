// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsl

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

var errEmptyFile = errors.New("file is empty")

// Table is a rectangular block of numbers from a whitespace-delimited file.
type Table [][]float64

// Width returns the number of columns, or 0 for an empty table.
func (t Table) Width() int {
	if len(t) == 0 {
		return 0
	}
	return len(t[0])
}

// ReadTable reads a whitespace-delimited numeric table, skipping the first
// header lines. Blank lines and lines starting with '#' after the header are
// ignored. A table with no rows after the header is valid.
func ReadTable(path string, header int) (Table, error) {
	data, err := readArtifact(path)
	if err != nil {
		return nil, err
	}
	return parseTable(path, data, header)
}

func parseTable(path, data string, header int) (Table, error) {
	var table Table
	sc := bufio.NewScanner(strings.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line <= header {
			continue
		}
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, malformed(path, fmt.Sprintf("line %d column %d", line, i+1), fmt.Sprintf("%q is not a number", f))
			}
			row[i] = v
		}
		if w := table.Width(); len(table) > 0 && len(row) != w {
			return nil, malformed(path, fmt.Sprintf("line %d", line), fmt.Sprintf("has %d columns, want %d", len(row), w))
		}
		table = append(table, row)
	}
	if err := sc.Err(); err != nil {
		return nil, &ArtifactError{Path: path, Err: err}
	}
	return table, nil
}

// ReadDesignMatrix reads the regressor matrix of design.mat, skipping its
// header lines. A matrix without rows is absent metadata.
func ReadDesignMatrix(path string, header int) (Table, error) {
	t, err := ReadTable(path, header)
	if err != nil {
		return nil, err
	}
	if len(t) == 0 {
		return nil, absent(path, "design matrix rows")
	}
	return t, nil
}

// Smoothness holds the smoothest estimates written to stats/smoothness.
type Smoothness struct {
	DLH    float64
	Volume float64
	Resels float64
}

// ReadSmoothness reads stats/smoothness. FEAT writes one "KEY value" row per
// estimate (DLH, VOLUME, RESELS); a single row of three numbers in that
// order is also accepted.
func ReadSmoothness(path string) (Smoothness, error) {
	data, err := readArtifact(path)
	if err != nil {
		return Smoothness{}, err
	}

	values := make(map[string]float64)
	var positional []float64
	for _, text := range strings.Split(data, "\n") {
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if _, err := strconv.ParseFloat(fields[0], 64); err == nil {
			for _, f := range fields {
				v, err := strconv.ParseFloat(f, 64)
				if err != nil {
					return Smoothness{}, malformed(path, "smoothness", fmt.Sprintf("%q is not a number", f))
				}
				positional = append(positional, v)
			}
			continue
		}
		if len(fields) < 2 {
			return Smoothness{}, malformed(path, fields[0], "no value")
		}
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return Smoothness{}, malformed(path, fields[0], fmt.Sprintf("%q is not a number", fields[1]))
		}
		values[strings.ToUpper(fields[0])] = v
	}

	if len(values) == 0 {
		if len(positional) != 3 {
			return Smoothness{}, malformed(path, "smoothness", fmt.Sprintf("want 3 values (dlh, volume, resels), got %d", len(positional)))
		}
		return Smoothness{DLH: positional[0], Volume: positional[1], Resels: positional[2]}, nil
	}

	var s Smoothness
	for _, f := range []struct {
		key string
		dst *float64
	}{{"DLH", &s.DLH}, {"VOLUME", &s.Volume}, {"RESELS", &s.Resels}} {
		v, ok := values[f.key]
		if !ok {
			return Smoothness{}, absent(path, f.key)
		}
		*f.dst = v
	}
	return s, nil
}

// readFloat reads a file holding a single number, such as stats/dof.
func readFloat(path, field string) (float64, error) {
	data, err := readArtifact(path)
	if err != nil {
		return 0, err
	}
	text := strings.TrimSpace(data)
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, malformed(path, field, fmt.Sprintf("%q is not a number", text))
	}
	return v, nil
}

// readArtifact returns the contents of a required, non-empty file.
func readArtifact(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ArtifactError{Path: path, Err: err}
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", &ArtifactError{Path: path, Err: errEmptyFile}
	}
	return string(data), nil
}

// requireFile checks that a file referenced by the graph exists.
func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &ArtifactError{Path: path, Err: err}
	}
	if info.IsDir() {
		return &ArtifactError{Path: path, Err: errors.New("is a directory")}
	}
	return nil
}
