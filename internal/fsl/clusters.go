// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fsl

import (
	"fmt"

	"github.com/pdiddy/nidm-export/pkg/types"
)

// Column positions in cluster and lmax tables.
const (
	clusterColID   = 0
	clusterColSize = 1
	clusterColP    = 2
	clusterColCOG  = 8 // x, y, z in 8..10
	clusterWidth   = clusterColCOG + 3

	peakColCluster = 0
	peakColZ       = 1
	peakColCoord   = 2 // x, y, z in 2..4
	peakWidth      = peakColCoord + 3
)

// ClusterJoin is the result of joining the tables of one excursion set.
type ClusterJoin struct {
	Clusters []types.Cluster
	Peaks    []types.Peak
}

// JoinClusters reads the native and standard-space cluster and peak tables
// of contrast n and joins them row by row. Paired rows must carry the same
// cluster id; an id may appear on several rows. Peak indices restart at 1 each time the cluster id changes
// from one row to the next, so peaks must be listed grouped by cluster.
func JoinClusters(dir string, l Layout, n int) (ClusterJoin, error) {
	paths := l.clusterTables(dir, n)

	tables := make(map[string]Table, 4)
	for _, p := range []string{paths.Clusters, paths.ClustersStd, paths.Peaks, paths.PeaksStd} {
		t, err := ReadTable(p, l.TableHeader)
		if err != nil {
			return ClusterJoin{}, err
		}
		tables[p] = t
	}

	clusters, err := joinClusterRows(n, paths.Clusters, tables[paths.Clusters], paths.ClustersStd, tables[paths.ClustersStd])
	if err != nil {
		return ClusterJoin{}, err
	}
	peaks, err := joinPeakRows(n, paths.Peaks, tables[paths.Peaks], paths.PeaksStd, tables[paths.PeaksStd])
	if err != nil {
		return ClusterJoin{}, err
	}
	return ClusterJoin{Clusters: clusters, Peaks: peaks}, nil
}

func joinClusterRows(n int, nativePath string, native Table, stdPath string, std Table) ([]types.Cluster, error) {
	if err := checkPaired(nativePath, native, stdPath, std, clusterWidth); err != nil {
		return nil, err
	}

	clusters := make([]types.Cluster, 0, len(native))
	for i, row := range native {
		stdRow := std[i]
		clusters = append(clusters, types.Cluster{
			StatIndex: n,
			ID:        int(row[clusterColID]),
			Size:      int(row[clusterColSize]),
			PFWER:     row[clusterColP],
			COG:       [3]float64{row[clusterColCOG], row[clusterColCOG+1], row[clusterColCOG+2]},
			COGStd:    [3]float64{stdRow[clusterColCOG], stdRow[clusterColCOG+1], stdRow[clusterColCOG+2]},
		})
	}
	return clusters, nil
}

func joinPeakRows(n int, nativePath string, native Table, stdPath string, std Table) ([]types.Peak, error) {
	if err := checkPaired(nativePath, native, stdPath, std, peakWidth); err != nil {
		return nil, err
	}

	peaks := make([]types.Peak, 0, len(native))
	prevCluster, index := 0, 0
	for i, row := range native {
		stdRow := std[i]
		clusterID := int(row[peakColCluster])
		if i == 0 || clusterID != prevCluster {
			index = 1
		} else {
			index++
		}
		prevCluster = clusterID

		peaks = append(peaks, types.Peak{
			StatIndex: n,
			ClusterID: clusterID,
			Index:     index,
			EquivZ:    row[peakColZ],
			Coord:     [3]int{int(row[peakColCoord]), int(row[peakColCoord+1]), int(row[peakColCoord+2])},
			CoordStd:  [3]float64{stdRow[peakColCoord], stdRow[peakColCoord+1], stdRow[peakColCoord+2]},
		})
	}
	return peaks, nil
}

// checkPaired verifies that two tables can be joined by row position: same
// row count, enough columns, and the same id in column 0 of every row pair.
func checkPaired(nativePath string, native Table, stdPath string, std Table, width int) error {
	if len(native) != len(std) {
		return &MetadataError{
			Path:   stdPath,
			Field:  "row count",
			Reason: ReasonMismatch,
			Detail: fmt.Sprintf("%d rows, %s has %d", len(std), nativePath, len(native)),
		}
	}
	if len(native) > 0 && native.Width() < width {
		return malformed(nativePath, "columns", fmt.Sprintf("have %d, want at least %d", native.Width(), width))
	}
	if len(std) > 0 && std.Width() < width {
		return malformed(stdPath, "columns", fmt.Sprintf("have %d, want at least %d", std.Width(), width))
	}
	for i := range native {
		if native[i][0] != std[i][0] {
			return &MetadataError{
				Path:   stdPath,
				Field:  fmt.Sprintf("row %d cluster id", i+1),
				Reason: ReasonMismatch,
				Detail: fmt.Sprintf("%g, %s has %g", std[i][0], nativePath, native[i][0]),
			}
		}
	}
	return nil
}
