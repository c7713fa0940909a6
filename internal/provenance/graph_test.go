// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provenance

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/nidm-export/internal/fsl"
	"github.com/pdiddy/nidm-export/internal/fsl/fsltest"
	"github.com/pdiddy/nidm-export/pkg/types"
)

// scannedGraph scans a one-contrast fixture directory into a new graph.
func scannedGraph(t *testing.T) *Graph {
	t.Helper()
	dir := fsltest.Write(t, fsltest.Options{Contrasts: []fsltest.Contrast{fsltest.OneContrast()}})
	g := NewGraph(dir, nil)
	_, err := fsl.NewScanner(fsl.FEAT, g).Scan(dir)
	require.NoError(t, err)
	return g
}

func hasRelation(g *Graph, typ RelationType, subject, object string) bool {
	for _, r := range g.Relations() {
		if r.Type == typ && r.Subject == subject && r.Object == object {
			return true
		}
	}
	return false
}

func TestGraphFromScan(t *testing.T) {
	g := scannedGraph(t)
	require.NoError(t, g.Validate())

	counts := map[string]int{}
	for _, n := range g.Nodes() {
		counts[n.Type]++
	}
	assert.Equal(t, map[string]int{
		"nidm:FSL":                       1,
		"nidm:HeightThreshold":           1,
		"nidm:ExtentThreshold":           1,
		"nidm:ModelParametersEstimation": 1,
		"nidm:DesignMatrix":              1,
		"nidm:ResidualMeanSquaresMap":    1,
		"nidm:SearchSpaceMap":            1,
		"nidm:ParameterEstimateMap":      2,
		"nidm:ContrastEstimation":        1,
		"nidm:ContrastWeights":           1,
		"nidm:ContrastMap":               1,
		"nidm:ContrastVarianceMap":       1,
		"nidm:StatisticMap":              2,
		"nidm:Inference":                 1,
		"nidm:ExcursionSet":              1,
		"nidm:Cluster":                   2,
		"nidm:CenterOfGravity":           2,
		"nidm:Peak":                      3,
	}, counts)

	tests := []struct {
		typ             RelationType
		subject, object string
	}{
		{WasAssociatedWith, "niiri:model_pe_id", "niiri:software_id"},
		{Used, "niiri:model_pe_id", "niiri:design_matrix_id"},
		{WasGeneratedBy, "niiri:beta_map_id_2", "niiri:model_pe_id"},
		{Used, "niiri:contrast_estimation_id_1", "niiri:beta_map_id_1"},
		{Used, "niiri:contrast_estimation_id_1", "niiri:contrast_id_1"},
		{WasGeneratedBy, "niiri:z_statistic_map_id_1", "niiri:contrast_estimation_id_1"},
		{Used, "niiri:inference_id_1", "niiri:z_statistic_map_id_1"},
		{Used, "niiri:inference_id_1", "niiri:search_space_id"},
		{Used, "niiri:inference_id_1", "niiri:height_threshold_id"},
		{WasGeneratedBy, "niiri:excursion_set_id_1", "niiri:inference_id_1"},
		{WasDerivedFrom, "niiri:cluster_1_2", "niiri:excursion_set_id_1"},
		{WasDerivedFrom, "niiri:center_of_gravity_1_2", "niiri:cluster_1_2"},
		{WasDerivedFrom, "niiri:peak_1_2_2", "niiri:cluster_1_2"},
		{WasDerivedFrom, "niiri:peak_1_1_1", "niiri:cluster_1_1"},
	}
	for _, tt := range tests {
		assert.True(t, hasRelation(g, tt.typ, tt.subject, tt.object), "%s(%s, %s)", tt.typ, tt.subject, tt.object)
	}
}

func TestGraphAttributes(t *testing.T) {
	g := scannedGraph(t)

	sw, ok := g.Node("niiri:software_id")
	require.True(t, ok)
	assert.Equal(t, KindAgent, sw.Kind)
	v, _ := sw.Attr("nidm:softwareVersion")
	assert.Equal(t, "6.00", v)

	weights, ok := g.Node("niiri:contrast_id_1")
	require.True(t, ok)
	v, _ = weights.Attr("prov:value")
	assert.Equal(t, "[1, -1]", v)

	tmap, _ := g.Node("niiri:statistic_map_id_1")
	v, _ = tmap.Attr("nidm:errorDegreesOfFreedom")
	assert.Equal(t, 100.0, v)

	height, _ := g.Node("niiri:height_threshold_id")
	v, _ = height.Attr("prov:value")
	assert.Equal(t, 2.3, v)
	_, ok = height.Attr("nidm:pValueFWER")
	assert.False(t, ok, "unset thresholds are omitted")

	cog, _ := g.Node("niiri:center_of_gravity_1_2")
	v, _ = cog.Attr("nidm:coordinateVectorInStandardSpace")
	assert.Equal(t, "[-12.5, 18, 44.75]", v)

	peak, _ := g.Node("niiri:peak_1_2_1")
	v, _ = peak.Attr("nidm:coordinateVector")
	assert.Equal(t, "[31, 41, 22]", v)

	es, _ := g.Node("niiri:excursion_set_id_1")
	v, _ = es.Attr("nidm:visualisation")
	assert.True(t, strings.HasSuffix(v.(string), "rendered_thresh_zstat1.png"))
}

func TestValidateDanglingReferences(t *testing.T) {
	tests := []struct {
		name  string
		build func(g *Graph)
		want  string
	}{
		{
			name: "peak without cluster",
			build: func(g *Graph) {
				g.CreatePeak(types.Peak{StatIndex: 1, ClusterID: 4, Index: 1})
			},
			want: "niiri:cluster_1_4",
		},
		{
			name: "cluster without excursion set",
			build: func(g *Graph) {
				g.CreateCluster(types.Cluster{StatIndex: 2, ID: 1})
			},
			want: "niiri:excursion_set_id_2",
		},
		{
			name: "excursion set without contrast",
			build: func(g *Graph) {
				g.CreateExcursionSet(types.ExcursionSet{StatIndex: 3, Map: "thresh_zstat3.nii.gz"})
			},
			want: "niiri:z_statistic_map_id_3",
		},
		{
			name: "contrast created twice",
			build: func(g *Graph) {
				g.CreateContrast(types.Contrast{Index: 5, Name: "a"})
				g.CreateContrast(types.Contrast{Index: 5, Name: "a"})
			},
			want: "created twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := scannedGraph(t)
			tt.build(g)

			err := g.Validate()
			var ige *InvalidGraphError
			require.True(t, errors.As(err, &ige), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRelationsAreUnique(t *testing.T) {
	g := scannedGraph(t)
	require.NoError(t, g.Validate())
	require.NoError(t, g.Validate())

	seen := map[Relation]bool{}
	for _, r := range g.Relations() {
		assert.False(t, seen[r], "duplicate relation %v", r)
		seen[r] = true
	}
}

func TestWriteProvN(t *testing.T) {
	g := scannedGraph(t)
	require.NoError(t, g.Validate())

	var buf bytes.Buffer
	require.NoError(t, g.WriteProvN(&buf))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "document\n"))
	assert.True(t, strings.HasSuffix(out, "endDocument\n"))
	assert.Contains(t, out, "prefix nidm <http://purl.org/nidash/nidm#>")
	assert.Contains(t, out, "agent(niiri:software_id, [prov:type = 'nidm:FSL'")
	assert.Contains(t, out, "activity(niiri:inference_id_1, -, -, [")
	assert.Contains(t, out, `nidm:clusterSizeInVoxels = "1200" %% xsd:int`)
	assert.Contains(t, out, `nidm:statisticType = 'nidm:TStatistic'`)
	assert.Contains(t, out, "wasDerivedFrom(niiri:peak_1_1_1, niiri:cluster_1_1)")
	assert.Contains(t, out, "used(niiri:inference_id_1, niiri:search_space_id, -)")
}

func TestWriteJSON(t *testing.T) {
	g := scannedGraph(t)
	require.NoError(t, g.Validate())

	var buf bytes.Buffer
	require.NoError(t, g.WriteJSON(&buf))

	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Contains(t, doc["prefix"], "niiri")
	assert.Contains(t, doc["agent"], "niiri:software_id")
	assert.Contains(t, doc["activity"], "niiri:contrast_estimation_id_1")
	assert.Len(t, doc["entity"], len(g.Nodes())-len(doc["activity"])-len(doc["agent"]))
	assert.Len(t, doc["wasDerivedFrom"], 2+2+3)

	peak := doc["entity"]["niiri:peak_1_2_1"].(map[string]any)
	assert.Equal(t, 5.1, peak["nidm:equivalentZStatistic"])
	assert.Equal(t, map[string]any{"$": "nidm:Peak", "type": "xsd:QName"}, peak["prov:type"])
}
