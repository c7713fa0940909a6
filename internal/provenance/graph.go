// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package provenance builds the NIDM provenance graph of a FEAT results
// directory and persists it as PROV-N, PROV-JSON, YAML, Graphviz DOT and a
// SQLite store.
package provenance

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/nidm-export/pkg/types"
)

// Kind is the PROV class of a node.
type Kind string

const (
	KindEntity   Kind = "entity"
	KindActivity Kind = "activity"
	KindAgent    Kind = "agent"
)

// RelationType is a PROV relation between two nodes.
type RelationType string

const (
	// Used links an activity to an entity it consumed.
	Used RelationType = "used"
	// WasGeneratedBy links an entity to the activity that produced it.
	WasGeneratedBy RelationType = "wasGeneratedBy"
	// WasDerivedFrom links an entity to the entity it was derived from.
	WasDerivedFrom RelationType = "wasDerivedFrom"
	// WasAssociatedWith links an activity to the agent that ran it.
	WasAssociatedWith RelationType = "wasAssociatedWith"
)

// Attribute is one qualified-name/value pair. Value is a string, int or
// float64.
type Attribute struct {
	Key   string `json:"key" yaml:"key"`
	Value any    `json:"value" yaml:"value"`
}

// Node is an entity, activity or agent of the graph.
type Node struct {
	ID         string      `json:"id" yaml:"id"`
	Kind       Kind        `json:"kind" yaml:"kind"`
	Type       string      `json:"type" yaml:"type"`
	Label      string      `json:"label" yaml:"label"`
	Attributes []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// Attr returns the value of the attribute named key.
func (n Node) Attr(key string) (any, bool) {
	for _, a := range n.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return nil, false
}

// Relation is a directed PROV relation from Subject to Object.
type Relation struct {
	Type    RelationType `json:"type" yaml:"type"`
	Subject string       `json:"subject" yaml:"subject"`
	Object  string       `json:"object" yaml:"object"`
}

// Namespaces used by every graph.
var Namespaces = map[string]string{
	"prov":  "http://www.w3.org/ns/prov#",
	"nidm":  "http://purl.org/nidash/nidm#",
	"niiri": "http://iri.nidash.org/",
	"fsl":   "http://purl.org/nidash/fsl#",
	"xsd":   "http://www.w3.org/2001/XMLSchema#",
}

// Fixed node ids for the per-directory singletons.
const (
	idSoftware        = "niiri:software_id"
	idModelPE         = "niiri:model_pe_id"
	idDesignMatrix    = "niiri:design_matrix_id"
	idResiduals       = "niiri:residual_mean_squares_map_id"
	idSearchSpace     = "niiri:search_space_id"
	idHeightThreshold = "niiri:height_threshold_id"
	idExtentThreshold = "niiri:extent_threshold_id"
)

func idBeta(n int) string               { return "niiri:beta_map_id_" + strconv.Itoa(n) }
func idContrastWeights(n int) string    { return "niiri:contrast_id_" + strconv.Itoa(n) }
func idContrastEstimation(n int) string { return "niiri:contrast_estimation_id_" + strconv.Itoa(n) }
func idContrastMap(n int) string        { return "niiri:contrast_map_id_" + strconv.Itoa(n) }
func idVarianceMap(n int) string        { return "niiri:contrast_variance_map_id_" + strconv.Itoa(n) }
func idStatisticMap(n int) string       { return "niiri:statistic_map_id_" + strconv.Itoa(n) }
func idZStatisticMap(n int) string      { return "niiri:z_statistic_map_id_" + strconv.Itoa(n) }
func idInference(n int) string          { return "niiri:inference_id_" + strconv.Itoa(n) }
func idExcursionSet(n int) string       { return "niiri:excursion_set_id_" + strconv.Itoa(n) }
func idCluster(n, c int) string         { return fmt.Sprintf("niiri:cluster_%d_%d", n, c) }
func idCenterOfGravity(n, c int) string { return fmt.Sprintf("niiri:center_of_gravity_%d_%d", n, c) }
func idPeak(n, c, k int) string         { return fmt.Sprintf("niiri:peak_%d_%d_%d", n, c, k) }

// Graph accumulates the records of one results directory. It implements
// the scanner's sink; nothing is written until Persist.
type Graph struct {
	RunID  uuid.UUID
	Source string

	nodes     []Node
	index     map[string]int
	relations []Relation
	related   map[Relation]bool

	// designMatrix is written beside the graph files on Persist.
	designMatrix [][]float64

	// errs collects problems found while building, reported by Validate.
	errs []error

	logger *zap.Logger
}

// NewGraph creates an empty graph for the results directory source.
func NewGraph(source string, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{
		RunID:   uuid.New(),
		Source:  source,
		index:   make(map[string]int),
		related: make(map[Relation]bool),
		logger:  logger,
	}
}

// Nodes returns the nodes in creation order.
func (g *Graph) Nodes() []Node { return g.nodes }

// Relations returns the relations in creation order.
func (g *Graph) Relations() []Relation { return g.relations }

// Node returns the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// NodesOfType returns the nodes whose NIDM type is typ, in creation order.
func (g *Graph) NodesOfType(typ string) []Node {
	var out []Node
	for _, n := range g.nodes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}

func (g *Graph) addNode(n Node) {
	if _, dup := g.index[n.ID]; dup {
		g.errs = append(g.errs, fmt.Errorf("node %s created twice", n.ID))
		return
	}
	g.index[n.ID] = len(g.nodes)
	g.nodes = append(g.nodes, n)
	g.logger.Debug("node", zap.String("id", n.ID), zap.String("type", n.Type))
}

// addNodeOnce adds n unless a node with its id already exists.
func (g *Graph) addNodeOnce(n Node) {
	if _, ok := g.index[n.ID]; !ok {
		g.addNode(n)
	}
}

func (g *Graph) relate(t RelationType, subject, object string) {
	r := Relation{Type: t, Subject: subject, Object: object}
	if g.related[r] {
		return
	}
	g.related[r] = true
	g.relations = append(g.relations, r)
}

// attrs builds an attribute list, dropping nil pointers.
func attrs(kv ...any) []Attribute {
	out := make([]Attribute, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		v := kv[i+1]
		if p, ok := v.(*float64); ok {
			if p == nil {
				continue
			}
			v = *p
		}
		out = append(out, Attribute{Key: kv[i].(string), Value: v})
	}
	return out
}

func vector3[T int | float64](v [3]T) string {
	return fmt.Sprintf("[%v, %v, %v]", v[0], v[1], v[2])
}

// CreateSoftware records the analysis package as the agent of every activity.
func (g *Graph) CreateSoftware(s types.Software) {
	g.addNode(Node{
		ID: idSoftware, Kind: KindAgent, Type: "nidm:" + s.Name,
		Label:      s.Name,
		Attributes: attrs("nidm:softwareVersion", s.Version),
	})
}

// CreateThresholds records the height and extent thresholds.
func (g *Graph) CreateThresholds(t types.Thresholds) {
	g.addNode(Node{
		ID: idHeightThreshold, Kind: KindEntity, Type: "nidm:HeightThreshold",
		Label: "Height Threshold",
		Attributes: attrs(
			"nidm:thresholdKind", string(t.Kind),
			"prov:value", t.VoxelThreshold,
			"nidm:pValueUncorrected", t.VoxelPUncorr,
			"nidm:pValueFWER", t.VoxelPCorr,
		),
	})
	g.addNode(Node{
		ID: idExtentThreshold, Kind: KindEntity, Type: "nidm:ExtentThreshold",
		Label: "Extent Threshold",
		Attributes: attrs(
			"nidm:thresholdKind", string(t.Kind),
			"nidm:clusterSizeInVoxels", t.Extent,
			"nidm:pValueUncorrected", t.ExtentPUncorr,
			"nidm:pValueFWER", t.ExtentPCorr,
		),
	})
}

// CreateModelFitting records the estimation activity, the design matrix and
// the residual map.
func (g *Graph) CreateModelFitting(m types.ModelFitting) {
	g.addModelActivity()
	g.addNode(Node{
		ID: idDesignMatrix, Kind: KindEntity, Type: "nidm:DesignMatrix",
		Label: "Design Matrix",
		Attributes: attrs(
			"prov:location", designMatrixFile,
			"fsl:sourceFile", m.DesignMatrixFile,
			"nidm:numberOfObservations", len(m.DesignMatrix),
			"nidm:numberOfRegressors", m.Regressors(),
		),
	})
	g.designMatrix = m.DesignMatrix
	g.addNode(Node{
		ID: idResiduals, Kind: KindEntity, Type: "nidm:ResidualMeanSquaresMap",
		Label:      "Residual Mean Squares Map",
		Attributes: attrs("prov:location", m.ResidualsMap),
	})
	g.relate(Used, idModelPE, idDesignMatrix)
	g.relate(WasGeneratedBy, idResiduals, idModelPE)
}

func (g *Graph) addModelActivity() {
	g.addNodeOnce(Node{ID: idModelPE, Kind: KindActivity, Type: "nidm:ModelParametersEstimation", Label: "Model Parameters Estimation"})
	g.relate(WasAssociatedWith, idModelPE, idSoftware)
}

// CreateSearchSpace records the analysis mask and its smoothness.
func (g *Graph) CreateSearchSpace(s types.SearchSpace) {
	g.addNode(Node{
		ID: idSearchSpace, Kind: KindEntity, Type: "nidm:SearchSpaceMap",
		Label: "Search Space Map",
		Attributes: attrs(
			"prov:location", s.Mask,
			"nidm:searchVolumeInVoxels", s.SearchVolume,
			"nidm:reselSizeInVoxels", s.ReselSize,
			"fsl:dlh", s.DLH,
		),
	})
}

// CreateParameterEstimate records one beta map generated by model fitting.
func (g *Graph) CreateParameterEstimate(p types.ParameterEstimate) {
	g.addModelActivity()
	id := idBeta(p.Index)
	g.addNode(Node{
		ID: id, Kind: KindEntity, Type: "nidm:ParameterEstimateMap",
		Label:      "Beta Map " + strconv.Itoa(p.Index),
		Attributes: attrs("prov:location", p.Map, "nidm:regressorIndex", p.Index),
	})
	g.relate(WasGeneratedBy, id, idModelPE)
}

// CreateContrast records the contrast estimation activity and its maps.
func (g *Graph) CreateContrast(c types.Contrast) {
	n := c.Index
	est := idContrastEstimation(n)
	g.addNode(Node{
		ID: est, Kind: KindActivity, Type: "nidm:ContrastEstimation",
		Label: "Contrast estimation: " + c.Name,
	})
	g.relate(WasAssociatedWith, est, idSoftware)
	g.relate(Used, est, idResiduals)
	g.relate(Used, est, idDesignMatrix)

	g.addNode(Node{
		ID: idContrastWeights(n), Kind: KindEntity, Type: "nidm:ContrastWeights",
		Label: "Contrast: " + c.Name,
		Attributes: attrs(
			"nidm:contrastName", c.Name,
			"prov:value", c.WeightsString(),
			"nidm:contrastIndex", n,
		),
	})
	g.relate(Used, est, idContrastWeights(n))

	maps := []struct {
		id, typ, label, path string
		extra                []Attribute
	}{
		{idContrastMap(n), "nidm:ContrastMap", "Contrast Map: " + c.Name, c.ContrastMap, nil},
		{idVarianceMap(n), "nidm:ContrastVarianceMap", "Contrast Variance Map: " + c.Name, c.VarianceMap, nil},
		{idStatisticMap(n), "nidm:StatisticMap", "T-Statistic Map: " + c.Name, c.StatisticMap,
			attrs("nidm:statisticType", "nidm:TStatistic", "nidm:errorDegreesOfFreedom", c.DOF)},
		{idZStatisticMap(n), "nidm:StatisticMap", "Z-Statistic Map: " + c.Name, c.ZStatisticMap,
			attrs("nidm:statisticType", "nidm:ZStatistic")},
	}
	for _, m := range maps {
		a := append(attrs("prov:location", m.path, "nidm:contrastName", c.Name), m.extra...)
		g.addNode(Node{ID: m.id, Kind: KindEntity, Type: m.typ, Label: m.label, Attributes: a})
		g.relate(WasGeneratedBy, m.id, est)
	}
}

// CreateExcursionSet records the inference activity of a contrast and the
// thresholded map it generated.
func (g *Graph) CreateExcursionSet(e types.ExcursionSet) {
	n := e.StatIndex
	inf := idInference(n)
	g.addNode(Node{ID: inf, Kind: KindActivity, Type: "nidm:Inference", Label: "Inference " + strconv.Itoa(n)})
	g.relate(WasAssociatedWith, inf, idSoftware)
	g.relate(Used, inf, idZStatisticMap(n))
	g.relate(Used, inf, idHeightThreshold)
	g.relate(Used, inf, idExtentThreshold)
	g.relate(Used, inf, idSearchSpace)

	a := attrs("prov:location", e.Map)
	if e.Visualisation != "" {
		a = append(a, Attribute{Key: "nidm:visualisation", Value: e.Visualisation})
	}
	g.addNode(Node{
		ID: idExcursionSet(n), Kind: KindEntity, Type: "nidm:ExcursionSet",
		Label: "Excursion Set " + strconv.Itoa(n), Attributes: a,
	})
	g.relate(WasGeneratedBy, idExcursionSet(n), inf)
}

// CreateCluster records a cluster and its center of gravity.
func (g *Graph) CreateCluster(c types.Cluster) {
	id := idCluster(c.StatIndex, c.ID)
	g.addNode(Node{
		ID: id, Kind: KindEntity, Type: "nidm:Cluster",
		Label: "Cluster " + strconv.Itoa(c.ID),
		Attributes: attrs(
			"nidm:clusterLabelId", c.ID,
			"nidm:clusterSizeInVoxels", c.Size,
			"nidm:pValueFWER", c.PFWER,
		),
	})
	g.relate(WasDerivedFrom, id, idExcursionSet(c.StatIndex))

	cog := idCenterOfGravity(c.StatIndex, c.ID)
	g.addNode(Node{
		ID: cog, Kind: KindEntity, Type: "nidm:CenterOfGravity",
		Label: "Center of gravity " + strconv.Itoa(c.ID),
		Attributes: attrs(
			"nidm:coordinateVector", vector3(c.COG),
			"nidm:coordinateVectorInStandardSpace", vector3(c.COGStd),
		),
	})
	g.relate(WasDerivedFrom, cog, id)
}

// CreatePeak records a local maximum derived from its cluster.
func (g *Graph) CreatePeak(p types.Peak) {
	id := idPeak(p.StatIndex, p.ClusterID, p.Index)
	g.addNode(Node{
		ID: id, Kind: KindEntity, Type: "nidm:Peak",
		Label: fmt.Sprintf("Peak %d of cluster %d", p.Index, p.ClusterID),
		Attributes: attrs(
			"nidm:equivalentZStatistic", p.EquivZ,
			"nidm:coordinateVector", vector3(p.Coord),
			"nidm:coordinateVectorInStandardSpace", vector3(p.CoordStd),
		),
	})
	g.relate(WasDerivedFrom, id, idCluster(p.StatIndex, p.ClusterID))
}

// link adds the relations that depend on records created in a later call:
// every contrast estimation uses every beta map.
func (g *Graph) link() {
	var betas, estimations []string
	for _, n := range g.nodes {
		switch n.Type {
		case "nidm:ParameterEstimateMap":
			betas = append(betas, n.ID)
		case "nidm:ContrastEstimation":
			estimations = append(estimations, n.ID)
		}
	}
	for _, est := range estimations {
		for _, b := range betas {
			g.relate(Used, est, b)
		}
	}
}

// Validate links the graph and checks that every relation joins two
// existing nodes of the right kinds.
func (g *Graph) Validate() error {
	g.link()

	errs := append([]error(nil), g.errs...)
	want := map[RelationType][2]Kind{
		Used:              {KindActivity, KindEntity},
		WasGeneratedBy:    {KindEntity, KindActivity},
		WasDerivedFrom:    {KindEntity, KindEntity},
		WasAssociatedWith: {KindActivity, KindAgent},
	}
	for _, r := range g.relations {
		s, okS := g.Node(r.Subject)
		o, okO := g.Node(r.Object)
		switch {
		case !okS:
			errs = append(errs, fmt.Errorf("%s %s -> %s: unknown subject", r.Type, r.Subject, r.Object))
		case !okO:
			errs = append(errs, fmt.Errorf("%s %s -> %s: unknown object", r.Type, r.Subject, r.Object))
		case s.Kind != want[r.Type][0] || o.Kind != want[r.Type][1]:
			errs = append(errs, fmt.Errorf("%s %s -> %s: joins %s to %s", r.Type, r.Subject, r.Object, s.Kind, o.Kind))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &InvalidGraphError{Problems: errs}
}

// InvalidGraphError lists the problems that prevent persisting a graph.
type InvalidGraphError struct {
	Problems []error
}

func (e *InvalidGraphError) Error() string {
	msg := fmt.Sprintf("invalid provenance graph: %d problem(s)", len(e.Problems))
	for i, p := range e.Problems {
		if i == 3 {
			msg += fmt.Sprintf("; and %d more", len(e.Problems)-i)
			break
		}
		msg += "; " + p.Error()
	}
	return msg
}

// sortedPrefixes returns the namespace prefixes in a stable order.
func sortedPrefixes() []string {
	keys := make([]string, 0, len(Namespaces))
	for k := range Namespaces {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
