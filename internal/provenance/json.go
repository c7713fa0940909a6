// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provenance

import (
	"encoding/json"
	"fmt"
	"io"
)

// provJSONRoles names the two endpoints of each relation in PROV-JSON.
var provJSONRoles = map[RelationType][2]string{
	Used:              {"prov:activity", "prov:entity"},
	WasGeneratedBy:    {"prov:entity", "prov:activity"},
	WasDerivedFrom:    {"prov:generatedEntity", "prov:usedEntity"},
	WasAssociatedWith: {"prov:activity", "prov:agent"},
}

var provJSONIDPrefix = map[RelationType]string{
	Used:              "_:u",
	WasGeneratedBy:    "_:g",
	WasDerivedFrom:    "_:d",
	WasAssociatedWith: "_:a",
}

// WriteJSON serializes the graph as PROV-JSON.
func (g *Graph) WriteJSON(w io.Writer) error {
	doc := map[string]any{"prefix": Namespaces}

	for _, n := range g.nodes {
		section, _ := doc[string(n.Kind)].(map[string]any)
		if section == nil {
			section = make(map[string]any)
			doc[string(n.Kind)] = section
		}
		rec := map[string]any{
			"prov:type":  map[string]string{"$": n.Type, "type": "xsd:QName"},
			"prov:label": n.Label,
		}
		for _, a := range n.Attributes {
			if s, ok := a.Value.(string); ok && isQName(s) {
				rec[a.Key] = map[string]string{"$": s, "type": "xsd:QName"}
				continue
			}
			rec[a.Key] = a.Value
		}
		section[n.ID] = rec
	}

	counts := make(map[RelationType]int)
	for _, r := range g.relations {
		section, _ := doc[string(r.Type)].(map[string]any)
		if section == nil {
			section = make(map[string]any)
			doc[string(r.Type)] = section
		}
		counts[r.Type]++
		roles := provJSONRoles[r.Type]
		section[fmt.Sprintf("%s%d", provJSONIDPrefix[r.Type], counts[r.Type])] = map[string]string{
			roles[0]: r.Subject,
			roles[1]: r.Object,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
