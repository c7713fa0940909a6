// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provenance

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// WriteProvN serializes the graph in PROV-N notation.
func (g *Graph) WriteProvN(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "document")
	for _, p := range sortedPrefixes() {
		if p == "prov" || p == "xsd" {
			continue
		}
		fmt.Fprintf(bw, "  prefix %s <%s>\n", p, Namespaces[p])
	}
	fmt.Fprintln(bw)

	for _, n := range g.nodes {
		fields := []string{
			"prov:type = " + provnValue(n.Type),
			"prov:label = " + provnValue(n.Label),
		}
		for _, a := range n.Attributes {
			fields = append(fields, a.Key+" = "+provnValue(a.Value))
		}
		attrList := "[" + strings.Join(fields, ", ") + "]"
		switch n.Kind {
		case KindActivity:
			fmt.Fprintf(bw, "  activity(%s, -, -, %s)\n", n.ID, attrList)
		default:
			fmt.Fprintf(bw, "  %s(%s, %s)\n", n.Kind, n.ID, attrList)
		}
	}
	fmt.Fprintln(bw)

	for _, r := range g.relations {
		switch r.Type {
		case WasDerivedFrom:
			fmt.Fprintf(bw, "  wasDerivedFrom(%s, %s)\n", r.Subject, r.Object)
		default:
			fmt.Fprintf(bw, "  %s(%s, %s, -)\n", r.Type, r.Subject, r.Object)
		}
	}
	fmt.Fprintln(bw, "endDocument")
	return bw.Flush()
}

// provnValue renders an attribute value as a PROV-N literal. Strings in the
// nidm namespace are qualified names.
func provnValue(v any) string {
	switch x := v.(type) {
	case int:
		return fmt.Sprintf("\"%d\" %%%% xsd:int", x)
	case float64:
		return fmt.Sprintf("\"%s\" %%%% xsd:float", strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		if isQName(x) {
			return "'" + x + "'"
		}
		return strconv.Quote(x)
	default:
		return strconv.Quote(fmt.Sprint(x))
	}
}

func isQName(s string) bool {
	return strings.HasPrefix(s, "nidm:") && !strings.ContainsAny(s, " \t\"'")
}
