// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provenance

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"
)

const (
	provnFile        = "nidm.provn"
	jsonFile         = "nidm.json"
	yamlFile         = "nidm.yaml"
	dotFile          = "nidm.dot"
	pngFile          = "nidm.png"
	designMatrixFile = "design_matrix.csv"
	dbFile           = "nidm.db"
)

// Renderer turns a Graphviz DOT document into a PNG image.
type Renderer interface {
	Render(ctx context.Context, dot io.Reader, png io.Writer) error
}

// PersistConfig says where Persist writes.
type PersistConfig struct {
	// ExportDir receives the serialized graph files.
	ExportDir string

	// Database is the SQLite store path (default ExportDir/nidm.db). Several
	// runs may share one database.
	Database string

	// Renderer, when set, produces nidm.png. Its failures are logged only.
	Renderer Renderer
}

// PersistResult lists what Persist wrote.
type PersistResult struct {
	RunID    string
	Files    []string
	Database string
}

// Export is the YAML form of the graph.
type Export struct {
	RunID     string     `json:"run_id" yaml:"run_id"`
	Source    string     `json:"source" yaml:"source"`
	Nodes     []Node     `json:"nodes" yaml:"nodes"`
	Relations []Relation `json:"relations" yaml:"relations"`
}

// Persist validates the graph and writes nidm.provn, nidm.json, nidm.yaml,
// nidm.dot and design_matrix.csv into the export directory, stores the run in
// the SQLite database and, if a renderer is configured, writes nidm.png.
// Nothing is left behind when validation, serialization or storing the run
// fails.
func (g *Graph) Persist(ctx context.Context, cfg PersistConfig) (PersistResult, error) {
	if cfg.ExportDir == "" {
		return PersistResult{}, fmt.Errorf("export directory is required")
	}
	if err := g.Validate(); err != nil {
		return PersistResult{}, err
	}

	outputs := []struct {
		name  string
		write func(io.Writer) error
	}{
		{provnFile, g.WriteProvN},
		{jsonFile, g.WriteJSON},
		{yamlFile, g.WriteYAML},
		{dotFile, g.WriteDOT},
		{designMatrixFile, g.writeDesignMatrix},
	}

	rendered := make(map[string][]byte, len(outputs))
	for _, o := range outputs {
		var buf bytes.Buffer
		if err := o.write(&buf); err != nil {
			return PersistResult{}, fmt.Errorf("serializing %s: %w", o.name, err)
		}
		rendered[o.name] = buf.Bytes()
	}

	_, statErr := os.Stat(cfg.ExportDir)
	created := errors.Is(statErr, fs.ErrNotExist)
	if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
		return PersistResult{}, fmt.Errorf("creating export directory: %w", err)
	}

	// Files are staged under temporary names and moved into place only once
	// the run is stored.
	var staged []string
	rollback := func() {
		if created {
			os.RemoveAll(cfg.ExportDir)
			return
		}
		for _, p := range staged {
			os.Remove(p)
		}
	}
	for _, o := range outputs {
		tmp := filepath.Join(cfg.ExportDir, "."+o.name+".tmp")
		if err := os.WriteFile(tmp, rendered[o.name], 0o644); err != nil {
			rollback()
			return PersistResult{}, fmt.Errorf("writing %s: %w", tmp, err)
		}
		staged = append(staged, tmp)
	}

	dbPath := cfg.Database
	if dbPath == "" {
		dbPath = filepath.Join(cfg.ExportDir, dbFile)
	}
	if err := saveRun(ctx, dbPath, g); err != nil {
		rollback()
		return PersistResult{}, err
	}

	result := PersistResult{RunID: g.RunID.String(), Database: dbPath}
	for i, o := range outputs {
		path := filepath.Join(cfg.ExportDir, o.name)
		if err := os.Rename(staged[i], path); err != nil {
			for _, p := range staged[i:] {
				os.Remove(p)
			}
			return result, fmt.Errorf("moving %s into place: %w", path, err)
		}
		result.Files = append(result.Files, path)
	}

	if cfg.Renderer != nil {
		path := filepath.Join(cfg.ExportDir, pngFile)
		if err := renderPNG(ctx, cfg.Renderer, rendered[dotFile], path); err != nil {
			g.logger.Warn("graph image not rendered", zap.Error(err))
		} else {
			result.Files = append(result.Files, path)
		}
	}

	g.logger.Info("graph persisted",
		zap.String("run_id", result.RunID),
		zap.Int("nodes", len(g.nodes)),
		zap.Int("relations", len(g.relations)),
		zap.String("export_dir", cfg.ExportDir))
	return result, nil
}

func saveRun(ctx context.Context, dbPath string, g *Graph) error {
	store, err := OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, g)
}

func renderPNG(ctx context.Context, r Renderer, dot []byte, path string) error {
	var png bytes.Buffer
	if err := r.Render(ctx, bytes.NewReader(dot), &png); err != nil {
		return err
	}
	if png.Len() == 0 {
		return fmt.Errorf("renderer produced no image")
	}
	return os.WriteFile(path, png.Bytes(), 0o644)
}

// WriteYAML serializes the graph as an Export document.
func (g *Graph) WriteYAML(w io.Writer) error {
	exp := Export{
		RunID:     g.RunID.String(),
		Source:    g.Source,
		Nodes:     g.nodes,
		Relations: g.relations,
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&exp); err != nil {
		return fmt.Errorf("marshaling YAML: %w", err)
	}
	return enc.Close()
}

// dotStyle follows the usual PROV colour scheme.
var dotStyle = map[Kind]string{
	KindEntity:   `shape=ellipse, style=filled, fillcolor="#FFFC87"`,
	KindActivity: `shape=box, style=filled, fillcolor="#9FB1FC"`,
	KindAgent:    `shape=house, style=filled, fillcolor="#FED37F"`,
}

// WriteDOT serializes the graph for Graphviz.
func (g *Graph) WriteDOT(w io.Writer) error {
	var b bytes.Buffer
	b.WriteString("digraph nidm {\n  rankdir=BT;\n")
	for _, n := range g.nodes {
		fmt.Fprintf(&b, "  %s [label=%s, %s];\n", strconv.Quote(n.ID), strconv.Quote(n.Label), dotStyle[n.Kind])
	}
	for _, r := range g.relations {
		fmt.Fprintf(&b, "  %s -> %s [label=%s];\n", strconv.Quote(r.Subject), strconv.Quote(r.Object), strconv.Quote(string(r.Type)))
	}
	b.WriteString("}\n")
	_, err := w.Write(b.Bytes())
	return err
}

func (g *Graph) writeDesignMatrix(w io.Writer) error {
	cw := csv.NewWriter(w)
	for _, row := range g.designMatrix {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
