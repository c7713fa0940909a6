// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package provenance

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store keeps persisted graphs in a SQLite database, one run per Save.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the database at path and creates the schema
// if it does not exist.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			created_at TEXT NOT NULL,
			node_count INTEGER NOT NULL,
			relation_count INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS nodes (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			type TEXT NOT NULL,
			label TEXT,
			PRIMARY KEY (run_id, id)
		)`,
		`CREATE TABLE IF NOT EXISTS attributes (
			run_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			value_type TEXT NOT NULL,
			PRIMARY KEY (run_id, node_id, position),
			FOREIGN KEY (run_id, node_id) REFERENCES nodes(run_id, id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS relations (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			subject TEXT NOT NULL,
			object TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(run_id, type)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_subject ON relations(run_id, subject)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save stores the graph as a new run in a single transaction.
func (s *Store) Save(ctx context.Context, g *Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	runID := g.RunID.String()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, created_at, node_count, relation_count) VALUES (?, ?, ?, ?, ?)`,
		runID, g.Source, time.Now().UTC().Format(time.RFC3339Nano), len(g.nodes), len(g.relations),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO nodes (run_id, id, seq, kind, type, label) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing node insert: %w", err)
	}
	defer nodeStmt.Close()

	attrStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO attributes (run_id, node_id, position, key, value, value_type) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing attribute insert: %w", err)
	}
	defer attrStmt.Close()

	for i, n := range g.nodes {
		if _, err := nodeStmt.ExecContext(ctx, runID, n.ID, i, string(n.Kind), n.Type, n.Label); err != nil {
			return fmt.Errorf("inserting node %s: %w", n.ID, err)
		}
		for pos, a := range n.Attributes {
			value, valueType := encodeValue(a.Value)
			if _, err := attrStmt.ExecContext(ctx, runID, n.ID, pos, a.Key, value, valueType); err != nil {
				return fmt.Errorf("inserting attribute %s of %s: %w", a.Key, n.ID, err)
			}
		}
	}

	relStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO relations (run_id, seq, type, subject, object) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing relation insert: %w", err)
	}
	defer relStmt.Close()

	for i, r := range g.relations {
		if _, err := relStmt.ExecContext(ctx, runID, i, string(r.Type), r.Subject, r.Object); err != nil {
			return fmt.Errorf("inserting relation %s: %w", r.Type, err)
		}
	}

	return tx.Commit()
}

// RunInfo summarizes one stored run.
type RunInfo struct {
	ID            string    `json:"id" yaml:"id"`
	Source        string    `json:"source" yaml:"source"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	NodeCount     int       `json:"node_count" yaml:"node_count"`
	RelationCount int       `json:"relation_count" yaml:"relation_count"`
}

// Runs lists the stored runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, created_at, node_count, relation_count FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			r       RunInfo
			created string
		)
		if err := rows.Scan(&r.ID, &r.Source, &created, &r.NodeCount, &r.RelationCount); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Nodes returns the nodes of a run in creation order, optionally limited to
// one NIDM type.
func (s *Store) Nodes(ctx context.Context, runID, typ string) ([]Node, error) {
	query := `SELECT id, kind, type, label FROM nodes WHERE run_id = ?`
	args := []any{runID}
	if typ != "" {
		query += ` AND type = ?`
		args = append(args, typ)
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	var nodes []Node
	for rows.Next() {
		var (
			n     Node
			kind  string
			label sql.NullString
		)
		if err := rows.Scan(&n.ID, &kind, &n.Type, &label); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning node: %w", err)
		}
		n.Kind = Kind(kind)
		n.Label = label.String
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range nodes {
		a, err := s.attributes(ctx, runID, nodes[i].ID)
		if err != nil {
			return nil, err
		}
		nodes[i].Attributes = a
	}
	return nodes, nil
}

func (s *Store) attributes(ctx context.Context, runID, nodeID string) ([]Attribute, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value, value_type FROM attributes WHERE run_id = ? AND node_id = ? ORDER BY position`,
		runID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("querying attributes of %s: %w", nodeID, err)
	}
	defer rows.Close()

	var out []Attribute
	for rows.Next() {
		var key, value, valueType string
		if err := rows.Scan(&key, &value, &valueType); err != nil {
			return nil, fmt.Errorf("scanning attribute: %w", err)
		}
		out = append(out, Attribute{Key: key, Value: decodeValue(value, valueType)})
	}
	return out, rows.Err()
}

// Relations returns the relations of a run in creation order.
func (s *Store) Relations(ctx context.Context, runID string) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, subject, object FROM relations WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()

	var out []Relation
	for rows.Next() {
		var r Relation
		var typ string
		if err := rows.Scan(&typ, &r.Subject, &r.Object); err != nil {
			return nil, fmt.Errorf("scanning relation: %w", err)
		}
		r.Type = RelationType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}

func encodeValue(v any) (string, string) {
	switch x := v.(type) {
	case int:
		return strconv.Itoa(x), "int"
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), "float"
	case string:
		return x, "string"
	default:
		return fmt.Sprint(x), "string"
	}
}

func decodeValue(value, valueType string) any {
	switch valueType {
	case "int":
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return value
}
