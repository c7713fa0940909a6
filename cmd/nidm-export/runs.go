// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/nidm-export/internal/provenance"
)

var runsCmd = &cobra.Command{
	Use:   "runs [run-id]",
	Short: "List recorded runs, or the nodes of one run",
	Long: `Runs reads the SQLite database written by export. Without arguments it
lists every recorded run, newest first. With a run id it lists that run's
nodes, optionally limited to one NIDM type (for example --type nidm:Peak).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRuns,
}

func runRuns(cmd *cobra.Command, args []string) error {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = viper.GetString("database")
	}
	if dbPath == "" {
		return fmt.Errorf("database required: use --db or set database in the config file")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	store, err := provenance.OpenStore(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if len(args) == 0 {
		runs, err := store.Runs(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(os.Stdout, runs)
		}
		printRuns(os.Stdout, runs)
		return nil
	}

	typ, _ := cmd.Flags().GetString("type")
	nodes, err := store.Nodes(ctx, args[0], typ)
	if err != nil {
		return err
	}
	if jsonOutput {
		return writeJSON(os.Stdout, nodes)
	}
	printNodes(os.Stdout, nodes)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRuns(w io.Writer, runs []provenance.RunInfo) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %6s  %9s  %s\n", "Run", "Created", "Nodes", "Relations", "Source")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-20s  %6d  %9d  %s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"), r.NodeCount, r.RelationCount, r.Source)
	}
	fmt.Fprintf(w, "\n%d runs\n", len(runs))
}

func printNodes(w io.Writer, nodes []provenance.Node) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No nodes found.")
		return
	}
	fmt.Fprintf(w, "%-32s  %-9s  %-32s  %s\n", "Id", "Kind", "Type", "Label")
	fmt.Fprintln(w, strings.Repeat("-", 100))
	for _, n := range nodes {
		fmt.Fprintf(w, "%-32s  %-9s  %-32s  %s\n", n.ID, n.Kind, n.Type, n.Label)
	}
	fmt.Fprintf(w, "\n%d nodes\n", len(nodes))
}

func init() {
	runsCmd.Flags().String("db", "", "SQLite database written by export")
	runsCmd.Flags().String("type", "", "only list nodes of this NIDM type (with a run id)")
	runsCmd.Flags().Bool("json", false, "output as JSON")

	rootCmd.AddCommand(runsCmd)
}
