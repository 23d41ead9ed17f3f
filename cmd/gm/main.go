// Command gm is the graphmem CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gm",
	Short: "graphmem - local knowledge-graph cache for retrieval chunks",
	Long: `graphmem keeps a knowledge graph of retrieval chunks.

Chunk and link records live as individual JSON files under .graphmem/;
an embedded SQLite database mirrors them for fast queries and discovers
"related" links between chunks that share keywords. A cloud reconciler
can mirror a remote file store into the chunks directory, and a daemon
keeps everything current.`,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "graph", Title: "Graph commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced commands:"},
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
