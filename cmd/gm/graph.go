package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"graphmem/internal/config"
	"graphmem/internal/graph/db"
	"graphmem/internal/graph/schema"
	"graphmem/internal/ui"
)

// loadConfig resolves the working directory or exits with a hint.
func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openDB opens the query cache and initializes the schema.
func openDB(cfg *config.Config) *db.DB {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	if err := database.InitSchema(); err != nil {
		_ = database.Close()
		fmt.Fprintf(os.Stderr, "Error initializing schema: %v\n", err)
		os.Exit(1)
	}
	return database
}

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "graph",
	Short:   "Create the .graphmem working directory",
	Run: func(cmd *cobra.Command, args []string) {
		cwd, err := os.Getwd()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		cfg, err := config.Init(cwd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing workspace: %v\n", err)
			os.Exit(1)
		}

		database := openDB(cfg)
		defer database.Close()

		fmt.Printf("%s Initialized graphmem workspace\n", ui.RenderPass("✓"))
		fmt.Printf("   Chunks: %s\n", cfg.ChunksDir)
		fmt.Printf("   Links: %s\n", cfg.LinksDir)
		fmt.Printf("   Cache: %s\n", cfg.DBPath)
	},
}

var upsertCmd = &cobra.Command{
	Use:     "upsert <hash>",
	GroupID: "graph",
	Short:   "Create or update a chunk",
	Long: `Create or update a chunk record.

The chunk is written to chunks/{hash}.json and upserted into the cache.
On a repeat upsert only the supplied fields overwrite stored values;
omitted fields keep their previous value, and the chunk's usage counter
increases by one. After the upsert, chunks sharing a keyword gain a
"related" link to this chunk.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash := args[0]
		content, _ := cmd.Flags().GetString("content")
		source, _ := cmd.Flags().GetString("source")
		language, _ := cmd.Flags().GetString("language")
		keywords, _ := cmd.Flags().GetStringSlice("keyword")

		cfg := loadConfig()
		database := openDB(cfg)
		defer database.Close()

		now := time.Now()
		chunk := &schema.ChunkFile{
			Hash:      hash,
			Content:   content,
			Source:    source,
			Language:  language,
			Keywords:  keywords,
			CreatedAt: now,
			UpdatedAt: now,
		}
		chunk.NormalizeKeywords()
		chunk.SetDefaults()

		// The file is the source of truth; the cache upsert makes the
		// change queryable immediately instead of waiting for the daemon.
		if chunk.Content != "" {
			if err := schema.WriteChunkFile(cfg.ChunksDir, chunk); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing chunk file: %v\n", err)
				os.Exit(1)
			}
		}

		res, err := database.UpsertChunk(chunk)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error upserting chunk: %v\n", err)
			os.Exit(1)
		}

		action := "Updated"
		if res.Created {
			action = "Created"
		}
		fmt.Printf("%s %s chunk %s (usage=%d, discovered=%d links)\n",
			ui.RenderPass("✓"), action, hash, res.UsageCount, res.DiscoveredLinks)
	},
}

var linkCmd = &cobra.Command{
	Use:     "link <from> <relation> <to>",
	GroupID: "graph",
	Short:   "Create or update a link between two chunks",
	Long: `Create or update a link between two existing chunks.

Both endpoints must already exist. A repeat upsert of the same link
increases its usage counter; the weight is overwritten only when the
--weight flag is supplied.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		from, relation, to := args[0], args[1], args[2]
		weight, _ := cmd.Flags().GetFloat64("weight")

		cfg := loadConfig()
		database := openDB(cfg)
		defer database.Close()

		link := &schema.LinkFile{
			From:      from,
			To:        to,
			Relation:  relation,
			Weight:    weight,
			CreatedAt: time.Now(),
		}

		if err := schema.WriteLinkFile(cfg.LinksDir, link); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing link file: %v\n", err)
			os.Exit(1)
		}

		res, err := database.UpsertLink(link)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "%s %v (both endpoints must exist before linking)\n", ui.RenderWarn("⚠"), err)
			} else {
				fmt.Fprintf(os.Stderr, "Error upserting link: %v\n", err)
			}
			os.Exit(1)
		}

		action := "Updated"
		if res.Created {
			action = "Created"
		}
		fmt.Printf("%s %s link %s --%s--> %s (usage=%d)\n",
			ui.RenderPass("✓"), action, from, relation, to, res.UsageCount)
	},
}

var showCmd = &cobra.Command{
	Use:     "show <hash>",
	GroupID: "graph",
	Short:   "Show a chunk and its links",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash := args[0]
		depth, _ := cmd.Flags().GetInt("depth")

		cfg := loadConfig()
		database := openDB(cfg)
		defer database.Close()

		chunk, usage, err := database.GetChunk(hash)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "%s chunk %s not found\n", ui.RenderWarn("⚠"), hash)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(1)
		}

		fmt.Printf("\n%s %s\n\n", ui.RenderAccent("Chunk"), chunk.Hash)
		fmt.Printf("Content: %s\n", chunk.Content)
		if chunk.Source != "" {
			fmt.Printf("Source: %s\n", chunk.Source)
		}
		if chunk.Language != "" {
			fmt.Printf("Language: %s\n", chunk.Language)
		}
		if len(chunk.Keywords) > 0 {
			fmt.Printf("Keywords: %s\n", strings.Join(chunk.Keywords, ", "))
		}
		fmt.Printf("Usage: %d\n", usage)
		fmt.Printf("Updated: %s\n", chunk.UpdatedAt.Format("2006-01-02 15:04:05"))

		links, err := database.LinksFor(hash)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing links: %v\n", err)
			os.Exit(1)
		}
		if len(links) > 0 {
			fmt.Printf("\nLinks:\n")
			for _, l := range links {
				fmt.Printf("  %s --%s--> %s (weight=%g)\n", l.From, l.Relation, l.To, l.Weight)
			}
		}

		if depth > 1 {
			hashes, err := database.Neighborhood(cmd.Context(), hash, depth)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error computing neighborhood: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("\nReachable within %d hops: %d chunks\n", depth, len(hashes))
		}
		fmt.Println()
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "graph",
	Short:   "List chunks in the cache",
	Run: func(cmd *cobra.Command, args []string) {
		language, _ := cmd.Flags().GetString("language")
		keyword, _ := cmd.Flags().GetString("keyword")
		limit, _ := cmd.Flags().GetInt("limit")

		cfg := loadConfig()
		database := openDB(cfg)
		defer database.Close()

		chunks, err := database.ListChunks(db.ListChunksFilter{
			Language: language,
			Keyword:  keyword,
			Limit:    limit,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing chunks: %v\n", err)
			os.Exit(1)
		}

		for _, c := range chunks {
			preview := c.Content
			if len(preview) > 60 {
				preview = preview[:57] + "..."
			}
			fmt.Printf("%s  %s\n", ui.RenderAccent(c.Hash), preview)
		}
		fmt.Printf("\n%d chunks\n", len(chunks))
	},
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "graph",
	Short:   "Show cache status",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()

		info, err := os.Stat(cfg.DBPath)
		if os.IsNotExist(err) {
			fmt.Printf("\n%s Cache not initialized\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Run 'gm init' then 'gm sync' to create the cache\n\n")
			return
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking cache: %v\n", err)
			os.Exit(1)
		}

		database := openDB(cfg)
		defer database.Close()

		chunkCount, err := database.ChunkCount()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting chunk count: %v\n", err)
			os.Exit(1)
		}

		linkCount, err := database.LinkCount()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error getting link count: %v\n", err)
			os.Exit(1)
		}

		size := info.Size()
		sizeStr := fmt.Sprintf("%d bytes", size)
		if size > 1024*1024 {
			sizeStr = fmt.Sprintf("%.1f MB", float64(size)/(1024*1024))
		} else if size > 1024 {
			sizeStr = fmt.Sprintf("%.1f KB", float64(size)/1024)
		}

		fmt.Printf("\n%s Graph Cache Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Location: %s\n", cfg.DBPath)
		fmt.Printf("Size: %s\n", sizeStr)
		fmt.Printf("Chunks: %d\n", chunkCount)
		fmt.Printf("Links: %d\n", linkCount)
		fmt.Printf("Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
		fmt.Println()
	},
}

func init() {
	upsertCmd.Flags().StringP("content", "c", "", "Chunk content text")
	upsertCmd.Flags().StringP("source", "s", "", "Chunk source (file, URL)")
	upsertCmd.Flags().StringP("language", "l", "", "Chunk language")
	upsertCmd.Flags().StringSliceP("keyword", "k", nil, "Chunk keyword (repeatable)")

	linkCmd.Flags().Float64P("weight", "w", 0, "Link weight (default 1.0 on create)")

	showCmd.Flags().IntP("depth", "d", 1, "Neighborhood depth to report")

	listCmd.Flags().String("language", "", "Filter by language")
	listCmd.Flags().String("keyword", "", "Filter by keyword")
	listCmd.Flags().IntP("limit", "n", 50, "Maximum results")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(upsertCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
}
