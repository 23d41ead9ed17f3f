package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"graphmem/internal/cloud"
	"graphmem/internal/config"
	"graphmem/internal/graph/daemon"
	"graphmem/internal/graph/sync"
	"graphmem/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Full sync from record files to the graph cache",
	Long: `Sync all chunk and link files to the graph cache database.

This performs a full sync:
  1. Reads all chunks/*.json files
  2. Reads all links/*.json files
  3. Upserts them into the cache (.graphmem/graph.db)
  4. Rebuilds the keyword index`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		database := openDB(cfg)
		defer database.Close()

		syncer := sync.New(database, nil)

		fmt.Printf("%s Syncing from %s and %s...\n", ui.RenderAccent("🔄"), cfg.ChunksDir, cfg.LinksDir)
		start := time.Now()

		if err := syncer.FullSync(cfg.ChunksDir, cfg.LinksDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error during sync: %v\n", err)
			os.Exit(1)
		}

		elapsed := time.Since(start)
		chunkCount, _ := database.ChunkCount()
		linkCount, _ := database.LinkCount()

		fmt.Printf("%s Sync complete in %v\n", ui.RenderPass("✓"), elapsed.Round(time.Millisecond))
		fmt.Printf("   Chunks: %d\n", chunkCount)
		fmt.Printf("   Links: %d\n", linkCount)
		fmt.Printf("   Cache: %s\n", cfg.DBPath)
	},
}

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Start the sync daemon (foreground)",
	Long: `Start the graphmem sync daemon in foreground mode.

The daemon will:
  1. Perform a startup full sync
  2. Watch chunks/*.json and links/*.json for changes
  3. Sync changes to the cache with debouncing
  4. Periodically rebuild the keyword index
  5. Periodically reconcile the cloud remote, when configured`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		database := openDB(cfg)
		defer database.Close()

		logger := daemonLogger(cfg)
		syncer := sync.New(database, logger)

		dcfg := &daemon.Config{
			ReindexInterval:   cfg.ReindexInterval,
			DebounceInterval:  cfg.DebounceInterval,
			CloudSyncInterval: cfg.CloudSyncInterval,
			Logger:            logger,
		}

		d, err := daemon.NewWithConfig(syncer, cfg.ChunksDir, cfg.LinksDir, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		if cfg.CloudDir != "" {
			provider := cloud.NewDirProvider(cfg.CloudDir)
			store := cloud.NewDirContentStore(cfg.ChunksDir)
			d.AttachReconciler(cloud.NewReconciler(provider, store, logger))
			fmt.Printf("   Cloud remote: %s\n", cfg.CloudDir)
		}

		fmt.Printf("%s Starting graphmem sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Printf("   Chunks dir: %s\n", cfg.ChunksDir)
		fmt.Printf("   Links dir: %s\n", cfg.LinksDir)
		fmt.Printf("   Cache: %s\n", cfg.DBPath)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// Start daemon (this blocks)
		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon stopped with error: %v\n", err)
			os.Exit(1)
		}
	},
}

// daemonLogger builds the daemon logger, tee'ing to a rotated log file
// when one is configured.
func daemonLogger(cfg *config.Config) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		w = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
		})
	}
	return log.New(w, "[daemon] ", log.LstdFlags)
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(daemonCmd)
}
