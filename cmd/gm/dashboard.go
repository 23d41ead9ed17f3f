package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"graphmem/internal/dashboard"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Start the real-time WebSocket dashboard",
	Long: `Start a WebSocket dashboard server for monitoring graph state in real-time.

The dashboard server broadcasts chunk and link updates to connected clients.

WebSocket messages include:
- chunk_update: Chunk synced or deleted
- link_update: Link synced or deleted
- sync_complete: Full sync operation completed
- stats: Graph statistics (chunk and link counts)
- reindex: Keyword index rebuilt

Example usage:
  gm dashboard                   # Start on the configured port
  gm dashboard --port 9000       # Start on a custom port

Connect with a WebSocket client:
  ws://localhost:8080/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		port, _ := cmd.Flags().GetInt("port")

		cfg := loadConfig()
		if !cmd.Flags().Changed("port") {
			port = cfg.DashboardPort
		}

		server := dashboard.NewServer(&dashboard.Config{
			Port:   port,
			Logger: log.New(os.Stderr, "[dashboard] ", log.LstdFlags),
		})

		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
			os.Exit(1)
		}

		// Seed the stats broadcast from the cache
		handler := dashboard.NewHandler(server, nil)
		if _, err := os.Stat(cfg.DBPath); err == nil {
			database := openDB(cfg)
			chunkCount, _ := database.ChunkCount()
			linkCount, _ := database.LinkCount()
			_ = database.Close()
			handler.UpdateStats(chunkCount, linkCount)
		}

		fmt.Printf("Dashboard server started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket endpoint: ws://localhost:%d/ws\n", port)
		fmt.Printf("Health check: http://localhost:%d/health\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		<-ctx.Done()

		fmt.Println("\nShutting down dashboard server...")
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Dashboard server stopped")
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "Port to listen on")

	rootCmd.AddCommand(dashboardCmd)
}
