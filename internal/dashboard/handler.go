// Package dashboard provides event handling and message formatting for the dashboard.
package dashboard

import (
	"encoding/json"
	"log"
	"time"
)

// Handler formats daemon events as dashboard messages.
// It bridges between daemon events and the WebSocket server, and satisfies
// the daemon's Notifier interface.
type Handler struct {
	server *Server
	logger *log.Logger

	// Statistics tracking
	stats StatsData
}

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}

	return &Handler{
		server: server,
		logger: logger,
	}
}

// ChunkChanged handles chunk sync/delete events
func (h *Handler) ChunkChanged(hash, action string) {
	h.logger.Printf("Chunk %s: %s", action, hash)

	switch action {
	case "synced":
		h.stats.Chunks++
	case "deleted":
		if h.stats.Chunks > 0 {
			h.stats.Chunks--
		}
	}

	data := ChunkUpdateData{
		Hash:   hash,
		Action: action,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal chunk data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeChunkUpdate,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	h.broadcastStats()
}

// LinkChanged handles link sync/delete events
func (h *Handler) LinkChanged(from, relation, to, action string) {
	h.logger.Printf("Link %s: %s --%s--> %s", action, from, relation, to)

	switch action {
	case "synced":
		h.stats.Links++
	case "deleted":
		if h.stats.Links > 0 {
			h.stats.Links--
		}
	}

	data := LinkUpdateData{
		From:     from,
		To:       to,
		Relation: relation,
		Action:   action,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal link data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeLinkUpdate,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})

	h.broadcastStats()
}

// SyncCompleted handles full sync completion events
func (h *Handler) SyncCompleted(duration time.Duration) {
	h.logger.Printf("Sync complete in %v", duration)

	data := SyncCompleteData{
		Duration: duration,
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal sync data: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeSyncComplete,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}

// Reindexed handles keyword index rebuild events
func (h *Handler) Reindexed() {
	h.logger.Printf("Keyword index rebuilt")

	h.server.Broadcast(Message{
		Type:      MessageTypeReindex,
		Timestamp: time.Now(),
	})
}

// UpdateStats replaces the tracked statistics from authoritative counts.
// This is useful for initialization or periodic refresh from the database.
func (h *Handler) UpdateStats(chunks, links int) {
	h.stats.Chunks = chunks
	h.stats.Links = links
	h.broadcastStats()
}

// GetStats returns the current statistics
func (h *Handler) GetStats() StatsData {
	return h.stats
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	dataJSON, err := json.Marshal(h.stats)
	if err != nil {
		h.logger.Printf("Failed to marshal stats: %v", err)
		return
	}

	h.server.Broadcast(Message{
		Type:      MessageTypeStats,
		Timestamp: time.Now(),
		Data:      dataJSON,
	})
}
