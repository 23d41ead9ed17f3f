// Package schema defines file-based JSON schemas for graphmem storage.
//
// # Overview
//
// This package provides schemas for storing retrieval chunks and their
// relations as individual JSON files. Individual files keep each record
// independently writable, so external tools (editors, the cloud reconciler,
// shell scripts) can drop records into the working directory and the sync
// daemon picks them up one at a time.
//
// # Chunk Files
//
// Chunks are stored in chunks/*.json, named {hash}.json. The hash is the
// merge identity: two files with the same hash describe the same logical
// record.
//
//	{
//	  "hash": "c9f0ab12",
//	  "content": "WAL mode allows concurrent readers during writes.",
//	  "source": "docs/sqlite.md",
//	  "language": "en",
//	  "keywords": ["sqlite", "wal"],
//	  "created_at": "2026-08-01T09:12:44Z",
//	  "updated_at": "2026-08-01T09:12:44Z"
//	}
//
// # Link Files
//
// Relations are stored in links/*.json with the filename convention
// {from}--{relation}--{to}.json, for example c9f0ab12--related--77da01fe.json:
//
//	{
//	  "from": "c9f0ab12",
//	  "to": "77da01fe",
//	  "relation": "related",
//	  "weight": 1.0,
//	  "created_at": "2026-08-01T09:13:02Z"
//	}
//
// # Usage Examples
//
// Writing a chunk:
//
//	chunk := &schema.ChunkFile{
//	    Hash:    "c9f0ab12",
//	    Content: "WAL mode allows concurrent readers during writes.",
//	}
//	chunk.SetDefaults()
//	err := schema.WriteChunkFile("chunks", chunk)
//
// Listing links for a chunk:
//
//	links, err := schema.ListLinksForChunk("links", "c9f0ab12")
//	for _, l := range links {
//	    fmt.Printf("%s --%s--> %s\n", l.From, l.Relation, l.To)
//	}
//
// # Design Principles
//
//   - Flat JSON structure (last-write-wins, field-level merges stay cheap)
//   - Filename encodes identity (enables directory listing queries)
//   - Individual files (one record per write, no shared index file)
//   - No external validation libraries (keep dependencies minimal)
package schema
