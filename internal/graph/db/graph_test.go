package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"graphmem/internal/graph/schema"
)

// testDB creates a temporary database with schema initialized.
func testDB(t *testing.T) *DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := database.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	return database
}

// testChunk builds a valid chunk for tests.
func testChunk(hash, content string, keywords ...string) *schema.ChunkFile {
	now := time.Now().UTC()
	return &schema.ChunkFile{
		Hash:      hash,
		Content:   content,
		Source:    "test",
		Language:  "en",
		Keywords:  keywords,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	database, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer database.Close()

	if database.path != path {
		t.Errorf("path = %q, want %q", database.path, path)
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	database := testDB(t)

	if err := database.InitSchema(); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}

	tables := []string{"chunks", "links", "chunk_keywords"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := database.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestUpsertChunk_Create(t *testing.T) {
	database := testDB(t)

	res, err := database.UpsertChunk(testChunk("c1", "hello world"))
	if err != nil {
		t.Fatalf("UpsertChunk() failed: %v", err)
	}

	if !res.Created {
		t.Error("Created = false, want true")
	}
	if res.UsageCount != 0 {
		t.Errorf("UsageCount = %d, want 0 for new chunk", res.UsageCount)
	}

	chunk, usage, err := database.GetChunk("c1")
	if err != nil {
		t.Fatalf("GetChunk() failed: %v", err)
	}
	if chunk.Content != "hello world" {
		t.Errorf("Content = %q, want %q", chunk.Content, "hello world")
	}
	if usage != 0 {
		t.Errorf("usage = %d, want 0", usage)
	}
}

func TestUpsertChunk_CreateRequiresContent(t *testing.T) {
	database := testDB(t)

	_, err := database.UpsertChunk(&schema.ChunkFile{Hash: "c1"})
	if err == nil {
		t.Fatal("UpsertChunk() with empty content on create should fail")
	}
}

func TestUpsertChunk_UpdateIncrementsUsage(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("c1", "v1")); err != nil {
		t.Fatalf("first UpsertChunk() failed: %v", err)
	}

	res, err := database.UpsertChunk(testChunk("c1", "v2"))
	if err != nil {
		t.Fatalf("second UpsertChunk() failed: %v", err)
	}

	if res.Created {
		t.Error("Created = true, want false for existing chunk")
	}
	if res.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", res.UsageCount)
	}

	chunk, _, err := database.GetChunk("c1")
	if err != nil {
		t.Fatalf("GetChunk() failed: %v", err)
	}
	if chunk.Content != "v2" {
		t.Errorf("Content = %q, want %q", chunk.Content, "v2")
	}
}

// TestUpsertChunk_Coalesce verifies that omitted fields retain their previous
// values while supplied fields overwrite.
func TestUpsertChunk_Coalesce(t *testing.T) {
	database := testDB(t)

	full := testChunk("c1", "original content", "sqlite", "wal")
	full.Metadata = map[string]string{"origin": "docs"}
	if _, err := database.UpsertChunk(full); err != nil {
		t.Fatalf("UpsertChunk() failed: %v", err)
	}

	// Partial update: only source supplied
	partial := &schema.ChunkFile{Hash: "c1", Source: "web"}
	if _, err := database.UpsertChunk(partial); err != nil {
		t.Fatalf("partial UpsertChunk() failed: %v", err)
	}

	chunk, usage, err := database.GetChunk("c1")
	if err != nil {
		t.Fatalf("GetChunk() failed: %v", err)
	}

	if chunk.Content != "original content" {
		t.Errorf("Content = %q, want retained %q", chunk.Content, "original content")
	}
	if chunk.Source != "web" {
		t.Errorf("Source = %q, want overwritten %q", chunk.Source, "web")
	}
	if chunk.Language != "en" {
		t.Errorf("Language = %q, want retained %q", chunk.Language, "en")
	}
	if len(chunk.Keywords) != 2 {
		t.Errorf("Keywords = %v, want retained 2 keywords", chunk.Keywords)
	}
	if chunk.Metadata["origin"] != "docs" {
		t.Errorf("Metadata = %v, want retained origin=docs", chunk.Metadata)
	}
	if usage != 1 {
		t.Errorf("usage = %d, want 1", usage)
	}
}

// TestUpsertChunk_RepeatedIdentical verifies idempotence-with-counting:
// repeating the identical upsert N times increments usage_count by N and
// changes nothing else.
func TestUpsertChunk_RepeatedIdentical(t *testing.T) {
	database := testDB(t)

	chunk := testChunk("c1", "stable content", "kw")
	const n = 5
	for i := 0; i < n; i++ {
		if _, err := database.UpsertChunk(chunk); err != nil {
			t.Fatalf("UpsertChunk() iteration %d failed: %v", i, err)
		}
	}

	stored, usage, err := database.GetChunk("c1")
	if err != nil {
		t.Fatalf("GetChunk() failed: %v", err)
	}
	if usage != n-1 {
		t.Errorf("usage = %d, want %d (0 on create, +1 per repeat)", usage, n-1)
	}
	if stored.Content != "stable content" {
		t.Errorf("Content changed across identical upserts: %q", stored.Content)
	}
	if len(stored.Keywords) != 1 || stored.Keywords[0] != "kw" {
		t.Errorf("Keywords changed across identical upserts: %v", stored.Keywords)
	}
}

func TestUpsertChunk_CreatedAtRetained(t *testing.T) {
	database := testDB(t)

	first := testChunk("c1", "v1")
	first.CreatedAt = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	first.UpdatedAt = first.CreatedAt
	if _, err := database.UpsertChunk(first); err != nil {
		t.Fatalf("UpsertChunk() failed: %v", err)
	}

	if _, err := database.UpsertChunk(testChunk("c1", "v2")); err != nil {
		t.Fatalf("second UpsertChunk() failed: %v", err)
	}

	chunk, _, err := database.GetChunk("c1")
	if err != nil {
		t.Fatalf("GetChunk() failed: %v", err)
	}
	if !chunk.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want retained %v", chunk.CreatedAt, first.CreatedAt)
	}
	if !chunk.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want restamped after %v", chunk.UpdatedAt, first.UpdatedAt)
	}
}

// TestUpsertChunk_LinkDiscovery verifies the additive keyword-overlap pass.
func TestUpsertChunk_LinkDiscovery(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "about sqlite", "sqlite")); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}

	res, err := database.UpsertChunk(testChunk("b", "more sqlite", "sqlite", "wal"))
	if err != nil {
		t.Fatalf("UpsertChunk(b) failed: %v", err)
	}
	if res.DiscoveredLinks != 1 {
		t.Errorf("DiscoveredLinks = %d, want 1", res.DiscoveredLinks)
	}

	// Link direction is candidate -> upserted record
	links, err := database.LinksFor("b")
	if err != nil {
		t.Fatalf("LinksFor() failed: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("len(links) = %d, want 1", len(links))
	}
	if links[0].From != "a" || links[0].To != "b" || links[0].Relation != RelationRelated {
		t.Errorf("link = %s --%s--> %s, want a --related--> b", links[0].From, links[0].Relation, links[0].To)
	}
}

func TestUpsertChunk_LinkDiscoveryAdditive(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x", "shared")); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}
	if _, err := database.UpsertChunk(testChunk("b", "y", "shared")); err != nil {
		t.Fatalf("UpsertChunk(b) failed: %v", err)
	}

	// Re-upserting b must not duplicate or remove the discovered link
	res, err := database.UpsertChunk(testChunk("b", "y", "shared"))
	if err != nil {
		t.Fatalf("re-UpsertChunk(b) failed: %v", err)
	}
	if res.DiscoveredLinks != 0 {
		t.Errorf("DiscoveredLinks = %d, want 0 on repeat", res.DiscoveredLinks)
	}

	links, err := database.LinksFor("b")
	if err != nil {
		t.Fatalf("LinksFor() failed: %v", err)
	}
	// Discovery always targets the upserted chunk, so only a->b exists.
	if len(links) != 1 {
		t.Errorf("len(links) = %d, want 1", len(links))
	}
}

func TestUpsertChunk_NoSelfLink(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x", "kw")); err != nil {
		t.Fatalf("UpsertChunk() failed: %v", err)
	}
	if _, err := database.UpsertChunk(testChunk("a", "x", "kw")); err != nil {
		t.Fatalf("re-UpsertChunk() failed: %v", err)
	}

	links, err := database.LinksFor("a")
	if err != nil {
		t.Fatalf("LinksFor() failed: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("len(links) = %d, want 0 (no self links)", len(links))
	}
}

func testLink(from, to, relation string) *schema.LinkFile {
	return &schema.LinkFile{
		From:      from,
		To:        to,
		Relation:  relation,
		CreatedAt: time.Now().UTC(),
	}
}

func TestUpsertLink_Create(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x")); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}
	if _, err := database.UpsertChunk(testChunk("b", "y")); err != nil {
		t.Fatalf("UpsertChunk(b) failed: %v", err)
	}

	res, err := database.UpsertLink(testLink("a", "b", "follows"))
	if err != nil {
		t.Fatalf("UpsertLink() failed: %v", err)
	}

	if !res.Created {
		t.Error("Created = false, want true")
	}
	if res.UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1 for new link", res.UsageCount)
	}

	links, err := database.LinksFor("a")
	if err != nil {
		t.Fatalf("LinksFor() failed: %v", err)
	}
	if len(links) != 1 || links[0].Weight != schema.DefaultWeight {
		t.Errorf("links = %+v, want one link with default weight", links)
	}
}

func TestUpsertLink_UpdateIncrementsUsage(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x")); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}
	if _, err := database.UpsertChunk(testChunk("b", "y")); err != nil {
		t.Fatalf("UpsertChunk(b) failed: %v", err)
	}

	if _, err := database.UpsertLink(testLink("a", "b", "follows")); err != nil {
		t.Fatalf("first UpsertLink() failed: %v", err)
	}

	res, err := database.UpsertLink(testLink("a", "b", "follows"))
	if err != nil {
		t.Fatalf("second UpsertLink() failed: %v", err)
	}
	if res.Created {
		t.Error("Created = true, want false")
	}
	if res.UsageCount != 2 {
		t.Errorf("UsageCount = %d, want 2", res.UsageCount)
	}
}

func TestUpsertLink_WeightCoalesce(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x")); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}
	if _, err := database.UpsertChunk(testChunk("b", "y")); err != nil {
		t.Fatalf("UpsertChunk(b) failed: %v", err)
	}

	weighted := testLink("a", "b", "follows")
	weighted.Weight = 2.5
	if _, err := database.UpsertLink(weighted); err != nil {
		t.Fatalf("UpsertLink() failed: %v", err)
	}

	// Weight omitted: stored value retained
	if _, err := database.UpsertLink(testLink("a", "b", "follows")); err != nil {
		t.Fatalf("second UpsertLink() failed: %v", err)
	}

	links, err := database.LinksFor("a")
	if err != nil {
		t.Fatalf("LinksFor() failed: %v", err)
	}
	if len(links) != 1 || links[0].Weight != 2.5 {
		t.Errorf("weight = %g, want retained 2.5", links[0].Weight)
	}
}

func TestUpsertLink_MissingEndpoint(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x")); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}

	_, err := database.UpsertLink(testLink("a", "ghost", "follows"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	_, err = database.UpsertLink(testLink("ghost", "a", "follows"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetLink(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x")); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}
	if _, err := database.UpsertChunk(testChunk("b", "y")); err != nil {
		t.Fatalf("UpsertChunk(b) failed: %v", err)
	}
	if _, err := database.UpsertLink(testLink("a", "b", "follows")); err != nil {
		t.Fatalf("UpsertLink() failed: %v", err)
	}

	link, usage, err := database.GetLink("a", "follows", "b")
	if err != nil {
		t.Fatalf("GetLink() failed: %v", err)
	}
	if link.From != "a" || link.To != "b" || link.Relation != "follows" {
		t.Errorf("link = %+v, want a --follows--> b", link)
	}
	if usage != 1 {
		t.Errorf("usage = %d, want 1", usage)
	}

	_, _, err = database.GetLink("a", "follows", "ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestGetChunk_NotFound(t *testing.T) {
	database := testDB(t)

	_, _, err := database.GetChunk("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestDeleteChunk_Cascades(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x", "kw")); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}
	if _, err := database.UpsertChunk(testChunk("b", "y", "kw")); err != nil {
		t.Fatalf("UpsertChunk(b) failed: %v", err)
	}

	if err := database.DeleteChunk("a"); err != nil {
		t.Fatalf("DeleteChunk() failed: %v", err)
	}

	links, err := database.LinksFor("b")
	if err != nil {
		t.Fatalf("LinksFor() failed: %v", err)
	}
	if len(links) != 0 {
		t.Errorf("len(links) = %d, want 0 after cascade", len(links))
	}

	// Deleting again is idempotent
	if err := database.DeleteChunk("a"); err != nil {
		t.Errorf("second DeleteChunk() failed: %v", err)
	}
}

func TestDeleteLink_Idempotent(t *testing.T) {
	database := testDB(t)

	if err := database.DeleteLink("a", "follows", "b"); err != nil {
		t.Errorf("DeleteLink() on missing link failed: %v", err)
	}
}

func TestReindexKeywords(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x", "alpha", "beta")); err != nil {
		t.Fatalf("UpsertChunk() failed: %v", err)
	}

	// Corrupt the index, then rebuild
	if _, err := database.conn.Exec(`DELETE FROM chunk_keywords`); err != nil {
		t.Fatalf("failed to clear index: %v", err)
	}

	if err := database.ReindexKeywords(); err != nil {
		t.Fatalf("ReindexKeywords() failed: %v", err)
	}

	var count int
	if err := database.conn.QueryRow(`SELECT COUNT(*) FROM chunk_keywords WHERE hash = 'a'`).Scan(&count); err != nil {
		t.Fatalf("failed to count index rows: %v", err)
	}
	if count != 2 {
		t.Errorf("index rows = %d, want 2", count)
	}
}

func TestListChunks_Filters(t *testing.T) {
	database := testDB(t)

	enChunk := testChunk("a", "english", "kw1")
	deChunk := testChunk("b", "german", "kw2")
	deChunk.Language = "de"
	if _, err := database.UpsertChunk(enChunk); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}
	if _, err := database.UpsertChunk(deChunk); err != nil {
		t.Fatalf("UpsertChunk(b) failed: %v", err)
	}

	byLang, err := database.ListChunks(ListChunksFilter{Language: "de"})
	if err != nil {
		t.Fatalf("ListChunks(language) failed: %v", err)
	}
	if len(byLang) != 1 || byLang[0].Hash != "b" {
		t.Errorf("ListChunks(language=de) = %v, want [b]", byLang)
	}

	byKeyword, err := database.ListChunks(ListChunksFilter{Keyword: "kw1"})
	if err != nil {
		t.Fatalf("ListChunks(keyword) failed: %v", err)
	}
	if len(byKeyword) != 1 || byKeyword[0].Hash != "a" {
		t.Errorf("ListChunks(keyword=kw1) = %v, want [a]", byKeyword)
	}

	limited, err := database.ListChunks(ListChunksFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListChunks(limit) failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("len(limited) = %d, want 1", len(limited))
	}
}

func TestListChunks_Pagination(t *testing.T) {
	database := testDB(t)

	for _, h := range []string{"a", "b", "c"} {
		if _, err := database.UpsertChunk(testChunk(h, "content "+h)); err != nil {
			t.Fatalf("UpsertChunk(%s) failed: %v", h, err)
		}
	}

	// Offset works without a limit
	rest, err := database.ListChunks(ListChunksFilter{Offset: 1})
	if err != nil {
		t.Fatalf("ListChunks(offset only) failed: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("len(rest) = %d, want 2", len(rest))
	}

	// And combined with a limit
	page, err := database.ListChunks(ListChunksFilter{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListChunks(limit+offset) failed: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("len(page) = %d, want 1", len(page))
	}
}

func TestNeighborhood(t *testing.T) {
	database := testDB(t)

	for _, h := range []string{"a", "b", "c", "d"} {
		if _, err := database.UpsertChunk(testChunk(h, "content "+h)); err != nil {
			t.Fatalf("UpsertChunk(%s) failed: %v", h, err)
		}
	}

	// a -> b -> c, d isolated
	if _, err := database.UpsertLink(testLink("a", "b", "follows")); err != nil {
		t.Fatalf("UpsertLink(a,b) failed: %v", err)
	}
	if _, err := database.UpsertLink(testLink("b", "c", "follows")); err != nil {
		t.Fatalf("UpsertLink(b,c) failed: %v", err)
	}

	ctx := context.Background()

	depth1, err := database.Neighborhood(ctx, "a", 1)
	if err != nil {
		t.Fatalf("Neighborhood(depth=1) failed: %v", err)
	}
	if len(depth1) != 1 || depth1[0] != "b" {
		t.Errorf("Neighborhood(a, 1) = %v, want [b]", depth1)
	}

	depth2, err := database.Neighborhood(ctx, "a", 2)
	if err != nil {
		t.Fatalf("Neighborhood(depth=2) failed: %v", err)
	}
	if len(depth2) != 2 {
		t.Errorf("Neighborhood(a, 2) = %v, want [b c]", depth2)
	}
}

func TestCounts(t *testing.T) {
	database := testDB(t)

	if _, err := database.UpsertChunk(testChunk("a", "x")); err != nil {
		t.Fatalf("UpsertChunk(a) failed: %v", err)
	}
	if _, err := database.UpsertChunk(testChunk("b", "y")); err != nil {
		t.Fatalf("UpsertChunk(b) failed: %v", err)
	}
	if _, err := database.UpsertLink(testLink("a", "b", "follows")); err != nil {
		t.Fatalf("UpsertLink() failed: %v", err)
	}

	chunks, err := database.ChunkCount()
	if err != nil {
		t.Fatalf("ChunkCount() failed: %v", err)
	}
	if chunks != 2 {
		t.Errorf("ChunkCount() = %d, want 2", chunks)
	}

	links, err := database.LinkCount()
	if err != nil {
		t.Fatalf("LinkCount() failed: %v", err)
	}
	if links != 1 {
		t.Errorf("LinkCount() = %d, want 1", links)
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	database := testDB(t)

	chunk := testChunk("a", "x")
	chunk.Embedding = []float32{0.5, -1.25, 3}
	if _, err := database.UpsertChunk(chunk); err != nil {
		t.Fatalf("UpsertChunk() failed: %v", err)
	}

	stored, _, err := database.GetChunk("a")
	if err != nil {
		t.Fatalf("GetChunk() failed: %v", err)
	}
	if len(stored.Embedding) != 3 || stored.Embedding[1] != -1.25 {
		t.Errorf("Embedding = %v, want [0.5 -1.25 3]", stored.Embedding)
	}
}
