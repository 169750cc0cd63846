package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/triage/internal/index"
	"github.com/moolen/triage/internal/inventory"
	"github.com/moolen/triage/internal/models"
)

const runbookDoc = `# Database Connection Pool

## Symptoms

Connection pool exhausted on user-database, clients see refused connections.

## Remediation

Owner: Sarah Chen

1. Restart the pooler.
2. Raise max_connections.
`

func testDetector() *inventory.EntityDetector {
	inv := &inventory.Inventory{
		Systems: []inventory.System{
			{Name: "user-database", Aliases: []string{"Server_A"}},
		},
	}
	return inventory.NewDetector(inv, false)
}

func TestChunkMarkdownSections(t *testing.T) {
	chunks := ChunkMarkdown(runbookDoc)
	require.Len(t, chunks, 2)

	// Every chunk keeps its section header and the document title.
	assert.Equal(t, "Symptoms", chunks[0].Header)
	assert.Equal(t, "Database Connection Pool", chunks[0].ParentTitle)
	assert.Contains(t, chunks[0].Text, "Connection pool exhausted")

	assert.Equal(t, "Remediation", chunks[1].Header)
	assert.Equal(t, "Database Connection Pool", chunks[1].ParentTitle)
}

func TestChunkMarkdownPreamble(t *testing.T) {
	chunks := ChunkMarkdown("intro text without any heading\nmore intro")
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0].Text, "intro text")
}

func TestChunkMarkdownDropsEmptySections(t *testing.T) {
	chunks := ChunkMarkdown("# Title\n\n## Empty\n\n## Full\ncontent here\n")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Full", chunks[0].Header)
}

func TestBuildFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runbook_connection_pool.md")
	require.NoError(t, os.WriteFile(path, []byte(runbookDoc), 0o644))

	b := NewBuilder(index.NewMockEmbedder(16), testDetector())
	fragments, err := b.BuildFile(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, fragments, 2)

	f := fragments[0]
	assert.Equal(t, "runbook_connection_pool#000", f.ID)
	assert.Equal(t, models.SourceRunbook, f.SourceKind)
	assert.Equal(t, "runbook_connection_pool", f.SourceID)
	assert.Len(t, f.Embedding, 16)
	assert.Equal(t, "user-database", f.Metadata["system"])
	assert.Equal(t, "Symptoms", f.Metadata["title"])
	assert.Equal(t, "Database Connection Pool", f.Metadata["document"])

	assert.Equal(t, "Sarah Chen", fragments[1].Metadata["owner"])
}

func TestBuildDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runbook_pool.md"), []byte(runbookDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "incident_2024_001.md"),
		[]byte("# INC-2024-001\n\n## Summary\nuser-database outage, pool exhausted.\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	b := NewBuilder(index.NewMockEmbedder(8), testDetector())
	fragments, err := b.BuildDir(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, fragments, 3)

	// Files are processed in sorted order, incidents first.
	assert.Equal(t, models.SourceIncident, fragments[0].SourceKind)
	assert.Contains(t, fragments[0].Metadata["incident_ids"], "INC-2024-001")
}

func TestClassifySource(t *testing.T) {
	tests := []struct {
		stem    string
		content string
		want    models.SourceKind
	}{
		{"runbook_disk", "", models.SourceRunbook},
		{"incident_2023_042", "", models.SourceIncident},
		{"oncall_contacts", "", models.SourceContact},
		{"server_inventory", "", models.SourceServer},
		{"postmortems", "postmortem for INC-17", models.SourceIncident},
	}
	for _, tt := range tests {
		t.Run(tt.stem, func(t *testing.T) {
			assert.Equal(t, tt.want, classifySource(tt.stem, tt.content))
		})
	}
}
