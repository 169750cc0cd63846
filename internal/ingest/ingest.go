// Package ingest builds the knowledge-fragment set from a directory of
// markdown knowledge-base documents: section-aware chunking, metadata
// extraction, and batch embedding.
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/moolen/triage/internal/index"
	"github.com/moolen/triage/internal/inventory"
	"github.com/moolen/triage/internal/logging"
	"github.com/moolen/triage/internal/logparse"
	"github.com/moolen/triage/internal/models"
)

var (
	incidentIDRe = regexp.MustCompile(`\b(?:INC|INCIDENT)[-_]?\d+(?:[-_]\d+)*\b`)
	ownerLineRe  = regexp.MustCompile(`(?im)^(?:owner|on[- ]?call|escalate to)\s*[:=]\s*(.+)$`)
)

// Builder turns knowledge-base documents into embedded fragments.
type Builder struct {
	embedder index.Embedder
	detector *inventory.EntityDetector
	logger   *logging.Logger
}

// NewBuilder creates a Builder. The detector links fragments to inventory
// systems via their metadata.
func NewBuilder(embedder index.Embedder, detector *inventory.EntityDetector) *Builder {
	return &Builder{
		embedder: embedder,
		detector: detector,
		logger:   logging.GetLogger("ingest"),
	}
}

// BuildDir ingests every markdown file under dir and returns the embedded
// fragment set, sorted by fragment id for stable output.
func (b *Builder) BuildDir(ctx context.Context, dir string) ([]*models.KnowledgeFragment, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking knowledge base %s: %w", dir, err)
	}
	sort.Strings(paths)

	var fragments []*models.KnowledgeFragment
	for _, path := range paths {
		fs, err := b.BuildFile(ctx, path)
		if err != nil {
			return nil, err
		}
		fragments = append(fragments, fs...)
	}

	b.logger.InfoWithFields("knowledge base ingested",
		logging.Field("documents", len(paths)),
		logging.Field("fragments", len(fragments)),
	)
	return fragments, nil
}

// BuildFile ingests one markdown document into fragments.
func (b *Builder) BuildFile(ctx context.Context, path string) ([]*models.KnowledgeFragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	chunks := ChunkMarkdown(string(data))
	if len(chunks) == 0 {
		return nil, nil
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding %s: %w", path, err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding %s: got %d vectors for %d chunks", path, len(vectors), len(chunks))
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	kind := classifySource(stem, string(data))

	fragments := make([]*models.KnowledgeFragment, 0, len(chunks))
	for i, c := range chunks {
		fragments = append(fragments, &models.KnowledgeFragment{
			ID:         fmt.Sprintf("%s#%03d", stem, i),
			Text:       c.Text,
			Embedding:  vectors[i],
			SourceKind: kind,
			SourceID:   stem,
			Metadata:   b.extractMetadata(c),
		})
	}
	return fragments, nil
}

// classifySource infers the source kind from the file name first, then the
// document content.
func classifySource(stem, content string) models.SourceKind {
	name := strings.ToLower(stem)
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(name, "runbook"):
		return models.SourceRunbook
	case strings.Contains(name, "incident"):
		return models.SourceIncident
	case strings.Contains(name, "contact") || strings.Contains(name, "oncall") || strings.Contains(name, "on-call"):
		return models.SourceContact
	case strings.Contains(name, "server") || strings.Contains(name, "inventory"):
		return models.SourceServer
	case strings.Contains(lower, "runbook"):
		return models.SourceRunbook
	case strings.Contains(lower, "postmortem") || incidentIDRe.MatchString(content):
		return models.SourceIncident
	default:
		return models.SourceRunbook
	}
}

// extractMetadata derives searchable metadata from a chunk: title, the
// referenced system, severity, incident ids, and the owning contact.
func (b *Builder) extractMetadata(c Chunk) map[string]string {
	meta := make(map[string]string)
	if c.Header != "" {
		meta["title"] = c.Header
	} else if c.ParentTitle != "" {
		meta["title"] = c.ParentTitle
	}
	if c.ParentTitle != "" {
		meta["document"] = c.ParentTitle
	}

	if b.detector != nil {
		refs := b.detector.Detect(c.Text)
		if len(refs) > 0 {
			meta["system"] = refs[0].CanonicalName
			names := make([]string, 0, len(refs))
			for _, r := range refs {
				names = append(names, r.CanonicalName)
			}
			meta["systems"] = strings.Join(names, ",")
		}
	}

	if sev := logparse.Parse(c.Text).Severity; sev != logparse.SeverityInfo {
		meta["severity"] = sev
	}

	// Incident ids often live only in the document title.
	if ids := incidentIDRe.FindAllString(c.ParentTitle+"\n"+c.Text, -1); len(ids) > 0 {
		seen := make(map[string]bool)
		var uniq []string
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				uniq = append(uniq, id)
			}
		}
		meta["incident_ids"] = strings.Join(uniq, ",")
	}

	if m := ownerLineRe.FindStringSubmatch(c.Text); m != nil {
		meta["owner"] = strings.TrimSpace(m[1])
	}
	return meta
}
