// Package models defines the shared data types that flow through the
// diagnosis pipeline: knowledge fragments, queries, agent findings,
// consensus results, and the final incident report.
package models

// SourceKind identifies the kind of source document a knowledge fragment
// was ingested from.
type SourceKind string

const (
	SourceServer   SourceKind = "server"
	SourceIncident SourceKind = "incident"
	SourceRunbook  SourceKind = "runbook"
	SourceContact  SourceKind = "contact"
)

// Priority returns the tie-break priority of the source kind in retrieval
// ranking. Higher wins: incident > runbook > server > contact.
func (k SourceKind) Priority() int {
	switch k {
	case SourceIncident:
		return 3
	case SourceRunbook:
		return 2
	case SourceServer:
		return 1
	case SourceContact:
		return 0
	default:
		return -1
	}
}

// Valid reports whether the source kind is one of the known kinds.
func (k SourceKind) Valid() bool {
	return k.Priority() >= 0
}

// KnowledgeFragment is an immutable unit of retrievable knowledge. Fragments
// are created at ingestion time and never mutated; their lifetime is the
// lifetime of the index snapshot that holds them.
type KnowledgeFragment struct {
	ID         string
	Text       string
	Embedding  []float32
	SourceKind SourceKind
	SourceID   string
	Metadata   map[string]string
}

// System returns the system this fragment is associated with, or "" when the
// ingestion job recorded none.
func (f *KnowledgeFragment) System() string {
	return f.Metadata["system"]
}

// ScoredFragment is one retrieval hit: a fragment with its similarity score
// and its position in the ranked result.
type ScoredFragment struct {
	Fragment *KnowledgeFragment
	Score    float64
	Rank     int
}

// RetrievalResult is an ordered sequence of scored fragments, sorted by score
// descending with deterministic tie-breaking.
type RetrievalResult struct {
	Fragments []ScoredFragment
}

// FragmentByID returns the fragment with the given id, or nil.
func (r *RetrievalResult) FragmentByID(id string) *KnowledgeFragment {
	for i := range r.Fragments {
		if r.Fragments[i].Fragment.ID == id {
			return r.Fragments[i].Fragment
		}
	}
	return nil
}

// FragmentRef is a lightweight reference to a fragment carried in the final
// report, keeping provenance without the full text and embedding.
type FragmentRef struct {
	FragmentID string     `json:"fragment_id"`
	SourceID   string     `json:"source_id"`
	SourceKind SourceKind `json:"source_kind"`
	Title      string     `json:"title,omitempty"`
	Score      float64    `json:"score"`
}

// Ref builds a FragmentRef from a scored fragment.
func (s ScoredFragment) Ref() FragmentRef {
	return FragmentRef{
		FragmentID: s.Fragment.ID,
		SourceID:   s.Fragment.SourceID,
		SourceKind: s.Fragment.SourceKind,
		Title:      s.Fragment.Metadata["title"],
		Score:      s.Score,
	}
}
