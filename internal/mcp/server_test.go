package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moolen/triage/internal/models"
)

type fakeAnalyzer struct {
	report *models.IncidentReport
	err    error
	input  string
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, rawText string) (*models.IncidentReport, error) {
	f.input = rawText
	return f.report, f.err
}

type fakeSearcher struct {
	result *models.RetrievalResult
	topK   int
}

func (f *fakeSearcher) Retrieve(ctx context.Context, queryText string, detectedSystems []models.SystemRef, topK int) (*models.RetrievalResult, error) {
	f.topK = topK
	return f.result, nil
}

func TestHandleAnalyze(t *testing.T) {
	analyzer := &fakeAnalyzer{report: &models.IncidentReport{ID: "r1", Severity: "ERROR"}}
	s := NewServer(analyzer, &fakeSearcher{}, "test", 8)

	result, err := s.handleAnalyze(context.Background(), json.RawMessage(`{"log_text":"pool exhausted"}`))
	require.NoError(t, err)

	rep, ok := result.(*models.IncidentReport)
	require.True(t, ok)
	assert.Equal(t, "r1", rep.ID)
	assert.Equal(t, "pool exhausted", analyzer.input)
}

func TestHandleAnalyzeRequiresLogText(t *testing.T) {
	s := NewServer(&fakeAnalyzer{}, &fakeSearcher{}, "test", 8)

	_, err := s.handleAnalyze(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestHandleAnalyzePropagatesFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: errors.New("backend down")}
	s := NewServer(analyzer, &fakeSearcher{}, "test", 8)

	_, err := s.handleAnalyze(context.Background(), json.RawMessage(`{"log_text":"x"}`))
	assert.Error(t, err)
}

func TestHandleSearch(t *testing.T) {
	searcher := &fakeSearcher{result: &models.RetrievalResult{Fragments: []models.ScoredFragment{
		{Fragment: &models.KnowledgeFragment{ID: "rb-1", SourceKind: models.SourceRunbook, SourceID: "rb-1", Text: "drain the pool"}, Score: 0.9},
	}}}
	s := NewServer(&fakeAnalyzer{}, searcher, "test", 8)

	result, err := s.handleSearch(context.Background(), json.RawMessage(`{"query":"connection pool"}`))
	require.NoError(t, err)

	hits, ok := result.([]searchHit)
	require.True(t, ok)
	require.Len(t, hits, 1)
	assert.Equal(t, "rb-1", hits[0].FragmentID)
	assert.Equal(t, "runbook", hits[0].SourceKind)
	// Default top_k applies when the argument is omitted.
	assert.Equal(t, 8, searcher.topK)
}

func TestHandleSearchExplicitTopK(t *testing.T) {
	searcher := &fakeSearcher{result: &models.RetrievalResult{}}
	s := NewServer(&fakeAnalyzer{}, searcher, "test", 8)

	_, err := s.handleSearch(context.Background(), json.RawMessage(`{"query":"x","top_k":3}`))
	require.NoError(t, err)
	assert.Equal(t, 3, searcher.topK)
}

func TestHandleSearchRequiresQuery(t *testing.T) {
	s := NewServer(&fakeAnalyzer{}, &fakeSearcher{}, "test", 8)

	_, err := s.handleSearch(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
}
