// Package mcp exposes the diagnosis pipeline over the Model Context
// Protocol so agent frontends can call it as a tool. Transport is stdio:
// protocol messages on stdout, logs on stderr.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/moolen/triage/internal/logging"
	"github.com/moolen/triage/internal/models"
)

// Analyzer runs one end-to-end incident diagnosis.
type Analyzer interface {
	Analyze(ctx context.Context, rawText string) (*models.IncidentReport, error)
}

// Searcher queries the knowledge index directly, without agent reasoning.
type Searcher interface {
	Retrieve(ctx context.Context, queryText string, detectedSystems []models.SystemRef, topK int) (*models.RetrievalResult, error)
}

// Server wraps the mcp-go server with the triage tools.
type Server struct {
	mcpServer *server.MCPServer
	analyzer  Analyzer
	searcher  Searcher
	topK      int
	logger    *logging.Logger
}

// NewServer creates the MCP server and registers its tools and prompts.
func NewServer(analyzer Analyzer, searcher Searcher, version string, topK int) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Triage MCP Server",
			version,
			server.WithToolCapabilities(false),
			server.WithLogging(),
		),
		analyzer: analyzer,
		searcher: searcher,
		topK:     topK,
		logger:   logging.GetLogger("mcp"),
	}
	s.registerTools()
	s.registerPrompts()
	return s
}

func (s *Server) registerTools() {
	s.registerTool(
		"analyze_incident",
		"Diagnose an infrastructure log or error snippet: detect affected systems, retrieve matching incidents and runbooks, and produce a structured incident report with confidence scoring",
		s.handleAnalyze,
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"log_text": map[string]interface{}{
					"type":        "string",
					"description": "Raw log or error text to diagnose",
				},
			},
			"required": []string{"log_text"},
		},
	)

	s.registerTool(
		"search_knowledge",
		"Search the operational knowledge base (incidents, runbooks, server records, contacts) by semantic similarity",
		s.handleSearch,
		map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Free-text search query",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Optional: max fragments to return",
				},
			},
			"required": []string{"query"},
		},
	)
}

type toolFunc func(ctx context.Context, args json.RawMessage) (interface{}, error)

func (s *Server) registerTool(name, description string, fn toolFunc, inputSchema map[string]interface{}) {
	schemaJSON, err := json.Marshal(inputSchema)
	if err != nil {
		panic(fmt.Sprintf("failed to marshal schema for tool %s: %v", name, err))
	}
	tool := mcp.NewToolWithRawSchema(name, description, schemaJSON)

	s.mcpServer.AddTool(tool, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(request.Params.Arguments)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		result, err := fn(ctx, args)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		resultJSON, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to format result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(resultJSON)), nil
	})
}

type analyzeArgs struct {
	LogText string `json:"log_text"`
}

func (s *Server) handleAnalyze(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args analyzeArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.LogText == "" {
		return nil, fmt.Errorf("log_text is required")
	}

	rep, err := s.analyzer.Analyze(ctx, args.LogText)
	if err != nil {
		return nil, fmt.Errorf("analysis failed: %w", err)
	}
	return rep, nil
}

type searchArgs struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

// searchHit is the wire shape of one search_knowledge result.
type searchHit struct {
	FragmentID string  `json:"fragment_id"`
	SourceKind string  `json:"source_kind"`
	SourceID   string  `json:"source_id"`
	Score      float64 `json:"score"`
	Text       string  `json:"text"`
}

func (s *Server) handleSearch(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args searchArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if args.Query == "" {
		return nil, fmt.Errorf("query is required")
	}
	topK := args.TopK
	if topK <= 0 {
		topK = s.topK
	}

	retrieval, err := s.searcher.Retrieve(ctx, args.Query, nil, topK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]searchHit, 0, len(retrieval.Fragments))
	for _, sf := range retrieval.Fragments {
		hits = append(hits, searchHit{
			FragmentID: sf.Fragment.ID,
			SourceKind: string(sf.Fragment.SourceKind),
			SourceID:   sf.Fragment.SourceID,
			Score:      sf.Score,
			Text:       sf.Fragment.Text,
		})
	}
	return hits, nil
}

func (s *Server) registerPrompts() {
	prompt := mcp.Prompt{
		Name:        "diagnose_incident",
		Description: "Diagnose an ongoing incident from a log snippet",
		Arguments: []mcp.PromptArgument{
			{Name: "log_text", Description: "Raw log or error text", Required: true},
			{Name: "context", Description: "Optional extra context about the incident", Required: false},
		},
	}

	s.mcpServer.AddPrompt(prompt, func(ctx context.Context, request mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		logText := request.Params.Arguments["log_text"]
		extra := request.Params.Arguments["context"]

		text := fmt.Sprintf("Diagnose this incident using the analyze_incident tool, then verify the suggested runbook with search_knowledge:\n\n%s", logText)
		if extra != "" {
			text += fmt.Sprintf("\n\nAdditional context: %s", extra)
		}

		return &mcp.GetPromptResult{
			Description: "Incident diagnosis workflow",
			Messages: []mcp.PromptMessage{
				{
					Role:    mcp.RoleUser,
					Content: mcp.TextContent{Type: "text", Text: text},
				},
			},
		}, nil
	})
}

// ServeStdio blocks serving the MCP protocol on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting MCP stdio transport")
	return server.ServeStdio(s.mcpServer)
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
