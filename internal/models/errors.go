package models

import (
	"errors"
	"fmt"
)

// ErrRetrievalUnavailable signals that the vector index could not be reached.
// This is a pipeline-level failure and is reported to the caller, never
// swallowed into an empty result.
var ErrRetrievalUnavailable = errors.New("retrieval backend unavailable")

// ErrAnalysisUnavailable signals that fewer than two agents produced a
// finding, so no meaningful consensus can be computed.
var ErrAnalysisUnavailable = errors.New("analysis unavailable: too few agents succeeded")

// AgentError wraps a single agent's failure with its role. Agent errors are
// recovered locally via the degrade policy and only surface when too many
// agents fail.
type AgentError struct {
	Role    AgentRole
	Timeout bool
	Err     error
}

func (e *AgentError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("agent %s timed out: %v", e.Role, e.Err)
	}
	return fmt.Sprintf("agent %s failed: %v", e.Role, e.Err)
}

func (e *AgentError) Unwrap() error {
	return e.Err
}

// NewAgentError creates an AgentError for the given role.
func NewAgentError(role AgentRole, err error, timeout bool) *AgentError {
	return &AgentError{Role: role, Err: err, Timeout: timeout}
}
