package search

import (
	"fmt"

	"topicidx/internal/domain"
)

// JSON-RPC 2.0 method names.
const (
	MethodSearch = "search"
	MethodStatus = "status"
	MethodPing   = "ping"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// ErrCodeSearchFailed is returned when the index itself fails.
const ErrCodeSearchFailed = -32002

// DefaultSize is used when a request carries no result size.
const DefaultSize = 100

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string `json:"jsonrpc"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
	ID      string `json:"id"`
}

// Error represents a JSON-RPC 2.0 error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewSuccessResponse creates a successful response.
func NewSuccessResponse(id string, result any) Response {
	return Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error: &Error{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// SearchParams are the parameters of the search method.
type SearchParams struct {
	Algorithm string `json:"algorithm"`
	Size      int    `json:"size,omitempty"`
	Query     string `json:"query"`
}

// Validate checks the algorithm and defaults the size.
func (p *SearchParams) Validate() error {
	switch p.Algorithm {
	case domain.AlgorithmBM25, domain.AlgorithmTFIDF:
	default:
		return fmt.Errorf("algorithm must be %s or %s, got %q", domain.AlgorithmBM25, domain.AlgorithmTFIDF, p.Algorithm)
	}
	if p.Size < 0 {
		return fmt.Errorf("size must not be negative")
	}
	if p.Size == 0 {
		p.Size = DefaultSize
	}
	return nil
}

// SearchResult is the ranked list of document ids.
type SearchResult struct {
	IDs []string `json:"ids"`
}

// StatusResult contains server status information.
type StatusResult struct {
	Running    bool     `json:"running"`
	PID        int      `json:"pid"`
	Uptime     string   `json:"uptime"`
	Documents  uint64   `json:"documents"`
	Algorithms []string `json:"algorithms"`
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}
