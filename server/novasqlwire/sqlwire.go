package novasqlwire

import "github.com/njudb/njudb/internal/sql/executor"

// ExecuteRequest is a single SQL command request.
type ExecuteRequest struct {
	ID  uint64 `json:"id"`
	SQL string `json:"sql"`
}

// ExecuteResponse is the response for a request ID.
type ExecuteResponse struct {
	ID     uint64           `json:"id"`
	Result *executor.Result `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// AuthRequest is the first frame a client sends when the server was
// started with a password file (internal/auth); it must precede any
// ExecuteRequest.
type AuthRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// AuthResponse answers an AuthRequest before the statement loop begins.
type AuthResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}
