package daemon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequest_JSON(t *testing.T) {
	req := Request{
		JSONRPC: "2.0",
		Method:  MethodQuerySymbols,
		Params: CallParams{
			RootPath: "/path/to/project",
			Args:     map[string]any{"name": "Foo"},
		},
		ID: "req-1",
	}

	// Marshal to JSON
	data, err := json.Marshal(req)
	require.NoError(t, err)

	// Unmarshal back
	var decoded Request
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, "2.0", decoded.JSONRPC)
	assert.Equal(t, MethodQuerySymbols, decoded.Method)
	assert.Equal(t, "req-1", decoded.ID)
}

func TestResponse_Success(t *testing.T) {
	result := map[string]any{"symbols": []string{"Foo", "Bar"}}

	resp := NewSuccessResponse("req-1", result)

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "req-1", resp.ID)
	assert.NotNil(t, resp.Result)
	assert.Nil(t, resp.Error)
}

func TestResponse_Error(t *testing.T) {
	resp := NewErrorResponse("req-1", ErrCodeInvalidParams, "invalid query")

	assert.Equal(t, "2.0", resp.JSONRPC)
	assert.Equal(t, "req-1", resp.ID)
	assert.Nil(t, resp.Result)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidParams, resp.Error.Code)
	assert.Equal(t, "invalid query", resp.Error.Message)
}

func TestCallParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  CallParams
		wantErr bool
	}{
		{
			name:    "valid params",
			params:  CallParams{RootPath: "/path", Args: map[string]any{"name": "Foo"}},
			wantErr: false,
		},
		{
			name:    "empty root path",
			params:  CallParams{RootPath: "", Args: map[string]any{"name": "Foo"}},
			wantErr: true,
		},
		{
			name:    "no args is allowed",
			params:  CallParams{RootPath: "/path"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStatusResult_JSON(t *testing.T) {
	status := StatusResult{
		Running:        true,
		PID:            12345,
		Uptime:         "1h30m",
		ProjectsLoaded: 3,
		Projects:       []string{"/a", "/b", "/c"},
	}

	data, err := json.Marshal(status)
	require.NoError(t, err)

	var decoded StatusResult
	err = json.Unmarshal(data, &decoded)
	require.NoError(t, err)

	assert.Equal(t, status.Running, decoded.Running)
	assert.Equal(t, status.PID, decoded.PID)
	assert.Equal(t, status.Uptime, decoded.Uptime)
	assert.Equal(t, status.ProjectsLoaded, decoded.ProjectsLoaded)
	assert.Equal(t, status.Projects, decoded.Projects)
}

func TestMethodConstants(t *testing.T) {
	// Ensure method constants are defined
	assert.Equal(t, "query_symbols", MethodQuerySymbols)
	assert.Equal(t, "status", MethodStatus)
	assert.Equal(t, "ping", MethodPing)
	assert.Equal(t, "index_file", MethodIndexFile)
	assert.Equal(t, "index_files", MethodIndexFiles)
	assert.Equal(t, "update_incremental", MethodUpdateIncremental)
	assert.Equal(t, "remove_file", MethodRemoveFile)
	assert.Equal(t, "needs_reindex", MethodNeedsReindex)
}

func TestErrorCodes(t *testing.T) {
	// Standard JSON-RPC error codes
	assert.Equal(t, -32700, ErrCodeParseError)
	assert.Equal(t, -32600, ErrCodeInvalidRequest)
	assert.Equal(t, -32601, ErrCodeMethodNotFound)
	assert.Equal(t, -32602, ErrCodeInvalidParams)
	assert.Equal(t, -32603, ErrCodeInternalError)

	// Custom error codes
	assert.Equal(t, -32001, ErrCodeNotIndexed)
	assert.Equal(t, -32002, ErrCodeCallFailed)
}
