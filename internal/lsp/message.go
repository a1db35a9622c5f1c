// Package lsp implements the state machine that feeds the symbol
// index: a framed JSON-RPC transport to a child language-server
// process, request/response correlation with timeouts, document
// lifecycle, diagnostics aggregation, and graceful shutdown.
//
// Grounded on the two LSP clients in the retrieval pack
// (t3ta-mcp-language-server's pipe-based Client and teleivo/dot's
// rpc.Message discriminated-union wire type), adapted to the Result-
// returning, explicit-handle style this repository uses throughout.
package lsp

import (
	"encoding/json"
	"fmt"
)

// Message is the wire shape of every JSON-RPC 2.0 frame exchanged with
// the language server. Discrimination by field presence: a Request has
// Method and ID; a Response has ID and Result-or-Error; a Notification
// has Method but no ID.
type Message struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *RequestID       `json:"id,omitempty"`
	Method  string           `json:"method,omitempty"`
	Params  json.RawMessage  `json:"params,omitempty"`
	Result  json.RawMessage  `json:"result,omitempty"`
	Error   *ResponseError   `json:"error,omitempty"`
}

// RequestID holds either the int64 id we mint for our own requests or
// the raw id a server echoes back / sends on a server-initiated
// request. LSP permits string or number ids; this repository always
// mints integers but must round-trip whatever a server sends back.
type RequestID struct {
	Number int64
	String string
	IsStr  bool
}

// NewIntID wraps an integer request id.
func NewIntID(n int64) *RequestID { return &RequestID{Number: n} }

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsStr {
		return json.Marshal(id.String)
	}
	return json.Marshal(id.Number)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*id = RequestID{Number: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("lsp: request id is neither number nor string: %s", data)
	}
	*id = RequestID{String: s, IsStr: true}
	return nil
}

func (id *RequestID) String_() string {
	if id.IsStr {
		return id.String
	}
	return fmt.Sprintf("%d", id.Number)
}

// ResponseError is the JSON-RPC 2.0 error object.
type ResponseError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("lsp error %d: %s", e.Code, e.Message)
}

// IsRequest reports whether m carries a server-initiated request
// (has both Method and ID).
func (m *Message) IsRequest() bool { return m.Method != "" && m.ID != nil }

// IsResponse reports whether m is a response to one of our requests
// (has ID but no Method).
func (m *Message) IsResponse() bool { return m.Method == "" && m.ID != nil }

// IsNotification reports whether m is a notification (has Method, no ID).
func (m *Message) IsNotification() bool { return m.Method != "" && m.ID == nil }

func newRequest(id int64, method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: NewIntID(id), Method: method, Params: raw}, nil
}

func newNotification(method string, params any) (*Message, error) {
	raw, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", Method: method, Params: raw}, nil
}

func newResponseResult(id *RequestID, result any) (*Message, error) {
	raw, err := marshalParams(result)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

func newResponseError(id *RequestID, code int, message string) *Message {
	return &Message{JSONRPC: "2.0", ID: id, Error: &ResponseError{Code: code, Message: message}}
}

func marshalParams(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// encodeMessage serializes m to the JSON body of a frame (without the
// Content-Length header).
func encodeMessage(m *Message) ([]byte, error) {
	if m.JSONRPC == "" {
		m.JSONRPC = "2.0"
	}
	return json.Marshal(m)
}

// decodeMessage parses the JSON body of a frame into a Message.
func decodeMessage(body []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("lsp: decode message: %w", err)
	}
	return &m, nil
}
