package test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const rpcCodeMethodNotFound = -32601

// RPCFault is a JSON-RPC error object returned by an RPCNode handler
type RPCFault struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// RPCHandler answers one JSON-RPC method. A nil result is sent as an explicit null.
type RPCHandler func(params []json.RawMessage) (any, *RPCFault)

// RPCNode is a JSON-RPC 2.0 node served over HTTP for ledger adapter tests
type RPCNode struct {
	Server *httptest.Server

	mu       sync.Mutex
	handlers map[string]RPCHandler
	calls    map[string]int
	params   map[string][]json.RawMessage
}

type rpcRequest struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
	Error   *RPCFault       `json:"error,omitempty"`
}

// NewRPCNode starts a node that answers unknown methods with "method not found"
func NewRPCNode(t *testing.T) *RPCNode {
	t.Helper()

	n := &RPCNode{
		handlers: make(map[string]RPCHandler),
		calls:    make(map[string]int),
		params:   make(map[string][]json.RawMessage),
	}
	n.Server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.Server.Close)

	return n
}

// URL of the node's endpoint
func (n *RPCNode) URL() string {
	return n.Server.URL
}

// Handle registers handler for method, replacing an earlier one
func (n *RPCNode) Handle(method string, handler RPCHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.handlers[method] = handler
}

// Result makes method always answer with result
func (n *RPCNode) Result(method string, result any) {
	n.Handle(method, func([]json.RawMessage) (any, *RPCFault) {
		return result, nil
	})
}

// Fail makes method always answer with the given error object
func (n *RPCNode) Fail(method string, code int, message string, data any) {
	n.Handle(method, func([]json.RawMessage) (any, *RPCFault) {
		return nil, &RPCFault{Code: code, Message: message, Data: data}
	})
}

// Calls returns how often method was requested
func (n *RPCNode) Calls(method string) int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.calls[method]
}

// Params returns the parameters of the last request for method
func (n *RPCNode) Params(method string) []json.RawMessage {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.params[method]
}

// UnreachableURL returns the address of a server that was already shut down
func UnreachableURL(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	return url
}

func (n *RPCNode) serve(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	n.calls[req.Method]++
	n.params[req.Method] = req.Params
	handler, ok := n.handlers[req.Method]
	n.mu.Unlock()

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if ok {
		resp.Result, resp.Error = handler(req.Params)
	} else {
		resp.Error = &RPCFault{Code: rpcCodeMethodNotFound, Message: "Method not found"}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// RequireParam decodes the idx-th parameter of the last request for method into out
func (n *RPCNode) RequireParam(t *testing.T, method string, idx int, out any) {
	t.Helper()

	params := n.Params(method)
	require.Greater(t, len(params), idx, "%s has no parameter %d", method, idx)
	require.NoError(t, json.Unmarshal(params[idx], out))
}
