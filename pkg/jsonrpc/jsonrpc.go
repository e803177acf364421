// Package jsonrpc holds the JSON-RPC 2.0 envelope shared by the A2A and MCP
// endpoints.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const Version = "2.0"

// MaxBodyBytes bounds a single request body.
const MaxBodyBytes = 1 << 20

const (
	CodeParse          = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603
	CodeTaskNotFound   = -32001
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc: %d %s", e.Code, e.Message)
}

func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

func NewResponse(id json.RawMessage, result any) Response {
	return Response{
		JSONRPC: Version,
		ID:      id,
		Result:  result,
	}
}

func NewErrorResponse(id json.RawMessage, code int, message string) Response {
	return Response{
		JSONRPC: Version,
		ID:      id,
		Error:   NewError(code, message),
	}
}

// HTTPStatus maps an error code to the status the envelope is sent with.
// Request-shape problems are client errors, internal failures are server
// errors, and everything else rides on a 200.
func HTTPStatus(code int) int {
	switch code {
	case CodeParse, CodeInvalidRequest, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// Decode reads one request. Malformed JSON is a parse error; well-formed
// JSON that is not a request object is an invalid request. The version is
// left for the caller to check so it can echo the request id.
func Decode(r io.Reader) (Request, *Error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxBodyBytes))
	if err != nil {
		return Request{}, NewError(CodeParse, "Parse error")
	}
	if !json.Valid(data) {
		return Request{}, NewError(CodeParse, "Parse error")
	}

	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return Request{}, NewError(CodeInvalidRequest, "Invalid request")
		}
		return Request{}, NewError(CodeParse, "Parse error")
	}
	return req, nil
}

// Write sends resp with the status implied by its error code.
func Write(w http.ResponseWriter, resp Response) {
	status := http.StatusOK
	if resp.Error != nil {
		status = HTTPStatus(resp.Error.Code)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
