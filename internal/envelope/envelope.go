// ABOUTME: Wire envelope types and codec for gateway RPC requests/responses.
// ABOUTME: Decode is strict: bad syntax, bad shapes, and trailing data are rejected.

package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxBodySize is the maximum allowed size for an encoded envelope (1MB).
const MaxBodySize = 1 << 20

// Error codes carried in response envelopes. The numbering mirrors JSON-RPC 2.0
// so off-the-shelf clients map them correctly.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

var (
	// ErrMalformedEnvelope indicates a structurally valid payload that is not a
	// valid envelope: missing id or method, or fields of the wrong shape.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrUnsupportedEncoding indicates the payload could not be parsed as
	// structured data at all.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// Request is an inbound call envelope. ID is an opaque, caller-supplied
// correlation token; the gateway echoes it verbatim and never invents ids.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound envelope. Exactly one of Result or Error is set;
// the ID field is always emitted, even on error responses.
type Response struct {
	ID     string  `json:"id"`
	Result any     `json:"result,omitempty"`
	Error  *RPCErr `json:"error,omitempty"`
}

// RPCErr is the error object carried in a response envelope.
type RPCErr struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCErr) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// NewResult builds a success response correlated to the given request id.
func NewResult(id string, result any) *Response {
	return &Response{ID: id, Result: result}
}

// NewError builds an error response correlated to the given request id.
func NewError(id string, code int, message string) *Response {
	return &Response{ID: id, Error: &RPCErr{Code: code, Message: message}}
}

// rawRequest mirrors Request with untyped fields so decode can distinguish
// absent fields from fields of the wrong shape.
type rawRequest struct {
	ID     json.RawMessage `json:"id"`
	Method json.RawMessage `json:"method"`
	Params json.RawMessage `json:"params"`
}

// DecodeRequest parses raw bytes into a Request.
//
// Syntax errors return ErrUnsupportedEncoding. Payloads that parse but are not
// a valid envelope (missing or non-string id/method, non-object params,
// trailing data after the first value) return ErrMalformedEnvelope.
func DecodeRequest(raw []byte) (*Request, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var rr rawRequest
	if err := dec.Decode(&rr); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: top-level value is not an object", ErrMalformedEnvelope)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEncoding, err)
	}
	// A second value after the envelope means the payload was not one envelope.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after envelope", ErrMalformedEnvelope)
	}

	req := &Request{Params: rr.Params}

	if len(rr.ID) == 0 {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedEnvelope)
	}
	// json.Unmarshal accepts null into a string without error, so reject it
	// explicitly: a null id is not a correlation token.
	if bytes.Equal(bytes.TrimSpace(rr.ID), []byte("null")) {
		return nil, fmt.Errorf("%w: id must be a string", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(rr.ID, &req.ID); err != nil {
		return nil, fmt.Errorf("%w: id must be a string", ErrMalformedEnvelope)
	}

	if len(rr.Method) == 0 {
		return nil, fmt.Errorf("%w: missing method", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(rr.Method, &req.Method); err != nil || req.Method == "" {
		return nil, fmt.Errorf("%w: method must be a non-empty string", ErrMalformedEnvelope)
	}

	if len(req.Params) > 0 {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(req.Params, &probe); err != nil {
			// null params are treated as absent, anything else must be an object
			if !bytes.Equal(bytes.TrimSpace(req.Params), []byte("null")) {
				return nil, fmt.Errorf("%w: params must be an object", ErrMalformedEnvelope)
			}
			req.Params = nil
		}
	}

	return req, nil
}

// Encode serializes the request for the wire.
func (r *Request) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// ParamsMap decodes the request params into a generic map for schema
// validation. A request with no params yields an empty map.
func (r *Request) ParamsMap() (map[string]any, error) {
	if len(r.Params) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(r.Params, &m); err != nil {
		return nil, fmt.Errorf("%w: params must be an object", ErrMalformedEnvelope)
	}
	return m, nil
}

// UnmarshalParams decodes the request params into a typed struct. Unknown
// fields are ignored; coarse shape checking happens before handlers run.
func (r *Request) UnmarshalParams(v any) error {
	if len(r.Params) == 0 {
		return nil
	}
	return json.Unmarshal(r.Params, v)
}

// rawResponse mirrors Response for strict decoding of forwarded replies.
type rawResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCErr         `json:"error"`
}

// DecodedResponse is a response as read off the wire, with the result kept
// raw so it can be passed through without re-interpretation.
type DecodedResponse struct {
	ID     string
	Result json.RawMessage
	Error  *RPCErr
}

// DecodeResponse parses raw bytes into a DecodedResponse, enforcing the
// envelope invariants: string id, exactly one of result/error.
func DecodeResponse(raw []byte) (*DecodedResponse, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	var rr rawResponse
	if err := dec.Decode(&rr); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedEncoding, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("%w: trailing data after envelope", ErrMalformedEnvelope)
	}

	resp := &DecodedResponse{Result: rr.Result, Error: rr.Error}

	if len(rr.ID) == 0 || bytes.Equal(bytes.TrimSpace(rr.ID), []byte("null")) {
		return nil, fmt.Errorf("%w: missing id", ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(rr.ID, &resp.ID); err != nil {
		return nil, fmt.Errorf("%w: id must be a string", ErrMalformedEnvelope)
	}

	hasResult := len(rr.Result) > 0 && !bytes.Equal(bytes.TrimSpace(rr.Result), []byte("null"))
	hasError := rr.Error != nil
	if hasResult == hasError {
		return nil, fmt.Errorf("%w: exactly one of result/error must be present", ErrMalformedEnvelope)
	}

	return resp, nil
}

// Encode serializes the response for the wire.
func (r *Response) Encode() ([]byte, error) {
	return json.Marshal(r)
}
