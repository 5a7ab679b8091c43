package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version
	JSONRPCVersion = "2.0"
)

// ErrorCode represents standard JSON-RPC 2.0 error codes
type ErrorCode int

// Standard error codes as per JSON-RPC 2.0 specification
const (
	ParseError     ErrorCode = -32700
	InvalidRequest ErrorCode = -32600
	MethodNotFound ErrorCode = -32601
	InvalidParams  ErrorCode = -32602
	InternalError  ErrorCode = -32603
)

// ErrInvalidMessage is returned by Decode for input that is valid JSON but
// not a JSON-RPC 2.0 message this client understands.
var ErrInvalidMessage = errors.New("invalid JSON-RPC message")

// JSONRPCMessage represents a JSON-RPC 2.0 message
type JSONRPCMessage struct {
	JSONRPC string `json:"jsonrpc"`
}

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPCMessage
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewRequest creates a new JSON-RPC 2.0 request
func NewRequest(id interface{}, method string, params interface{}) (*Request, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	return &Request{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Response represents a JSON-RPC 2.0 response. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPCMessage
	ID     interface{}     `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorObject    `json:"error,omitempty"`
}

// NewResponse creates a new JSON-RPC 2.0 success response
func NewResponse(id interface{}, result interface{}) (*Response, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Result:         resultJSON,
	}, nil
}

// NewErrorResponse creates a new JSON-RPC 2.0 error response
func NewErrorResponse(id interface{}, code ErrorCode, message string, data interface{}) (*Response, error) {
	dataJSON, err := marshalOptional(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error data: %w", err)
	}

	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Error: &ErrorObject{
			Code:    code,
			Message: message,
			Data:    dataJSON,
		},
	}, nil
}

// Notification represents a JSON-RPC 2.0 notification
type Notification struct {
	JSONRPCMessage
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// NewNotification creates a new JSON-RPC 2.0 notification
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	return &Notification{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// ErrorObject represents a JSON-RPC 2.0 error object
type ErrorObject struct {
	Code    ErrorCode       `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *ErrorObject) Error() string {
	return fmt.Sprintf("rpc error: code = %d desc = %s", e.Code, e.Message)
}

func marshalOptional(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

// IDKey normalizes a request id into the string used to correlate responses.
// Providers echo ids back verbatim, but numeric ids come back as float64
// after a round trip through encoding/json.
func IDKey(id interface{}) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// Encode serializes a request, response or notification as one line of
// JSON terminated by a newline.
func Encode(msg interface{}) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return append(data, '\n'), nil
}

// InboundKind tags a decoded message.
type InboundKind int

const (
	KindResponse InboundKind = iota + 1
	KindNotification
	KindRequest
)

func (k InboundKind) String() string {
	switch k {
	case KindResponse:
		return "response"
	case KindNotification:
		return "notification"
	case KindRequest:
		return "request"
	default:
		return "unknown"
	}
}

// Inbound is a message received from a provider. Exactly one of the
// pointers matching Kind is set.
type Inbound struct {
	Kind         InboundKind
	Response     *Response
	Notification *Notification
	Request      *Request
}

type rawMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *ErrorObject    `json:"error"`
}

// Decode parses one line received from a provider and classifies it by the
// presence of id. Leading and trailing whitespace, including the line
// terminator, is ignored.
func Decode(line []byte) (*Inbound, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil, fmt.Errorf("%w: empty message", ErrInvalidMessage)
	}

	var raw rawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if raw.JSONRPC != JSONRPCVersion {
		return nil, fmt.Errorf("%w: unsupported jsonrpc version %q", ErrInvalidMessage, raw.JSONRPC)
	}

	hasID := len(raw.ID) > 0 && !bytes.Equal(raw.ID, []byte("null"))

	switch {
	case hasID && raw.Method != "":
		id, err := decodeID(raw.ID)
		if err != nil {
			return nil, err
		}
		return &Inbound{Kind: KindRequest, Request: &Request{
			JSONRPCMessage: JSONRPCMessage{JSONRPC: raw.JSONRPC},
			ID:             id,
			Method:         raw.Method,
			Params:         raw.Params,
		}}, nil

	case raw.Method != "":
		return &Inbound{Kind: KindNotification, Notification: &Notification{
			JSONRPCMessage: JSONRPCMessage{JSONRPC: raw.JSONRPC},
			Method:         raw.Method,
			Params:         raw.Params,
		}}, nil
	}

	// A response. An error response to an unparseable request may carry a
	// null id; it is still a response, just one nobody is waiting for.
	if !hasID && raw.Error == nil {
		return nil, fmt.Errorf("%w: message has neither id nor method", ErrInvalidMessage)
	}

	hasResult := len(raw.Result) > 0
	if raw.Error != nil && hasResult && !bytes.Equal(raw.Result, []byte("null")) {
		return nil, fmt.Errorf("%w: response carries both result and error", ErrInvalidMessage)
	}
	if raw.Error == nil && !hasResult {
		return nil, fmt.Errorf("%w: response carries neither result nor error", ErrInvalidMessage)
	}

	resp := &Response{JSONRPCMessage: JSONRPCMessage{JSONRPC: raw.JSONRPC}}
	if hasID {
		id, err := decodeID(raw.ID)
		if err != nil {
			return nil, err
		}
		resp.ID = id
	}
	if raw.Error != nil {
		resp.Error = raw.Error
	} else {
		resp.Result = raw.Result
	}
	return &Inbound{Kind: KindResponse, Response: resp}, nil
}

func decodeID(raw json.RawMessage) (interface{}, error) {
	var id interface{}
	if err := json.Unmarshal(raw, &id); err != nil {
		return nil, fmt.Errorf("failed to decode id: %w", err)
	}
	switch id.(type) {
	case string, float64:
		return id, nil
	default:
		return nil, fmt.Errorf("%w: id must be a string or number", ErrInvalidMessage)
	}
}
