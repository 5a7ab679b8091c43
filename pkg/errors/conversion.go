package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
)

// RPCErrorData keeps the provider's error payload alongside the method that failed.
type RPCErrorData struct {
	Method string          `json:"method,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// FromJSONRPCError converts an error object received from a provider. The
// provider's numeric code and message are preserved verbatim.
func FromJSONRPCError(obj *protocol.ErrorObject, method string) MCPError {
	if obj == nil {
		return nil
	}

	code := int(obj.Code)
	return NewError(
		code,
		fmt.Sprintf("MCP error %d: %s (%s)", code, obj.Message, method),
		CategoryProtocol,
		SeverityError,
	).WithRecoverable(isTransientRPCCode(code)).WithData(&RPCErrorData{
		Method: method,
		Data:   obj.Data,
	}).WithContext(&Context{Method: method})
}

// ToJSONRPCError converts any error into a wire error object.
func ToJSONRPCError(err error) *protocol.ErrorObject {
	if err == nil {
		return nil
	}
	if mcpErr, ok := AsMCPError(err); ok {
		return &protocol.ErrorObject{Code: protocol.ErrorCode(mcpErr.Code()), Message: mcpErr.Message()}
	}
	return &protocol.ErrorObject{Code: protocol.InternalError, Message: err.Error()}
}

// Internal errors and implementation-defined server errors describe the
// provider's state rather than the request, so a different provider may
// succeed.
func isTransientRPCCode(code int) bool {
	return code == CodeInternalError || IsServerErrorCode(code)
}

// ConvertStandardError maps common Go errors onto the taxonomy.
func ConvertStandardError(err error) MCPError {
	if err == nil {
		return nil
	}

	if mcpErr, ok := AsMCPError(err); ok {
		return mcpErr
	}

	switch {
	case stderrors.Is(err, context.Canceled):
		return OperationCancelled("request")
	case stderrors.Is(err, context.DeadlineExceeded):
		return WrapError(err, CodeOperationTimeout, "deadline exceeded", CategoryTimeout, SeverityError).
			WithRecoverable(true)
	case stderrors.Is(err, io.EOF), stderrors.Is(err, io.ErrClosedPipe):
		return ConnectionLost("unknown", "", err)
	}

	var syntaxErr *json.SyntaxError
	if stderrors.As(err, &syntaxErr) {
		return WrapError(err, CodeParseError, "invalid JSON", CategoryProtocol, SeverityError)
	}

	return WrapError(err, CodeInternalError, err.Error(), CategoryInternal, SeverityError)
}

// CombineErrors combines multiple errors into a single MCPError
func CombineErrors(errs []error) MCPError {
	validErrors := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			validErrors = append(validErrors, err)
		}
	}

	switch len(validErrors) {
	case 0:
		return nil
	case 1:
		return ConvertStandardError(validErrors[0])
	}

	messages := make([]string, len(validErrors))
	errorData := make([]interface{}, len(validErrors))
	for i, err := range validErrors {
		messages[i] = err.Error()
		if mcpErr, ok := AsMCPError(err); ok {
			errorData[i] = mcpErr.ToJSON()
		} else {
			errorData[i] = map[string]interface{}{
				"message": err.Error(),
				"type":    fmt.Sprintf("%T", err),
			}
		}
	}

	return WrapError(
		stderrors.Join(validErrors...),
		CodeInternalError,
		fmt.Sprintf("multiple errors occurred: %v", messages),
		CategoryInternal,
		SeverityError,
	).WithData(map[string]interface{}{
		"errors": errorData,
		"count":  len(validErrors),
	})
}

// IsRecoverable reports whether a failover layer may try another provider
// after err. Cancellation by the caller is never recoverable. Errors outside
// the taxonomy are treated as not recoverable.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if mcpErr, ok := AsMCPError(err); ok {
		if mcpErr.Category() == CategoryCancelled {
			return false
		}
		return mcpErr.Recoverable()
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}
