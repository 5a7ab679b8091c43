package errors

import (
	"fmt"
	"net/url"
	"time"
)

// TransportErrorData contains structured data for transport-related errors
type TransportErrorData struct {
	Transport string        `json:"transport"`
	Operation string        `json:"operation,omitempty"`
	Endpoint  string        `json:"endpoint,omitempty"`
	RequestID string        `json:"request_id,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

func reason(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

func endpointHost(endpoint string) string {
	if endpoint == "" {
		return ""
	}
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host
	}
	return endpoint
}

// TransportError creates a generic transport error
func TransportError(transport, operation string, cause error) MCPError {
	message := fmt.Sprintf("%s transport error", transport)
	if operation != "" {
		message = fmt.Sprintf("%s transport error during %s", transport, operation)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(cause, CodeTransportError, message, CategoryTransport, SeverityError).
		WithRecoverable(true).
		WithData(&TransportErrorData{
			Transport: transport,
			Operation: operation,
			Reason:    reason(cause),
		})
}

// ConnectionFailed creates an error for connection failures
func ConnectionFailed(transport, endpoint string, cause error) MCPError {
	message := fmt.Sprintf("failed to connect via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("failed to connect to %s via %s", endpoint, transport)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(cause, CodeConnectionFailed, message, CategoryTransport, SeverityCritical).
		WithRecoverable(true).
		WithData(&TransportErrorData{
			Transport: transport,
			Endpoint:  endpointHost(endpoint),
			Operation: "connect",
			Reason:    reason(cause),
		})
}

// ConnectionLost is returned to waiters whose connection closed or hit EOF
// before their response arrived.
func ConnectionLost(transport, endpoint string, cause error) MCPError {
	message := fmt.Sprintf("transport closed: lost connection via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("transport closed: lost connection to %s via %s", endpoint, transport)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(cause, CodeConnectionLost, message, CategoryTransport, SeverityError).
		WithRecoverable(true).
		WithData(&TransportErrorData{
			Transport: transport,
			Endpoint:  endpointHost(endpoint),
			Reason:    reason(cause),
		})
}

// ConnectionTimeout creates an error for connect attempts that exceeded their deadline
func ConnectionTimeout(transport, endpoint string, timeout time.Duration) MCPError {
	message := fmt.Sprintf("connection timeout via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("connection timeout to %s via %s", endpoint, transport)
	}
	if timeout > 0 {
		message = fmt.Sprintf("%s after %v", message, timeout)
	}

	return NewError(CodeConnectionTimeout, message, CategoryTimeout, SeverityError).
		WithRecoverable(true).
		WithData(&TransportErrorData{
			Transport: transport,
			Endpoint:  endpointHost(endpoint),
			Operation: "connect",
			Timeout:   timeout,
			Reason:    "timeout",
		})
}

// StdioTransportError creates an error for child-process pipe failures
func StdioTransportError(operation string, cause error) MCPError {
	return TransportError("stdio", operation, cause)
}

// WebSocketTransportError creates an error for websocket read/write failures
func WebSocketTransportError(operation string, cause error) MCPError {
	return TransportError("websocket", operation, cause)
}

// ProcessSpawnFailed is returned when the provider command cannot be started.
// Retrying the same command elsewhere does not help, so it is not recoverable.
func ProcessSpawnFailed(command string, cause error) MCPError {
	return WrapError(
		cause,
		CodeProcessSpawnFailed,
		fmt.Sprintf("failed to spawn provider process %q: %s", command, reason(cause)),
		CategoryTransport,
		SeverityCritical,
	).WithData(&TransportErrorData{
		Transport: "stdio",
		Operation: "spawn",
		Endpoint:  command,
		Reason:    reason(cause),
	})
}

// MessageSendError creates an error for a message that could not be written
func MessageSendError(transport, method string, cause error) MCPError {
	return WrapError(
		cause,
		CodeTransportError,
		fmt.Sprintf("failed to send %s via %s: %s", method, transport, reason(cause)),
		CategoryTransport,
		SeverityError,
	).WithRecoverable(true).WithData(&TransportErrorData{
		Transport: transport,
		Operation: "send",
		Reason:    reason(cause),
	})
}

// MessageTooLarge is raised when an inbound message exceeds the size limit.
func MessageTooLarge(transport string, size, limit int) MCPError {
	return NewError(
		CodeMessageTooLarge,
		fmt.Sprintf("%s message of %d bytes exceeds limit of %d bytes", transport, size, limit),
		CategoryProtocol,
		SeverityWarning,
	).WithData(&TransportErrorData{
		Transport: transport,
		Operation: "receive",
	})
}

// TransportNotInitialized is returned when a request is issued on a
// connection that is not connected.
func TransportNotInitialized(transport string) MCPError {
	return NewError(
		CodeTransportNotInitialized,
		fmt.Sprintf("%s transport not connected", transport),
		CategoryTransport,
		SeverityError,
	).WithRecoverable(true).WithData(&TransportErrorData{
		Transport: transport,
		Reason:    "not connected",
	})
}

// ResponseTimeout is returned when no response arrived within the request window
func ResponseTimeout(transport, requestID string, timeout time.Duration) MCPError {
	return NewError(
		CodeOperationTimeout,
		fmt.Sprintf("no response from %s for request %s within %v", transport, requestID, timeout),
		CategoryTimeout,
		SeverityError,
	).WithRecoverable(true).WithData(&TransportErrorData{
		Transport: transport,
		RequestID: requestID,
		Timeout:   timeout,
		Reason:    "timeout",
	})
}
