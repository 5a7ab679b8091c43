package errors

import (
	"fmt"
	"time"
)

// ProviderErrorData contains structured data for provider-related errors
type ProviderErrorData struct {
	Provider string   `json:"provider,omitempty"`
	Tool     string   `json:"tool,omitempty"`
	Tried    []string `json:"tried,omitempty"`
	Reason   string   `json:"reason,omitempty"`
}

// ConfigErrorData contains structured data for configuration errors
type ConfigErrorData struct {
	Field  string `json:"field"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Configuration errors. These are caller mistakes and never trigger failover.

// InvalidConfig reports a bad configuration field.
func InvalidConfig(field, reason string) MCPError {
	return NewError(
		CodeInvalidConfig,
		fmt.Sprintf("invalid configuration for %s: %s", field, reason),
		CategoryConfiguration,
		SeverityError,
	).WithData(&ConfigErrorData{Field: field, Reason: reason})
}

// DuplicateProvider is returned when a provider name is already registered.
func DuplicateProvider(name string) MCPError {
	return NewError(
		CodeDuplicateProvider,
		fmt.Sprintf("provider %q is already registered", name),
		CategoryConfiguration,
		SeverityError,
	).WithData(&ConfigErrorData{Field: "name", Value: name, Reason: "duplicate"})
}

// UnknownProvider is returned when a provider name is not registered.
func UnknownProvider(name string) MCPError {
	return NewError(
		CodeUnknownProvider,
		fmt.Sprintf("provider %q is not registered", name),
		CategoryConfiguration,
		SeverityError,
	).WithData(&ConfigErrorData{Field: "name", Value: name, Reason: "unknown"})
}

// Provider and tool errors

// ProviderUnavailable reports a registered provider that cannot serve requests right now.
func ProviderUnavailable(provider, reason string) MCPError {
	return NewError(
		CodeProviderUnavailable,
		fmt.Sprintf("provider %q unavailable: %s", provider, reason),
		CategoryProvider,
		SeverityWarning,
	).WithRecoverable(true).WithData(&ProviderErrorData{Provider: provider, Reason: reason})
}

// ToolExecutionFailed reports a tools/call that completed with isError or an RPC error.
func ToolExecutionFailed(tool, provider, message string, recoverable bool) MCPError {
	return NewError(
		CodeToolExecutionFailed,
		fmt.Sprintf("tool %q failed on provider %q: %s", tool, provider, message),
		CategoryProvider,
		SeverityError,
	).WithRecoverable(recoverable).WithData(&ProviderErrorData{
		Provider: provider,
		Tool:     tool,
		Reason:   message,
	})
}

// NoProviderForTool is returned when no connected provider advertises the tool.
func NoProviderForTool(tool string) MCPError {
	return NewError(
		CodeNoProviderForTool,
		fmt.Sprintf("no provider has tool %q", tool),
		CategoryProvider,
		SeverityError,
	).WithData(&ProviderErrorData{Tool: tool})
}

// AllProvidersFailed aggregates the per-provider failures of one failover run.
func AllProvidersFailed(tool string, tried []string, errs []error) MCPError {
	combined := CombineErrors(errs)
	detail := ""
	if combined != nil {
		detail = combined.Error()
	}
	err := WrapError(
		combined,
		CodeAllProvidersFailed,
		fmt.Sprintf("all providers failed for tool %q (tried %d)", tool, len(tried)),
		CategoryProvider,
		SeverityError,
	).WithData(&ProviderErrorData{Tool: tool, Tried: tried, Reason: detail})
	if detail != "" {
		err = err.WithDetail(detail)
	}
	return err
}

// Operation errors

// OperationCancelled is returned when the caller's context was cancelled.
func OperationCancelled(operation string) MCPError {
	return NewError(
		CodeOperationCancelled,
		fmt.Sprintf("operation %q was cancelled", operation),
		CategoryCancelled,
		SeverityInfo,
	)
}

// OperationTimeout is returned when an operation exceeded its deadline.
func OperationTimeout(operation string, timeout time.Duration) MCPError {
	return NewError(
		CodeOperationTimeout,
		fmt.Sprintf("operation %q timed out after %v", operation, timeout),
		CategoryTimeout,
		SeverityError,
	).WithRecoverable(true)
}

// Protocol errors

// ProtocolError reports an unexpected message shape or sequence.
func ProtocolError(reason string) MCPError {
	return NewError(
		CodeProtocolError,
		fmt.Sprintf("protocol error: %s", reason),
		CategoryProtocol,
		SeverityError,
	)
}

// HandshakeFailed wraps a failure in the initialize exchange.
func HandshakeFailed(step string, cause error) MCPError {
	return WrapError(
		cause,
		CodeHandshakeFailed,
		fmt.Sprintf("handshake failed at %s: %s", step, reason(cause)),
		CategoryProtocol,
		SeverityCritical,
	).WithRecoverable(true)
}

// CapabilityMissing is returned when a feature is used that the provider did not advertise.
func CapabilityMissing(provider, capability string) MCPError {
	return NewError(
		CodeCapabilityMissing,
		fmt.Sprintf("provider %q does not support %s", provider, capability),
		CategoryProtocol,
		SeverityWarning,
	).WithData(&ProviderErrorData{Provider: provider, Reason: capability})
}
