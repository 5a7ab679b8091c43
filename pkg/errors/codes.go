package errors

// JSON-RPC 2.0 standard error codes
const (
	CodeParseError     int = -32700
	CodeInvalidRequest int = -32600
	CodeMethodNotFound int = -32601
	CodeInvalidParams  int = -32602
	CodeInternalError  int = -32603
)

// The JSON-RPC spec reserves -32000 to -32099 for implementation-defined
// server errors. Providers use this range for transient failures.
const (
	CodeServerErrorMin int = -32099
	CodeServerErrorMax int = -32000
)

// Client-side error codes. These never travel on the wire; they classify
// failures raised inside this module.
const (
	// Operation errors (-32300 to -32399)
	CodeOperationCancelled int = -32300
	CodeOperationTimeout   int = -32301

	// Transport errors (-32500 to -32599)
	CodeTransportError          int = -32500
	CodeConnectionFailed        int = -32501
	CodeConnectionLost          int = -32502
	CodeConnectionTimeout       int = -32503
	CodeTransportNotInitialized int = -32504
	CodeMessageTooLarge         int = -32505
	CodeProcessSpawnFailed      int = -32506

	// Configuration errors (-32550 to -32599)
	CodeInvalidConfig     int = -32550
	CodeDuplicateProvider int = -32551
	CodeUnknownProvider   int = -32552

	// Provider errors (-32650 to -32699)
	CodeProviderUnavailable int = -32651
	CodeToolExecutionFailed int = -32653
	CodeNoProviderForTool   int = -32654
	CodeAllProvidersFailed  int = -32655

	// Protocol errors (-32900 to -32999)
	CodeProtocolError     int = -32900
	CodeVersionMismatch   int = -32901
	CodeInvalidSequence   int = -32902
	CodeHandshakeFailed   int = -32903
	CodeCapabilityMissing int = -32904
)

var codeNames = map[int]string{
	CodeParseError:              "ParseError",
	CodeInvalidRequest:          "InvalidRequest",
	CodeMethodNotFound:          "MethodNotFound",
	CodeInvalidParams:           "InvalidParams",
	CodeInternalError:           "InternalError",
	CodeOperationCancelled:      "OperationCancelled",
	CodeOperationTimeout:        "OperationTimeout",
	CodeTransportError:          "TransportError",
	CodeConnectionFailed:        "ConnectionFailed",
	CodeConnectionLost:          "ConnectionLost",
	CodeConnectionTimeout:       "ConnectionTimeout",
	CodeTransportNotInitialized: "TransportNotInitialized",
	CodeMessageTooLarge:         "MessageTooLarge",
	CodeProcessSpawnFailed:      "ProcessSpawnFailed",
	CodeInvalidConfig:           "InvalidConfig",
	CodeDuplicateProvider:       "DuplicateProvider",
	CodeUnknownProvider:         "UnknownProvider",
	CodeProviderUnavailable:     "ProviderUnavailable",
	CodeToolExecutionFailed:     "ToolExecutionFailed",
	CodeNoProviderForTool:       "NoProviderForTool",
	CodeAllProvidersFailed:      "AllProvidersFailed",
	CodeProtocolError:           "ProtocolError",
	CodeVersionMismatch:         "VersionMismatch",
	CodeInvalidSequence:         "InvalidSequence",
	CodeHandshakeFailed:         "HandshakeFailed",
	CodeCapabilityMissing:       "CapabilityMissing",
}

// CodeName returns a stable name for a known code, or "Unknown".
func CodeName(code int) string {
	if name, ok := codeNames[code]; ok {
		return name
	}
	if IsServerErrorCode(code) {
		return "ServerError"
	}
	return "Unknown"
}

// IsServerErrorCode reports whether code falls in the implementation-defined
// server error range.
func IsServerErrorCode(code int) bool {
	return code >= CodeServerErrorMin && code <= CodeServerErrorMax
}
