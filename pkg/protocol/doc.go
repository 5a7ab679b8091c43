// Package protocol defines the wire types of the Model Context Protocol as
// consumed by mcp-fleet and the line-oriented JSON-RPC 2.0 codec.
//
// # Package Organization
//
//   - jsonrpc.go: request, response and notification envelopes, Encode and Decode
//   - mcp.go: method names, the initialize exchange and capability parsing
//   - tools.go: tool descriptors and tools/call payloads
//   - resources.go: resource descriptors and resources/read payloads
//
// # Framing
//
// Every message is a single JSON object. On the stdio transport each message
// is terminated by a newline; on the websocket transport each message is one
// text frame. Encode always appends the newline and Decode ignores
// surrounding whitespace, so both transports share the codec.
//
// # Classification
//
// Decode returns an Inbound tagged by Kind:
//
//   - KindResponse: the message has an id and no method
//   - KindNotification: the message has a method and no id
//   - KindRequest: the message has both (a server-initiated request)
//
// # Capabilities
//
// ServerCapabilities uses nil pointers for unsupported families.
// ParseServerCapabilities decodes each section on its own so that a
// malformed section is treated as unsupported rather than failing the whole
// handshake.
package protocol
