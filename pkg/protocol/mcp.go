package protocol

import (
	"encoding/json"
)

const (
	// ProtocolRevision is the protocol version sent in initialize
	ProtocolRevision = "2025-06-18"

	// Lifecycle
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"

	// Server features
	MethodListTools     = "tools/list"
	MethodCallTool      = "tools/call"
	MethodListResources = "resources/list"
	MethodReadResource  = "resources/read"

	// Server notifications
	MethodToolsListChanged     = "notifications/tools/list_changed"
	MethodResourcesListChanged = "notifications/resources/list_changed"
	MethodLogMessage           = "notifications/message"
	MethodProgress             = "notifications/progress"
)

// ClientCapabilities are declared by this client during initialize
type ClientCapabilities struct {
	Roots    *RootsCapability `json:"roots,omitempty"`
	Sampling *struct{}        `json:"sampling,omitempty"`
}

// RootsCapability declares roots support
type RootsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// DefaultClientCapabilities returns the capabilities this client advertises.
func DefaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		Roots:    &RootsCapability{ListChanged: true},
		Sampling: &struct{}{},
	}
}

// ServerCapabilities describes which capability families a provider
// supports. A nil field means the family is unsupported and its methods must
// not be invoked.
type ServerCapabilities struct {
	Tools        *ToolsCapability     `json:"tools,omitempty"`
	Resources    *ResourcesCapability `json:"resources,omitempty"`
	Prompts      *PromptsCapability   `json:"prompts,omitempty"`
	Logging      *struct{}            `json:"logging,omitempty"`
	Experimental json.RawMessage      `json:"experimental,omitempty"`
}

// ToolsCapability describes tools support
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes resources support
type ResourcesCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
	Subscribe   bool `json:"subscribe,omitempty"`
}

// PromptsCapability describes prompts support
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SupportsTools reports whether the tools family was advertised
func (c ServerCapabilities) SupportsTools() bool { return c.Tools != nil }

// SupportsResources reports whether the resources family was advertised
func (c ServerCapabilities) SupportsResources() bool { return c.Resources != nil }

// SupportsPrompts reports whether the prompts family was advertised
func (c ServerCapabilities) SupportsPrompts() bool { return c.Prompts != nil }

// ParseServerCapabilities decodes each capability section independently.
// A section that is missing or fails to decode is left nil, so a malformed
// section never reads as supported.
func ParseServerCapabilities(raw json.RawMessage) ServerCapabilities {
	var caps ServerCapabilities
	if len(raw) == 0 {
		return caps
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal(raw, &sections); err != nil {
		return caps
	}

	if section, ok := sections["tools"]; ok {
		var tools ToolsCapability
		if json.Unmarshal(section, &tools) == nil && isObject(section) {
			caps.Tools = &tools
		}
	}
	if section, ok := sections["resources"]; ok {
		var resources ResourcesCapability
		if json.Unmarshal(section, &resources) == nil && isObject(section) {
			caps.Resources = &resources
		}
	}
	if section, ok := sections["prompts"]; ok {
		var prompts PromptsCapability
		if json.Unmarshal(section, &prompts) == nil && isObject(section) {
			caps.Prompts = &prompts
		}
	}
	if section, ok := sections["logging"]; ok && isObject(section) {
		caps.Logging = &struct{}{}
	}
	if section, ok := sections["experimental"]; ok && isObject(section) {
		caps.Experimental = section
	}
	return caps
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// Implementation identifies a client or server
type Implementation struct {
	Name    string `json:"name"`
	Title   string `json:"title,omitempty"`
	Version string `json:"version"`
}

// InitializeParams defines the parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult is the provider's answer to initialize. Capabilities
// are kept raw so they can be parsed section by section.
type InitializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      Implementation  `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
}

// PaginatedParams carries the cursor for list methods
type PaginatedParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// LogMessageParams is the payload of notifications/message
type LogMessageParams struct {
	Level  string          `json:"level"`
	Logger string          `json:"logger,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}
