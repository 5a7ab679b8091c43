package client

import (
	"context"
	"encoding/json"
	"fmt"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/pagination"
	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
)

// maxListPages bounds cursor following for tools/list and resources/list.
const maxListPages = pagination.DefaultMaxPages

func pageParams(cursor string) interface{} {
	if cursor == "" {
		return nil
	}
	return protocol.PaginatedParams{Cursor: cursor}
}

func (c *Connection) listTools(ctx context.Context, s *session) ([]protocol.Tool, error) {
	return pagination.CollectAll(ctx, maxListPages, func(ctx context.Context, cursor string) ([]protocol.Tool, string, error) {
		raw, err := c.roundTrip(ctx, s, protocol.MethodListTools, pageParams(cursor))
		if err != nil {
			return nil, "", err
		}
		var page protocol.ListToolsResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, "", mcperrors.ProtocolError(fmt.Sprintf("invalid %s result: %v", protocol.MethodListTools, err))
		}
		return page.Tools, page.NextCursor, nil
	})
}

func (c *Connection) listResources(ctx context.Context, s *session) ([]protocol.Resource, error) {
	return pagination.CollectAll(ctx, maxListPages, func(ctx context.Context, cursor string) ([]protocol.Resource, string, error) {
		raw, err := c.roundTrip(ctx, s, protocol.MethodListResources, pageParams(cursor))
		if err != nil {
			return nil, "", err
		}
		var page protocol.ListResourcesResult
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, "", mcperrors.ProtocolError(fmt.Sprintf("invalid %s result: %v", protocol.MethodListResources, err))
		}
		return page.Resources, page.NextCursor, nil
	})
}

// RefreshTools re-lists the provider's tools and replaces the cache. On
// failure the previous cache is kept.
func (c *Connection) RefreshTools(ctx context.Context) ([]protocol.Tool, error) {
	s, caps := c.activeSessionCaps()
	if s == nil {
		return nil, mcperrors.TransportNotInitialized(string(c.config.Type))
	}
	if !caps.SupportsTools() {
		return nil, mcperrors.CapabilityMissing(c.name, "tools")
	}

	tools, err := c.listTools(ctx, s)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session == s {
		c.tools = tools
	}
	c.mu.Unlock()
	return cloneTools(tools), nil
}

// RefreshResources re-lists the provider's resources and replaces the
// cache. On failure the previous cache is kept.
func (c *Connection) RefreshResources(ctx context.Context) ([]protocol.Resource, error) {
	s, caps := c.activeSessionCaps()
	if s == nil {
		return nil, mcperrors.TransportNotInitialized(string(c.config.Type))
	}
	if !caps.SupportsResources() {
		return nil, mcperrors.CapabilityMissing(c.name, "resources")
	}

	resources, err := c.listResources(ctx, s)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.session == s {
		c.resources = resources
	}
	c.mu.Unlock()
	return append([]protocol.Resource(nil), resources...), nil
}

// Tools returns a copy of the cached tool list
func (c *Connection) Tools() []protocol.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTools(c.tools)
}

// Resources returns a copy of the cached resource list
func (c *Connection) Resources() []protocol.Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]protocol.Resource(nil), c.resources...)
}

// HasTool reports whether the cached tool list contains name.
func (c *Connection) HasTool(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := protocol.FindTool(c.tools, name)
	return ok
}

func cloneTools(tools []protocol.Tool) []protocol.Tool {
	if tools == nil {
		return nil
	}
	return append([]protocol.Tool(nil), tools...)
}
