package client

import (
	"context"
	"encoding/json"

	mcperrors "github.com/ajitpratap0/mcp-fleet/pkg/errors"
	"github.com/ajitpratap0/mcp-fleet/pkg/logging"
	"github.com/ajitpratap0/mcp-fleet/pkg/protocol"
)

// handshake sends initialize followed by notifications/initialized.
func (c *Connection) handshake(ctx context.Context, s *session) (*protocol.InitializeResult, error) {
	params := protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolRevision,
		Capabilities:    protocol.DefaultClientCapabilities(),
		ClientInfo: protocol.Implementation{
			Name:    c.clientName,
			Version: c.clientVersion,
		},
	}

	raw, err := c.roundTrip(ctx, s, protocol.MethodInitialize, params)
	if err != nil {
		return nil, mcperrors.HandshakeFailed(protocol.MethodInitialize, err)
	}

	var result protocol.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, mcperrors.HandshakeFailed(protocol.MethodInitialize, err)
	}
	if result.ProtocolVersion != "" && result.ProtocolVersion != protocol.ProtocolRevision {
		c.logger.Info("provider answered with a different protocol version",
			logging.String("requested", protocol.ProtocolRevision),
			logging.String("negotiated", result.ProtocolVersion),
		)
	}

	if err := c.notify(ctx, s, protocol.MethodInitialized, nil); err != nil {
		return nil, mcperrors.HandshakeFailed(protocol.MethodInitialized, err)
	}
	return &result, nil
}

// loadInventory lists tools and resources for the families the provider
// advertised. Failures leave the corresponding cache empty.
func (c *Connection) loadInventory(ctx context.Context, s *session) {
	caps := c.Capabilities()

	if caps.SupportsTools() {
		tools, err := c.listTools(ctx, s)
		if err != nil {
			c.logger.Warn("listing tools failed", logging.ErrorField(err))
		} else {
			c.mu.Lock()
			if c.session == s {
				c.tools = tools
			}
			c.mu.Unlock()
		}
	}

	if caps.SupportsResources() {
		resources, err := c.listResources(ctx, s)
		if err != nil {
			c.logger.Warn("listing resources failed", logging.ErrorField(err))
		} else {
			c.mu.Lock()
			if c.session == s {
				c.resources = resources
			}
			c.mu.Unlock()
		}
	}
}
