// Package health tracks the health of every provider in a fleet.
//
// A Monitor keeps one status per provider in three domains: the client
// (the connection state machine), the server (what the provider reported
// during the handshake) and the transport (whether the underlying pipe or
// socket is up). The overall status is the worst status across all
// entries.
package health

import (
	"fmt"

	"github.com/ajitpratap0/mcp-fleet/pkg/client"
)

// Status is ordered so that a larger value is worse
type Status int

const (
	StatusUnknown Status = iota
	StatusHealthy
	StatusDegraded
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status name in JSON reports
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Worst returns the worse of two statuses
func Worst(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

// FromState maps a connection state to a client-domain status.
func FromState(state client.State) Status {
	switch state {
	case client.StateConnected:
		return StatusHealthy
	case client.StateConnecting:
		return StatusDegraded
	case client.StateDisconnected, client.StateError:
		return StatusUnhealthy
	default:
		return StatusUnknown
	}
}
