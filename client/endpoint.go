package client

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/jpalmerr/slotbox"
)

// Endpoint addresses one endpoint of a slotbox server.
type Endpoint struct {
	// Network is "unix" or "tcp".
	Network string

	// Address is the socket path or host:port of the server.
	Address string

	// ID is the endpoint number on that server.
	ID slotbox.EndpointID
}

// ParseEndpoint parses an endpoint reference "<address>/<id>".
//
// Addresses starting with unix:// or tcp:// are taken literally. Otherwise
// an address containing a path separator is a unix socket path and anything
// else must be host:port.
func ParseEndpoint(ref string) (Endpoint, error) {
	idx := strings.LastIndex(ref, "/")
	if idx <= 0 || idx == len(ref)-1 {
		return Endpoint{}, fmt.Errorf("%w: endpoint reference %q must be <address>/<id>", slotbox.ErrInvalidArgument, ref)
	}
	addr, rawID := ref[:idx], ref[idx+1:]

	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: endpoint id %q is not an unsigned integer", slotbox.ErrInvalidArgument, rawID)
	}

	ep := Endpoint{ID: slotbox.EndpointID(id)}
	switch {
	case strings.HasPrefix(addr, "unix://"):
		ep.Network, ep.Address = "unix", strings.TrimPrefix(addr, "unix://")
	case strings.HasPrefix(addr, "tcp://"):
		ep.Network, ep.Address = "tcp", strings.TrimPrefix(addr, "tcp://")
	case strings.Contains(addr, "/"):
		ep.Network, ep.Address = "unix", addr
	default:
		ep.Network, ep.Address = "tcp", addr
	}

	if ep.Address == "" {
		return Endpoint{}, fmt.Errorf("%w: endpoint reference %q has no address", slotbox.ErrInvalidArgument, ref)
	}
	if ep.Network == "tcp" {
		if _, _, err := net.SplitHostPort(ep.Address); err != nil {
			return Endpoint{}, fmt.Errorf("%w: tcp address %q: %v", slotbox.ErrInvalidArgument, ep.Address, err)
		}
	}
	return ep, nil
}

// String returns the reference form accepted by [ParseEndpoint].
func (e Endpoint) String() string {
	return fmt.Sprintf("%s://%s/%d", e.Network, e.Address, e.ID)
}
