package sink

import (
	"io"
	"net"
	"time"

	"github.com/cockroachdb/errors"
)

// dialNetwork opens a tcp:// or udp:// sink connection (spec §6
// "Network sink URI forms"). The returned writer is a plain
// io.WriteCloser; reconnection on failure is the caller's concern via
// the sink's disabled-state transition and its own restart policy.
func dialNetwork(proto, addr string) (io.WriteCloser, error) {
	switch proto {
	case "tcp", "udp":
		conn, err := net.DialTimeout(proto, addr, 5*time.Second)
		if err != nil {
			return nil, errors.Wrapf(ErrOpenSink, "dial %s://%s: %v", proto, addr, err)
		}
		return conn, nil
	default:
		return nil, errors.Wrapf(ErrOpenSink, "unsupported network proto %q", proto)
	}
}
