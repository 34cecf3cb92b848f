package client

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// IsURLAvailable checks if a TCP connection can be established to the host of address.
// Unknown schemes and in-process addresses are assumed available.
func IsURLAvailable(ctx context.Context, address string, timeout time.Duration) bool {
	u, err := url.Parse(address)
	if err != nil {
		return false
	}
	addr := u.Host
	if u.Port() == "" {
		switch u.Scheme {
		case "http", "ws":
			addr += ":80"
		case "https", "wss":
			addr += ":443"
		default:
			// Fail open if we can't figure out what the port should be
			return true
		}
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// hostPort is used in log lines, without any credentials embedded in the URL path.
func hostPort(address string) string {
	u, err := url.Parse(address)
	if err != nil || u.Host == "" {
		return strings.SplitN(address, "?", 2)[0]
	}
	return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
}
