package main

import (
	"fmt"
	"net"

	"golang.org/x/net/netutil"
)

// newListener binds addr and, when max is positive, caps the number of
// simultaneously accepted connections.
func newListener(addr string, max int) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if max > 0 {
		ln = netutil.LimitListener(ln, max)
	}
	return ln, nil
}
