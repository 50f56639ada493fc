package container

import (
	"net"
	"strconv"
)

// findFreePort asks the kernel for an unused TCP port on the given host
// interface. The listener is closed immediately, so the port is only
// reserved in the sense that it was free at the time of the call.
func findFreePort(hostInterface string) (int, error) {
	listener, err := net.Listen("tcp", net.JoinHostPort(hostInterface, "0"))
	if err != nil {
		return 0, err
	}
	defer listener.Close()

	_, portStr, err := net.SplitHostPort(listener.Addr().String())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}
