package adapters

import (
	"fmt"
	"strings"
)

// sip signaling port
const defaultSipPort = 5060

// RemoteAddr - derives the datagram destination from a To URI. The
// scheme and any user@ prefix are stripped; a port embedded in the host
// part is honored, otherwise 5060 is assumed.
func RemoteAddr(uriTo string) (string, error) {
	host := uriTo

	host = strings.TrimPrefix(host, "sip:")
	host = strings.TrimPrefix(host, "sips:")

	if i := strings.LastIndex(host, "@"); i >= 0 {
		host = host[i+1:]
	}

	// drop any uri parameters after the host
	if i := strings.Index(host, ";"); i >= 0 {
		host = host[:i]
	}

	if host == "" {
		return "", fmt.Errorf("no host in uri %q", uriTo)
	}

	if !strings.Contains(host, ":") {
		host = fmt.Sprintf("%s:%d", host, defaultSipPort)
	}

	return host, nil
}
