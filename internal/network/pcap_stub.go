//go:build !pcap

package network

import (
	"errors"
	"time"
)

// ErrPCAPDisabled reports a binary built without capture support.
var ErrPCAPDisabled = errors.New("pcap support not built in; rebuild with -tags pcap")

// ReadPCAP is a stub; capture replay needs the pcap build tag and
// libpcap headers at build time.
func ReadPCAP(path string, port int, fn func(ts time.Time, payload []byte) error) (int, error) {
	return 0, ErrPCAPDisabled
}
